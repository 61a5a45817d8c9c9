package knowledge

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SourceFile is a raw knowledge base file.
type SourceFile struct {
	Path    string
	Content string
}

var loadableExt = map[string]bool{".txt": true, ".md": true}

// LoadDir reads every .txt and .md file under dir, sorted by path.
func LoadDir(dir string) ([]SourceFile, error) {
	var files []SourceFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !loadableExt[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, SourceFile{Path: path, Content: string(raw)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load knowledge dir: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// BuildDocuments chunks every file into indexable documents.
func BuildDocuments(files []SourceFile, chunker Chunker) []Document {
	var docs []Document
	for _, f := range files {
		for i, chunk := range chunker.Split(f.Content) {
			docs = append(docs, Document{
				ID:       fmt.Sprintf("%s#%d", f.Path, i),
				SourceID: f.Path,
				Content:  chunk,
			})
		}
	}
	return docs
}
