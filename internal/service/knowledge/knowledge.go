// Package knowledge indexes the insurance knowledge base and serves passage search.
package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Passage is one search hit.
type Passage struct {
	Content  string  `json:"content"`
	SourceID string  `json:"source"`
	Score    float64 `json:"score"`
}

// Document is one indexed chunk.
type Document struct {
	ID       string
	SourceID string
	Content  string
}

// Retriever returns up to k passages ranked by relevance. No hits is not an error.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]Passage, error)
}

// Indexer adds documents to a backend.
type Indexer interface {
	Index(ctx context.Context, docs []Document) error
}

// Backend is a searchable document store.
type Backend interface {
	Retriever
	Indexer
	Count(ctx context.Context) (int, error)
	Close() error
}

// FormatContext renders passages as numbered source blocks separated by blank lines.
func FormatContext(passages []Passage) string {
	parts := make([]string, 0, len(passages))
	for i, p := range passages {
		parts = append(parts, fmt.Sprintf("[Source %d: %s]\n%s\n", i+1, filepath.Base(p.SourceID), p.Content))
	}
	return strings.Join(parts, "\n")
}

// Sources lists the source ids of passages in order.
func Sources(passages []Passage) []string {
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		out = append(out, p.SourceID)
	}
	return out
}

func filterByScore(passages []Passage, threshold float64) []Passage {
	out := passages[:0]
	for _, p := range passages {
		if p.Score >= threshold {
			out = append(out, p)
		}
	}
	return out
}
