package knowledge

import (
	"strings"
	"unicode/utf8"
)

var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits text recursively on paragraph, line, sentence and word
// boundaries, falling back to single characters. Lengths are counted in runes.
type Chunker struct {
	Size       int
	Overlap    int
	Separators []string
}

func NewChunker(size, overlap int) Chunker {
	if size < 1 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return Chunker{Size: size, Overlap: overlap, Separators: defaultSeparators}
}

// Split returns trimmed, non-empty chunks of at most Size runes where the
// separators allow it.
func (c Chunker) Split(text string) []string {
	seps := c.Separators
	if len(seps) == 0 {
		seps = defaultSeparators
	}
	return c.split(text, seps)
}

func (c Chunker) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, s := range seps {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	var (
		out  []string
		good []string
	)
	for _, piece := range splitKeepSeparator(text, sep) {
		if runeLen(piece) < c.Size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			if s := strings.TrimSpace(piece); s != "" {
				out = append(out, s)
			}
			continue
		}
		out = append(out, c.split(piece, rest)...)
	}
	if len(good) > 0 {
		out = append(out, c.merge(good)...)
	}
	return out
}

// merge packs pieces into chunks, carrying up to Overlap runes of trailing
// pieces into the next chunk.
func (c Chunker) merge(pieces []string) []string {
	var (
		chunks  []string
		current []string
		total   int
	)
	for _, p := range pieces {
		l := runeLen(p)
		if total+l > c.Size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				chunks = append(chunks, doc)
			}
			for total > c.Overlap || (total+l > c.Size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += l
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		chunks = append(chunks, doc)
	}
	return chunks
}

// splitKeepSeparator splits text on sep, keeping sep at the start of each
// following piece. An empty sep splits into runes.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
