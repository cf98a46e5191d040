// Package chunker splits document text into fixed-size overlapping windows
// prior to embedding.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/norma-cloud/knowdex/internal/domain"
)

// DefaultChunkSize is the default window size in characters.
const DefaultChunkSize = 1000

// DefaultOverlap is the default number of characters shared between
// consecutive windows.
const DefaultOverlap = 200

// Chunker splits text into fixed-size character windows. Windows advance by
// size minus overlap, so every character lands in at least one chunk.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. The overlap must be strictly smaller than the window
// size or the cursor could never advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size %d: %w", size, domain.ErrInvalidChunking)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap %d: %w", overlap, domain.ErrInvalidChunking)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than size %d: %w",
			overlap, size, domain.ErrInvalidChunking)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured window size in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in characters.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks the text for a document. Whitespace runs are collapsed before
// windowing so page breaks and indentation do not eat window budget. Empty or
// whitespace-only text yields no chunks.
func (c *Chunker) Split(documentID, text string) []domain.Chunk {
	runes := []rune(collapseWhitespace(strings.TrimSpace(text)))
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	chunks := make([]domain.Chunk, 0, len(runes)/step+1)

	for start, index := 0, 0; start < len(runes); start, index = start+step, index+1 {
		end := min(start+c.size, len(runes))

		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(documentID, index),
			DocumentID: documentID,
			Text:       string(runes[start:end]),
			Index:      index,
		})

		if end == len(runes) {
			break
		}
	}
	return chunks
}

// collapseWhitespace replaces each run of whitespace with a single space.
func collapseWhitespace(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
			continue
		}
		b.WriteRune(r)
		prevSpace = false
	}
	return b.String()
}
