package domain

import "fmt"

// Chunk is a bounded slice of a document's text, the unit of embedding and
// retrieval. Chunks are never mutated after creation; re-ingestion deletes and
// recreates every chunk of a document.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Index      int
}

// ChunkID derives the stable record id for a chunk of a document.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s#%d", documentID, index)
}
