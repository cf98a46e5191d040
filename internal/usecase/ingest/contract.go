package ingest

import (
	"context"

	"github.com/norma-cloud/knowdex/internal/domain"
)

// Store defines the vector store contract for ingestion.
type Store interface {
	InsertBatch(ctx context.Context, recs []domain.VectorRecord) (int, error)
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	CountByDocument(ctx context.Context, documentID string) (int, error)
}

// Embedder vectorizes chunk texts.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Chunker splits document text into windows.
type Chunker interface {
	Split(documentID, text string) []domain.Chunk
}
