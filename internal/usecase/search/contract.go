package search

import (
	"context"

	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/filter"
	"github.com/norma-cloud/knowdex/internal/vectorstore"
)

// Store defines the vector store contract for semantic search.
type Store interface {
	Search(ctx context.Context, vector []float32, topK int, f filter.Filter) ([]vectorstore.Match, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
