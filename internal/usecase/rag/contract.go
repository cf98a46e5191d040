package rag

import (
	"context"

	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/filter"
	"github.com/norma-cloud/knowdex/internal/vectorstore"
)

// Retriever finds relevant chunks for a question. A nil minScore applies the
// retriever's default similarity floor.
type Retriever interface {
	TopMatches(ctx context.Context, query string, topK int, minScore *float64, f filter.Filter) ([]vectorstore.Match, error)
}

// Generator synthesizes answers from retrieved context.
type Generator interface {
	Complete(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error)
	Stream(ctx context.Context, req domain.GenerationRequest) (<-chan domain.StreamDelta, error)
}
