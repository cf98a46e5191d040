// Package vectorstore defines the durable similarity-search contract shared
// by the in-process reference backend and the Redis-backed production
// backend.
package vectorstore

import (
	"context"
	"fmt"
	"math"

	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/filter"
)

// DefaultTopK is the result count used when callers pass topK <= 0.
const DefaultTopK = 10

// BatchSize is the backend write-batch size. InsertBatch splits larger inputs
// internally; each sub-batch is applied independently, so a mid-batch failure
// may leave a partial batch stored. Callers needing all-or-nothing must check
// the returned count.
const BatchSize = 100

// Match is one ranked search hit.
type Match struct {
	Record domain.VectorRecord
	Score  float64
}

// Store is the similarity-search storage contract. Search applies the
// metadata filter before ranking and truncation, so topK always reflects
// post-filter candidates, and returns matches sorted by descending score.
type Store interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	IsConnected() bool

	Insert(ctx context.Context, rec domain.VectorRecord) error
	InsertBatch(ctx context.Context, recs []domain.VectorRecord) (stored int, err error)
	Get(ctx context.Context, id string) (domain.VectorRecord, error)
	Delete(ctx context.Context, ids []string) error

	Search(ctx context.Context, vector []float32, topK int, f filter.Filter) ([]Match, error)

	// DeleteByDocument removes every chunk record of a document; used by
	// update-in-place re-ingestion. Returns the number of records removed.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	// CountByDocument reports how many chunk records a document has stored.
	CountByDocument(ctx context.Context, documentID string) (int, error)
}

// Cosine computes cosine similarity between two vectors. Mismatched lengths
// are a configuration fault and return ErrVectorDimMismatch, never a zero
// score.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine over %d and %d dims: %w", len(a), len(b), domain.ErrVectorDimMismatch)
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
