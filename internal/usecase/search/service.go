// Package search implements semantic retrieval over the knowledge base.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/filter"
	"github.com/norma-cloud/knowdex/internal/logger"
	"github.com/norma-cloud/knowdex/internal/vectorstore"
)

// DefaultMinScore is the similarity floor applied when a request leaves it
// unset. Score 0.5 keeps loosely related chunks out of answers.
const DefaultMinScore = 0.5

// Request is a semantic search query.
type Request struct {
	Query string
	// TopK caps how many candidates the store returns. Zero means the store
	// default.
	TopK int
	// Filter restricts candidates by metadata before ranking. Nil matches all.
	Filter filter.Filter
	// MinScore is the client-side similarity floor. Nil applies
	// DefaultMinScore; an explicit zero disables the floor.
	MinScore *float64
}

// Result is one scored chunk.
type Result struct {
	ID    string
	Score float64
	Meta  domain.RecordMetadata
}

// Response carries the ranked results and query timing.
type Response struct {
	Results          []Result
	TotalResults     int
	ProcessingTimeMs int64
}

// Service executes semantic searches.
type Service struct {
	store    Store
	embedder Embedder
}

// New creates a search service.
func New(store Store, embedder Embedder) *Service {
	return &Service{store: store, embedder: embedder}
}

// Search embeds the query once, retrieves the topK candidates, and applies
// the minimum score floor client-side. Result order is the store's ranking;
// the floor only trims the tail, it never reorders.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	if req.Query == "" {
		return nil, domain.NewValidationError([]string{"query is empty"})
	}

	start := time.Now()

	embRes, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	matches, err := s.store.Search(ctx, embRes.Embedding, req.TopK, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("search store: %w", err)
	}
	matches = applyFloor(matches, req.MinScore)

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			ID:    m.Record.ID,
			Score: m.Score,
			Meta:  m.Record.Meta,
		})
	}

	elapsed := time.Since(start)
	logger.FromContext(ctx).Debug("semantic search",
		zap.Int("candidates", len(matches)),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", elapsed))

	return &Response{
		Results:          results,
		TotalResults:     len(results),
		ProcessingTimeMs: elapsed.Milliseconds(),
	}, nil
}

// TopMatches is a convenience for callers that need raw floored matches,
// such as the answer orchestrator. A nil minScore applies DefaultMinScore;
// an explicit zero disables the floor.
func (s *Service) TopMatches(ctx context.Context, query string, topK int, minScore *float64, f filter.Filter) ([]vectorstore.Match, error) {
	embRes, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	matches, err := s.store.Search(ctx, embRes.Embedding, topK, f)
	if err != nil {
		return nil, fmt.Errorf("search store: %w", err)
	}
	return applyFloor(matches, minScore), nil
}

// applyFloor trims matches below the minimum score. The store's ranking is
// preserved; the floor only cuts the tail.
func applyFloor(matches []vectorstore.Match, minScore *float64) []vectorstore.Match {
	floor := DefaultMinScore
	if minScore != nil {
		floor = *minScore
	}

	kept := make([]vectorstore.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score < floor {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}
