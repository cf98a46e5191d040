// Package memory is the in-process reference vector store: brute-force cosine
// over an in-memory slice, no persistence across restarts. It exists for
// local development and as the executable specification the Redis backend is
// tested against.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/filter"
	"github.com/norma-cloud/knowdex/internal/vectorstore"
)

// Compile-time check: Store implements vectorstore.Store.
var _ vectorstore.Store = (*Store)(nil)

// Store holds all records in memory, ordered by insertion.
type Store struct {
	mu        sync.RWMutex
	dimension int
	connected bool
	order     []string
	records   map[string]domain.VectorRecord
}

// New creates an in-memory store for vectors of the given dimension.
func New(dimension int) *Store {
	return &Store{
		dimension: dimension,
		records:   make(map[string]domain.VectorRecord),
	}
}

// Connect marks the store ready. The dimension must already be valid.
func (s *Store) Connect(_ context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("dimension %d: %w", s.dimension, domain.ErrVectorDimMismatch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

// Close marks the store disconnected. Contents are retained until the process
// exits.
func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// IsConnected reports whether Connect has been called.
func (s *Store) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Insert stores one record, replacing any record with the same id.
func (s *Store) Insert(_ context.Context, rec domain.VectorRecord) error {
	if err := rec.Validate(s.dimension); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return domain.ErrNotConnected
	}
	s.put(rec)
	return nil
}

// InsertBatch stores records in sub-batches of vectorstore.BatchSize.
// Validation failures abort the whole call before any write; the returned
// count is the number of records actually stored.
func (s *Store) InsertBatch(_ context.Context, recs []domain.VectorRecord) (int, error) {
	for i := range recs {
		if err := recs[i].Validate(s.dimension); err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, domain.ErrNotConnected
	}

	stored := 0
	for start := 0; start < len(recs); start += vectorstore.BatchSize {
		end := min(start+vectorstore.BatchSize, len(recs))
		for _, rec := range recs[start:end] {
			s.put(rec)
			stored++
		}
	}
	return stored, nil
}

// Get returns a record by id.
func (s *Store) Get(_ context.Context, id string) (domain.VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return domain.VectorRecord{}, domain.ErrNotConnected
	}
	rec, ok := s.records[id]
	if !ok {
		return domain.VectorRecord{}, fmt.Errorf("record %s: %w", id, domain.ErrRecordNotFound)
	}
	return rec, nil
}

// Delete removes records by id. Unknown ids are ignored.
func (s *Store) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return domain.ErrNotConnected
	}
	for _, id := range ids {
		s.remove(id)
	}
	return nil
}

// Search evaluates the filter over every record first, ranks the survivors by
// cosine similarity, then cuts to topK. Equal scores keep insertion order
// (stable sort) so results are reproducible.
func (s *Store) Search(
	_ context.Context, vector []float32, topK int, f filter.Filter,
) ([]vectorstore.Match, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query vector has %d dims, store expects %d: %w",
			len(vector), s.dimension, domain.ErrVectorDimMismatch)
	}
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return nil, domain.ErrNotConnected
	}

	matches := make([]vectorstore.Match, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		if !filter.Matches(f, &rec.Meta) {
			continue
		}
		score, err := vectorstore.Cosine(vector, rec.Vector)
		if err != nil {
			return nil, err
		}
		matches = append(matches, vectorstore.Match{Record: rec, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteByDocument removes every chunk record of a document.
func (s *Store) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, domain.ErrNotConnected
	}

	removed := 0
	for _, id := range append([]string(nil), s.order...) {
		if s.records[id].Meta.DocumentID == documentID {
			s.remove(id)
			removed++
		}
	}
	return removed, nil
}

// CountByDocument reports the number of stored chunks for a document.
func (s *Store) CountByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return 0, domain.ErrNotConnected
	}

	n := 0
	for _, rec := range s.records {
		if rec.Meta.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

// put inserts or replaces a record, preserving first-insertion order.
// Callers hold the write lock.
func (s *Store) put(rec domain.VectorRecord) {
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
}

// remove deletes a record and its order entry. Callers hold the write lock.
func (s *Store) remove(id string) {
	if _, exists := s.records[id]; !exists {
		return
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
