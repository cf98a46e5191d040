package search

import (
	"context"
	"errors"
	"testing"

	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/filter"
	"github.com/norma-cloud/knowdex/internal/vectorstore"
)

type fakeStore struct {
	matches  []vectorstore.Match
	err      error
	lastTopK int
	lastF    filter.Filter
}

func (f *fakeStore) Search(_ context.Context, _ []float32, topK int, flt filter.Filter) ([]vectorstore.Match, error) {
	f.lastTopK = topK
	f.lastF = flt
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	f.calls++
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

func match(id string, score float64) vectorstore.Match {
	return vectorstore.Match{
		Record: domain.VectorRecord{ID: id, Meta: domain.RecordMetadata{DocumentID: id}},
		Score:  score,
	}
}

func f64(v float64) *float64 { return &v }

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc := New(&fakeStore{}, &fakeEmbedder{})
	if _, err := svc.Search(context.Background(), Request{}); !errors.Is(err, domain.ErrInvalidMetadata) {
		t.Errorf("Search() err = %v, want validation error", err)
	}
}

func TestSearchAppliesDefaultMinScore(t *testing.T) {
	store := &fakeStore{matches: []vectorstore.Match{
		match("a#0", 0.92),
		match("b#0", 0.51),
		match("c#0", 0.49),
		match("d#0", 0.12),
	}}
	svc := New(store, &fakeEmbedder{})

	resp, err := svc.Search(context.Background(), Request{Query: "lease accounting"})
	if err != nil {
		t.Fatalf("Search() err = %v", err)
	}
	if resp.TotalResults != 2 {
		t.Fatalf("TotalResults = %d, want 2 above the 0.5 floor", resp.TotalResults)
	}
	if resp.Results[0].ID != "a#0" || resp.Results[1].ID != "b#0" {
		t.Errorf("results = %+v, store order not preserved", resp.Results)
	}
}

func TestSearchExplicitZeroDisablesFloor(t *testing.T) {
	store := &fakeStore{matches: []vectorstore.Match{
		match("a#0", 0.9),
		match("b#0", 0.1),
	}}
	svc := New(store, &fakeEmbedder{})

	resp, err := svc.Search(context.Background(), Request{Query: "q", MinScore: f64(0)})
	if err != nil {
		t.Fatalf("Search() err = %v", err)
	}
	if resp.TotalResults != 2 {
		t.Errorf("TotalResults = %d, want all matches with floor disabled", resp.TotalResults)
	}
}

func TestSearchCustomFloorTrimsTail(t *testing.T) {
	store := &fakeStore{matches: []vectorstore.Match{
		match("a#0", 0.9),
		match("b#0", 0.8),
		match("c#0", 0.7),
	}}
	svc := New(store, &fakeEmbedder{})

	resp, err := svc.Search(context.Background(), Request{Query: "q", MinScore: f64(0.85)})
	if err != nil {
		t.Fatalf("Search() err = %v", err)
	}
	if resp.TotalResults != 1 || resp.Results[0].ID != "a#0" {
		t.Errorf("results = %+v, want only a#0", resp.Results)
	}
}

func TestSearchPassesTopKAndFilter(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, &fakeEmbedder{})

	eq, err := filter.NewEq("source", "IASB")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Search(context.Background(), Request{Query: "q", TopK: 7, Filter: eq}); err != nil {
		t.Fatalf("Search() err = %v", err)
	}
	if store.lastTopK != 7 {
		t.Errorf("store got topK = %d, want 7", store.lastTopK)
	}
	if store.lastF == nil {
		t.Errorf("filter not forwarded to store")
	}
}

func TestSearchEmbedsOnce(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc := New(&fakeStore{}, embedder)

	if _, err := svc.Search(context.Background(), Request{Query: "q"}); err != nil {
		t.Fatal(err)
	}
	if embedder.calls != 1 {
		t.Errorf("embedder called %d times, want 1", embedder.calls)
	}
}

func TestSearchPropagatesProviderError(t *testing.T) {
	svc := New(&fakeStore{}, &fakeEmbedder{err: domain.ErrEmbeddingProviderError})
	if _, err := svc.Search(context.Background(), Request{Query: "q"}); !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("Search() err = %v, want ErrEmbeddingProviderError", err)
	}
}

func TestTopMatchesAppliesDefaultFloor(t *testing.T) {
	store := &fakeStore{matches: []vectorstore.Match{
		match("a#0", 0.9),
		match("b#0", 0.3),
	}}
	svc := New(store, &fakeEmbedder{})

	matches, err := svc.TopMatches(context.Background(), "q", 5, nil, nil)
	if err != nil {
		t.Fatalf("TopMatches() err = %v", err)
	}
	if len(matches) != 1 || matches[0].Record.ID != "a#0" {
		t.Errorf("matches = %+v, want only a#0 above the 0.5 floor", matches)
	}
}

func TestTopMatchesCustomFloor(t *testing.T) {
	store := &fakeStore{matches: []vectorstore.Match{
		match("a#0", 0.9),
		match("b#0", 0.7),
	}}
	svc := New(store, &fakeEmbedder{})

	matches, err := svc.TopMatches(context.Background(), "q", 5, f64(0.8), nil)
	if err != nil {
		t.Fatalf("TopMatches() err = %v", err)
	}
	if len(matches) != 1 || matches[0].Record.ID != "a#0" {
		t.Errorf("matches = %+v, want only a#0 above 0.8", matches)
	}
}

func TestTopMatchesExplicitZeroDisablesFloor(t *testing.T) {
	store := &fakeStore{matches: []vectorstore.Match{
		match("a#0", 0.05),
	}}
	svc := New(store, &fakeEmbedder{})

	matches, err := svc.TopMatches(context.Background(), "q", 5, f64(0), nil)
	if err != nil {
		t.Fatalf("TopMatches() err = %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("matches = %+v, want the low score kept with floor disabled", matches)
	}
}
