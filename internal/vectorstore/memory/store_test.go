package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/filter"
	"github.com/norma-cloud/knowdex/internal/vectorstore"
)

func newConnected(t *testing.T, dim int) *Store {
	t.Helper()
	s := New(dim)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() err = %v", err)
	}
	return s
}

func rec(id string, vector []float32, source string) domain.VectorRecord {
	return domain.VectorRecord{
		ID:     id,
		Vector: vector,
		Meta: domain.RecordMetadata{
			DocumentID: docIDOf(id),
			Source:     source,
			Title:      "title " + id,
		},
	}
}

// docIDOf strips the chunk index from a "doc#n" record id.
func docIDOf(id string) string {
	for i := range id {
		if id[i] == '#' {
			return id[:i]
		}
	}
	return id
}

func mustEq(t *testing.T, key, value string) filter.Filter {
	t.Helper()
	f, err := filter.NewEq(key, value)
	if err != nil {
		t.Fatalf("NewEq(%q, %q) err = %v", key, value, err)
	}
	return f
}

func TestOperationsRequireConnect(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	if err := s.Insert(ctx, rec("a#0", []float32{1, 0}, "x")); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Insert err = %v, want ErrNotConnected", err)
	}
	if _, err := s.Search(ctx, []float32{1, 0}, 5, nil); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Search err = %v, want ErrNotConnected", err)
	}
	if _, err := s.Get(ctx, "a#0"); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Get err = %v, want ErrNotConnected", err)
	}
}

func TestConnectRejectsBadDimension(t *testing.T) {
	if err := New(0).Connect(context.Background()); !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("Connect() err = %v, want ErrVectorDimMismatch", err)
	}
}

func TestInsertAndGet(t *testing.T) {
	s := newConnected(t, 2)
	ctx := context.Background()

	if err := s.Insert(ctx, rec("a#0", []float32{1, 0}, "IASB")); err != nil {
		t.Fatalf("Insert() err = %v", err)
	}

	got, err := s.Get(ctx, "a#0")
	if err != nil {
		t.Fatalf("Get() err = %v", err)
	}
	if got.Meta.Source != "IASB" {
		t.Errorf("source = %q, want IASB", got.Meta.Source)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrRecordNotFound", err)
	}
}

func TestInsertRejectsWrongDimension(t *testing.T) {
	s := newConnected(t, 2)
	err := s.Insert(context.Background(), rec("a#0", []float32{1, 0, 0}, "x"))
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("Insert() err = %v, want ErrVectorDimMismatch", err)
	}
}

func TestInsertBatchValidatesBeforeWriting(t *testing.T) {
	s := newConnected(t, 2)
	ctx := context.Background()

	recs := []domain.VectorRecord{
		rec("a#0", []float32{1, 0}, "x"),
		rec("a#1", []float32{1, 0, 0}, "x"), // wrong dimension
	}

	stored, err := s.InsertBatch(ctx, recs)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("InsertBatch() err = %v, want ErrVectorDimMismatch", err)
	}
	if stored != 0 {
		t.Errorf("stored = %d, want 0", stored)
	}
	if _, err := s.Get(ctx, "a#0"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("valid record was written despite batch failure")
	}
}

func TestInsertBatchSplitsLargeInputs(t *testing.T) {
	s := newConnected(t, 2)
	ctx := context.Background()

	recs := make([]domain.VectorRecord, vectorstore.BatchSize+7)
	for i := range recs {
		recs[i] = rec(fmt.Sprintf("doc#%d", i), []float32{1, 0}, "x")
	}

	stored, err := s.InsertBatch(ctx, recs)
	if err != nil {
		t.Fatalf("InsertBatch() err = %v", err)
	}
	if stored != len(recs) {
		t.Errorf("stored = %d, want %d", stored, len(recs))
	}
}

func TestSearchRanksByCosine(t *testing.T) {
	s := newConnected(t, 2)
	ctx := context.Background()

	inserts := []domain.VectorRecord{
		rec("far#0", []float32{0, 1}, "x"),
		rec("close#0", []float32{0.9, 0.1}, "x"),
		rec("exact#0", []float32{1, 0}, "x"),
	}
	for _, r := range inserts {
		if err := s.Insert(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := s.Search(ctx, []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatalf("Search() err = %v", err)
	}

	wantOrder := []string{"exact#0", "close#0", "far#0"}
	if len(matches) != len(wantOrder) {
		t.Fatalf("got %d matches, want %d", len(matches), len(wantOrder))
	}
	for i, want := range wantOrder {
		if matches[i].Record.ID != want {
			t.Errorf("matches[%d] = %s, want %s", i, matches[i].Record.ID, want)
		}
	}
	if matches[0].Score < matches[1].Score || matches[1].Score < matches[2].Score {
		t.Errorf("scores not descending: %v %v %v",
			matches[0].Score, matches[1].Score, matches[2].Score)
	}
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	s := newConnected(t, 2)
	ctx := context.Background()

	// Same vector, so identical scores; insertion order must survive.
	for _, id := range []string{"first#0", "second#0", "third#0"} {
		if err := s.Insert(ctx, rec(id, []float32{1, 1}, "x")); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := s.Search(ctx, []float32{1, 1}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"first#0", "second#0", "third#0"} {
		if matches[i].Record.ID != want {
			t.Errorf("matches[%d] = %s, want %s", i, matches[i].Record.ID, want)
		}
	}
}

func TestSearchAppliesFilterBeforeTopK(t *testing.T) {
	s := newConnected(t, 2)
	ctx := context.Background()

	// The best-scoring records belong to the wrong source. With the filter
	// applied first, topK must come from the surviving records only.
	if err := s.Insert(ctx, rec("best#0", []float32{1, 0}, "other")); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, rec("kept#0", []float32{0.5, 0.5}, "IASB")); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, rec("kept#1", []float32{0.1, 0.9}, "IASB")); err != nil {
		t.Fatal(err)
	}

	matches, err := s.Search(ctx, []float32{1, 0}, 1, mustEq(t, domain.FieldSource, "IASB"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Record.ID != "kept#0" {
		t.Fatalf("matches = %+v, want single kept#0", matches)
	}
}

func TestSearchTopKDefaultsAndCuts(t *testing.T) {
	s := newConnected(t, 2)
	ctx := context.Background()

	for i := 0; i < vectorstore.DefaultTopK+5; i++ {
		if err := s.Insert(ctx, rec(fmt.Sprintf("d#%d", i), []float32{1, 0}, "x")); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := s.Search(ctx, []float32{1, 0}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != vectorstore.DefaultTopK {
		t.Errorf("topK<=0 returned %d matches, want %d", len(matches), vectorstore.DefaultTopK)
	}

	matches, err = s.Search(ctx, []float32{1, 0}, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 3 {
		t.Errorf("topK=3 returned %d matches", len(matches))
	}
}

func TestSearchRejectsWrongQueryDimension(t *testing.T) {
	s := newConnected(t, 2)
	if _, err := s.Search(context.Background(), []float32{1, 0, 0}, 5, nil); !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("Search() err = %v, want ErrVectorDimMismatch", err)
	}
}

func TestDeleteIgnoresUnknownIDs(t *testing.T) {
	s := newConnected(t, 2)
	ctx := context.Background()

	if err := s.Insert(ctx, rec("a#0", []float32{1, 0}, "x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, []string{"a#0", "never-existed"}); err != nil {
		t.Fatalf("Delete() err = %v", err)
	}
	if _, err := s.Get(ctx, "a#0"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("record survived delete")
	}
}

func TestDeleteAndCountByDocument(t *testing.T) {
	s := newConnected(t, 2)
	ctx := context.Background()

	for _, id := range []string{"doc-a#0", "doc-a#1", "doc-b#0"} {
		if err := s.Insert(ctx, rec(id, []float32{1, 0}, "x")); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.CountByDocument(ctx, "doc-a")
	if err != nil || n != 2 {
		t.Fatalf("CountByDocument(doc-a) = %d, %v, want 2", n, err)
	}

	removed, err := s.DeleteByDocument(ctx, "doc-a")
	if err != nil || removed != 2 {
		t.Fatalf("DeleteByDocument(doc-a) = %d, %v, want 2", removed, err)
	}

	n, err = s.CountByDocument(ctx, "doc-a")
	if err != nil || n != 0 {
		t.Errorf("CountByDocument after delete = %d, %v", n, err)
	}
	n, err = s.CountByDocument(ctx, "doc-b")
	if err != nil || n != 1 {
		t.Errorf("CountByDocument(doc-b) = %d, %v, want 1", n, err)
	}
}

func TestInsertReplacesExistingRecord(t *testing.T) {
	s := newConnected(t, 2)
	ctx := context.Background()

	if err := s.Insert(ctx, rec("a#0", []float32{1, 0}, "old")); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, rec("a#0", []float32{0, 1}, "new")); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "a#0")
	if err != nil {
		t.Fatal(err)
	}
	if got.Meta.Source != "new" {
		t.Errorf("source = %q, want new", got.Meta.Source)
	}
	n, _ := s.CountByDocument(ctx, "a")
	if n != 1 {
		t.Errorf("count = %d after replace, want 1", n)
	}
}
