package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/norma-cloud/knowdex/internal/chunker"
	"github.com/norma-cloud/knowdex/internal/domain"
)

type fakeStore struct {
	inserted []domain.VectorRecord
	ops      []string

	existingCount int
	insertErr     error
	deletedCount  int
	deleteErr     error
}

func (f *fakeStore) InsertBatch(_ context.Context, recs []domain.VectorRecord) (int, error) {
	f.ops = append(f.ops, "insert")
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.inserted = append(f.inserted, recs...)
	return len(recs), nil
}

func (f *fakeStore) DeleteByDocument(_ context.Context, _ string) (int, error) {
	f.ops = append(f.ops, "delete")
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return f.deletedCount, nil
}

func (f *fakeStore) CountByDocument(_ context.Context, _ string) (int, error) {
	f.ops = append(f.ops, "count")
	return f.existingCount, nil
}

type fakeEmbedder struct {
	calls      int
	batchSizes []int
	err        error
	short      bool
}

func (f *fakeEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	f.calls++
	f.batchSizes = append(f.batchSizes, len(texts))
	if f.err != nil {
		return domain.BatchEmbeddingResult{}, f.err
	}
	n := len(texts)
	if f.short && n > 0 {
		n--
	}
	embeddings := make([][]float32, n)
	for i := range embeddings {
		embeddings[i] = []float32{1, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
}

func newService(t *testing.T, store *fakeStore, embedder *fakeEmbedder) *Service {
	t.Helper()
	ch, err := chunker.New(20, 5)
	if err != nil {
		t.Fatalf("chunker.New() err = %v", err)
	}
	return New(store, embedder, ch)
}

func validDoc() Document {
	return Document{
		Metadata: domain.DocumentMetadata{
			DocumentID: "ifrs-15",
			Title:      "IFRS 15 Revenue",
			Source:     "IASB",
			SourceURL:  "https://example.org/ifrs15",
		},
		Text: "Revenue is recognised when control of goods or services transfers to the customer.",
	}
}

func TestIngestReportsAllViolations(t *testing.T) {
	store := &fakeStore{}
	svc := newService(t, store, &fakeEmbedder{})

	_, err := svc.Ingest(context.Background(), Document{Text: "some text"}, Options{})
	if !errors.Is(err, domain.ErrInvalidMetadata) {
		t.Fatalf("Ingest() err = %v, want ErrInvalidMetadata", err)
	}

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err is %T, want *ValidationError", err)
	}
	if len(verr.Violations) != 3 {
		t.Errorf("violations = %v, want documentId, title and source", verr.Violations)
	}
	if len(store.ops) != 0 {
		t.Errorf("store touched on invalid metadata: %v", store.ops)
	}
}

func TestIngestStoresChunks(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{}
	svc := newService(t, store, embedder)

	res, err := svc.Ingest(context.Background(), validDoc(), Options{})
	if err != nil {
		t.Fatalf("Ingest() err = %v", err)
	}
	if res.DocumentID != "ifrs-15" || res.Skipped {
		t.Errorf("result = %+v", res)
	}
	if res.ChunksStored == 0 || res.ChunksStored != len(store.inserted) {
		t.Fatalf("ChunksStored = %d, inserted = %d", res.ChunksStored, len(store.inserted))
	}

	first := store.inserted[0]
	if first.ID != "ifrs-15#0" {
		t.Errorf("first record id = %s", first.ID)
	}
	if first.Meta.DocumentID != "ifrs-15" || first.Meta.ChunkIndex != 0 {
		t.Errorf("meta = %+v", first.Meta)
	}
	if first.Meta.URL != "https://example.org/ifrs15" {
		t.Errorf("url fallback = %q, want sourceUrl", first.Meta.URL)
	}
	if first.Meta.Language != "en" || first.Meta.Priority != domain.PriorityMedium || first.Meta.DocumentType != domain.TypeOther {
		t.Errorf("defaults not normalized: %+v", first.Meta)
	}
	if first.Meta.CreatedAt.IsZero() || first.Meta.UpdatedAt.IsZero() {
		t.Errorf("timestamps not set")
	}
}

func TestIngestSkipExisting(t *testing.T) {
	store := &fakeStore{existingCount: 4}
	embedder := &fakeEmbedder{}
	svc := newService(t, store, embedder)

	res, err := svc.Ingest(context.Background(), validDoc(), Options{SkipExisting: true})
	if err != nil {
		t.Fatalf("Ingest() err = %v", err)
	}
	if !res.Skipped || res.ChunksStored != 0 {
		t.Errorf("result = %+v, want skipped no-op", res)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder called %d times on skip", embedder.calls)
	}
	if len(store.inserted) != 0 {
		t.Errorf("records inserted on skip")
	}
}

func TestIngestSkipExistingNewDocument(t *testing.T) {
	store := &fakeStore{existingCount: 0}
	svc := newService(t, store, &fakeEmbedder{})

	res, err := svc.Ingest(context.Background(), validDoc(), Options{SkipExisting: true})
	if err != nil {
		t.Fatalf("Ingest() err = %v", err)
	}
	if res.Skipped || res.ChunksStored == 0 {
		t.Errorf("result = %+v, want stored", res)
	}
}

func TestIngestEmptyText(t *testing.T) {
	svc := newService(t, &fakeStore{}, &fakeEmbedder{})

	doc := validDoc()
	doc.Text = "   \n\t  "
	_, err := svc.Ingest(context.Background(), doc, Options{})
	if !errors.Is(err, domain.ErrInvalidMetadata) {
		t.Fatalf("Ingest() err = %v, want validation error", err)
	}
	if !strings.Contains(err.Error(), "empty") {
		t.Errorf("err = %v, want empty-text violation", err)
	}
}

func TestIngestEmbedsInBatches(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{}
	svc := newService(t, store, embedder).WithEmbedBatchSize(2)

	doc := validDoc()
	doc.Text = strings.Repeat("compliance evidence retention policy ", 10)

	res, err := svc.Ingest(context.Background(), doc, Options{})
	if err != nil {
		t.Fatalf("Ingest() err = %v", err)
	}
	if res.ChunksStored < 3 {
		t.Fatalf("ChunksStored = %d, want enough chunks to force batching", res.ChunksStored)
	}

	for i, size := range embedder.batchSizes {
		if size > 2 {
			t.Errorf("embed call %d got %d texts, batch size is 2", i, size)
		}
	}
	if embedder.calls != (res.ChunksStored+1)/2 {
		t.Errorf("embedder calls = %d for %d chunks", embedder.calls, res.ChunksStored)
	}
}

func TestIngestShortEmbeddingResponse(t *testing.T) {
	store := &fakeStore{}
	svc := newService(t, store, &fakeEmbedder{short: true})

	_, err := svc.Ingest(context.Background(), validDoc(), Options{})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("Ingest() err = %v, want ErrEmbeddingProviderError", err)
	}
	if len(store.inserted) != 0 {
		t.Errorf("records stored despite short embedding response")
	}
}

func TestUpdateDeletesBeforeInserting(t *testing.T) {
	store := &fakeStore{deletedCount: 3}
	svc := newService(t, store, &fakeEmbedder{})

	res, err := svc.Update(context.Background(), validDoc())
	if err != nil {
		t.Fatalf("Update() err = %v", err)
	}
	if res.ChunksStored == 0 {
		t.Errorf("no chunks stored on update")
	}

	if len(store.ops) < 2 || store.ops[0] != "delete" {
		t.Errorf("ops = %v, want delete first", store.ops)
	}
	for _, op := range store.ops[1:] {
		if op == "delete" {
			t.Errorf("delete after insert: %v", store.ops)
		}
	}
}

func TestDelete(t *testing.T) {
	store := &fakeStore{deletedCount: 5}
	svc := newService(t, store, &fakeEmbedder{})

	removed, err := svc.Delete(context.Background(), "ifrs-15")
	if err != nil {
		t.Fatalf("Delete() err = %v", err)
	}
	if removed != 5 {
		t.Errorf("removed = %d, want 5", removed)
	}
}

func TestDeleteUnknownDocument(t *testing.T) {
	svc := newService(t, &fakeStore{deletedCount: 0}, &fakeEmbedder{})

	if _, err := svc.Delete(context.Background(), "missing"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("Delete() err = %v, want ErrDocumentNotFound", err)
	}
}

func TestIngestBatchIsolatesFailures(t *testing.T) {
	store := &fakeStore{}
	svc := newService(t, store, &fakeEmbedder{})

	bad := Document{Text: "text without metadata"}
	docs := []Document{validDoc(), bad, func() Document {
		d := validDoc()
		d.Metadata.DocumentID = "ifrs-16"
		return d
	}()}

	results := svc.IngestBatch(context.Background(), docs, Options{})
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("valid documents failed: %v, %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, domain.ErrInvalidMetadata) {
		t.Errorf("results[1].Err = %v, want ErrInvalidMetadata", results[1].Err)
	}
	if results[2].Result.ChunksStored == 0 {
		t.Errorf("document after the failure was not ingested")
	}
}
