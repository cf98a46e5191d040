package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/norma-cloud/knowdex/internal/db"
	dbredis "github.com/norma-cloud/knowdex/internal/db/redis"
	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/filter"
	"github.com/norma-cloud/knowdex/internal/vectorstore"
)

type fakeDB struct {
	pingErr     error
	indexExists bool
	createErr   error
	created     *db.IndexDefinition
	notReady    int // IndexReady reports false this many times first

	hsetKeys     []string
	hashes       map[string]map[string]string
	multiBatches [][]db.HashSetItem
	multiFailAt  int // 1-based batch index that fails, 0 never
	delKeys      [][]string

	knnResult *db.SearchResult
	knnErr    error
	lastKNN   *db.KNNQuery
	listPages []*db.SearchResult
	listCalls int
	count     int
}

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

func (f *fakeDB) IndexExists(context.Context, string) (bool, error) {
	return f.indexExists, nil
}

func (f *fakeDB) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	f.created = def
	return f.createErr
}

func (f *fakeDB) DropIndex(context.Context, string) error { return nil }

func (f *fakeDB) IndexReady(context.Context, string) (bool, error) {
	if f.notReady > 0 {
		f.notReady--
		return false, nil
	}
	return true, nil
}

func (f *fakeDB) HSet(_ context.Context, key string, fields map[string]string) error {
	f.hsetKeys = append(f.hsetKeys, key)
	if f.hashes == nil {
		f.hashes = make(map[string]map[string]string)
	}
	f.hashes[key] = fields
	return nil
}

func (f *fakeDB) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	f.multiBatches = append(f.multiBatches, items)
	if f.multiFailAt > 0 && len(f.multiBatches) == f.multiFailAt {
		return errors.New("connection reset")
	}
	return nil
}

func (f *fakeDB) HGetAll(_ context.Context, key string) (map[string]string, error) {
	return f.hashes[key], nil
}

func (f *fakeDB) Del(_ context.Context, keys ...string) error {
	f.delKeys = append(f.delKeys, keys)
	return nil
}

func (f *fakeDB) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.hashes[key]
	return ok, nil
}

func (f *fakeDB) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	f.lastKNN = q
	if f.knnErr != nil {
		return nil, f.knnErr
	}
	if f.knnResult == nil {
		return &db.SearchResult{}, nil
	}
	return f.knnResult, nil
}

func (f *fakeDB) SearchList(
	_ context.Context, _, _ string, _, _ int, _ []string,
) (*db.SearchResult, error) {
	if f.listCalls >= len(f.listPages) {
		return &db.SearchResult{}, nil
	}
	page := f.listPages[f.listCalls]
	f.listCalls++
	return page, nil
}

func (f *fakeDB) SearchCount(context.Context, string, string) (int, error) {
	return f.count, nil
}

func newConnected(t *testing.T, fake *fakeDB, dim int) *Store {
	t.Helper()
	fake.indexExists = true
	s := New(fake, dim)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s
}

func rec(id string, vec []float32) domain.VectorRecord {
	return domain.VectorRecord{
		ID:     id,
		Vector: vec,
		Meta: domain.RecordMetadata{
			Text:       "text of " + id,
			DocumentID: "doc-1",
			Source:     "IASB",
		},
	}
}

func TestConnectCreatesIndexWhenAbsent(t *testing.T) {
	fake := &fakeDB{}
	s := New(fake, 4)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !s.IsConnected() {
		t.Error("expected connected")
	}
	if fake.created == nil {
		t.Fatal("expected index creation")
	}
	if fake.created.Name != IndexName {
		t.Errorf("unexpected index name %q", fake.created.Name)
	}
	if fake.created.Fields[0].VectorDim != 4 {
		t.Errorf("unexpected vector dim %d", fake.created.Fields[0].VectorDim)
	}
}

func TestConnectToleratesConcurrentCreate(t *testing.T) {
	// Another instance can win the FT.CREATE race between our existence
	// check and our create.
	fake := &fakeDB{createErr: db.ErrIndexExists}
	s := New(fake, 4)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !s.IsConnected() {
		t.Error("expected connected")
	}
}

func TestConnectPingFailure(t *testing.T) {
	fake := &fakeDB{pingErr: errors.New("refused")}
	s := New(fake, 4)

	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if s.IsConnected() {
		t.Error("expected disconnected")
	}
}

func TestConnectRejectsBadDimension(t *testing.T) {
	s := New(&fakeDB{}, 0)
	err := s.Connect(context.Background())
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestConnectWaitsForIndexReady(t *testing.T) {
	fake := &fakeDB{indexExists: true, notReady: 1}
	s := New(fake, 4).WithReadyTimeout(2 * time.Second)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !s.IsConnected() {
		t.Error("expected connected")
	}
}

func TestOperationsRequireConnect(t *testing.T) {
	s := New(&fakeDB{}, 4)
	ctx := context.Background()

	if err := s.Insert(ctx, rec("a", []float32{1, 0, 0, 0})); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Insert: expected ErrNotConnected, got %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Get: expected ErrNotConnected, got %v", err)
	}
	if _, err := s.Search(ctx, []float32{1, 0, 0, 0}, 5, nil); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Search: expected ErrNotConnected, got %v", err)
	}
	if _, err := s.DeleteByDocument(ctx, "doc-1"); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("DeleteByDocument: expected ErrNotConnected, got %v", err)
	}
}

func TestInsertWritesPrefixedHash(t *testing.T) {
	fake := &fakeDB{}
	s := newConnected(t, fake, 4)

	if err := s.Insert(context.Background(), rec("doc-1#0", []float32{1, 0, 0, 0})); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(fake.hsetKeys) != 1 || fake.hsetKeys[0] != KeyPrefix+"doc-1#0" {
		t.Fatalf("unexpected keys: %v", fake.hsetKeys)
	}
	fields := fake.hashes[KeyPrefix+"doc-1#0"]
	if fields["vector"] != dbredis.VectorToBytes([]float32{1, 0, 0, 0}) {
		t.Error("vector bytes mismatch")
	}
	if fields[domain.FieldDocumentID] != "doc-1" {
		t.Errorf("unexpected fields: %v", fields)
	}
}

func TestInsertValidatesBeforeWrite(t *testing.T) {
	fake := &fakeDB{}
	s := newConnected(t, fake, 4)

	err := s.Insert(context.Background(), rec("bad", []float32{1, 0}))
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	if len(fake.hsetKeys) != 0 {
		t.Error("store must not be written on validation failure")
	}
}

func TestInsertBatchSplitsIntoPipelines(t *testing.T) {
	fake := &fakeDB{}
	s := newConnected(t, fake, 4)

	recs := make([]domain.VectorRecord, vectorstore.BatchSize+3)
	for i := range recs {
		recs[i] = rec(fmt.Sprintf("doc-1#%d", i), []float32{1, 0, 0, 0})
	}

	stored, err := s.InsertBatch(context.Background(), recs)
	if err != nil {
		t.Fatalf("insert batch: %v", err)
	}
	if stored != len(recs) {
		t.Errorf("stored = %d, want %d", stored, len(recs))
	}
	if len(fake.multiBatches) != 2 {
		t.Fatalf("expected 2 pipelines, got %d", len(fake.multiBatches))
	}
	if len(fake.multiBatches[0]) != vectorstore.BatchSize || len(fake.multiBatches[1]) != 3 {
		t.Errorf("unexpected batch sizes: %d, %d",
			len(fake.multiBatches[0]), len(fake.multiBatches[1]))
	}
}

func TestInsertBatchReportsPartialWrite(t *testing.T) {
	fake := &fakeDB{multiFailAt: 2}
	s := newConnected(t, fake, 4)

	recs := make([]domain.VectorRecord, vectorstore.BatchSize+3)
	for i := range recs {
		recs[i] = rec(fmt.Sprintf("doc-1#%d", i), []float32{1, 0, 0, 0})
	}

	stored, err := s.InsertBatch(context.Background(), recs)
	if err == nil {
		t.Fatal("expected error")
	}
	if stored != vectorstore.BatchSize {
		t.Errorf("stored = %d, want %d", stored, vectorstore.BatchSize)
	}
}

func TestGetMissingRecord(t *testing.T) {
	s := newConnected(t, &fakeDB{}, 4)

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestGetRoundTrip(t *testing.T) {
	fake := &fakeDB{}
	s := newConnected(t, fake, 4)

	in := rec("doc-1#0", []float32{0.5, 0.25, 0, 1})
	in.Meta.Title = "IFRS 15"
	in.Meta.Priority = domain.PriorityHigh
	in.Meta.TrustedSource = true
	in.Meta.PublishDate = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Insert(context.Background(), in); err != nil {
		t.Fatalf("insert: %v", err)
	}
	out, err := s.Get(context.Background(), "doc-1#0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if out.ID != in.ID {
		t.Errorf("id = %q, want %q", out.ID, in.ID)
	}
	if len(out.Vector) != 4 || out.Vector[0] != 0.5 || out.Vector[3] != 1 {
		t.Errorf("vector mismatch: %v", out.Vector)
	}
	if out.Meta.Title != "IFRS 15" || out.Meta.Priority != domain.PriorityHigh {
		t.Errorf("metadata mismatch: %+v", out.Meta)
	}
	if !out.Meta.TrustedSource {
		t.Error("trusted flag lost")
	}
	if !out.Meta.PublishDate.Equal(in.Meta.PublishDate) {
		t.Errorf("publish date = %v, want %v", out.Meta.PublishDate, in.Meta.PublishDate)
	}
}

func TestSearchMapsEntries(t *testing.T) {
	fake := &fakeDB{
		knnResult: &db.SearchResult{
			Total: 1,
			Entries: []db.SearchEntry{{
				Key:   KeyPrefix + "doc-1#0",
				Score: 0.9,
				Fields: map[string]string{
					domain.FieldText:       "revenue recognition",
					domain.FieldDocumentID: "doc-1",
				},
			}},
		},
	}
	s := newConnected(t, fake, 4)

	matches, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 5, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	m := matches[0]
	if m.Record.ID != "doc-1#0" {
		t.Errorf("key prefix not trimmed: %q", m.Record.ID)
	}
	if m.Score != 0.9 {
		t.Errorf("score = %f, want 0.9", m.Score)
	}
	if m.Record.Meta.Text != "revenue recognition" {
		t.Errorf("metadata mismatch: %+v", m.Record.Meta)
	}
}

func TestSearchPassesFilterAndTopK(t *testing.T) {
	fake := &fakeDB{}
	s := newConnected(t, fake, 4)

	eq, err := filter.NewEq(domain.FieldSource, "IASB")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 7, eq); err != nil {
		t.Fatalf("search: %v", err)
	}
	if fake.lastKNN.K != 7 {
		t.Errorf("k = %d, want 7", fake.lastKNN.K)
	}
	if fake.lastKNN.Filter == nil {
		t.Error("filter not forwarded")
	}
	if fake.lastKNN.IndexName != IndexName {
		t.Errorf("index = %q", fake.lastKNN.IndexName)
	}
}

func TestSearchTopKDefault(t *testing.T) {
	fake := &fakeDB{}
	s := newConnected(t, fake, 4)

	if _, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 0, nil); err != nil {
		t.Fatalf("search: %v", err)
	}
	if fake.lastKNN.K != vectorstore.DefaultTopK {
		t.Errorf("k = %d, want %d", fake.lastKNN.K, vectorstore.DefaultTopK)
	}
}

func TestSearchRejectsWrongQueryDimension(t *testing.T) {
	s := newConnected(t, &fakeDB{}, 4)

	_, err := s.Search(context.Background(), []float32{1, 0}, 5, nil)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestDeleteByDocumentPages(t *testing.T) {
	fake := &fakeDB{
		listPages: []*db.SearchResult{
			{Total: 3, Entries: []db.SearchEntry{
				{Key: KeyPrefix + "doc-1#0"},
				{Key: KeyPrefix + "doc-1#1"},
			}},
			{Total: 1, Entries: []db.SearchEntry{
				{Key: KeyPrefix + "doc-1#2"},
			}},
		},
	}
	s := newConnected(t, fake, 4)

	removed, err := s.DeleteByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("delete by document: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	if len(fake.delKeys) != 2 {
		t.Fatalf("expected 2 DEL calls, got %d", len(fake.delKeys))
	}
	if fake.delKeys[0][0] != KeyPrefix+"doc-1#0" {
		t.Errorf("unexpected deleted keys: %v", fake.delKeys)
	}
}

func TestCountByDocument(t *testing.T) {
	fake := &fakeDB{count: 7}
	s := newConnected(t, fake, 4)

	n, err := s.CountByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 7 {
		t.Errorf("count = %d, want 7", n)
	}
}

func TestRecordFieldsOmitEmptyOptionals(t *testing.T) {
	r := rec("doc-1#0", []float32{1, 0, 0, 0})
	fields := recordToFields(&r)

	for _, key := range []string{domain.FieldSection, domain.FieldURL, domain.FieldVersion, domain.FieldScope, domain.FieldPublishDate} {
		if _, ok := fields[key]; ok {
			t.Errorf("empty optional %q should be omitted", key)
		}
	}
}

func TestTrimKey(t *testing.T) {
	if got := trimKey(KeyPrefix + "doc-1#0"); got != "doc-1#0" {
		t.Errorf("trimKey = %q", got)
	}
	if got := trimKey("unprefixed"); got != "unprefixed" {
		t.Errorf("trimKey passthrough = %q", got)
	}
}
