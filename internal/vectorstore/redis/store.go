// Package redis adapts the Redis FT vector index to the vectorstore.Store
// contract. This is the production backend: the index is created lazily on
// first Connect and writes are blocked until the engine reports it ready.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/norma-cloud/knowdex/internal/db"
	dbredis "github.com/norma-cloud/knowdex/internal/db/redis"
	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/filter"
	"github.com/norma-cloud/knowdex/internal/vectorstore"
)

// KeyPrefix namespaces every chunk hash key.
const KeyPrefix = "knowdex:chunk:"

// IndexName is the FT index over chunk hashes.
const IndexName = "knowdex:chunk:idx"

const readyPollInterval = 200 * time.Millisecond

// Compile-time check: Store implements vectorstore.Store.
var _ vectorstore.Store = (*Store)(nil)

// store is the consumer interface over the db facade.
type store interface {
	db.Pinger
	db.HashStore
	db.IndexManager
	db.Searcher
}

// Store implements vectorstore.Store on top of a Redis FT index.
type Store struct {
	db           store
	dimension    int
	readyTimeout time.Duration
	connected    bool
}

// New creates a Redis-backed vector store for vectors of the given dimension.
func New(dbStore store, dimension int) *Store {
	return &Store{
		db:           dbStore,
		dimension:    dimension,
		readyTimeout: 30 * time.Second,
	}
}

// WithReadyTimeout configures how long Connect waits for the index.
func (s *Store) WithReadyTimeout(d time.Duration) *Store {
	if d > 0 {
		s.readyTimeout = d
	}
	return s
}

// Connect verifies connectivity, creates the FT index if absent, and blocks
// until the index reports ready.
func (s *Store) Connect(ctx context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("dimension %d: %w", s.dimension, domain.ErrVectorDimMismatch)
	}
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	exists, err := s.db.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if !exists {
		if err := s.db.CreateIndex(ctx, indexDefinition(s.dimension)); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("create index: %w", err)
		}
	}

	if err := s.waitIndexReady(ctx); err != nil {
		return err
	}

	s.connected = true
	return nil
}

// waitIndexReady polls FT.INFO until background indexing completes.
func (s *Store) waitIndexReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.readyTimeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		ready, err := s.db.IndexReady(ctx, IndexName)
		if err != nil {
			return fmt.Errorf("index readiness: %w", err)
		}
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for index: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close marks the store disconnected. The underlying client is owned by the
// composition root and closed there.
func (s *Store) Close(_ context.Context) error {
	s.connected = false
	return nil
}

// IsConnected reports whether Connect completed.
func (s *Store) IsConnected() bool { return s.connected }

// Insert stores one record as a hash under the chunk key prefix.
func (s *Store) Insert(ctx context.Context, rec domain.VectorRecord) error {
	if err := rec.Validate(s.dimension); err != nil {
		return err
	}
	if !s.connected {
		return domain.ErrNotConnected
	}

	if err := s.db.HSet(ctx, recordKey(rec.ID), recordToFields(&rec)); err != nil {
		return fmt.Errorf("hset %s: %w", rec.ID, err)
	}
	return nil
}

// InsertBatch writes records in pipelined sub-batches of
// vectorstore.BatchSize. Earlier sub-batches stay applied when a later one
// fails; the returned count says how many records were actually written.
func (s *Store) InsertBatch(ctx context.Context, recs []domain.VectorRecord) (int, error) {
	for i := range recs {
		if err := recs[i].Validate(s.dimension); err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
	}
	if !s.connected {
		return 0, domain.ErrNotConnected
	}

	stored := 0
	for start := 0; start < len(recs); start += vectorstore.BatchSize {
		end := min(start+vectorstore.BatchSize, len(recs))

		items := make([]db.HashSetItem, 0, end-start)
		for i := start; i < end; i++ {
			items = append(items, db.HashSetItem{
				Key:    recordKey(recs[i].ID),
				Fields: recordToFields(&recs[i]),
			})
		}

		if err := s.db.HSetMulti(ctx, items); err != nil {
			return stored, fmt.Errorf("batch [%d:%d]: %w", start, end, err)
		}
		stored += len(items)
	}
	return stored, nil
}

// Get returns a record by id.
func (s *Store) Get(ctx context.Context, id string) (domain.VectorRecord, error) {
	if !s.connected {
		return domain.VectorRecord{}, domain.ErrNotConnected
	}

	fields, err := s.db.HGetAll(ctx, recordKey(id))
	if err != nil {
		return domain.VectorRecord{}, fmt.Errorf("hgetall %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.VectorRecord{}, fmt.Errorf("record %s: %w", id, domain.ErrRecordNotFound)
	}
	return fieldsToRecord(id, fields), nil
}

// Delete removes records by id.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if !s.connected {
		return domain.ErrNotConnected
	}
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}
	if err := s.db.Del(ctx, keys...); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// Search runs a filtered KNN query. The filter is translated to the engine's
// pre-filter, so topK counts post-filter candidates.
func (s *Store) Search(
	ctx context.Context, vector []float32, topK int, f filter.Filter,
) ([]vectorstore.Match, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query vector has %d dims, index expects %d: %w",
			len(vector), s.dimension, domain.ErrVectorDimMismatch)
	}
	if !s.connected {
		return nil, domain.ErrNotConnected
	}
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}

	res, err := s.db.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    IndexName,
		Filter:       f,
		Vector:       vector,
		K:            topK,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	matches := make([]vectorstore.Match, 0, len(res.Entries))
	for _, entry := range res.Entries {
		id := trimKey(entry.Key)
		matches = append(matches, vectorstore.Match{
			Record: fieldsToRecord(id, entry.Fields),
			Score:  entry.Score,
		})
	}
	return matches, nil
}

// DeleteByDocument removes every chunk of a document via an FT tag query.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if !s.connected {
		return 0, domain.ErrNotConnected
	}

	query := dbredis.BuildFilterQuery(mustEq(domain.FieldDocumentID, documentID))
	removed := 0

	// FT.SEARCH is paginated; keys vanish as we delete, so always page 0.
	for {
		res, err := s.db.SearchList(ctx, IndexName, query, 0, vectorstore.BatchSize,
			[]string{domain.FieldDocumentID})
		if err != nil {
			return removed, fmt.Errorf("list document chunks: %w", err)
		}
		if len(res.Entries) == 0 {
			return removed, nil
		}

		keys := make([]string, len(res.Entries))
		for i, e := range res.Entries {
			keys[i] = e.Key
		}
		if err := s.db.Del(ctx, keys...); err != nil {
			return removed, fmt.Errorf("del document chunks: %w", err)
		}
		removed += len(keys)
	}
}

// CountByDocument reports the number of stored chunks for a document.
func (s *Store) CountByDocument(ctx context.Context, documentID string) (int, error) {
	if !s.connected {
		return 0, domain.ErrNotConnected
	}

	query := dbredis.BuildFilterQuery(mustEq(domain.FieldDocumentID, documentID))
	n, err := s.db.SearchCount(ctx, IndexName, query)
	if err != nil {
		return 0, fmt.Errorf("count document chunks: %w", err)
	}
	return n, nil
}

func mustEq(key, value string) filter.Filter {
	f, err := filter.NewEq(key, value)
	if err != nil {
		// Only reachable with an empty document id, which upstream validation
		// rejects.
		panic(err)
	}
	return f
}

func recordKey(id string) string { return KeyPrefix + id }

func trimKey(key string) string {
	if len(key) > len(KeyPrefix) && key[:len(KeyPrefix)] == KeyPrefix {
		return key[len(KeyPrefix):]
	}
	return key
}

func indexDefinition(dimension int) *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:     IndexName,
		Prefixes: []string{KeyPrefix},
		Fields: []db.IndexField{
			{Name: "vector", Type: db.IndexFieldVector, VectorDim: dimension, VectorAlgo: db.VectorHNSW},
			{Name: domain.FieldDocumentID, Type: db.IndexFieldTag},
			{Name: domain.FieldSource, Type: db.IndexFieldTag},
			{Name: domain.FieldDocumentType, Type: db.IndexFieldTag},
			{Name: domain.FieldLanguage, Type: db.IndexFieldTag},
			{Name: domain.FieldPriority, Type: db.IndexFieldTag},
			{Name: domain.FieldScope, Type: db.IndexFieldTag},
			{Name: domain.FieldTrustedSource, Type: db.IndexFieldTag},
			{Name: domain.FieldSection, Type: db.IndexFieldTag},
			{Name: domain.FieldTitle, Type: db.IndexFieldTag},
			{Name: domain.FieldURL, Type: db.IndexFieldTag},
			{Name: domain.FieldVersion, Type: db.IndexFieldTag},
			{Name: domain.FieldChunkIndex, Type: db.IndexFieldNumeric},
			{Name: domain.FieldPublishDate, Type: db.IndexFieldNumeric},
		},
	}
}

// returnFields lists every hash field fetched back on search, vector excluded.
var returnFields = []string{
	domain.FieldText,
	domain.FieldDocumentID,
	domain.FieldChunkIndex,
	domain.FieldSection,
	domain.FieldTitle,
	domain.FieldSource,
	domain.FieldURL,
	domain.FieldDocumentType,
	domain.FieldVersion,
	domain.FieldPublishDate,
	domain.FieldLanguage,
	domain.FieldPriority,
	domain.FieldScope,
	domain.FieldTrustedSource,
	"created_at",
	"updated_at",
}

// recordToFields flattens a record into the hash/index schema. The vector is
// stored as little-endian float32 bytes; dates as unix seconds.
func recordToFields(rec *domain.VectorRecord) map[string]string {
	m := rec.Meta
	fields := map[string]string{
		"vector":                  dbredis.VectorToBytes(rec.Vector),
		domain.FieldText:          m.Text,
		domain.FieldDocumentID:    m.DocumentID,
		domain.FieldChunkIndex:    strconv.Itoa(m.ChunkIndex),
		domain.FieldTitle:         m.Title,
		domain.FieldSource:        m.Source,
		domain.FieldDocumentType:  string(m.DocumentType),
		domain.FieldLanguage:      m.Language,
		domain.FieldPriority:      string(m.Priority),
		domain.FieldTrustedSource: strconv.FormatBool(m.TrustedSource),
	}

	if m.Section != "" {
		fields[domain.FieldSection] = m.Section
	}
	if m.URL != "" {
		fields[domain.FieldURL] = m.URL
	}
	if m.Version != "" {
		fields[domain.FieldVersion] = m.Version
	}
	if m.Scope != "" {
		fields[domain.FieldScope] = m.Scope
	}
	if !m.PublishDate.IsZero() {
		fields[domain.FieldPublishDate] = strconv.FormatInt(m.PublishDate.Unix(), 10)
	}
	if !m.CreatedAt.IsZero() {
		fields["created_at"] = strconv.FormatInt(m.CreatedAt.Unix(), 10)
	}
	if !m.UpdatedAt.IsZero() {
		fields["updated_at"] = strconv.FormatInt(m.UpdatedAt.Unix(), 10)
	}
	return fields
}

// fieldsToRecord rebuilds a record from its hash fields.
func fieldsToRecord(id string, fields map[string]string) domain.VectorRecord {
	meta := domain.RecordMetadata{
		Text:         fields[domain.FieldText],
		DocumentID:   fields[domain.FieldDocumentID],
		Section:      fields[domain.FieldSection],
		Title:        fields[domain.FieldTitle],
		Source:       fields[domain.FieldSource],
		URL:          fields[domain.FieldURL],
		DocumentType: domain.DocumentType(fields[domain.FieldDocumentType]),
		Version:      fields[domain.FieldVersion],
		Language:     fields[domain.FieldLanguage],
		Priority:     domain.Priority(fields[domain.FieldPriority]),
		Scope:        fields[domain.FieldScope],
	}

	if v, err := strconv.Atoi(fields[domain.FieldChunkIndex]); err == nil {
		meta.ChunkIndex = v
	}
	if fields[domain.FieldTrustedSource] == "true" {
		meta.TrustedSource = true
	}
	if ts, err := strconv.ParseInt(fields[domain.FieldPublishDate], 10, 64); err == nil && ts > 0 {
		meta.PublishDate = time.Unix(ts, 0).UTC()
	}
	if ts, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil && ts > 0 {
		meta.CreatedAt = time.Unix(ts, 0).UTC()
	}
	if ts, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil && ts > 0 {
		meta.UpdatedAt = time.Unix(ts, 0).UTC()
	}

	rec := domain.VectorRecord{ID: id, Meta: meta}
	if raw, ok := fields["vector"]; ok {
		rec.Vector = dbredis.BytesToVector(raw)
	}
	return rec
}
