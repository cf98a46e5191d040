// Package ingest implements the document ingestion pipeline: validate,
// chunk, embed, and store.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/logger"
	"github.com/norma-cloud/knowdex/internal/metrics"
)

// DefaultEmbedBatchSize caps how many chunk texts go into one embedding call.
const DefaultEmbedBatchSize = 64

// Document is the ingestion input: metadata plus extracted plain text.
type Document struct {
	Metadata domain.DocumentMetadata
	Text     string
}

// Options control a single ingestion.
type Options struct {
	// SkipExisting makes re-ingestion of an already stored document a no-op
	// success instead of a duplicate write.
	SkipExisting bool
}

// Result reports the outcome of one document ingestion.
type Result struct {
	DocumentID   string
	ChunksStored int
	Skipped      bool
}

// BatchResult pairs a document with its individual outcome. A failed document
// never aborts the rest of the batch.
type BatchResult struct {
	DocumentID string
	Result     Result
	Err        error
}

// Service is the ingestion pipeline.
type Service struct {
	store          Store
	embedder       Embedder
	chunker        Chunker
	embedBatchSize int
	now            func() time.Time
}

// New creates an ingestion service.
func New(store Store, embedder Embedder, chunker Chunker) *Service {
	return &Service{
		store:          store,
		embedder:       embedder,
		chunker:        chunker,
		embedBatchSize: DefaultEmbedBatchSize,
		now:            time.Now,
	}
}

// WithEmbedBatchSize overrides the embedding call batch size.
func (s *Service) WithEmbedBatchSize(n int) *Service {
	if n > 0 {
		s.embedBatchSize = n
	}
	return s
}

// ValidateMetadata normalizes defaults and reports every violation at once.
func (s *Service) ValidateMetadata(meta *domain.DocumentMetadata) error {
	meta.Normalize()
	return meta.Validate()
}

// Ingest validates, chunks, embeds, and stores one document.
func (s *Service) Ingest(ctx context.Context, doc Document, opts Options) (Result, error) {
	meta := doc.Metadata
	meta.Normalize()
	if err := meta.Validate(); err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues("failed").Inc()
		return Result{}, err
	}

	if opts.SkipExisting {
		count, err := s.store.CountByDocument(ctx, meta.DocumentID)
		if err != nil {
			metrics.DocumentsIngestedTotal.WithLabelValues("failed").Inc()
			return Result{}, fmt.Errorf("check existing document: %w", err)
		}
		if count > 0 {
			logger.FromContext(ctx).Debug("document already ingested, skipping",
				zap.String("document_id", meta.DocumentID),
				zap.Int("existing_chunks", count))
			metrics.DocumentsIngestedTotal.WithLabelValues("skipped").Inc()
			return Result{DocumentID: meta.DocumentID, Skipped: true}, nil
		}
	}

	chunks := s.chunker.Split(meta.DocumentID, doc.Text)
	if len(chunks) == 0 {
		metrics.DocumentsIngestedTotal.WithLabelValues("failed").Inc()
		return Result{}, domain.NewValidationError([]string{"document text is empty"})
	}

	stored, err := s.embedAndStore(ctx, &meta, chunks)
	if err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues("failed").Inc()
		return Result{DocumentID: meta.DocumentID, ChunksStored: stored}, err
	}

	logger.FromContext(ctx).Info("document ingested",
		zap.String("document_id", meta.DocumentID),
		zap.Int("chunks", stored))
	metrics.DocumentsIngestedTotal.WithLabelValues("stored").Inc()
	metrics.ChunksStoredTotal.Add(float64(stored))

	return Result{DocumentID: meta.DocumentID, ChunksStored: stored}, nil
}

// Update replaces a document's chunks. Existing chunks are removed first so a
// shorter revision leaves no stale tail behind.
func (s *Service) Update(ctx context.Context, doc Document) (Result, error) {
	meta := doc.Metadata
	meta.Normalize()
	if err := meta.Validate(); err != nil {
		return Result{}, err
	}

	removed, err := s.store.DeleteByDocument(ctx, meta.DocumentID)
	if err != nil {
		return Result{}, fmt.Errorf("delete previous chunks: %w", err)
	}
	logger.FromContext(ctx).Debug("previous chunks removed",
		zap.String("document_id", meta.DocumentID),
		zap.Int("removed", removed))

	return s.Ingest(ctx, doc, Options{})
}

// Delete removes every stored chunk of a document. A document with no chunks
// maps to ErrDocumentNotFound.
func (s *Service) Delete(ctx context.Context, documentID string) (int, error) {
	removed, err := s.store.DeleteByDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	if removed == 0 {
		return 0, fmt.Errorf("document %s: %w", documentID, domain.ErrDocumentNotFound)
	}
	return removed, nil
}

// IngestBatch processes documents sequentially with per-document isolation:
// each failure is recorded in its slot and the batch continues.
func (s *Service) IngestBatch(ctx context.Context, docs []Document, opts Options) []BatchResult {
	results := make([]BatchResult, len(docs))
	for i, doc := range docs {
		res, err := s.Ingest(ctx, doc, opts)
		results[i] = BatchResult{
			DocumentID: doc.Metadata.DocumentID,
			Result:     res,
			Err:        err,
		}
		if err != nil {
			logger.FromContext(ctx).Warn("batch document failed",
				zap.String("document_id", doc.Metadata.DocumentID),
				zap.Error(err))
		}
	}
	return results
}

// embedAndStore vectorizes chunks in batches and writes the records.
func (s *Service) embedAndStore(ctx context.Context, meta *domain.DocumentMetadata, chunks []domain.Chunk) (int, error) {
	now := s.now().UTC()
	stored := 0

	for start := 0; start < len(chunks); start += s.embedBatchSize {
		end := min(start+s.embedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		embRes, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return stored, fmt.Errorf("embed chunks [%d:%d]: %w", start, end, err)
		}
		if len(embRes.Embeddings) != len(batch) {
			return stored, fmt.Errorf("got %d embeddings for %d chunks: %w",
				len(embRes.Embeddings), len(batch), domain.ErrEmbeddingProviderError)
		}

		recs := make([]domain.VectorRecord, len(batch))
		for i, c := range batch {
			recs[i] = domain.VectorRecord{
				ID:     c.ID,
				Vector: embRes.Embeddings[i],
				Meta:   recordMetadata(meta, &c, now),
			}
		}

		n, err := s.store.InsertBatch(ctx, recs)
		stored += n
		if err != nil {
			return stored, fmt.Errorf("store chunks [%d:%d]: %w", start, end, err)
		}
	}

	return stored, nil
}

// recordMetadata projects document metadata onto one chunk record.
func recordMetadata(meta *domain.DocumentMetadata, chunk *domain.Chunk, now time.Time) domain.RecordMetadata {
	url := meta.URL
	if url == "" {
		url = meta.SourceURL
	}

	return domain.RecordMetadata{
		Text:          chunk.Text,
		DocumentID:    meta.DocumentID,
		ChunkIndex:    chunk.Index,
		Title:         meta.Title,
		Source:        meta.Source,
		URL:           url,
		DocumentType:  meta.DocumentType,
		Version:       meta.Version,
		PublishDate:   meta.PublishDate,
		Language:      meta.Language,
		Priority:      meta.Priority,
		Scope:         meta.Scope,
		TrustedSource: meta.TrustedSource,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
