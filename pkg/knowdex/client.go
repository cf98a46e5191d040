package knowdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/norma-cloud/knowdex/internal/chunker"
	dbRedis "github.com/norma-cloud/knowdex/internal/db/redis"
	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/filter"
	openaiTransport "github.com/norma-cloud/knowdex/internal/transport/openai"
	ingestuc "github.com/norma-cloud/knowdex/internal/usecase/ingest"
	raguc "github.com/norma-cloud/knowdex/internal/usecase/rag"
	searchuc "github.com/norma-cloud/knowdex/internal/usecase/search"
	"github.com/norma-cloud/knowdex/internal/vectorstore"
	vsMemory "github.com/norma-cloud/knowdex/internal/vectorstore/memory"
	vsRedis "github.com/norma-cloud/knowdex/internal/vectorstore/redis"
)

const defaultReadinessTimeout = 10 * time.Second

// Document is an ingestion input.
type Document = ingestuc.Document

// IngestResult reports one ingestion outcome.
type IngestResult = ingestuc.Result

// SearchRequest is a semantic search query.
type SearchRequest = searchuc.Request

// SearchResponse carries ranked results.
type SearchResponse = searchuc.Response

// Answer is an orchestrated RAG answer.
type Answer = raguc.Answer

// Filter re-exports the metadata filter type for request construction.
type Filter = filter.Filter

// Client is the knowdex SDK entry point.
type Client struct {
	store     vectorstore.Store
	closeDB   func()
	ingestSvc *ingestuc.Service
	searchSvc *searchuc.Service
	ragSvc    *raguc.Service
}

// New creates a client and connects its vector store. The context bounds the
// initial connect and index readiness wait.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	cfg.defaults()

	if cfg.dimensions <= 0 {
		return nil, errors.New("knowdex: store required (use WithMemoryStore or WithRedisStore)")
	}
	if cfg.embedModel == "" {
		return nil, errors.New("knowdex: embedding provider required")
	}

	store, closeDB, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	if err := store.Connect(ctx); err != nil {
		if closeDB != nil {
			closeDB()
		}
		return nil, fmt.Errorf("knowdex: connect vector store: %w", err)
	}

	embedder := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.embedAPIKey,
		BaseURL:    cfg.embedBaseURL,
		Model:      cfg.embedModel,
		Dimensions: cfg.dimensions,
		Provider:   "openai",
		Logger:     cfg.logger,
	})

	textChunker, err := chunker.New(cfg.chunkSize, cfg.chunkOverlap)
	if err != nil {
		if closeDB != nil {
			closeDB()
		}
		return nil, fmt.Errorf("knowdex: %w", err)
	}

	searchSvc := searchuc.New(store, embedder)

	c := &Client{
		store:     store,
		closeDB:   closeDB,
		ingestSvc: ingestuc.New(store, embedder, textChunker).WithEmbedBatchSize(cfg.embedBatchSize),
		searchSvc: searchSvc,
	}

	if cfg.genModel != "" {
		generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
			APIKey:   cfg.genAPIKey,
			BaseURL:  cfg.genBaseURL,
			Model:    cfg.genModel,
			Provider: "openai",
			Logger:   cfg.logger,
		})
		c.ragSvc = raguc.New(searchSvc, generator)
	}

	return c, nil
}

func createStore(cfg *clientConfig) (vectorstore.Store, func(), error) {
	switch cfg.driver {
	case "memory":
		return vsMemory.New(cfg.dimensions), nil, nil
	case "redis":
		dbStore, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Username: cfg.username,
			Password: cfg.password,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("knowdex: create redis store: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), defaultReadinessTimeout)
		defer cancel()
		if err := dbStore.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			dbStore.Close()
			return nil, nil, fmt.Errorf("knowdex: database not ready: %w", err)
		}
		return vsRedis.New(dbStore, cfg.dimensions), dbStore.Close, nil
	default:
		return nil, nil, fmt.Errorf("knowdex: unknown store driver %q", cfg.driver)
	}
}

// Close releases the vector store and database connections.
func (c *Client) Close(ctx context.Context) error {
	err := c.store.Close(ctx)
	if c.closeDB != nil {
		c.closeDB()
	}
	return err
}

// IngestDocument chunks, embeds, and stores one document. With skipExisting,
// re-ingesting a stored document is a no-op success.
func (c *Client) IngestDocument(ctx context.Context, doc Document, skipExisting bool) (IngestResult, error) {
	return c.ingestSvc.Ingest(ctx, doc, ingestuc.Options{SkipExisting: skipExisting})
}

// UpdateDocument replaces a document's chunks with a new revision.
func (c *Client) UpdateDocument(ctx context.Context, doc Document) (IngestResult, error) {
	return c.ingestSvc.Update(ctx, doc)
}

// DeleteDocument removes every chunk of a document.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	return c.ingestSvc.Delete(ctx, documentID)
}

// Search runs a semantic search.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	return c.searchSvc.Search(ctx, req)
}

// Ask answers a question over the knowledge base. Requires a generation
// provider.
func (c *Client) Ask(ctx context.Context, question string) (*Answer, error) {
	if c.ragSvc == nil {
		return nil, fmt.Errorf("knowdex: generation provider not configured: %w",
			domain.ErrGenerationProviderError)
	}
	return c.ragSvc.Query(ctx, raguc.Request{Question: question})
}

// AskStream streams an answer as events: context first, then tokens, then a
// done sentinel.
func (c *Client) AskStream(ctx context.Context, question string) (<-chan raguc.Event, error) {
	if c.ragSvc == nil {
		return nil, fmt.Errorf("knowdex: generation provider not configured: %w",
			domain.ErrGenerationProviderError)
	}
	return c.ragSvc.QueryStream(ctx, raguc.Request{Question: question})
}
