package scheduler

import (
	"context"

	"github.com/norma-cloud/knowdex/internal/domain/feed"
	"github.com/norma-cloud/knowdex/internal/fetch"
	"github.com/norma-cloud/knowdex/internal/usecase/ingest"
)

// FeedFetcher downloads and parses a feed into items.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]feed.Item, error)
}

// ContentFetcher retrieves one feed item's linked document.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Content, error)
}

// Ingestor stores a fetched document in the knowledge base.
type Ingestor interface {
	Ingest(ctx context.Context, doc ingest.Document, opts ingest.Options) (ingest.Result, error)
}

// StateRepository persists the registry between restarts.
type StateRepository interface {
	Load(ctx context.Context) (*feed.State, error)
	Save(ctx context.Context, state *feed.State) error
}
