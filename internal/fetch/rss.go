package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/feed"
)

// RSSFetcher parses RSS and Atom feeds into feed items.
type RSSFetcher struct {
	parser  *gofeed.Parser
	timeout time.Duration
}

// NewRSSFetcher creates an RSS fetcher with the given per-feed timeout.
func NewRSSFetcher(timeout time.Duration) *RSSFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	parser := gofeed.NewParser()
	parser.UserAgent = defaultUserAgent
	return &RSSFetcher{parser: parser, timeout: timeout}
}

// Fetch downloads and parses the feed at url. Unreachable feeds map to
// ErrTransientIO so callers can keep the feed scheduled and retry later.
func (f *RSSFetcher) Fetch(ctx context.Context, url string) ([]feed.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	parsed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %v: %w", url, err, domain.ErrTransientIO)
	}

	items := make([]feed.Item, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		if it == nil {
			continue
		}
		items = append(items, feed.Item{
			Title:       strings.TrimSpace(it.Title),
			Link:        strings.TrimSpace(it.Link),
			Description: strings.TrimSpace(it.Description),
			PublishDate: itemDate(it),
		})
	}
	return items, nil
}

// itemDate prefers the published date and falls back to the updated date.
// Both missing leaves the item undated; undated items always count as new.
func itemDate(it *gofeed.Item) *time.Time {
	if it.PublishedParsed != nil {
		return it.PublishedParsed
	}
	return it.UpdatedParsed
}
