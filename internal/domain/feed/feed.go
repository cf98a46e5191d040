// Package feed defines the scheduled-feed registry model: feed configuration,
// persisted per-feed watermark state, and per-run reports.
package feed

import (
	"fmt"
	"time"

	"github.com/norma-cloud/knowdex/internal/domain"
)

// Config carries the static description of an external feed.
type Config struct {
	URL          string              `json:"url"`
	Name         string              `json:"name"`
	DocumentType domain.DocumentType `json:"documentType,omitempty"`
	Source       string              `json:"source,omitempty"`
	Priority     domain.Priority     `json:"priority,omitempty"`
	Scope        string              `json:"scope,omitempty"`
	Enabled      bool                `json:"enabled"`
}

// Validate checks the config, collecting every violation.
func (c *Config) Validate() error {
	var violations []string
	if c.URL == "" {
		violations = append(violations, "feed url is required")
	}
	if c.Name == "" {
		violations = append(violations, "feed name is required")
	}
	if c.DocumentType != "" && !c.DocumentType.IsValid() {
		violations = append(violations, fmt.Sprintf("unknown documentType %q", c.DocumentType))
	}
	if c.Priority != "" && !c.Priority.IsValid() {
		violations = append(violations, fmt.Sprintf("unknown priority %q", c.Priority))
	}
	if len(violations) == 0 {
		return nil
	}
	return domain.NewValidationError(violations)
}

// ScheduledFeed is one registry entry together with its watermark state.
// LastProcessedDate is the watermark: the publish date of the newest item
// already observed. It only ever advances.
type ScheduledFeed struct {
	ID                string     `json:"id"`
	Config            Config     `json:"config"`
	CronExpression    string     `json:"cronExpression"`
	Enabled           bool       `json:"enabled"`
	LastCheckDate     *time.Time `json:"lastCheckDate,omitempty"`
	LastProcessedDate *time.Time `json:"lastProcessedDate,omitempty"`
	NextRunDate       *time.Time `json:"nextRunDate,omitempty"`
}

// AdvanceWatermark moves LastProcessedDate forward to ts, never backward.
func (f *ScheduledFeed) AdvanceWatermark(ts time.Time) {
	if ts.IsZero() {
		return
	}
	if f.LastProcessedDate == nil || ts.After(*f.LastProcessedDate) {
		t := ts
		f.LastProcessedDate = &t
	}
}

// State is the durable shape of the whole registry. It must round-trip
// exactly through save/load; dates serialize as RFC 3339.
type State struct {
	Feeds       []ScheduledFeed `json:"feeds"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// ScrapingResult is the immutable report of one feed-processing run. It is
// returned to the caller, never persisted.
type ScrapingResult struct {
	FeedID         string `json:"feedId"`
	Success        bool   `json:"success"`
	ItemsProcessed int    `json:"itemsProcessed"`
	ItemsFailed    int    `json:"itemsFailed"`
	ElapsedMs      int64  `json:"elapsedMs"`
	Error          string `json:"error,omitempty"`
}

// Item is one entry of a fetched feed, normalized from the underlying format.
// A nil PublishDate means the item is always considered new: an unknown date
// is safer processed than silently dropped.
type Item struct {
	Title       string
	Link        string
	Description string
	PublishDate *time.Time
}

// Stats summarizes the registry for the statistics surface.
type Stats struct {
	TotalFeeds    int        `json:"totalFeeds"`
	EnabledFeeds  int        `json:"enabledFeeds"`
	DisabledFeeds int        `json:"disabledFeeds"`
	LastCheck     *time.Time `json:"lastCheck,omitempty"`
}
