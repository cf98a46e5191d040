// Package scheduler runs the feed registry: cron-driven checks of external
// feeds, watermark tracking, and ingestion of new items.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/feed"
	"github.com/norma-cloud/knowdex/internal/logger"
	"github.com/norma-cloud/knowdex/internal/metrics"
	"github.com/norma-cloud/knowdex/internal/usecase/ingest"
)

// DefaultItemDelay spaces out item processing within one run so upstream
// sites are not hammered.
const DefaultItemDelay = 2 * time.Second

// DefaultFeedDelay spaces out sequential feed runs in ProcessAll.
const DefaultFeedDelay = 5 * time.Second

// entry pairs a registry feed with its cron job, if scheduled.
type entry struct {
	feed   *feed.ScheduledFeed
	cronID cron.EntryID
	// scheduled is false when the cron expression failed to parse. The feed
	// stays in the registry and can still be processed manually.
	scheduled bool
}

// Service owns the feed registry and its cron schedule.
type Service struct {
	feeds     FeedFetcher
	content   ContentFetcher
	ingestor  Ingestor
	state     StateRepository
	logger    *zap.Logger
	itemDelay time.Duration
	feedDelay time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	cron    *cron.Cron
}

// New creates a feed scheduler. Call Restore then Start to bring persisted
// feeds back online.
func New(feeds FeedFetcher, content ContentFetcher, ingestor Ingestor, state StateRepository, log *zap.Logger) *Service {
	return &Service{
		feeds:     feeds,
		content:   content,
		ingestor:  ingestor,
		state:     state,
		logger:    log,
		itemDelay: DefaultItemDelay,
		feedDelay: DefaultFeedDelay,
		entries:   make(map[string]*entry),
		cron:      cron.New(),
	}
}

// WithItemDelay overrides the pause between items within one run.
func (s *Service) WithItemDelay(d time.Duration) *Service {
	if d >= 0 {
		s.itemDelay = d
	}
	return s
}

// WithFeedDelay overrides the pause between feeds in a ProcessAll sweep.
func (s *Service) WithFeedDelay(d time.Duration) *Service {
	if d >= 0 {
		s.feedDelay = d
	}
	return s
}

// Start begins executing scheduled jobs.
func (s *Service) Start() {
	s.cron.Start()
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// Restore loads the persisted registry and reschedules every enabled feed.
// A feed whose stored cron expression no longer parses is kept in the
// registry but left unscheduled; one bad entry never blocks the rest.
func (s *Service) Restore(ctx context.Context) error {
	state, err := s.state.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore feeds: %w", err)
	}
	if state == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range state.Feeds {
		f := state.Feeds[i]
		e := &entry{feed: &f}
		s.entries[f.ID] = e

		if !f.Enabled || !f.Config.Enabled {
			continue
		}
		if err := s.scheduleLocked(e); err != nil {
			s.logger.Warn("restored feed left unscheduled",
				zap.String("feed_id", f.ID),
				zap.String("cron", f.CronExpression),
				zap.Error(err))
		}
	}

	s.logger.Info("feed registry restored", zap.Int("feeds", len(state.Feeds)))
	return nil
}

// Register validates and adds a feed, schedules it, and persists the
// registry. The cron expression must parse; an invalid one rejects the
// registration.
func (s *Service) Register(ctx context.Context, cfg feed.Config, cronExpr string) (*feed.ScheduledFeed, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return nil, fmt.Errorf("cron %q: %v: %w", cronExpr, err, domain.ErrInvalidCron)
	}

	f := &feed.ScheduledFeed{
		ID:             uuid.New().String(),
		Config:         cfg,
		CronExpression: cronExpr,
		Enabled:        cfg.Enabled,
	}

	s.mu.Lock()
	e := &entry{feed: f}
	s.entries[f.ID] = e
	if f.Enabled {
		if err := s.scheduleLocked(e); err != nil {
			// Expression already validated above, so this cannot happen.
			s.logger.Error("schedule feed", zap.String("feed_id", f.ID), zap.Error(err))
		}
	}
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("feed registered",
		zap.String("feed_id", f.ID),
		zap.String("url", cfg.URL),
		zap.String("cron", cronExpr))
	return snapshot(f), nil
}

// Unregister removes a feed and its cron job.
func (s *Service) Unregister(ctx context.Context, feedID string) error {
	s.mu.Lock()
	e, ok := s.entries[feedID]
	if ok {
		s.unscheduleLocked(e)
		delete(s.entries, feedID)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("feed %s: %w", feedID, domain.ErrFeedNotFound)
	}
	return s.persist(ctx)
}

// SetEnabled toggles a feed. Disabling removes the cron job; enabling
// reschedules it.
func (s *Service) SetEnabled(ctx context.Context, feedID string, enabled bool) error {
	s.mu.Lock()
	e, ok := s.entries[feedID]
	if ok && e.feed.Enabled != enabled {
		e.feed.Enabled = enabled
		if enabled {
			if err := s.scheduleLocked(e); err != nil {
				s.logger.Warn("feed enabled but left unscheduled",
					zap.String("feed_id", feedID), zap.Error(err))
			}
		} else {
			s.unscheduleLocked(e)
		}
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("feed %s: %w", feedID, domain.ErrFeedNotFound)
	}
	return s.persist(ctx)
}

// Get returns a copy of one registry entry.
func (s *Service) Get(feedID string) (*feed.ScheduledFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[feedID]
	if !ok {
		return nil, fmt.Errorf("feed %s: %w", feedID, domain.ErrFeedNotFound)
	}
	return snapshot(e.feed), nil
}

// List returns copies of all registry entries, ordered by name for stable
// output.
func (s *Service) List() []feed.ScheduledFeed {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]feed.ScheduledFeed, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *snapshot(e.feed))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Config.Name < out[j].Config.Name })
	return out
}

// Stats summarizes the registry.
func (s *Service) Stats() feed.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats feed.Stats
	for _, e := range s.entries {
		stats.TotalFeeds++
		if e.feed.Enabled {
			stats.EnabledFeeds++
		} else {
			stats.DisabledFeeds++
		}
		if e.feed.LastCheckDate != nil &&
			(stats.LastCheck == nil || e.feed.LastCheckDate.After(*stats.LastCheck)) {
			t := *e.feed.LastCheckDate
			stats.LastCheck = &t
		}
	}
	return stats
}

// ProcessAll runs every enabled feed once, sequentially, pausing between
// feeds so a sweep does not hit every upstream at once. Cancellation ends
// the sweep between feeds; completed results are still returned.
func (s *Service) ProcessAll(ctx context.Context) []feed.ScrapingResult {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id, e := range s.entries {
		if e.feed.Enabled {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	sort.Strings(ids)

	results := make([]feed.ScrapingResult, 0, len(ids))
	for i, id := range ids {
		if i > 0 && s.feedDelay > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(s.feedDelay):
			}
		}

		res, err := s.ProcessFeed(ctx, id)
		if err != nil {
			// Feed was unregistered between the listing and the run.
			continue
		}
		results = append(results, *res)
	}
	return results
}

// ProcessFeed checks one feed now: fetch, pick items newer than the
// watermark, ingest them newest first, and advance the watermark. An
// unreachable feed is a failed result, never a panic, and the feed stays
// scheduled.
func (s *Service) ProcessFeed(ctx context.Context, feedID string) (*feed.ScrapingResult, error) {
	s.mu.Lock()
	e, ok := s.entries[feedID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("feed %s: %w", feedID, domain.ErrFeedNotFound)
	}
	f := e.feed
	url := f.Config.URL
	watermark := f.LastProcessedDate
	s.mu.Unlock()

	start := time.Now()
	result := &feed.ScrapingResult{FeedID: feedID}

	items, err := s.feeds.Fetch(ctx, url)
	if err != nil {
		s.logger.Warn("feed unreachable",
			zap.String("feed_id", feedID),
			zap.String("url", url),
			zap.Error(err))
		metrics.FeedRunsTotal.WithLabelValues("error").Inc()

		result.Error = err.Error()
		result.ElapsedMs = time.Since(start).Milliseconds()
		s.finishRun(ctx, feedID, start, nil)
		return result, nil
	}

	fresh := newItems(items, watermark)
	// Newest first, so the most recent publications land before any
	// per-item delay or failure down the list.
	sort.SliceStable(fresh, func(i, j int) bool {
		return itemTime(fresh[i]).After(itemTime(fresh[j]))
	})

	var newest time.Time
	for i, item := range fresh {
		if i > 0 && s.itemDelay > 0 {
			select {
			case <-ctx.Done():
				result.Error = ctx.Err().Error()
				result.ElapsedMs = time.Since(start).Milliseconds()
				s.finishRun(ctx, feedID, start, &newest)
				return result, nil
			case <-time.After(s.itemDelay):
			}
		}

		if err := s.processItem(ctx, f, item); err != nil {
			result.ItemsFailed++
			s.logger.Warn("feed item failed",
				zap.String("feed_id", feedID),
				zap.String("link", item.Link),
				zap.Error(err))
			metrics.FeedItemsProcessedTotal.WithLabelValues("failed").Inc()
		} else {
			result.ItemsProcessed++
			metrics.FeedItemsProcessedTotal.WithLabelValues("processed").Inc()
		}

		// Watermark tracks the newest date seen this run, including items
		// whose ingestion failed; a broken article is not retried forever.
		if t := item.PublishDate; t != nil && t.After(newest) {
			newest = *t
		}
	}

	result.Success = true
	result.ElapsedMs = time.Since(start).Milliseconds()
	metrics.FeedRunsTotal.WithLabelValues("success").Inc()

	s.finishRun(ctx, feedID, start, &newest)

	s.logger.Info("feed processed",
		zap.String("feed_id", feedID),
		zap.Int("new_items", len(fresh)),
		zap.Int("processed", result.ItemsProcessed),
		zap.Int("failed", result.ItemsFailed))
	return result, nil
}

// processItem fetches one linked document and ingests it. Item text falls
// back to the feed description when the link yields nothing usable.
func (s *Service) processItem(ctx context.Context, f *feed.ScheduledFeed, item feed.Item) error {
	text := ""
	title := item.Title

	if item.Link != "" {
		content, err := s.content.Fetch(ctx, item.Link)
		if err == nil {
			text = content.Text
			if title == "" {
				title = content.Title
			}
		} else {
			s.logger.Debug("item link fetch failed, using description",
				zap.String("link", item.Link), zap.Error(err))
		}
	}
	if text == "" {
		text = item.Description
	}

	meta := domain.DocumentMetadata{
		DocumentID:   itemDocumentID(f.ID, item),
		Title:        title,
		Source:       f.Config.Source,
		URL:          item.Link,
		SourceURL:    f.Config.URL,
		DocumentType: f.Config.DocumentType,
		Priority:     f.Config.Priority,
		Scope:        f.Config.Scope,
	}
	if item.PublishDate != nil {
		meta.PublishDate = *item.PublishDate
	}

	_, err := s.ingestor.Ingest(ctx, ingest.Document{Metadata: meta, Text: text},
		ingest.Options{SkipExisting: true})
	return err
}

// finishRun updates run bookkeeping and persists the registry.
func (s *Service) finishRun(ctx context.Context, feedID string, started time.Time, newest *time.Time) {
	s.mu.Lock()
	if e, ok := s.entries[feedID]; ok {
		checked := started.UTC()
		e.feed.LastCheckDate = &checked
		if newest != nil {
			e.feed.AdvanceWatermark(*newest)
		}
		if e.scheduled {
			next := s.cron.Entry(e.cronID).Next
			if !next.IsZero() {
				e.feed.NextRunDate = &next
			}
		}
	}
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		s.logger.Error("persist feed state", zap.Error(err))
	}
}

// scheduleLocked adds the cron job for an entry. Caller holds s.mu.
func (s *Service) scheduleLocked(e *entry) error {
	feedID := e.feed.ID
	id, err := s.cron.AddFunc(e.feed.CronExpression, func() {
		ctx := logger.ContextWithLogger(context.Background(), s.logger)
		if _, err := s.ProcessFeed(ctx, feedID); err != nil {
			s.logger.Warn("scheduled run failed", zap.String("feed_id", feedID), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("cron %q: %v: %w", e.feed.CronExpression, err, domain.ErrInvalidCron)
	}
	e.cronID = id
	e.scheduled = true

	next := s.cron.Entry(id).Next
	if !next.IsZero() {
		e.feed.NextRunDate = &next
	}
	return nil
}

// unscheduleLocked removes the cron job for an entry. Caller holds s.mu.
func (s *Service) unscheduleLocked(e *entry) {
	if e.scheduled {
		s.cron.Remove(e.cronID)
		e.scheduled = false
		e.feed.NextRunDate = nil
	}
}

// persist snapshots the registry and saves it.
func (s *Service) persist(ctx context.Context) error {
	s.mu.Lock()
	state := &feed.State{
		Feeds:       make([]feed.ScheduledFeed, 0, len(s.entries)),
		LastUpdated: time.Now().UTC(),
	}
	for _, e := range s.entries {
		state.Feeds = append(state.Feeds, *snapshot(e.feed))
	}
	s.mu.Unlock()

	sort.Slice(state.Feeds, func(i, j int) bool { return state.Feeds[i].ID < state.Feeds[j].ID })

	if err := s.state.Save(ctx, state); err != nil {
		return fmt.Errorf("persist registry: %w", err)
	}
	return nil
}

// newItems keeps items strictly newer than the watermark. Undated items are
// always new.
func newItems(items []feed.Item, watermark *time.Time) []feed.Item {
	out := make([]feed.Item, 0, len(items))
	for _, item := range items {
		if item.PublishDate == nil || watermark == nil || item.PublishDate.After(*watermark) {
			out = append(out, item)
		}
	}
	return out
}

// itemTime orders items; undated items sort oldest.
func itemTime(item feed.Item) time.Time {
	if item.PublishDate != nil {
		return *item.PublishDate
	}
	return time.Time{}
}

// itemDocumentID derives a stable id from the item link so re-running a feed
// skips already ingested items.
func itemDocumentID(feedID string, item feed.Item) string {
	src := item.Link
	if src == "" {
		src = item.Title
	}
	return fmt.Sprintf("feed-%s", uuid.NewSHA1(uuid.NameSpaceURL, []byte(feedID+"\x00"+src)))
}

// snapshot deep-copies a feed so callers never share registry pointers.
func snapshot(f *feed.ScheduledFeed) *feed.ScheduledFeed {
	out := *f
	out.LastCheckDate = copyTime(f.LastCheckDate)
	out.LastProcessedDate = copyTime(f.LastProcessedDate)
	out.NextRunDate = copyTime(f.NextRunDate)
	return &out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
