// Package usecase contains the feed refresh orchestration: fetch, parse,
// rewrite and persist each curated feed, strictly sequentially per item, with
// per-item failures swallowed so a bad article never aborts a run.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"NewsDesk/internal/config"
	"NewsDesk/internal/domain"
	"NewsDesk/internal/identity"
	"NewsDesk/internal/metrics"
	"NewsDesk/internal/ports"
)

// RunState tracks where a feed's current (or last) run is in its lifecycle.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateFetching   RunState = "fetching"
	StateParsing    RunState = "parsing"
	StateRewriting  RunState = "rewriting"
	StatePersisting RunState = "persisting"
	StateError      RunState = "error"
)

// ErrAlreadyRunning is returned when a refresh is requested while one is in
// flight.
var ErrAlreadyRunning = errors.New("refresh already running")

// FeedStatus is the externally visible state of one feed's pipeline.
type FeedStatus struct {
	State     RunState  `json:"state"`
	ItemIndex int       `json:"itemIndex,omitempty"`
	ItemCount int       `json:"itemCount,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	LastRunAt time.Time `json:"lastRunAt,omitempty"`
}

// FeedResult summarizes one feed's outcome within a run.
type FeedResult struct {
	Feed      string `json:"feed"`
	Parsed    int    `json:"parsed"`
	Rewritten int    `json:"rewritten"`
	Persisted int    `json:"persisted"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// RefresherDeps wires the driven adapters into the orchestrator.
type RefresherDeps struct {
	Fetcher  ports.FeedFetcher
	Parser   func(xmlText string) []domain.RawFeedItem
	Rewriter ports.Rewriter
	Store    ports.ArticleStore
	Logger   *slog.Logger

	Feeds       []config.FeedConfig
	MinWords    int
	MinInterval time.Duration
}

// Refresher runs the ingestion pipeline over the configured feeds. Runs are
// serialized in-process; cross-process overlap stays last-writer-wins.
type Refresher struct {
	fetcher  ports.FeedFetcher
	parse    func(string) []domain.RawFeedItem
	rewriter ports.Rewriter
	store    ports.ArticleStore
	logger   *slog.Logger

	feeds       []config.FeedConfig
	minWords    int
	minInterval time.Duration

	runMu    sync.Mutex
	statusMu sync.Mutex
	status   map[string]*FeedStatus
}

// NewRefresher constructs the orchestrator.
func NewRefresher(deps RefresherDeps) *Refresher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	status := make(map[string]*FeedStatus, len(deps.Feeds))
	for _, feed := range deps.Feeds {
		status[feed.Name] = &FeedStatus{State: StateIdle}
	}

	return &Refresher{
		fetcher:     deps.Fetcher,
		parse:       deps.Parser,
		rewriter:    deps.Rewriter,
		store:       deps.Store,
		logger:      logger,
		feeds:       deps.Feeds,
		minWords:    deps.MinWords,
		minInterval: deps.MinInterval,
		status:      status,
	}
}

// RefreshAll runs the pipeline over every configured feed, sequentially, and
// stamps the refresh time once at least one feed completed. Returns
// ErrAlreadyRunning when a run is in flight.
func (r *Refresher) RefreshAll(ctx context.Context, trigger string) ([]FeedResult, error) {
	if !r.runMu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer r.runMu.Unlock()

	runID := uuid.NewString()
	logger := r.logger.With("run", runID, "trigger", trigger)
	logger.Info("refresh run started", "feeds", len(r.feeds))

	results := make([]FeedResult, 0, len(r.feeds))
	completed := 0
	for _, feed := range r.feeds {
		result := r.refreshFeed(ctx, feed, logger)
		results = append(results, result)

		status := "ok"
		if result.Error != "" {
			status = "error"
		} else {
			completed++
		}
		metrics.RefreshRunsTotal.WithLabelValues(feed.Name, trigger, status).Inc()
	}

	if completed > 0 {
		if err := r.store.StampRefresh(ctx, time.Now()); err != nil {
			logger.Warn("refresh stamp failed", "error", err)
		}
	}

	logger.Info("refresh run finished", "completed", completed, "feeds", len(r.feeds))
	return results, nil
}

// AutoRefresh applies the time gate before running: nothing happens when the
// last run is more recent than the minimum interval.
func (r *Refresher) AutoRefresh(ctx context.Context) {
	last, err := r.store.LastRefreshAt(ctx)
	if err != nil {
		r.logger.Warn("cannot read refresh stamp, skipping auto refresh", "error", err)
		return
	}
	if since := time.Since(last); since < r.minInterval {
		r.logger.Debug("auto refresh gated", "since", since, "minInterval", r.minInterval)
		return
	}

	if _, err := r.RefreshAll(ctx, "auto"); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		r.logger.Warn("auto refresh failed", "error", err)
	}
}

// Status returns a snapshot of every feed's pipeline state.
func (r *Refresher) Status() map[string]FeedStatus {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()

	out := make(map[string]FeedStatus, len(r.status))
	for name, s := range r.status {
		out[name] = *s
	}
	return out
}

// LastRefreshAt exposes the stored stamp for the status endpoint.
func (r *Refresher) LastRefreshAt(ctx context.Context) (time.Time, error) {
	return r.store.LastRefreshAt(ctx)
}

func (r *Refresher) refreshFeed(ctx context.Context, feed config.FeedConfig, logger *slog.Logger) FeedResult {
	result := FeedResult{Feed: feed.Name}
	logger = logger.With("feed", feed.Name)

	r.setStatus(feed.Name, func(s *FeedStatus) {
		*s = FeedStatus{State: StateFetching, LastRunAt: time.Now()}
	})

	xml, err := r.fetcher.FetchXML(ctx, feed.URL)
	if err != nil {
		logger.Error("feed fetch failed", "error", err)
		result.Error = err.Error()
		r.setStatus(feed.Name, func(s *FeedStatus) {
			s.State = StateError
			s.LastError = result.Error
		})
		return result
	}

	r.setStatus(feed.Name, func(s *FeedStatus) { s.State = StateParsing })

	items := r.parse(xml)
	result.Parsed = len(items)
	metrics.FeedItemsParsed.WithLabelValues(feed.Name).Add(float64(len(items)))
	logger.Info("feed parsed", "items", len(items))

	topN := feed.TopN
	if topN <= 0 || topN > len(items) {
		topN = len(items)
	}
	items = items[:topN]

	// Strictly sequential: bounds LLM load and keeps ordering deterministic
	// for the persist step.
	for i, item := range items {
		r.setStatus(feed.Name, func(s *FeedStatus) {
			s.State = StateRewriting
			s.ItemIndex = i + 1
			s.ItemCount = topN
		})

		started := time.Now()
		rewrite, err := r.rewriter.RewriteWithMinWords(ctx, item, r.minWords)
		metrics.RewriteDuration.Observe(time.Since(started).Seconds())
		if err != nil {
			// The item is skipped for this run; a previously persisted
			// version, if any, stays untouched.
			metrics.RewritesTotal.WithLabelValues(feed.Name, "error").Inc()
			logger.Warn("rewrite failed, item skipped", "link", item.Link, "error", err)
			result.Skipped++
			continue
		}
		if rewrite.Empty() {
			metrics.RewritesTotal.WithLabelValues(feed.Name, "disabled").Inc()
		} else {
			metrics.RewritesTotal.WithLabelValues(feed.Name, "ok").Inc()
			result.Rewritten++
		}

		article := buildArticle(feed.Collection, item, rewrite)

		r.setStatus(feed.Name, func(s *FeedStatus) { s.State = StatePersisting })
		if err := r.store.Upsert(ctx, article); err != nil {
			logger.Warn("persist failed, item skipped", "docId", article.DocID, "error", err)
			result.Skipped++
			continue
		}
		result.Persisted++
	}

	r.setStatus(feed.Name, func(s *FeedStatus) {
		s.State = StateIdle
		s.ItemIndex = 0
		s.ItemCount = 0
		s.LastError = ""
	})

	return result
}

// buildArticle assembles the persisted entity. The rewrite may be empty
// (feature disabled); source fields always come from the feed item and the
// publication timestamp is derived from the feed's own date, never from the
// ingestion wall clock.
func buildArticle(collection domain.Collection, item domain.RawFeedItem, rewrite domain.Rewrite) domain.Article {
	return domain.Article{
		DocID:         identity.DocID(item.Link),
		PublicID:      identity.PublicID(item.Link),
		Collection:    collection,
		Title:         rewrite.Title,
		Subtitle:      rewrite.Subtitle,
		Body:          rewrite.Body,
		Bullets:       rewrite.Bullets,
		ImageURL:      item.ImageURL,
		SourceURL:     item.Link,
		SourceTitle:   item.Title,
		PublishedAt:   item.PublishedAt,
		PublishedAtTS: item.Published.Millis,
	}
}

func (r *Refresher) setStatus(feed string, apply func(*FeedStatus)) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()

	s, ok := r.status[feed]
	if !ok {
		s = &FeedStatus{State: StateIdle}
		r.status[feed] = s
	}
	apply(s)
}

// Describe returns a one-line summary of a run's results for log/HTTP use.
func Describe(results []FeedResult) string {
	var b []byte
	for i, res := range results {
		if i > 0 {
			b = append(b, "; "...)
		}
		b = fmt.Appendf(b, "%s: parsed=%d rewritten=%d persisted=%d skipped=%d",
			res.Feed, res.Parsed, res.Rewritten, res.Persisted, res.Skipped)
		if res.Error != "" {
			b = fmt.Appendf(b, " error=%s", res.Error)
		}
	}
	return string(b)
}
