package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"NewsDesk/internal/config"
	"NewsDesk/internal/domain"
	"NewsDesk/internal/identity"
	"NewsDesk/internal/ports"
)

type fakeFetcher struct {
	xml     string
	err     error
	calls   atomic.Int32
	blockOn chan struct{}
}

func (f *fakeFetcher) FetchXML(_ context.Context, _ string) (string, error) {
	f.calls.Add(1)
	if f.blockOn != nil {
		<-f.blockOn
	}
	return f.xml, f.err
}

type fakeRewriter struct {
	mu    sync.Mutex
	calls []string
	fn    func(item domain.RawFeedItem) (domain.Rewrite, error)
}

func (f *fakeRewriter) RewriteWithMinWords(_ context.Context, item domain.RawFeedItem, _ int) (domain.Rewrite, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item.Link)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(item)
	}
	return domain.Rewrite{
		Title: "riscritto: " + item.Title,
		Body:  "corpo",
	}, nil
}

type memStore struct {
	mu       sync.Mutex
	articles map[string]domain.Article
	stamp    time.Time
}

var _ ports.ArticleStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{articles: map[string]domain.Article{}}
}

func (s *memStore) Upsert(_ context.Context, a domain.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[a.DocID] = a
	return nil
}

func (s *memStore) List(_ context.Context, collection domain.Collection, _, _ int) ([]domain.Article, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Article
	for _, a := range s.articles {
		if a.Collection == collection {
			out = append(out, a)
		}
	}
	return out, false, nil
}

func (s *memStore) FindByAnyID(_ context.Context, _ []string) (*domain.Article, error) {
	return nil, ports.ErrNotFound
}

func (s *memStore) UpdatePublicID(_ context.Context, _, _ string) error { return nil }

func (s *memStore) Delete(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.articles, docID)
	return nil
}

func (s *memStore) LastRefreshAt(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stamp, nil
}

func (s *memStore) StampRefresh(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp = at
	return nil
}

func feedItems(links ...string) []domain.RawFeedItem {
	items := make([]domain.RawFeedItem, 0, len(links))
	for i, link := range links {
		items = append(items, domain.RawFeedItem{
			Title:       "titolo " + link,
			Link:        link,
			ContentText: "contenuto",
			Published:   domain.Timestamp{Millis: int64(1000 - i), Known: true},
		})
	}
	return items
}

func newTestRefresher(store ports.ArticleStore, fetcher ports.FeedFetcher, rewriter ports.Rewriter, items []domain.RawFeedItem, feeds ...config.FeedConfig) *Refresher {
	if len(feeds) == 0 {
		feeds = []config.FeedConfig{{
			Name:       "general",
			URL:        "https://example.com/rss",
			Collection: domain.CollectionNews,
			TopN:       3,
		}}
	}
	return NewRefresher(RefresherDeps{
		Fetcher:     fetcher,
		Parser:      func(string) []domain.RawFeedItem { return items },
		Rewriter:    rewriter,
		Store:       store,
		Feeds:       feeds,
		MinWords:    250,
		MinInterval: 30 * time.Minute,
	})
}

func TestRefreshPersistsTopNWithIdentity(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rewriter := &fakeRewriter{}
	items := feedItems("https://site/a", "https://site/b", "https://site/c", "https://site/d")
	r := newTestRefresher(store, &fakeFetcher{xml: "<rss/>"}, rewriter, items, config.FeedConfig{
		Name:       "general",
		URL:        "https://example.com/rss",
		Collection: domain.CollectionNews,
		TopN:       3,
	})

	results, err := r.RefreshAll(context.Background(), "manual")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 feed result, got %d", len(results))
	}
	res := results[0]
	if res.Parsed != 4 || res.Persisted != 3 || res.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(rewriter.calls) != 3 {
		t.Fatalf("only the top N items get rewritten, got %d calls", len(rewriter.calls))
	}

	wantDoc := identity.DocID("https://site/a")
	a, ok := store.articles[wantDoc]
	if !ok {
		t.Fatalf("article not persisted under its document key %q", wantDoc)
	}
	if a.PublicID != identity.PublicID("https://site/a") {
		t.Fatalf("public id not assigned: %+v", a)
	}
	if a.Title != "riscritto: titolo https://site/a" {
		t.Fatalf("rewrite not applied: %q", a.Title)
	}
	if a.SourceURL != "https://site/a" || a.SourceTitle != "titolo https://site/a" {
		t.Fatalf("source fields must come from the feed item: %+v", a)
	}

	if stamp, _ := store.LastRefreshAt(context.Background()); stamp.IsZero() {
		t.Fatalf("successful run must stamp the refresh time")
	}
}

func TestRefreshSkipsItemOnRewriteError(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rewriter := &fakeRewriter{fn: func(item domain.RawFeedItem) (domain.Rewrite, error) {
		if strings.HasSuffix(item.Link, "/bad") {
			return domain.Rewrite{}, errors.New("llm unavailable")
		}
		return domain.Rewrite{Title: "ok"}, nil
	}}
	items := feedItems("https://site/good", "https://site/bad", "https://site/also-good")
	r := newTestRefresher(store, &fakeFetcher{xml: "<rss/>"}, rewriter, items)

	results, err := r.RefreshAll(context.Background(), "manual")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	res := results[0]
	if res.Persisted != 2 || res.Skipped != 1 {
		t.Fatalf("one failing item must not abort the run: %+v", res)
	}
	if _, ok := store.articles[identity.DocID("https://site/bad")]; ok {
		t.Fatalf("failed item must not be persisted")
	}
	if _, ok := store.articles[identity.DocID("https://site/also-good")]; !ok {
		t.Fatalf("items after a failure must still be processed")
	}
}

func TestRefreshPersistsRawFieldsWhenRewriteDisabled(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rewriter := &fakeRewriter{fn: func(domain.RawFeedItem) (domain.Rewrite, error) {
		return domain.Rewrite{}, nil
	}}
	items := feedItems("https://site/a")
	r := newTestRefresher(store, &fakeFetcher{xml: "<rss/>"}, rewriter, items)

	results, err := r.RefreshAll(context.Background(), "manual")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if results[0].Persisted != 1 || results[0].Rewritten != 0 {
		t.Fatalf("disabled rewrite must still persist: %+v", results[0])
	}

	a := store.articles[identity.DocID("https://site/a")]
	if a.Title != "" {
		t.Fatalf("rewritten fields must stay empty, got %q", a.Title)
	}
	if a.SourceTitle == "" || a.SourceURL == "" {
		t.Fatalf("source fields must survive: %+v", a)
	}
}

func TestRefreshFeedFetchErrorReported(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	r := newTestRefresher(store, &fakeFetcher{err: errors.New("all feed sources failed")}, &fakeRewriter{}, nil)

	results, err := r.RefreshAll(context.Background(), "manual")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if results[0].Error == "" {
		t.Fatalf("fetch failure must surface in the result")
	}
	if stamp, _ := store.LastRefreshAt(context.Background()); !stamp.IsZero() {
		t.Fatalf("a run with no completed feed must not stamp")
	}
	if status := r.Status()["general"]; status.State != StateError || status.LastError == "" {
		t.Fatalf("feed must be left in the error state: %+v", status)
	}
}

func TestRefreshRejectsConcurrentRuns(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	block := make(chan struct{})
	fetcher := &fakeFetcher{xml: "<rss/>", blockOn: block}
	r := newTestRefresher(store, fetcher, &fakeRewriter{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := r.RefreshAll(context.Background(), "manual"); err != nil {
			t.Errorf("first run: %v", err)
		}
	}()

	deadline := time.After(2 * time.Second)
	for fetcher.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("first run never started")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := r.RefreshAll(context.Background(), "manual"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	close(block)
	<-done
}

func TestAutoRefreshGatedByMinInterval(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.stamp = time.Now().Add(-5 * time.Minute)
	fetcher := &fakeFetcher{xml: "<rss/>"}
	r := newTestRefresher(store, fetcher, &fakeRewriter{}, nil)

	r.AutoRefresh(context.Background())
	if fetcher.calls.Load() != 0 {
		t.Fatalf("a recent stamp must gate the auto refresh")
	}

	store.stamp = time.Now().Add(-time.Hour)
	r.AutoRefresh(context.Background())
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("a stale stamp must let the auto refresh run, calls=%d", got)
	}
}

func TestRefreshIsIdempotentAcrossRuns(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	items := feedItems("https://site/a", "https://site/b")
	r := newTestRefresher(store, &fakeFetcher{xml: "<rss/>"}, &fakeRewriter{}, items)

	for i := 0; i < 2; i++ {
		if _, err := r.RefreshAll(context.Background(), "manual"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if len(store.articles) != 2 {
		t.Fatalf("re-running over the same feed must not duplicate articles, got %d", len(store.articles))
	}
}

func TestDescribeSummarizesResults(t *testing.T) {
	t.Parallel()

	got := Describe([]FeedResult{
		{Feed: "general", Parsed: 4, Rewritten: 3, Persisted: 3},
		{Feed: "coming-soon", Error: "fetch failed"},
	})
	if !strings.Contains(got, "general: parsed=4") || !strings.Contains(got, "error=fetch failed") {
		t.Fatalf("unexpected summary: %q", got)
	}
}
