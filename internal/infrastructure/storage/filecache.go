package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// cacheFiles mirrors the browser localStorage keys the original pipeline
// wrote; the names are kept so an operator can recognize the files.
var cacheFiles = map[domain.Collection]string{
	domain.CollectionNews:       "news-articles.json",
	domain.CollectionComingSoon: "comingsoon-articles.json",
}

const stampFile = "last-refresh.json"

// FileCache is the local article store: one JSON array per collection plus a
// refresh stamp, guarded by a single mutex, written atomically.
type FileCache struct {
	dir string
	mu  sync.Mutex
}

var _ ports.ArticleStore = (*FileCache)(nil)

// NewFileCache prepares the cache directory.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

// Upsert replaces the entry with the same document key, or appends.
func (c *FileCache) Upsert(_ context.Context, article domain.Article) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	articles, err := c.load(article.Collection)
	if err != nil {
		return err
	}

	replaced := false
	for i := range articles {
		if articles[i].DocID == article.DocID {
			articles[i] = article
			replaced = true
			break
		}
	}
	if !replaced {
		articles = append(articles, article)
	}

	return c.save(article.Collection, articles)
}

// List pages the cached collection, newest first.
func (c *FileCache) List(_ context.Context, collection domain.Collection, limit, offset int) ([]domain.Article, bool, error) {
	if limit <= 0 {
		limit = 20
	}

	c.mu.Lock()
	articles, err := c.load(collection)
	c.mu.Unlock()
	if err != nil {
		return nil, false, err
	}

	sortByPublishedDesc(articles)

	if offset >= len(articles) {
		return nil, false, nil
	}
	end := offset + limit
	hasMore := end < len(articles)
	if end > len(articles) {
		end = len(articles)
	}
	return articles[offset:end], hasMore, nil
}

// All returns every cached article of the collection, unordered.
func (c *FileCache) All(_ context.Context, collection domain.Collection) ([]domain.Article, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(collection)
}

// ReplaceAll rewrites the collection's cache baseline.
func (c *FileCache) ReplaceAll(_ context.Context, collection domain.Collection, articles []domain.Article) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(collection, articles)
}

// FindByAnyID scans the general news cache first, then coming-soon, matching
// candidates against document keys and public ids.
func (c *FileCache) FindByAnyID(_ context.Context, candidates []string) (*domain.Article, error) {
	if len(candidates) == 0 {
		return nil, ports.ErrNotFound
	}

	wanted := make(map[string]bool, len(candidates))
	for _, id := range candidates {
		wanted[id] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, collection := range []domain.Collection{domain.CollectionNews, domain.CollectionComingSoon} {
		articles, err := c.load(collection)
		if err != nil {
			return nil, err
		}
		for i := range articles {
			if wanted[articles[i].DocID] || (articles[i].PublicID != "" && wanted[articles[i].PublicID]) {
				return &articles[i], nil
			}
		}
	}

	return nil, ports.ErrNotFound
}

// UpdatePublicID backfills the public id of a cached article.
func (c *FileCache) UpdatePublicID(_ context.Context, docID, publicID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for collection := range cacheFiles {
		articles, err := c.load(collection)
		if err != nil {
			return err
		}
		for i := range articles {
			if articles[i].DocID == docID {
				articles[i].PublicID = publicID
				return c.save(collection, articles)
			}
		}
	}
	return nil
}

// Delete removes the article from whichever collection holds it.
func (c *FileCache) Delete(_ context.Context, docID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for collection := range cacheFiles {
		articles, err := c.load(collection)
		if err != nil {
			return err
		}
		for i := range articles {
			if articles[i].DocID == docID {
				articles = append(articles[:i], articles[i+1:]...)
				return c.save(collection, articles)
			}
		}
	}
	return nil
}

type refreshStamp struct {
	LastRefreshAt int64 `json:"lastRefreshAt"`
}

// LastRefreshAt reads the local refresh stamp.
func (c *FileCache) LastRefreshAt(_ context.Context) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(c.dir, stampFile))
	if os.IsNotExist(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read refresh stamp: %w", err)
	}

	var stamp refreshStamp
	if err := json.Unmarshal(raw, &stamp); err != nil || stamp.LastRefreshAt == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(stamp.LastRefreshAt), nil
}

// StampRefresh writes the local refresh stamp.
func (c *FileCache) StampRefresh(_ context.Context, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.Marshal(refreshStamp{LastRefreshAt: at.UnixMilli()})
	if err != nil {
		return fmt.Errorf("marshal refresh stamp: %w", err)
	}
	return c.writeAtomic(stampFile, raw)
}

func (c *FileCache) load(collection domain.Collection) ([]domain.Article, error) {
	name, ok := cacheFiles[collection]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}

	raw, err := os.ReadFile(filepath.Join(c.dir, name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", name, err)
	}

	var articles []domain.Article
	if err := json.Unmarshal(raw, &articles); err != nil {
		// A corrupt cache is treated as empty; the next refresh or list
		// rewrites the baseline.
		return nil, nil
	}
	return articles, nil
}

func (c *FileCache) save(collection domain.Collection, articles []domain.Article) error {
	name, ok := cacheFiles[collection]
	if !ok {
		return fmt.Errorf("unknown collection %q", collection)
	}

	if articles == nil {
		articles = []domain.Article{}
	}
	raw, err := json.MarshalIndent(articles, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache %s: %w", name, err)
	}
	return c.writeAtomic(name, raw)
}

func (c *FileCache) writeAtomic(name string, data []byte) error {
	path := filepath.Join(c.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func sortByPublishedDesc(articles []domain.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAtTS > articles[j].PublishedAtTS
	})
}
