package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

func newTestCache(t *testing.T) *FileCache {
	t.Helper()
	cache, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("new file cache: %v", err)
	}
	return cache
}

func article(docID string, collection domain.Collection, ts int64) domain.Article {
	return domain.Article{
		DocID:         docID,
		Collection:    collection,
		Title:         "title " + docID,
		SourceURL:     "https://site/" + docID,
		PublishedAtTS: ts,
	}
}

func TestFileCacheUpsertReplacesById(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := newTestCache(t)

	a := article("a", domain.CollectionNews, 100)
	if err := cache.Upsert(ctx, a); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	a.Title = "updated"
	if err := cache.Upsert(ctx, a); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	all, err := cache.All(ctx, domain.CollectionNews)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 article, got %d", len(all))
	}
	if all[0].Title != "updated" {
		t.Fatalf("expected replacement, got %q", all[0].Title)
	}
}

func TestFileCacheListOrdersAndPages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := newTestCache(t)

	for _, a := range []domain.Article{
		article("old", domain.CollectionNews, 100),
		article("new", domain.CollectionNews, 300),
		article("mid", domain.CollectionNews, 200),
	} {
		if err := cache.Upsert(ctx, a); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	page, hasMore, err := cache.List(ctx, domain.CollectionNews, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !hasMore {
		t.Fatalf("expected more pages")
	}
	if len(page) != 2 || page[0].DocID != "new" || page[1].DocID != "mid" {
		t.Fatalf("unexpected page: %+v", page)
	}

	page, hasMore, err = cache.List(ctx, domain.CollectionNews, 2, 2)
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if hasMore || len(page) != 1 || page[0].DocID != "old" {
		t.Fatalf("unexpected last page: %+v hasMore=%v", page, hasMore)
	}
}

func TestFileCacheCollectionsAreSeparate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := newTestCache(t)

	if err := cache.Upsert(ctx, article("n", domain.CollectionNews, 1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := cache.Upsert(ctx, article("c", domain.CollectionComingSoon, 1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	news, _, _ := cache.List(ctx, domain.CollectionNews, 10, 0)
	soon, _, _ := cache.List(ctx, domain.CollectionComingSoon, 10, 0)
	if len(news) != 1 || news[0].DocID != "n" {
		t.Fatalf("news collection polluted: %+v", news)
	}
	if len(soon) != 1 || soon[0].DocID != "c" {
		t.Fatalf("coming-soon collection polluted: %+v", soon)
	}
}

func TestFileCacheFindByAnyID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := newTestCache(t)

	a := article("doc-1", domain.CollectionComingSoon, 1)
	a.PublicID = "nabc123"
	if err := cache.Upsert(ctx, a); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	byDoc, err := cache.FindByAnyID(ctx, []string{"missing", "doc-1"})
	if err != nil {
		t.Fatalf("find by doc id: %v", err)
	}
	if byDoc.DocID != "doc-1" {
		t.Fatalf("unexpected hit: %+v", byDoc)
	}

	byPublic, err := cache.FindByAnyID(ctx, []string{"nabc123"})
	if err != nil {
		t.Fatalf("find by public id: %v", err)
	}
	if byPublic.DocID != "doc-1" {
		t.Fatalf("unexpected hit: %+v", byPublic)
	}

	if _, err := cache.FindByAnyID(ctx, []string{"nope"}); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileCacheUpdatePublicIDAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := newTestCache(t)

	if err := cache.Upsert(ctx, article("doc-1", domain.CollectionNews, 1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := cache.UpdatePublicID(ctx, "doc-1", "nxyz"); err != nil {
		t.Fatalf("update public id: %v", err)
	}
	got, err := cache.FindByAnyID(ctx, []string{"nxyz"})
	if err != nil {
		t.Fatalf("find after backfill: %v", err)
	}
	if got.Title != "title doc-1" {
		t.Fatalf("backfill must not touch other fields: %+v", got)
	}

	if err := cache.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cache.FindByAnyID(ctx, []string{"doc-1"}); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestFileCacheRefreshStampRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := newTestCache(t)

	at, err := cache.LastRefreshAt(ctx)
	if err != nil {
		t.Fatalf("initial stamp read: %v", err)
	}
	if !at.IsZero() {
		t.Fatalf("expected zero time before first stamp, got %v", at)
	}

	now := time.Now().Truncate(time.Millisecond)
	if err := cache.StampRefresh(ctx, now); err != nil {
		t.Fatalf("stamp: %v", err)
	}

	at, err = cache.LastRefreshAt(ctx)
	if err != nil {
		t.Fatalf("stamp read: %v", err)
	}
	if !at.Equal(now) {
		t.Fatalf("stamp round trip: got %v, want %v", at, now)
	}
}

func TestFileCacheCorruptFileTreatedAsEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	cache, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("new file cache: %v", err)
	}

	path := filepath.Join(dir, cacheFiles[domain.CollectionNews])
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt cache: %v", err)
	}

	all, err := cache.All(ctx, domain.CollectionNews)
	if err != nil {
		t.Fatalf("all on corrupt cache: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("corrupt cache must read as empty, got %d", len(all))
	}
}
