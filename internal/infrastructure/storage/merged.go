package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/identity"
	"NewsDesk/internal/metrics"
	"NewsDesk/internal/ports"
)

// LocalCache is the contract the merging decorator needs from the local
// backend beyond the common store operations: full reads and baseline
// rewrites.
type LocalCache interface {
	ports.ArticleStore
	All(ctx context.Context, collection domain.Collection) ([]domain.Article, error)
	ReplaceAll(ctx context.Context, collection domain.Collection, articles []domain.Article) error
}

// MergedStore composes the remote store and the local cache behind the
// ArticleStore port. Writes go through to both (remote best-effort: the
// local copy still updates when the cloud write fails — availability over
// consistency for a low-stakes content pipeline). Reads merge cloud pages
// with locally cached extras, cloud version winning for shared ids. A nil
// remote runs the service on the local cache alone.
type MergedStore struct {
	remote ports.ArticleStore
	local  LocalCache
	logger *slog.Logger

	backfills sync.WaitGroup
}

var _ ports.ArticleStore = (*MergedStore)(nil)

// NewMergedStore builds the decorator. remote may be nil.
func NewMergedStore(remote ports.ArticleStore, local LocalCache, logger *slog.Logger) *MergedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MergedStore{remote: remote, local: local, logger: logger}
}

// Upsert writes through to both backends.
func (m *MergedStore) Upsert(ctx context.Context, article domain.Article) error {
	if m.remote != nil {
		if err := m.remote.Upsert(ctx, article); err != nil {
			metrics.ArticlesUpserted.WithLabelValues(string(article.Collection), "remote", "error").Inc()
			m.logger.Warn("remote upsert failed, local copy still updates",
				"docId", article.DocID, "error", err)
		} else {
			metrics.ArticlesUpserted.WithLabelValues(string(article.Collection), "remote", "ok").Inc()
		}
	}

	if err := m.local.Upsert(ctx, article); err != nil {
		metrics.ArticlesUpserted.WithLabelValues(string(article.Collection), "local", "error").Inc()
		return err
	}
	metrics.ArticlesUpserted.WithLabelValues(string(article.Collection), "local", "ok").Inc()
	return nil
}

// List fetches the remote page, merges in locally cached articles missing
// from it, sorts the union newest first and persists it back as the new
// local baseline. The remote version wins for articles present in both.
func (m *MergedStore) List(ctx context.Context, collection domain.Collection, limit, offset int) ([]domain.Article, bool, error) {
	if m.remote == nil {
		return m.local.List(ctx, collection, limit, offset)
	}

	page, hasMore, err := m.remote.List(ctx, collection, limit, offset)
	if err != nil {
		m.logger.Warn("remote list failed, serving local cache", "collection", collection, "error", err)
		return m.local.List(ctx, collection, limit, offset)
	}

	cached, err := m.local.All(ctx, collection)
	if err != nil {
		m.logger.Warn("local cache read failed", "collection", collection, "error", err)
		cached = nil
	}

	merged := mergeCloudWins(page, cached)
	sortByPublishedDesc(merged)

	if err := m.local.ReplaceAll(ctx, collection, merged); err != nil {
		m.logger.Warn("cache baseline rewrite failed", "collection", collection, "error", err)
	}

	return merged, hasMore, nil
}

// FindByAnyID resolves the article remote-first, falling back to the local
// cache, and lazily backfills a missing public id without blocking the read.
func (m *MergedStore) FindByAnyID(ctx context.Context, candidates []string) (*domain.Article, error) {
	if m.remote != nil {
		article, err := m.remote.FindByAnyID(ctx, candidates)
		if err == nil {
			return m.withPublicID(article), nil
		}
		if !errors.Is(err, ports.ErrNotFound) {
			m.logger.Warn("remote lookup failed, trying local cache", "error", err)
		}
	}

	article, err := m.local.FindByAnyID(ctx, candidates)
	if err != nil {
		return nil, err
	}
	return m.withPublicID(article), nil
}

// withPublicID computes a missing public id on the fly and schedules an
// asynchronous merge-write to persist it.
func (m *MergedStore) withPublicID(article *domain.Article) *domain.Article {
	if article == nil || article.PublicID != "" || article.SourceURL == "" {
		return article
	}

	article.PublicID = identity.PublicID(article.SourceURL)

	docID, publicID := article.DocID, article.PublicID
	m.backfills.Add(1)
	go func() {
		defer m.backfills.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if m.remote != nil {
			if err := m.remote.UpdatePublicID(ctx, docID, publicID); err != nil {
				m.logger.Warn("remote public id backfill failed", "docId", docID, "error", err)
			}
		}
		if err := m.local.UpdatePublicID(ctx, docID, publicID); err != nil {
			m.logger.Warn("local public id backfill failed", "docId", docID, "error", err)
		}
	}()

	return article
}

// UpdatePublicID writes through to both backends.
func (m *MergedStore) UpdatePublicID(ctx context.Context, docID, publicID string) error {
	if m.remote != nil {
		if err := m.remote.UpdatePublicID(ctx, docID, publicID); err != nil {
			m.logger.Warn("remote public id update failed", "docId", docID, "error", err)
		}
	}
	return m.local.UpdatePublicID(ctx, docID, publicID)
}

// Delete removes the article from both backends. A remote failure is
// reported: the cloud store is authoritative for admin deletions.
func (m *MergedStore) Delete(ctx context.Context, docID string) error {
	var remoteErr error
	if m.remote != nil {
		remoteErr = m.remote.Delete(ctx, docID)
	}
	if err := m.local.Delete(ctx, docID); err != nil {
		return err
	}
	return remoteErr
}

// LastRefreshAt prefers the remote stamp, falling back to the local one.
func (m *MergedStore) LastRefreshAt(ctx context.Context) (time.Time, error) {
	if m.remote != nil {
		at, err := m.remote.LastRefreshAt(ctx)
		if err == nil && !at.IsZero() {
			return at, nil
		}
		if err != nil {
			m.logger.Warn("remote refresh stamp read failed", "error", err)
		}
	}
	return m.local.LastRefreshAt(ctx)
}

// StampRefresh writes the stamp to both backends.
func (m *MergedStore) StampRefresh(ctx context.Context, at time.Time) error {
	if m.remote != nil {
		if err := m.remote.StampRefresh(ctx, at); err != nil {
			m.logger.Warn("remote refresh stamp write failed", "error", err)
		}
	}
	return m.local.StampRefresh(ctx, at)
}

// waitBackfills blocks until scheduled backfills finish. Test helper.
func (m *MergedStore) waitBackfills() {
	m.backfills.Wait()
}

// mergeCloudWins unions a remote page with cached articles, keeping the
// remote version for ids present in both.
func mergeCloudWins(page, cached []domain.Article) []domain.Article {
	seen := make(map[string]bool, len(page))
	merged := make([]domain.Article, 0, len(page)+len(cached))
	for _, a := range page {
		seen[a.DocID] = true
		merged = append(merged, a)
	}
	for _, a := range cached {
		if !seen[a.DocID] {
			merged = append(merged, a)
		}
	}
	return merged
}
