package ports

import (
	"context"
	"errors"
	"time"

	"NewsDesk/internal/domain"
)

// ErrNotFound is returned by article lookups that exhausted every candidate
// id and every collection.
var ErrNotFound = errors.New("article not found")

// FeedFetcher retrieves the raw XML of a feed, falling back through a chain
// of candidate sources. It fails only when every candidate failed.
type FeedFetcher interface {
	FetchXML(ctx context.Context, feedURL string) (string, error)
}

// Rewriter produces a structured Italian rewrite of a source item. A rewrite
// with all fields empty and a nil error means the feature is unavailable
// (no credential configured); callers fall back to raw source fields.
type Rewriter interface {
	RewriteWithMinWords(ctx context.Context, item domain.RawFeedItem, minWords int) (domain.Rewrite, error)
}

// ArticleStore persists and serves articles. The merged implementation
// composes a remote and a local backend behind this same contract.
type ArticleStore interface {
	// Upsert merge-writes the article under its DocID; source fields and
	// the publication timestamp are preserved on updates.
	Upsert(ctx context.Context, article domain.Article) error

	// List returns a page of the collection ordered by publication
	// timestamp descending, and whether more pages follow.
	List(ctx context.Context, collection domain.Collection, limit, offset int) ([]domain.Article, bool, error)

	// FindByAnyID resolves an article by any of the candidate ids (document
	// key or public id), across both collections. Returns ErrNotFound when
	// everything missed.
	FindByAnyID(ctx context.Context, candidates []string) (*domain.Article, error)

	// UpdatePublicID backfills the public id of a legacy article without
	// touching any other field.
	UpdatePublicID(ctx context.Context, docID, publicID string) error

	// Delete removes an article by document key. Explicit admin action,
	// independent of feed refresh.
	Delete(ctx context.Context, docID string) error

	// LastRefreshAt returns the stamp of the last completed refresh run, or
	// the zero time when none was recorded.
	LastRefreshAt(ctx context.Context) (time.Time, error)

	// StampRefresh records the completion time of a refresh run.
	StampRefresh(ctx context.Context, at time.Time) error
}

// Scheduler controls when the auto-refresh job executes.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
