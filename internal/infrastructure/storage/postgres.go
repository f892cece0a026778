// Package storage persists articles in two backends: a remote Postgres store
// and a local JSON file cache, composed behind the ArticleStore port by a
// merging decorator that implements the cloud-wins read/write-through rules.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

const metaKey = "news_refresh"

// PostgresStore is the remote article store.
type PostgresStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.ArticleStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema creates the tables and indexes when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS news_articles (
		doc_id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		public_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		subtitle TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		bullets TEXT[] NOT NULL DEFAULT '{}',
		image_url TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL,
		source_title TEXT NOT NULL DEFAULT '',
		published_at TEXT NOT NULL DEFAULT '',
		published_at_ts BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_news_articles_collection_ts
		ON news_articles (collection, published_at_ts DESC);
	CREATE INDEX IF NOT EXISTS idx_news_articles_public_id
		ON news_articles (public_id);

	CREATE TABLE IF NOT EXISTS news_meta (
		key TEXT PRIMARY KEY,
		last_refresh_at TIMESTAMPTZ
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Upsert merge-writes the article. Source fields and the publication
// timestamp are written on insert and preserved on updates; rewritten fields
// follow every refresh.
func (s *PostgresStore) Upsert(ctx context.Context, article domain.Article) error {
	query := s.builder.
		Insert("news_articles").
		Columns("doc_id", "collection", "public_id", "title", "subtitle", "body",
			"bullets", "image_url", "source_url", "source_title",
			"published_at", "published_at_ts").
		Values(article.DocID, string(article.Collection), article.PublicID,
			article.Title, article.Subtitle, article.Body,
			pq.Array(article.Bullets), article.ImageURL, article.SourceURL,
			article.SourceTitle, article.PublishedAt, article.PublishedAtTS).
		Suffix(`ON CONFLICT (doc_id) DO UPDATE SET
			collection = EXCLUDED.collection,
			public_id = EXCLUDED.public_id,
			title = EXCLUDED.title,
			subtitle = EXCLUDED.subtitle,
			body = EXCLUDED.body,
			bullets = EXCLUDED.bullets,
			image_url = EXCLUDED.image_url,
			source_title = EXCLUDED.source_title,
			updated_at = NOW()`)

	if _, err := query.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("upsert article %s: %w", article.DocID, err)
	}
	return nil
}

// List returns one page of the collection, newest first. When the ordered
// query fails (the remote counterpart of a missing composite index) it
// degrades to an unordered limited query rather than failing the listing.
func (s *PostgresStore) List(ctx context.Context, collection domain.Collection, limit, offset int) ([]domain.Article, bool, error) {
	if limit <= 0 {
		limit = 20
	}

	ordered := s.selectArticles().
		Where(sq.Eq{"collection": string(collection)}).
		OrderBy("published_at_ts DESC").
		Limit(uint64(limit + 1)).
		Offset(uint64(offset))

	articles, err := s.queryArticles(ctx, ordered)
	if err != nil {
		unordered := s.selectArticles().
			Where(sq.Eq{"collection": string(collection)}).
			Limit(uint64(limit + 1)).
			Offset(uint64(offset))
		articles, err = s.queryArticles(ctx, unordered)
		if err != nil {
			return nil, false, fmt.Errorf("list %s: %w", collection, err)
		}
	}

	hasMore := len(articles) > limit
	if hasMore {
		articles = articles[:limit]
	}
	return articles, hasMore, nil
}

// FindByAnyID tries every candidate as a document key, then as a public id,
// preferring the general news collection as the lookup order requires.
func (s *PostgresStore) FindByAnyID(ctx context.Context, candidates []string) (*domain.Article, error) {
	if len(candidates) == 0 {
		return nil, ports.ErrNotFound
	}

	for _, column := range []string{"doc_id", "public_id"} {
		query := s.selectArticles().Where(sq.Eq{column: candidates})
		articles, err := s.queryArticles(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("find by %s: %w", column, err)
		}
		if hit := preferNews(articles); hit != nil {
			return hit, nil
		}
	}

	return nil, ports.ErrNotFound
}

// UpdatePublicID backfills the public id without touching any other field.
func (s *PostgresStore) UpdatePublicID(ctx context.Context, docID, publicID string) error {
	query := s.builder.
		Update("news_articles").
		Set("public_id", publicID).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"doc_id": docID})

	if _, err := query.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("backfill public id for %s: %w", docID, err)
	}
	return nil
}

// Delete removes the article by document key.
func (s *PostgresStore) Delete(ctx context.Context, docID string) error {
	query := s.builder.Delete("news_articles").Where(sq.Eq{"doc_id": docID})
	if _, err := query.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("delete article %s: %w", docID, err)
	}
	return nil
}

// LastRefreshAt reads the refresh stamp; zero time when never stamped.
func (s *PostgresStore) LastRefreshAt(ctx context.Context) (time.Time, error) {
	query := s.builder.
		Select("last_refresh_at").
		From("news_meta").
		Where(sq.Eq{"key": metaKey})

	var at sql.NullTime
	err := query.RunWith(s.db).QueryRowContext(ctx).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read refresh stamp: %w", err)
	}
	if !at.Valid {
		return time.Time{}, nil
	}
	return at.Time, nil
}

// StampRefresh records a completed run.
func (s *PostgresStore) StampRefresh(ctx context.Context, at time.Time) error {
	query := s.builder.
		Insert("news_meta").
		Columns("key", "last_refresh_at").
		Values(metaKey, at).
		Suffix("ON CONFLICT (key) DO UPDATE SET last_refresh_at = EXCLUDED.last_refresh_at")

	if _, err := query.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("stamp refresh: %w", err)
	}
	return nil
}

func (s *PostgresStore) selectArticles() sq.SelectBuilder {
	return s.builder.
		Select("doc_id", "collection", "public_id", "title", "subtitle", "body",
			"bullets", "image_url", "source_url", "source_title",
			"published_at", "published_at_ts").
		From("news_articles")
}

func (s *PostgresStore) queryArticles(ctx context.Context, query sq.SelectBuilder) ([]domain.Article, error) {
	rows, err := query.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		var a domain.Article
		var collection string
		if err := rows.Scan(&a.DocID, &collection, &a.PublicID, &a.Title,
			&a.Subtitle, &a.Body, pq.Array(&a.Bullets), &a.ImageURL,
			&a.SourceURL, &a.SourceTitle, &a.PublishedAt, &a.PublishedAtTS); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.Collection = domain.Collection(collection)
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return articles, nil
}

// preferNews picks the general-news hit when a candidate matched in both
// collections, mirroring the lookup order of the detail view.
func preferNews(articles []domain.Article) *domain.Article {
	var fallback *domain.Article
	for i := range articles {
		if articles[i].Collection == domain.CollectionNews {
			return &articles[i]
		}
		if fallback == nil {
			fallback = &articles[i]
		}
	}
	return fallback
}
