// Package app wires configuration to the adapters and owns the process
// lifecycle.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"NewsDesk/internal/config"
	"NewsDesk/internal/infrastructure/fetcher"
	"NewsDesk/internal/infrastructure/httpapi"
	"NewsDesk/internal/infrastructure/llm"
	"NewsDesk/internal/infrastructure/parser"
	"NewsDesk/internal/infrastructure/scheduler"
	"NewsDesk/internal/infrastructure/storage"
	"NewsDesk/internal/logging"
	"NewsDesk/internal/ports"
	"NewsDesk/internal/usecase"
)

// Application holds the wired components.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	refresher *usecase.Refresher
	server    *httpapi.Server
	scheduler ports.Scheduler
	db        *sql.DB
}

// New builds the application: storage (Postgres when a DSN is configured,
// always the local file cache), the feed fetcher, the rewriter and the
// refresh orchestrator behind the HTTP server.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	local, err := storage.NewFileCache(cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}

	var db *sql.DB
	var remote ports.ArticleStore
	if cfg.Database.DSN != "" {
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		pg := storage.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		remote = pg
	} else {
		baseLogger.Info("no database configured, running on the local cache alone")
	}

	store := storage.NewMergedStore(remote, local, baseLogger.With("component", "store"))

	feedFetcher := fetcher.New(
		&http.Client{Timeout: cfg.Fetcher.Timeout.Std()},
		cfg.Fetcher.RelayURL,
		baseLogger.With("component", "fetcher"),
	)

	rewriter := llm.NewRewriter(cfg.LLM, baseLogger.With("component", "rewriter"))
	if cfg.LLM.APIKey == "" {
		baseLogger.Info("no LLM api key configured, articles keep their source fields only")
	}

	refresher := usecase.NewRefresher(usecase.RefresherDeps{
		Fetcher:     feedFetcher,
		Parser:      parser.Parse,
		Rewriter:    rewriter,
		Store:       store,
		Logger:      baseLogger.With("component", "refresher"),
		Feeds:       cfg.Feeds,
		MinWords:    cfg.LLM.MinWords,
		MinInterval: cfg.Refresh.MinInterval.Std(),
	})

	server := httpapi.NewServer(refresher, store, cfg.Server.AdminToken, baseLogger.With("component", "http"))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		refresher: refresher,
		server:    server,
		scheduler: scheduler.NewTickerScheduler(cfg.Refresh.CheckEvery.Std()),
		db:        db,
	}, nil
}

// Run starts the periodic refresh check and the HTTP server, blocking until
// the context is canceled.
func (a *Application) Run(ctx context.Context) error {
	if a.cfg.Refresh.Auto {
		err := a.scheduler.Start(ctx, func(time.Time) {
			jobCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			defer cancel()
			a.refresher.AutoRefresh(jobCtx)
		})
		if err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer a.scheduler.Stop(context.Background())
	}

	a.logger.Info("http server starting", "addr", a.cfg.Server.Addr)
	err := a.server.Run(ctx, a.cfg.Server.Addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunOnce performs a single refresh run and returns, for cron-style use.
func (a *Application) RunOnce(ctx context.Context) error {
	results, err := a.refresher.RefreshAll(ctx, "once")
	if err != nil {
		return err
	}
	a.logger.Info("refresh run complete", "summary", usecase.Describe(results))

	for _, res := range results {
		if res.Error != "" {
			return fmt.Errorf("feed %s failed: %s", res.Feed, res.Error)
		}
	}
	return nil
}

// Close releases held resources.
func (a *Application) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
