// Package httpapi exposes the read API, the refresh trigger and the feed
// relay over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/identity"
	"NewsDesk/internal/metrics"
	"NewsDesk/internal/ports"
	"NewsDesk/internal/usecase"
)

const (
	relayTimeout  = 15 * time.Second
	maxRelayBytes = 10 << 20
)

// Server holds the HTTP surface. The refresher runs the pipeline, the store
// serves reads and admin deletes.
type Server struct {
	engine    *gin.Engine
	refresher *usecase.Refresher
	store     ports.ArticleStore

	adminToken  string
	relayClient *http.Client
	logger      *slog.Logger
}

// NewServer builds the gin engine with all routes registered.
func NewServer(refresher *usecase.Refresher, store ports.ArticleStore, adminToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:      engine,
		refresher:   refresher,
		store:       store,
		adminToken:  adminToken,
		relayClient: &http.Client{Timeout: relayTimeout},
		logger:      logger,
	}

	engine.Use(s.countRequests)

	engine.GET("/health", s.health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/api/rss", s.relayFeed)

	api := engine.Group("/api/news")
	api.GET("", s.listArticles)
	api.GET("/article", s.getArticle)
	api.POST("/refresh", s.triggerRefresh)
	api.GET("/status", s.status)

	admin := engine.Group("/api/admin", s.requireAdmin)
	admin.DELETE("/articles/:id", s.deleteArticle)

	return s
}

// Handler exposes the engine for the HTTP server and for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the listener and blocks until the context is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) countRequests(c *gin.Context) {
	c.Next()

	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	metrics.HTTPRequestsTotal.WithLabelValues(
		c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
	).Inc()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// relayFeed proxies a feed URL server-side so browser clients never hit
// third-party CORS proxies. Only http(s) targets are allowed.
func (s *Server) relayFeed(c *gin.Context) {
	target := c.Query("url")
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be an absolute http(s) URL"})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, target, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid url"})
		return
	}
	req.Header.Set("User-Agent", "NewsDesk/1.0 (feed relay)")

	resp, err := s.relayClient.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream fetch failed"})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream returned " + resp.Status})
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayBytes))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream read failed"})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/xml; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, body)
}

func (s *Server) listArticles(c *gin.Context) {
	collection, ok := collectionFromQuery(c.DefaultQuery("collection", "news"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection must be news or comingsoon"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	articles, hasMore, err := s.store.List(c.Request.Context(), collection, limit, offset)
	if err != nil {
		s.logger.Error("list articles failed", "collection", collection, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot list articles"})
		return
	}
	if articles == nil {
		articles = []domain.Article{}
	}

	c.JSON(http.StatusOK, gin.H{
		"articles":   articles,
		"nextOffset": offset + len(articles),
		"hasMore":    hasMore,
	})
}

// getArticle resolves the id leniently: raw value, percent-decoded value and
// the re-encoded document key are all tried, so both public ids and plain
// source links work.
func (s *Server) getArticle(c *gin.Context) {
	id := c.Query("article")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "article query parameter required"})
		return
	}

	article, err := s.store.FindByAnyID(c.Request.Context(), identity.Candidates(id))
	if errors.Is(err, ports.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
		return
	}
	if err != nil {
		s.logger.Error("article lookup failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, article)
}

func (s *Server) triggerRefresh(c *gin.Context) {
	results, err := s.refresher.RefreshAll(c.Request.Context(), "manual")
	if errors.Is(err, usecase.ErrAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": "refresh already running"})
		return
	}
	if err != nil {
		s.logger.Error("manual refresh failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) status(c *gin.Context) {
	lastRefresh, err := s.refresher.LastRefreshAt(c.Request.Context())
	if err != nil {
		s.logger.Warn("refresh stamp read failed", "error", err)
	}

	resp := gin.H{"feeds": s.refresher.Status()}
	if !lastRefresh.IsZero() {
		resp["lastRefreshAt"] = lastRefresh.UnixMilli()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) requireAdmin(c *gin.Context) {
	if s.adminToken == "" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin API disabled"})
		return
	}

	auth := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token != s.adminToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
		return
	}
	c.Next()
}

func (s *Server) deleteArticle(c *gin.Context) {
	id := c.Param("id")

	article, err := s.store.FindByAnyID(c.Request.Context(), identity.Candidates(id))
	if errors.Is(err, ports.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
		return
	}
	if err != nil {
		s.logger.Error("delete lookup failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	if err := s.store.Delete(c.Request.Context(), article.DocID); err != nil {
		s.logger.Error("delete failed", "docId", article.DocID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}

	s.logger.Info("article deleted", "docId", article.DocID)
	c.Status(http.StatusNoContent)
}

func collectionFromQuery(value string) (domain.Collection, bool) {
	switch value {
	case "news", string(domain.CollectionNews):
		return domain.CollectionNews, true
	case "comingsoon", "coming-soon", string(domain.CollectionComingSoon):
		return domain.CollectionComingSoon, true
	default:
		return "", false
	}
}
