package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Feed ingestion metrics
	FeedFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_feed_fetches_total",
			Help: "Total number of feed fetch attempts by candidate source",
		},
		[]string{"candidate", "status"},
	)

	FeedItemsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_feed_items_parsed_total",
			Help: "Total number of well-formed feed items parsed",
		},
		[]string{"feed"},
	)

	RewritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_rewrites_total",
			Help: "Total number of rewrite attempts",
		},
		[]string{"feed", "status"},
	)

	RewriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsdesk_rewrite_duration_seconds",
			Help:    "Rewrite duration in seconds, expansions included",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Storage metrics
	ArticlesUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_articles_upserted_total",
			Help: "Total number of article upserts by backend",
		},
		[]string{"collection", "backend", "status"},
	)

	RefreshRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_refresh_runs_total",
			Help: "Total number of refresh runs",
		},
		[]string{"feed", "trigger", "status"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)
)
