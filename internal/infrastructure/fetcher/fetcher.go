// Package fetcher retrieves raw feed XML through a chain of candidate
// sources: a server-side relay when configured, public passthrough proxies,
// a readability mirror, and finally the feed URL itself. The first candidate
// that answers 2xx wins; the caller sees a single aggregated error only when
// every candidate failed.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"NewsDesk/internal/metrics"
	"NewsDesk/internal/ports"
)

// maxFeedSize bounds how much of a response is read. 10MB is far above any
// real feed document.
const maxFeedSize = 10 * 1024 * 1024

type candidate struct {
	name string
	url  string
}

// Fetcher implements ports.FeedFetcher over a shared HTTP client.
type Fetcher struct {
	client   *http.Client
	relayURL string
	logger   *slog.Logger

	// chain builds the candidate list; replaced in tests to avoid public
	// proxies.
	chain func(feedURL string) []candidate
}

var _ ports.FeedFetcher = (*Fetcher)(nil)

// New wires an HTTP client; relayURL may be empty, which skips the relay
// candidate.
func New(client *http.Client, relayURL string, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{client: client, relayURL: strings.TrimRight(relayURL, "/"), logger: logger}
	f.chain = f.candidates
	return f
}

// FetchXML walks the candidate chain and returns the first successful body.
func (f *Fetcher) FetchXML(ctx context.Context, feedURL string) (string, error) {
	candidates := f.chain(feedURL)

	failures := make([]string, 0, len(candidates))
	for _, c := range candidates {
		body, err := f.fetchOne(ctx, c.url)
		if err != nil {
			metrics.FeedFetchesTotal.WithLabelValues(c.name, "error").Inc()
			f.logger.Debug("feed candidate failed", "candidate", c.name, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", c.name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		metrics.FeedFetchesTotal.WithLabelValues(c.name, "ok").Inc()
		f.logger.Debug("feed fetched", "candidate", c.name, "bytes", len(body))
		return body, nil
	}

	return "", fmt.Errorf("all feed sources failed for %s: %s", feedURL, strings.Join(failures, "; "))
}

// candidates builds the fallback chain in priority order. The relay avoids
// proxy rate limits and is preferred when configured; the raw URL comes last
// since most feed hosts reject cross-origin consumers.
func (f *Fetcher) candidates(feedURL string) []candidate {
	encoded := url.QueryEscape(feedURL)
	stripped := strings.TrimPrefix(strings.TrimPrefix(feedURL, "https://"), "http://")

	out := make([]candidate, 0, 6)
	if f.relayURL != "" {
		out = append(out, candidate{name: "relay", url: f.relayURL + "?url=" + encoded})
	}
	out = append(out,
		candidate{name: "allorigins", url: "https://api.allorigins.win/raw?url=" + encoded},
		candidate{name: "corsproxy", url: "https://corsproxy.io/?" + encoded},
		candidate{name: "mirror-http", url: "http://r.jina.ai/https://" + stripped},
		candidate{name: "mirror-https", url: "https://r.jina.ai/https://" + stripped},
		candidate{name: "direct", url: feedURL},
	)
	return out
}

func (f *Fetcher) fetchOne(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "NewsDesk/1.0 (feed ingestion)")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxFeedSize {
		return "", fmt.Errorf("response exceeds %d bytes", maxFeedSize)
	}

	return string(body), nil
}
