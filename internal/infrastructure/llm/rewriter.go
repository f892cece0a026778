// Package llm implements the rewrite engine: a chat-completions client that
// turns a raw feed item into an original Italian article as strict JSON, with
// a bounded expansion loop enforcing a best-effort minimum body length.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"NewsDesk/internal/config"
	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
	"NewsDesk/pkg/retry"
)

const (
	// attemptTimeout aborts a single completion call; the retry policy may
	// try again afterwards.
	attemptTimeout = 20 * time.Second

	transportAttempts  = 3
	transportBaseDelay = 700 * time.Millisecond
)

// Rewriter implements ports.Rewriter backed by an OpenAI-compatible API.
// An empty API key puts it in the disabled state: calls return an all-empty
// rewrite without touching the network.
type Rewriter struct {
	endpoint      string
	model         string
	apiKey        string
	temperature   float64
	maxExpansions int
	httpClient    *http.Client
	logger        *slog.Logger
	baseDelay     time.Duration
}

var _ ports.Rewriter = (*Rewriter)(nil)

// NewRewriter builds a client from configuration.
func NewRewriter(cfg config.LLMConfig, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{
		endpoint:      cfg.Endpoint,
		model:         cfg.Model,
		apiKey:        cfg.APIKey,
		temperature:   cfg.Temperature,
		maxExpansions: cfg.MaxExpansions,
		httpClient:    &http.Client{},
		logger:        logger,
		baseDelay:     transportBaseDelay,
	}
}

// RewriteWithMinWords produces the structured rewrite and, when the body
// falls short of minWords, issues up to maxExpansions follow-up calls. The
// floor is best-effort: the final state is returned regardless.
func (r *Rewriter) RewriteWithMinWords(ctx context.Context, item domain.RawFeedItem, minWords int) (domain.Rewrite, error) {
	if r.apiKey == "" {
		return domain.Rewrite{}, nil
	}

	content, err := r.complete(ctx, rewriteMessages(item))
	if err != nil {
		return domain.Rewrite{}, fmt.Errorf("initial rewrite: %w", err)
	}
	result := decodeRewrite(content)

	for attempt := 1; wordCount(result.Body) < minWords && attempt <= r.maxExpansions; attempt++ {
		r.logger.Debug("rewrite under minimum length, expanding",
			"link", item.Link, "words", wordCount(result.Body), "attempt", attempt)

		content, err = r.complete(ctx, expandMessages(result, minWords))
		if err != nil {
			// Keep the best result obtained so far.
			r.logger.Warn("expansion call failed", "link", item.Link, "error", err)
			break
		}
		if expanded := decodeRewrite(content); !expanded.Empty() {
			result = expanded
		}
	}

	return result, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// complete performs one logical completion with transport retries: 3 attempts
// with linear backoff, retrying only rate limits, server errors and timeouts.
func (r *Rewriter) complete(ctx context.Context, messages []message) (string, error) {
	var content string
	err := retry.Do(ctx, retry.Config{
		Attempts:  transportAttempts,
		BaseDelay: r.baseDelay,
		Retryable: retryableError,
	}, func() error {
		var callErr error
		content, callErr = r.call(ctx, messages)
		return callErr
	})
	return content, err
}

func (r *Rewriter) call(ctx context.Context, messages []message) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":           r.model,
		"messages":        messages,
		"temperature":     r.temperature,
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(payload))}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}

	return parsed.Choices[0].Message.Content, nil
}

// statusError carries the provider's HTTP status and error body.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("completion endpoint returned %d: %s", e.code, e.body)
}

// retryableError admits rate limits, server errors and transport/timeout
// failures; every other HTTP error surfaces immediately.
func retryableError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

func rewriteMessages(item domain.RawFeedItem) []message {
	var b strings.Builder
	b.WriteString("Riscrivi questa notizia di cinema/serie TV in italiano.\n")
	b.WriteString("Regole:\n")
	b.WriteString("- riformula completamente, nessuna frase copiata letteralmente\n")
	b.WriteString("- non inventare fatti non presenti nella fonte\n")
	b.WriteString("- il titolo deve essere diverso da quello originale\n")
	b.WriteString("- corpo tra 250 e 350 parole\n")
	b.WriteString("Rispondi SOLO con JSON valido con esattamente queste chiavi:\n")
	b.WriteString(`{"title": "...", "subtitle": "...", "body": "...", "bullets": ["...", "...", "..."]}`)
	b.WriteString("\nbullets = 3 frasi brevi.\n\n")
	b.WriteString("Titolo originale: " + item.Title + "\n")
	b.WriteString("Testo originale:\n" + item.ContentText + "\n")

	return []message{
		{Role: "system", Content: "Sei un redattore di notizie su film e serie TV. Rispondi esclusivamente con JSON valido."},
		{Role: "user", Content: b.String()},
	}
}

func expandMessages(current domain.Rewrite, minWords int) []message {
	currentJSON, _ := json.Marshal(current)

	var b strings.Builder
	fmt.Fprintf(&b, "Espandi il corpo di questo articolo fino ad almeno %d parole, ", minWords)
	b.WriteString("mantenendo gli stessi fatti e lo stesso stile. ")
	b.WriteString("Rispondi SOLO con lo stesso formato JSON (title, subtitle, body, bullets).\n\n")
	b.Write(currentJSON)

	return []message{
		{Role: "system", Content: "Sei un redattore di notizie su film e serie TV. Rispondi esclusivamente con JSON valido."},
		{Role: "user", Content: b.String()},
	}
}

// decodeRewrite extracts the JSON object from a completion answer, accepting
// fenced ```json blocks or the outermost brace pair. Unparseable content
// falls back to treating the raw text as the body.
func decodeRewrite(content string) domain.Rewrite {
	raw := extractJSON(content)
	if raw != "" {
		var result domain.Rewrite
		if err := json.Unmarshal([]byte(raw), &result); err == nil {
			return result
		}
	}
	return domain.Rewrite{Body: strings.TrimSpace(content)}
}

func extractJSON(content string) string {
	if idx := strings.Index(content, "```json"); idx >= 0 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return ""
}

func wordCount(s string) int {
	return len(strings.Fields(strings.TrimSpace(s)))
}
