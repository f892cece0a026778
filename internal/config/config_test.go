package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"NewsDesk/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("default addr: %q", cfg.Server.Addr)
	}
	if cfg.LLM.MinWords != 250 || cfg.LLM.MaxExpansions != 2 {
		t.Fatalf("default llm settings: %+v", cfg.LLM)
	}
	if cfg.Refresh.MinInterval.Std() != 30*time.Minute {
		t.Fatalf("default min interval: %v", cfg.Refresh.MinInterval)
	}
	if len(cfg.Feeds) != 2 {
		t.Fatalf("expected the two default feeds, got %d", len(cfg.Feeds))
	}
	if cfg.Feeds[0].Collection != domain.CollectionNews || cfg.Feeds[1].Collection != domain.CollectionComingSoon {
		t.Fatalf("default feed collections: %+v", cfg.Feeds)
	}
}

func TestLoadAppliesFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  addr: ":9090"
llm:
  model: gpt-4o
refresh:
  minInterval: 1h
feeds:
  - name: custom
    url: https://example.com/rss
    collection: news_articles
    topN: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(llmAPIKeyEnv, "sk-test")
	t.Setenv(serverAddrEnv, ":7070")

	cfg := Load()

	if cfg.Server.Addr != ":7070" {
		t.Fatalf("env must override file: %q", cfg.Server.Addr)
	}
	if cfg.LLM.Model != "gpt-4o" || cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("llm overrides: %+v", cfg.LLM)
	}
	if cfg.Refresh.MinInterval.Std() != time.Hour {
		t.Fatalf("min interval override: %v", cfg.Refresh.MinInterval)
	}
	if len(cfg.Feeds) != 1 || cfg.Feeds[0].Name != "custom" || cfg.Feeds[0].TopN != 5 {
		t.Fatalf("feed override: %+v", cfg.Feeds)
	}
	if cfg.LLM.MinWords != 250 {
		t.Fatalf("untouched defaults must survive the merge: %+v", cfg.LLM)
	}
}

func TestLoadIgnoresBrokenConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)

	cfg := Load()
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("broken file must fall back to defaults, got %q", cfg.Server.Addr)
	}
}
