package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"NewsDesk/internal/domain"
)

const (
	configPathEnv = "NEWSDESK_CONFIG"
	databaseEnv   = "DATABASE_DSN"
	llmAPIKeyEnv  = "LLM_API_KEY"
	llmModelEnv   = "LLM_MODEL"
	adminTokenEnv = "ADMIN_TOKEN"
	serverAddrEnv = "SERVER_ADDR"
)

// Duration accepts "30m" style values in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds high-level settings required across the application.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	LLM      LLMConfig      `yaml:"llm"`
	Fetcher  FetcherConfig  `yaml:"fetcher"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Feeds    []FeedConfig   `yaml:"feeds"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ServerConfig describes the HTTP listener and the admin credential.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	AdminToken string `yaml:"adminToken"`
}

// DatabaseConfig describes the Postgres connection. An empty DSN disables the
// remote store; the service then runs on the local cache alone.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// CacheConfig locates the local JSON cache files.
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// LLMConfig defines how to contact the chat-completions API. An empty APIKey
// is a supported state: rewriting is disabled, not an error.
type LLMConfig struct {
	Endpoint      string  `yaml:"endpoint"`
	Model         string  `yaml:"model"`
	APIKey        string  `yaml:"apiKey"`
	Temperature   float64 `yaml:"temperature"`
	MinWords      int     `yaml:"minWords"`
	MaxExpansions int     `yaml:"maxExpansions"`
}

// FetcherConfig configures the feed fetch fallback chain. RelayURL points at
// a server-side relay tried before the public proxies; empty skips it.
type FetcherConfig struct {
	RelayURL string   `yaml:"relayUrl"`
	Timeout  Duration `yaml:"timeout"`
}

// RefreshConfig gates the automatic refresh loop.
type RefreshConfig struct {
	Auto        bool     `yaml:"auto"`
	MinInterval Duration `yaml:"minInterval"`
	CheckEvery  Duration `yaml:"checkEvery"`
}

// FeedConfig describes one curated feed and how many of its freshest items
// get rewritten per run.
type FeedConfig struct {
	Name       string            `yaml:"name"`
	URL        string            `yaml:"url"`
	Collection domain.Collection `yaml:"collection"`
	TopN       int               `yaml:"topN"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Feeds) == 0 {
		cfg.Feeds = defaultConfig().Feeds
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(adminTokenEnv); v != "" {
		c.Server.AdminToken = v
	}
	if v := os.Getenv(serverAddrEnv); v != "" {
		c.Server.Addr = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if override.Server.AdminToken != "" {
		base.Server.AdminToken = override.Server.AdminToken
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Cache.Dir != "" {
		base.Cache = override.Cache
	}

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.Temperature != 0 {
		base.LLM.Temperature = override.LLM.Temperature
	}
	if override.LLM.MinWords != 0 {
		base.LLM.MinWords = override.LLM.MinWords
	}
	if override.LLM.MaxExpansions != 0 {
		base.LLM.MaxExpansions = override.LLM.MaxExpansions
	}

	if override.Fetcher.RelayURL != "" {
		base.Fetcher.RelayURL = override.Fetcher.RelayURL
	}
	if override.Fetcher.Timeout != 0 {
		base.Fetcher.Timeout = override.Fetcher.Timeout
	}

	if override.Refresh.MinInterval != 0 {
		base.Refresh.MinInterval = override.Refresh.MinInterval
	}
	if override.Refresh.CheckEvery != 0 {
		base.Refresh.CheckEvery = override.Refresh.CheckEvery
	}
	base.Refresh.Auto = override.Refresh.Auto || base.Refresh.Auto

	if len(override.Feeds) > 0 {
		base.Feeds = override.Feeds
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Server:  ServerConfig{Addr: ":8080"},
		Cache:   CacheConfig{Dir: "./data"},
		LLM: LLMConfig{
			Endpoint:      "https://api.openai.com/v1/chat/completions",
			Model:         "gpt-4o-mini",
			Temperature:   0.7,
			MinWords:      250,
			MaxExpansions: 2,
		},
		Fetcher: FetcherConfig{Timeout: Duration(15 * time.Second)},
		Refresh: RefreshConfig{
			Auto:        true,
			MinInterval: Duration(30 * time.Minute),
			CheckEvery:  Duration(5 * time.Minute),
		},
		Feeds: []FeedConfig{
			{
				Name:       "general",
				URL:        "https://movieplayer.it/rss/news/",
				Collection: domain.CollectionNews,
				TopN:       3,
			},
			{
				Name:       "coming-soon",
				URL:        "https://www.comingsoon.it/rss/cinema.xml",
				Collection: domain.CollectionComingSoon,
				TopN:       6,
			},
		},
	}
}
