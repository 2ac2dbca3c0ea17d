// Package config builds the explicit configuration record used to start
// the engine's binaries: defaults, then an optional TOML file, then
// environment variables (spec.md §9: "implicit runtime configuration"
// replaced with an explicit config record built once at startup).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for every deckgen binary.
type Config struct {
	Anthropic AnthropicConfig `toml:"anthropic"`
	Backends  BackendsConfig  `toml:"backends"`
	Storage   StorageConfig   `toml:"storage"`
	Retry     RetryConfig     `toml:"retry"`
	Cache     CacheConfig     `toml:"cache"`
	Server    ServerConfig    `toml:"server"`
}

// AnthropicConfig configures the direct-Anthropic summarizer backend.
type AnthropicConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

// BackendsConfig configures remote HTTP JSON-RPC backends. The binaries use
// ImageGenURL and DeckURL; SummarizerURL is parsed but no binary reads it,
// so the summarizer always calls Anthropic through AnthropicConfig.
type BackendsConfig struct {
	SummarizerURL string `toml:"summarizer_url"`
	ImageGenURL   string `toml:"imagegen_url"`
	DeckURL       string `toml:"deck_url"`
}

// StorageConfig configures where the engine persists its durable state
// (spec.md §6 "Persisted state layout").
type StorageConfig struct {
	OutDir string `toml:"out_dir"`
}

// RetryConfig configures the default backoff policy (spec.md §4.5).
type RetryConfig struct {
	Attempts int     `toml:"attempts"`
	BaseSecs float64 `toml:"base_secs"`
	MaxSecs  float64 `toml:"max_secs"`
}

// CacheConfig configures result caching (spec.md §4.3).
type CacheConfig struct {
	Enabled  bool    `toml:"enabled"`
	TTLHours float64 `toml:"ttl_hours"`
}

// ServerConfig configures the HTTP edge.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Default returns a Config with every field set to its documented default.
func Default() Config {
	return Config{
		Anthropic: AnthropicConfig{Model: "claude-3-5-sonnet-latest", MaxTokens: 2048},
		Storage:   StorageConfig{OutDir: "out"},
		Retry:     RetryConfig{Attempts: 4, BaseSecs: 0.6, MaxSecs: 10},
		Cache:     CacheConfig{Enabled: true, TTLHours: 24},
		Server:    ServerConfig{Addr: ":8080"},
	}
}

// Load reads config: defaults -> TOML file at path (if present) -> env vars
// (env wins). path may be empty, in which case "deckgen.toml" is tried.
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "deckgen.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("DECKGEN_ANTHROPIC_API_KEY"); v != "" {
		cfg.Anthropic.APIKey = v
	}
	if v := os.Getenv("DECKGEN_OUT_DIR"); v != "" {
		cfg.Storage.OutDir = v
	}
	if v := os.Getenv("DECKGEN_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if os.Getenv("DECKGEN_NO_CACHE") == "1" || os.Getenv("DECKGEN_NO_CACHE") == "true" {
		cfg.Cache.Enabled = false
	}

	return cfg
}
