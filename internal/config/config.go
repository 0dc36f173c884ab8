// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Research  ResearchConfig  `mapstructure:"research"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Search    SearchConfig    `mapstructure:"search"`
	DB        DBConfig        `mapstructure:"db"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ResearchConfig governs the orchestrator's phase behavior.
type ResearchConfig struct {
	InitialBudgetSeconds int `mapstructure:"initial_budget_seconds"`
	DeepBudgetSeconds    int `mapstructure:"deep_budget_seconds"`
	FetchConcurrency     int `mapstructure:"fetch_concurrency"`
	CourtesyDelayMs      int `mapstructure:"courtesy_delay_ms"`
	SnippetMinLen        int `mapstructure:"snippet_min_len"`
	QuestionFloor        int `mapstructure:"question_floor"`
	QuestionTarget       int `mapstructure:"question_target"`
	ContextDocs          int `mapstructure:"context_docs"`
}

// FetcherConfig governs politeness and content gating.
type FetcherConfig struct {
	UserAgent          string   `mapstructure:"user_agent"`
	RotateUserAgents   bool     `mapstructure:"rotate_user_agents"`
	TimeoutSeconds     int      `mapstructure:"timeout_seconds"`
	MinContentChars    int      `mapstructure:"min_content_chars"`
	MaxPerMinute       int      `mapstructure:"max_per_minute"`
	MinDelayMs         int      `mapstructure:"min_delay_ms"`
	AllowDomains       []string `mapstructure:"allow_domains"`
	BlockDomains       []string `mapstructure:"block_domains"`
	RespectRobots      bool     `mapstructure:"respect_robots"`
	AllowStateChanging bool     `mapstructure:"allow_state_changing"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// SearchConfig configures the search provider.
type SearchConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	MaxResults int    `mapstructure:"max_results"`
}

// DBConfig controls the embedded database location.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// AnthropicConfig configures the LLM question generator. An empty API key
// disables it; the heuristic generator takes over.
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DefaultDBPath is the XDG data-dir location used when db.path is unset.
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, "delver", "research.db")
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DELVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("research.initial_budget_seconds", 120)
	v.SetDefault("research.deep_budget_seconds", 300)
	v.SetDefault("research.fetch_concurrency", 4)
	v.SetDefault("research.courtesy_delay_ms", 500)
	v.SetDefault("research.snippet_min_len", 200)
	v.SetDefault("research.question_floor", 10)
	v.SetDefault("research.question_target", 40)
	v.SetDefault("research.context_docs", 8)
	v.SetDefault("fetcher.user_agent", "delver-research/1.0")
	v.SetDefault("fetcher.rotate_user_agents", false)
	v.SetDefault("fetcher.timeout_seconds", 15)
	v.SetDefault("fetcher.min_content_chars", 200)
	v.SetDefault("fetcher.max_per_minute", 30)
	v.SetDefault("fetcher.min_delay_ms", 1000)
	v.SetDefault("fetcher.respect_robots", true)
	v.SetDefault("fetcher.allow_state_changing", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("db.path", DefaultDBPath())
	v.SetDefault("anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Research.FetchConcurrency <= 0 {
		return fmt.Errorf("research.fetch_concurrency must be > 0")
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if c.Fetcher.MaxPerMinute < 0 {
		return fmt.Errorf("fetcher.max_per_minute must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must be set")
	}
	return nil
}

// InitialBudget converts the configured initial-phase budget to a Duration.
func (c Config) InitialBudget() time.Duration {
	return time.Duration(c.Research.InitialBudgetSeconds) * time.Second
}

// DeepBudget converts the configured deep-phase budget to a Duration.
func (c Config) DeepBudget() time.Duration {
	return time.Duration(c.Research.DeepBudgetSeconds) * time.Second
}

// FetchTimeout converts the fetcher timeout to a Duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}
