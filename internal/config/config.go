package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all coordinator configuration.
type Config struct {
	Server    ServerConfig
	Remote    RemoteConfig
	Cache     CacheConfig
	Tabs      TabConfig
	Filter    FilterConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds the HTTP/bus server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8900"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// RemoteConfig holds the remote account/classification service configuration.
type RemoteConfig struct {
	BaseURL string        `envconfig:"REMOTE_BASE_URL" default:"http://localhost:3000"`
	Timeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"30s"`
}

// CacheConfig holds local cache persistence configuration.
type CacheConfig struct {
	Path string `envconfig:"CACHE_PATH" default:"coordinator-state.json"`
}

// TabConfig holds tab monitor tuning.
type TabConfig struct {
	// SettleDelay lets redirect chains finish before a completed
	// navigation is classified.
	SettleDelay time.Duration `envconfig:"TAB_SETTLE_DELAY" default:"500ms"`
}

// FilterConfig holds URL exemption configuration.
type FilterConfig struct {
	// ExemptOrigins are never classified or blurred: the configuration
	// front-end itself plus media-player origins.
	ExemptOrigins []string `envconfig:"EXEMPT_ORIGINS" default:"http://localhost:3000,https://open.spotify.com"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds bus/HTTP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// AuthPollInterval is how often the coordinator re-checks session
// validity against the remote service.
const AuthPollInterval = 5 * time.Minute

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8900", Host: "127.0.0.1"},
		Remote: RemoteConfig{BaseURL: "http://localhost:3000", Timeout: 30 * time.Second},
		Cache:  CacheConfig{Path: "coordinator-state.json"},
		Tabs:   TabConfig{SettleDelay: 500 * time.Millisecond},
		Filter: FilterConfig{ExemptOrigins: []string{
			"http://localhost:3000",
			"https://open.spotify.com",
		}},
		Logging: LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
