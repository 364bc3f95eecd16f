// Package config defines the configuration for the bidding client and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by BIDCLIENT_* environment
// variables.
type Config struct {
	API      APIConfig   `toml:"api"`
	Hub      HubConfig   `toml:"hub"`
	Redis    RedisConfig `toml:"redis"`
	LogLevel string      `toml:"log_level"`
}

// APIConfig holds the marketplace REST API endpoint and request policy.
type APIConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// HubConfig holds the bidding hub websocket endpoint and connection policy.
type HubConfig struct {
	URL              string   `toml:"url"`
	HandshakeTimeout duration `toml:"handshake_timeout"`
	MaxReconnects    int      `toml:"max_reconnects"`
}

// RedisConfig holds Redis connection parameters for the catalog cache. An
// empty Addr disables caching and the catalog reads straight from the API.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// duration wraps time.Duration so TOML values can be written as "10s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Defaults returns the built-in configuration used when a field is absent
// from the TOML file.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "https://api.collectorden.com/api/v1",
			Timeout: duration{10 * time.Second},
		},
		Hub: HubConfig{
			URL:              "wss://api.collectorden.com/biddingHub",
			HandshakeTimeout: duration{15 * time.Second},
			MaxReconnects:    5,
		},
		Redis: RedisConfig{
			PoolSize:   4,
			MaxRetries: 3,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for internally inconsistent or missing
// values. It returns a descriptive error on the first problem found.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config: api.base_url is required")
	}
	if c.Hub.URL == "" {
		return fmt.Errorf("config: hub.url is required")
	}
	if !strings.HasPrefix(c.Hub.URL, "ws://") && !strings.HasPrefix(c.Hub.URL, "wss://") {
		return fmt.Errorf("config: hub.url must be a ws:// or wss:// URL, got %q", c.Hub.URL)
	}
	if c.API.Timeout.Duration <= 0 {
		return fmt.Errorf("config: api.timeout must be positive")
	}
	if c.Hub.MaxReconnects < 1 {
		return fmt.Errorf("config: hub.max_reconnects must be at least 1")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
