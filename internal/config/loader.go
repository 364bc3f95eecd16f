package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BIDCLIENT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BIDCLIENT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.API.BaseURL, "BIDCLIENT_API_BASE_URL")
	setDuration(&cfg.API.Timeout, "BIDCLIENT_API_TIMEOUT")

	setStr(&cfg.Hub.URL, "BIDCLIENT_HUB_URL")
	setDuration(&cfg.Hub.HandshakeTimeout, "BIDCLIENT_HUB_HANDSHAKE_TIMEOUT")
	setInt(&cfg.Hub.MaxReconnects, "BIDCLIENT_HUB_MAX_RECONNECTS")

	setStr(&cfg.Redis.Addr, "BIDCLIENT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BIDCLIENT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BIDCLIENT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BIDCLIENT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BIDCLIENT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BIDCLIENT_REDIS_TLS_ENABLED")

	setStr(&cfg.LogLevel, "BIDCLIENT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
