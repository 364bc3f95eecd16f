package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[api]
base_url = "https://staging.collectorden.test/api/v1"
timeout = "5s"

[hub]
url = "wss://staging.collectorden.test/biddingHub"
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	require.Equal(t, "https://staging.collectorden.test/api/v1", cfg.API.BaseURL)
	require.Equal(t, 5*time.Second, cfg.API.Timeout.Duration)
	require.Equal(t, "debug", cfg.LogLevel)
	// Fields absent from the file keep their defaults.
	require.Equal(t, 5, cfg.Hub.MaxReconnects)
	require.Equal(t, 15*time.Second, cfg.Hub.HandshakeTimeout.Duration)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[hub]
url = "wss://file.collectorden.test/biddingHub"
`)
	t.Setenv("BIDCLIENT_HUB_URL", "wss://env.collectorden.test/biddingHub")
	t.Setenv("BIDCLIENT_HUB_MAX_RECONNECTS", "9")
	t.Setenv("BIDCLIENT_API_TIMEOUT", "3s")
	t.Setenv("BIDCLIENT_REDIS_TLS_ENABLED", "true")

	cfg, err := Load(path)

	require.NoError(t, err)
	require.Equal(t, "wss://env.collectorden.test/biddingHub", cfg.Hub.URL)
	require.Equal(t, 9, cfg.Hub.MaxReconnects)
	require.Equal(t, 3*time.Second, cfg.API.Timeout.Duration)
	require.True(t, cfg.Redis.TLSEnabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing api base url",
			mutate:  func(c *Config) { c.API.BaseURL = "" },
			wantErr: "api.base_url",
		},
		{
			name:    "missing hub url",
			mutate:  func(c *Config) { c.Hub.URL = "" },
			wantErr: "hub.url",
		},
		{
			name:    "hub url wrong scheme",
			mutate:  func(c *Config) { c.Hub.URL = "https://api.collectorden.com/biddingHub" },
			wantErr: "ws://",
		},
		{
			name:    "non-positive timeout",
			mutate:  func(c *Config) { c.API.Timeout.Duration = 0 },
			wantErr: "api.timeout",
		},
		{
			name:    "zero max reconnects",
			mutate:  func(c *Config) { c.Hub.MaxReconnects = 0 },
			wantErr: "max_reconnects",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
