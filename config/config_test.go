package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/auditpipe/core"
)

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auditpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

const sampleYAML = `
server:
  addr: ":9090"
  write_timeout: 45s
store:
  url: "https://db.example.supabase.co"
  key: "anon-key"
  timeout: 3s
  home_limit: 12
site:
  name: "SoEasy Audits"
  base_url: "https://audits.example"
  static_origin: "https://raw.example/site/main"
sanitize:
  strip_related: false
logging:
  level: debug
`

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("STORE_URL", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("STORE_KEY", "")
	t.Setenv("SUPABASE_KEY", "")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := LoadConfig(createTempConfigFile(t, sampleYAML))
	require.NoError(t, err)

	want := Default()
	want.Server.Addr = ":9090"
	want.Server.WriteTimeout = 45 * time.Second
	want.Store.URL = "https://db.example.supabase.co"
	want.Store.Key = "anon-key"
	want.Store.Timeout = 3 * time.Second
	want.Store.HomeLimit = 12
	want.Site.Name = "SoEasy Audits"
	want.Site.BaseURL = "https://audits.example"
	want.Site.StaticOrigin = "https://raw.example/site/main"
	want.Sanitize.StripRelated = false
	want.Logging.Level = "debug"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LISTEN_ADDR", "")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Store.HomeLimit)
	assert.Equal(t, 100, cfg.Store.SitemapLimit)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(createTempConfigFile(t, "server: [unclosed"))
	assert.Error(t, err)

	t.Setenv("LOG_LEVEL", "")
	_, err = LoadConfig(createTempConfigFile(t, "logging:\n  level: loud\n"))
	assert.ErrorIs(t, err, ErrInvalidLogLevel)
}

func TestApplyEnv(t *testing.T) {
	t.Run("primary names win", func(t *testing.T) {
		cfg := Default()
		cfg.ApplyEnv(envFrom(map[string]string{
			"STORE_URL":    "https://primary",
			"SUPABASE_URL": "https://legacy",
			"SUPABASE_KEY": "legacy-key",
		}))
		assert.Equal(t, "https://primary", cfg.Store.URL)
		assert.Equal(t, "legacy-key", cfg.Store.Key)
	})

	t.Run("empty values ignored", func(t *testing.T) {
		cfg := Default()
		cfg.Store.URL = "https://from-file"
		cfg.ApplyEnv(envFrom(map[string]string{"STORE_URL": "  "}))
		assert.Equal(t, "https://from-file", cfg.Store.URL)
	})

	t.Run("other overrides", func(t *testing.T) {
		cfg := Default()
		cfg.ApplyEnv(envFrom(map[string]string{
			"ADS_CLIENT_ID": "ca-pub-1",
			"LISTEN_ADDR":   ":7000",
			"LOG_LEVEL":     "warn",
			"CHECKOUT_URL":  "https://pay.example/buy",
		}))
		assert.Equal(t, "ca-pub-1", cfg.Site.AdsClientID)
		assert.Equal(t, ":7000", cfg.Server.Addr)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "https://pay.example/buy", cfg.Monetization.CheckoutURL)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"defaults", func(*Config) {}, nil},
		{"empty addr", func(c *Config) { c.Server.Addr = " " }, ErrInvalidAddr},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, ErrInvalidServerTiming},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, ErrInvalidDriver},
		{"sqlite without dsn", func(c *Config) { c.Store.Driver = DriverSQLite }, ErrMissingDSN},
		{"sqlite with dsn", func(c *Config) { c.Store.Driver = DriverSQLite; c.Store.DSN = "audits.db" }, nil},
		{"store timeout", func(c *Config) { c.Store.Timeout = -time.Second }, ErrInvalidStoreTimeout},
		{"home limit", func(c *Config) { c.Store.HomeLimit = 0 }, ErrInvalidLimit},
		{"relative base url", func(c *Config) { c.Site.BaseURL = "/audits" }, ErrInvalidBaseURL},
		{"bad static origin", func(c *Config) { c.Site.StaticOrigin = "ftp://x" }, ErrInvalidStaticOrigin},
		{"bad checkout", func(c *Config) { c.Monetization.CheckoutURL = "pay.example" }, ErrInvalidCheckoutURL},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, ErrInvalidLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestRequireStore(t *testing.T) {
	cfg := Default()

	var cfgErr *core.ConfigError
	require.ErrorAs(t, cfg.RequireStore(), &cfgErr)
	assert.Equal(t, "store.url", cfgErr.Field)

	cfg.Store.URL = "https://db.example"
	require.ErrorAs(t, cfg.RequireStore(), &cfgErr)
	assert.Equal(t, "store.key", cfgErr.Field)

	cfg.Store.Key = "k"
	assert.NoError(t, cfg.RequireStore())

	sqlite := Default()
	sqlite.Store.Driver = DriverSQLite
	assert.NoError(t, sqlite.RequireStore())
}

func TestString_OmitsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Store.Key = "super-secret"
	assert.NotContains(t, cfg.String(), "super-secret")
}

func TestLoadConfig_LegacyClassesReplaceDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LISTEN_ADDR", "")

	cfg, err := LoadConfig(createTempConfigFile(t, "sanitize:\n  legacy_classes: [promo, ad-slot]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"promo", "ad-slot"}, cfg.Sanitize.LegacyClasses)
	assert.True(t, cfg.Sanitize.StripRelated)
}
