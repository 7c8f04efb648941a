// Package config loads AuditPipe settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gaurav-prasanna/auditpipe/core"
)

// Configuration validation errors.
var (
	ErrInvalidAddr         = errors.New("server.addr is required")
	ErrInvalidServerTiming = errors.New("server timeouts must be positive")
	ErrInvalidDriver       = errors.New("store.driver must be 'rest' or 'sqlite'")
	ErrMissingDSN          = errors.New("store.dsn is required for the sqlite driver")
	ErrInvalidStoreTimeout = errors.New("store.timeout must be positive")
	ErrInvalidLimit        = errors.New("store limits must be at least 1")
	ErrInvalidBaseURL      = errors.New("site.base_url must be an absolute http(s) URL")
	ErrInvalidStaticOrigin = errors.New("site.static_origin must be an absolute http(s) URL")
	ErrInvalidCheckoutURL  = errors.New("monetization.checkout_url must be an absolute http(s) URL")
	ErrInvalidLogLevel     = errors.New("logging.level must be one of: debug, info, warn, error")
)

// Store drivers.
const (
	DriverREST   = "rest"
	DriverSQLite = "sqlite"
)

// Config is the complete AuditPipe configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Site         SiteConfig         `yaml:"site" mapstructure:"site"`
	Monetization MonetizationConfig `yaml:"monetization" mapstructure:"monetization"`
	Sanitize     SanitizeConfig     `yaml:"sanitize" mapstructure:"sanitize"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// StoreConfig selects and configures the content store.
type StoreConfig struct {
	Driver       string        `yaml:"driver" mapstructure:"driver"`
	URL          string        `yaml:"url" mapstructure:"url"`
	Key          string        `yaml:"key" mapstructure:"key"`
	Table        string        `yaml:"table" mapstructure:"table"`
	DSN          string        `yaml:"dsn" mapstructure:"dsn"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	HomeLimit    int           `yaml:"home_limit" mapstructure:"home_limit"`
	SitemapLimit int           `yaml:"sitemap_limit" mapstructure:"sitemap_limit"`
}

// SiteConfig holds presentation settings.
type SiteConfig struct {
	Name         string `yaml:"name" mapstructure:"name"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	YearLabel    string `yaml:"year_label" mapstructure:"year_label"`
	LayoutPath   string `yaml:"layout_path" mapstructure:"layout_path"`
	StaticOrigin string `yaml:"static_origin" mapstructure:"static_origin"`
	AdsClientID  string `yaml:"ads_client_id" mapstructure:"ads_client_id"`
	ContactEmail string `yaml:"contact_email" mapstructure:"contact_email"`
}

// MonetizationConfig configures the call-to-action block.
type MonetizationConfig struct {
	CheckoutURL string `yaml:"checkout_url" mapstructure:"checkout_url"`
	Headline    string `yaml:"headline" mapstructure:"headline"`
	Blurb       string `yaml:"blurb" mapstructure:"blurb"`
	ButtonLabel string `yaml:"button_label" mapstructure:"button_label"`
}

// SanitizeConfig configures legacy markup removal.
type SanitizeConfig struct {
	LegacyClasses  []string `yaml:"legacy_classes" mapstructure:"legacy_classes"`
	RelatedHeading string   `yaml:"related_heading" mapstructure:"related_heading"`
	StripRelated   bool     `yaml:"strip_related" mapstructure:"strip_related"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver:       DriverREST,
			Table:        "grich_keywords_pool",
			Timeout:      10 * time.Second,
			HomeLimit:    10,
			SitemapLimit: 100,
		},
		Site: SiteConfig{
			Name:         "AuditPipe",
			BaseURL:      "http://localhost:8080",
			YearLabel:    "2026",
			ContactEmail: "support@auditpipe.example",
		},
		Monetization: MonetizationConfig{
			CheckoutURL: "https://checkout.auditpipe.example/buy",
		},
		Sanitize: SanitizeConfig{
			LegacyClasses:  []string{"monetization-box", "audit-cta", "sponsored", "cta-box", "buy-box"},
			RelatedHeading: "Explore Related Pathways",
			StripRelated:   true,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads path over the defaults, applies environment overrides
// and validates the result. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile merges the YAML file at path into cfg. Keys absent from the file
// keep their current values.
func loadFile(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	// A listed set of classes replaces the defaults instead of merging by index.
	if v.IsSet("sanitize.legacy_classes") {
		cfg.Sanitize.LegacyClasses = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	return nil
}

// envOverride maps environment variables to a field. The first non-empty
// variable wins.
type envOverride struct {
	names  []string
	target *string
}

func (c *Config) envOverrides() []envOverride {
	return []envOverride{
		{[]string{"STORE_URL", "SUPABASE_URL"}, &c.Store.URL},
		{[]string{"STORE_KEY", "SUPABASE_KEY"}, &c.Store.Key},
		{[]string{"STORE_DRIVER"}, &c.Store.Driver},
		{[]string{"STORE_DSN"}, &c.Store.DSN},
		{[]string{"ADS_CLIENT_ID"}, &c.Site.AdsClientID},
		{[]string{"SITE_BASE_URL"}, &c.Site.BaseURL},
		{[]string{"CHECKOUT_URL"}, &c.Monetization.CheckoutURL},
		{[]string{"LISTEN_ADDR"}, &c.Server.Addr},
		{[]string{"LOG_LEVEL"}, &c.Logging.Level},
	}
}

// ApplyEnv overrides fields from the environment. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	for _, o := range c.envOverrides() {
		for _, name := range o.names {
			if v := strings.TrimSpace(getenv(name)); v != "" {
				*o.target = v
				break
			}
		}
	}
}

// Validate checks structural settings. Secrets are not checked here; see
// RequireStore.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return ErrInvalidAddr
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return ErrInvalidServerTiming
	}

	switch c.Store.Driver {
	case DriverREST:
	case DriverSQLite:
		if c.Store.DSN == "" {
			return ErrMissingDSN
		}
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidDriver, c.Store.Driver)
	}
	if c.Store.Timeout <= 0 {
		return ErrInvalidStoreTimeout
	}
	if c.Store.HomeLimit < 1 || c.Store.SitemapLimit < 1 {
		return ErrInvalidLimit
	}

	if !isHTTPURL(c.Site.BaseURL) {
		return ErrInvalidBaseURL
	}
	if c.Site.StaticOrigin != "" && !isHTTPURL(c.Site.StaticOrigin) {
		return ErrInvalidStaticOrigin
	}
	if c.Monetization.CheckoutURL != "" && !isHTTPURL(c.Monetization.CheckoutURL) {
		return ErrInvalidCheckoutURL
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}
	return nil
}

// RequireStore reports missing store credentials. It is checked per request
// so a misconfigured deployment answers with a diagnostic instead of failing
// to start.
func (c *Config) RequireStore() error {
	if c.Store.Driver == DriverSQLite {
		return nil
	}
	if strings.TrimSpace(c.Store.URL) == "" {
		return &core.ConfigError{Field: "store.url"}
	}
	if strings.TrimSpace(c.Store.Key) == "" {
		return &core.ConfigError{Field: "store.key"}
	}
	return nil
}

// String returns a summary without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Addr: %s, Driver: %s, Table: %s, BaseURL: %s}",
		c.Server.Addr, c.Store.Driver, c.Store.Table, c.Site.BaseURL)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
