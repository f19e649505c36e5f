// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Annotate AnnotateConfig `mapstructure:"annotate"`
	Settings SettingsConfig `mapstructure:"settings"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the control API.
type ServerConfig struct {
	Enabled                bool `mapstructure:"enabled"`
	Port                   int  `mapstructure:"port"`
	RequestTimeoutSeconds  int  `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int  `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BrowserConfig locates the browser and the host page.
type BrowserConfig struct {
	// RemoteURL attaches to a running browser's DevTools endpoint; empty launches one.
	RemoteURL         string  `mapstructure:"remote_url"`
	Headless          bool    `mapstructure:"headless"`
	UserAgent         string  `mapstructure:"user_agent"`
	PageURL           string  `mapstructure:"page_url"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	OpTimeoutSeconds  int     `mapstructure:"op_timeout_seconds"`
	NotifyPerSecond   float64 `mapstructure:"notify_per_second"`
}

// DatasetConfig locates the dubbed lists and the mapping table.
type DatasetConfig struct {
	DubbedURLTemplate string `mapstructure:"dubbed_url_template"`
	MappingURL        string `mapstructure:"mapping_url"`
}

// ScanConfig tunes the scheduler.
type ScanConfig struct {
	CardSelector  string `mapstructure:"card_selector"`
	IntervalMs    int    `mapstructure:"interval_ms"`
	MaxRetries    int    `mapstructure:"max_retries"`
	Concurrency   int    `mapstructure:"concurrency"`
	IncludeNested bool   `mapstructure:"include_nested"`
}

// ResolverConfig bounds ancestor walks.
type ResolverConfig struct {
	CardDepth  int `mapstructure:"card_depth"`
	PopupDepth int `mapstructure:"popup_depth"`
}

// AnnotateConfig tunes overlay placement.
type AnnotateConfig struct {
	ContainerDepth int `mapstructure:"container_depth"`
}

// SettingsConfig selects the preference store.
type SettingsConfig struct {
	Store string `mapstructure:"store"`
	Path  string `mapstructure:"path"`
}

// FetchConfig tunes dataset downloads.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBodyMB      int    `mapstructure:"max_body_mb"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DUBBADGE")
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
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.page_url", "http://127.0.0.1:43211")
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.op_timeout_seconds", 10)
	v.SetDefault("browser.notify_per_second", 4)
	v.SetDefault("dataset.dubbed_url_template", "https://raw.githubusercontent.com/Joelis57/MyDubList/refs/heads/main/dubs/confidence/{confidence}/dubbed_{language}.json")
	v.SetDefault("dataset.mapping_url", "https://raw.githubusercontent.com/Joelis57/MyDubList/refs/heads/main/dubs/mappings/mappings_anilist.jsonl")
	v.SetDefault("scan.card_selector", "[data-media-entry-card-body='true'], [data-media-entry-card-hover-popup-banner-container='true']")
	v.SetDefault("scan.interval_ms", 4000)
	v.SetDefault("scan.max_retries", 10)
	v.SetDefault("scan.concurrency", 16)
	v.SetDefault("scan.include_nested", true)
	v.SetDefault("resolver.card_depth", 10)
	v.SetDefault("resolver.popup_depth", 1)
	v.SetDefault("annotate.container_depth", 1)
	v.SetDefault("settings.store", "sqlite")
	v.SetDefault("settings.path", "data/settings.db")
	v.SetDefault("fetch.user_agent", "dubbadge/0.1")
	v.SetDefault("fetch.timeout_seconds", 60)
	v.SetDefault("fetch.max_body_mb", 64)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Browser.RemoteURL == "" && c.Browser.PageURL == "" {
		return fmt.Errorf("browser.page_url must be set")
	}
	if !strings.Contains(c.Dataset.DubbedURLTemplate, "{language}") {
		return fmt.Errorf("dataset.dubbed_url_template must contain {language}")
	}
	if c.Dataset.MappingURL == "" {
		return fmt.Errorf("dataset.mapping_url must be set")
	}
	if strings.TrimSpace(c.Scan.CardSelector) == "" {
		return fmt.Errorf("scan.card_selector must be set")
	}
	if c.Scan.IntervalMs < 100 {
		return fmt.Errorf("scan.interval_ms must be >= 100")
	}
	if c.Scan.MaxRetries <= 0 {
		return fmt.Errorf("scan.max_retries must be > 0")
	}
	if c.Scan.Concurrency <= 0 {
		return fmt.Errorf("scan.concurrency must be > 0")
	}
	if c.Resolver.CardDepth <= 0 || c.Resolver.PopupDepth <= 0 {
		return fmt.Errorf("resolver depths must be > 0")
	}
	if c.Annotate.ContainerDepth <= 0 {
		return fmt.Errorf("annotate.container_depth must be > 0")
	}
	switch c.Settings.Store {
	case "sqlite":
		if c.Settings.Path == "" {
			return fmt.Errorf("settings.path must be set for the sqlite store")
		}
	case "memory":
	default:
		return fmt.Errorf("settings.store must be sqlite or memory, got %q", c.Settings.Store)
	}
	if c.Fetch.TimeoutSeconds < 0 {
		return fmt.Errorf("fetch.timeout_seconds must be >= 0")
	}
	return nil
}

// ScanInterval converts the polling interval into a duration.
func (c Config) ScanInterval() time.Duration {
	return time.Duration(c.Scan.IntervalMs) * time.Millisecond
}

// FetchTimeout is zero when downloads are unbounded.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}
