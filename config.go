package newsmirror

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/eringen/newsmirror/syncer"
)

// SiteConfig holds all configuration for a newsmirror instance.
type SiteConfig struct {
	Name        string `mapstructure:"name"`        // Site name, also the fallback author label (default "NewsPlay")
	URL         string `mapstructure:"url"`         // Public URL used in feeds and the sitemap (default "http://localhost:5000")
	Description string `mapstructure:"description"` // Feed description

	Addr     string `mapstructure:"addr"`      // Listen address (default ":5000")
	Env      string `mapstructure:"env"`       // "production" switches to JSON logs
	LogFile  string `mapstructure:"log_file"`  // Optional rotating log file
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error

	WPBaseURL      string        `mapstructure:"wp_base_url"`     // Required: upstream REST root, e.g. https://example.com/wp-json/
	WPAPIKey       string        `mapstructure:"wp_api_key"`      // Bearer token for upstream
	UserAgent      string        `mapstructure:"user_agent"`      // default "NewsPlay-Client/1.0"
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // default 30s
	RetryMax       int           `mapstructure:"retry_max"`       // default 2, negative disables retries

	SyncInterval  time.Duration `mapstructure:"sync_interval"`  // default 25s
	RetainPosts   int           `mapstructure:"retain_posts"`   // default 500
	RecentPosts   int           `mapstructure:"recent_posts"`   // default 8
	CategoryBatch int           `mapstructure:"category_batch"` // default 5
	PagesEvery    int           `mapstructure:"pages_every"`    // default 10
	JournalPath   string        `mapstructure:"journal_path"`   // SQLite sync journal (default in memory)
	FetchOnMiss   bool          `mapstructure:"fetch_on_miss"`  // Look up uncached posts upstream

	TriggerLimit  int           `mapstructure:"trigger_limit"`  // Manual syncs per client per window (default 6)
	TriggerWindow time.Duration `mapstructure:"trigger_window"` // default 1m
	CORSOrigins   []string      `mapstructure:"cors_origins"`   // default any origin
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "NewsPlay"
	}
	if c.URL == "" {
		c.URL = "http://localhost:5000"
	}
	if c.Addr == "" {
		c.Addr = ":5000"
	}
	if c.Env == "" {
		c.Env = "development"
	}
	if c.UserAgent == "" {
		c.UserAgent = "NewsPlay-Client/1.0"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RetryMax == 0 {
		c.RetryMax = 2
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = 25 * time.Second
	}
	if c.RetainPosts == 0 {
		c.RetainPosts = 500
	}
	if c.RecentPosts == 0 {
		c.RecentPosts = 8
	}
	if c.CategoryBatch == 0 {
		c.CategoryBatch = 5
	}
	if c.PagesEvery == 0 {
		c.PagesEvery = 10
	}
	if c.JournalPath == "" {
		c.JournalPath = ":memory:"
	}
	if c.TriggerLimit == 0 {
		c.TriggerLimit = 6
	}
	if c.TriggerWindow == 0 {
		c.TriggerWindow = time.Minute
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
}

func (c *SiteConfig) validate() error {
	if c.WPBaseURL == "" {
		return errors.New("newsmirror: WPBaseURL is required")
	}
	return nil
}

// envAliases lists the unprefixed variable names accepted for some keys.
var envAliases = map[string][]string{
	"wp_base_url": {"WP_BASE_URL"},
	"wp_api_key":  {"WP_API_KEY"},
	"env":         {"APP_ENV"},
}

// LoadConfig reads configuration from an optional file at path and from
// NEWSMIRROR_* environment variables, which take precedence. PORT, when set
// and no address is configured, becomes the listen address.
func LoadConfig(path string) (SiteConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, key := range configKeys() {
		names := append([]string{"NEWSMIRROR_" + strings.ToUpper(key)}, envAliases[key]...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return SiteConfig{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	if err := v.BindEnv("port", "PORT"); err != nil {
		return SiteConfig{}, fmt.Errorf("bind port: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return SiteConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg SiteConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return SiteConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Addr == "" {
		if port := v.GetString("port"); port != "" {
			cfg.Addr = ":" + port
		}
	}
	cfg.setDefaults()
	return cfg, nil
}

func configKeys() []string {
	return []string{
		"name", "url", "description",
		"addr", "env", "log_file", "log_level",
		"wp_base_url", "wp_api_key", "user_agent", "request_timeout", "retry_max",
		"sync_interval", "retain_posts", "recent_posts", "category_batch", "pages_every",
		"journal_path", "fetch_on_miss",
		"trigger_limit", "trigger_window", "cors_origins",
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback runs after the built-in routes are registered.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithSource replaces the upstream client, typically with a fake in tests.
func WithSource(src syncer.Source) Option {
	return func(a *App) {
		a.source = src
	}
}

// WithViews overrides the HTML views.
func WithViews(v ViewFuncs) Option {
	return func(a *App) {
		a.Views = v
	}
}
