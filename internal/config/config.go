// Package config loads, validates and resolves sitemap generation settings via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/edge-sitemaps/internal/cloudflare"
	"github.com/JakeFAU/edge-sitemaps/internal/fetch"
	"github.com/JakeFAU/edge-sitemaps/internal/filter"
	"github.com/JakeFAU/edge-sitemaps/internal/logging"
	"github.com/JakeFAU/edge-sitemaps/internal/script"
	"github.com/JakeFAU/edge-sitemaps/internal/sitemap"
	"github.com/JakeFAU/edge-sitemaps/internal/source"
	"github.com/JakeFAU/edge-sitemaps/internal/storage/gcs"
	"github.com/JakeFAU/edge-sitemaps/internal/storage/local"
	pkgconfig "github.com/JakeFAU/edge-sitemaps/pkg/config"
)

var (
	// ErrInvalidConfig wraps every validation failure reported by Load.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrMissingBaseURL is returned when a module resolves to no base URL.
	ErrMissingBaseURL = errors.New("missing base url")
)

// Config captures every configuration knob.
type Config struct {
	Logging    logging.Config   `mapstructure:"logging" yaml:"logging"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
	Retry      source.Ceilings  `mapstructure:"retry" yaml:"retry"`
	Deployment DeploymentConfig `mapstructure:"deployment" yaml:"deployment"`
	Cloudflare CloudflareConfig `mapstructure:"cloudflare" yaml:"cloudflare"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Notify     NotifyConfig     `mapstructure:"notify" yaml:"notify"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	RunStore   RunStoreConfig   `mapstructure:"runstore" yaml:"runstore"`
	Failure    FailureConfig    `mapstructure:"failure" yaml:"failure"`
	Preview    PreviewConfig    `mapstructure:"preview" yaml:"preview"`

	Site    `mapstructure:",squash" yaml:",inline"`
	Workers []WorkerConfig `mapstructure:"workers" yaml:"workers"`
}

// HTTPConfig tunes the shared fetch transport.
type HTTPConfig struct {
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	BackoffMin        time.Duration `mapstructure:"backoff_min" yaml:"backoff_min"`
	BackoffMax        time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
	BackoffFactor     float64       `mapstructure:"backoff_factor" yaml:"backoff_factor"`
	RetryStatusCodes  []int         `mapstructure:"retry_status_codes" yaml:"retry_status_codes"`
	DNSCacheTTL       time.Duration `mapstructure:"dns_cache_ttl" yaml:"dns_cache_ttl"`
	DNSCacheSize      int           `mapstructure:"dns_cache_size" yaml:"dns_cache_size"`
	MaxConnsPerHost   int           `mapstructure:"max_conns_per_host" yaml:"max_conns_per_host"`
	RateLimitRPS      float64       `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	DetailConcurrency int           `mapstructure:"detail_concurrency" yaml:"detail_concurrency"`
}

// DeploymentConfig controls how sitemaps are laid out and shipped.
type DeploymentConfig struct {
	Mode              script.Mode `mapstructure:"mode" yaml:"mode"`
	Template          string      `mapstructure:"template" yaml:"template,omitempty"`
	Units             int         `mapstructure:"units" yaml:"units"`
	UnitCapacity      int         `mapstructure:"unit_capacity" yaml:"unit_capacity"`
	CompatibilityDate string      `mapstructure:"compatibility_date" yaml:"compatibility_date,omitempty"`
}

// CloudflareConfig points at the script upload API.
type CloudflareConfig struct {
	APIURL string `mapstructure:"api_url" yaml:"api_url"`
}

// StorageConfig selects the optional artifact archive.
type StorageConfig struct {
	Provider string       `mapstructure:"provider" yaml:"provider"`
	Prefix   string       `mapstructure:"prefix" yaml:"prefix"`
	Local    local.Config `mapstructure:"local" yaml:"local"`
	GCS      gcs.Config   `mapstructure:"gcs" yaml:"gcs"`
}

// NotifyConfig selects the optional deployment notification sink.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`
	ProjectID string `mapstructure:"project_id" yaml:"project_id,omitempty"`
	Topic     string `mapstructure:"topic" yaml:"topic,omitempty"`
}

// MetricsConfig configures the end-of-run Pushgateway push.
type MetricsConfig struct {
	PushURL string `mapstructure:"push_url" yaml:"push_url,omitempty"`
	Job     string `mapstructure:"job" yaml:"job"`
}

// RunStoreConfig configures the optional Postgres run ledger.
type RunStoreConfig struct {
	DSN   string `mapstructure:"dsn" yaml:"dsn,omitempty"`
	Table string `mapstructure:"table" yaml:"table"`
}

// FailureConfig controls error isolation between workers.
type FailureConfig struct {
	IsolateWorkers bool `mapstructure:"isolate_workers" yaml:"isolate_workers"`
}

// PreviewConfig configures the local preview server.
type PreviewConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// ProxyConfig routes a module's traffic through an HTTP proxy.
type ProxyConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
}

// APIConfig names a listing provider and its endpoint.
type APIConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	URL  string `mapstructure:"url" yaml:"url"`
}

// Site holds the settings that may be overridden at each level.
type Site struct {
	BaseURL        string                `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Filter         *filter.Filter        `mapstructure:"filter" yaml:"filter,omitempty"`
	Replace        []sitemap.Replacement `mapstructure:"replace" yaml:"replace,omitempty"`
	Proxy          *ProxyConfig          `mapstructure:"proxy" yaml:"proxy,omitempty"`
	LocaleBaseURLs map[string]string     `mapstructure:"locale_base_urls" yaml:"locale_base_urls,omitempty"`
	Modules        []ModuleConfig        `mapstructure:"modules" yaml:"modules,omitempty"`
}

// ModuleConfig describes one discovery unit.
type ModuleConfig struct {
	Name               string                `mapstructure:"name" yaml:"name"`
	LocalesAPI         APIConfig             `mapstructure:"locales_api" yaml:"locales_api"`
	PagesAPI           APIConfig             `mapstructure:"pages_api" yaml:"pages_api"`
	ForceSplitByLocale bool                  `mapstructure:"force_split_by_locale" yaml:"force_split_by_locale,omitempty"`
	BaseURL            string                `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Filter             *filter.Filter        `mapstructure:"filter" yaml:"filter,omitempty"`
	Replace            []sitemap.Replacement `mapstructure:"replace" yaml:"replace,omitempty"`
	Proxy              *ProxyConfig          `mapstructure:"proxy" yaml:"proxy,omitempty"`
	LocaleBaseURLs     map[string]string     `mapstructure:"locale_base_urls" yaml:"locale_base_urls,omitempty"`
}

// WorkerConfig describes one deployable worker and its credentials.
type WorkerConfig struct {
	Name      string          `mapstructure:"name" yaml:"name"`
	AccountID string          `mapstructure:"account_id" yaml:"account_id"`
	Auth      cloudflare.Auth `mapstructure:"auth" yaml:"auth"`
	Config    *Site           `mapstructure:"config" yaml:"config,omitempty"`
}

// Load reads path (or the default search locations when empty) plus SITEMAPS_*
// environment variables.
func Load(path string) (Config, error) {
	v, err := pkgconfig.New(path)
	if err != nil {
		return Config{}, err
	}
	return FromViper(v)
}

// FromViper applies defaults, decodes and validates.
func FromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.expandSecrets()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.user_agent", "edge-sitemaps/1.0")
	v.SetDefault("http.timeout", "60s")
	v.SetDefault("http.request_timeout", "30m")
	v.SetDefault("http.max_retries", 10)
	v.SetDefault("http.backoff_min", "1s")
	v.SetDefault("http.backoff_max", "10m")
	v.SetDefault("http.backoff_factor", 10)
	v.SetDefault("http.retry_status_codes", []int{429, 500, 502, 503, 504})
	v.SetDefault("http.dns_cache_ttl", "5m")
	v.SetDefault("http.dns_cache_size", 100)
	v.SetDefault("http.max_conns_per_host", 5)
	v.SetDefault("http.rate_limit_rps", 0)
	v.SetDefault("http.rate_limit_burst", 1)
	v.SetDefault("http.detail_concurrency", 0)
	v.SetDefault("retry.locales", source.DefaultCeilings.Locales)
	v.SetDefault("retry.pages", source.DefaultCeilings.Pages)
	v.SetDefault("retry.catalog", source.DefaultCeilings.Catalog)
	v.SetDefault("retry.details", source.DefaultCeilings.Details)
	v.SetDefault("deployment.mode", string(script.ModeRouter))
	v.SetDefault("deployment.units", sitemap.DefaultUnitCount)
	v.SetDefault("deployment.unit_capacity", sitemap.DefaultUnitCapacity)
	v.SetDefault("cloudflare.api_url", cloudflare.DefaultAPIURL)
	v.SetDefault("storage.provider", "none")
	v.SetDefault("storage.prefix", "sitemaps")
	v.SetDefault("notify.provider", "none")
	v.SetDefault("metrics.job", "edge_sitemaps")
	v.SetDefault("runstore.table", "sitemap_runs")
	v.SetDefault("failure.isolate_workers", false)
	v.SetDefault("preview.port", 8080)
}

// expandSecrets resolves ${VAR} references in credential fields.
func (c *Config) expandSecrets() {
	for i := range c.Workers {
		w := &c.Workers[i]
		w.Auth.Token = os.ExpandEnv(w.Auth.Token)
		w.Auth.Email = os.ExpandEnv(w.Auth.Email)
		w.Auth.Key = os.ExpandEnv(w.Auth.Key)
		if w.Config != nil {
			expandProxy(w.Config.Proxy)
			for j := range w.Config.Modules {
				expandProxy(w.Config.Modules[j].Proxy)
			}
		}
	}
	expandProxy(c.Proxy)
	for j := range c.Modules {
		expandProxy(c.Modules[j].Proxy)
	}
	c.RunStore.DSN = os.ExpandEnv(c.RunStore.DSN)
}

func expandProxy(p *ProxyConfig) {
	if p == nil {
		return
	}
	p.Username = os.ExpandEnv(p.Username)
	p.Password = os.ExpandEnv(p.Password)
}

// Validate enforces required values and resolves every worker once so that
// configuration errors surface before any request is made.
func (c Config) Validate() error {
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.DetailConcurrency < 0 {
		return fmt.Errorf("http.detail_concurrency must be >= 0")
	}
	switch c.Deployment.Mode {
	case script.ModeRouter, script.ModeBindings:
	default:
		return fmt.Errorf("deployment.mode must be %q or %q, got %q", script.ModeRouter, script.ModeBindings, c.Deployment.Mode)
	}
	if c.Deployment.Units <= 0 || c.Deployment.UnitCapacity <= 0 {
		return fmt.Errorf("deployment.units and deployment.unit_capacity must be > 0")
	}
	switch c.Storage.Provider {
	case "", "none", "memory":
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local provider")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	switch c.Notify.Provider {
	case "", "none", "memory":
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic are required for the pubsub provider")
		}
	default:
		return fmt.Errorf("unknown notify.provider %q", c.Notify.Provider)
	}
	if len(c.Workers) == 0 {
		return fmt.Errorf("at least one worker is required")
	}
	_, err := c.Resolve()
	return err
}

// FetchConfig maps HTTP settings onto the fetch transport for one proxy.
func (c Config) FetchConfig(proxy *ProxyConfig) fetch.Config {
	out := fetch.Config{
		UserAgent:        c.HTTP.UserAgent,
		Timeout:          c.HTTP.Timeout,
		RequestTimeout:   c.HTTP.RequestTimeout,
		MaxRetries:       c.HTTP.MaxRetries,
		BackoffMin:       c.HTTP.BackoffMin,
		BackoffMax:       c.HTTP.BackoffMax,
		BackoffFactor:    c.HTTP.BackoffFactor,
		RetryStatusCodes: c.HTTP.RetryStatusCodes,
		DNSCacheTTL:      c.HTTP.DNSCacheTTL,
		DNSCacheSize:     c.HTTP.DNSCacheSize,
		MaxConnsPerHost:  c.HTTP.MaxConnsPerHost,
		RateLimitRPS:     c.HTTP.RateLimitRPS,
		RateLimitBurst:   c.HTTP.RateLimitBurst,
	}
	if proxy != nil && proxy.URL != "" {
		out.Proxy = &fetch.Proxy{URL: proxy.URL, Username: proxy.Username, Password: proxy.Password}
	}
	return out
}
