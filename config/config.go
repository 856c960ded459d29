package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL     string   `yaml:"base_url"`
	CatalogURLs []string `yaml:"catalog_urls"`
	MaxPages    int      `yaml:"max_pages"`

	// Browser timing. Delay is enforced between consecutive page scrapes.
	Delay             time.Duration `yaml:"delay"`
	WaitTime          time.Duration `yaml:"wait_time"`
	PrimaryWait       time.Duration `yaml:"primary_wait"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	Headless          bool          `yaml:"headless"`

	// Direct HTTP requests (probes, markup fallback).
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax time.Duration `yaml:"retry_backoff_max"`
	RetryMultiplier float64       `yaml:"retry_multiplier"`
	UserAgent       string        `yaml:"user_agent"`

	// Upstream API.
	APIHost             string `yaml:"api_host"`
	ProductsEndpoint    string `yaml:"products_endpoint"`
	SubcategoryEndpoint string `yaml:"subcategory_endpoint"`
	Referer             string `yaml:"referer"`
	Channel             string `yaml:"channel"`
	StoreCode           int    `yaml:"store_code"`

	// Probing.
	ProbeThreshold   int    `yaml:"probe_threshold"`
	ForceAllProducts bool   `yaml:"force_all_products"`
	CacheConfig      bool   `yaml:"cache_config"`
	CacheFile        string `yaml:"cache_file"`
	FallbackMarkup   bool   `yaml:"fallback_markup"`

	// Output.
	OutputFile         string `yaml:"output_file"`
	OutputFormat       string `yaml:"output_format"` // csv, json, snapshot, parquet, dual, all, or postgres
	DatabaseURL        string `yaml:"database_url"`
	Parallelism        int    `yaml:"parallelism"`
	PipelineBufferSize int    `yaml:"pipeline_buffer_size"`
	BatchSize          int    `yaml:"batch_size"`
	DedupeMaxSize      int    `yaml:"dedupe_max_size"`

	Verbose     bool   `yaml:"verbose"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns conservative defaults for the target store.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://www.misuperfresh.com.gt",
		CatalogURLs: []string{"https://www.misuperfresh.com.gt/catalog/9?minPrice=0&maxPrice=225"},
		MaxPages:    100,

		Delay:             time.Second,
		WaitTime:          20 * time.Second,
		PrimaryWait:       30 * time.Second,
		NavigationTimeout: 60 * time.Second,
		Headless:          true,

		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    time.Second,
		RetryBackoffMax: 10 * time.Second,
		RetryMultiplier: 2,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",

		APIHost:             "msf-api.gta.com.gt",
		ProductsEndpoint:    "https://msf-api.gta.com.gt/api/products",
		SubcategoryEndpoint: "https://msf-api.gta.com.gt/api/catalog/subcategory",
		Referer:             "https://www.misuperfresh.com.gt/",
		Channel:             "web",
		StoreCode:           204,

		ProbeThreshold:   5,
		ForceAllProducts: true,
		CacheConfig:      true,
		CacheFile:        "config/api_config_cache.json",
		FallbackMarkup:   true,

		OutputFile:         "data/products.csv",
		OutputFormat:       "json",
		Parallelism:        2,
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100000,

		LogLevel: "INFO",
		LogFile:  "scraper.log",
	}
}

// LoadFile overlays values from a YAML file onto c. Keys missing from the
// file keep their current value.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if err := requireHost("base URL", c.BaseURL); err != nil {
		return err
	}
	if len(c.CatalogURLs) == 0 {
		return fmt.Errorf("at least one catalog URL is required")
	}
	for _, raw := range c.CatalogURLs {
		if err := requireHost("catalog URL", raw); err != nil {
			return err
		}
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.WaitTime < 0 {
		return fmt.Errorf("wait time cannot be negative")
	}
	if c.PrimaryWait <= 0 {
		return fmt.Errorf("primary wait must be positive")
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if c.APIHost == "" {
		return fmt.Errorf("api host cannot be empty")
	}
	if err := requireHost("products endpoint", c.ProductsEndpoint); err != nil {
		return err
	}
	if c.ProbeThreshold < 0 {
		return fmt.Errorf("probe threshold cannot be negative")
	}
	if c.CacheConfig && c.CacheFile == "" {
		return fmt.Errorf("cache file cannot be empty when caching is enabled")
	}

	switch c.OutputFormat {
	case "csv", "json", "snapshot", "parquet", "dual", "all":
		if c.OutputFile == "" {
			return fmt.Errorf("output file cannot be empty")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres output")
		}
	default:
		return fmt.Errorf("output format must be csv, json, snapshot, parquet, dual, all, or postgres")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}

func requireHost(label, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", label, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", label)
	}
	return nil
}
