package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "no catalog urls",
			mutate: func(cfg *Config) {
				cfg.CatalogURLs = nil
			},
			wantErr: "catalog URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = time.Minute
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "unknown output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xlsx"
			},
			wantErr: "output format",
		},
		{
			name: "postgres without dsn",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "postgres"
				cfg.DatabaseURL = ""
			},
			wantErr: "database URL",
		},
		{
			name: "cache without file",
			mutate: func(cfg *Config) {
				cfg.CacheConfig = true
				cfg.CacheFile = ""
			},
			wantErr: "cache file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CATALOG_URL", "https://shop.test/catalog/1, https://shop.test/catalog/2")
	t.Setenv("DELAY", "2.5")
	t.Setenv("API_FORCE_ALL_PRODUCTS", "false")
	t.Setenv("SCRAPER_PAGES", "7")
	t.Setenv("STORAGE_FORMAT", "CSV")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}

	if len(cfg.CatalogURLs) != 2 || cfg.CatalogURLs[1] != "https://shop.test/catalog/2" {
		t.Fatalf("catalog urls = %v", cfg.CatalogURLs)
	}
	if cfg.Delay != 2500*time.Millisecond {
		t.Fatalf("delay = %v, want 2.5s", cfg.Delay)
	}
	if cfg.ForceAllProducts {
		t.Fatalf("force all products should be disabled")
	}
	if cfg.MaxPages != 7 {
		t.Fatalf("max pages = %d, want 7", cfg.MaxPages)
	}
	if cfg.OutputFormat != "csv" {
		t.Fatalf("output format = %q, want csv", cfg.OutputFormat)
	}
}

func TestApplyEnvOutputDir(t *testing.T) {
	t.Setenv("SCRAPER_OUTPUT", "out/products.jsonl")
	t.Setenv("OUTPUT_DIR", "/tmp/exports")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if want := filepath.Join("/tmp/exports", "products.jsonl"); cfg.OutputFile != want {
		t.Fatalf("output file = %q, want %q", cfg.OutputFile, want)
	}
}

func TestApplyEnvLogFile(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LogFile != "scraper.log" {
		t.Fatalf("default log file = %q, want scraper.log", cfg.LogFile)
	}

	t.Setenv("LOG_FILE", "logs/run.log")
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.LogFile != "logs/run.log" {
		t.Fatalf("log file = %q, want logs/run.log", cfg.LogFile)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("SCRAPER_PAGES", "many")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil || !strings.Contains(err.Error(), "SCRAPER_PAGES") {
		t.Fatalf("expected SCRAPER_PAGES error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.yaml")
	body := "max_pages: 3\nforce_all_products: false\ncatalog_urls:\n  - https://shop.test/catalog/4\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.MaxPages != 3 || cfg.ForceAllProducts {
		t.Fatalf("unexpected overlay: pages=%d force=%v", cfg.MaxPages, cfg.ForceAllProducts)
	}
	if cfg.StoreCode != 204 {
		t.Fatalf("store code should keep its default, got %d", cfg.StoreCode)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}
}
