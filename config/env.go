package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables onto c.
func (c *Config) ApplyEnv() error {
	if v, ok := EnvString("BASE_URL"); ok {
		c.BaseURL = v
	}
	if v, ok := EnvString("CATALOG_URL"); ok {
		c.CatalogURLs = splitList(v)
	}
	if v, ok := EnvString("USER_AGENT"); ok {
		c.UserAgent = v
	}
	if v, ok := EnvString("STORAGE_FORMAT"); ok {
		c.OutputFormat = strings.ToLower(v)
	}
	if v, ok := EnvString("SCRAPER_OUTPUT"); ok {
		c.OutputFile = v
	}
	// OUTPUT_DIR relocates the output file, keeping its name.
	if v, ok := EnvString("OUTPUT_DIR"); ok {
		c.OutputFile = filepath.Join(v, filepath.Base(c.OutputFile))
	}
	if v, ok := EnvString("DATABASE_URL"); ok {
		c.DatabaseURL = v
	}
	if v, ok := EnvString("LOG_LEVEL"); ok {
		c.LogLevel = strings.ToUpper(v)
	}
	if v, ok := EnvString("LOG_FILE"); ok {
		c.LogFile = v
	}
	if v, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v, ok := EnvString("API_CACHE_FILE"); ok {
		c.CacheFile = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SCRAPER_PAGES", &c.MaxPages},
		{"MAX_RETRIES", &c.MaxRetries},
		{"SCRAPER_PARALLEL", &c.Parallelism},
	}
	for _, entry := range ints {
		value, ok, err := EnvInt(entry.key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", entry.key, err)
		}
		if ok {
			*entry.dst = value
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"API_FORCE_ALL_PRODUCTS", &c.ForceAllProducts},
		{"API_CACHE_CONFIG", &c.CacheConfig},
		{"HEADLESS", &c.Headless},
		{"FALLBACK_MARKUP", &c.FallbackMarkup},
	}
	for _, entry := range bools {
		value, ok, err := EnvBool(entry.key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", entry.key, err)
		}
		if ok {
			*entry.dst = value
		}
	}

	// DELAY and TIMEOUT are expressed in seconds.
	seconds := []struct {
		key string
		dst *time.Duration
	}{
		{"DELAY", &c.Delay},
		{"TIMEOUT", &c.Timeout},
	}
	for _, entry := range seconds {
		value, ok, err := EnvSeconds(entry.key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", entry.key, err)
		}
		if ok {
			*entry.dst = value
		}
	}

	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// EnvBool parses key as a boolean ("true"/"false", "1"/"0").
func EnvBool(key string) (bool, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	value, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false, false, err
	}
	return value, true, nil
}

// EnvSeconds parses key as a (possibly fractional) number of seconds.
func EnvSeconds(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, err
	}
	return time.Duration(value * float64(time.Second)), true, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
