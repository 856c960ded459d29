package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
)

func parseScrapeFlags(t *testing.T, args ...string) (*cobra.Command, *scrapeFlags) {
	t.Helper()
	cmd := &cobra.Command{Use: "scraper"}
	flags := bindScrapeFlags(cmd)
	args = append([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}, args...)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, flags
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "scraper.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("max_pages: 9\nparallelism: 6\nstore_code: 301\n"), 0o644))

	t.Setenv("SCRAPER_PAGES", "7")
	t.Setenv("STORAGE_FORMAT", "json")

	cmd, flags := parseScrapeFlags(t,
		"--config", yamlPath,
		"--pages", "3",
		"--format", "CSV",
		"--url", "https://shop.test/catalog/1",
		"--url", "https://shop.test/catalog/2",
		"--delay", "1500ms",
	)

	cfg, err := loadConfig(cmd, flags)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MaxPages, "flags beat the environment")
	require.Equal(t, "csv", cfg.OutputFormat)
	require.Equal(t, 6, cfg.Parallelism, "the file beats defaults")
	require.Equal(t, 301, cfg.StoreCode)
	require.Equal(t, 1500*time.Millisecond, cfg.Delay)
	if diff := cmp.Diff([]string{"https://shop.test/catalog/1", "https://shop.test/catalog/2"}, cfg.CatalogURLs); diff != "" {
		t.Fatalf("catalog urls mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigEnvironmentBeatsFile(t *testing.T) {
	yamlPath := filepath.Join(t.TempDir(), "scraper.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("max_pages: 9\n"), 0o644))
	t.Setenv("SCRAPER_PAGES", "7")

	cmd, flags := parseScrapeFlags(t, "--config", yamlPath)
	cfg, err := loadConfig(cmd, flags)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.MaxPages)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cmd, flags := parseScrapeFlags(t, "--format", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := loadConfig(cmd, flags)
	require.ErrorContains(t, err, "database URL")
}

func TestCreateWriterFormats(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		format string
		file   string
		want   []string
	}{
		{format: "csv", file: "products.csv", want: []string{"products.csv"}},
		{format: "json", file: "products.jsonl", want: []string{"products.jsonl"}},
		{format: "snapshot", file: "products.json", want: []string{"products.json"}},
		{format: "parquet", file: "products.parquet", want: []string{"products.parquet"}},
		{format: "dual", file: "export.csv", want: []string{"export.csv", "export.jsonl"}},
		{format: "all", file: "export.csv", want: []string{"export.csv", "export.jsonl", "export.json", "export.parquet"}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.OutputFormat = tt.format
			cfg.OutputFile = filepath.Join(dir, tt.format, tt.file)

			writer, err := createWriter(context.Background(), cfg)
			require.NoError(t, err)
			require.NoError(t, writer.Close())
			for _, name := range tt.want {
				_, err := os.Stat(filepath.Join(dir, tt.format, name))
				require.NoError(t, err)
			}
		})
	}

	cfg := config.DefaultConfig()
	cfg.OutputFormat = "xlsx"
	_, err := createWriter(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported format")
}

func TestOutputTarget(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputFile = "data/products.csv"
	for format, want := range map[string]string{
		"csv":      "data/products.csv",
		"dual":     "data/products.{csv,jsonl}",
		"all":      "data/products.{csv,jsonl,json,parquet}",
		"postgres": "postgres",
	} {
		cfg.OutputFormat = format
		require.Equal(t, want, outputTarget(cfg), format)
	}
	require.Equal(t, "misuperfresh.com.gt", sourceHost(cfg.BaseURL))
}

func TestReportCommand(t *testing.T) {
	dataDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "reports")

	older := filepath.Join(dataDir, "old.jsonl")
	require.NoError(t, os.WriteFile(older, []byte(`{"name":"Viejo","price":"1.00","category":"A","subcategory":"B"}`+"\n"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	export := filepath.Join(dataDir, "products.jsonl")
	lines := []string{
		`{"name":"Leche","price":"10.00","category":"Refrigerados","subcategory":"Lacteos"}`,
		`{"name":"Shampoo","price":"25.00","category":"Cuidado Personal","subcategory":"Cabello"}`,
		`{"name":"Arroz","price":"12.5","category":"Abarrotes","subcategory":"Granos"}`,
	}
	require.NoError(t, os.WriteFile(export, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	var out bytes.Buffer
	cmd := newReportCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--data-dir", dataDir, "--output-dir", outputDir})
	require.NoError(t, cmd.Execute())

	text := out.String()
	require.Contains(t, text, "CATEGORIA: Abarrotes")
	require.Contains(t, text, "    Arroz - Q12.50")
	require.NotContains(t, text, "Shampoo")
	require.NotContains(t, text, "Viejo")
	require.Contains(t, text, "Total productos comestibles mostrados: 2")

	saved, err := os.ReadFile(filepath.Join(outputDir, "products_productos_comestibles.txt"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(text, string(saved)), "stdout should start with the saved report")
	require.Contains(t, text, "File saved to: ")
}

func TestReportCommandNoExports(t *testing.T) {
	cmd := newReportCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--data-dir", t.TempDir()})
	require.ErrorContains(t, cmd.Execute(), "no exports found")
}

func TestCreateWriterReturnsPipelineWriter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputFormat = "csv"
	cfg.OutputFile = filepath.Join(t.TempDir(), "products.csv")

	writer, err := createWriter(context.Background(), cfg)
	require.NoError(t, err)
	defer writer.Close()
	_, ok := writer.(*pipeline.CSVWriter)
	require.True(t, ok)
}

func TestExtractCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "response.json")
	body := `{"products":[
		{"name":"Arroz","price":"Q12.50","barcode":"750100"},
		{"productName":"Frijol","precio":8},
		{"price":"Q1.00"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	var out bytes.Buffer
	cmd := newExtractCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--jsonl", path})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first models.Product
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "Arroz", first.Name)
	require.Equal(t, "12.50", first.PriceOrEmpty())
	require.Equal(t, "750100", first.Barcode)

	out.Reset()
	cmd = newExtractCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--limit", "1", path})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "Arroz")
	require.NotContains(t, out.String(), "Frijol")
	require.Contains(t, strings.ToLower(out.String()), "1 more")
}

func TestExtractCommandBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "response.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"products":`), 0o644))

	cmd := newExtractCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})
	require.ErrorContains(t, cmd.Execute(), "decode")
}

func TestMetricsRouter(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "scraper_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	server := httptest.NewServer(newMetricsRouter(registry))
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, buf.String(), "scraper_test_total 1")

	health, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)

	post, err := http.Post(server.URL+"/healthz", "text/plain", nil)
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		"INFO":     slog.LevelInfo,
		"warning":  slog.LevelWarn,
		"CRITICAL": slog.LevelError,
		"":         slog.LevelInfo,
	}
	for name, want := range tests {
		if got := parseLevel(name); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewLoggerTeesToFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "scraper.log")

	logger, level, closeLog, err := newLogger(&console, false, "INFO", path)
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, level.Level())

	logger.Debug("probe detail", slog.Int("attempt", 2))
	logger.Info("page scraped", slog.String("url", "https://shop.test/c/1"))
	require.NoError(t, closeLog())

	require.Contains(t, console.String(), "page scraped")
	require.NotContains(t, console.String(), "probe detail")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "DEBUG", first["level"])
	require.Equal(t, "probe detail", first["msg"])
}

func TestNewLoggerWithoutFile(t *testing.T) {
	var console bytes.Buffer
	logger, level, closeLog, err := newLogger(&console, true, "ERROR", "")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level.Level())

	logger.Debug("verbose detail")
	require.NoError(t, closeLog())
	require.Contains(t, console.String(), "verbose detail")
}

func TestLoadConfigLogFileFlag(t *testing.T) {
	cmd, flags := parseScrapeFlags(t, "--log-file", "")
	cfg, err := loadConfig(cmd, flags)
	require.NoError(t, err)
	require.Empty(t, cfg.LogFile)
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	result := &models.ScraperResult{
		PageCount:     4,
		TotalCount:    120,
		ErrorCount:    1,
		FailedURLs:    []string{"https://shop.test/catalog/9?page=5"},
		ErrorsByType:  map[string]int{"timeout": 1},
		FallbackPages: 1,
	}
	metrics := map[string]interface{}{
		"processed_products": int64(110),
		"validation_errors":  map[string]int{"duplicate_barcode": 10},
	}

	printSummary(&out, result, 2*time.Second, "data/products.csv", metrics)

	text := out.String()
	for _, want := range []string{"Scrape complete", "120", "110", "timeout=1", "duplicate_barcode=10", "55.00", "data/products.csv"} {
		require.Contains(t, text, want)
	}
}
