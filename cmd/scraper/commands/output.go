package commands

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
)

func createWriter(ctx context.Context, cfg *config.Config) (pipeline.OutputWriter, error) {
	source := sourceHost(cfg.BaseURL)
	base := strings.TrimSuffix(cfg.OutputFile, filepath.Ext(cfg.OutputFile))
	switch cfg.OutputFormat {
	case "json":
		return pipeline.NewJSONWriter(cfg.OutputFile)
	case "csv":
		return pipeline.NewCSVWriter(cfg.OutputFile)
	case "snapshot", "parquet":
		return pipeline.NewFileWriter(cfg.OutputFormat, cfg.OutputFile, source)
	case "dual":
		return pipeline.NewExportWriter(base, source, "csv", "json")
	case "all":
		return pipeline.NewExportWriter(base, source, "csv", "json", "snapshot", "parquet")
	case "postgres":
		return pipeline.NewPostgresWriter(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func outputTarget(cfg *config.Config) string {
	base := strings.TrimSuffix(cfg.OutputFile, filepath.Ext(cfg.OutputFile))
	switch cfg.OutputFormat {
	case "postgres":
		return "postgres"
	case "dual":
		return base + ".{csv,jsonl}"
	case "all":
		return base + ".{csv,jsonl,json,parquet}"
	}
	return cfg.OutputFile
}

// sourceHost names the scraped site in export metadata.
func sourceHost(baseURL string) string {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Hostname() == "" {
		return baseURL
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

func printSummary(w io.Writer, result *models.ScraperResult, duration time.Duration, output string, metrics map[string]interface{}) {
	totalItems := int64(0)
	if processed, ok := metrics["processed_products"].(int64); ok {
		totalItems = processed
	}
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(totalItems) / duration.Seconds()
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Scrape complete")
	t.AppendRows([]table.Row{
		{"Pages", result.PageCount},
		{"Products scraped", result.TotalCount},
		{"Products written", totalItems},
		{"Markup fallbacks", result.FallbackPages},
		{"Errors", result.ErrorCount},
		{"Failed URLs", len(result.FailedURLs)},
	})
	if len(result.ErrorsByType) > 0 {
		t.AppendRow(table.Row{"Error types", formatCounts(result.ErrorsByType)})
	}
	if validation, ok := metrics["validation_errors"].(map[string]int); ok && len(validation) > 0 {
		t.AppendRow(table.Row{"Rejected", formatCounts(validation)})
	}
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Duration", duration.Round(time.Millisecond)},
		{"Items/sec", fmt.Sprintf("%.2f", itemsPerSec)},
		{"Output", output},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// productTable renders products as a table, capping the rows shown.
func productTable(w io.Writer, products []*models.Product, limit int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Name", "Price", "Barcode", "Category", "Subcategory"})
	for i, product := range products {
		if limit > 0 && i == limit {
			t.AppendFooter(table.Row{"", fmt.Sprintf("%d more", len(products)-limit)})
			break
		}
		price := product.PriceOrEmpty()
		if price == "" {
			price = "-"
		}
		t.AppendRow(table.Row{i + 1, product.Name, price, product.Barcode, product.Category, product.Subcategory})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", key, counts[key]))
	}
	return strings.Join(parts, " ")
}
