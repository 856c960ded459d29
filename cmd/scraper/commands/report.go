package commands

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/report"
)

func newReportCmd() *cobra.Command {
	var (
		dataDir   string
		outputDir string
	)
	cmd := &cobra.Command{
		Use:   "report [export]",
		Short: "Writes the edible products of an export as a grouped price list.",
		Long: "Reads a JSONL, snapshot JSON or Parquet export, drops non-edible " +
			"categories and writes a text report grouped by category and subcategory. " +
			"Without an argument the newest export in --data-dir is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := ""
			if len(args) == 1 {
				input = args[0]
			} else {
				latest, err := latestExport(dataDir)
				if err != nil {
					return err
				}
				input = latest
			}
			path, err := writeReport(cmd.OutOrStdout(), input, outputDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nFile saved to: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "data", "directory searched for the newest export")
	cmd.Flags().StringVar(&outputDir, "output-dir", "data", "directory for the report file")
	return cmd
}

// writeReport renders the report for input to w and to a file in
// outputDir, returning the file's absolute path.
func writeReport(w io.Writer, input, outputDir string) (string, error) {
	products, err := pipeline.ReadProducts(input)
	if err != nil {
		return "", err
	}
	edible := report.FilterEdible(products)
	slog.Info("filtered export",
		slog.String("input", input),
		slog.Int("loaded", len(products)),
		slog.Int("non_edible", len(products)-len(edible)),
		slog.Int("edible", len(edible)),
	)

	var buf bytes.Buffer
	if err := report.Write(io.MultiWriter(w, &buf), edible); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(outputDir, report.FileName(input))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, nil
}

// latestExport returns the most recently modified export in dir.
func latestExport(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read data directory: %w", err)
	}
	var (
		latest  string
		modTime int64
	)
	for _, entry := range entries {
		if entry.IsDir() || !isExport(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); latest == "" || mod > modTime {
			latest = filepath.Join(dir, entry.Name())
			modTime = mod
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no exports found in %s", dir)
	}
	return latest, nil
}

func isExport(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jsonl", ".json", ".parquet":
		return true
	}
	return false
}
