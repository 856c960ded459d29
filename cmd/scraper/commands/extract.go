package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

func newExtractCmd() *cobra.Command {
	var (
		asJSONL bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "extract <response.json>",
		Short: "Extracts products from a saved API response without a browser.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			products, err := extractFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSONL {
				return writeJSONL(out, products)
			}
			productTable(out, products, limit)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSONL, "jsonl", false, "print one JSON product per line instead of a table")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum table rows (0 for all)")
	return cmd
}

func extractFile(path string) ([]*models.Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return parser.ExtractProducts(payload), nil
}

func writeJSONL(w io.Writer, products []*models.Product) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	for _, product := range products {
		if err := encoder.Encode(product); err != nil {
			return fmt.Errorf("encode product: %w", err)
		}
	}
	return nil
}
