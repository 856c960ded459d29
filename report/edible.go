// Package report turns exported products into a plain-text price list of
// edible products grouped by category and subcategory.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// NonEdibleCategories are left out of the report.
var NonEdibleCategories = []string{
	"Bebe",
	"Cuidado Del Hogar / Hogar Y Librería",
	"Cuidado Del Hogar / Limpieza, Ropa Y Hogar",
	"Cuidado Personal",
	"Mascotas",
	"Medicinales",
}

const ruleWidth = 60

// FilterEdible returns the products outside NonEdibleCategories, in their
// original order.
func FilterEdible(products []*models.Product) []*models.Product {
	excluded := make(map[string]struct{}, len(NonEdibleCategories))
	for _, category := range NonEdibleCategories {
		excluded[category] = struct{}{}
	}
	out := make([]*models.Product, 0, len(products))
	for _, p := range products {
		if p == nil {
			continue
		}
		if _, skip := excluded[p.Category]; skip {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Write renders products sorted by category, subcategory and name.
func Write(w io.Writer, products []*models.Product) error {
	sorted := make([]*models.Product, len(products))
	copy(sorted, products)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Subcategory != b.Subcategory {
			return a.Subcategory < b.Subcategory
		}
		return a.Name < b.Name
	})

	rule := strings.Repeat("=", ruleWidth)
	var b strings.Builder
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "PRODUCTOS COMESTIBLES CON PRECIOS")
	fmt.Fprintln(&b, rule)

	for start := 0; start < len(sorted); {
		category := sorted[start].Category
		end := start
		for end < len(sorted) && sorted[end].Category == category {
			end++
		}
		fmt.Fprintf(&b, "\nCATEGORIA: %s\n", category)
		fmt.Fprintln(&b, rule)
		writeSubcategories(&b, sorted[start:end])
		start = end
	}

	fmt.Fprintln(&b, "\n"+rule)
	fmt.Fprintf(&b, "Total productos comestibles mostrados: %d\n", len(sorted))

	_, err := io.WriteString(w, b.String())
	return err
}

func writeSubcategories(b *strings.Builder, products []*models.Product) {
	for start := 0; start < len(products); {
		subcategory := products[start].Subcategory
		end := start
		for end < len(products) && products[end].Subcategory == subcategory {
			end++
		}
		fmt.Fprintf(b, "\n  SUBCATEGORIA: %s (%d productos)\n", subcategory, end-start)
		fmt.Fprintln(b, "  "+strings.Repeat("-", ruleWidth-2))
		for _, p := range products[start:end] {
			fmt.Fprintf(b, "    %s - %s\n", p.Name, formatPrice(p.Price))
		}
		start = end
	}
}

// formatPrice renders a quetzal amount with two decimals. Unparseable
// prices are shown as-is and a missing price as zero.
func formatPrice(price *string) string {
	if price == nil {
		return "Q0.00"
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(*price), 64)
	if err != nil {
		return "Q" + *price
	}
	return fmt.Sprintf("Q%.2f", value)
}

// FileName is the report name for an export: its stem plus a fixed suffix.
func FileName(input string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_productos_comestibles.txt"
}
