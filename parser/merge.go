package parser

import (
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// Endpoints identifies captured responses by URL fragment.
type Endpoints struct {
	Products    string
	Subcategory string
}

// Merged is the outcome of combining every captured payload.
type Merged struct {
	// Primary is the richest products payload with its list replaced by the
	// merged, barcode-deduplicated list. Nil when no products payload had items.
	Primary     map[string]any
	Subcategory any
	Lists       int
	Unique      int
}

// MergeResponses picks the products response with the most items as the
// primary payload, then merges the product lists of every products response
// in capture order. The first occurrence of a barcode wins; items without a
// barcode are always kept. Captured payloads are not modified.
func MergeResponses(responses []models.CapturedResponse, endpoints Endpoints) Merged {
	var merged Merged
	var lists [][]any
	maxCount := 0

	for _, response := range responses {
		switch {
		case endpoints.Products != "" && strings.Contains(response.URL, endpoints.Products):
			body, ok := response.Body.(map[string]any)
			if !ok {
				continue
			}
			items, ok := body["products"].([]any)
			if !ok {
				continue
			}
			lists = append(lists, items)
			if len(items) > maxCount {
				maxCount = len(items)
				merged.Primary = body
			}
		case endpoints.Subcategory != "" && strings.Contains(response.URL, endpoints.Subcategory):
			if response.Body != nil {
				merged.Subcategory = response.Body
			}
		}
	}

	merged.Lists = len(lists)
	if merged.Primary == nil {
		return merged
	}

	unique := MergeProductLists(lists...)
	primary := make(map[string]any, len(merged.Primary))
	for key, value := range merged.Primary {
		primary[key] = value
	}
	primary["products"] = unique
	merged.Primary = primary
	merged.Unique = len(unique)
	return merged
}

// MergeProductLists concatenates raw product lists, dropping later items
// whose barcode was already seen.
func MergeProductLists(lists ...[]any) []any {
	total := 0
	for _, list := range lists {
		total += len(list)
	}

	out := make([]any, 0, total)
	seen := make(map[string]struct{}, total)
	for _, list := range lists {
		for _, item := range list {
			if barcode, ok := BarcodeOf(item); ok {
				if _, dup := seen[barcode]; dup {
					continue
				}
				seen[barcode] = struct{}{}
			}
			out = append(out, item)
		}
	}
	return out
}

// ProductCount returns the length of the products list of a payload.
func ProductCount(body any) int {
	fields, ok := body.(map[string]any)
	if !ok {
		return 0
	}
	items, ok := fields["products"].([]any)
	if !ok {
		return 0
	}
	return len(items)
}
