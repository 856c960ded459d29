package parser

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	paginationKeys  = []string{"pagination", "pageInfo", "page_info", "paging", "meta"}
	hasNextKeys     = []string{"hasNext", "has_next"}
	nextPageKeys    = []string{"nextPage", "next_page"}
	currentPageKeys = []string{"currentPage", "current_page"}
	totalPagesKeys  = []string{"totalPages", "total_pages"}
)

// Pagination describes what a products payload says about the next page.
// An empty NextURL is the end of the catalog, not an error.
type Pagination struct {
	Info        any
	CurrentPage int
	TotalPages  int
	NextURL     string
}

// ResolvePagination reads the first known pagination descriptor of payload
// and derives the next page URL from currentURL.
func ResolvePagination(payload map[string]any, currentURL string) Pagination {
	var result Pagination
	if payload == nil {
		return result
	}

	info, ok := lookup(payload, paginationKeys)
	if !ok {
		return result
	}
	result.Info = info

	descriptor, ok := info.(map[string]any)
	if !ok {
		return result
	}

	hasNext, hasNextSet := lookup(descriptor, hasNextKeys)
	nextPage, nextPageSet := lookup(descriptor, nextPageKeys)
	more := truthy(hasNext) || truthy(nextPage)
	if !hasNextSet && !nextPageSet {
		// Without explicit flags the page counts decide.
		more = true
	}
	if !more {
		return result
	}

	result.CurrentPage = 1
	if value, ok := lookup(descriptor, currentPageKeys); ok {
		if current, ok := asInt(value); ok {
			result.CurrentPage = current
		}
	}
	value, ok := lookup(descriptor, totalPagesKeys)
	if !ok {
		return result
	}
	total, ok := asInt(value)
	if !ok {
		return result
	}
	result.TotalPages = total

	if result.CurrentPage >= total {
		return result
	}

	next, err := WithPage(currentURL, result.CurrentPage+1)
	if err != nil {
		return result
	}
	result.NextURL = next
	return result
}

// WithPage rewrites only the page query parameter of rawURL, keeping every
// other parameter and its position. The parameter is appended when absent.
func WithPage(rawURL string, page int) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	value := "page=" + strconv.Itoa(page)
	var parts []string
	replaced := false
	if parsed.RawQuery != "" {
		for _, part := range strings.Split(parsed.RawQuery, "&") {
			key, _, _ := strings.Cut(part, "=")
			if unescaped, err := url.QueryUnescape(key); err == nil {
				key = unescaped
			}
			if key == "page" {
				if replaced {
					continue
				}
				part = value
				replaced = true
			}
			parts = append(parts, part)
		}
	}
	if !replaced {
		parts = append(parts, value)
	}

	parsed.RawQuery = strings.Join(parts, "&")
	return parsed.String(), nil
}
