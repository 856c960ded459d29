// Package models defines data structures for the scraper.
package models

import "time"

// Product is one normalized catalog item. Price is nil when the source item
// carried no usable price, which is distinct from a zero price.
type Product struct {
	Name             string         `json:"name"`
	Price            *string        `json:"price"`
	Description      string         `json:"description,omitempty"`
	Barcode          string         `json:"barcode,omitempty"`
	Stock            any            `json:"stock,omitempty"`
	OfferPrice       string         `json:"offer_price,omitempty"`
	OfferDescription string         `json:"offer_description,omitempty"`
	ImageURL         string         `json:"image_url,omitempty"`
	Category         string         `json:"category,omitempty"`
	Subcategory      string         `json:"subcategory,omitempty"`
	RawData          map[string]any `json:"raw_data,omitempty"`
}

// PriceOrEmpty returns the cleaned price, or "" when the product has none.
func (p *Product) PriceOrEmpty() string {
	if p == nil || p.Price == nil {
		return ""
	}
	return *p.Price
}

// RawPayloads keeps the payloads a page result was extracted from.
type RawPayloads struct {
	Products    map[string]any `json:"products"`
	Subcategory any            `json:"subcategory"`
}

// PageResult is the outcome of scraping one catalog page. A non-empty Error
// marks a failed attempt; Products is then empty.
type PageResult struct {
	URL          string      `json:"url"`
	Products     []*Product  `json:"products"`
	ProductCount int         `json:"product_count"`
	APIResponses int         `json:"api_responses"`
	Pagination   any         `json:"pagination"`
	NextPage     *string     `json:"next_page"`
	RawData      RawPayloads `json:"raw_data"`
	Error        string      `json:"error,omitempty"`
	ErrorType    string      `json:"error_type,omitempty"`
}

// Next returns the next page URL, or "" at the end of the catalog.
func (r *PageResult) Next() string {
	if r == nil || r.NextPage == nil {
		return ""
	}
	return *r.NextPage
}

// ScraperResult holds the overall result of a crawl.
type ScraperResult struct {
	StartTime     time.Time
	EndTime       time.Time
	TotalCount    int
	PageCount     int
	ErrorCount    int
	FailedURLs    []string
	ErrorsByType  map[string]int
	FallbackPages int
}
