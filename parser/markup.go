package parser

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

var (
	markupProductSelectors = []string{
		"flt-scene-host > *",
		"[data-flutter]",
		"div.product-item",
		"div.product",
		"article.product",
		"div.item-product",
		"li.product",
		"[data-product-id]",
	}
	markupNameSelectors = []string{
		"h2.product-name",
		"h3.product-name",
		".product-title",
		".name",
		"a.product-link",
		"h2",
		"h3",
	}
	markupPriceSelectors = []string{
		".price",
		".product-price",
		".price-current",
		"[class*='price']",
		".cost",
	}
	markupNextSelectors = []string{
		`a[aria-label="Next"]`,
		"a.next",
		`a[class*="next"]`,
	}
	textPricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Q\s*([\d,]+\.?\d*)`),
		regexp.MustCompile(`(?i)\$\s*([\d,]+\.?\d*)`),
		regexp.MustCompile(`(?i)([\d,]+\.?\d*)\s*(?:Q|quetzales|GTQ)`),
	}
)

// ParseMarkupProducts extracts products from rendered catalog markup using
// the first product container selector that matches anything.
func ParseMarkupProducts(doc *goquery.Selection) []*models.Product {
	products := make([]*models.Product, 0)
	if doc == nil {
		return products
	}

	var elements *goquery.Selection
	for _, selector := range markupProductSelectors {
		found := doc.Find(selector)
		if found.Length() > 0 {
			elements = found
			break
		}
	}
	if elements == nil {
		return products
	}

	elements.Each(func(_ int, element *goquery.Selection) {
		if product := parseMarkupProduct(element); product != nil {
			products = append(products, product)
		}
	})
	return products
}

func parseMarkupProduct(element *goquery.Selection) *models.Product {
	name := ""
	for _, selector := range markupNameSelectors {
		found := element.Find(selector).First()
		if found.Length() > 0 {
			name = strings.TrimSpace(found.Text())
			break
		}
	}
	if name == "" {
		name = strings.TrimSpace(element.Find("a").First().Text())
	}
	if name == "" {
		return nil
	}

	product := &models.Product{Name: name}
	for _, selector := range markupPriceSelectors {
		found := element.Find(selector).First()
		if found.Length() == 0 {
			continue
		}
		if price, ok := NormalizePrice(found.Text()); ok {
			product.Price = &price
			break
		}
	}
	if product.Price == nil {
		if price, ok := PriceFromText(element.Text()); ok {
			product.Price = &price
		}
	}
	return product
}

// PriceFromText finds a currency-marked amount in free text.
func PriceFromText(text string) (string, bool) {
	for _, pattern := range textPricePatterns {
		match := pattern.FindStringSubmatch(text)
		if len(match) > 1 {
			if price, ok := NormalizePrice(match[1]); ok {
				return price, true
			}
		}
	}
	return "", false
}

// FindNextPage returns the absolute URL of the "next" pagination link, or ""
// when the markup has none.
func FindNextPage(doc *goquery.Selection, pageURL string) string {
	if doc == nil {
		return ""
	}

	href := ""
	for _, selector := range markupNextSelectors {
		if value, ok := doc.Find(selector).First().Attr("href"); ok && value != "" {
			href = value
			break
		}
	}
	if href == "" {
		doc.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
			text := strings.ToLower(strings.TrimSpace(link.Text()))
			if strings.Contains(text, "siguiente") || strings.Contains(text, "next") || text == ">" || text == "›" {
				href, _ = link.Attr("href")
				return false
			}
			return true
		})
	}
	if href == "" {
		return ""
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
