package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

var (
	priceStripper = strings.NewReplacer("Q", "", "$", "", ",", "")
	leadingNumber = regexp.MustCompile(`[0-9]+(\.[0-9]+)?`)
)

// ValidateProduct ensures the extractor captured the mandatory fields.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product missing name")
	}
	if p.Price != nil && !leadingNumber.MatchString(*p.Price) {
		return fmt.Errorf("product %s has non-numeric price %q", p.Name, *p.Price)
	}
	return nil
}

// NormalizePrice strips currency symbols and thousands separators and keeps
// the leading numeric run. ok is false when no number is present.
func NormalizePrice(raw string) (string, bool) {
	cleaned := strings.TrimSpace(priceStripper.Replace(raw))
	match := leadingNumber.FindString(cleaned)
	if match == "" {
		return "", false
	}
	return match, true
}
