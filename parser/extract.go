package parser

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// Alias tables are tried in order; the first usable entry wins.
var (
	containerKeys = []string{"products", "items", "data", "results", "content"}

	nameKeys = []string{
		"name", "productName", "title", "productTitle",
		"nombre", "descripcion", "description", "productDescription",
	}
	priceKeys = []string{
		"price", "precio", "cost", "costo", "amount",
		"valor", "unitPrice", "unit_price", "salePrice", "sale_price",
	}

	descriptionKeys     = []string{"description", "productDescription"}
	barcodeKeys         = []string{"barcode", "ean", "upc"}
	stockKeys           = []string{"stock", "inventory"}
	offerKeys           = []string{"offer", "promotion"}
	offerPriceKeys      = []string{"price", "offerPrice"}
	offerDescKeys       = []string{"description", "name"}
	imageObjectKeys     = []string{"thumbnail", "image"}
	imageListKeys       = []string{"images", "photos"}
	imageURLKeys        = []string{"url", "src"}
	subcategoryKeys     = []string{"subcategory", "subCategory"}
	subcategoryNameKeys = []string{"name", "title"}
	categoryKeys        = []string{"category"}
	categoryNameKeys    = []string{"name", "title"}
)

// ExtractProducts locates the product collection inside an arbitrary JSON
// value and normalizes every item it can. It never fails; payloads without a
// recognizable collection yield an empty slice.
func ExtractProducts(data any) []*models.Product {
	products := extractProducts(data)
	slog.Debug("extracted products", slog.Int("count", len(products)))
	return products
}

func extractProducts(data any) []*models.Product {
	switch value := data.(type) {
	case []any:
		return extractItems(value)
	case map[string]any:
		for _, key := range containerKeys {
			nested, ok := value[key]
			if !ok {
				continue
			}
			var found []*models.Product
			switch inner := nested.(type) {
			case []any:
				found = extractItems(inner)
			case map[string]any:
				found = extractProducts(inner)
			}
			if len(found) > 0 {
				return found
			}
		}
		if product := ExtractProduct(value); product != nil {
			return []*models.Product{product}
		}
	}
	return []*models.Product{}
}

func extractItems(items []any) []*models.Product {
	products := make([]*models.Product, 0, len(items))
	for _, item := range items {
		if product := ExtractProduct(item); product != nil {
			products = append(products, product)
		}
	}
	return products
}

// ExtractProduct normalizes one source item. It returns nil when the item is
// not an object or no name alias yields a value.
func ExtractProduct(item any) *models.Product {
	fields, ok := item.(map[string]any)
	if !ok {
		return nil
	}

	name, ok := firstText(fields, nameKeys)
	if !ok {
		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			slog.Debug("item has no name", slog.Any("keys", sortedKeys(fields)))
		}
		return nil
	}

	product := &models.Product{
		Name:    name,
		RawData: fields,
	}

	for _, key := range priceKeys {
		raw, ok := fields[key]
		if !ok || raw == nil {
			continue
		}
		if cleaned, ok := NormalizePrice(stringify(raw)); ok {
			product.Price = &cleaned
		}
		break
	}

	if description, ok := lookup(fields, descriptionKeys); ok && description != nil {
		product.Description = strings.TrimSpace(stringify(description))
	}
	if barcode, ok := BarcodeOf(fields); ok {
		product.Barcode = barcode
	}
	if stock, ok := lookup(fields, stockKeys); ok {
		product.Stock = stock
	}

	if offer, ok := firstMap(fields, offerKeys); ok {
		if price, ok := firstText(offer, offerPriceKeys); ok {
			product.OfferPrice = price
		}
		if description, ok := firstText(offer, offerDescKeys); ok {
			product.OfferDescription = description
		}
	}

	product.ImageURL = imageURL(fields)

	if subcategory, ok := firstMap(fields, subcategoryKeys); ok {
		if name, ok := firstText(subcategory, subcategoryNameKeys); ok {
			product.Subcategory = name
		}
		if category, ok := firstMap(subcategory, categoryKeys); ok {
			if name, ok := firstText(category, categoryNameKeys); ok {
				product.Category = name
			}
		}
	}
	if product.Category == "" {
		if category, ok := firstMap(fields, categoryKeys); ok {
			if name, ok := firstText(category, categoryNameKeys); ok {
				product.Category = name
			}
		}
	}

	return product
}

// BarcodeOf returns the barcode of a raw item, if it has a non-empty one.
func BarcodeOf(item any) (string, bool) {
	fields, ok := item.(map[string]any)
	if !ok {
		return "", false
	}
	return firstText(fields, barcodeKeys)
}

func imageURL(fields map[string]any) string {
	if image, ok := firstMap(fields, imageObjectKeys); ok {
		if url, ok := firstText(image, imageURLKeys); ok {
			return url
		}
	}
	for _, key := range imageListKeys {
		images, ok := fields[key].([]any)
		if !ok || len(images) == 0 {
			continue
		}
		if first, ok := images[0].(map[string]any); ok {
			if url, ok := firstText(first, imageURLKeys); ok {
				return url
			}
		}
	}
	return ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
