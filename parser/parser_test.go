package parser

import (
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

func TestValidateProduct(t *testing.T) {
	price := "10.00"
	bad := "N/A"

	tests := []struct {
		name    string
		product *models.Product
		wantErr bool
	}{
		{name: "valid product", product: &models.Product{Name: "Leche", Price: &price}},
		{name: "missing price is allowed", product: &models.Product{Name: "Leche"}},
		{name: "nil product", product: nil, wantErr: true},
		{name: "blank name", product: &models.Product{Name: "  ", Price: &price}, wantErr: true},
		{name: "non-numeric price", product: &models.Product{Name: "Leche", Price: &bad}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.product)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProduct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "quetzal symbol", input: "Q123.45", want: "123.45", wantOK: true},
		{name: "dollar with thousands", input: "$1,234.50", want: "1234.50", wantOK: true},
		{name: "not a number", input: "N/A", wantOK: false},
		{name: "surrounding whitespace", input: "  Q 7  ", want: "7", wantOK: true},
		{name: "leading run only", input: "12.5 por libra", want: "12.5", wantOK: true},
		{name: "trailing dot dropped", input: "15.", want: "15", wantOK: true},
		{name: "empty", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizePrice(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("NormalizePrice(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
