package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// ReadProducts loads products from an export. Parquet is picked by
// extension; JSON input may be a snapshot document, an array or JSONL.
func ReadProducts(path string) ([]*models.Product, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		rows, err := parquet.ReadFile[parquetProduct](path)
		if err != nil {
			return nil, fmt.Errorf("read parquet %s: %w", path, err)
		}
		products := make([]*models.Product, 0, len(rows))
		for _, row := range rows {
			products = append(products, row.product())
		}
		return products, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	trimmed := bytes.TrimSpace(raw)
	products := []*models.Product{}
	if len(trimmed) == 0 {
		return products, nil
	}

	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &products); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return products, nil
	}
	var snapshot Snapshot
	if err := json.Unmarshal(trimmed, &snapshot); err == nil && snapshot.Products != nil {
		return snapshot.Products, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	for {
		var product models.Product
		err := decoder.Decode(&product)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s line %d: %w", path, len(products)+1, err)
		}
		products = append(products, &product)
	}
	return products, nil
}
