package pipeline

import (
	"fmt"
	"os"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// parquetProduct is the columnar row layout. raw_data stays out, as in CSV.
type parquetProduct struct {
	Barcode          string  `parquet:"barcode"`
	Category         string  `parquet:"category"`
	Description      string  `parquet:"description"`
	ImageURL         string  `parquet:"image_url"`
	Name             string  `parquet:"name"`
	OfferDescription string  `parquet:"offer_description"`
	OfferPrice       string  `parquet:"offer_price"`
	Price            *string `parquet:"price,optional"`
	Stock            string  `parquet:"stock"`
	Subcategory      string  `parquet:"subcategory"`
}

func toParquet(p *models.Product) parquetProduct {
	row := parquetProduct{
		Barcode:          p.Barcode,
		Category:         p.Category,
		Description:      p.Description,
		ImageURL:         p.ImageURL,
		Name:             p.Name,
		OfferDescription: p.OfferDescription,
		OfferPrice:       p.OfferPrice,
		Stock:            stockText(p),
		Subcategory:      p.Subcategory,
	}
	if p.Price != nil {
		price := *p.Price
		row.Price = &price
	}
	return row
}

func (row parquetProduct) product() *models.Product {
	p := &models.Product{
		Name:             row.Name,
		Price:            row.Price,
		Description:      row.Description,
		Barcode:          row.Barcode,
		OfferPrice:       row.OfferPrice,
		OfferDescription: row.OfferDescription,
		ImageURL:         row.ImageURL,
		Category:         row.Category,
		Subcategory:      row.Subcategory,
	}
	if row.Stock != "" {
		p.Stock = row.Stock
	}
	return p
}

// ParquetWriter writes products as a Parquet file. Rows are buffered by
// the library and the footer is written on Close.
type ParquetWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[parquetProduct]
	mu     sync.Mutex
	closed bool
}

// NewParquetWriter creates filename and its parent directory.
func NewParquetWriter(filename string) (*ParquetWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create parquet file: %w", err)
	}
	return &ParquetWriter{
		file:   f,
		writer: parquet.NewGenericWriter[parquetProduct](f),
	}, nil
}

// Write appends products as rows.
func (pw *ParquetWriter) Write(products []*models.Product) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	rows := make([]parquetProduct, 0, len(products))
	for _, p := range products {
		rows = append(rows, toParquet(p))
	}
	if _, err := pw.writer.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	return nil
}

// Close writes the footer and closes the file.
func (pw *ParquetWriter) Close() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if pw.closed {
		return nil
	}
	pw.closed = true

	if err := pw.writer.Close(); err != nil {
		pw.file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return pw.file.Close()
}

// Validate ensures the Parquet file has data.
func (pw *ParquetWriter) Validate() error {
	info, err := os.Stat(pw.file.Name())
	if err != nil {
		return fmt.Errorf("stat parquet file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("parquet file is empty")
	}
	return nil
}
