package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// FileExtensions maps each file format to the extension an export uses.
var FileExtensions = map[string]string{
	"csv":      ".csv",
	"json":     ".jsonl",
	"snapshot": ".json",
	"parquet":  ".parquet",
}

// NewFileWriter opens a writer for one file format. source names the
// scraped site in formats that carry metadata.
func NewFileWriter(format, filename, source string) (OutputWriter, error) {
	switch format {
	case "csv":
		return NewCSVWriter(filename)
	case "json":
		return NewJSONWriter(filename)
	case "snapshot":
		return NewSnapshotWriter(filename, source)
	case "parquet":
		return NewParquetWriter(filename)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

// MultiWriter sends every batch to several format writers.
type MultiWriter struct {
	mu      sync.Mutex
	formats []string
	writers []OutputWriter
}

// NewExportWriter writes base plus the extension of each format. Writers
// already opened are closed when a later one fails.
func NewExportWriter(base, source string, formats ...string) (*MultiWriter, error) {
	mw := &MultiWriter{}
	for _, format := range formats {
		ext, ok := FileExtensions[format]
		if !ok {
			mw.Close()
			return nil, fmt.Errorf("unsupported file format: %s", format)
		}
		w, err := NewFileWriter(format, base+ext, source)
		if err != nil {
			mw.Close()
			return nil, fmt.Errorf("create %s writer: %w", format, err)
		}
		mw.formats = append(mw.formats, format)
		mw.writers = append(mw.writers, w)
	}
	return mw, nil
}

// Write stops at the first failing format.
func (mw *MultiWriter) Write(products []*models.Product) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for i, w := range mw.writers {
		if err := w.Write(products); err != nil {
			return fmt.Errorf("%s write failed: %w", mw.formats[i], err)
		}
	}
	return nil
}

// Close closes every writer, reporting each failure.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for i, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close failed: %w", mw.formats[i], err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks every output.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for i, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s validation failed: %w", mw.formats[i], err))
		}
	}
	return errors.Join(errs...)
}

// SnapshotMetadata describes a finished export.
type SnapshotMetadata struct {
	ScrapedAt     time.Time `json:"scraped_at"`
	TotalProducts int       `json:"total_products"`
	Source        string    `json:"source"`
}

// Snapshot is the single JSON document a SnapshotWriter produces.
type Snapshot struct {
	Metadata SnapshotMetadata  `json:"metadata"`
	Products []*models.Product `json:"products"`
}

// SnapshotWriter collects products and writes them as one indented JSON
// document with run metadata when closed.
type SnapshotWriter struct {
	filename string
	source   string
	now      func() time.Time

	mu       sync.Mutex
	products []*models.Product
	closed   bool
}

// NewSnapshotWriter checks that filename can be created.
func NewSnapshotWriter(filename, source string) (*SnapshotWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("create snapshot file: %w", err)
	}
	return &SnapshotWriter{
		filename: filename,
		source:   source,
		now:      time.Now,
		products: []*models.Product{},
	}, nil
}

// Write buffers products until Close.
func (sw *SnapshotWriter) Write(products []*models.Product) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.closed {
		return fmt.Errorf("snapshot writer closed")
	}
	sw.products = append(sw.products, products...)
	return nil
}

// Close writes the document. Calling it again is a no-op.
func (sw *SnapshotWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.closed {
		return nil
	}
	sw.closed = true

	f, err := os.Create(sw.filename)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	encoder := json.NewEncoder(f)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	doc := Snapshot{
		Metadata: SnapshotMetadata{
			ScrapedAt:     sw.now(),
			TotalProducts: len(sw.products),
			Source:        sw.source,
		},
		Products: sw.products,
	}
	if err := encoder.Encode(doc); err != nil {
		f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return f.Close()
}

// Validate ensures the document was written.
func (sw *SnapshotWriter) Validate() error {
	info, err := os.Stat(sw.filename)
	if err != nil {
		return fmt.Errorf("stat snapshot file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("snapshot file is empty")
	}
	return nil
}
