package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

const productsSchema = `
CREATE TABLE IF NOT EXISTS products (
	id                BIGSERIAL PRIMARY KEY,
	barcode           TEXT UNIQUE,
	name              TEXT NOT NULL,
	price             NUMERIC,
	description       TEXT,
	stock             TEXT,
	offer_price       TEXT,
	offer_description TEXT,
	image_url         TEXT,
	category          TEXT,
	subcategory       TEXT,
	raw_data          JSONB,
	scraped_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Rows without a barcode insert NULL, which never conflicts.
const upsertProduct = `
INSERT INTO products (barcode, name, price, description, stock, offer_price,
	offer_description, image_url, category, subcategory, raw_data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (barcode) DO UPDATE
SET
	name = EXCLUDED.name,
	price = EXCLUDED.price,
	description = EXCLUDED.description,
	stock = EXCLUDED.stock,
	offer_price = EXCLUDED.offer_price,
	offer_description = EXCLUDED.offer_description,
	image_url = EXCLUDED.image_url,
	category = EXCLUDED.category,
	subcategory = EXCLUDED.subcategory,
	raw_data = EXCLUDED.raw_data,
	updated_at = NOW()`

// writeTimeout bounds a single batch transaction.
const writeTimeout = 30 * time.Second

// PostgresWriter upserts products into a products table keyed by barcode.
type PostgresWriter struct {
	db      *sql.DB
	mu      sync.Mutex
	written int
}

// NewPostgresWriter connects to dsn and ensures the products table exists.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(pingCtx, productsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create products table: %w", err)
	}

	return &PostgresWriter{db: db}, nil
}

// Write upserts a batch in one transaction.
func (pw *PostgresWriter) Write(products []*models.Product) (err error) {
	if len(products) == 0 {
		return nil
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertProduct)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, product := range products {
		args, argErr := productArgs(product)
		if argErr != nil {
			err = argErr
			return err
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upsert product %q: %w", product.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	pw.written += len(products)
	return nil
}

// Close closes the connection pool.
func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// Validate ensures this run wrote at least one row.
func (pw *PostgresWriter) Validate() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if pw.written == 0 {
		return fmt.Errorf("no products written to postgres")
	}
	return nil
}

// productArgs maps a product onto the upsert parameters. Empty optional
// fields become NULL.
func productArgs(p *models.Product) ([]any, error) {
	var raw any
	if p.RawData != nil {
		encoded, err := json.Marshal(p.RawData)
		if err != nil {
			return nil, fmt.Errorf("encode raw data for %q: %w", p.Name, err)
		}
		raw = string(encoded)
	}

	var price any
	if p.Price != nil {
		price = *p.Price
	}
	var stock any
	if p.Stock != nil {
		stock = fmt.Sprint(p.Stock)
	}

	return []any{
		nullable(p.Barcode),
		p.Name,
		price,
		nullable(p.Description),
		stock,
		nullable(p.OfferPrice),
		nullable(p.OfferDescription),
		nullable(p.ImageURL),
		nullable(p.Category),
		nullable(p.Subcategory),
		raw,
	}, nil
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
