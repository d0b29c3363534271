// Package store persists products and their review analyses in SQLite with
// insert-or-overwrite semantics keyed by product name.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/amosWeiskopf/sneakscout/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sneakers (
	name         TEXT PRIMARY KEY,
	brand_name   TEXT,
	price        REAL,
	review_count INTEGER,
	sku          TEXT,
	url          TEXT
);

CREATE TABLE IF NOT EXISTS analysis (
	name             TEXT PRIMARY KEY,
	brand            TEXT,
	positive_reviews INTEGER DEFAULT 0
);
`

// PersistenceError wraps a single record's write failure. The batch loop
// that issued the upsert logs it and continues with the next record.
type PersistenceError struct {
	Table string
	Key   string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("upsert %s %q: %v", e.Table, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store is the SQLite-backed catalog store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertProduct inserts the product or overwrites all fields of an existing
// row with the same name. The statement is atomic: a failure leaves the
// previous row intact.
func (s *Store) UpsertProduct(ctx context.Context, p models.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sneakers (name, brand_name, price, review_count, sku, url)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			brand_name   = excluded.brand_name,
			price        = excluded.price,
			review_count = excluded.review_count,
			sku          = excluded.sku,
			url          = excluded.url`,
		p.Name, p.BrandName, p.Price, p.ReviewCount, p.SKU, p.URL)
	if err != nil {
		return &PersistenceError{Table: "sneakers", Key: p.Name, Err: err}
	}
	return nil
}

// UpsertAnalysis inserts or overwrites the analysis row for a product name.
// Counts are replaced wholesale, never accumulated across runs.
func (s *Store) UpsertAnalysis(ctx context.Context, a models.Analysis) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis (name, brand, positive_reviews)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			brand            = excluded.brand,
			positive_reviews = excluded.positive_reviews`,
		a.Name, a.Brand, a.PositiveReviews)
	if err != nil {
		return &PersistenceError{Table: "analysis", Key: a.Name, Err: err}
	}
	return nil
}

// Products returns every persisted product in insertion order.
func (s *Store) Products(ctx context.Context) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, brand_name, price, review_count, sku, url FROM sneakers ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.Name, &p.BrandName, &p.Price, &p.ReviewCount, &p.SKU, &p.URL); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Analyses returns every persisted analysis in insertion order.
func (s *Store) Analyses(ctx context.Context) ([]models.Analysis, error) {
	return s.queryAnalyses(ctx,
		`SELECT name, brand, positive_reviews FROM analysis ORDER BY rowid`)
}

// TopAnalyses returns at most n analyses ordered by positive reviews
// descending, ties broken by insertion order.
func (s *Store) TopAnalyses(ctx context.Context, n int) ([]models.Analysis, error) {
	return s.queryAnalyses(ctx,
		`SELECT name, brand, positive_reviews FROM analysis
		 ORDER BY positive_reviews DESC, rowid ASC LIMIT ?`, n)
}

func (s *Store) queryAnalyses(ctx context.Context, query string, args ...any) ([]models.Analysis, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []models.Analysis
	for rows.Next() {
		var a models.Analysis
		if err := rows.Scan(&a.Name, &a.Brand, &a.PositiveReviews); err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}
