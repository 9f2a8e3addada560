package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/revlens/pkg/revlens/record"
	"github.com/cognicore/revlens/pkg/revlens/report"
	"github.com/cognicore/revlens/pkg/revlens/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db     *sql.DB
	closed atomic.Bool
}

// OpenSQLite opens (creating when needed) a SQLite database with WAL mode
// enabled and the review schema applied.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one pooled connection serializes
	// concurrent upserts instead of failing them with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// WAL lets other processes read while an import is writing.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection. Later calls return store.ErrClosed
// from every operation; closing twice is a no-op.
func (s *sqliteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// initSchema creates tables if they don't exist. The seq columns preserve
// first-insertion order for reads.
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS products (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id INTEGER UNIQUE NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	price REAL NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT 'uncategorized',
	image TEXT NOT NULL DEFAULT '',
	rating REAL NOT NULL DEFAULT 0,
	review_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS reviews (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT UNIQUE NOT NULL,
	product_id INTEGER NOT NULL,
	rating INTEGER NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	reviewer TEXT NOT NULL DEFAULT '',
	date TEXT NOT NULL DEFAULT '',
	helpful_votes INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_reviews_product ON reviews(product_id);

CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	product_id INTEGER,
	generated_at TEXT NOT NULL,
	body TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_product ON reports(product_id);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// UpsertReviews inserts reviews whose IDs are new and reports how many were
// written. Existing rows are never overwritten.
func (s *sqliteStore) UpsertReviews(ctx context.Context, reviews []record.Review) (int, error) {
	if s.closed.Load() {
		return 0, store.ErrClosed
	}
	if len(reviews) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO reviews (id, product_id, rating, text, reviewer, date, helpful_votes)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range reviews {
		res, err := stmt.ExecContext(ctx, r.ID, r.ProductID, r.Rating, r.Text, r.Reviewer, r.Date, r.HelpfulVotes)
		if err != nil {
			return 0, fmt.Errorf("insert review %q: %w", r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// Reviews returns stored reviews in insertion order, optionally filtered to
// one product.
func (s *sqliteStore) Reviews(ctx context.Context, productID *int64) ([]record.Review, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	query := `SELECT id, product_id, rating, text, reviewer, date, helpful_votes FROM reviews`
	var args []any
	if productID != nil {
		query += ` WHERE product_id = ?`
		args = append(args, *productID)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.Review
	for rows.Next() {
		var r record.Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.Rating, &r.Text, &r.Reviewer, &r.Date, &r.HelpfulVotes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertProducts inserts products whose IDs are new.
func (s *sqliteStore) UpsertProducts(ctx context.Context, products []record.Product) (int, error) {
	if s.closed.Load() {
		return 0, store.ErrClosed
	}
	if len(products) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO products (id, title, price, description, category, image, rating, review_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range products {
		res, err := stmt.ExecContext(ctx, p.ID, p.Title, p.Price, p.Description, p.Category, p.Image, p.Rating, p.ReviewCount)
		if err != nil {
			return 0, fmt.Errorf("insert product %d: %w", p.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

const productColumns = `id, title, price, description, category, image, rating, review_count`

// Products returns every product in insertion order.
func (s *sqliteStore) Products(ctx context.Context) ([]record.Product, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Product looks up one product by ID.
func (s *sqliteStore) Product(ctx context.Context, id int64) (record.Product, bool, error) {
	if s.closed.Load() {
		return record.Product{}, false, store.ErrClosed
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Product{}, false, nil
	}
	if err != nil {
		return record.Product{}, false, err
	}
	return p, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(sc scanner) (record.Product, error) {
	var p record.Product
	err := sc.Scan(&p.ID, &p.Title, &p.Price, &p.Description, &p.Category, &p.Image, &p.Rating, &p.ReviewCount)
	return p, err
}

// SaveReport stores a report as JSON, replacing an earlier save of the
// same report ID.
func (s *sqliteStore) SaveReport(ctx context.Context, r report.Report) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", r.ID, err)
	}

	var productID sql.NullInt64
	if r.ProductID != nil {
		productID = sql.NullInt64{Int64: *r.ProductID, Valid: true}
	}

	const stmt = `
INSERT INTO reports (id, product_id, generated_at, body)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	product_id=excluded.product_id,
	generated_at=excluded.generated_at,
	body=excluded.body`
	_, err = s.db.ExecContext(ctx, stmt, r.ID, productID, r.GeneratedAt.UTC().Format(time.RFC3339Nano), string(body))
	return err
}

// Reports returns the most recently saved reports first, optionally for one
// product. A non-positive limit returns all of them.
func (s *sqliteStore) Reports(ctx context.Context, productID *int64, limit int) ([]report.Report, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	query := `SELECT body FROM reports`
	var args []any
	if productID != nil {
		query += ` WHERE product_id = ?`
		args = append(args, *productID)
	}
	query += ` ORDER BY rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []report.Report
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var r report.Report
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("decode stored report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
