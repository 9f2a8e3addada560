package store

import (
	"context"
	"errors"

	"github.com/cognicore/revlens/pkg/revlens/record"
	"github.com/cognicore/revlens/pkg/revlens/report"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Store persists normalized records and generated reports.
//
// Upserts are first-write-wins: a review or product whose ID is already
// stored is left untouched, matching in-memory deduplication. Reads return
// records in first-insertion order.
type Store interface {
	Close() error

	// Reviews
	UpsertReviews(ctx context.Context, reviews []record.Review) (inserted int, err error)
	Reviews(ctx context.Context, productID *int64) ([]record.Review, error)

	// Products
	UpsertProducts(ctx context.Context, products []record.Product) (inserted int, err error)
	Products(ctx context.Context) ([]record.Product, error)
	Product(ctx context.Context, id int64) (record.Product, bool, error)

	// Reports
	SaveReport(ctx context.Context, r report.Report) error
	Reports(ctx context.Context, productID *int64, limit int) ([]report.Report, error)
}
