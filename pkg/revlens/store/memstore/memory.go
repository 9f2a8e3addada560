package memstore

import (
	"context"
	"sync"

	"github.com/cognicore/revlens/pkg/revlens/record"
	"github.com/cognicore/revlens/pkg/revlens/report"
	"github.com/cognicore/revlens/pkg/revlens/store"
)

// Store is an in-memory implementation of store.Store for tests and
// one-shot runs.
type Store struct {
	mu        sync.RWMutex
	closed    bool
	reviews   []record.Review
	reviewIx  map[string]struct{}
	products  []record.Product
	productIx map[int64]int
	reports   []report.Report
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		reviewIx:  make(map[string]struct{}),
		productIx: make(map[int64]int),
	}
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// UpsertReviews stores reviews whose IDs are not yet present.
func (s *Store) UpsertReviews(ctx context.Context, reviews []record.Review) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, store.ErrClosed
	}

	n := 0
	for _, r := range reviews {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, ok := s.reviewIx[r.ID]; ok {
			continue
		}
		s.reviewIx[r.ID] = struct{}{}
		s.reviews = append(s.reviews, r)
		n++
	}
	return n, nil
}

// Reviews returns stored reviews, optionally only those of one product.
func (s *Store) Reviews(ctx context.Context, productID *int64) ([]record.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	if productID != nil {
		return record.ForProduct(s.reviews, *productID), nil
	}
	return append([]record.Review(nil), s.reviews...), nil
}

// UpsertProducts stores products whose IDs are not yet present.
func (s *Store) UpsertProducts(ctx context.Context, products []record.Product) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, store.ErrClosed
	}

	n := 0
	for _, p := range products {
		if _, ok := s.productIx[p.ID]; ok {
			continue
		}
		s.productIx[p.ID] = len(s.products)
		s.products = append(s.products, p)
		n++
	}
	return n, nil
}

// Products returns every stored product.
func (s *Store) Products(ctx context.Context) ([]record.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	return append([]record.Product(nil), s.products...), nil
}

// Product looks up one product by ID.
func (s *Store) Product(ctx context.Context, id int64) (record.Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return record.Product{}, false, store.ErrClosed
	}
	i, ok := s.productIx[id]
	if !ok {
		return record.Product{}, false, nil
	}
	return s.products[i], true, nil
}

// SaveReport appends a report. Saving the same report ID twice replaces it.
func (s *Store) SaveReport(ctx context.Context, r report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	for i := range s.reports {
		if s.reports[i].ID == r.ID {
			s.reports[i] = r
			return nil
		}
	}
	s.reports = append(s.reports, r)
	return nil
}

// Reports returns the newest reports first, optionally for one product.
// A non-positive limit returns all of them.
func (s *Store) Reports(ctx context.Context, productID *int64, limit int) ([]report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	var out []report.Report
	for i := len(s.reports) - 1; i >= 0; i-- {
		r := s.reports[i]
		if productID != nil && (r.ProductID == nil || *r.ProductID != *productID) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
