package record

import (
	"fmt"
	"time"
)

// Field defaults applied by the ingestion adapters.
const (
	DefaultCategory = "uncategorized"
	DefaultReviewer = "Anonymous"
)

// Product represents one catalog entry.
type Product struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
}

// Review represents one normalized customer review.
// ID is the dedup key: two reviews with the same ID are the same review.
type Review struct {
	ID           string `json:"id"`
	ProductID    int64  `json:"product_id"`
	Rating       int    `json:"rating"`
	Text         string `json:"text"`
	Reviewer     string `json:"reviewer"`
	Date         string `json:"date"`
	HelpfulVotes int    `json:"helpful_votes"`
}

// SyntheticReviewID builds the identifier used when a source line carries none.
func SyntheticReviewID(line int) string {
	return fmt.Sprintf("review_%d", line)
}

// DefaultDate formats t the way missing review dates are filled in.
func DefaultDate(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// ReviewColumns is the fixed CSV column order for reviews.
var ReviewColumns = []string{"id", "product_id", "rating", "text", "reviewer", "date", "helpful_votes"}

// ProductColumns is the fixed CSV column order for products.
var ProductColumns = []string{"id", "title", "price", "description", "category", "image", "rating", "review_count"}

// Bodies returns up to limit review texts in collection order.
// A non-positive limit returns every body.
func Bodies(reviews []Review, limit int) []string {
	n := len(reviews)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]string, 0, n)
	for _, r := range reviews[:n] {
		out = append(out, r.Text)
	}
	return out
}

// ForProduct returns the reviews that belong to productID, preserving order.
func ForProduct(reviews []Review, productID int64) []Review {
	var out []Review
	for _, r := range reviews {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out
}

// ProductIDs returns the distinct product identifiers in first-seen order.
func ProductIDs(reviews []Review) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, r := range reviews {
		if _, ok := seen[r.ProductID]; ok {
			continue
		}
		seen[r.ProductID] = struct{}{}
		ids = append(ids, r.ProductID)
	}
	return ids
}
