// Package storetest holds behavior checks shared by every store.Store
// backend.
package storetest

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/cognicore/revlens/pkg/revlens/analytics"
	"github.com/cognicore/revlens/pkg/revlens/record"
	"github.com/cognicore/revlens/pkg/revlens/report"
	"github.com/cognicore/revlens/pkg/revlens/store"
)

// Run exercises st, which must be empty.
func Run(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("reviews first write wins", func(t *testing.T) {
		first := []record.Review{
			{ID: "r1", ProductID: 1, Rating: 5, Text: "great", Reviewer: "ann", Date: "2024-01-01", HelpfulVotes: 2},
			{ID: "r2", ProductID: 2, Rating: 1, Text: "broken", Reviewer: "bo", Date: "2024-01-02"},
		}
		n, err := st.UpsertReviews(ctx, first)
		if err != nil {
			t.Fatalf("UpsertReviews: %v", err)
		}
		if n != 2 {
			t.Fatalf("inserted %d, want 2", n)
		}

		again := []record.Review{
			{ID: "r1", ProductID: 1, Rating: 1, Text: "changed my mind"},
			{ID: "r3", ProductID: 1, Rating: 4, Text: "solid"},
		}
		n, err = st.UpsertReviews(ctx, again)
		if err != nil {
			t.Fatalf("UpsertReviews again: %v", err)
		}
		if n != 1 {
			t.Fatalf("second upsert inserted %d, want 1", n)
		}

		all, err := st.Reviews(ctx, nil)
		if err != nil {
			t.Fatalf("Reviews: %v", err)
		}
		want := []record.Review{first[0], first[1], again[1]}
		if !reflect.DeepEqual(all, want) {
			t.Fatalf("Reviews = %+v, want %+v", all, want)
		}

		pid := int64(1)
		scoped, err := st.Reviews(ctx, &pid)
		if err != nil {
			t.Fatalf("Reviews(1): %v", err)
		}
		if len(scoped) != 2 || scoped[0].ID != "r1" || scoped[1].ID != "r3" {
			t.Fatalf("Reviews(1) = %+v", scoped)
		}
	})

	t.Run("products", func(t *testing.T) {
		products := []record.Product{
			{ID: 10, Title: "Backpack", Price: 109.95, Category: "bags", Rating: 3.9, ReviewCount: 120},
			{ID: 11, Title: "Shirt", Category: record.DefaultCategory},
		}
		if n, err := st.UpsertProducts(ctx, products); err != nil || n != 2 {
			t.Fatalf("UpsertProducts = %d, %v", n, err)
		}
		if n, err := st.UpsertProducts(ctx, []record.Product{{ID: 10, Title: "Other"}}); err != nil || n != 0 {
			t.Fatalf("duplicate UpsertProducts = %d, %v", n, err)
		}

		got, err := st.Products(ctx)
		if err != nil {
			t.Fatalf("Products: %v", err)
		}
		if !reflect.DeepEqual(got, products) {
			t.Fatalf("Products = %+v", got)
		}

		p, ok, err := st.Product(ctx, 10)
		if err != nil || !ok || p.Title != "Backpack" {
			t.Fatalf("Product(10) = %+v, %v, %v", p, ok, err)
		}
		if _, ok, err := st.Product(ctx, 99); err != nil || ok {
			t.Fatalf("Product(99) found=%v err=%v", ok, err)
		}
	})

	t.Run("reports", func(t *testing.T) {
		engine := analytics.NewEngine(nil)
		reviews, err := st.Reviews(ctx, nil)
		if err != nil {
			t.Fatalf("Reviews: %v", err)
		}
		clock := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		b := report.NewBuilder(engine, report.WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}))

		all := b.Build(ctx, report.Request{Reviews: reviews})
		one := b.Build(ctx, report.Request{Filter: analytics.ForProduct(1), Reviews: reviews})
		for _, r := range []report.Report{all, one} {
			if err := st.SaveReport(ctx, r); err != nil {
				t.Fatalf("SaveReport: %v", err)
			}
		}

		got, err := st.Reports(ctx, nil, 0)
		if err != nil {
			t.Fatalf("Reports: %v", err)
		}
		if len(got) != 2 || got[0].ID != one.ID || got[1].ID != all.ID {
			t.Fatalf("Reports order = %v", ids(got))
		}
		if !reflect.DeepEqual(got[1].Summary, all.Summary) {
			t.Errorf("stored summary = %+v, want %+v", got[1].Summary, all.Summary)
		}

		pid := int64(1)
		scoped, err := st.Reports(ctx, &pid, 0)
		if err != nil {
			t.Fatalf("Reports(1): %v", err)
		}
		if len(scoped) != 1 || scoped[0].ID != one.ID {
			t.Fatalf("Reports(1) = %v", ids(scoped))
		}

		limited, err := st.Reports(ctx, nil, 1)
		if err != nil {
			t.Fatalf("Reports limit: %v", err)
		}
		if len(limited) != 1 {
			t.Fatalf("limit 1 returned %d", len(limited))
		}

		one.Narrative = "updated"
		if err := st.SaveReport(ctx, one); err != nil {
			t.Fatalf("SaveReport update: %v", err)
		}
		got, err = st.Reports(ctx, nil, 0)
		if err != nil {
			t.Fatalf("Reports: %v", err)
		}
		if len(got) != 2 || got[0].Narrative != "updated" {
			t.Fatalf("resave should replace in place, got %v", ids(got))
		}
	})
}

func ids(reports []report.Report) []string {
	out := make([]string, len(reports))
	for i, r := range reports {
		out[i] = r.ID
	}
	return out
}
