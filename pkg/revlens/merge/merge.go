package merge

import (
	"github.com/cognicore/revlens/pkg/revlens/ingest"
	"github.com/cognicore/revlens/pkg/revlens/record"
)

// ReviewImporter reads one review source. *ingest.Importer satisfies it.
type ReviewImporter interface {
	ImportReviews(path string) ingest.Result[record.Review]
}

// SourceReport is the outcome for one input path.
type SourceReport struct {
	Path        string              `json:"path"`
	Format      ingest.Format       `json:"format,omitempty"`
	Imported    int                 `json:"imported"`
	Skipped     int                 `json:"skipped"`
	Diagnostics []ingest.Diagnostic `json:"-"`
}

// Result is a merged review collection plus per-source accounting.
type Result struct {
	Reviews    []record.Review `json:"-"`
	Sources    []SourceReport  `json:"sources"`
	Duplicates int             `json:"duplicates"`
}

// Merge imports every path in order, concatenates the reviews and drops
// repeated IDs, keeping the first occurrence. Unsupported or unreadable
// sources contribute nothing and are recorded in Sources.
func Merge(imp ReviewImporter, paths ...string) Result {
	var (
		res Result
		all []record.Review
	)
	for _, path := range paths {
		format, _ := ingest.DetectFormat(path)
		r := imp.ImportReviews(path)
		res.Sources = append(res.Sources, SourceReport{
			Path:        path,
			Format:      format,
			Imported:    len(r.Records),
			Skipped:     r.Skipped(),
			Diagnostics: r.Diagnostics,
		})
		all = append(all, r.Records...)
	}

	res.Reviews = Dedupe(all)
	res.Duplicates = len(all) - len(res.Reviews)
	return res
}

// Dedupe returns reviews with repeated IDs removed, keeping the first
// occurrence of each and preserving order. Dedupe(Dedupe(r)) == Dedupe(r).
func Dedupe(reviews []record.Review) []record.Review {
	seen := make(map[string]struct{}, len(reviews))
	out := make([]record.Review, 0, len(reviews))
	for _, r := range reviews {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
