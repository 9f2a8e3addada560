package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/cognicore/revlens/pkg/revlens/record"
)

// ImportReviewsJSONL reads one review object per line. Blank lines are
// ignored; a line that does not decode is reported and skipped.
func (imp *Importer) ImportReviewsJSONL(path string) Result[record.Review] {
	var res Result[record.Review]

	f, ok := imp.open(path, &res.Diagnostics)
	if !ok {
		return res
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for line := 1; ; line++ {
		raw, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(raw)) > 0 {
			imp.jsonlLine(&res, path, line, raw)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			imp.report(&res.Diagnostics, Diagnostic{
				Source:   path,
				Position: line,
				Kind:     ErrMalformedContainer,
				Reason:   fmt.Sprintf("read failed: %v", err),
			})
			break
		}
	}

	imp.log.Debug().Str("source", path).Int("reviews", len(res.Records)).Int("skipped", res.Skipped()).Msg("jsonl reviews imported")
	return res
}

func (imp *Importer) jsonlLine(res *Result[record.Review], path string, line int, raw []byte) {
	v, err := decodeDocument(bytes.NewReader(raw))
	if err != nil {
		imp.report(&res.Diagnostics, Diagnostic{Source: path, Position: line, Kind: ErrMalformedRecord, Reason: err.Error()})
		return
	}
	obj, ok := v.(map[string]any)
	if !ok {
		imp.report(&res.Diagnostics, Diagnostic{
			Source:   path,
			Position: line,
			Kind:     ErrMalformedRecord,
			Reason:   fmt.Sprintf("line holds %s, want object", jsonKind(v)),
		})
		return
	}
	rv, err := imp.review(fields(obj), line)
	if err != nil {
		imp.report(&res.Diagnostics, recordDiagnostic(path, line, err))
		return
	}
	res.Records = append(res.Records, rv)
}

// review builds a Review from one raw record found at the given 1-based line.
func (imp *Importer) review(f fields, line int) (record.Review, error) {
	var (
		r   record.Review
		err error
	)
	if r.ID, err = f.str("id", ""); err != nil {
		return r, err
	}
	if r.ID == "" {
		r.ID = record.SyntheticReviewID(line)
	}
	if r.ProductID, err = f.integer("product_id", 0); err != nil {
		return r, err
	}
	rating, err := f.integer("rating", 0)
	if err != nil {
		return r, err
	}
	r.Rating = int(rating)
	if r.Text, err = f.str("text", ""); err != nil {
		return r, err
	}
	if r.Reviewer, err = f.str("reviewer", record.DefaultReviewer); err != nil {
		return r, err
	}
	if r.Date, err = f.str("date", ""); err != nil {
		return r, err
	}
	if !f.has("date") {
		r.Date = record.DefaultDate(imp.now())
	}
	votes, err := f.integer("helpful_votes", 0)
	if err != nil {
		return r, err
	}
	r.HelpfulVotes = int(votes)

	r.Text = imp.clean(r.Text)
	return r, nil
}
