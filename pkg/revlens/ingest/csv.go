package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cognicore/revlens/pkg/revlens/record"
)

const utf8BOM = "\ufeff"

// ImportReviewsCSV reads reviews from a CSV file whose first row names the
// columns. Rows may be ragged; cells past the header are ignored and
// missing cells take the field default.
func (imp *Importer) ImportReviewsCSV(path string) Result[record.Review] {
	var res Result[record.Review]

	f, ok := imp.open(path, &res.Diagnostics)
	if !ok {
		return res
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		reason := "no header row"
		if !errors.Is(err, io.EOF) {
			reason = fmt.Sprintf("unreadable header: %v", err)
		}
		imp.report(&res.Diagnostics, Diagnostic{Source: path, Kind: ErrMalformedContainer, Reason: reason})
		return res
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			imp.report(&res.Diagnostics, Diagnostic{
				Source:   path,
				Position: perr.StartLine,
				Kind:     ErrMalformedRecord,
				Reason:   perr.Err.Error(),
			})
			continue
		}
		if err != nil {
			imp.report(&res.Diagnostics, Diagnostic{Source: path, Kind: ErrMalformedContainer, Reason: fmt.Sprintf("read failed: %v", err)})
			break
		}

		line, _ := cr.FieldPos(0)
		rv, err := imp.review(rowFields(header, row), line)
		if err != nil {
			imp.report(&res.Diagnostics, recordDiagnostic(path, line, err))
			continue
		}
		res.Records = append(res.Records, rv)
	}

	imp.log.Debug().Str("source", path).Int("reviews", len(res.Records)).Int("skipped", res.Skipped()).Msg("csv reviews imported")
	return res
}

func rowFields(header, row []string) fields {
	f := make(fields, len(header))
	for i, name := range header {
		if i >= len(row) || name == "" {
			continue
		}
		f[name] = row[i]
	}
	return f
}
