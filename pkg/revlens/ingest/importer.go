package ingest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cognicore/revlens/pkg/revlens/record"
)

// Format identifies a review source layout.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// DetectFormat maps a path's extension to a Format. The match is
// case-insensitive.
func DetectFormat(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".jsonl":
		return FormatJSONL, true
	case ".csv":
		return FormatCSV, true
	}
	return "", false
}

// Options configures an Importer.
type Options struct {
	// Logger receives one event per diagnostic. Nil disables logging.
	Logger *zerolog.Logger
	// Now supplies the timestamp for reviews without a date.
	Now func() time.Time
	// StripHTML removes markup from review text and product descriptions.
	StripHTML bool
}

// Importer turns source files into normalized records. It holds no state
// between calls and may be shared across goroutines.
type Importer struct {
	log       zerolog.Logger
	now       func() time.Time
	stripHTML bool
}

// NewImporter builds an Importer from opts.
func NewImporter(opts Options) *Importer {
	imp := &Importer{
		log:       zerolog.Nop(),
		now:       time.Now,
		stripHTML: opts.StripHTML,
	}
	if opts.Logger != nil {
		imp.log = opts.Logger.With().Str("component", "ingest").Logger()
	}
	if opts.Now != nil {
		imp.now = opts.Now
	}
	return imp
}

// ImportReviews reads a review file, choosing the adapter by extension.
// Only JSON-Lines and CSV carry reviews.
func (imp *Importer) ImportReviews(path string) Result[record.Review] {
	format, _ := DetectFormat(path)
	switch format {
	case FormatJSONL:
		return imp.ImportReviewsJSONL(path)
	case FormatCSV:
		return imp.ImportReviewsCSV(path)
	}
	var res Result[record.Review]
	imp.report(&res.Diagnostics, Diagnostic{
		Source: path,
		Kind:   ErrUnsupportedFormat,
		Reason: "expected a .jsonl or .csv review file",
	})
	return res
}

// open reports a missing or unreadable file as a diagnostic.
func (imp *Importer) open(path string, diags *[]Diagnostic) (*os.File, bool) {
	f, err := os.Open(path)
	if err == nil {
		return f, true
	}
	reason := err.Error()
	if errors.Is(err, fs.ErrNotExist) {
		reason = "file not found"
	}
	imp.report(diags, Diagnostic{Source: path, Kind: ErrMissingResource, Reason: reason})
	return nil, false
}

func (imp *Importer) report(diags *[]Diagnostic, d Diagnostic) {
	*diags = append(*diags, d)

	ev := imp.log.Error()
	if d.Recoverable() || errors.Is(d.Kind, ErrUnsupportedFormat) {
		ev = imp.log.Warn()
	}
	if d.Position > 0 {
		ev = ev.Int("position", d.Position)
	}
	ev.Str("source", d.Source).Str("kind", d.Kind.Error()).Msg(d.Reason)
}

func (imp *Importer) clean(s string) string {
	if !imp.stripHTML {
		return s
	}
	return StripHTML(s)
}
