package ingest

import (
	"errors"
	"fmt"
)

// Failure kinds reported by the adapters. Diagnostics wrap exactly one of
// these, so callers can branch with errors.Is.
var (
	ErrMissingResource    = errors.New("missing resource")
	ErrMalformedContainer = errors.New("malformed container")
	ErrMalformedRecord    = errors.New("malformed record")
	ErrTypeCoercion       = errors.New("type coercion failure")
	ErrUnsupportedFormat  = errors.New("unsupported format")
)

// Diagnostic describes one condition met while reading a source.
type Diagnostic struct {
	Source string
	// Position is the 1-based line (JSON-Lines, CSV) or array entry (JSON)
	// the condition applies to; 0 means the whole source.
	Position int
	Kind     error
	Reason   string
}

func (d Diagnostic) Error() string {
	if d.Position > 0 {
		return fmt.Sprintf("%s:%d: %v: %s", d.Source, d.Position, d.Kind, d.Reason)
	}
	return fmt.Sprintf("%s: %v: %s", d.Source, d.Kind, d.Reason)
}

func (d Diagnostic) Unwrap() error { return d.Kind }

// Recoverable reports whether only the one record was lost.
func (d Diagnostic) Recoverable() bool {
	return errors.Is(d.Kind, ErrMalformedRecord) || errors.Is(d.Kind, ErrTypeCoercion)
}

// Result is the outcome of one import: the records that parsed plus a
// diagnostic for everything that did not.
type Result[T any] struct {
	Records     []T
	Diagnostics []Diagnostic
}

// Skipped is the number of individual entries dropped as malformed.
func (r Result[T]) Skipped() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Recoverable() {
			n++
		}
	}
	return n
}

// Failed reports whether the source as a whole could not be read.
func (r Result[T]) Failed() bool {
	for _, d := range r.Diagnostics {
		if !d.Recoverable() {
			return true
		}
	}
	return false
}
