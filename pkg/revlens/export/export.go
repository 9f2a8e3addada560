package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/cognicore/revlens/pkg/revlens/record"
)

// Exporter writes record collections to disk. Every method reports success
// as a bool; failures are logged and leave no partial file behind.
type Exporter struct {
	log zerolog.Logger
}

// New returns an Exporter logging to logger, or silently when nil.
func New(logger *zerolog.Logger) *Exporter {
	e := &Exporter{log: zerolog.Nop()}
	if logger != nil {
		e.log = logger.With().Str("component", "export").Logger()
	}
	return e
}

// JSON writes v as one indented JSON document. Collections should go
// through ReviewsJSON or ProductsJSON, which never write null.
func (e *Exporter) JSON(path string, v any) bool {
	return e.write(path, "json", func(w *bufio.Writer) error {
		return encodeIndented(w, v)
	})
}

// ReviewsJSON writes reviews as a single JSON array; an empty or nil
// collection is written as [].
func (e *Exporter) ReviewsJSON(path string, reviews []record.Review) bool {
	if reviews == nil {
		reviews = []record.Review{}
	}
	return e.JSON(path, reviews)
}

// ProductsJSON writes products as a single JSON array; an empty or nil
// collection is written as [].
func (e *Exporter) ProductsJSON(path string, products []record.Product) bool {
	if products == nil {
		products = []record.Product{}
	}
	return e.JSON(path, products)
}

func encodeIndented(w *bufio.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// JSONL writes one review object per line, in the same shape the JSON-Lines
// importer reads.
func (e *Exporter) JSONL(path string, reviews []record.Review) bool {
	return e.write(path, "jsonl", func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for i := range reviews {
			if err := enc.Encode(&reviews[i]); err != nil {
				return fmt.Errorf("review %q: %w", reviews[i].ID, err)
			}
		}
		return nil
	})
}

// ReviewsCSV writes reviews under the record.ReviewColumns header.
func (e *Exporter) ReviewsCSV(path string, reviews []record.Review) bool {
	return e.write(path, "csv", func(w *bufio.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(record.ReviewColumns); err != nil {
			return err
		}
		for _, r := range reviews {
			row := []string{
				r.ID,
				strconv.FormatInt(r.ProductID, 10),
				strconv.Itoa(r.Rating),
				r.Text,
				r.Reviewer,
				r.Date,
				strconv.Itoa(r.HelpfulVotes),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// ProductsCSV writes products under the record.ProductColumns header.
func (e *Exporter) ProductsCSV(path string, products []record.Product) bool {
	return e.write(path, "csv", func(w *bufio.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(record.ProductColumns); err != nil {
			return err
		}
		for _, p := range products {
			row := []string{
				strconv.FormatInt(p.ID, 10),
				p.Title,
				strconv.FormatFloat(p.Price, 'f', -1, 64),
				p.Description,
				p.Category,
				p.Image,
				strconv.FormatFloat(p.Rating, 'f', -1, 64),
				strconv.Itoa(p.ReviewCount),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// write creates the parent directory, fills a temporary sibling file and
// renames it over path once everything is flushed.
func (e *Exporter) write(path, format string, fill func(*bufio.Writer) error) bool {
	if err := writeFile(path, fill); err != nil {
		e.log.Error().Err(err).Str("path", path).Str("format", format).Msg("export failed")
		return false
	}
	e.log.Debug().Str("path", path).Str("format", format).Msg("exported")
	return true
}

func writeFile(path string, fill func(*bufio.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	w := bufio.NewWriter(tmp)
	if err := fill(w); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
