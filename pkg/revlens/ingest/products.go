package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cognicore/revlens/pkg/revlens/record"
)

// ImportProducts reads a JSON product catalog. The document is either a
// list of product objects or an object holding that list under "products".
func (imp *Importer) ImportProducts(path string) Result[record.Product] {
	var res Result[record.Product]

	f, ok := imp.open(path, &res.Diagnostics)
	if !ok {
		return res
	}
	defer f.Close()

	doc, err := decodeDocument(bufio.NewReader(f))
	if err != nil {
		imp.report(&res.Diagnostics, Diagnostic{Source: path, Kind: ErrMalformedContainer, Reason: err.Error()})
		return res
	}

	items, err := productItems(doc)
	if err != nil {
		imp.report(&res.Diagnostics, Diagnostic{Source: path, Kind: ErrMalformedContainer, Reason: err.Error()})
		return res
	}

	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			imp.report(&res.Diagnostics, Diagnostic{
				Source:   path,
				Position: i + 1,
				Kind:     ErrMalformedRecord,
				Reason:   fmt.Sprintf("product entry is %s, want object", jsonKind(item)),
			})
			continue
		}
		p, err := imp.product(fields(obj))
		if err != nil {
			imp.report(&res.Diagnostics, recordDiagnostic(path, i+1, err))
			continue
		}
		res.Records = append(res.Records, p)
	}

	imp.log.Debug().Str("source", path).Int("products", len(res.Records)).Int("skipped", res.Skipped()).Msg("products imported")
	return res
}

func productItems(doc any) ([]any, error) {
	switch t := doc.(type) {
	case []any:
		return t, nil
	case map[string]any:
		raw, ok := t["products"]
		if !ok || raw == nil {
			return nil, nil
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf(`"products" is %s, want array`, jsonKind(raw))
		}
		return items, nil
	default:
		return nil, fmt.Errorf("top-level value is %s, want array or object", jsonKind(doc))
	}
}

func (imp *Importer) product(f fields) (record.Product, error) {
	var (
		p   record.Product
		err error
	)
	if p.ID, err = f.integer("id", 0); err != nil {
		return p, err
	}
	if p.Title, err = f.str("title", ""); err != nil {
		return p, err
	}
	if p.Price, err = f.decimal("price", 0); err != nil {
		return p, err
	}
	if p.Description, err = f.str("description", ""); err != nil {
		return p, err
	}
	if p.Category, err = f.str("category", record.DefaultCategory); err != nil {
		return p, err
	}
	if p.Image, err = f.str("image", ""); err != nil {
		return p, err
	}

	count := int64(0)
	if nested, ok := f["rating"].(map[string]any); ok {
		// FakeStore nests the aggregate as {"rate": 3.9, "count": 120}.
		rf := fields(nested)
		if p.Rating, err = rf.decimal("rate", 0); err != nil {
			return p, err
		}
		if count, err = rf.integer("count", 0); err != nil {
			return p, err
		}
	} else if p.Rating, err = f.decimal("rating", 0); err != nil {
		return p, err
	}
	if f.has("review_count") {
		if count, err = f.integer("review_count", 0); err != nil {
			return p, err
		}
	}
	p.ReviewCount = int(count)

	p.Description = imp.clean(p.Description)

	if p.Price < 0 {
		return p, fmt.Errorf("%w: negative price %v", ErrMalformedRecord, p.Price)
	}
	if p.ReviewCount < 0 {
		return p, fmt.Errorf("%w: negative review_count %d", ErrMalformedRecord, p.ReviewCount)
	}
	return p, nil
}

// decodeDocument decodes exactly one JSON value, keeping numbers as
// json.Number.
func decodeDocument(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid JSON: trailing data after top-level value")
	}
	return v, nil
}

// recordDiagnostic classifies a per-record failure by its wrapped kind.
func recordDiagnostic(source string, pos int, err error) Diagnostic {
	kind := ErrMalformedRecord
	if errors.Is(err, ErrTypeCoercion) {
		kind = ErrTypeCoercion
	}
	reason := strings.TrimPrefix(err.Error(), kind.Error()+": ")
	return Diagnostic{Source: source, Position: pos, Kind: kind, Reason: reason}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}
