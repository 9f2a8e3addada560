package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cognicore/revlens/pkg/revlens/record"
)

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestImporter() *Importer {
	return NewImporter(Options{Now: func() time.Time { return fixedNow }})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestImportReviewsJSONL(t *testing.T) {
	path := writeFile(t, "reviews.jsonl", `{"id":"r1","product_id":1,"rating":5,"text":"great","reviewer":"ann","date":"2024-01-01","helpful_votes":3}
{not json}

{"product_id":2,"rating":4.7,"text":"fine"}
[1,2,3]
{"id":"r5","product_id":"x","rating":3}
`)

	res := newTestImporter().ImportReviewsJSONL(path)

	if len(res.Records) != 2 {
		t.Fatalf("expected 2 reviews, got %d: %+v", len(res.Records), res.Records)
	}
	first := res.Records[0]
	if first.ID != "r1" || first.Reviewer != "ann" || first.HelpfulVotes != 3 {
		t.Errorf("unexpected first review %+v", first)
	}

	second := res.Records[1]
	if second.ID != "review_4" {
		t.Errorf("synthetic ID = %q, want review_4", second.ID)
	}
	if second.Rating != 4 {
		t.Errorf("fractional rating should truncate to 4, got %d", second.Rating)
	}
	if second.Reviewer != record.DefaultReviewer {
		t.Errorf("reviewer = %q, want default", second.Reviewer)
	}
	if second.Date != record.DefaultDate(fixedNow) {
		t.Errorf("date = %q, want %q", second.Date, record.DefaultDate(fixedNow))
	}

	if res.Skipped() != 3 {
		t.Fatalf("expected 3 skipped lines, got %d: %v", res.Skipped(), res.Diagnostics)
	}
	wantLines := []int{2, 5, 6}
	for i, d := range res.Diagnostics {
		if d.Position != wantLines[i] {
			t.Errorf("diagnostic %d at line %d, want %d", i, d.Position, wantLines[i])
		}
	}
	if !errors.Is(res.Diagnostics[2], ErrTypeCoercion) {
		t.Errorf("non-numeric product_id should be a coercion failure, got %v", res.Diagnostics[2].Kind)
	}
	if res.Failed() {
		t.Error("record-level problems must not fail the source")
	}
}

func TestImportReviewsJSONLNullIsAbsent(t *testing.T) {
	path := writeFile(t, "r.jsonl", `{"id":null,"product_id":1,"rating":2,"reviewer":null,"helpful_votes":null}`+"\n")

	res := newTestImporter().ImportReviewsJSONL(path)
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 review, got %v", res.Diagnostics)
	}
	r := res.Records[0]
	if r.ID != "review_1" || r.Reviewer != record.DefaultReviewer || r.HelpfulVotes != 0 {
		t.Errorf("null fields should take defaults, got %+v", r)
	}
}

func TestImportReviewsCSV(t *testing.T) {
	content := "\ufeffid,product_id,rating,text,reviewer,date,helpful_votes\n" +
		"c1,7,5,\"Loved it, fast shipping\",bo,2024-02-02,1\n" +
		"c2,7,five,meh,cy,2024-02-03,0\n" +
		"c3,7,4,bad \"quote,dee,2024-02-04,0\n" +
		",8,3\n" +
		"c5,8,1,broken,,,\n"
	path := writeFile(t, "reviews.csv", content)

	res := newTestImporter().ImportReviewsCSV(path)

	if len(res.Records) != 2 {
		t.Fatalf("expected 2 reviews, got %d: %v", len(res.Records), res.Diagnostics)
	}
	if res.Records[0].ID != "c1" || res.Records[0].Text != "Loved it, fast shipping" {
		t.Errorf("BOM header or quoted cell mishandled: %+v", res.Records[0])
	}

	ragged := res.Records[1]
	if ragged.ID != "review_5" || ragged.ProductID != 8 || ragged.Rating != 3 {
		t.Errorf("ragged row = %+v", ragged)
	}
	if ragged.Reviewer != record.DefaultReviewer || ragged.Date != record.DefaultDate(fixedNow) {
		t.Errorf("missing cells should take defaults, got %+v", ragged)
	}

	if len(res.Diagnostics) != 3 {
		t.Fatalf("expected 3 diagnostics, got %v", res.Diagnostics)
	}
	if !errors.Is(res.Diagnostics[0], ErrTypeCoercion) || res.Diagnostics[0].Position != 3 {
		t.Errorf("bad rating diagnostic = %+v", res.Diagnostics[0])
	}
	if !errors.Is(res.Diagnostics[1], ErrMalformedRecord) || res.Diagnostics[1].Position != 4 {
		t.Errorf("bad quoting diagnostic = %+v", res.Diagnostics[1])
	}
	// Empty helpful_votes cell in the last row is not a whole number.
	if !errors.Is(res.Diagnostics[2], ErrTypeCoercion) || res.Diagnostics[2].Position != 6 {
		t.Errorf("empty integer cell diagnostic = %+v", res.Diagnostics[2])
	}
}

func TestImportReviewsCSVEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.csv", "")

	res := newTestImporter().ImportReviewsCSV(path)
	if len(res.Records) != 0 {
		t.Fatalf("expected no records, got %d", len(res.Records))
	}
	if !res.Failed() || !errors.Is(res.Diagnostics[0], ErrMalformedContainer) {
		t.Fatalf("expected malformed container, got %v", res.Diagnostics)
	}
}

func TestImportMissingFile(t *testing.T) {
	imp := newTestImporter()
	missing := filepath.Join(t.TempDir(), "nope.jsonl")

	res := imp.ImportReviewsJSONL(missing)
	if len(res.Records) != 0 || !res.Failed() {
		t.Fatalf("expected failed empty result, got %+v", res)
	}
	if !errors.Is(res.Diagnostics[0], ErrMissingResource) {
		t.Errorf("kind = %v, want missing resource", res.Diagnostics[0].Kind)
	}

	if p := imp.ImportProducts(filepath.Join(t.TempDir(), "nope.json")); !p.Failed() {
		t.Error("missing product file should fail")
	}
}

func TestImportReviewsDispatch(t *testing.T) {
	imp := newTestImporter()

	csvPath := writeFile(t, "R.CSV", "id,product_id,rating\nx,1,5\n")
	if res := imp.ImportReviews(csvPath); len(res.Records) != 1 {
		t.Errorf("upper-case .CSV should dispatch to CSV, got %v", res.Diagnostics)
	}

	txt := writeFile(t, "reviews.txt", "whatever")
	res := imp.ImportReviews(txt)
	if len(res.Records) != 0 || !errors.Is(res.Diagnostics[0], ErrUnsupportedFormat) {
		t.Errorf("expected unsupported format, got %+v", res)
	}
}

func TestDiagnosticLogLevels(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		body  string
		level string
	}{
		{"unsupported format warns", "notes.txt", "whatever", "warn"},
		{"malformed line warns", "bad.jsonl", "{nope}\n", "warn"},
		{"unreadable container errors", "empty.csv", "", "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf).Level(zerolog.InfoLevel)
			imp := NewImporter(Options{Logger: &logger})

			imp.ImportReviews(writeFile(t, tt.file, tt.body))

			line := strings.TrimSpace(buf.String())
			if line == "" || strings.Contains(line, "\n") {
				t.Fatalf("want one log line, got %q", buf.String())
			}
			var entry map[string]any
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				t.Fatalf("decode log: %v", err)
			}
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
		})
	}
}

func TestImportProductsShapes(t *testing.T) {
	imp := newTestImporter()

	list := writeFile(t, "list.json", `[{"id":1,"title":"Backpack","price":"109.95","rating":{"rate":3.9,"count":120}}]`)
	res := imp.ImportProducts(list)
	if len(res.Records) != 1 {
		t.Fatalf("list form: %v", res.Diagnostics)
	}
	p := res.Records[0]
	if p.Price != 109.95 || p.Rating != 3.9 || p.ReviewCount != 120 {
		t.Errorf("unexpected product %+v", p)
	}
	if p.Category != record.DefaultCategory {
		t.Errorf("category = %q, want default", p.Category)
	}

	wrapped := writeFile(t, "wrapped.json", `{"products":[{"id":2,"title":"Shirt","rating":4.1,"review_count":"9"}]}`)
	res = imp.ImportProducts(wrapped)
	if len(res.Records) != 1 || res.Records[0].ReviewCount != 9 || res.Records[0].Rating != 4.1 {
		t.Errorf("wrapped form: %+v %v", res.Records, res.Diagnostics)
	}

	noKey := writeFile(t, "nokey.json", `{"items":[]}`)
	res = imp.ImportProducts(noKey)
	if len(res.Records) != 0 || len(res.Diagnostics) != 0 {
		t.Errorf("missing products key should be an empty, clean result: %+v", res)
	}

	scalar := writeFile(t, "scalar.json", `"hello"`)
	res = imp.ImportProducts(scalar)
	if !res.Failed() || !errors.Is(res.Diagnostics[0], ErrMalformedContainer) {
		t.Errorf("scalar document should be malformed container: %v", res.Diagnostics)
	}

	broken := writeFile(t, "broken.json", `[{"id":1}`)
	if res := imp.ImportProducts(broken); !res.Failed() {
		t.Error("truncated JSON should fail")
	}
}

func TestImportProductsSkipsBadEntries(t *testing.T) {
	path := writeFile(t, "p.json", `[
		{"id":1,"title":"ok","price":5},
		"not an object",
		{"id":3,"title":"neg","price":-1},
		{"id":4,"title":"bad price","price":"cheap"},
		{"id":5,"title":"tags","price":1,"category":["a"]}
	]`)

	res := newTestImporter().ImportProducts(path)
	if len(res.Records) != 1 || res.Records[0].ID != 1 {
		t.Fatalf("expected only product 1, got %+v", res.Records)
	}
	if res.Skipped() != 4 {
		t.Fatalf("expected 4 skipped, got %v", res.Diagnostics)
	}
	wantKinds := []error{ErrMalformedRecord, ErrMalformedRecord, ErrTypeCoercion, ErrTypeCoercion}
	for i, d := range res.Diagnostics {
		if !errors.Is(d, wantKinds[i]) {
			t.Errorf("diagnostic %d kind = %v, want %v", i, d.Kind, wantKinds[i])
		}
		if d.Position != i+2 {
			t.Errorf("diagnostic %d position = %d, want %d", i, d.Position, i+2)
		}
	}
}

func TestStripHTMLOption(t *testing.T) {
	path := writeFile(t, "r.jsonl", `{"id":"h","product_id":1,"rating":5,"text":"Great<br/>value &amp; <b>fast</b>"}`+"\n")

	plain := newTestImporter().ImportReviewsJSONL(path)
	if plain.Records[0].Text != "Great<br/>value &amp; <b>fast</b>" {
		t.Errorf("text should be untouched without StripHTML, got %q", plain.Records[0].Text)
	}

	stripped := NewImporter(Options{StripHTML: true}).ImportReviewsJSONL(path)
	if got := stripped.Records[0].Text; got != "Great value & fast" {
		t.Errorf("stripped text = %q", got)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"no markup here", "no markup here"},
		{"<p>one</p><p>two</p>", "one two"},
		{"a <script>alert(1)</script>b", "a b"},
		{"5 &lt; 6", "5 < 6"},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDiagnosticError(t *testing.T) {
	d := Diagnostic{Source: "a.csv", Position: 4, Kind: ErrMalformedRecord, Reason: "bare quote"}
	if got := d.Error(); got != "a.csv:4: malformed record: bare quote" {
		t.Errorf("Error() = %q", got)
	}
	whole := Diagnostic{Source: "a.csv", Kind: ErrMissingResource, Reason: "file not found"}
	if got := whole.Error(); got != "a.csv: missing resource: file not found" {
		t.Errorf("Error() = %q", got)
	}
}
