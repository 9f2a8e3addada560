package merge

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cognicore/revlens/pkg/revlens/ingest"
	"github.com/cognicore/revlens/pkg/revlens/record"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestMergeFirstOccurrenceWins(t *testing.T) {
	dir := t.TempDir()
	jsonl := writeFile(t, dir, "a.jsonl",
		`{"id":"r1","product_id":1,"rating":5,"text":"first"}`+"\n"+
			`{"id":"r2","product_id":1,"rating":4,"text":"second"}`+"\n")
	csv := writeFile(t, dir, "b.csv",
		"id,product_id,rating,text\n"+
			"r2,1,1,overwritten?\n"+
			"r3,2,3,third\n")
	txt := writeFile(t, dir, "c.txt", "ignored")

	res := Merge(ingest.NewImporter(ingest.Options{}), jsonl, csv, txt)

	var ids []string
	for _, r := range res.Reviews {
		ids = append(ids, r.ID)
	}
	if !reflect.DeepEqual(ids, []string{"r1", "r2", "r3"}) {
		t.Fatalf("merged IDs = %v", ids)
	}
	if res.Reviews[1].Text != "second" {
		t.Errorf("r2 should keep the JSONL version, got %q", res.Reviews[1].Text)
	}
	if res.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", res.Duplicates)
	}

	if len(res.Sources) != 3 {
		t.Fatalf("expected 3 source reports, got %d", len(res.Sources))
	}
	if res.Sources[0].Format != ingest.FormatJSONL || res.Sources[0].Imported != 2 {
		t.Errorf("jsonl report = %+v", res.Sources[0])
	}
	if res.Sources[1].Format != ingest.FormatCSV || res.Sources[1].Imported != 2 {
		t.Errorf("csv report = %+v", res.Sources[1])
	}
	unsupported := res.Sources[2]
	if unsupported.Imported != 0 || len(unsupported.Diagnostics) != 1 ||
		!errors.Is(unsupported.Diagnostics[0], ingest.ErrUnsupportedFormat) {
		t.Errorf("txt report = %+v", unsupported)
	}
}

func TestMergeNoPaths(t *testing.T) {
	res := Merge(ingest.NewImporter(ingest.Options{}))
	if len(res.Reviews) != 0 || len(res.Sources) != 0 || res.Duplicates != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestDedupeIdempotent(t *testing.T) {
	r := []record.Review{
		{ID: "a", Rating: 5},
		{ID: "b", Rating: 1},
		{ID: "a", Rating: 2},
	}

	once := Dedupe(r)
	if len(once) != 2 || once[0].Rating != 5 {
		t.Fatalf("Dedupe = %+v", once)
	}
	if twice := Dedupe(once); !reflect.DeepEqual(once, twice) {
		t.Errorf("Dedupe not idempotent: %+v vs %+v", once, twice)
	}
	doubled := append(append([]record.Review{}, r...), r...)
	if got := Dedupe(doubled); !reflect.DeepEqual(got, once) {
		t.Errorf("Dedupe(R ++ R) = %+v, want %+v", got, once)
	}
}

type stubImporter map[string]ingest.Result[record.Review]

func (s stubImporter) ImportReviews(path string) ingest.Result[record.Review] { return s[path] }

func TestMergeCountsSkipped(t *testing.T) {
	imp := stubImporter{
		"x.jsonl": {
			Records: []record.Review{{ID: "1"}},
			Diagnostics: []ingest.Diagnostic{
				{Source: "x.jsonl", Position: 2, Kind: ingest.ErrMalformedRecord},
				{Source: "x.jsonl", Position: 3, Kind: ingest.ErrTypeCoercion},
			},
		},
	}

	res := Merge(imp, "x.jsonl")
	if res.Sources[0].Skipped != 2 || res.Sources[0].Imported != 1 {
		t.Fatalf("source report = %+v", res.Sources[0])
	}
}
