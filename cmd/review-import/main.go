package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/cognicore/revlens/internal/config"
	"github.com/cognicore/revlens/internal/metrics"
	"github.com/cognicore/revlens/internal/observability"
	"github.com/cognicore/revlens/pkg/revlens/export"
	"github.com/cognicore/revlens/pkg/revlens/ingest"
	"github.com/cognicore/revlens/pkg/revlens/merge"
	"github.com/cognicore/revlens/pkg/revlens/record"
	"github.com/cognicore/revlens/pkg/revlens/store"
	"github.com/cognicore/revlens/pkg/revlens/store/sqlite"
)

type options struct {
	products    string
	outDir      string
	dbPath      string
	stripHTML   bool
	metricsFile string
	batchSize   int
	sources     []string
}

// importReport is printed to stdout when the run finishes.
type importReport struct {
	Sources    []merge.SourceReport `json:"sources"`
	Reviews    int                  `json:"reviews"`
	Duplicates int                  `json:"duplicates"`
	Products   *productReport       `json:"products,omitempty"`
	Stored     *storedReport        `json:"stored,omitempty"`
	Exports    map[string]bool      `json:"exports,omitempty"`
}

type productReport struct {
	Path     string `json:"path"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Failed   bool   `json:"failed,omitempty"`
}

type storedReport struct {
	Path     string `json:"path"`
	Reviews  int    `json:"reviews"`
	Products int    `json:"products"`
}

func main() {
	var (
		configPath  = flag.String("config", "", "Optional YAML config file (default: ./revlens.yaml if present)")
		products    = flag.String("products", "", "Product catalog JSON file")
		outDir      = flag.String("out", "", "Directory for normalized exports (reviews.jsonl/.csv/.json, products.json/.csv)")
		dbPath      = flag.String("db", "", "SQLite database to upsert into (default: database.path from config)")
		stripHTML   = flag.Bool("strip-html", false, "Remove HTML markup from review text and product descriptions")
		metricsFile = flag.String("metrics-file", "", "Write Prometheus textfile metrics here")
		batchSize   = flag.Int("batch", 0, "Reviews per database transaction (default: data.batch_size from config)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] SOURCE...\n\nSOURCE files may be .jsonl or .csv.\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	logger := observability.NewLogger(cfg.Environment, cfg.Level())

	opts := options{
		products:    *products,
		outDir:      *outDir,
		dbPath:      *dbPath,
		stripHTML:   *stripHTML,
		metricsFile: *metricsFile,
		batchSize:   *batchSize,
		sources:     flag.Args(),
	}
	if opts.dbPath == "" {
		opts.dbPath = cfg.Database.Path
	}
	if opts.batchSize <= 0 {
		opts.batchSize = cfg.Data.BatchSize
	}
	if len(opts.sources) == 0 {
		opts.sources = []string{cfg.ReviewsPath()}
	}

	if err := run(context.Background(), opts, logger, os.Stdout); err != nil {
		logger.Fatal().Err(err).Msg("import failed")
	}
}

func run(ctx context.Context, opts options, logger zerolog.Logger, stdout io.Writer) error {
	m := metrics.NewRegistry()
	imp := ingest.NewImporter(ingest.Options{Logger: &logger, StripHTML: opts.stripHTML})

	merged := merge.Merge(imp, opts.sources...)
	for _, src := range merged.Sources {
		m.Imported.WithLabelValues("review", formatLabel(src.Format)).Add(float64(src.Imported))
		recordSkips(m, formatLabel(src.Format), src.Diagnostics)
		logger.Info().
			Str("source", src.Path).
			Int("imported", src.Imported).
			Int("skipped", src.Skipped).
			Msg("source imported")
	}
	m.Duplicates.Add(float64(merged.Duplicates))

	rep := importReport{
		Sources:    merged.Sources,
		Reviews:    len(merged.Reviews),
		Duplicates: merged.Duplicates,
	}

	var catalog []record.Product
	if opts.products != "" {
		res := imp.ImportProducts(opts.products)
		catalog = res.Records
		m.Imported.WithLabelValues("product", string(ingest.FormatJSON)).Add(float64(len(res.Records)))
		recordSkips(m, string(ingest.FormatJSON), res.Diagnostics)
		rep.Products = &productReport{
			Path:     opts.products,
			Imported: len(res.Records),
			Skipped:  res.Skipped(),
			Failed:   res.Failed(),
		}
	}

	if opts.outDir != "" {
		rep.Exports = exportAll(export.New(&logger), m, opts.outDir, merged.Reviews, catalog, opts.products != "")
	}

	if opts.dbPath != "" {
		st, err := sqlite.OpenSQLite(ctx, opts.dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()

		stored, err := persist(ctx, st, merged.Reviews, catalog, opts.batchSize)
		if err != nil {
			return err
		}
		stored.Path = opts.dbPath
		m.StoreWrites.WithLabelValues("reviews").Add(float64(stored.Reviews))
		m.StoreWrites.WithLabelValues("products").Add(float64(stored.Products))
		rep.Stored = &stored
	}

	if opts.metricsFile != "" {
		if err := m.WriteFile(opts.metricsFile); err != nil {
			logger.Warn().Err(err).Str("path", opts.metricsFile).Msg("write metrics")
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func formatLabel(f ingest.Format) string {
	if f == "" {
		return "unknown"
	}
	return string(f)
}

func recordSkips(m *metrics.Registry, format string, diags []ingest.Diagnostic) {
	for _, d := range diags {
		m.Skipped.WithLabelValues(format, d.Kind.Error()).Inc()
	}
}

// exportAll writes every export format. A failed export is logged by the
// exporter and reported as false; the others still run.
func exportAll(ex *export.Exporter, m *metrics.Registry, dir string, reviews []record.Review, products []record.Product, withProducts bool) map[string]bool {
	results := map[string]bool{
		"reviews.jsonl": ex.JSONL(filepath.Join(dir, "reviews.jsonl"), reviews),
		"reviews.csv":   ex.ReviewsCSV(filepath.Join(dir, "reviews.csv"), reviews),
		"reviews.json":  ex.ReviewsJSON(filepath.Join(dir, "reviews.json"), reviews),
	}
	if withProducts {
		results["products.json"] = ex.ProductsJSON(filepath.Join(dir, "products.json"), products)
		results["products.csv"] = ex.ProductsCSV(filepath.Join(dir, "products.csv"), products)
	}
	for name, ok := range results {
		m.Export(filepath.Ext(name)[1:], ok)
	}
	return results
}

// persist upserts products then reviews, committing reviews in batches so a
// failure part way keeps earlier batches.
func persist(ctx context.Context, st store.Store, reviews []record.Review, products []record.Product, batch int) (storedReport, error) {
	var out storedReport
	if batch <= 0 {
		return out, errors.New("batch size must be positive")
	}

	n, err := st.UpsertProducts(ctx, products)
	if err != nil {
		return out, fmt.Errorf("store products: %w", err)
	}
	out.Products = n

	for start := 0; start < len(reviews); start += batch {
		end := min(start+batch, len(reviews))
		n, err := st.UpsertReviews(ctx, reviews[start:end])
		if err != nil {
			return out, fmt.Errorf("store reviews %d-%d: %w", start, end, err)
		}
		out.Reviews += n
	}
	return out, nil
}
