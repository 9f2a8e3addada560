package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/cognicore/revlens/internal/config"
	"github.com/cognicore/revlens/internal/llm"
	"github.com/cognicore/revlens/internal/metrics"
	"github.com/cognicore/revlens/internal/observability"
	"github.com/cognicore/revlens/pkg/revlens/analytics"
	"github.com/cognicore/revlens/pkg/revlens/export"
	"github.com/cognicore/revlens/pkg/revlens/ingest"
	"github.com/cognicore/revlens/pkg/revlens/lexicon"
	"github.com/cognicore/revlens/pkg/revlens/merge"
	"github.com/cognicore/revlens/pkg/revlens/record"
	"github.com/cognicore/revlens/pkg/revlens/report"
	"github.com/cognicore/revlens/pkg/revlens/store"
	"github.com/cognicore/revlens/pkg/revlens/store/sqlite"
)

type options struct {
	inputs      []string
	products    string
	dbPath      string
	product     *int64
	perProduct  bool
	workers     int
	lexicon     string
	narrate     bool
	question    string
	output      string
	metricsFile string
}

// result is printed to stdout.
type result struct {
	Reports []report.Report `json:"reports"`
	Answer  string          `json:"answer,omitempty"`
}

func main() {
	var (
		configPath  = flag.String("config", "", "Optional YAML config file (default: ./revlens.yaml if present)")
		input       = flag.String("input", "", "Comma-separated review files (.jsonl, .csv); ignored with --db")
		products    = flag.String("products", "", "Product catalog JSON file used for product names")
		dbPath      = flag.String("db", "", "Read reviews from this SQLite database and save reports to it")
		productFlag = flag.String("product", "", "Restrict the analysis to one product ID")
		perProduct  = flag.Bool("per-product", false, "Build one report per product")
		workers     = flag.Int("workers", 4, "Concurrent report builders with --per-product")
		lexiconPath = flag.String("lexicon", "", "YAML or JSON keyword lexicon overriding the built-in lists")
		narrate     = flag.Bool("narrate", false, "Ask the Ollama server for a narrative per report")
		question    = flag.String("ask", "", "Answer a question from the reviews of --product (requires Ollama)")
		output      = flag.String("output", "", "Also write the result as JSON to this file")
		metricsFile = flag.String("metrics-file", "", "Write Prometheus textfile metrics here")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	logger := observability.NewLogger(cfg.Environment, cfg.Level())

	opts := options{
		products:    *products,
		dbPath:      *dbPath,
		perProduct:  *perProduct,
		workers:     *workers,
		lexicon:     *lexiconPath,
		narrate:     *narrate,
		question:    *question,
		output:      *output,
		metricsFile: *metricsFile,
	}
	switch {
	case *input != "":
		opts.inputs = strings.Split(*input, ",")
	case flag.NArg() > 0:
		opts.inputs = flag.Args()
	default:
		opts.inputs = []string{cfg.ReviewsPath()}
	}
	if *productFlag != "" {
		id, err := strconv.ParseInt(*productFlag, 10, 64)
		if err != nil {
			logger.Fatal().Err(err).Str("product", *productFlag).Msg("invalid --product")
		}
		opts.product = &id
	}
	if opts.dbPath == "" {
		opts.dbPath = cfg.Database.Path
	}

	var client *llm.Client
	if opts.narrate || opts.question != "" {
		client = newClient(cfg.Ollama)
	}

	if err := run(context.Background(), opts, client, logger, os.Stdout); err != nil {
		logger.Fatal().Err(err).Msg("analysis failed")
	}
}

func newClient(oc config.OllamaConfig) *llm.Client {
	c := &llm.Client{
		BaseURL:    oc.BaseURL(),
		Model:      oc.Model,
		HTTPClient: &http.Client{Timeout: oc.Timeout},
	}
	if oc.RatePerSecond > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(oc.RatePerSecond), 1)
	}
	return c
}

func run(ctx context.Context, opts options, client *llm.Client, logger zerolog.Logger, stdout io.Writer) error {
	if opts.question != "" {
		if opts.product == nil {
			return errors.New("--ask requires --product")
		}
		if client == nil {
			return errors.New("--ask requires a language model client")
		}
	}
	m := metrics.NewRegistry()

	var st store.Store
	if opts.dbPath != "" {
		s, err := sqlite.OpenSQLite(ctx, opts.dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()
		st = s
	}

	reviews, names, err := load(ctx, opts, st, logger)
	if err != nil {
		return err
	}

	lex := lexicon.Default()
	if opts.lexicon != "" {
		if lex, err = lexicon.Load(opts.lexicon); err != nil {
			return err
		}
	}

	builderOpts := []report.Option{report.WithLogger(logger)}
	if opts.narrate && client != nil {
		if client.Available(ctx) {
			builderOpts = append(builderOpts, report.WithNarrator(&instrumented{next: client, m: m}))
		} else {
			logger.Warn().Str("url", client.BaseURL).Msg("ollama not reachable, narratives disabled")
		}
	}
	b := report.NewBuilder(analytics.NewEngine(lex), builderOpts...)

	reqs := requests(opts, reviews, names)
	reports, err := buildAll(ctx, b, reqs, opts.workers)
	if err != nil {
		return err
	}
	m.Reports.Add(float64(len(reports)))

	if st != nil {
		for _, r := range reports {
			if err := st.SaveReport(ctx, r); err != nil {
				return fmt.Errorf("save report %s: %w", r.ID, err)
			}
		}
		m.StoreWrites.WithLabelValues("reports").Add(float64(len(reports)))
	}

	res := result{Reports: reports}
	if opts.question != "" {
		selected := record.ForProduct(reviews, *opts.product)
		name := names[*opts.product]
		if name == "" {
			name = fmt.Sprintf("product %d", *opts.product)
		}
		answer, err := client.Ask(ctx, name, opts.question, record.Bodies(selected, report.MaxNarrativeReviews))
		if err != nil {
			return fmt.Errorf("ask: %w", err)
		}
		res.Answer = answer
	}

	if opts.output != "" {
		ok := export.New(&logger).JSON(opts.output, res)
		m.Export("json", ok)
	}
	if opts.metricsFile != "" {
		if err := m.WriteFile(opts.metricsFile); err != nil {
			logger.Warn().Err(err).Str("path", opts.metricsFile).Msg("write metrics")
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// load returns the review collection and product titles by ID, from the
// database when one is open and from files otherwise.
func load(ctx context.Context, opts options, st store.Store, logger zerolog.Logger) ([]record.Review, map[int64]string, error) {
	names := make(map[int64]string)

	if st != nil {
		reviews, err := st.Reviews(ctx, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("read reviews: %w", err)
		}
		products, err := st.Products(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("read products: %w", err)
		}
		for _, p := range products {
			names[p.ID] = p.Title
		}
		return reviews, names, nil
	}

	imp := ingest.NewImporter(ingest.Options{Logger: &logger})
	merged := merge.Merge(imp, opts.inputs...)
	if opts.products != "" {
		for _, p := range imp.ImportProducts(opts.products).Records {
			names[p.ID] = p.Title
		}
	}
	return merged.Reviews, names, nil
}

func requests(opts options, reviews []record.Review, names map[int64]string) []report.Request {
	if opts.perProduct {
		ids := record.ProductIDs(reviews)
		out := make([]report.Request, 0, len(ids))
		for _, id := range ids {
			out = append(out, report.Request{Filter: analytics.ForProduct(id), ProductName: names[id], Reviews: reviews})
		}
		return out
	}
	if opts.product != nil {
		id := *opts.product
		return []report.Request{{Filter: analytics.ForProduct(id), ProductName: names[id], Reviews: reviews}}
	}
	return []report.Request{{Reviews: reviews}}
}

// buildAll builds the reports with at most workers in flight, keeping the
// request order in the output.
func buildAll(ctx context.Context, b *report.Builder, reqs []report.Request, workers int) ([]report.Report, error) {
	out := make([]report.Report, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = b.Build(ctx, req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// instrumented records latency and outcome of narrative calls.
type instrumented struct {
	next report.Narrator
	m    *metrics.Registry
}

func (n *instrumented) Narrate(ctx context.Context, req report.NarrativeRequest) (string, error) {
	start := time.Now()
	text, err := n.next.Narrate(ctx, req)
	n.m.NarrativeLatSec.Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "failed"
	}
	n.m.NarrativeCalls.WithLabelValues(status).Inc()
	return text, err
}
