package report

import (
	"context"
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/cognicore/revlens/pkg/revlens/analytics"
	"github.com/cognicore/revlens/pkg/revlens/record"
	"github.com/cognicore/revlens/pkg/revlens/stats"
)

// MaxNarrativeReviews caps how many review bodies a Narrator receives.
const MaxNarrativeReviews = 10

// NarrativeRequest is everything a Narrator is given about a product.
type NarrativeRequest struct {
	ProductName string
	Reviews     []string
	Context     string
}

// Narrator turns computed analytics into prose. Implementations typically
// call a language model and may be slow or unavailable.
type Narrator interface {
	Narrate(ctx context.Context, req NarrativeRequest) (string, error)
}

// Request selects what a report covers.
type Request struct {
	Filter      analytics.Filter
	ProductName string
	Reviews     []record.Review
}

// Report is one analysis run over a review set.
type Report struct {
	ID             string            `json:"id"`
	GeneratedAt    time.Time         `json:"generatedAt"`
	ProductID      *int64            `json:"productId,omitempty"`
	ProductName    string            `json:"productName,omitempty"`
	Summary        analytics.Summary `json:"summary"`
	Statistics     stats.Summary     `json:"statistics"`
	Narrative      string            `json:"narrative,omitempty"`
	NarrativeError string            `json:"narrativeError,omitempty"`
}

// Builder assembles reports. It is safe for concurrent use.
type Builder struct {
	engine   *analytics.Engine
	narrator Narrator
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Option configures a Builder.
type Option func(*Builder)

// WithNarrator enables narrative generation.
func WithNarrator(n Narrator) Option {
	return func(b *Builder) { b.narrator = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Builder) { b.log = l.With().Str("component", "report").Logger() }
}

// WithClock overrides the generation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a report builder over engine.
func NewBuilder(engine *analytics.Engine, opts ...Option) *Builder {
	if engine == nil {
		engine = analytics.NewEngine(nil)
	}
	b := &Builder{
		engine:  engine,
		log:     zerolog.Nop(),
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build computes analytics and statistics for the selected reviews and, when
// a Narrator is configured, asks it for prose. A narrator failure is kept in
// NarrativeError and leaves the metrics untouched.
func (b *Builder) Build(ctx context.Context, req Request) Report {
	selected := req.Filter.Apply(req.Reviews)
	now := b.now()

	rep := Report{
		ID:          b.newID(now),
		GeneratedAt: now.UTC(),
		ProductName: req.ProductName,
		Summary:     b.engine.Summarize(selected, analytics.Filter{}),
		Statistics:  stats.Compute(selected),
	}
	if id, ok := req.Filter.ProductID(); ok {
		rep.ProductID = &id
	}

	if b.narrator == nil || len(selected) == 0 {
		return rep
	}

	name := displayName(req)
	nreq := NarrativeRequest{
		ProductName: name,
		Reviews:     record.Bodies(selected, MaxNarrativeReviews),
		Context:     NarrativeContext(name, rep.Summary.AverageRating, rep.Summary.TotalReviews),
	}
	text, err := b.narrator.Narrate(ctx, nreq)
	if err != nil {
		b.log.Warn().Err(err).Str("report", rep.ID).Str("product", name).Msg("narrative unavailable")
		rep.NarrativeError = err.Error()
		return rep
	}
	rep.Narrative = text
	return rep
}

func (b *Builder) newID(t time.Time) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), b.entropy).String()
}

// NarrativeContext renders the numeric context handed to a Narrator, e.g.
// "Product: Backpack, Avg Rating: 4.0/5, Total Reviews: 12".
func NarrativeContext(product string, avg float64, total int) string {
	rating := strconv.FormatFloat(avg, 'f', -1, 64)
	if !strings.Contains(rating, ".") {
		rating += ".0"
	}
	return fmt.Sprintf("Product: %s, Avg Rating: %s/5, Total Reviews: %d", product, rating, total)
}

func displayName(req Request) string {
	if req.ProductName != "" {
		return req.ProductName
	}
	if id, ok := req.Filter.ProductID(); ok {
		return fmt.Sprintf("product %d", id)
	}
	return "all products"
}
