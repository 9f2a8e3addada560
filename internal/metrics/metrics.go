package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "revlens"

// Registry holds the counters the command-line tools record. It is written
// out as a node-exporter textfile at the end of a run.
type Registry struct {
	reg *prometheus.Registry

	Imported        *prometheus.CounterVec
	Skipped         *prometheus.CounterVec
	Duplicates      prometheus.Counter
	StoreWrites     *prometheus.CounterVec
	Exports         *prometheus.CounterVec
	Reports         prometheus.Counter
	NarrativeCalls  *prometheus.CounterVec
	NarrativeLatSec prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	imported := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_imported_total",
		Help:      "Records parsed from input files",
	}, []string{"kind", "format"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_skipped_total",
		Help:      "Records dropped with a diagnostic",
	}, []string{"format", "reason"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reviews_duplicate_total",
		Help:      "Reviews discarded by ID deduplication",
	})
	storeWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_rows_written_total",
		Help:      "Rows newly written to the store",
	}, []string{"table"})
	exports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exports_total",
		Help:      "Export attempts by format and outcome",
	}, []string{"format", "status"})
	reports := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_built_total",
		Help:      "Analysis reports built",
	})
	narrativeCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "narrative_requests_total",
		Help:      "Language model narrative requests by outcome",
	}, []string{"status"})
	narrativeLat := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "narrative_latency_seconds",
		Help:      "Language model narrative request duration",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	r.MustRegister(imported, skipped, duplicates, storeWrites, exports, reports, narrativeCalls, narrativeLat)
	return &Registry{
		reg:             r,
		Imported:        imported,
		Skipped:         skipped,
		Duplicates:      duplicates,
		StoreWrites:     storeWrites,
		Exports:         exports,
		Reports:         reports,
		NarrativeCalls:  narrativeCalls,
		NarrativeLatSec: narrativeLat,
	}
}

// Export records one export attempt.
func (r *Registry) Export(format string, ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	r.Exports.WithLabelValues(format, status).Inc()
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// WriteFile writes every metric in the text exposition format, replacing
// path atomically.
func (r *Registry) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
