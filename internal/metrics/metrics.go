package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "backfill"

var (
	// Fetch
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "pages_total",
			Help:      "Pages returned by venue endpoints",
		},
		[]string{"endpoint"},
	)

	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "attempts_total",
			Help:      "Page fetch attempts by result",
		},
		[]string{"endpoint", "result"}, // "ok", "retry", "not_found", "exhausted"
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Time spent on a single page request",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// Pagination
	Terminations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paginator",
			Name:      "terminations_total",
			Help:      "Instrument walks by termination reason",
		},
		[]string{"endpoint", "reason"},
	)

	// Validation
	ValidationRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validate",
			Name:      "rows_total",
			Help:      "Rows repaired by the validator",
		},
		[]string{"job", "defect"}, // "duplicated", "missing", "anomalous"
	)

	// Persistence
	RowsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "warehouse",
			Name:      "rows_loaded_total",
			Help:      "Rows appended to the warehouse",
		},
		[]string{"job"},
	)

	LoadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "warehouse",
			Name:      "load_errors_total",
			Help:      "Failed warehouse loads",
		},
		[]string{"job"},
	)

	// Jobs
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Wall time of one job run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"job"},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "runs_total",
			Help:      "Job runs by outcome",
		},
		[]string{"job", "outcome"}, // "ok", "failed"
	)

	InstrumentsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "instruments_skipped_total",
			Help:      "Instruments skipped by reason",
		},
		[]string{"job", "reason"},
	)
)

// Handler returns the HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
