// Package metrics defines the Prometheus instrumentation for the analysis
// pipeline. Metrics are created against an injected registerer so tests
// can use an isolated registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for pipeline observability.
type Metrics struct {
	AnalysesTotal    prometheus.Counter
	AnalysisDuration prometheus.Histogram

	ResultsTotal *prometheus.CounterVec // by source

	OracleCallsTotal  prometheus.Counter
	OracleErrorsTotal *prometheus.CounterVec // by kind
	OracleBatchSize   prometheus.Histogram

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	RateLimitWaitsTotal prometheus.Counter
	DegradedTotal       prometheus.Counter
}

// New creates and registers the pipeline metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_analyses_total",
			Help: "Total number of analysis runs",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "faultline_analysis_duration_seconds",
			Help:    "Wall-clock duration of analysis runs",
			Buckets: prometheus.DefBuckets,
		}),
		ResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faultline_results_total",
			Help: "Classification results by pipeline source",
		}, []string{"source"}),
		OracleCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_oracle_calls_total",
			Help: "Total number of oracle batch requests issued",
		}),
		OracleErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faultline_oracle_errors_total",
			Help: "Oracle request failures by error kind",
		}, []string{"kind"}),
		OracleBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "faultline_oracle_batch_size",
			Help:    "Number of devices per oracle batch",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_cache_hits_total",
			Help: "Oracle response cache hits",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_cache_misses_total",
			Help: "Oracle response cache misses",
		}),
		RateLimitWaitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_ratelimit_waits_total",
			Help: "Times a caller had to wait for a rate limit slot",
		}),
		DegradedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_degraded_verdicts_total",
			Help: "Devices that received a degraded fallback verdict",
		}),
	}

	reg.MustRegister(
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.ResultsTotal,
		m.OracleCallsTotal,
		m.OracleErrorsTotal,
		m.OracleBatchSize,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RateLimitWaitsTotal,
		m.DegradedTotal,
	)
	return m
}

// NewNop creates unregistered metrics for callers that do not report.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
