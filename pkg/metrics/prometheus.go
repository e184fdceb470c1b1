package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	iterations     *prometheus.CounterVec
	fetchErrors    *prometheus.CounterVec
	rowsAppended   prometheus.Counter
	tableSize      prometheus.Gauge
	skippedRecords prometheus.Counter
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		iterations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpull_iterations_total",
				Help: "Collector iterations by result",
			},
			[]string{"result"},
		),
		fetchErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpull_fetch_errors_total",
				Help: "Failed snapshot fetches by kind",
			},
			[]string{"kind"},
		),
		rowsAppended: f.NewCounter(
			prometheus.CounterOpts{
				Name: "coinpull_rows_appended_total",
				Help: "Rows appended to the accumulated table",
			},
		),
		tableSize: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "coinpull_table_rows",
				Help: "Current number of rows in the accumulated table",
			},
		),
		skippedRecords: f.NewCounter(
			prometheus.CounterOpts{
				Name: "coinpull_skipped_records_total",
				Help: "Snapshot entries skipped as malformed",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpull_report_cache_lookups_total",
				Help: "Report cache lookups by report and result",
			},
			[]string{"report", "result"},
		),
	}
}

func (r *Recorder) RecordIteration(result string) {
	r.iterations.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordFetchError(kind string) {
	r.fetchErrors.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordRowsAppended(n int) {
	r.rowsAppended.Add(float64(n))
}

func (r *Recorder) RecordTableSize(n int) {
	r.tableSize.Set(float64(n))
}

func (r *Recorder) RecordSkippedRecords(n int) {
	r.skippedRecords.Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordCacheLookup counts a report cache hit or miss.
func (r *Recorder) RecordCacheLookup(report string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(report, result).Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordIteration(string)         {}
func (Nop) RecordFetchError(string)        {}
func (Nop) RecordRowsAppended(int)         {}
func (Nop) RecordTableSize(int)            {}
func (Nop) RecordSkippedRecords(int)       {}
func (Nop) RecordError(string)             {}
func (Nop) RecordLatency(string, float64)  {}
func (Nop) RecordCacheLookup(string, bool) {}
