package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	refreshRuns     *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	snapshotSize    prometheus.Gauge
	lastRefresh     prometheus.Gauge
	rateLimit       *prometheus.CounterVec
	authFailures    *prometheus.CounterVec
	upstreamErrors  *prometheus.CounterVec
}

// New creates a recorder registered on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		refreshRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indicium_refresh_runs_total",
				Help: "Total number of snapshot refresh runs",
			},
			[]string{"source", "success"},
		),
		refreshDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indicium_refresh_duration_seconds",
				Help:    "Duration of snapshot refresh runs in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"source"},
		),
		snapshotSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "indicium_snapshot_signals",
			Help: "Number of signals in the latest snapshot",
		}),
		lastRefresh: f.NewGauge(prometheus.GaugeOpts{
			Name: "indicium_last_refresh_success",
			Help: "1 if the last refresh fetched live data, 0 if it fell back",
		}),
		rateLimit: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indicium_rate_limit_decisions_total",
				Help: "Rate limit decisions by outcome",
			},
			[]string{"decision"},
		),
		authFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indicium_auth_failures_total",
				Help: "Token validation failures by kind",
			},
			[]string{"kind"},
		),
		upstreamErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indicium_upstream_errors_total",
				Help: "Warehouse call failures by operation",
			},
			[]string{"op", "retryable"},
		),
	}
}

// RecordRefresh records one refresher run.
func (r *Recorder) RecordRefresh(source string, success bool, seconds float64, count int) {
	r.refreshRuns.WithLabelValues(source, strconv.FormatBool(success)).Inc()
	r.refreshDuration.WithLabelValues(source).Observe(seconds)
	r.snapshotSize.Set(float64(count))
	if success {
		r.lastRefresh.Set(1)
	} else {
		r.lastRefresh.Set(0)
	}
}

// RecordRateLimit records an allowed, denied or fail_open decision.
func (r *Recorder) RecordRateLimit(decision string) {
	r.rateLimit.WithLabelValues(decision).Inc()
}

// RecordAuthFailure records a rejected token by error kind.
func (r *Recorder) RecordAuthFailure(kind string) {
	r.authFailures.WithLabelValues(kind).Inc()
}

// RecordUpstreamError records a failed warehouse call.
func (r *Recorder) RecordUpstreamError(op string, retryable bool) {
	r.upstreamErrors.WithLabelValues(op, strconv.FormatBool(retryable)).Inc()
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordRefresh(string, bool, float64, int) {}
func (Nop) RecordRateLimit(string)                   {}
func (Nop) RecordAuthFailure(string)                 {}
func (Nop) RecordUpstreamError(string, bool)         {}
