// Package metrics provides Prometheus-based metrics for the attempt pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records pipeline metrics.
type Recorder struct {
	runsTotal        *prometheus.CounterVec
	attemptFailures  *prometheus.CounterVec
	modelCallSeconds *prometheus.HistogramVec
	execSeconds      *prometheus.HistogramVec
}

// NewRecorder creates a recorder registered on the default registry.
func NewRecorder() *Recorder {
	return NewRecorderWith(prometheus.DefaultRegisterer)
}

// NewRecorderWith creates a recorder registered on the given registerer.
// Tests pass a fresh registry to avoid duplicate registration.
func NewRecorderWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "draftpilot_runs_total",
				Help: "Total pipeline runs by terminal outcome",
			},
			[]string{"outcome"},
		),
		attemptFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "draftpilot_attempt_failures_total",
				Help: "Total failed attempts by failure kind",
			},
			[]string{"kind"},
		),
		modelCallSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "draftpilot_model_call_duration_seconds",
				Help:    "Duration of model service calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		execSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "draftpilot_execution_duration_seconds",
				Help:    "Duration of sandboxed script executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
	}
}

// ObserveRun records a terminal pipeline outcome.
func (r *Recorder) ObserveRun(outcome string) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAttemptFailure records one consumed-and-failed attempt.
func (r *Recorder) ObserveAttemptFailure(kind string) {
	if r == nil {
		return
	}
	r.attemptFailures.WithLabelValues(kind).Inc()
}

// ObserveModelCall records the duration of one model call.
func (r *Recorder) ObserveModelCall(d time.Duration, ok bool) {
	if r == nil {
		return
	}
	r.modelCallSeconds.WithLabelValues(status(ok)).Observe(d.Seconds())
}

// ObserveExecution records the duration of one sandboxed execution.
func (r *Recorder) ObserveExecution(d time.Duration, ok bool) {
	if r == nil {
		return
	}
	r.execSeconds.WithLabelValues(status(ok)).Observe(d.Seconds())
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// Serve exposes /metrics on addr. It blocks; run it in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	//nolint:gosec // Internal metrics endpoint, no timeout hardening needed
	return http.ListenAndServe(addr, mux)
}
