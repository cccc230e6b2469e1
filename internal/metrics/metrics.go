// Package metrics exposes check progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snapetech/streamcheck/internal/catalog"
)

const namespace = "streamcheck"

// Metrics holds the collectors for one run. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	checks     *prometheus.CounterVec
	latency    prometheus.Histogram
	inFlight   prometheus.Gauge
	candidates *prometheus.CounterVec
	flushes    *prometheus.CounterVec
	flushTime  prometheus.Histogram
	stored     prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "checks_total",
			Help: "Completed stream checks by terminal status.",
		}, []string{"status"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "check_duration_seconds",
			Help:    "Wall time of one stream check.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20, 30},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "checks_in_flight",
			Help: "Checks currently running.",
		}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "candidates_total",
			Help: "Candidates seen by the feed, by outcome (admitted, duplicate, rejected, resumed).",
		}, []string{"outcome"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkpoint_flushes_total",
			Help: "Checkpoint persistence attempts by result.",
		}, []string{"result"}),
		flushTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "checkpoint_flush_seconds",
			Help:    "Time spent persisting one checkpoint.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		stored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "checkpoint_results",
			Help: "Results held in the last persisted checkpoint.",
		}),
	}
	m.Registry.MustRegister(
		m.checks, m.latency, m.inFlight, m.candidates, m.flushes, m.flushTime, m.stored,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, st := range catalog.Statuses {
		m.checks.WithLabelValues(string(st))
	}
	return m
}

// CheckStarted marks one check as in flight.
func (m *Metrics) CheckStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// CheckDone records a finished check.
func (m *Metrics) CheckDone(r catalog.CheckResult) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.checks.WithLabelValues(string(r.Status)).Inc()
	m.latency.Observe(float64(r.LatencyMs) / 1000)
}

// CheckAborted releases an in-flight check whose result was discarded.
func (m *Metrics) CheckAborted() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// Candidate counts one feed record by outcome.
func (m *Metrics) Candidate(outcome string) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(outcome).Inc()
}

// Flush records one checkpoint persistence attempt. Its signature matches
// checkpoint.Manager.OnFlush.
func (m *Metrics) Flush(d time.Duration, results int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.flushes.WithLabelValues("error").Inc()
		return
	}
	m.flushes.WithLabelValues("ok").Inc()
	m.flushTime.Observe(d.Seconds())
	m.stored.Set(float64(results))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, m *Metrics, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
