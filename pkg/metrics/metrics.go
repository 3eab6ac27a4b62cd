// Package metrics holds the Prometheus collectors of the conversion client.
package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kontoexport"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	pollTicks   *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Requests to the conversion service by operation and outcome.",
		}, []string{"op", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Latency of requests to the conversion service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Status checks made while waiting for a conversion, by reported status.",
		}, []string{"status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Workflow state changes.",
		}, []string{"from", "to"}),
	}

	m.registry.MustRegister(m.requests, m.durations, m.pollTicks, m.transitions)
	return m
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.durations.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObservePoll records one status check. Failed checks are recorded as "error".
func (m *Metrics) ObservePoll(status string) {
	if m == nil {
		return
	}
	m.pollTicks.WithLabelValues(status).Inc()
}

// ObserveTransition records a workflow state change.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Serve exposes /metrics on addr until the returned shutdown func is called.
func (m *Metrics) Serve(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	return func() {
		_ = srv.Close()
	}
}
