// Package metrics holds the prometheus collectors of a mining run.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smelltrend"

// Metrics groups the run's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	RevisionsProcessed *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	PollAttempts       *prometheus.CounterVec
	IssuesFetched      *prometheus.CounterVec
	Errors             *prometheus.CounterVec
}

// New creates and registers every collector. Each call uses its own registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RevisionsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revisions_processed_total",
			Help:      "Revisions whose issue report was persisted.",
		}, []string{"project"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each per-revision stage.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 9),
		}, []string{"stage"}),
		PollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_attempts_total",
			Help:      "Activity status requests made while waiting for the analysis server.",
		}, []string{"project"}),
		IssuesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_fetched_total",
			Help:      "Issues downloaded from the analysis server.",
		}, []string{"project"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by project and kind.",
		}, []string{"project", "kind"}),
	}
	m.Registry.MustRegister(m.RevisionsProcessed, m.StageDuration, m.PollAttempts, m.IssuesFetched, m.Errors)
	return m
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Error counts an error of the given kind.
func (m *Metrics) Error(project, kind string) {
	m.Errors.WithLabelValues(project, kind).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Server exposes /metrics until closed.
type Server struct {
	server   *http.Server
	listener net.Listener
}

// Serve starts an HTTP server at addr exposing /metrics.
func (m *Metrics) Serve(addr string, logger *slog.Logger) (*Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	return &Server{server: srv, listener: listener}, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close shuts the server down.
func (s *Server) Close() error {
	if err := s.server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}
