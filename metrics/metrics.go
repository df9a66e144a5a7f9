// Package metrics exposes Prometheus instrumentation for the
// authentication and federation services, plus a standalone metrics
// HTTP server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Core holds the counters incremented by the services.
type Core struct {
	VerificationAttempts *prometheus.CounterVec
	Registrations        prometheus.Counter
	Erasures             prometheus.Counter
	Contributions        prometheus.Counter
	AggregationRuns      prometheus.Counter
	SnapshotFailures     prometheus.Counter
}

// NewCore registers the service counters on a registerer. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func NewCore(reg prometheus.Registerer) *Core {
	factory := promauto.With(reg)
	return &Core{
		VerificationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "biometric_verification_attempts_total",
			Help: "Verification attempts by outcome.",
		}, []string{"outcome"}),
		Registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "biometric_registrations_total",
			Help: "Accepted embedding registrations.",
		}),
		Erasures: factory.NewCounter(prometheus.CounterOpts{
			Name: "biometric_erasures_total",
			Help: "Embedding erasure requests.",
		}),
		Contributions: factory.NewCounter(prometheus.CounterOpts{
			Name: "federated_contributions_total",
			Help: "Accepted gradient contributions.",
		}),
		AggregationRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "federated_aggregation_runs_total",
			Help: "Completed aggregation rounds.",
		}),
		SnapshotFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_snapshot_failures_total",
			Help: "Failed model snapshot archivals.",
		}),
	}
}

// MetricsServer serves the Prometheus scrape endpoint on its own
// listener, separate from the API server.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server bound to addr.
func New(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe blocks serving scrapes until Shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
