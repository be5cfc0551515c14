// Package metrics exposes Prometheus instrumentation for the ledger service
// and runs the standalone metrics listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SubmissionsAccepted counts accepted provider submissions.
	SubmissionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "genemarket",
		Name:      "submissions_accepted_total",
		Help:      "Number of accepted encrypted submissions.",
	})

	// CalculationsRequested counts scheduled decryption requests.
	CalculationsRequested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "genemarket",
		Name:      "calculations_requested_total",
		Help:      "Number of scheduled aggregate decryption requests.",
	})

	// CallbacksProcessed counts oracle callback invocations by outcome.
	CallbacksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "genemarket",
		Name:      "callbacks_processed_total",
		Help:      "Number of decryption callback invocations by outcome.",
	}, []string{"outcome"})

	// RejectedCalls counts ledger rejections by error class.
	RejectedCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "genemarket",
		Name:      "rejected_calls_total",
		Help:      "Number of rejected ledger operations by error class.",
	}, []string{"class"})
)

// MetricsServer serves the Prometheus scrape endpoint on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for addr. The namespace argument is kept for
// call-site symmetry with the main server; counters are namespaced statically.
func New(namespace, addr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving the scrape endpoint.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
