// Package metrics exposes reader and delivery counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the metrics listener settings.
type Config struct {
	Listen string `yaml:"listen"` // e.g. ":9090"; empty disables the endpoint
	Path   string `yaml:"path"`
}

// Metrics implements reader.Observer and records delivery results.
type Metrics struct {
	registry *prometheus.Registry

	readers        prometheus.Gauge
	readersAdded   prometheus.Counter
	readersRemoved prometheus.Counter
	tokensRead     *prometheus.CounterVec
	readFailures   *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
}

// New creates the metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		readers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "smartcrest",
			Subsystem: "reader",
			Name:      "tracked",
			Help:      "Number of card readers currently watched",
		}),
		readersAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartcrest",
			Subsystem: "reader",
			Name:      "added_total",
			Help:      "Readers discovered",
		}),
		readersRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartcrest",
			Subsystem: "reader",
			Name:      "removed_total",
			Help:      "Readers that disappeared",
		}),
		tokensRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartcrest",
			Subsystem: "card",
			Name:      "read_total",
			Help:      "Card identifiers read",
		}, []string{"reader"}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartcrest",
			Subsystem: "card",
			Name:      "read_failures_total",
			Help:      "Card reads that produced no identifier",
		}, []string{"reader"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartcrest",
			Subsystem: "delivery",
			Name:      "requests_total",
			Help:      "Token deliveries to the endpoint by result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.readers,
		m.readersAdded,
		m.readersRemoved,
		m.tokensRead,
		m.readFailures,
		m.deliveries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ReaderAdded implements reader.Observer.ReaderAdded.
func (m *Metrics) ReaderAdded(string) {
	m.readersAdded.Inc()
	m.readers.Inc()
}

// ReaderRemoved implements reader.Observer.ReaderRemoved.
func (m *Metrics) ReaderRemoved(string) {
	m.readersRemoved.Inc()
	m.readers.Dec()
}

// TokenRead implements reader.Observer.TokenRead.
func (m *Metrics) TokenRead(name string) {
	m.tokensRead.WithLabelValues(name).Inc()
}

// ReadFailed implements reader.Observer.ReadFailed.
func (m *Metrics) ReadFailed(name string) {
	m.readFailures.WithLabelValues(name).Inc()
}

// Delivered records the outcome of one endpoint request.
func (m *Metrics) Delivered(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.deliveries.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics endpoint until ctx is done. It returns nil
// immediately when no listen address is configured.
func (m *Metrics) Serve(ctx context.Context, cfg Config) error {
	if cfg.Listen == "" {
		return nil
	}
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
