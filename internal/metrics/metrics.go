// Package metrics exposes server counters as Prometheus collectors.
//
// Every method is safe to call on a nil *Metrics, so callers built without
// metrics pass nil instead of checking at each call site.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/volki/internal/logging"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "volki"

// DefaultDurationBuckets are the request duration histogram boundaries.
var DefaultDurationBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// Metrics holds the server's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests            *prometheus.CounterVec
	duration            *prometheus.HistogramVec
	activeConnections   prometheus.Gauge
	rejectedConnections *prometheus.CounterVec
	parseErrors         *prometheus.CounterVec
	routes              prometheus.Gauge
}

// New registers the collectors under namespace, or DefaultNamespace when
// empty. Go runtime and process collectors are included.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of responses written, by method and status",
			},
			[]string{"method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Time from request head parsed to response written",
				Buckets:   DefaultDurationBuckets,
			},
			[]string{"method"},
		),
		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "active_connections",
				Help:      "Connections currently open",
			},
		),
		rejectedConnections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "rejected_connections_total",
				Help:      "Connections refused before serving, by reason",
			},
			[]string{"reason"},
		),
		parseErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "parse_errors_total",
				Help:      "Requests rejected by the parser, by error kind",
			},
			[]string{"kind"},
		),
		routes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "routes",
				Help:      "Registered route entries",
			},
		),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.activeConnections,
		m.rejectedConnections,
		m.parseErrors,
		m.routes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ServerRequest records one completed request.
func (m *Metrics) ServerRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ConnectionOpened increments the active connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

// ConnectionRejected counts a refused connection. Reasons are "global",
// "per_ip", "tls" and "rate_limit".
func (m *Metrics) ConnectionRejected(reason string) {
	if m == nil {
		return
	}
	m.rejectedConnections.WithLabelValues(reason).Inc()
}

// ParseError counts a request the parser rejected.
func (m *Metrics) ParseError(kind string) {
	if m == nil {
		return
	}
	m.parseErrors.WithLabelValues(kind).Inc()
}

// SetRoutes records the size of the route table.
func (m *Metrics) SetRoutes(n int) {
	if m == nil {
		return
	}
	m.routes.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ListenAndServe serves /metrics on addr until ctx is cancelled.
func (m *Metrics) ListenAndServe(ctx context.Context, addr string, logger logging.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.Serve(ctx, ln, logger)
}

// Serve serves /metrics on ln until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, ln net.Listener, logger logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "metrics listener started", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
