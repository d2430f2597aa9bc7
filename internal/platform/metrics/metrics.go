// Package metrics holds the Prometheus collectors shared by the ledger,
// scheduler, event bus, gateway and delivery workers.
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "giftcert"

// Metrics is constructed once per process and passed to every component
// that reports. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	gatewayAttempts  *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	messagesConsumed *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	sweeps           *prometheus.CounterVec
	sweepDuration    *prometheus.HistogramVec
	ledgerOps        *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the application collectors on reg only.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.gatewayAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_attempts_total",
			Help:      "outbound HTTP attempts by host and outcome",
		},
		[]string{"host", "outcome"},
	)
	m.eventsPublished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "notification events published by topic and result",
		},
		[]string{"topic", "result"},
	)
	m.messagesConsumed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "queue messages handled by topic and result",
		},
		[]string{"topic", "result"},
	)
	m.deliveries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "notification delivery outcomes by channel",
		},
		[]string{"channel", "outcome"},
	)
	m.sweeps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_sweeps_total",
			Help:      "reconciliation sweeps by kind and result",
		},
		[]string{"sweep", "result"},
	)
	m.sweepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconciliation_sweep_duration_seconds",
			Help:      "time spent in one reconciliation sweep",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)
	m.ledgerOps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "ledger operations by name and result",
		},
		[]string{"operation", "result"},
	)
	m.httpRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "inbound HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	m.httpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "inbound HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	return m
}

func (m *Metrics) GatewayAttempt(host, outcome string) {
	if m == nil {
		return
	}
	m.gatewayAttempts.WithLabelValues(host, outcome).Inc()
}

func (m *Metrics) EventPublished(topic string, err error) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(topic, result(err)).Inc()
}

func (m *Metrics) MessageConsumed(topic, res string) {
	if m == nil {
		return
	}
	m.messagesConsumed.WithLabelValues(topic, res).Inc()
}

func (m *Metrics) Delivery(channel, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, outcome).Inc()
}

// Sweep records one finished reconciliation sweep.
func (m *Metrics) Sweep(sweep string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(sweep, result(err)).Inc()
	m.sweepDuration.WithLabelValues(sweep).Observe(time.Since(started).Seconds())
}

func (m *Metrics) LedgerOperation(op string, err error) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, fmt.Sprint(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes Handler on addr until the server is shut down. The returned
// server is already listening in the background.
func (m *Metrics) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
