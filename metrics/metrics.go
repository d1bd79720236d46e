// Package metrics exposes Prometheus collectors for the proxy.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graphql_bridge"

// Message directions
const (
	ClientToUpstream = "client_to_upstream"
	UpstreamToClient = "upstream_to_client"
)

// Message actions
const (
	ActionForwarded = "forwarded"
	ActionRetagged  = "retagged"
	ActionSwallowed = "swallowed"
	ActionAnswered  = "answered"
	ActionDropped   = "dropped"
	ActionMalformed = "malformed"
)

// Metrics holds the proxy collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	connectionsActive prometheus.Gauge
	connectionsTotal  *prometheus.CounterVec
	operationsActive  prometheus.Gauge
	messages          *prometheus.CounterVec
	closes            *prometheus.CounterVec
	forwards          *prometheus.CounterVec
	forwardDuration   prometheus.Histogram
}

// New creates the collectors and registers them on a new registry together
// with the process and Go runtime collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections_active",
			Help:      "Current number of bridged websocket connections.",
		}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections_total",
			Help:      "Total number of websocket connections by subprotocol and credential kind.",
		}, []string{"subprotocol", "credential"}),
		operationsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "operations_active",
			Help:      "Current number of operations relayed upstream and not yet completed.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "messages_total",
			Help:      "Total number of websocket messages handled by direction, type and action.",
		}, []string{"direction", "type", "action"}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "closes_total",
			Help:      "Total number of bridge closes by close code and initiating side.",
		}, []string{"code", "initiator"}),
		forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "forwards_total",
			Help:      "Total number of forwarded GraphQL HTTP requests by upstream status.",
		}, []string{"status"}),
		forwardDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "forward_duration_seconds",
			Help:      "Duration of forwarded GraphQL HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),
	}

	m.registry.MustRegister(
		m.connectionsActive,
		m.connectionsTotal,
		m.operationsActive,
		m.messages,
		m.closes,
		m.forwards,
		m.forwardDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)

	return m
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the registered metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConnectionOpened records a bridged connection
func (m *Metrics) ConnectionOpened(subprotocol, credential string) {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
	m.connectionsTotal.WithLabelValues(subprotocol, credential).Inc()
}

// ConnectionClosed records the end of a bridged connection
func (m *Metrics) ConnectionClosed(code int, initiator string) {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
	m.closes.WithLabelValues(strconv.Itoa(code), initiator).Inc()
}

// Message records one handled websocket message
func (m *Metrics) Message(direction, messageType, action string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(direction, messageType, action).Inc()
}

// OperationStarted records an operation relayed upstream
func (m *Metrics) OperationStarted() {
	if m == nil {
		return
	}
	m.operationsActive.Inc()
}

// OperationsEnded records n operations that are no longer active
func (m *Metrics) OperationsEnded(n int) {
	if m == nil || n == 0 {
		return
	}
	m.operationsActive.Sub(float64(n))
}

// Forwarded records a forwarded HTTP request. status is 0 when the upstream
// could not be reached.
func (m *Metrics) Forwarded(status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.forwards.WithLabelValues(label).Inc()
	m.forwardDuration.Observe(d.Seconds())
}
