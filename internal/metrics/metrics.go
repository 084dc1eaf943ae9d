// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Outcome label values for upstream response metrics.
const (
	OutcomeOK           = "ok"
	OutcomeConnectError = "connect_error"
	OutcomeReadError    = "read_error"
)

// Metrics holds all Prometheus metric collectors for the gateway.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec
	FanoutSize        prometheus.Histogram
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fanout_gateway_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "route"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fanout_gateway_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "route"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fanout_gateway_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fanout_gateway_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"target"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fanout_gateway_upstream_responses_total",
			Help: "Total upstream responses by target and outcome.",
		}, []string{"target", "outcome"}),

		FanoutSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fanout_gateway_fanout_size",
			Help:    "Number of upstream targets per dispatched request.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.FanoutSize,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed static path label values (bounded cardinality).
var knownPrefixes = []string{"/api", "/healthz", "/gateway/status", "/metrics"}

// NormalizePath returns a bounded path label for requests outside the
// gateway route, such as health and metrics endpoints.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}

// RouteNormalizer bounds the route label to keys registered in the route
// table. Client-supplied keys outside the table map to "unknown".
type RouteNormalizer struct {
	known map[string]bool
}

// NewRouteNormalizer builds a normalizer over the registered route keys.
func NewRouteNormalizer(keys []string) *RouteNormalizer {
	known := make(map[string]bool, len(keys))
	for _, key := range keys {
		known[key] = true
	}
	return &RouteNormalizer{known: known}
}

// Normalize returns a bounded route label value.
func (n *RouteNormalizer) Normalize(key string) string {
	if n.known[key] {
		return key
	}
	return "unknown"
}
