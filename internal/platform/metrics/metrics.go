// Package metrics exposes the Prometheus collectors for the Network
// Service, following the namespaced-CounterVec/HistogramVec idiom this
// codebase uses elsewhere for HTTP and job instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the fabric's Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "softsdn",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "softsdn",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "softsdn",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	eventsRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "softsdn",
		Subsystem: "router",
		Name:      "events_routed_total",
		Help:      "Total number of events processed by the router, by final status.",
	}, []string{"status"})

	eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "softsdn",
		Subsystem: "router",
		Name:      "events_dropped_total",
		Help:      "Total number of dropped/errored events, bucketed by event type, boundary, and reason.",
	}, []string{"event_type", "boundary", "reason"})

	hashFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "softsdn",
		Subsystem: "integrity",
		Name:      "hash_failures_total",
		Help:      "Total number of events rejected for failing integrity verification.",
	})

	deliveryFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "softsdn",
		Subsystem: "fabric",
		Name:      "delivery_failed_total",
		Help:      "Total number of session-queue overflow drops (drop-oldest policy).",
	}, []string{"node_id"})

	routeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "softsdn",
		Subsystem: "router",
		Name:      "route_duration_seconds",
		Help:      "Duration of the full routing pipeline per event.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		eventsRouted,
		eventsDropped,
		hashFailures,
		deliveryFailed,
		routeDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registry over HTTP for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request metrics.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordRouted increments the per-status routing counter.
func RecordRouted(status string) {
	eventsRouted.WithLabelValues(status).Inc()
}

// RecordDropped increments the drop-reason-bucketed counter.
func RecordDropped(eventType, boundary, reason string) {
	if eventType == "" {
		eventType = "unknown"
	}
	if boundary == "" {
		boundary = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	eventsDropped.WithLabelValues(eventType, boundary, reason).Inc()
}

// RecordHashFailure increments the hash-verification-failure counter.
func RecordHashFailure() {
	hashFailures.Inc()
}

// RecordDeliveryFailed increments the session-overflow counter.
func RecordDeliveryFailed(nodeID string) {
	deliveryFailed.WithLabelValues(nodeID).Inc()
}

// ObserveRouteDuration records the duration of one full routing pass.
func ObserveRouteDuration(d time.Duration) {
	routeDuration.Observe(d.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) < 3 {
		return "/" + strings.Join(parts, "/")
	}
	// collapse path-parameter-shaped segments (ids) for cardinality control
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if looksLikeID(p) {
			out = append(out, ":id")
		} else {
			out = append(out, p)
		}
	}
	return "/" + strings.Join(out, "/")
}

func looksLikeID(segment string) bool {
	return len(segment) >= 8 && strings.ContainsAny(segment, "0123456789")
}
