// Package metrics holds the service's Prometheus instrumentation on a
// private registry so tests can create isolated sets.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set bundles the collectors used across the service.
type Set struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Connections       prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	MessagesSent      prometheus.Counter
	BroadcastFanout   prometheus.Histogram
	BroadcastDropped  prometheus.Counter
	FramesRejected    *prometheus.CounterVec
	BridgePublished   prometheus.Counter
	BridgeReceived    prometheus.Counter
	RetentionPurged   prometheus.Counter
	RetentionDuration prometheus.Histogram
}

// NewSet builds a metric set on a fresh registry.
func NewSet(namespace string) *Set {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Set{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method, and status code.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Currently open websocket sessions.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_connections_total",
			Help:      "Websocket sessions accepted since start.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Chat messages persisted and broadcast.",
		}),
		BroadcastFanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_fanout",
			Help:      "Sessions reached per broadcast.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		BroadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Frames dropped because a session buffer was full.",
		}),
		FramesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rejected_total",
			Help:      "Inbound frames rejected, by reason.",
		}, []string{"reason"}),
		BridgePublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_published_total",
			Help:      "Frames published to the broadcast bridge.",
		}),
		BridgeReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_received_total",
			Help:      "Frames received from the broadcast bridge.",
		}),
		RetentionPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_purged_messages_total",
			Help:      "Messages removed by the retention sweep.",
		}),
		RetentionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retention_sweep_duration_seconds",
			Help:      "Duration of retention sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		s.HTTPRequests, s.HTTPDuration,
		s.Connections, s.ConnectionsTotal,
		s.MessagesSent, s.BroadcastFanout, s.BroadcastDropped, s.FramesRejected,
		s.BridgePublished, s.BridgeReceived,
		s.RetentionPurged, s.RetentionDuration,
	)
	return s
}

// Handler exposes the registry in the Prometheus text format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request counting and latency
// observation under the given route label.
func (s *Set) InstrumentHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		s.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes connection takeover through to the underlying writer so
// instrumented websocket endpoints can upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
