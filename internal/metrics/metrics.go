// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "village"

var (
	// Registry holds the service's collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	realtimeClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "connected_clients",
		Help:      "Websocket clients currently connected.",
	})

	realtimeDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "dropped_events_total",
		Help:      "Events dropped because a client buffer was full.",
	})

	messagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messaging",
		Name:      "messages_sent_total",
		Help:      "Messages stored by conversations.",
	})

	notificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "sent_total",
		Help:      "Outbound notifications by channel, type and result.",
	}, []string{"channel", "type", "result"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		realtimeClients,
		realtimeDropped,
		messagesSent,
		notificationsSent,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// UnmatchedRoute labels requests that reached no registered pattern,
// including those rejected before routing.
const UnmatchedRoute = "other"

type routeKey struct{}

type routeHolder struct {
	pattern string
}

// Instrument wraps next with request count, latency and in-flight metrics.
// Requests are labelled by the route pattern recorded through Route, never
// by the raw path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		holder := &routeHolder{}
		r = r.WithContext(context.WithValue(r.Context(), routeKey{}, holder))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := holder.pattern
		if path == "" {
			path = UnmatchedRoute
		}
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// Route records the pattern mux matches for r before serving it. The first
// specific pattern recorded wins; the "/" catch-all is never recorded, so a
// mux that only forwards to a nested mux leaves the label to the inner one.
func Route(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if holder, ok := r.Context().Value(routeKey{}).(*routeHolder); ok && holder.pattern == "" {
			_, pattern := mux.Handler(r)
			if label := routeLabel(pattern); label != "/" {
				holder.pattern = label
			}
		}
		mux.ServeHTTP(w, r)
	})
}

// routeLabel drops the method from a pattern like "GET /api/tasks/{id}".
func routeLabel(pattern string) string {
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = strings.TrimSpace(pattern[i+1:])
	}
	if pattern == "" {
		return "/"
	}
	return pattern
}

func ClientConnected()    { realtimeClients.Inc() }
func ClientDisconnected() { realtimeClients.Dec() }
func EventDropped()       { realtimeDropped.Inc() }
func MessageSent()        { messagesSent.Inc() }

// NotificationSent records one outbound push or email. result is "sent",
// "failed" or "expired".
func NotificationSent(channel, notifType, result string) {
	notificationsSent.WithLabelValues(channel, notifType, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
