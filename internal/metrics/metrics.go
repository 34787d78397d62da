// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_actions_total",
			Help: "Due actions executed, by outcome",
		},
		[]string{"outcome"},
	)

	researchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_research_total",
			Help: "Research runs, by result kind",
		},
		[]string{"kind"},
	)

	schedulerCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_scheduler_cycles_total",
			Help: "Scheduler cycles, by result",
		},
		[]string{"result"},
	)

	repliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_replies_total",
			Help: "Classified prospect replies, by intent",
		},
		[]string{"intent"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_http_requests_total",
			Help: "Management API requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_http_request_duration_seconds",
			Help:    "Management API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func RecordAction(outcome string) { actionsTotal.WithLabelValues(outcome).Inc() }

func RecordResearch(kind string) { researchTotal.WithLabelValues(kind).Inc() }

func RecordCycle(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	schedulerCycles.WithLabelValues(result).Inc()
}

func RecordReply(intent string) { repliesTotal.WithLabelValues(intent).Inc() }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency. route labels the request;
// pass a function that returns the matched route pattern to keep label
// cardinality bounded.
func Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			name := route(r)
			httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.statusCode)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
		})
	}
}
