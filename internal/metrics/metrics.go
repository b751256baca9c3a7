// Package metrics holds the prometheus collectors of the tutor.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiztutor_turns_total",
			Help: "Student turns handled, by classified kind and reply signal",
		},
		[]string{"kind", "signal"},
	)

	QuestionAdvancesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiztutor_question_advances_total",
			Help: "Question advances, by trigger (answer or navigation)",
		},
		[]string{"trigger"},
	)

	GateRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiztutor_gate_rejections_total",
			Help: "Navigation requests refused because the last score was below the gate",
		},
	)

	OracleRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiztutor_oracle_requests_total",
			Help: "Grading oracle calls, by outcome (ok or error)",
		},
		[]string{"outcome"},
	)

	OracleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiztutor_oracle_duration_seconds",
			Help:    "Duration of grading oracle calls",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"model"},
	)

	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiztutor_store_errors_total",
			Help: "Failed performance store operations, by operation",
		},
		[]string{"op"},
	)

	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. It is safe to
// call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			TurnsTotal,
			QuestionAdvancesTotal,
			GateRejectionsTotal,
			OracleRequestsTotal,
			OracleDuration,
			StoreErrorsTotal,
			RequestCounter,
			RequestDuration,
		)
	})
}

// Middleware records request counts and durations labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
