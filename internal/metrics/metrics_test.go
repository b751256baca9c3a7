package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsByRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/quizzes/{subject}/{week}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "/api/quizzes/{subject}/{week}", "404"))
	req := httptest.NewRequest(http.MethodGet, "/api/quizzes/cyber/week1", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(RequestCounter.WithLabelValues("GET", "/api/quizzes/{subject}/{week}", "404"))

	if after-before != 1 {
		t.Errorf("request counter delta = %v, want 1", after-before)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
}

func TestHandlerExposesCollectors(t *testing.T) {
	Init()
	TurnsTotal.WithLabelValues("answer", "none").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "quiztutor_turns_total") {
		t.Error("expected quiztutor_turns_total in /metrics output")
	}
}
