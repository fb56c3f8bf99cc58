package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Middleware(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/channel/{username}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, name := range []string{"alice", "bob"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/channel/"+name, nil))
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.requestsTotal.WithLabelValues("/channel/{username}", "404")))
}

func TestMetrics_AuthEvent(t *testing.T) {
	m := NewMetrics()
	m.AuthEvent("login", "success")
	m.AuthEvent("login", "success")
	m.AuthEvent("refresh", "replayed")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.authEvents.WithLabelValues("login", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.authEvents.WithLabelValues("refresh", "replayed")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.AuthEvent("logout", "success")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tube_auth_events_total{event="logout",outcome="success"} 1`)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.AuthEvent("login", "success")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	w := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	w = httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
