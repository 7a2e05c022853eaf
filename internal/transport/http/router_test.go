package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"recon/pkg/testutil"
)

type pingRoutes struct{}

func (pingRoutes) Register(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealth(t *testing.T) {
	ok := HealthCheck{Name: "redis", Check: func(context.Context) error { return nil }}
	down := HealthCheck{Name: "kafka", Check: func(context.Context) error { return errors.New("no brokers") }}

	tests := []struct {
		name   string
		checks []HealthCheck
		status int
		state  string
	}{
		{"no checks", nil, http.StatusOK, "ok"},
		{"all healthy", []HealthCheck{ok}, http.StatusOK, "ok"},
		{"one failing", []HealthCheck{ok, down}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(discard(), prometheus.NewRegistry(), tt.checks)
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
			testutil.AssertStatus(t, rr, tt.status)
			testutil.AssertJSONContains(t, rr, "status", tt.state)
		})
	}
}

func TestMetricsAndRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "recon_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	router := NewRouter(discard(), reg, nil, pingRoutes{})

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(t, rr)
	assert.Contains(t, rr.Body.String(), "recon_test_total 1")

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/ping"))
	testutil.AssertStatus(t, rr, http.StatusNoContent)
}
