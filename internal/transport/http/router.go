// Package httptransport assembles the public router: health, metrics and the
// domain handlers.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recon/internal/platform/middleware"
	"recon/pkg/platform/httputil"
)

const healthTimeout = 2 * time.Second

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter wires /health, /metrics and every registrar. A nil gatherer
// serves the default registry.
func NewRouter(logger *slog.Logger, gatherer prometheus.Gatherer, checks []HealthCheck, routes ...Registrar) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(logger))
		r.Get("/health", healthHandler(checks))
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	})
	for _, route := range routes {
		route.Register(r)
	}
	return r
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	sorted := append([]HealthCheck(nil), checks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		if len(sorted) > 0 {
			resp.Checks = make(map[string]string, len(sorted))
		}
		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for _, c := range sorted {
			wg.Add(1)
			go func(c HealthCheck) {
				defer wg.Done()
				state := "ok"
				if err := c.Check(ctx); err != nil {
					state = err.Error()
				}
				mu.Lock()
				resp.Checks[c.Name] = state
				if state != "ok" {
					resp.Status = "degraded"
				}
				mu.Unlock()
			}(c)
		}
		wg.Wait()

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
