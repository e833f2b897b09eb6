// Package app assembles the HTTP router and process wiring.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/optimusrun/optimus/internal/adapter/httpserver"
	"github.com/optimusrun/optimus/internal/adapter/observability"
	"github.com/optimusrun/optimus/internal/config"
	"github.com/optimusrun/optimus/internal/domain"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
// The queue and language list feed the queue-depth gauges, sampled on each
// metrics scrape.
func BuildRouter(cfg config.Config, srv *httpserver.Server, depths observability.DepthReader, langs []domain.Language) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Rate limit the mutating endpoints only.
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		wr.Post("/execute", srv.ExecuteHandler())
		wr.Post("/job/{id}/cancel", srv.CancelHandler())
	})

	r.Get("/job/{id}", srv.JobHandler())
	r.Get("/job/{id}/debug", srv.DebugHandler())

	r.Get("/health", srv.HealthHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.SampleQueueDepths(r.Context(), depths, langs)
		promhttp.Handler().ServeHTTP(w, r)
	})

	return httpserver.SecurityHeaders(r)
}
