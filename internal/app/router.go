// Package app assembles the HTTP surface of the API process.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/ai-jd-matcher/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-jd-matcher/internal/config"
)

// readTimeout bounds the read-only endpoints.
const readTimeout = 30 * time.Second

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// ApplyReadiness copies the probes onto the server.
func ApplyReadiness(srv *httpserver.Server, c ReadinessChecks) {
	srv.DBCheck = c.DB
	srv.RedisCheck = c.Redis
	srv.TikaCheck = c.Tika
	srv.KafkaCheck = c.Kafka
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id", "ETag", "Location"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Analyses call the LLM; they are rate limited and get the long budget.
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
		wr.With(httpserver.TimeoutMiddleware(analysisTimeout(cfg))).Post("/v1/analyze", srv.AnalyzeHandler())
		wr.With(httpserver.TimeoutMiddleware(readTimeout)).Post("/v1/analyze/async", srv.AnalyzeAsyncHandler())
	})

	r.Group(func(rr chi.Router) {
		rr.Use(httpserver.TimeoutMiddleware(readTimeout))
		rr.Get("/v1/analyses", srv.ListAnalysesHandler())
		rr.Get("/v1/analyses/{job_id}", srv.AnalysisHandler())
		rr.Get("/v1/dimensions", srv.DimensionsHandler())
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/readyz", srv.ReadyzHandler())

	return httpserver.SecurityHeaders(r)
}

// analysisTimeout leaves a little room under the server write timeout so the
// client gets the JSON timeout body instead of a dropped connection.
func analysisTimeout(cfg config.Config) time.Duration {
	d := cfg.HTTPWriteTimeout - 5*time.Second
	if d <= 0 {
		return readTimeout
	}
	return d
}
