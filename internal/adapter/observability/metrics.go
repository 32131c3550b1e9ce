package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of LLM requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 60},
		},
		[]string{"provider"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "LLM tokens by kind (prompt, completion)",
		},
		[]string{"provider", "kind"},
	)

	MatchCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_cache_lookups_total",
			Help: "Match cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)
	MatchCacheWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "match_cache_write_failures_total",
			Help: "Best-effort match cache writes that failed",
		},
	)
	EvidenceFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "evidence_fallbacks_total",
			Help: "Resumes scored with the keyword fallback after evidence extraction failed",
		},
	)
	PrefilterRelaxationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prefilter_relaxations_total",
			Help: "Analyses where the experience filter was relaxed",
		},
	)
	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "End to end analysis duration",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)
	MatchScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "match_score",
			Help:    "Distribution of total match scores [0,100]",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	AnalysesEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analyses_enqueued_total",
			Help: "Analyses published for asynchronous processing",
		},
	)
	AnalysesCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyses_completed_total",
			Help: "Asynchronous analyses processed by workers",
		},
		[]string{"status"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AIRequestsTotal,
		AIRequestDuration,
		AITokensTotal,
		MatchCacheLookupsTotal,
		MatchCacheWriteFailuresTotal,
		EvidenceFallbacksTotal,
		PrefilterRelaxationsTotal,
		AnalysisDuration,
		MatchScoreHistogram,
		AnalysesEnqueuedTotal,
		AnalysesCompletedTotal,
	)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveAIRequest records one LLM call.
func ObserveAIRequest(provider, outcome string, d time.Duration) {
	AIRequestsTotal.WithLabelValues(provider, outcome).Inc()
	AIRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveTokens records prompt and completion token usage.
func ObserveTokens(provider string, prompt, completion int) {
	if prompt > 0 {
		AITokensTotal.WithLabelValues(provider, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		AITokensTotal.WithLabelValues(provider, "completion").Add(float64(completion))
	}
}

// CacheLookup records a match cache lookup outcome for a tier (redis, postgres).
func CacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	MatchCacheLookupsTotal.WithLabelValues(tier, result).Inc()
}

// CacheWriteFailed counts a failed best-effort cache write.
func CacheWriteFailed() { MatchCacheWriteFailuresTotal.Inc() }

// EvidenceFallback counts a resume scored by the keyword fallback.
func EvidenceFallback() { EvidenceFallbacksTotal.Inc() }

// PrefilterRelaxed counts a relaxed shortlist.
func PrefilterRelaxed() { PrefilterRelaxationsTotal.Inc() }

// ObserveAnalysis records the duration of one analysis.
func ObserveAnalysis(outcome string, d time.Duration) {
	AnalysisDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveScore records a total match score.
func ObserveScore(score int) {
	if score >= 0 && score <= 100 {
		MatchScoreHistogram.Observe(float64(score))
	}
}

// EnqueueAnalysis counts a published async analysis.
func EnqueueAnalysis() { AnalysesEnqueuedTotal.Inc() }

// CompleteAnalysis counts a worker outcome (completed, failed).
func CompleteAnalysis(status string) { AnalysesCompletedTotal.WithLabelValues(status).Inc() }
