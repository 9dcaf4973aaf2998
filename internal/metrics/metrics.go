// Package metrics exposes Prometheus collectors for sitemap generation runs.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	fetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemaps_fetch_requests_total",
			Help: "Upstream HTTP requests, labeled by host and status class.",
		},
		[]string{"host", "status"},
	)

	fetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemaps_fetch_retries_total",
			Help: "Transport-level retries, labeled by host and reason.",
		},
		[]string{"host", "reason"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitemaps_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemaps_pages_total",
			Help: "Indexable pages discovered, labeled by worker and module.",
		},
		[]string{"worker", "module"},
	)

	sitemapsBuiltTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemaps_built_total",
			Help: "Sitemap documents produced, labeled by worker.",
		},
		[]string{"worker"},
	)

	sitemapsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemaps_dropped_total",
			Help: "Sitemap documents beyond the worker-unit capacity ceiling, labeled by worker.",
		},
		[]string{"worker"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitemaps_uploads_total",
			Help: "Worker script uploads, labeled by worker and outcome.",
		},
		[]string{"worker", "outcome"},
	)

	runDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitemaps_run_duration_seconds",
			Help:    "Duration of a full generation run, labeled by outcome.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// StatusClass groups HTTP status codes into 2xx/3xx/4xx/5xx.
func StatusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one upstream response or transport failure ("error").
func ObserveFetch(host string, status string) {
	fetchRequestsTotal.WithLabelValues(host, status).Inc()
}

// ObserveFetchRetry records a transport-level retry.
func ObserveFetchRetry(host, reason string) {
	fetchRetriesTotal.WithLabelValues(host, reason).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObservePages adds the number of pages a module produced.
func ObservePages(worker, module string, count int) {
	pagesTotal.WithLabelValues(worker, module).Add(float64(count))
}

// ObserveSitemaps records built and dropped sitemap counts for a worker.
func ObserveSitemaps(worker string, built, dropped int) {
	sitemapsBuiltTotal.WithLabelValues(worker).Add(float64(built))
	if dropped > 0 {
		sitemapsDroppedTotal.WithLabelValues(worker).Add(float64(dropped))
	}
}

// ObserveUpload records the outcome of a script upload.
func ObserveUpload(worker, outcome string) {
	uploadsTotal.WithLabelValues(worker, outcome).Inc()
}

// ObserveRun records the duration of a whole run.
func ObserveRun(outcome string, duration time.Duration) {
	runDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Push sends the default registry to a Prometheus Pushgateway. Batch runs end
// before a scraper would see them, so this is how their metrics leave the process.
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if job == "" {
		job = "edge_sitemaps"
	}
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, route, rec.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
