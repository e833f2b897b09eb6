package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimus_jobs_submitted_total",
			Help: "Total number of jobs accepted for execution",
		},
		[]string{"language"},
	)
	JobsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimus_jobs_rejected_total",
			Help: "Total number of submissions rejected at validation",
		},
		[]string{"reason"},
	)
	JobsCancelledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimus_jobs_cancelled_total",
			Help: "Total number of cancellation requests accepted",
		},
		[]string{"source"},
	)
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimus_jobs_completed_total",
			Help: "Total number of jobs that reached a terminal result",
		},
		[]string{"language", "status"},
	)
	JobExecutionTimeMS = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optimus_job_execution_time_ms",
			Help:    "End-to-end job execution time in milliseconds",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"language"},
	)
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "optimus_queue_depth",
			Help: "Current main queue length per language",
		},
		[]string{"language"},
	)
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimus_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optimus_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"endpoint", "method"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(JobsSubmittedTotal)
	prometheus.MustRegister(JobsRejectedTotal)
	prometheus.MustRegister(JobsCancelledTotal)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobExecutionTimeMS)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		APIRequestsTotal.WithLabelValues(route, r.Method, httpStatusClass(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

func httpStatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
