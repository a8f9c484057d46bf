package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the server's Prometheus instruments.
type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlens_http_requests_total",
			Help: "HTTP requests served, by path and status.",
		},
		[]string{"method", "path", "status"},
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatlens_http_request_duration_seconds",
			Help:    "HTTP request latency, by path.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func newMetrics() *metrics {
	return &metrics{
		requests: requestsTotal,
		duration: requestDuration,
	}
}

// instrument records request counts and latencies for API
// routes. Paths are recorded as registered patterns, not raw
// URLs, to keep label cardinality bounded.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if _, pattern := s.mux.Handler(r); pattern != "" {
			if i := strings.IndexByte(pattern, '/'); i >= 0 {
				path = pattern[i:]
			}
		}
		s.metrics.requests.WithLabelValues(
			r.Method, path, strconv.Itoa(rec.status),
		).Inc()
		s.metrics.duration.WithLabelValues(r.Method, path).
			Observe(time.Since(startedAt).Seconds())
	})
}
