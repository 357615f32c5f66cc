package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Requests counts exchanges with the DCS server by path and status.
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcs_client_requests_total",
			Help: "Requests issued to the DCS server, by path and status.",
		},
		[]string{"path", "status"},
	)

	// Latency observes request duration by path.
	Latency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dcs_client_request_duration_seconds",
			Help:    "DCS request latency, by path.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// RateLimitWait accumulates time spent honoring 429 advisories.
	RateLimitWait = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dcs_client_rate_limit_wait_seconds_total",
			Help: "Total time spent waiting on server rate-limit advisories.",
		},
	)
)

// Register registers the client metrics with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(Requests, Latency, RateLimitWait)
}

// Metrics records request counts and latency for every exchange.
func Metrics() Wrapper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()

			resp, err := next.RoundTrip(req)

			path := req.URL.Path
			Latency.WithLabelValues(path).Observe(time.Since(start).Seconds())
			status := "error"
			if err == nil {
				status = strconv.Itoa(resp.StatusCode)
			}
			Requests.WithLabelValues(path, status).Inc()
			return resp, err
		})
	}
}
