package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records request rate, errors and duration. The collectors are
// scoped to the registry so separate servers (or test servers) never
// double-register.
func Metrics(reg *prometheus.Registry) gin.HandlerFunc {
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "Total number of HTTP request errors",
		},
		[]string{"method", "path", "status", "error_type"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "Number of HTTP requests currently being served",
	})

	reg.MustRegister(requestsTotal, errorsTotal, duration, inFlight)

	return func(c *gin.Context) {
		start := time.Now()
		inFlight.Inc()

		c.Next()

		inFlight.Dec()

		status := c.Writer.Status()
		statusStr := strconv.Itoa(status)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		requestsTotal.WithLabelValues(method, path, statusStr).Inc()

		if status >= 400 && status < 500 {
			errorsTotal.WithLabelValues(method, path, statusStr, "client").Inc()
		} else if status >= 500 {
			errorsTotal.WithLabelValues(method, path, statusStr, "server").Inc()
		}

		duration.WithLabelValues(method, path, statusStr).Observe(time.Since(start).Seconds())
	}
}
