package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Total HTTP requests partitioned by method, route, and status code
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	// Request duration in seconds partitioned by method, route, and status code
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Dispatch cycles partitioned by terminal result
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_dispatch_total",
			Help: "Total number of completed dispatch cycles by result",
		},
		[]string{"result"},
	)

	// Provider call latency partitioned by provider name and success
	providerSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_provider_send_duration_seconds",
			Help:    "Provider send call latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Due messages claimed by the most recent sweep
	dispatchBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_dispatch_backlog",
			Help: "Number of due messages claimed by the last scheduler sweep",
		},
	)
)

// Metrics returns a Fiber v3 middleware that records basic Prometheus metrics.
// Labels are kept low-cardinality by using the matched route path when available.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Call the next handler in the chain
		err := c.Next()

		status := c.Response().StatusCode()
		method := c.Method()
		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path // Use route template to avoid high cardinality
		}

		labels := prometheus.Labels{
			"method": method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())

		return err
	}
}

// ObserveDispatch counts one finished dispatch cycle under its result label
// (delivered, suppressed, exhausted, deferred, retried, error).
func ObserveDispatch(result string) {
	dispatchTotal.WithLabelValues(result).Inc()
}

// ObserveProviderSend records one provider call latency
func ObserveProviderSend(provider string, elapsed time.Duration) {
	providerSendDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// SetDispatchBacklog records how many due messages the last sweep claimed
func SetDispatchBacklog(n int) {
	dispatchBacklog.Set(float64(n))
}
