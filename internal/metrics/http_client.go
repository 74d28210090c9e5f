package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http_client",
		Name:      "requests_total",
		Help:      "Count of requests to external HTTP APIs.",
	}, []string{"service", "operation", "status"})
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http_client",
		Name:      "request_duration_seconds",
		Help:      "Duration of requests to external HTTP APIs.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service", "operation", "status"})
)

// HTTPClient tracks calls made to one external HTTP service.
type HTTPClient struct {
	service string
}

// NewHTTPClient constructs a collector labelled with service.
func NewHTTPClient(service string) *HTTPClient {
	return &HTTPClient{service: orUnknown(service)}
}

// Observe records a single request outcome and duration.
func (m HTTPClient) Observe(operation string, err error, started time.Time) {
	s := status(err)
	httpRequestsTotal.WithLabelValues(m.service, operation, s).Inc()
	httpRequestDuration.WithLabelValues(m.service, operation, s).Observe(time.Since(started).Seconds())
}
