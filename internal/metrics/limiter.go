package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	limiterWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "limiter",
		Name:      "waits_total",
		Help:      "Count of rate limiter admissions.",
	}, []string{"limiter", "status"})
	limiterWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "limiter",
		Name:      "wait_duration_seconds",
		Help:      "Time spent waiting for a rate limiter slot.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"limiter", "status"})
)

// Limiter tracks waits on one rate limiter.
type Limiter struct {
	name string
}

// NewLimiter creates a collector for the named limiter.
func NewLimiter(name string) *Limiter {
	return &Limiter{name: orUnknown(name)}
}

// ObserveWait records how long a caller waited for its slot.
func (m Limiter) ObserveWait(err error, started time.Time) {
	s := status(err)
	limiterWaitsTotal.WithLabelValues(m.name, s).Inc()
	limiterWaitDuration.WithLabelValues(m.name, s).Observe(time.Since(started).Seconds())
}
