package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "Count of ledger operations.",
	}, []string{"operation", "driver", "status"})
	ledgerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "operation_duration_seconds",
		Help:      "Duration of ledger operations.",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"operation", "driver", "status"})
)

// Ledger tracks metrics for ledger store operations.
type Ledger struct {
	driver string
}

// NewLedger creates a Ledger metrics collector for the given SQL driver.
func NewLedger(driver string) *Ledger {
	return &Ledger{driver: orUnknown(driver)}
}

// Observe records duration and status of a ledger operation.
func (m Ledger) Observe(operation string, err error, started time.Time) {
	s := status(err)
	ledgerRequestsTotal.WithLabelValues(operation, m.driver, s).Inc()
	ledgerRequestDuration.WithLabelValues(operation, m.driver, s).Observe(time.Since(started).Seconds())
}
