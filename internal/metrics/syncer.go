package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncerProcessBlockTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "process_block_total",
		Help:      "Count of block processing attempts.",
	}, []string{"state", "status"})
	syncerProcessBlockDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "process_block_duration_seconds",
		Help:      "Duration of processing one block, commits included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"state", "status"})
	syncerMatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "matched_transactions_total",
		Help:      "Count of transactions matched against address rules.",
	})
	syncerCommittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "sink_commits_total",
		Help:      "Count of sink commits by sink and outcome.",
	}, []string{"sink", "status"})
	syncerProgressHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "progress_height",
		Help:      "Last fully committed block height.",
	})
	syncerChainTip = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "chain_tip_height",
		Help:      "Latest block height reported by the node.",
	})
	syncerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "state",
		Help:      "Current sync engine state, 1 for the active one.",
	}, []string{"state"})
)

// Syncer tracks metrics for the sync engine.
type Syncer struct{}

// NewSyncer constructs a Syncer collector.
func NewSyncer() *Syncer {
	return &Syncer{}
}

// ObserveBlock records processing of a single block.
func (Syncer) ObserveBlock(state string, err error, started time.Time) {
	s := status(err)
	syncerProcessBlockTotal.WithLabelValues(state, s).Inc()
	syncerProcessBlockDuration.WithLabelValues(state, s).Observe(time.Since(started).Seconds())
}

// ObserveMatched counts matched transactions.
func (Syncer) ObserveMatched(n int) {
	syncerMatchedTotal.Add(float64(n))
}

// ObserveCommit records the outcome of a sink commit.
func (Syncer) ObserveCommit(sink string, err error) {
	syncerCommittedTotal.WithLabelValues(sink, status(err)).Inc()
}

// SetProgress records the last committed height.
func (Syncer) SetProgress(height uint64) {
	syncerProgressHeight.Set(float64(height))
}

// SetChainTip records the node's latest height.
func (Syncer) SetChainTip(height uint64) {
	syncerChainTip.Set(float64(height))
}

// SetState marks state as the active one.
func (Syncer) SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		syncerState.WithLabelValues(s).Set(v)
	}
}
