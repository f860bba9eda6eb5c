// Package metrics defines prometheus collectors for the importer services.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importerBatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chaingraph",
		Subsystem: "importer",
		Name:      "batch_total",
		Help:      "Count of imported batches.",
	}, []string{"status"})

	importerBatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chaingraph",
		Subsystem: "importer",
		Name:      "batch_duration_seconds",
		Help:      "Duration of importing a batch of blocks.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	importerBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chaingraph",
		Subsystem: "importer",
		Name:      "batch_size",
		Help:      "Number of blocks per imported batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1..2048
	})

	importerBlockDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chaingraph",
		Subsystem: "importer",
		Name:      "block_duration_seconds",
		Help:      "Duration of projecting and applying a single block.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	importerCheckpointTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chaingraph",
		Subsystem: "importer",
		Name:      "checkpoint_commit_total",
		Help:      "Count of checkpoint commits.",
	}, []string{"status"})

	importerCheckpointHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chaingraph",
		Subsystem: "importer",
		Name:      "checkpoint_height",
		Help:      "Height of the last committed checkpoint.",
	})

	importerTipHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chaingraph",
		Subsystem: "importer",
		Name:      "chain_tip_height",
		Help:      "Latest chain tip height reported by the node.",
	})

	importerReorgTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chaingraph",
		Subsystem: "importer",
		Name:      "reorg_total",
		Help:      "Count of detected chain reorganizations.",
	})
)

// Importer records importer progress and batch outcomes.
type Importer struct{}

// NewImporter constructs the importer metrics collector.
func NewImporter() *Importer {
	return &Importer{}
}

func (m Importer) ObserveBatch(err error, blocks int, started time.Time) {
	status := statusLabel(err)
	importerBatchTotal.WithLabelValues(status).Inc()
	importerBatchDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	importerBatchSize.Observe(float64(blocks))
}

func (m Importer) ObserveBlock(err error, height uint64, started time.Time) {
	importerBlockDuration.WithLabelValues(statusLabel(err)).Observe(time.Since(started).Seconds())
}

func (m Importer) ObserveCheckpoint(err error, height uint64, started time.Time) {
	importerCheckpointTotal.WithLabelValues(statusLabel(err)).Inc()
}

func (m Importer) SetTipHeight(height uint64) {
	importerTipHeight.Set(float64(height))
}

func (m Importer) SetCheckpointHeight(height uint64) {
	importerCheckpointHeight.Set(float64(height))
}

func (m Importer) IncReorg() {
	importerReorgTotal.Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
