package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	graphStoreOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chaingraph",
		Subsystem: "graph_store",
		Name:      "operations_total",
		Help:      "Count of graph store operations.",
	}, []string{"operation", "status"})

	graphStoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chaingraph",
		Subsystem: "graph_store",
		Name:      "operation_duration_seconds",
		Help:      "Duration of graph store operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// GraphStore tracks metrics for Neo4j repository operations.
type GraphStore struct{}

// NewGraphStore constructs a metrics collector for graph store operations.
func NewGraphStore() *GraphStore {
	return &GraphStore{}
}

// Observe records a single graph store operation outcome and duration.
func (m GraphStore) Observe(operation string, err error, started time.Time) {
	status := statusLabel(err)
	graphStoreOperationsTotal.WithLabelValues(operation, status).Inc()
	graphStoreOperationDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
