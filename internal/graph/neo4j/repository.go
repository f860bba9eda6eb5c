// Package neo4j persists projected block mutations into a Neo4j graph.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

// Metrics records metrics for graph store operations.
type Metrics interface {
	Observe(operation string, err error, started time.Time)
}

// Repository applies idempotent graph mutations over the Neo4j bolt driver.
// All writes merge by natural key, so replaying a block converges to the
// same graph state.
type Repository struct {
	driver  neo4j.DriverWithContext
	metrics Metrics
}

// NewRepository opens a driver for the given bolt URI.
func NewRepository(uri, username, password string, metrics Metrics) (*Repository, error) {
	if uri == "" {
		return nil, errors.New("neo4j uri is required")
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("open neo4j driver: %w", err)
	}

	return &Repository{driver: driver, metrics: metrics}, nil
}

// Ping verifies connectivity to the graph store.
func (r *Repository) Ping(ctx context.Context) error {
	start := time.Now()
	err := r.driver.VerifyConnectivity(ctx)
	r.metrics.Observe("ping", err, start)
	if err != nil {
		return fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return nil
}

// Close releases the underlying driver.
func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func (r *Repository) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
}

func (r *Repository) readSession(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
}
