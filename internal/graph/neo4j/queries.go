package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const (
	storedBlockHashCypher = `
MATCH (b:Block {height: $height})
WHERE coalesce(b.stale, false) = false
RETURN b.hash
LIMIT 1`

	markStaleCypher = `
MATCH (b:Block)
WHERE b.height >= $height AND coalesce(b.stale, false) = false
SET b.stale = true
WITH b
OPTIONAL MATCH (b)-[:CONTAINS]->(t:Transaction)
SET t.stale = true`
)

// StoredBlockHash returns the hash of the non-stale block stored at the given
// height, or an empty string when no such block exists.
func (r *Repository) StoredBlockHash(ctx context.Context, height uint64) (string, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("stored_block_hash", err, start)
	}()

	session := r.readSession(ctx)
	defer func() {
		_ = session.Close(ctx)
	}()

	hash, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (string, error) {
		result, err := tx.Run(ctx, storedBlockHashCypher, map[string]any{"height": int64(height)})
		if err != nil {
			return "", err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return "", err
		}
		if len(records) == 0 {
			return "", nil
		}
		hash, ok := records[0].Values[0].(string)
		if !ok {
			return "", fmt.Errorf("unexpected hash type %T", records[0].Values[0])
		}
		return hash, nil
	})
	if err != nil {
		return "", fmt.Errorf("query stored block hash at height %d: %w", height, err)
	}
	return hash, nil
}

// MarkStaleFrom flags every non-stale block at or above the given height,
// along with its contained transactions, as stale. Used by reorg
// reconciliation before the canonical branch is reimported.
func (r *Repository) MarkStaleFrom(ctx context.Context, height uint64) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("mark_stale_from", err, start)
	}()

	session := r.writeSession(ctx)
	defer func() {
		_ = session.Close(ctx)
	}()

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, markStaleCypher, map[string]any{"height": int64(height)})
	})
	if err != nil {
		return fmt.Errorf("mark blocks stale from height %d: %w", height, err)
	}
	return nil
}
