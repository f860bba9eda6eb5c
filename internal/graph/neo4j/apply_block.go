package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/chaingraph/chaingraph-backend/internal/graph/model"
)

// Every statement merges by natural key. SPENT_IN merges the producing
// transaction node as well, so a spend edge can be created before the block
// containing the producing transaction has been imported; the authoritative
// upsert fills in its attributes later.
const (
	// The authoritative upsert also clears the stale flag: a block or
	// transaction re-mined on the canonical branch after a reorg must become
	// visible to StoredBlockHash again.
	blockCypher = `
MERGE (b:Block {hash: $hash})
SET b.height = $height,
    b.time = $time,
    b.size = $size,
    b.tx_count = $tx_count,
    b.stale = false`

	txCypher = `
MATCH (b:Block {hash: $block_hash})
UNWIND $txs AS tx
MERGE (t:Transaction {txid: tx.txid})
SET t.block_hash = $block_hash,
    t.time = tx.time,
    t.size = tx.size,
    t.stale = false
MERGE (b)-[:CONTAINS]->(t)`

	addressCypher = `
UNWIND $addresses AS a
MERGE (addr:Address {address: a.address})
ON CREATE SET addr.first_seen = a.first_seen
ON MATCH SET addr.first_seen =
    CASE WHEN addr.first_seen > a.first_seen THEN a.first_seen ELSE addr.first_seen END`

	outputCypher = `
UNWIND $outputs AS o
MATCH (t:Transaction {txid: o.txid})
MATCH (a:Address {address: o.address})
MERGE (t)-[r:OUTPUTS_TO {vout: o.vout}]->(a)
SET r.value = o.value`

	spendCypher = `
UNWIND $spends AS s
MERGE (prev:Transaction {txid: s.prev_txid})
MERGE (t:Transaction {txid: s.txid})
MERGE (prev)-[:SPENT_IN {vout: s.prev_vout}]->(t)`

	coinbaseCypher = `
MERGE (cb:Coinbase {id: $coinbase_id})
WITH cb
UNWIND $coinbase AS c
MATCH (t:Transaction {txid: c.txid})
MERGE (cb)-[:INPUTS_TO]->(t)`

	// Single marker node for miner-issued value with no real predecessor.
	coinbaseID = "coinbase"
)

// ApplyBlock writes the full mutation set of one block inside a single
// managed transaction: either every mutation for the block is durable or
// none is.
func (r *Repository) ApplyBlock(ctx context.Context, m model.BlockMutation) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("apply_block", err, start)
	}()

	session := r.writeSession(ctx)
	defer func() {
		_ = session.Close(ctx)
	}()

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, blockCypher, blockParams(m.Block)); err != nil {
			return nil, fmt.Errorf("merge block %s: %w", m.Block.Hash, err)
		}
		if len(m.Txs) > 0 {
			if _, err := tx.Run(ctx, txCypher, txParams(m.Block.Hash, m.Txs)); err != nil {
				return nil, fmt.Errorf("merge transactions of block %s: %w", m.Block.Hash, err)
			}
		}
		if len(m.Addresses) > 0 {
			if _, err := tx.Run(ctx, addressCypher, addressParams(m.Addresses)); err != nil {
				return nil, fmt.Errorf("merge addresses of block %s: %w", m.Block.Hash, err)
			}
		}
		if len(m.Outputs) > 0 {
			if _, err := tx.Run(ctx, outputCypher, outputParams(m.Outputs)); err != nil {
				return nil, fmt.Errorf("merge output edges of block %s: %w", m.Block.Hash, err)
			}
		}
		if len(m.Spends) > 0 {
			if _, err := tx.Run(ctx, spendCypher, spendParams(m.Spends)); err != nil {
				return nil, fmt.Errorf("merge spend edges of block %s: %w", m.Block.Hash, err)
			}
		}
		if len(m.Coinbase) > 0 {
			if _, err := tx.Run(ctx, coinbaseCypher, coinbaseParams(m.Coinbase)); err != nil {
				return nil, fmt.Errorf("merge coinbase edges of block %s: %w", m.Block.Hash, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("apply block %d (%s): %w", m.Block.Height, m.Block.Hash, err)
	}
	return nil
}

func blockParams(b model.BlockUpsert) map[string]any {
	return map[string]any{
		"hash":     b.Hash,
		"height":   int64(b.Height),
		"time":     b.Timestamp.Unix(),
		"size":     int64(b.Size),
		"tx_count": int64(b.TxCount),
	}
}

func txParams(blockHash string, txs []model.TxUpsert) map[string]any {
	rows := make([]map[string]any, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, map[string]any{
			"txid": tx.TxID,
			"time": tx.Timestamp.Unix(),
			"size": int64(tx.Size),
		})
	}
	return map[string]any{
		"block_hash": blockHash,
		"txs":        rows,
	}
}

func addressParams(addresses []model.AddressUpsert) map[string]any {
	rows := make([]map[string]any, 0, len(addresses))
	for _, a := range addresses {
		rows = append(rows, map[string]any{
			"address":    a.Address,
			"first_seen": a.FirstSeen.Unix(),
		})
	}
	return map[string]any{"addresses": rows}
}

func outputParams(outputs []model.OutputEdge) map[string]any {
	rows := make([]map[string]any, 0, len(outputs))
	for _, o := range outputs {
		rows = append(rows, map[string]any{
			"txid":    o.TxID,
			"vout":    int64(o.Vout),
			"address": o.Address,
			"value":   int64(o.Value),
		})
	}
	return map[string]any{"outputs": rows}
}

func spendParams(spends []model.SpendEdge) map[string]any {
	rows := make([]map[string]any, 0, len(spends))
	for _, s := range spends {
		rows = append(rows, map[string]any{
			"prev_txid": s.PrevTxID,
			"prev_vout": int64(s.PrevVout),
			"txid":      s.TxID,
		})
	}
	return map[string]any{"spends": rows}
}

func coinbaseParams(edges []model.CoinbaseEdge) map[string]any {
	rows := make([]map[string]any, 0, len(edges))
	for _, c := range edges {
		rows = append(rows, map[string]any{"txid": c.TxID})
	}
	return map[string]any{
		"coinbase_id": coinbaseID,
		"coinbase":    rows,
	}
}
