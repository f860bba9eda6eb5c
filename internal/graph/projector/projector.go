// Package projector maps decoded blocks to idempotent graph mutation sets.
package projector

import (
	"fmt"
	"sort"

	"github.com/chaingraph/chaingraph-backend/internal/graph/model"
	"github.com/chaingraph/chaingraph-backend/pkg/safe"
)

// Project builds the full mutation set for one decoded block. Projection is
// pure and deterministic: the same decoded block always yields an identical
// mutation set, and every mutation merges by natural key, so redelivering a
// block after a crash replays safely.
func Project(block *model.DecodedBlock) (model.BlockMutation, error) {
	txCount, err := safe.Uint32(len(block.Txs))
	if err != nil {
		return model.BlockMutation{}, fmt.Errorf("transaction count of block %s: %w", block.Hash, err)
	}

	m := model.BlockMutation{
		Block: model.BlockUpsert{
			Hash:      block.Hash,
			Height:    block.Height,
			Timestamp: block.Timestamp,
			Size:      block.Size,
			TxCount:   txCount,
		},
		Txs: make([]model.TxUpsert, 0, len(block.Txs)),
	}

	seen := make(map[string]struct{})

	for _, tx := range block.Txs {
		m.Txs = append(m.Txs, model.TxUpsert{
			TxID:      tx.TxID,
			BlockHash: block.Hash,
			Timestamp: block.Timestamp,
			Size:      tx.Size,
		})

		for _, in := range tx.Inputs {
			if in.IsCoinbase {
				m.Coinbase = append(m.Coinbase, model.CoinbaseEdge{TxID: tx.TxID})
				continue
			}
			m.Spends = append(m.Spends, model.SpendEdge{
				PrevTxID: in.PrevTxID,
				PrevVout: in.PrevVout,
				TxID:     tx.TxID,
			})
		}

		for _, out := range tx.Outputs {
			for _, addr := range out.Addresses {
				if _, ok := seen[addr]; !ok {
					seen[addr] = struct{}{}
					m.Addresses = append(m.Addresses, model.AddressUpsert{
						Address:   addr,
						FirstSeen: block.Timestamp,
					})
				}
				m.Outputs = append(m.Outputs, model.OutputEdge{
					TxID:    tx.TxID,
					Vout:    out.Index,
					Address: addr,
					Value:   out.Value,
				})
			}
		}
	}

	// Canonical order, so equal blocks project to equal mutation sets.
	sort.Slice(m.Addresses, func(i, j int) bool {
		return m.Addresses[i].Address < m.Addresses[j].Address
	})

	return m, nil
}
