package model

import "time"

// BlockMutation is the complete idempotent mutation set projected from one
// decoded block. Every entry merges by natural key, so applying the same
// mutation set any number of times converges to the same graph state.
type BlockMutation struct {
	Block     BlockUpsert
	Txs       []TxUpsert
	Addresses []AddressUpsert
	Outputs   []OutputEdge
	Spends    []SpendEdge
	Coinbase  []CoinbaseEdge
}

// BlockUpsert merges a Block node by hash.
type BlockUpsert struct {
	Hash      string
	Height    uint64
	Timestamp time.Time
	Size      uint32
	TxCount   uint32
}

// TxUpsert merges a Transaction node by txid plus its CONTAINS edge from the
// enclosing block.
type TxUpsert struct {
	TxID      string
	BlockHash string
	Timestamp time.Time
	Size      uint32
}

// AddressUpsert merges an Address node by address string. FirstSeen carries
// the candidate timestamp; the store keeps the minimum ever written.
type AddressUpsert struct {
	Address   string
	FirstSeen time.Time
}

// OutputEdge merges an OUTPUTS_TO relationship keyed by (txid, vout, address).
type OutputEdge struct {
	TxID    string
	Vout    uint32
	Address string
	Value   uint64
}

// SpendEdge merges a SPENT_IN relationship keyed by (prev txid, vout). The
// producing transaction node is merged by key as well, so the edge may be
// created before that transaction's own block has been imported.
type SpendEdge struct {
	PrevTxID string
	PrevVout uint32
	TxID     string
}

// CoinbaseEdge links the singleton Coinbase marker node to a block reward
// transaction in place of a spend edge.
type CoinbaseEdge struct {
	TxID string
}
