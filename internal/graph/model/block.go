// Package model defines domain models for graph ingestion.
package model

import "time"

// DecodedBlock is the structured in-memory form of a block fetched from the
// node: ordered transactions, each with ordered inputs and outputs.
type DecodedBlock struct {
	Hash      string
	Height    uint64
	Timestamp time.Time
	Size      uint32
	Txs       []DecodedTx
}

// DecodedTx is a single transaction within a decoded block.
type DecodedTx struct {
	TxID    string
	Size    uint32
	Inputs  []DecodedInput
	Outputs []DecodedOutput
}

// DecodedInput references a prior transaction output being spent, or marks
// the coinbase input of a block reward transaction.
type DecodedInput struct {
	PrevTxID   string
	PrevVout   uint32
	IsCoinbase bool
}

// DecodedOutput is a new value assignment created by a transaction. An output
// may carry zero addresses (e.g. OP_RETURN) or several (bare multisig).
type DecodedOutput struct {
	Index     uint32
	Value     uint64
	Addresses []string
}
