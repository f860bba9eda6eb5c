package bitcoin

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/chaingraph/chaingraph-backend/internal/graph/chain"
	"github.com/chaingraph/chaingraph-backend/internal/graph/model"
	"github.com/chaingraph/chaingraph-backend/pkg/safe"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

// RPC is the subset of node RPC operations the source needs.
type RPC interface {
	GetBlockCount() (int64, error)
	GetBlockHash(blockHeight int64) (*chainhash.Hash, error)
	GetBlockVerboseTx(blockHash *chainhash.Hash) (*btcjson.GetBlockVerboseTxResult, error)
}

// Source fetches and decodes blocks from a Bitcoin node. It implements the
// import driver's ChainSource contract.
type Source struct {
	rpc     RPC
	decoder *Decoder
}

// NewSource creates a Source over the given RPC client and decoder.
func NewSource(rpc RPC, decoder *Decoder) *Source {
	return &Source{rpc: rpc, decoder: decoder}
}

// TipHeight returns the node's current chain tip height.
func (s *Source) TipHeight(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count, err := s.rpc.GetBlockCount()
	if err != nil {
		return 0, fmt.Errorf("get block count: %w", err)
	}
	height, err := safe.Uint64(count)
	if err != nil {
		return 0, fmt.Errorf("block count overflow: %w", err)
	}
	return height, nil
}

// BlockHash returns the hash of the block at the given height. A height the
// node does not have yet maps to chain.ErrNotFoundAhead.
func (s *Source) BlockHash(ctx context.Context, height uint64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if height > math.MaxInt64 {
		return "", fmt.Errorf("block height %d exceeds rpc limit", height)
	}
	hash, err := s.rpc.GetBlockHash(int64(height))
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("height %d: %w", height, chain.ErrNotFoundAhead)
		}
		return "", fmt.Errorf("get block hash at height %d: %w", height, err)
	}
	return hash.String(), nil
}

// FetchBlock retrieves and decodes the block at the given height.
func (s *Source) FetchBlock(ctx context.Context, height uint64) (*model.DecodedBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if height > math.MaxInt64 {
		return nil, fmt.Errorf("block height %d exceeds rpc limit", height)
	}
	hash, err := s.rpc.GetBlockHash(int64(height))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("height %d: %w", height, chain.ErrNotFoundAhead)
		}
		return nil, fmt.Errorf("get block hash at height %d: %w", height, err)
	}
	src, err := s.rpc.GetBlockVerboseTx(hash)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("block %s: %w", hash, chain.ErrNotFoundAhead)
		}
		return nil, fmt.Errorf("get block %s: %w", hash, err)
	}

	block, err := s.decoder.Decode(src)
	if err != nil {
		return nil, err
	}
	if block.Height != height {
		return nil, &chain.DecodeError{
			Height: height,
			Hash:   block.Hash,
			Err:    fmt.Errorf("node returned height %d for requested height %d", block.Height, height),
		}
	}
	return block, nil
}

// isNotFound matches the node error codes returned for heights or hashes the
// node has not indexed yet.
func isNotFound(err error) bool {
	var rpcErr *btcjson.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	switch rpcErr.Code {
	case btcjson.ErrRPCOutOfRange, btcjson.ErrRPCBlockNotFound, btcjson.ErrRPCInvalidParameter:
		return true
	default:
		return false
	}
}
