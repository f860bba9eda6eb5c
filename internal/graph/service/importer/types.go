package importer

import (
	"context"
	"time"

	"github.com/chaingraph/chaingraph-backend/internal/graph/checkpoint"
	"github.com/chaingraph/chaingraph-backend/internal/graph/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// ChainSource provides chain data from the node.
	ChainSource interface {
		TipHeight(ctx context.Context) (uint64, error)
		BlockHash(ctx context.Context, height uint64) (string, error)
		FetchBlock(ctx context.Context, height uint64) (*model.DecodedBlock, error)
	}

	// GraphWriter applies idempotent mutation sets to the graph store.
	GraphWriter interface {
		ApplyBlock(ctx context.Context, m model.BlockMutation) error
		StoredBlockHash(ctx context.Context, height uint64) (string, error)
		MarkStaleFrom(ctx context.Context, height uint64) error
	}

	// CheckpointStore persists durable import progress.
	CheckpointStore interface {
		Load() (checkpoint.Record, bool, error)
		Commit(height uint64, hash string) error
		Reset(height uint64, hash string) error
	}

	// Metrics records importer progress and outcomes.
	Metrics interface {
		ObserveBatch(err error, blocks int, started time.Time)
		ObserveBlock(err error, height uint64, started time.Time)
		ObserveCheckpoint(err error, height uint64, started time.Time)
		SetTipHeight(height uint64)
		SetCheckpointHeight(height uint64)
		IncReorg()
	}
)
