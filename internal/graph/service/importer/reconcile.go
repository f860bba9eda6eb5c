package importer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chaingraph/chaingraph-backend/internal/graph/chain"
	"github.com/chaingraph/chaingraph-backend/internal/graph/checkpoint"
)

// verifyCheckpoint checks that the checkpointed block is still on the node's
// canonical chain before extending it. On a mismatch the importer reconciles:
// it walks back to the divergence point, marks the abandoned branch stale,
// and resets the checkpoint so the canonical branch is reimported.
func (s *Service) verifyCheckpoint(ctx context.Context) error {
	srcHash, err := s.source.BlockHash(ctx, s.cursor.Height)
	switch {
	case errors.Is(err, chain.ErrNotFoundAhead):
		// The node's tip fell below our checkpoint; the checkpointed block
		// can no longer be canonical.
	case err != nil:
		return fmt.Errorf("verify checkpoint at height %d: %w", s.cursor.Height, err)
	case srcHash == s.cursor.Hash:
		return nil
	}

	s.logger.Warn("checkpointed block no longer canonical, reconciling fork",
		zap.Uint64("height", s.cursor.Height),
		zap.String("checkpoint_hash", s.cursor.Hash),
		zap.String("source_hash", srcHash))
	s.metrics.IncReorg()

	return s.reconcile(ctx)
}

// reconcile finds the highest height where the stored and canonical hashes
// still agree and rolls progress back to it.
func (s *Service) reconcile(ctx context.Context) error {
	floor := s.cfg.StartHeight

	for h := s.cursor.Height; h > floor; h-- {
		if err := ctx.Err(); err != nil {
			return err
		}

		stored, err := s.writer.StoredBlockHash(ctx, h-1)
		if err != nil {
			return fmt.Errorf("read stored hash at height %d: %w", h-1, err)
		}
		if stored == "" {
			continue
		}

		srcHash, err := s.source.BlockHash(ctx, h-1)
		if errors.Is(err, chain.ErrNotFoundAhead) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read source hash at height %d: %w", h-1, err)
		}

		if stored == srcHash {
			return s.rollbackTo(ctx, h-1, stored)
		}
	}

	// Everything above the configured start diverged; re-anchor on the
	// canonical hash at the floor.
	srcHash, err := s.source.BlockHash(ctx, floor)
	if err != nil {
		return fmt.Errorf("read source hash at start height %d: %w", floor, err)
	}
	return s.rollbackTo(ctx, floor, srcHash)
}

func (s *Service) rollbackTo(ctx context.Context, height uint64, hash string) error {
	if err := s.writer.MarkStaleFrom(ctx, height+1); err != nil {
		return fmt.Errorf("mark stale branch above height %d: %w", height, err)
	}
	if err := s.checkpoints.Reset(height, hash); err != nil {
		return &FatalError{Err: fmt.Errorf("reset checkpoint to height %d: %w", height, err)}
	}

	s.cursor = &checkpoint.Record{Height: height, Hash: hash}
	s.metrics.SetCheckpointHeight(height)
	s.logger.Warn("rolled back to divergence point, reimporting canonical branch",
		zap.Uint64("height", height), zap.String("hash", hash))
	return nil
}
