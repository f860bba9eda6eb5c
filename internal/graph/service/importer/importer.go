// Package importer drives block ingestion: it plans height ranges from the
// durable checkpoint, fetches and decodes blocks, projects them into graph
// mutations, and advances the checkpoint only after every mutation in the
// batch is confirmed durable.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/chaingraph/chaingraph-backend/internal/clock"
	"github.com/chaingraph/chaingraph-backend/internal/graph/chain"
	"github.com/chaingraph/chaingraph-backend/internal/graph/checkpoint"
	"github.com/chaingraph/chaingraph-backend/internal/graph/projector"
	"github.com/chaingraph/chaingraph-backend/pkg/workerpool"
)

// FatalError marks failures the loop must not retry: checkpoint persistence
// failures and decode failures that exhausted their retry limit. Run returns
// them so the process can exit and signal the operator.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err wraps a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Service is the import driver. A single Service owns the checkpoint; running
// several against the same store is unsupported.
type Service struct {
	logger      *zap.Logger
	cfg         Config
	source      ChainSource
	writer      GraphWriter
	checkpoints CheckpointStore
	metrics     Metrics

	sleep   func(context.Context, time.Duration) error
	backoff backoff.BackOff

	// cursor mirrors the last durable checkpoint; nil until the first commit
	// when no checkpoint existed at startup.
	cursor         *checkpoint.Record
	decodeFailures map[uint64]int
}

// NewService builds an import driver with the given collaborators.
func NewService(
	cfg Config,
	source ChainSource,
	writer GraphWriter,
	checkpoints CheckpointStore,
	metrics Metrics,
	logger *zap.Logger,
) (*Service, error) {
	cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		return nil, errors.New("importer metrics is required")
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0

	return &Service{
		logger:         logger.With(zap.String("mode", string(cfg.Mode))),
		cfg:            cfg,
		source:         source,
		writer:         writer,
		checkpoints:    checkpoints,
		metrics:        metrics,
		sleep:          clock.SleepWithContext,
		backoff:        b,
		decodeFailures: make(map[uint64]int),
	}, nil
}

// Run executes the import loop until the context is canceled, a fatal error
// occurs, or (in range mode) the end height is committed. Transient failures
// abort the current batch without advancing the checkpoint and are retried
// with exponential backoff; replay is safe because every mutation is
// idempotent.
func (s *Service) Run(ctx context.Context) error {
	rec, ok, err := s.checkpoints.Load()
	if err != nil {
		return &FatalError{Err: fmt.Errorf("load checkpoint: %w", err)}
	}
	if ok {
		s.cursor = &rec
		s.metrics.SetCheckpointHeight(rec.Height)
		s.logger.Info("resuming from checkpoint",
			zap.Uint64("height", rec.Height),
			zap.String("hash", rec.Hash))
	} else {
		s.logger.Info("no checkpoint found, starting fresh",
			zap.Uint64("start_height", s.cfg.StartHeight))
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := s.run(ctx)
		if err != nil {
			if IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			d := s.backoff.NextBackOff()
			s.logger.Warn("run iteration failed, backing off",
				zap.Error(err), zap.Duration("sleep", d))
			if sleepErr := s.sleep(ctx, d); sleepErr != nil {
				return sleepErr
			}
			continue
		}
		s.backoff.Reset()

		if done {
			s.logger.Info("end height committed, import complete",
				zap.Uint64("end_height", s.cfg.EndHeight))
			return nil
		}
	}
}

// run performs one iteration: plan the next range, import it, commit. It
// returns done=true when range mode has committed the end height.
func (s *Service) run(ctx context.Context) (bool, error) {
	tip, err := s.source.TipHeight(ctx)
	if err != nil {
		return false, fmt.Errorf("query tip height: %w", err)
	}
	s.metrics.SetTipHeight(tip)

	if s.cursor != nil {
		if err := s.verifyCheckpoint(ctx); err != nil {
			return false, err
		}
	}

	next := uint64(0)
	if s.cfg.StartHeight > 0 {
		next = s.cfg.StartHeight + 1
	}
	if s.cursor != nil {
		next = s.cursor.Height + 1
	}

	end := tip
	if s.cfg.Mode == ModeRange && s.cfg.EndHeight < end {
		end = s.cfg.EndHeight
	}

	if next > end {
		if s.rangeDone() {
			return true, nil
		}
		s.logger.Info("caught up, waiting for new blocks",
			zap.Uint64("tip", tip), zap.Duration("poll_interval", s.cfg.PollInterval))
		return false, s.sleep(ctx, s.cfg.PollInterval)
	}

	batchEnd := next + s.cfg.BatchSize - 1
	if batchEnd > end {
		batchEnd = end
	}

	if err := s.importRange(ctx, next, batchEnd); err != nil {
		return false, err
	}
	return s.rangeDone(), nil
}

func (s *Service) rangeDone() bool {
	return s.cfg.Mode == ModeRange && s.cursor != nil && s.cursor.Height >= s.cfg.EndHeight
}

// importRange fetches and decodes [from, to] with bounded parallelism, then
// projects and applies each block sequentially in height order. The
// checkpoint is committed only after the whole batch is durable; any failure
// aborts the batch without partial checkpoint advance.
func (s *Service) importRange(ctx context.Context, from, to uint64) (err error) {
	heights := make([]uint64, 0, to-from+1)
	for h := from; h <= to; h++ {
		heights = append(heights, h)
	}

	started := time.Now()
	defer func() {
		s.metrics.ObserveBatch(err, len(heights), started)
	}()

	s.logger.Info("importing batch", zap.Uint64("from", from), zap.Uint64("to", to))

	blocks, err := workerpool.Map(ctx, s.cfg.FetchWorkers, heights, s.source.FetchBlock)
	if err != nil {
		return s.noteDecodeFailure(err)
	}

	for _, block := range blocks {
		mutation, projectErr := projector.Project(block)
		if projectErr != nil {
			return fmt.Errorf("project block %d: %w", block.Height, projectErr)
		}
		blockStarted := time.Now()
		applyErr := s.writer.ApplyBlock(ctx, mutation)
		s.metrics.ObserveBlock(applyErr, block.Height, blockStarted)
		if applyErr != nil {
			return fmt.Errorf("apply block %d: %w", block.Height, applyErr)
		}
	}

	last := blocks[len(blocks)-1]
	commitStarted := time.Now()
	commitErr := s.checkpoints.Commit(last.Height, last.Hash)
	s.metrics.ObserveCheckpoint(commitErr, last.Height, commitStarted)
	if commitErr != nil {
		// Continuing with an unpersisted checkpoint risks unbounded replay.
		return &FatalError{Err: fmt.Errorf("persist checkpoint at height %d: %w", last.Height, commitErr)}
	}

	s.cursor = &checkpoint.Record{Height: last.Height, Hash: last.Hash}
	s.metrics.SetCheckpointHeight(last.Height)
	clear(s.decodeFailures)

	s.logger.Info("batch committed",
		zap.Uint64("height", last.Height), zap.Int("blocks", len(blocks)))
	return nil
}

// noteDecodeFailure tracks repeated decode failures per height and escalates
// to a fatal halt once the retry limit is exhausted. Other fetch errors pass
// through unchanged and stay retryable.
func (s *Service) noteDecodeFailure(err error) error {
	var de *chain.DecodeError
	if !errors.As(err, &de) {
		return err
	}

	s.decodeFailures[de.Height]++
	attempts := s.decodeFailures[de.Height]
	s.logger.Error("block decode failed",
		zap.Uint64("height", de.Height),
		zap.Int("attempts", attempts),
		zap.Error(err))

	if attempts >= s.cfg.DecodeRetryLimit {
		return &FatalError{Err: fmt.Errorf("block %d failed to decode %d times: %w", de.Height, attempts, err)}
	}
	return err
}
