package importer

import (
	"fmt"
	"time"
)

// Mode selects how the importer terminates.
type Mode string

const (
	// ModeContinuous follows the chain tip indefinitely.
	ModeContinuous Mode = "continuous"
	// ModeRange terminates once the configured end height is committed.
	ModeRange Mode = "range"
)

const (
	defaultBatchSize        = 100
	defaultPollInterval     = time.Minute
	defaultFetchWorkers     = 8
	defaultDecodeRetryLimit = 3
)

// Config is the importer's configuration surface.
type Config struct {
	// StartHeight is the initial checkpoint seed: blocks at or below it are
	// assumed present and import begins at StartHeight+1. With the default 0
	// import begins at the genesis block. Ignored once a durable checkpoint
	// exists.
	StartHeight uint64
	// EndHeight is the inclusive final height in range mode.
	EndHeight uint64
	Mode      Mode
	// BatchSize bounds how many blocks are imported per checkpoint commit.
	// Larger batches amortize checkpoint writes at the cost of a larger
	// replay window after a crash.
	BatchSize    uint64
	PollInterval time.Duration
	// FetchWorkers bounds read-side fetch/decode parallelism within a batch.
	// Projection is always applied sequentially in height order.
	FetchWorkers int
	// DecodeRetryLimit is how many times a height may fail decoding before
	// the pipeline halts for operator intervention.
	DecodeRetryLimit int
}

func (c *Config) withDefaults() {
	if c.Mode == "" {
		c.Mode = ModeContinuous
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.FetchWorkers <= 0 {
		c.FetchWorkers = defaultFetchWorkers
	}
	if c.DecodeRetryLimit <= 0 {
		c.DecodeRetryLimit = defaultDecodeRetryLimit
	}
}

func (c Config) validate() error {
	switch c.Mode {
	case ModeContinuous:
	case ModeRange:
		if c.EndHeight <= c.StartHeight {
			return fmt.Errorf("range mode requires end height above start height (start %d, end %d)", c.StartHeight, c.EndHeight)
		}
	default:
		return fmt.Errorf("unsupported mode %q", c.Mode)
	}
	return nil
}
