// Package chain defines types and errors shared between the chain source and
// the import driver.
package chain

import (
	"errors"
	"fmt"
)

// ErrNotFoundAhead reports a request for a height the node does not have yet.
// Callers should wait and poll again rather than treat it as a failure.
var ErrNotFoundAhead = errors.New("block not available yet")

// DecodeError reports malformed block or transaction data returned by the
// node. It is fatal for the affected block: the batch must be aborted and
// retried, never silently skipped.
type DecodeError struct {
	Height uint64
	Hash   string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode block %d (%s): %v", e.Height, e.Hash, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
