package core

import (
	"errors"
	"fmt"
)

// ErrQueueClosed is returned when an operation is attempted on a queue that
// has already been closed.
var ErrQueueClosed = errors.New("queue is closed")

// FatalError is a custom error type for failures of the queue substrate
// itself: filesystem operations or archive encoding/decoding. Fatal errors
// abort the current delivery immediately and are never retried or split.
type FatalError struct {
	Op  string // e.g., "encode", "decode", "fs"
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal %s error: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// NewFatalError wraps err as a FatalError for the given operation.
func NewFatalError(op string, err error) *FatalError {
	return &FatalError{Op: op, Err: err}
}

// IsFatal checks if an error is a FatalError.
func IsFatal(err error) bool {
	var fatalError *FatalError
	// Use errors.As to check if the error (or any error in its chain) is a FatalError.
	return errors.As(err, &fatalError)
}

// CommitError reports a batch that exhausted its delivery budget and was
// moved to the error directory for manual inspection.
type CommitError struct {
	Dir      string // directory holding the quarantined archives
	Requests int    // number of archives quarantined
	Err      error  // last delivery error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed for %d request(s), batch moved to %s: %v", e.Requests, e.Dir, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// AsCommitError extracts a CommitError from an error chain.
func AsCommitError(err error) (*CommitError, bool) {
	var commitError *CommitError
	if errors.As(err, &commitError) {
		return commitError, true
	}
	return nil, false
}
