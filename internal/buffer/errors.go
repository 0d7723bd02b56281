package buffer

import "errors"

var (
	// ErrInvalidCeiling indicates a non-positive ceiling was requested.
	ErrInvalidCeiling = errors.New("buffer ceiling must be positive")

	// ErrDrainAborted indicates the sink rejected a record mid-drain.
	// Already-delivered records stay in the buffer and may be redelivered.
	ErrDrainAborted = errors.New("drain aborted by sink")
)
