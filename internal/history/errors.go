package history

import "errors"

// Sentinel errors for the history mirror. Check with errors.Is().
var (
	// ErrDisabled indicates the history mirror is disabled in config.
	ErrDisabled = errors.New("history: disabled in configuration")

	// ErrNotConnected indicates the client is not connected to the
	// history server.
	ErrNotConnected = errors.New("history: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("history: connection failed")
)
