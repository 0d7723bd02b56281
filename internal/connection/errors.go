package connection

import "errors"

// Domain-specific errors for connection operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when publishing while the session is down.
	// The caller is expected to buffer the message, not retry.
	ErrNotConnected = errors.New("connection: not connected")

	// ErrConnectFailed is returned when a connection attempt fails.
	ErrConnectFailed = errors.New("connection: connect failed")

	// ErrPublishFailed is returned when the transport rejects a publish.
	ErrPublishFailed = errors.New("connection: publish failed")

	// ErrSubscribeFailed is returned when a command subscription fails.
	ErrSubscribeFailed = errors.New("connection: subscribe failed")

	// ErrMissingCertificate is returned when a TLS mode requires certificate
	// files that are absent. The connection is refused locally, before any
	// network traffic.
	ErrMissingCertificate = errors.New("connection: required certificate file missing")

	// ErrInvalidQoS is returned for QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("connection: invalid QoS level (must be 0, 1, or 2)")
)
