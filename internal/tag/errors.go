package tag

import "errors"

var (
	// ErrTagNotFound indicates the named tag is not in the registry.
	ErrTagNotFound = errors.New("tag not found")

	// ErrNoSampler indicates the tag has no sampler bound to it.
	ErrNoSampler = errors.New("no sampler for tag")

	// ErrUnknownType indicates the configured data type name is not supported.
	ErrUnknownType = errors.New("unknown tag data type")
)
