package models

import "errors"

// Failure taxonomy. Only ErrContextUnavailable and ErrNoBackendAvailable
// are returned to callers; the rest are absorbed and counted.
var (
	ErrContextUnavailable = errors.New("context unavailable: required metadata could not be read")
	ErrCaptionTimeout     = errors.New("caption timed out")
	ErrBackendTimeout     = errors.New("backend did not start streaming in time")
	ErrNoBackendAvailable = errors.New("no backend available")
	ErrQueueOverflow      = errors.New("queue overflow: oldest record dropped")
	ErrNoEstimate         = errors.New("no estimate available")
)
