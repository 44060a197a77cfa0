package worker

import "errors"

// Sentinel errors for pool operations
var (
	// ErrPoolAlreadyStarted indicates Start() was called on an already-started pool
	ErrPoolAlreadyStarted = errors.New("worker pool already started")

	// ErrNilProcessor indicates a nil processor function was provided
	ErrNilProcessor = errors.New("processor function cannot be nil")

	// ErrNilSource indicates a nil work source was provided
	ErrNilSource = errors.New("work source cannot be nil")

	// ErrStopTimeout indicates the pool didn't stop within the timeout
	ErrStopTimeout = errors.New("timeout waiting for workers to stop")

	// ErrProcessorPanic wraps a recovered processor panic
	ErrProcessorPanic = errors.New("processor panicked")
)
