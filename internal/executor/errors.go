package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrHelperNotFound is returned when an AUR step has no helper to run through.
	ErrHelperNotFound = errors.New("AUR helper not initialized (paru or yay required)")

	// ErrCancelled marks a run stopped by the user.
	ErrCancelled = errors.New("operation cancelled")
)

// ResolutionError represents a step that could not be turned into an invocation
type ResolutionError struct {
	StepName      string
	OriginalError error
}

func (e *ResolutionError) Error() string {
	return e.OriginalError.Error()
}

func (e *ResolutionError) Unwrap() error {
	return e.OriginalError
}

// SpawnError represents a process that failed to start
type SpawnError struct {
	Program       string
	OriginalError error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("%s: %v", e.Program, e.OriginalError)
}

func (e *SpawnError) Unwrap() error {
	return e.OriginalError
}

// WaitError represents a failure to obtain the exit status of a started process
type WaitError struct {
	PID           int
	OriginalError error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("pid %d: %v", e.PID, e.OriginalError)
}

func (e *WaitError) Unwrap() error {
	return e.OriginalError
}

// StreamReadError represents an I/O failure while reading process output
type StreamReadError struct {
	Stream        Stream
	OriginalError error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stream, e.OriginalError)
}

func (e *StreamReadError) Unwrap() error {
	return e.OriginalError
}
