package render

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidSpec marks job specs rejected before any frame work starts.
	ErrInvalidSpec = errors.New("invalid render job spec")
	// ErrRendererNotFound is returned when no renderer executable can be located.
	ErrRendererNotFound = errors.New("renderer executable not found")
)

// ProcessError is a frame whose renderer exited non-zero, could not be started,
// or exited zero without producing its artifact.
type ProcessError struct {
	Frame    int
	ExitCode int
	Output   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("frame %d: renderer failed", e.Frame)
	switch {
	case e.Err != nil && e.ExitCode == 0:
		msg = fmt.Sprintf("frame %d: renderer exited 0 but %v", e.Frame, e.Err)
	case e.Err != nil:
		msg = fmt.Sprintf("frame %d: %v", e.Frame, e.Err)
	case e.ExitCode != 0:
		msg = fmt.Sprintf("frame %d: renderer exited with status %d", e.Frame, e.ExitCode)
	}
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *ProcessError) Unwrap() error { return e.Err }

// TimeoutError is a frame whose renderer exceeded its wall-clock budget and was killed.
type TimeoutError struct {
	Frame   int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("frame %d: timeout after %s", e.Frame, e.Timeout)
}
