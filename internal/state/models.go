// Package state persists per-run metadata and classified failure records under
// <base>/.renderqa/runs/<run-id>/.
package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusPassed  RunStatus = "passed"
	RunStatusFailed  RunStatus = "failed"
	RunStatusBlocked RunStatus = "blocked"
	RunStatusError   RunStatus = "error"
)

// Run is the persisted metadata of one command invocation.
type Run struct {
	RunID      string     `json:"run_id"`
	Command    string     `json:"command"`
	Subject    string     `json:"subject"`
	StartTime  time.Time  `json:"start_time"`
	FinishTime *time.Time `json:"finish_time"`
	Status     RunStatus  `json:"status"`
	ExitCode   int        `json:"exit_code"`
	ReportPath string     `json:"report_path,omitempty"`
	TraceHash  string     `json:"trace_hash,omitempty"`
}

func (r Run) Validate() error {
	var errs []error
	if strings.TrimSpace(r.RunID) == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if strings.TrimSpace(r.Command) == "" {
		errs = append(errs, errors.New("command is required"))
	}
	if r.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	switch r.Status {
	case RunStatusRunning, RunStatusPassed, RunStatusFailed, RunStatusBlocked, RunStatusError:
	default:
		errs = append(errs, fmt.Errorf("invalid status %q", r.Status))
	}
	if r.FinishTime != nil && r.FinishTime.Before(r.StartTime) {
		errs = append(errs, errors.New("finish_time must not precede start_time"))
	}
	return errors.Join(errs...)
}

type FailureClass string

const (
	FailureClassConfiguration FailureClass = "configuration"
	FailureClassRender        FailureClass = "render"
	FailureClassReference     FailureClass = "reference"
	FailureClassComparison    FailureClass = "comparison"
	FailureClassSystem        FailureClass = "system"
)

// Failure is the recorded reason a run terminated with an error.
type Failure struct {
	FailureClass FailureClass `json:"failure_class"`
	ErrorCode    string       `json:"error_code"`
	ErrorMessage string       `json:"error_message"`
	Frames       []int        `json:"frames,omitempty"`
	// Retryable is true when re-running without changing inputs may succeed.
	Retryable bool `json:"retryable"`
}

func (f Failure) Validate() error {
	var errs []error
	switch f.FailureClass {
	case FailureClassConfiguration, FailureClassRender, FailureClassReference, FailureClassComparison, FailureClassSystem:
	default:
		errs = append(errs, fmt.Errorf("invalid failure_class %q", f.FailureClass))
	}
	if strings.TrimSpace(f.ErrorCode) == "" {
		errs = append(errs, errors.New("error_code is required"))
	}
	if strings.TrimSpace(f.ErrorMessage) == "" {
		errs = append(errs, errors.New("error_message is required"))
	}
	for i, n := range f.Frames {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("frames[%d] must be positive", i))
		}
	}
	return errors.Join(errs...)
}
