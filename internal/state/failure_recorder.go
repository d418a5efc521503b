package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder writes run.json and failure.json for command invocations.
type Recorder struct {
	Store *Store
	now   func() time.Time
}

func NewRecorder(store *Store) *Recorder {
	return &Recorder{Store: store, now: time.Now}
}

func (r *Recorder) clock() time.Time {
	if r.now != nil {
		return r.now().UTC()
	}
	return time.Now().UTC()
}

func (r *Recorder) NewRunID() string {
	return uuid.NewString()
}

// StartRun persists a running Run and returns it with its start time set.
func (r *Recorder) StartRun(runID, command, subject string) (Run, error) {
	if r == nil || r.Store == nil {
		return Run{}, errors.New("Store is required")
	}
	run := Run{
		RunID:     runID,
		Command:   command,
		Subject:   subject,
		StartTime: r.clock(),
		Status:    RunStatusRunning,
	}
	if err := r.Store.SaveRun(run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// FinishRun stamps the finish time, status and exit code and saves the run.
func (r *Recorder) FinishRun(run Run, status RunStatus, exitCode int) (Run, error) {
	if r == nil || r.Store == nil {
		return Run{}, errors.New("Store is required")
	}
	now := r.clock()
	if now.Before(run.StartTime) {
		now = run.StartTime
	}
	run.FinishTime = &now
	run.Status = status
	run.ExitCode = exitCode
	if err := r.Store.SaveRun(run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// RecordFailure classifies err and writes failure.json for runID.
func (r *Recorder) RecordFailure(runID string, err error) (Failure, error) {
	if r == nil || r.Store == nil {
		return Failure{}, errors.New("Store is required")
	}
	f, ferr := failureFromError(err)
	if ferr != nil {
		return Failure{}, ferr
	}
	if err := r.Store.SaveFailure(runID, f); err != nil {
		return Failure{}, fmt.Errorf("record failure: %w", err)
	}
	return f, nil
}
