package cli

import (
	"renderqa/internal/logging"
	"renderqa/internal/state"
)

// runTracker writes run.json/failure.json for one invocation. State is
// bookkeeping: write errors are logged and never change the outcome.
type runTracker struct {
	id       string
	recorder *state.Recorder
	run      state.Run
	started  bool
	logger   logging.Logger
}

func (e *executor) startRun(baseDir, subject string) *runTracker {
	t := &runTracker{logger: e.logger}
	store, err := state.NewStore(baseDir)
	if err != nil {
		e.logger.Warn().Err(err).Msg("run state disabled")
		return t
	}
	t.recorder = state.NewRecorder(store)
	t.id = t.recorder.NewRunID()
	t.run, err = t.recorder.StartRun(t.id, string(e.inv.Command), subject)
	if err != nil {
		e.logger.Warn().Err(err).Msg("record run start")
		return t
	}
	t.started = true
	t.logger = e.logger.With().Str("run_id", t.id).Logger()
	return t
}

func (t *runTracker) finish(status state.RunStatus, exitCode int, reportPath, traceHash string) {
	if !t.started {
		return
	}
	t.run.ReportPath = reportPath
	t.run.TraceHash = traceHash
	if _, err := t.recorder.FinishRun(t.run, status, exitCode); err != nil {
		t.logger.Warn().Err(err).Msg("record run finish")
	}
}

// abort records err as the run's failure and returns the command result for it.
func (t *runTracker) abort(err error) (Result, error) {
	code := ExitCode(err)
	t.logger.Error().Err(err).Int("exit_code", code).Msg("run aborted")
	if t.started {
		if _, rerr := t.recorder.RecordFailure(t.id, err); rerr != nil {
			t.logger.Warn().Err(rerr).Msg("record failure")
		}
		t.finish(state.RunStatusError, code, "", "")
	}
	return Result{ExitCode: code, RunID: t.id}, err
}
