// Package render drives an external renderer over a list of frames, one
// subprocess per frame, with a wall-clock budget per frame and structured
// per-frame results.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"renderqa/internal/artifact"
	"renderqa/internal/logging"
	"renderqa/internal/trace"
)

// Invocation is everything needed to build the renderer argv for one frame.
type Invocation struct {
	Scene      string
	Frame      int
	OutputPath string
	Quality    Quality
	Payload    []byte
}

// DefaultArgs builds the renderer's headless argv:
//
//	--background <scene> --frame <n> --output <path> --quality <json>
func DefaultArgs(inv Invocation) []string {
	return []string{
		"--background", inv.Scene,
		"--frame", strconv.Itoa(inv.Frame),
		"--output", inv.OutputPath,
		"--quality", string(inv.Payload),
	}
}

// FrameMeta is written next to each frame as frame_NNNN_meta.json.
type FrameMeta struct {
	Frame      int      `json:"frame"`
	Success    bool     `json:"success"`
	RenderTime *float64 `json:"render_time,omitempty"`
	WallTime   float64  `json:"wall_time"`
	Quality    Quality  `json:"quality"`
	Digest     string   `json:"digest,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Orchestrator renders frames sequentially. The zero value is not usable;
// Renderer must name an executable.
type Orchestrator struct {
	Renderer string
	Args     func(Invocation) []string
	Logger   logging.Logger
	Trace    trace.Sink

	// WaitDelay bounds how long output copying may outlive the process.
	WaitDelay time.Duration
}

func NewOrchestrator(renderer string, logger logging.Logger) *Orchestrator {
	return &Orchestrator{Renderer: renderer, Logger: logger, Trace: trace.NopSink{}}
}

// Run renders every frame of spec in order. A frame that fails or times out
// does not stop the job. Cancelling ctx stops the job after killing the
// in-flight renderer; the partial result is returned together with ctx's error.
func (o *Orchestrator) Run(ctx context.Context, spec JobSpec) (JobResult, error) {
	if err := spec.Validate(); err != nil {
		return JobResult{}, err
	}
	if o.Renderer == "" {
		return JobResult{}, ErrRendererNotFound
	}
	if err := os.MkdirAll(spec.OutputDir, 0o755); err != nil {
		return JobResult{}, fmt.Errorf("create output dir: %w", err)
	}

	start := time.Now()
	results := make([]Result, 0, len(spec.Frames))
	for _, frame := range spec.Frames {
		if err := ctx.Err(); err != nil {
			return Summarize(results, time.Since(start)), err
		}
		res, err := o.RenderFrame(ctx, spec, frame)
		results = append(results, res)
		o.writeMeta(spec, res)
		if err != nil && ctx.Err() != nil {
			return Summarize(results, time.Since(start)), ctx.Err()
		}
	}

	job := Summarize(results, time.Since(start))
	o.Logger.Info().
		Str("scene", spec.Scene).
		Int("total", job.Total).
		Int("successes", job.Successes).
		Int("failures", job.Failures).
		Float64("wall_time", job.TotalWallTime).
		Msg("render job finished")
	return job, nil
}

// RenderFrame renders a single frame. On failure the returned Result is the
// failed variant and err carries the typed cause (*TimeoutError,
// *ProcessError, or ctx's error when the parent was cancelled).
func (o *Orchestrator) RenderFrame(ctx context.Context, spec JobSpec, frame int) (Result, error) {
	output := spec.FramePath(frame)
	start := time.Now()

	fail := func(err error) (Result, error) {
		res := failed(frame, output, time.Since(start), err)
		o.record(frame, err)
		o.Logger.Warn().Int("frame", frame).Err(err).Msg("frame failed")
		return res, err
	}

	payload, err := spec.Quality.Payload()
	if err != nil {
		return fail(fmt.Errorf("%w: quality: %v", ErrInvalidSpec, err))
	}
	if err := os.Remove(output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fail(&ProcessError{Frame: frame, ExitCode: -1, Err: fmt.Errorf("remove stale output: %w", err)})
	}

	argsFn := o.Args
	if argsFn == nil {
		argsFn = DefaultArgs
	}
	cmd := exec.Command(o.Renderer, argsFn(Invocation{
		Scene:      spec.Scene,
		Frame:      frame,
		OutputPath: output,
		Quality:    spec.Quality,
		Payload:    payload,
	})...)
	isolate(cmd)
	tail := newTailBuffer(outputTailLimit)
	cmd.Stdout = tail
	cmd.Stderr = tail
	cmd.WaitDelay = o.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 2 * time.Second
	}

	frameCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	o.Logger.Debug().Int("frame", frame).Str("output", output).Msg("rendering frame")
	if err := cmd.Start(); err != nil {
		return fail(&ProcessError{Frame: frame, ExitCode: -1, Err: fmt.Errorf("start renderer: %w", err)})
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-frameCtx.Done():
		killTree(cmd)
		<-done
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
		return fail(&TimeoutError{Frame: frame, Timeout: spec.Timeout})
	case waitErr = <-done:
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return fail(&ProcessError{Frame: frame, ExitCode: exitErr.ExitCode(), Output: tail.String()})
		}
		return fail(&ProcessError{Frame: frame, ExitCode: -1, Output: tail.String(), Err: waitErr})
	}

	if _, err := artifact.Check(output); err != nil {
		return fail(&ProcessError{Frame: frame, Output: tail.String(), Err: fmt.Errorf("output %s: %w", output, err)})
	}
	digest, err := artifact.DigestFile(output)
	if err != nil {
		return fail(&ProcessError{Frame: frame, Err: err})
	}

	res := succeeded(frame, output, time.Since(start), digest.String())
	trace.SafeRecord(o.Trace, trace.Event{Kind: trace.FrameRendered, Frame: frame, Digest: res.Digest})
	o.Logger.Info().Int("frame", frame).Float64("render_time", *res.RenderTime).Msg("frame rendered")
	return res, nil
}

func (o *Orchestrator) record(frame int, err error) {
	var timeout *TimeoutError
	switch {
	case errors.As(err, &timeout):
		trace.SafeRecord(o.Trace, trace.Event{Kind: trace.FrameTimedOut, Frame: frame, Reason: "timeout"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		trace.SafeRecord(o.Trace, trace.Event{Kind: trace.FrameRenderFailed, Frame: frame, Reason: "cancelled"})
	default:
		trace.SafeRecord(o.Trace, trace.Event{Kind: trace.FrameRenderFailed, Frame: frame, Reason: "process"})
	}
}

func (o *Orchestrator) writeMeta(spec JobSpec, res Result) {
	meta := FrameMeta{
		Frame:      res.Frame,
		Success:    res.Success,
		RenderTime: res.RenderTime,
		WallTime:   res.WallTime,
		Quality:    spec.Quality,
		Digest:     res.Digest,
		Error:      res.Error,
	}
	if err := artifact.WriteJSON(spec.MetaPath(res.Frame), meta); err != nil {
		o.Logger.Warn().Int("frame", res.Frame).Err(err).Msg("write frame metadata")
	}
}
