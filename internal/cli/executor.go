package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"renderqa/internal/artifact"
	"renderqa/internal/compare"
	"renderqa/internal/config"
	"renderqa/internal/history"
	"renderqa/internal/logging"
	"renderqa/internal/objectstore"
	"renderqa/internal/reference"
	"renderqa/internal/render"
	"renderqa/internal/report"
	"renderqa/internal/scene"
	"renderqa/internal/state"
	"renderqa/internal/trace"
	"renderqa/internal/validate"
)

// TraceFileName is written next to the report when tracing is enabled.
const TraceFileName = "trace.json"

// Result is what a command produced. Report is nil for validate-scene and
// capture runs.
type Result struct {
	ExitCode   int
	RunID      string
	Verdict    validate.Verdict
	Issues     []validate.Issue
	Report     *report.Report
	ReportPath string
	Reference  *reference.Set
	TraceHash  string
}

type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// Config, when set, is used instead of loading one from the invocation.
	Config *config.Config
	// LookPath resolves the renderer on PATH; nil uses exec.LookPath.
	LookPath func(string) (string, error)
}

type executor struct {
	inv    Invocation
	cfg    config.Config
	out    io.Writer
	logger logging.Logger
	opts   Options
}

// Execute runs a parsed invocation. The returned error is nil whenever the
// run completed, even if a gate failed; the exit code carries the verdict.
func Execute(ctx context.Context, inv Invocation, opts Options) (Result, error) {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	var cfg config.Config
	if opts.Config != nil {
		cfg = *opts.Config
	} else {
		loaded, err := config.Load(inv.ConfigPath)
		if err != nil {
			return Result{ExitCode: ExitCode(err)}, err
		}
		cfg = loaded
	}
	if err := applyOverrides(&cfg, inv); err != nil {
		return Result{ExitCode: ExitCode(err)}, err
	}

	e := &executor{
		inv:  inv,
		cfg:  cfg,
		out:  opts.Stdout,
		opts: opts,
		logger: logging.New(opts.Stderr, cfg.Env, cfg.LogLevel).With().
			Str("command", string(inv.Command)).
			Logger(),
	}

	switch inv.Command {
	case CommandValidateScene:
		return e.validateScene()
	case CommandRenderValidate:
		return e.renderValidate(ctx)
	case CommandRegressionTest:
		if inv.Mode == ModeCapture {
			return e.captureReference(ctx)
		}
		return e.regressionTest(ctx)
	default:
		err := invalidInvocationf("unknown command %q", inv.Command)
		return Result{ExitCode: ExitCode(err)}, err
	}
}

// applyOverrides layers command-line values over the loaded config.
func applyOverrides(cfg *config.Config, inv Invocation) error {
	if inv.Quality != "" {
		cfg.Quality = inv.Quality
	}
	if inv.Engine != "" {
		cfg.Engine = inv.Engine
	}
	if inv.Device != "" {
		cfg.Device = inv.Device
	}
	if inv.Samples > 0 {
		cfg.Samples = inv.Samples
	}
	if inv.Timeout > 0 {
		cfg.Timeout = inv.Timeout
	}
	if inv.OutputDir != "" {
		cfg.OutputDir = inv.OutputDir
	}
	if inv.ReferenceRoot != "" {
		cfg.ReferenceRoot = inv.ReferenceRoot
	}
	if inv.SuccessThreshold != nil {
		cfg.Gates.SuccessRate = *inv.SuccessThreshold
	}
	if inv.MaxRenderTime != nil {
		cfg.Gates.MaxRenderTime = *inv.MaxRenderTime
	}
	if inv.Threshold != nil {
		cfg.Gates.Similarity = *inv.Threshold
	}
	if inv.MinPassRate != nil {
		cfg.Gates.MinPassRate = *inv.MinPassRate
	}
	cfg.OutputDir = resolveUnderWorkDir(inv.WorkDir, cfg.OutputDir)
	cfg.ReferenceRoot = resolveUnderWorkDir(inv.WorkDir, cfg.ReferenceRoot)
	if err := cfg.Validate(); err != nil {
		return config.Errorf("invalid settings: %w", err)
	}
	return nil
}

func (e *executor) fail(err error) (Result, error) {
	return Result{ExitCode: ExitCode(err)}, err
}

func requireScene(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return config.Errorf("scene %s: %w", path, err)
	}
	if info.IsDir() {
		return config.Errorf("scene %s is a directory", path)
	}
	return nil
}

func (e *executor) locateRenderer() (string, error) {
	p, err := render.LocateRenderer(e.cfg.RendererPath, render.DefaultRendererCandidates, e.opts.LookPath)
	if err != nil {
		return "", config.Errorf("%w", err)
	}
	e.logger.Debug().Str("renderer", p).Msg("renderer located")
	return p, nil
}

func (e *executor) frames(fallback []int) []int {
	if len(e.inv.Frames) > 0 {
		return e.inv.Frames
	}
	if len(fallback) > 0 {
		return fallback
	}
	return []int{1}
}

// loadScene loads the manifest for scenePath. ok is false when no manifest
// was given and none exists next to the scene.
func (e *executor) loadScene(scenePath string) (s *scene.Scene, ok bool, err error) {
	manifest := e.inv.ManifestPath
	if manifest == "" {
		manifest, err = scene.Discover(scenePath)
		if errors.Is(err, scene.ErrNoManifest) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, config.Errorf("%w", err)
		}
	}
	s, err = scene.Load(scenePath, manifest)
	if err != nil {
		return nil, false, config.Errorf("%w", err)
	}
	return s, true, nil
}

func (e *executor) printIssues(scenePath string, issues []validate.Issue, verdict validate.Verdict) {
	fmt.Fprintf(e.out, "Scene: %s\n", scenePath)
	for _, i := range issues {
		fmt.Fprintf(e.out, "  %s\n", i)
	}
	errs, warns := validate.Counts(issues)
	fmt.Fprintf(e.out, "Verdict: %s (%d errors, %d warnings)\n", verdict, errs, warns)
}

func (e *executor) validateScene() (Result, error) {
	scenePath := e.inv.ScenePath
	if err := requireScene(scenePath); err != nil {
		return e.fail(err)
	}
	s, ok, err := e.loadScene(scenePath)
	if err != nil {
		return e.fail(err)
	}
	if !ok {
		return e.fail(config.Errorf("%w for %s", scene.ErrNoManifest, scenePath))
	}

	v := validate.New(e.cfg.Rules)
	if e.inv.Fix {
		actions := v.Fix(s)
		for _, a := range actions {
			e.logger.Warn().Str("target", a.Target).Str("action", a.Action).Msg("scene modified by fix mode")
		}
		if len(actions) > 0 {
			if err := s.Save(); err != nil {
				return e.fail(fmt.Errorf("save fixed manifest: %w", err))
			}
			fmt.Fprintf(e.out, "Fixed %d object(s); manifest saved to %s\n", len(actions), s.ManifestPath)
		}
	}

	issues := v.Validate(s)
	verdict := validate.Classify(issues)
	e.printIssues(scenePath, issues, verdict)
	return Result{ExitCode: verdict.ExitCode(), Verdict: verdict, Issues: issues}, nil
}

func (e *executor) renderValidate(ctx context.Context) (Result, error) {
	scenePath := e.inv.ScenePath
	if err := requireScene(scenePath); err != nil {
		return e.fail(err)
	}
	quality, err := e.cfg.QualitySettings()
	if err != nil {
		return e.fail(config.Errorf("%w", err))
	}
	outputDir := e.cfg.OutputDir
	run := e.startRun(outputDir, scenePath)
	res := Result{RunID: run.id}

	verdict := validate.VerdictReady
	if e.inv.SkipPreflight {
		e.logger.Info().Msg("pre-flight validation skipped")
	} else {
		s, ok, err := e.loadScene(scenePath)
		if err != nil {
			return run.abort(err)
		}
		if !ok {
			e.logger.Warn().Str("scene", scenePath).Msg("no scene manifest found; pre-flight validation skipped")
		} else {
			res.Issues = validate.New(e.cfg.Rules).Validate(s)
			verdict = validate.Classify(res.Issues)
			res.Verdict = verdict
			e.printIssues(scenePath, res.Issues, verdict)
			if verdict == validate.VerdictBlocked {
				fmt.Fprintln(e.out, "Rendering blocked by pre-flight errors.")
				res.ExitCode = ExitBlocked
				run.finish(state.RunStatusBlocked, res.ExitCode, "", "")
				return res, nil
			}
		}
	}

	renderer, err := e.locateRenderer()
	if err != nil {
		return run.abort(err)
	}
	rec := trace.NewRecorder()
	orch := render.NewOrchestrator(renderer, e.logger)
	orch.Trace = rec

	started := time.Now()
	job, err := orch.Run(ctx, render.JobSpec{
		Scene:     scenePath,
		Frames:    e.frames(nil),
		Quality:   quality,
		Timeout:   e.cfg.Timeout,
		OutputDir: outputDir,
		Format:    e.cfg.Format,
	})
	if err != nil {
		return run.abort(err)
	}

	rep := report.Render(job, e.cfg.Gates, report.Meta{
		RunID:      run.id,
		Subject:    scenePath,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Quality:    &quality,
	})
	return e.finishReport(ctx, run, rep, outputDir, rec, scenePath, verdict.ExitCode())
}

// finishReport persists, prints and records rep. floor raises the exit code,
// e.g. to surface pre-flight warnings on an otherwise passing run.
func (e *executor) finishReport(ctx context.Context, run *runTracker, rep report.Report, dir string, rec *trace.Recorder, subject string, floor int) (Result, error) {
	res := Result{RunID: run.id, Report: &rep}
	path, err := rep.Write(dir)
	if err != nil {
		return run.abort(fmt.Errorf("write report: %w", err))
	}
	res.ReportPath = path
	if err := rep.Print(e.out); err != nil {
		e.logger.Warn().Err(err).Msg("print summary")
	}
	fmt.Fprintf(e.out, "Report: %s\n", path)

	if e.inv.Trace {
		res.TraceHash = e.writeTrace(rec.Trace(subject), dir)
	}
	e.recordHistory(ctx, rep)

	res.ExitCode = rep.ExitCode()
	if floor > res.ExitCode {
		res.ExitCode = floor
	}
	status := state.RunStatusPassed
	if rep.Status != report.StatusPassed {
		status = state.RunStatusFailed
	}
	run.finish(status, res.ExitCode, path, res.TraceHash)
	e.logger.Info().Str("status", string(rep.Status)).Strs("failed_gates", rep.FailedGates).Int("exit_code", res.ExitCode).Msg("run finished")
	return res, nil
}

func (e *executor) writeTrace(tr trace.Trace, dir string) string {
	data, err := tr.CanonicalJSON()
	if err == nil {
		err = artifact.WriteFileAtomic(filepath.Join(dir, TraceFileName), data, 0o644)
	}
	if err != nil {
		e.logger.Warn().Err(err).Msg("write trace")
		return ""
	}
	return artifact.DigestBytes(data).String()
}

func (e *executor) recordHistory(ctx context.Context, rep report.Report) {
	if e.cfg.DatabaseURL == "" {
		return
	}
	pool, err := history.Open(ctx, e.cfg.DatabaseURL)
	if err != nil {
		e.logger.Warn().Err(err).Msg("history disabled")
		return
	}
	defer pool.Close()
	if err := history.NewRecorder(pool, e.logger).Record(ctx, rep); err != nil {
		e.logger.Warn().Err(err).Msg("record history")
	}
}

func (e *executor) newReferenceStore(renderer string) *reference.Store {
	return reference.NewStore(e.cfg.ReferenceRoot, render.NewOrchestrator(renderer, e.logger), e.logger)
}

// attachMirror wires the MinIO mirror when RENDERQA_MINIO_ENDPOINT is set.
// Mirror problems are logged; the local reference set stays authoritative.
func (e *executor) attachMirror(ctx context.Context, store *reference.Store) {
	cfg, enabled, err := objectstore.ConfigFromEnv()
	if err != nil {
		e.logger.Warn().Err(err).Msg("object store mirror misconfigured; mirroring disabled")
		return
	}
	if !enabled {
		return
	}
	client, err := objectstore.NewMinIOClient(cfg)
	if err == nil {
		err = objectstore.EnsureBucket(ctx, client, cfg)
	}
	var ms *objectstore.MinioStore
	if err == nil {
		ms, err = objectstore.NewMinioStore(client)
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("endpoint", cfg.Endpoint).Msg("object store unavailable; mirroring disabled")
		return
	}
	store.Mirror = &objectstore.Mirror{Store: ms, Bucket: cfg.Bucket}
	e.logger.Info().Str("bucket", cfg.Bucket).Msg("mirroring reference set to object store")
}

func (e *executor) captureReference(ctx context.Context) (Result, error) {
	project := e.inv.Project
	if err := requireScene(e.inv.ScenePath); err != nil {
		return e.fail(err)
	}
	quality, err := e.cfg.QualitySettings()
	if err != nil {
		return e.fail(config.Errorf("%w", err))
	}
	run := e.startRun(filepath.Join(e.cfg.ReferenceRoot, project), project)

	renderer, err := e.locateRenderer()
	if err != nil {
		return run.abort(err)
	}
	store := e.newReferenceStore(renderer)
	e.attachMirror(ctx, store)

	set, err := store.Capture(ctx, reference.CaptureRequest{
		Project: project,
		Scene:   e.inv.ScenePath,
		Frames:  e.frames(nil),
		Quality: quality,
		Timeout: e.cfg.Timeout,
		Format:  e.cfg.Format,
		Clear:   e.inv.ClearReference,
	})
	if err != nil {
		return run.abort(err)
	}
	fmt.Fprintf(e.out, "Captured %d reference frame(s) for project %s in %s\n", len(set.Frames), project, store.Dir(project))
	run.finish(state.RunStatusPassed, ExitSuccess, "", "")
	return Result{ExitCode: ExitSuccess, RunID: run.id, Reference: &set}, nil
}

func (e *executor) regressionTest(ctx context.Context) (Result, error) {
	project := e.inv.Project
	store := reference.NewStore(e.cfg.ReferenceRoot, nil, e.logger)
	renderDir := e.inv.RenderDir
	if renderDir == "" {
		renderDir = filepath.Join(e.cfg.OutputDir, project)
	}
	run := e.startRun(renderDir, project)

	// A missing reference set is a setup error: no rendering, no comparison.
	set, files, err := store.Load(project)
	if err != nil {
		return run.abort(err)
	}
	if drifts, err := store.Verify(project); err != nil {
		e.logger.Warn().Err(err).Msg("verify reference set")
	} else {
		for _, d := range drifts {
			e.logger.Warn().Int("frame", d.Frame).Str("path", d.Path).Bool("missing", d.Missing).Msg("reference frame does not match its recorded digest")
		}
	}

	frames := e.frames(set.Frames)
	rec := trace.NewRecorder()
	started := time.Now()

	if e.inv.ScenePath != "" {
		if err := requireScene(e.inv.ScenePath); err != nil {
			return run.abort(err)
		}
		quality, err := e.testQuality(set.Quality)
		if err != nil {
			return run.abort(config.Errorf("%w", err))
		}
		renderer, err := e.locateRenderer()
		if err != nil {
			return run.abort(err)
		}
		orch := render.NewOrchestrator(renderer, e.logger)
		orch.Trace = rec
		job, err := orch.Run(ctx, render.JobSpec{
			Scene:     e.inv.ScenePath,
			Frames:    frames,
			Quality:   quality,
			Timeout:   e.cfg.Timeout,
			OutputDir: renderDir,
			Format:    set.Format,
		})
		if err != nil {
			return run.abort(err)
		}
		if job.Failures > 0 {
			e.logger.Warn().Ints("frames", job.FailedFrames()).Msg("test frames failed to render; they will be compared as missing")
		}
	}

	var comparator compare.Comparator = compare.Heuristic{}
	if e.inv.Comparator == ComparatorPixel {
		comparator = compare.Pixel{}
	}
	runner := &compare.Runner{Comparator: comparator, Logger: e.logger, Trace: rec}
	metrics, err := runner.Run(ctx, compare.PairFrames(frames, files, store.Dir(project), renderDir, set.Format))
	if err != nil {
		return run.abort(err)
	}

	rep := report.Regression(metrics, e.cfg.Gates, report.Meta{
		RunID:      run.id,
		Subject:    project,
		Project:    project,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Quality:    &set.Quality,
	})
	return e.finishReport(ctx, run, rep, renderDir, rec, project, ExitSuccess)
}

// testQuality reuses the reference set's settings unless --quality, --device
// or --samples asks for something else.
func (e *executor) testQuality(ref render.Quality) (render.Quality, error) {
	if e.inv.Quality != "" {
		return e.cfg.QualitySettings()
	}
	q := ref
	if e.inv.Device != "" {
		d, err := render.ParseDevice(e.inv.Device)
		if err != nil {
			return render.Quality{}, err
		}
		q = q.WithDevice(d)
	}
	if e.inv.Samples > 0 {
		q = q.WithSamples(e.inv.Samples)
	}
	return q, nil
}
