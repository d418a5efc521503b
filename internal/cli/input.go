package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"renderqa/internal/compare"
	"renderqa/internal/config"
	"renderqa/internal/reference"
	"renderqa/internal/render"
)

const (
	ExitSuccess           = 0
	ExitWarning           = 1
	ExitBlocked           = 2
	ExitInvalidInvocation = 3
	ExitConfigError       = 4
	ExitInternalError     = 5
)

type Command string

const (
	CommandValidateScene  Command = "validate-scene"
	CommandRenderValidate Command = "render-validate"
	CommandRegressionTest Command = "regression-test"
)

type RegressionMode string

const (
	ModeCapture RegressionMode = "capture"
	ModeTest    RegressionMode = "test"
)

const (
	ComparatorHeuristic = "heuristic"
	ComparatorPixel     = "pixel"
)

// Invocation is the canonical description of one command. Relative paths are
// resolved against WorkDir, never against the process working directory.
// Pointer and zero-valued fields mean "not given on the command line".
type Invocation struct {
	Command    Command
	WorkDir    string
	ConfigPath string

	ScenePath     string
	ManifestPath  string
	Fix           bool
	SkipPreflight bool
	Trace         bool

	OutputDir string
	Frames    []int
	Quality   string
	Engine    string
	Device    string
	Samples   int
	Timeout   time.Duration

	SuccessThreshold *float64
	MaxRenderTime    *time.Duration

	Project        string
	Mode           RegressionMode
	Threshold      *float64
	MinPassRate    *float64
	RenderDir      string
	ReferenceRoot  string
	Comparator     string
	ClearReference bool
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// frameList is a repeatable --frames flag accepting "1,5,10" and "1-4".
// MaxFrames bounds one --frames selection, ranges included.
const MaxFrames = 100000

type frameList struct {
	frames []int
}

func (f *frameList) String() string {
	parts := make([]string, len(f.frames))
	for i, n := range f.frames {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func (f *frameList) Set(raw string) error {
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			n, err := parseFrame(part)
			if err != nil {
				return err
			}
			if len(f.frames) >= MaxFrames {
				return fmt.Errorf("more than %d frames", MaxFrames)
			}
			f.frames = append(f.frames, n)
			continue
		}
		start, err := parseFrame(lo)
		if err != nil {
			return err
		}
		end, err := parseFrame(hi)
		if err != nil {
			return err
		}
		if end < start {
			return fmt.Errorf("invalid frame range %q", part)
		}
		if end-start >= MaxFrames-len(f.frames) {
			return fmt.Errorf("frame range %q exceeds %d frames", part, MaxFrames)
		}
		for n := start; n <= end; n++ {
			f.frames = append(f.frames, n)
		}
	}
	return nil
}

func parseFrame(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid frame %q (frames are positive integers)", raw)
	}
	return n, nil
}

// optionalFloat records whether the flag was given at all.
type optionalFloat struct{ v **float64 }

func (o optionalFloat) String() string {
	if o.v == nil || *o.v == nil {
		return ""
	}
	return strconv.FormatFloat(**o.v, 'g', -1, 64)
}

func (o optionalFloat) Set(raw string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return err
	}
	*o.v = &f
	return nil
}

type optionalDuration struct{ v **time.Duration }

func (o optionalDuration) String() string {
	if o.v == nil || *o.v == nil {
		return ""
	}
	return (**o.v).String()
}

func (o optionalDuration) Set(raw string) error {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	*o.v = &d
	return nil
}

// ParseInvocation parses args (excluding argv[0]) into a canonical Invocation.
// It reads no environment variables; workDir must be absolute.
func ParseInvocation(args []string, workDir string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{}, invalidInvocationf("usage: renderqa <validate-scene|render-validate|regression-test> [flags]")
	}
	workDir = filepath.Clean(workDir)
	if !filepath.IsAbs(workDir) {
		return Invocation{}, invalidInvocationf("working directory must be absolute (got %q)", workDir)
	}

	inv := Invocation{Command: Command(args[0]), WorkDir: workDir}
	fs := flag.NewFlagSet("renderqa "+args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var frames frameList
	var capture, test bool
	fs.StringVar(&inv.ConfigPath, "config", "", "YAML config file")

	switch inv.Command {
	case CommandValidateScene:
		fs.StringVar(&inv.ManifestPath, "manifest", "", "scene manifest (default: <scene>.manifest.yaml)")
		fs.BoolVar(&inv.Fix, "fix", false, "hide render-visible test objects and save the manifest")
	case CommandRenderValidate:
		fs.StringVar(&inv.ManifestPath, "manifest", "", "scene manifest (default: <scene>.manifest.yaml)")
		fs.StringVar(&inv.OutputDir, "output", "", "output directory for frames and report")
		fs.Var(&frames, "frames", "frames to render: 1,5,10 or 1-4 (repeatable)")
		fs.StringVar(&inv.Quality, "quality", "", "quality preset: quick|medium|high")
		fs.StringVar(&inv.Engine, "engine", "", "render engine override")
		fs.StringVar(&inv.Device, "device", "", "compute device override: CPU|GPU")
		fs.IntVar(&inv.Samples, "samples", 0, "sample count override")
		fs.DurationVar(&inv.Timeout, "timeout", 0, "per-frame timeout")
		fs.Var(optionalFloat{&inv.SuccessThreshold}, "success-threshold", "minimum passed/total ratio")
		fs.Var(optionalDuration{&inv.MaxRenderTime}, "max-render-time", "average render time ceiling (0 disables)")
		fs.BoolVar(&inv.SkipPreflight, "skip-preflight", false, "skip scene validation")
		fs.BoolVar(&inv.Trace, "trace", false, "write trace.json next to the report")
	case CommandRegressionTest:
		fs.StringVar(&inv.Project, "project", "", "reference project name")
		fs.BoolVar(&capture, "capture-reference", false, "render and store a new reference set")
		fs.BoolVar(&test, "test", false, "compare renders against the stored reference set")
		fs.StringVar(&inv.ScenePath, "scene", "", "scene to render")
		fs.Var(&frames, "frames", "frames: 1,5,10 or 1-4 (repeatable)")
		fs.Var(optionalFloat{&inv.Threshold}, "threshold", "mean similarity threshold")
		fs.Var(optionalFloat{&inv.MinPassRate}, "min-pass-rate", "minimum fraction of frames that must pass (default: success threshold)")
		fs.StringVar(&inv.RenderDir, "render-dir", "", "directory holding (or receiving) the test renders")
		fs.StringVar(&inv.ReferenceRoot, "reference-root", "", "root directory of reference sets")
		fs.StringVar(&inv.Quality, "quality", "", "quality preset: quick|medium|high")
		fs.StringVar(&inv.Device, "device", "", "compute device override: CPU|GPU")
		fs.IntVar(&inv.Samples, "samples", 0, "sample count override")
		fs.DurationVar(&inv.Timeout, "timeout", 0, "per-frame timeout")
		fs.StringVar(&inv.Comparator, "comparator", ComparatorHeuristic, "comparator: heuristic|pixel")
		fs.BoolVar(&inv.ClearReference, "clear-reference", false, "remove previously captured frames before capture")
		fs.BoolVar(&inv.Trace, "trace", false, "write trace.json next to the report")
	default:
		return Invocation{}, invalidInvocationf("unknown command %q (expected validate-scene|render-validate|regression-test)", args[0])
	}

	// Go's flag package stops at the first positional; accept "<scene> --flags" too.
	rest := args[1:]
	var positional []string
	for {
		if err := fs.Parse(rest); err != nil {
			return Invocation{}, invalidInvocationf("%v", err)
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		rest = fs.Args()[1:]
	}

	switch inv.Command {
	case CommandValidateScene, CommandRenderValidate:
		if len(positional) != 1 {
			return Invocation{}, invalidInvocationf("%s requires exactly one scene path", inv.Command)
		}
		inv.ScenePath = positional[0]
	case CommandRegressionTest:
		if len(positional) != 0 {
			return Invocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(positional, " "))
		}
		if strings.TrimSpace(inv.Project) == "" {
			return Invocation{}, invalidInvocationf("--project is required")
		}
		if p := inv.Project; p == "." || p == ".." || strings.ContainsAny(p, `/\`) || strings.TrimSpace(p) != p {
			return Invocation{}, invalidInvocationf("invalid --project %q (a single directory name)", p)
		}
		switch {
		case capture == test:
			return Invocation{}, invalidInvocationf("exactly one of --capture-reference or --test is required")
		case capture:
			inv.Mode = ModeCapture
			if inv.ScenePath == "" {
				return Invocation{}, invalidInvocationf("--capture-reference requires --scene")
			}
		default:
			inv.Mode = ModeTest
			if inv.ScenePath == "" && inv.RenderDir == "" {
				return Invocation{}, invalidInvocationf("--test requires --scene or --render-dir")
			}
		}
		switch inv.Comparator {
		case ComparatorHeuristic, ComparatorPixel:
		default:
			return Invocation{}, invalidInvocationf("invalid --comparator %q (expected heuristic|pixel)", inv.Comparator)
		}
	}

	if err := checkFrames(frames.frames); err != nil {
		return Invocation{}, err
	}
	inv.Frames = frames.frames
	if inv.Samples < 0 {
		return Invocation{}, invalidInvocationf("--samples must be positive")
	}
	if inv.Timeout < 0 {
		return Invocation{}, invalidInvocationf("--timeout must be positive")
	}

	for _, p := range []*string{&inv.ConfigPath, &inv.ScenePath, &inv.ManifestPath, &inv.OutputDir, &inv.RenderDir, &inv.ReferenceRoot} {
		*p = resolveUnderWorkDir(workDir, *p)
	}
	return inv, nil
}

func checkFrames(frames []int) error {
	sorted := append([]int(nil), frames...)
	sort.Ints(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return invalidInvocationf("frame %d given more than once", sorted[i])
		}
	}
	return nil
}

// resolveUnderWorkDir cleans p and joins relative paths onto workDir. Empty stays empty.
func resolveUnderWorkDir(workDir, p string) string {
	if strings.TrimSpace(p) == "" {
		return ""
	}
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	return filepath.Clean(filepath.Join(workDir, clean))
}

// ExitCode maps an error from parsing or execution to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	var cfgErr *config.Error
	var capErr *reference.CaptureError
	switch {
	case errors.As(err, &cfgErr),
		errors.Is(err, render.ErrInvalidSpec),
		errors.Is(err, render.ErrRendererNotFound),
		errors.Is(err, reference.ErrNotFound):
		return ExitConfigError
	case errors.As(err, &capErr):
		return ExitWarning
	}
	var cmpErr *compare.Error
	if errors.As(err, &cmpErr) {
		return ExitWarning
	}
	return ExitInternalError
}
