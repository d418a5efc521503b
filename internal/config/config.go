// Package config assembles renderqa settings from defaults, an optional YAML
// file and the environment (after loading .env files). Command-line flags are
// applied on top by the cli package.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"renderqa/internal/env"
	"renderqa/internal/render"
	"renderqa/internal/report"
	"renderqa/internal/validate"
)

const (
	DefaultTimeout       = 300 * time.Second
	DefaultOutputDir     = "render_output"
	DefaultReferenceRoot = "regression"
)

// Error is a setup problem that aborts a run before any frame work starts:
// a missing scene, an unreadable config file, no renderer, bad thresholds.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return "configuration error: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf formats the message like fmt.Errorf and keeps the %w operand as the cause.
func Errorf(format string, args ...any) *Error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{Message: wrapped.Error(), Err: errors.Unwrap(wrapped)}
}

type Config struct {
	Env      string
	LogLevel string

	RendererPath  string
	Timeout       time.Duration
	Quality       string
	Engine        string
	Device        string
	// Samples overrides the preset's sample count when positive.
	Samples       int
	Format        string
	OutputDir     string
	ReferenceRoot string

	Gates report.Gates
	Rules validate.Rules

	DatabaseURL string
}

func Default() Config {
	return Config{
		Env:           "production",
		LogLevel:      "info",
		Timeout:       DefaultTimeout,
		Quality:       render.PresetMedium,
		Format:        render.DefaultFormat,
		OutputDir:     DefaultOutputDir,
		ReferenceRoot: DefaultReferenceRoot,
		Gates:         report.DefaultGates(),
		Rules:         validate.DefaultRules(),
	}
}

// fileConfig is the YAML document shape. Durations are strings ("300s").
type fileConfig struct {
	Renderer      string         `yaml:"renderer"`
	Timeout       string         `yaml:"timeout"`
	Quality       string         `yaml:"quality"`
	Engine        string         `yaml:"engine"`
	Device        string         `yaml:"device"`
	Samples       int            `yaml:"samples"`
	Format        string         `yaml:"format"`
	OutputDir     string         `yaml:"output_dir"`
	ReferenceRoot string         `yaml:"reference_root"`
	Gates         fileGates      `yaml:"gates"`
	Validation    validate.Rules `yaml:"validation"`
}

type fileGates struct {
	SuccessRate   *float64 `yaml:"success_rate"`
	MaxRenderTime string   `yaml:"max_render_time"`
	Similarity    *float64 `yaml:"similarity"`
	MinPassRate   *float64 `yaml:"min_pass_rate"`
}

// Load reads .env files, then path (when non-empty), then RENDERQA_* variables.
func Load(path string) (Config, error) {
	env.LoadDotenv()
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return Errorf("open config file: %w", err)
	}
	defer f.Close()

	fc := fileConfig{Validation: c.Rules}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.RendererPath, fc.Renderer)
	setString(&c.Quality, fc.Quality)
	setString(&c.Engine, fc.Engine)
	setString(&c.Device, fc.Device)
	setString(&c.Format, fc.Format)
	if fc.Samples != 0 {
		c.Samples = fc.Samples
	}
	setString(&c.OutputDir, fc.OutputDir)
	setString(&c.ReferenceRoot, fc.ReferenceRoot)
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return Errorf("config file timeout: %w", err)
		}
		c.Timeout = d
	}
	if fc.Gates.SuccessRate != nil {
		c.Gates.SuccessRate = *fc.Gates.SuccessRate
	}
	if fc.Gates.Similarity != nil {
		c.Gates.Similarity = *fc.Gates.Similarity
	}
	if fc.Gates.MinPassRate != nil {
		c.Gates.MinPassRate = *fc.Gates.MinPassRate
	}
	if fc.Gates.MaxRenderTime != "" {
		d, err := time.ParseDuration(fc.Gates.MaxRenderTime)
		if err != nil {
			return Errorf("config file gates.max_render_time: %w", err)
		}
		c.Gates.MaxRenderTime = d
	}
	c.Rules = fc.Validation
	return nil
}

func (c *Config) applyEnv() error {
	c.Env = env.String("RENDERQA_ENV", c.Env)
	c.LogLevel = env.String("RENDERQA_LOG_LEVEL", c.LogLevel)
	c.RendererPath = env.String(render.RendererEnv, c.RendererPath)
	c.Quality = env.String("RENDERQA_QUALITY", c.Quality)
	c.Engine = env.String("RENDERQA_ENGINE", c.Engine)
	c.Device = env.String("RENDERQA_DEVICE", c.Device)
	c.OutputDir = env.String("RENDERQA_OUTPUT_DIR", c.OutputDir)
	c.ReferenceRoot = env.String("RENDERQA_REFERENCE_ROOT", c.ReferenceRoot)
	c.DatabaseURL = env.String("RENDERQA_DATABASE_URL", c.DatabaseURL)

	var err error
	if c.Samples, err = env.Int("RENDERQA_SAMPLES", c.Samples); err != nil {
		return err
	}
	if c.Timeout, err = env.Duration("RENDERQA_FRAME_TIMEOUT", c.Timeout); err != nil {
		return err
	}
	if c.Gates.SuccessRate, err = env.Float("RENDERQA_SUCCESS_THRESHOLD", c.Gates.SuccessRate); err != nil {
		return err
	}
	if c.Gates.MaxRenderTime, err = env.Duration("RENDERQA_MAX_RENDER_TIME", c.Gates.MaxRenderTime); err != nil {
		return err
	}
	if c.Gates.Similarity, err = env.Float("RENDERQA_SIMILARITY_THRESHOLD", c.Gates.Similarity); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, v string) {
	if s := strings.TrimSpace(v); s != "" {
		*dst = s
	}
}

// QualitySettings resolves the preset and engine/device overrides.
func (c Config) QualitySettings() (render.Quality, error) {
	q, err := render.Preset(c.Quality)
	if err != nil {
		return render.Quality{}, err
	}
	if c.Engine != "" {
		e, err := render.ParseEngine(c.Engine)
		if err != nil {
			return render.Quality{}, err
		}
		q = q.WithEngine(e)
	}
	if c.Device != "" {
		d, err := render.ParseDevice(c.Device)
		if err != nil {
			return render.Quality{}, err
		}
		q = q.WithDevice(d)
	}
	if c.Samples < 0 {
		return render.Quality{}, fmt.Errorf("samples must be positive (got %d)", c.Samples)
	}
	if c.Samples > 0 {
		q = q.WithSamples(c.Samples)
	}
	return q, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive (got %s)", c.Timeout))
	}
	if _, err := c.QualitySettings(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, errors.New("output dir is required"))
	}
	if strings.TrimSpace(c.ReferenceRoot) == "" {
		errs = append(errs, errors.New("reference root is required"))
	}
	if err := c.Gates.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Rules.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("validation rules: %w", err))
	}
	return errors.Join(errs...)
}
