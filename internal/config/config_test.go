package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"renderqa/internal/render"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RENDERQA_ENV", "RENDERQA_LOG_LEVEL", render.RendererEnv, "RENDERQA_QUALITY",
		"RENDERQA_ENGINE", "RENDERQA_DEVICE", "RENDERQA_OUTPUT_DIR", "RENDERQA_REFERENCE_ROOT",
		"RENDERQA_DATABASE_URL", "RENDERQA_FRAME_TIMEOUT", "RENDERQA_SUCCESS_THRESHOLD",
		"RENDERQA_MAX_RENDER_TIME", "RENDERQA_SIMILARITY_THRESHOLD", "RENDERQA_SAMPLES",
	} {
		t.Setenv(k, "")
	}
	chdirForTest(t, t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timeout != DefaultTimeout || cfg.Quality != render.PresetMedium || cfg.OutputDir != DefaultOutputDir {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Gates.SuccessRate != 0.80 || cfg.Gates.Similarity != 0.95 || cfg.Gates.MaxRenderTime != 20*time.Second {
		t.Fatalf("unexpected gates %+v", cfg.Gates)
	}
	if len(cfg.Rules.TestPrefixes) != 4 {
		t.Fatalf("unexpected rules %+v", cfg.Rules)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "renderqa.yaml")
	doc := `
renderer: /opt/blender/blender
timeout: 90s
quality: high
device: cpu
gates:
  success_rate: 1.0
  max_render_time: 0s
validation:
  min_samples: 128
  materials:
    - material: Chrome
      allowed_objects: "Robot*"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RENDERQA_FRAME_TIMEOUT", "45s")
	t.Setenv("RENDERQA_SIMILARITY_THRESHOLD", "0.9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RendererPath != "/opt/blender/blender" || cfg.Quality != "high" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Timeout != 45*time.Second {
		t.Fatalf("env should override file timeout, got %s", cfg.Timeout)
	}
	if cfg.Gates.SuccessRate != 1.0 || cfg.Gates.MaxRenderTime != 0 || cfg.Gates.Similarity != 0.9 {
		t.Fatalf("unexpected gates %+v", cfg.Gates)
	}
	if cfg.Rules.MinSamples != 128 || cfg.Rules.MinResolutionX != 1280 || len(cfg.Rules.Materials) != 1 {
		t.Fatalf("validation block should overlay defaults: %+v", cfg.Rules)
	}

	q, err := cfg.QualitySettings()
	if err != nil {
		t.Fatalf("QualitySettings: %v", err)
	}
	if q.Samples != 256 || q.Device != render.DeviceCPU {
		t.Fatalf("quality = %+v", q)
	}
}

func TestLoad_SamplesOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "renderqa.yaml")
	if err := os.WriteFile(path, []byte("quality: quick\nsamples: 48\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	q, err := cfg.QualitySettings()
	if err != nil || q.Samples != 48 {
		t.Fatalf("file samples not applied: %+v %v", q, err)
	}

	t.Setenv("RENDERQA_SAMPLES", "12")
	if cfg, err = Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if q, _ := cfg.QualitySettings(); q.Samples != 12 {
		t.Fatalf("env should override file samples, got %d", q.Samples)
	}

	t.Setenv("RENDERQA_SAMPLES", "-3")
	if _, err := Load(path); err == nil {
		t.Fatalf("negative samples must be rejected")
	}
	t.Setenv("RENDERQA_SAMPLES", "many")
	if _, err := Load(path); err == nil {
		t.Fatalf("non-numeric samples must be rejected")
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.yaml")
	if err := os.WriteFile(unknown, []byte("renderr: typo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cases := map[string]func() error{
		"missing file": func() error { _, err := Load(filepath.Join(dir, "absent.yaml")); return err },
		"unknown key":  func() error { _, err := Load(unknown); return err },
		"bad env": func() error {
			t.Setenv("RENDERQA_SUCCESS_THRESHOLD", "lots")
			defer t.Setenv("RENDERQA_SUCCESS_THRESHOLD", "")
			_, err := Load("")
			return err
		},
		"bad preset": func() error {
			t.Setenv("RENDERQA_QUALITY", "ultra")
			defer t.Setenv("RENDERQA_QUALITY", "")
			_, err := Load("")
			return err
		},
	}
	for name, run := range cases {
		err := run()
		var cerr *Error
		if !errors.As(err, &cerr) {
			t.Fatalf("%s: expected *config.Error, got %v", name, err)
		}
		if !strings.HasPrefix(err.Error(), "configuration error: ") {
			t.Fatalf("%s: unexpected message %q", name, err)
		}
	}
}

func TestErrorf_KeepsCause(t *testing.T) {
	err := Errorf("scene %s: %w", "a.blend", os.ErrNotExist)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("cause lost: %v", err)
	}
	if err.Error() != "configuration error: scene a.blend: "+os.ErrNotExist.Error() {
		t.Fatalf("message = %q", err.Error())
	}
}

// chdirForTest mirrors testing.T.Chdir (Go 1.24+) for older toolchains:
// it changes the working directory and restores it when the test ends.
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
