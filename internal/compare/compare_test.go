package compare

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"renderqa/internal/logging"
	"renderqa/internal/trace"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestHeuristic_IdenticalFiles(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.png", []byte("same bytes"))
	tst := writeFile(t, dir, "test.png", []byte("same bytes"))

	m, err := Heuristic{}.Compare(ref, tst)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !m.Identical || !m.HashMatch || m.Similarity != 1.0 {
		t.Fatalf("identical files: %+v", m)
	}
}

func TestHeuristic_LargeSizeDelta(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.png", bytes.Repeat([]byte{1}, 1000))
	tst := writeFile(t, dir, "test.png", bytes.Repeat([]byte{2}, 600))

	m, err := Heuristic{}.Compare(ref, tst)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if m.SizeMatch || m.Identical || m.HashMatch {
		t.Fatalf("unexpected flags %+v", m)
	}
	if math.Abs(m.Similarity-0.2) > 1e-9 {
		t.Fatalf("similarity = %v, want 0.2", m.Similarity)
	}
	if m.Passed(DefaultThreshold) {
		t.Fatalf("frame should fail the default threshold")
	}
}

func TestHeuristic_SmallSizeDelta(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.png", bytes.Repeat([]byte{1}, 1000))
	tst := writeFile(t, dir, "test.png", bytes.Repeat([]byte{2}, 980))

	m, err := Heuristic{}.Compare(ref, tst)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !m.SizeMatch || math.Abs(m.Similarity-0.98) > 1e-9 {
		t.Fatalf("unexpected metric %+v", m)
	}
}

func TestHeuristic_FloorsAtZero(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.png", bytes.Repeat([]byte{1}, 100))
	tst := writeFile(t, dir, "test.png", bytes.Repeat([]byte{2}, 400))

	m, err := Heuristic{}.Compare(ref, tst)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if m.Similarity != 0 {
		t.Fatalf("similarity = %v, want 0", m.Similarity)
	}
}

func TestCompare_MissingFile(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.png", []byte("x"))
	for _, c := range []Comparator{Heuristic{}, Pixel{}} {
		m, err := c.Compare(ref, filepath.Join(dir, "absent.png"))
		var cerr *Error
		if !errors.As(err, &cerr) || !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%T: expected *Error wrapping ErrNotExist, got %v", c, err)
		}
		if m.Similarity != 0 || m.Error == "" {
			t.Fatalf("%T: unexpected metric %+v", c, m)
		}
	}
}

func encodePNG(t *testing.T, w, h int, fill func(x, y int) color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestPixel(t *testing.T) {
	dir := t.TempDir()
	black := func(int, int) color.NRGBA { return color.NRGBA{A: 255} }
	halfWhite := func(x, _ int) color.NRGBA {
		if x < 2 {
			return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		}
		return color.NRGBA{A: 255}
	}
	ref := writeFile(t, dir, "ref.png", encodePNG(t, 4, 4, black))
	same := writeFile(t, dir, "same.png", encodePNG(t, 4, 4, black))
	half := writeFile(t, dir, "half.png", encodePNG(t, 4, 4, halfWhite))
	wide := writeFile(t, dir, "wide.png", encodePNG(t, 8, 4, black))
	junk := writeFile(t, dir, "junk.png", []byte("not an image"))

	m, err := Pixel{}.Compare(ref, same)
	if err != nil || !m.Identical || m.Similarity != 1 {
		t.Fatalf("identical: %+v %v", m, err)
	}

	// Half the pixels differ in 3 of 4 channels: mean delta 0.375.
	m, err = Pixel{}.Compare(ref, half)
	if err != nil {
		t.Fatalf("half: %v", err)
	}
	if !m.SizeMatch || math.Abs(m.Similarity-0.625) > 1e-9 {
		t.Fatalf("half: %+v", m)
	}

	m, err = Pixel{}.Compare(ref, wide)
	if err != nil || m.SizeMatch || m.Similarity != 0 {
		t.Fatalf("dimension mismatch: %+v %v", m, err)
	}

	m, err = Pixel{}.Compare(ref, junk)
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Path != junk || m.Similarity != 0 {
		t.Fatalf("undecodable: %+v %v", m, err)
	}
}

func TestPixel_RejectsOversizedFrames(t *testing.T) {
	dir := t.TempDir()
	black := func(int, int) color.NRGBA { return color.NRGBA{A: 255} }
	ref := writeFile(t, dir, "ref.png", encodePNG(t, 20, 20, black))
	big := writeFile(t, dir, "big.png", encodePNG(t, 20, 20, func(int, int) color.NRGBA { return color.NRGBA{R: 1, A: 255} }))

	m, err := Pixel{MaxPixels: 100}.Compare(ref, big)
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Path != ref || !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge for %s, got %v", ref, err)
	}
	if m.Error == "" || m.Passed(0) {
		t.Fatalf("oversized frame must produce an error metric: %+v", m)
	}

	if m, err := (Pixel{MaxPixels: 400}).Compare(ref, big); err != nil || !m.SizeMatch {
		t.Fatalf("frame at the limit should decode: %+v %v", m, err)
	}
}

func TestRunner_PairsAndSummary(t *testing.T) {
	refDir, testDir := t.TempDir(), t.TempDir()
	writeFile(t, refDir, "frame_0001.png", []byte("frame one"))
	writeFile(t, refDir, "frame_0002.png", bytes.Repeat([]byte{1}, 1000))
	writeFile(t, testDir, "frame_0001.png", []byte("frame one"))
	writeFile(t, testDir, "frame_0002.png", bytes.Repeat([]byte{2}, 600))

	refFiles := map[int]string{
		1: filepath.Join(refDir, "frame_0001.png"),
		2: filepath.Join(refDir, "frame_0002.png"),
	}
	pairs := PairFrames([]int{1, 2, 3}, refFiles, refDir, testDir, "png")
	if pairs[2].Reference != filepath.Join(refDir, "frame_0003.png") {
		t.Fatalf("missing reference should map to its expected path: %+v", pairs[2])
	}

	rec := trace.NewRecorder()
	r := &Runner{Comparator: Heuristic{}, Logger: logging.Nop(), Trace: rec}
	metrics, err := r.Run(context.Background(), pairs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(metrics) != 3 || metrics[2].Frame != 3 || metrics[2].Error == "" {
		t.Fatalf("unexpected metrics %+v", metrics)
	}

	s := Summarize(metrics, DefaultThreshold)
	if s.Compared != 2 || s.Errors != 1 || s.Passed != 1 || s.Failed != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.MeanSimilarity == nil || math.Abs(*s.MeanSimilarity-0.6) > 1e-9 || s.Pass {
		t.Fatalf("mean similarity should be 0.6 and fail: %+v", s)
	}

	events := rec.Trace("demo").Events
	if len(events) != 3 || events[2].Kind != trace.FrameCompareFailed || events[2].Reason != "missing_reference" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestSummarize_AllIdenticalPasses(t *testing.T) {
	s := Summarize([]Metric{{Frame: 1, Identical: true, Similarity: 1}, {Frame: 2, Identical: true, Similarity: 1}}, DefaultThreshold)
	if !s.Pass || *s.MeanSimilarity != 1.0 || s.Passed != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if empty := Summarize(nil, DefaultThreshold); empty.Pass || empty.MeanSimilarity != nil {
		t.Fatalf("empty summary must not pass: %+v", empty)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	metrics, err := (&Runner{Logger: logging.Nop()}).Run(ctx, []Pair{{Frame: 1}})
	if !errors.Is(err, context.Canceled) || len(metrics) != 0 {
		t.Fatalf("expected cancellation before any comparison, got %v %v", metrics, err)
	}
}
