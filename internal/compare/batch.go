package compare

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"renderqa/internal/logging"
	"renderqa/internal/render"
	"renderqa/internal/trace"
)

// Pair names the two files compared for one frame.
type Pair struct {
	Frame     int
	Reference string
	Test      string
}

// PairFrames matches each reference frame to frame_<NNNN>.<format> under
// testDir. Frames with no stored reference file point at the path the
// reference would have, so the comparison records it as missing.
func PairFrames(frames []int, refFiles map[int]string, refDir, testDir, format string) []Pair {
	pairs := make([]Pair, 0, len(frames))
	for _, f := range frames {
		ref, ok := refFiles[f]
		if !ok {
			ref = filepath.Join(refDir, render.FrameFileName(f, format))
		}
		pairs = append(pairs, Pair{
			Frame:     f,
			Reference: ref,
			Test:      filepath.Join(testDir, render.FrameFileName(f, format)),
		})
	}
	return pairs
}

// Runner compares pairs sequentially.
type Runner struct {
	Comparator Comparator
	Logger     logging.Logger
	Trace      trace.Sink
}

// Run compares every pair. A failed comparison becomes an error metric and
// never stops the batch; cancelling ctx returns the metrics so far with ctx's error.
func (r *Runner) Run(ctx context.Context, pairs []Pair) ([]Metric, error) {
	c := r.Comparator
	if c == nil {
		c = Heuristic{}
	}
	metrics := make([]Metric, 0, len(pairs))
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return metrics, err
		}
		m, err := c.Compare(p.Reference, p.Test)
		m.Frame = p.Frame
		metrics = append(metrics, m)

		if err != nil {
			var cerr *Error
			if !errors.As(err, &cerr) {
				return metrics, fmt.Errorf("frame %d: %w", p.Frame, err)
			}
			r.Logger.Warn().Int("frame", p.Frame).Err(err).Msg("comparison failed")
			trace.SafeRecord(r.Trace, trace.Event{Kind: trace.FrameCompareFailed, Frame: p.Frame, Reason: failureReason(p, cerr)})
			continue
		}
		r.Logger.Debug().Int("frame", p.Frame).Float64("similarity", m.Similarity).Bool("identical", m.Identical).Msg("frame compared")
		trace.SafeRecord(r.Trace, trace.Event{Kind: trace.FrameCompared, Frame: p.Frame, Reason: fmt.Sprintf("%.6f", m.Similarity)})
	}
	return metrics, nil
}

func failureReason(p Pair, err *Error) string {
	switch {
	case err.Path == p.Reference && errors.Is(err, os.ErrNotExist):
		return "missing_reference"
	case err.Path == p.Test && errors.Is(err, os.ErrNotExist):
		return "missing_test"
	default:
		return "unreadable"
	}
}

// Summary aggregates metrics against a threshold.
type Summary struct {
	Total          int      `json:"total"`
	Compared       int      `json:"compared"`
	Errors         int      `json:"errors"`
	Passed         int      `json:"passed"`
	Failed         int      `json:"failed"`
	MeanSimilarity *float64 `json:"average_similarity,omitempty"`
	Threshold      float64  `json:"threshold"`
	Pass           bool     `json:"pass"`
}

// Summarize averages similarity over non-error metrics. A run with no
// successful comparison has no mean and does not pass.
func Summarize(metrics []Metric, threshold float64) Summary {
	s := Summary{Total: len(metrics), Threshold: threshold}
	var sum float64
	for _, m := range metrics {
		if m.Error != "" {
			s.Errors++
		} else {
			s.Compared++
			sum += m.Similarity
		}
		if m.Passed(threshold) {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	if s.Compared > 0 {
		mean := sum / float64(s.Compared)
		s.MeanSimilarity = &mean
		s.Pass = mean >= threshold
	}
	return s
}
