package report

import (
	"errors"
	"fmt"
	"time"

	"renderqa/internal/compare"
	"renderqa/internal/render"
)

const (
	DefaultSuccessRate   = 0.80
	DefaultMaxRenderTime = 20 * time.Second
	DefaultSimilarity    = compare.DefaultThreshold
)

// Gates holds the thresholds applied to a report. A zero MaxRenderTime
// disables the performance gate. MinPassRate, when set, replaces SuccessRate
// for regression reports.
type Gates struct {
	SuccessRate   float64
	MaxRenderTime time.Duration
	Similarity    float64
	MinPassRate   float64
}

func DefaultGates() Gates {
	return Gates{
		SuccessRate:   DefaultSuccessRate,
		MaxRenderTime: DefaultMaxRenderTime,
		Similarity:    DefaultSimilarity,
	}
}

func (g Gates) Validate() error {
	var errs []error
	if g.SuccessRate <= 0 || g.SuccessRate > 1 {
		errs = append(errs, fmt.Errorf("success rate threshold must be in (0,1] (got %v)", g.SuccessRate))
	}
	if g.Similarity <= 0 || g.Similarity > 1 {
		errs = append(errs, fmt.Errorf("similarity threshold must be in (0,1] (got %v)", g.Similarity))
	}
	if g.MinPassRate < 0 || g.MinPassRate > 1 {
		errs = append(errs, fmt.Errorf("min pass rate must be in [0,1] (got %v)", g.MinPassRate))
	}
	if g.MaxRenderTime < 0 {
		errs = append(errs, fmt.Errorf("max render time must not be negative (got %s)", g.MaxRenderTime))
	}
	return errors.Join(errs...)
}

func rate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total)
}

func atLeast(name string, actual, threshold float64) Gate {
	return Gate{Name: name, Threshold: threshold, Actual: actual, Passed: actual >= threshold}
}

// Render builds a render-validation report. Gates: success rate, and
// average render time when a ceiling is set and at least one frame succeeded.
func Render(job render.JobResult, gates Gates, meta Meta) Report {
	r := newReport(KindRender, meta)
	r.Total = job.Total
	r.Passed = job.Successes
	r.Failed = job.Failures
	r.Threshold = gates.SuccessRate
	r.AverageRenderTime = job.AverageRenderTime
	wall := job.TotalWallTime
	r.TotalWallTime = &wall

	for i := range job.Frames {
		res := job.Frames[i]
		r.FrameResults[res.Frame] = FrameResult{Frame: res.Frame, Passed: res.Success, Render: &res}
	}

	r.Gates = append(r.Gates, atLeast(GateSuccessRate, rate(job.Successes, job.Total), gates.SuccessRate))
	if gates.MaxRenderTime > 0 && job.AverageRenderTime != nil {
		ceiling := gates.MaxRenderTime.Seconds()
		avg := *job.AverageRenderTime
		r.Gates = append(r.Gates, Gate{Name: GatePerformance, Threshold: ceiling, Actual: avg, Passed: avg <= ceiling, AtMost: true})
	}
	r.finish()
	return r
}

// Regression builds a regression report. Gates: mean similarity, and the
// fraction of frames at or above the similarity threshold.
func Regression(metrics []compare.Metric, gates Gates, meta Meta) Report {
	r := newReport(KindRegression, meta)
	summary := compare.Summarize(metrics, gates.Similarity)
	r.Total = summary.Total
	r.Passed = summary.Passed
	r.Failed = summary.Failed
	r.Threshold = gates.Similarity
	r.AverageSimilarity = summary.MeanSimilarity

	for i := range metrics {
		m := metrics[i]
		r.FrameResults[m.Frame] = FrameResult{Frame: m.Frame, Passed: m.Passed(gates.Similarity), Comparison: &m}
	}

	mean := 0.0
	if summary.MeanSimilarity != nil {
		mean = *summary.MeanSimilarity
	}
	r.Gates = append(r.Gates, Gate{Name: GateSimilarity, Threshold: gates.Similarity, Actual: mean, Passed: summary.Pass})
	passRate := gates.SuccessRate
	if gates.MinPassRate > 0 {
		passRate = gates.MinPassRate
	}
	r.Gates = append(r.Gates, atLeast(GateSuccessRate, rate(summary.Passed, summary.Total), passRate))
	r.finish()
	return r
}
