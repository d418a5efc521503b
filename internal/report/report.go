// Package report turns render and comparison outcomes into a gated
// ValidationReport, persists it as validation_results.json and prints a
// per-frame summary.
package report

import (
	"path/filepath"
	"sort"
	"time"

	"renderqa/internal/artifact"
	"renderqa/internal/compare"
	"renderqa/internal/render"
)

// FileName is the report written into the run directory.
const FileName = "validation_results.json"

type Kind string

const (
	KindRender     Kind = "render"
	KindRegression Kind = "regression"
)

type Status string

const (
	StatusPassed Status = "PASSED"
	StatusFailed Status = "FAILED"
)

const (
	GateSuccessRate = "success_rate"
	GatePerformance = "performance"
	GateSimilarity  = "similarity"
)

// Gate is one evaluated threshold check.
type Gate struct {
	Name      string  `json:"name"`
	Threshold float64 `json:"threshold"`
	Actual    float64 `json:"actual"`
	Passed    bool    `json:"passed"`
	// AtMost flips the comparison: Actual must not exceed Threshold.
	AtMost bool `json:"at_most,omitempty"`
}

// FrameResult carries exactly one of Render or Comparison.
type FrameResult struct {
	Frame      int             `json:"frame"`
	Passed     bool            `json:"passed"`
	Render     *render.Result  `json:"render,omitempty"`
	Comparison *compare.Metric `json:"comparison,omitempty"`
}

func (f FrameResult) errorText() string {
	switch {
	case f.Render != nil:
		return f.Render.Error
	case f.Comparison != nil:
		return f.Comparison.Error
	}
	return ""
}

// Meta identifies the run a report belongs to.
type Meta struct {
	RunID      string
	Subject    string
	Project    string
	StartedAt  time.Time
	FinishedAt time.Time
	Quality    *render.Quality
}

// Report is the terminal artifact of a run.
type Report struct {
	Kind              Kind                `json:"kind"`
	RunID             string              `json:"run_id,omitempty"`
	Subject           string              `json:"subject"`
	Project           string              `json:"project,omitempty"`
	Total             int                 `json:"total"`
	Passed            int                 `json:"passed"`
	Failed            int                 `json:"failed"`
	FrameResults      map[int]FrameResult `json:"frame_results"`
	AverageRenderTime *float64            `json:"average_render_time,omitempty"`
	TotalWallTime     *float64            `json:"total_wall_time,omitempty"`
	AverageSimilarity *float64            `json:"average_similarity,omitempty"`
	Threshold         float64             `json:"threshold"`
	Gates             []Gate              `json:"gates"`
	FailedFrames      []int               `json:"failed_frames"`
	FailedGates       []string            `json:"failed_gates"`
	Status            Status              `json:"status"`
	Quality           *render.Quality     `json:"quality,omitempty"`
	StartedAt         time.Time           `json:"started_at"`
	FinishedAt        time.Time           `json:"finished_at"`
}

func newReport(kind Kind, meta Meta) Report {
	return Report{
		Kind:         kind,
		RunID:        meta.RunID,
		Subject:      meta.Subject,
		Project:      meta.Project,
		FrameResults: map[int]FrameResult{},
		FailedFrames: []int{},
		FailedGates:  []string{},
		Quality:      meta.Quality,
		StartedAt:    meta.StartedAt.UTC(),
		FinishedAt:   meta.FinishedAt.UTC(),
	}
}

// finish derives failing frames/gates and the overall status.
func (r *Report) finish() {
	for n, f := range r.FrameResults {
		if !f.Passed {
			r.FailedFrames = append(r.FailedFrames, n)
		}
	}
	sort.Ints(r.FailedFrames)
	r.Status = StatusPassed
	for _, g := range r.Gates {
		if !g.Passed {
			r.FailedGates = append(r.FailedGates, g.Name)
			r.Status = StatusFailed
		}
	}
}

// Frames returns frame results in frame order.
func (r Report) Frames() []FrameResult {
	out := make([]FrameResult, 0, len(r.FrameResults))
	for _, f := range r.FrameResults {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Frame < out[j].Frame })
	return out
}

func (r Report) Gate(name string) (Gate, bool) {
	for _, g := range r.Gates {
		if g.Name == name {
			return g, true
		}
	}
	return Gate{}, false
}

// ExitCode is 0 when the report passed and 1 otherwise.
func (r Report) ExitCode() int {
	if r.Status == StatusPassed {
		return 0
	}
	return 1
}

// Write persists the report to dir/validation_results.json and returns the path.
func (r Report) Write(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if err := artifact.WriteJSON(path, r); err != nil {
		return "", err
	}
	return path, nil
}

// Read loads a report written by Write.
func Read(path string) (Report, error) {
	var r Report
	if err := artifact.ReadJSONStrict(path, &r); err != nil {
		return Report{}, err
	}
	return r, nil
}
