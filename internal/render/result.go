package render

import "time"

// Result is the outcome of one frame. RenderTime is set exactly when Success
// is true and Error exactly when it is false; use succeeded and failed to build one.
type Result struct {
	Frame      int      `json:"frame"`
	Success    bool     `json:"success"`
	RenderTime *float64 `json:"render_time,omitempty"`
	WallTime   float64  `json:"wall_time"`
	OutputPath string   `json:"output_path"`
	Digest     string   `json:"digest,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func succeeded(frame int, output string, elapsed time.Duration, digest string) Result {
	secs := elapsed.Seconds()
	return Result{
		Frame:      frame,
		Success:    true,
		RenderTime: &secs,
		WallTime:   secs,
		OutputPath: output,
		Digest:     digest,
	}
}

func failed(frame int, output string, elapsed time.Duration, err error) Result {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Result{
		Frame:      frame,
		Success:    false,
		WallTime:   elapsed.Seconds(),
		OutputPath: output,
		Error:      msg,
	}
}

// JobResult aggregates a finished job.
type JobResult struct {
	Total             int      `json:"total"`
	Successes         int      `json:"successes"`
	Failures          int      `json:"failures"`
	Frames            []Result `json:"per_frame"`
	TotalWallTime     float64  `json:"total_wall_time"`
	AverageRenderTime *float64 `json:"average_render_time,omitempty"`
}

// Summarize derives aggregate statistics. The average covers successful frames only.
func Summarize(results []Result, wall time.Duration) JobResult {
	out := JobResult{
		Total:         len(results),
		Frames:        append([]Result(nil), results...),
		TotalWallTime: wall.Seconds(),
	}
	var sum float64
	for _, r := range results {
		if r.Success {
			out.Successes++
			if r.RenderTime != nil {
				sum += *r.RenderTime
			}
			continue
		}
		out.Failures++
	}
	if out.Successes > 0 {
		avg := sum / float64(out.Successes)
		out.AverageRenderTime = &avg
	}
	return out
}

// FailedFrames lists failing frame numbers in job order.
func (j JobResult) FailedFrames() []int {
	var out []int
	for _, r := range j.Frames {
		if !r.Success {
			out = append(out, r.Frame)
		}
	}
	return out
}

// Succeeded returns the successful results in job order.
func (j JobResult) Succeeded() []Result {
	var out []Result
	for _, r := range j.Frames {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}
