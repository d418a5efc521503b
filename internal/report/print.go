package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Print writes the human-readable summary: a per-frame table, the gates and
// the failing frames.
func (r Report) Print(w io.Writer) error {
	p := message.NewPrinter(language.English)
	title := cases.Title(language.English)

	p.Fprintf(w, "%s report for %s: %s\n", title.String(string(r.Kind)), r.Subject, r.Status)
	p.Fprintf(w, "Frames: %d total, %d passed, %d failed\n", r.Total, r.Passed, r.Failed)
	if r.AverageRenderTime != nil {
		p.Fprintf(w, "Average render time: %.2fs\n", *r.AverageRenderTime)
	}
	if r.AverageSimilarity != nil {
		p.Fprintf(w, "Average similarity: %.4f (threshold %.2f)\n", *r.AverageSimilarity, r.Threshold)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch r.Kind {
	case KindRegression:
		fmt.Fprintln(tw, "FRAME\tRESULT\tSIMILARITY\tIDENTICAL\tERROR")
		for _, f := range r.Frames() {
			sim, ident := "-", "-"
			if f.Comparison != nil {
				sim = fmt.Sprintf("%.4f", f.Comparison.Similarity)
				ident = fmt.Sprintf("%t", f.Comparison.Identical)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", f.Frame, verdict(f.Passed), sim, ident, f.errorText())
		}
	default:
		fmt.Fprintln(tw, "FRAME\tRESULT\tRENDER TIME\tERROR")
		for _, f := range r.Frames() {
			rt := "-"
			if f.Render != nil && f.Render.RenderTime != nil {
				rt = fmt.Sprintf("%.2fs", *f.Render.RenderTime)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", f.Frame, verdict(f.Passed), rt, f.errorText())
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	for _, g := range r.Gates {
		op := ">="
		if g.AtMost {
			op = "<="
		}
		p.Fprintf(w, "Gate %-13s %s  actual %.4f %s %.4f\n", g.Name, verdict(g.Passed), g.Actual, op, g.Threshold)
	}
	if len(r.FailedFrames) > 0 {
		nums := make([]string, len(r.FailedFrames))
		for i, n := range r.FailedFrames {
			nums[i] = fmt.Sprint(n)
		}
		fmt.Fprintf(w, "Failing frames: %s\n", strings.Join(nums, ", "))
	}
	if len(r.FailedGates) > 0 {
		fmt.Fprintf(w, "Failed gates: %s\n", strings.Join(r.FailedGates, ", "))
	}
	return nil
}

func verdict(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}
