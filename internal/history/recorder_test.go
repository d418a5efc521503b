package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"renderqa/internal/compare"
	"renderqa/internal/logging"
	"renderqa/internal/render"
	"renderqa/internal/report"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls  []execCall
	failOn string
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errors.New("db unavailable")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func regressionReport() report.Report {
	metrics := []compare.Metric{
		{Frame: 1, Identical: true, Similarity: 1},
		{Frame: 2, Error: "compare b.png: missing"},
	}
	return report.Regression(metrics, report.DefaultGates(), report.Meta{
		RunID: "run-1", Subject: "demo", Project: "demo",
		StartedAt: time.Unix(0, 0), FinishedAt: time.Unix(5, 0),
	})
}

func TestRecord_WritesReportAndFrames(t *testing.T) {
	db := &fakeExecer{}
	rec := NewRecorder(db, logging.Nop())

	if err := rec.Record(context.Background(), regressionReport()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(db.calls) != 4 {
		t.Fatalf("expected schema + report + 2 frames, got %d calls", len(db.calls))
	}
	if !strings.Contains(db.calls[0].sql, "CREATE TABLE IF NOT EXISTS renderqa_reports") {
		t.Fatalf("first statement should create the schema")
	}
	reportArgs := db.calls[1].args
	if reportArgs[0] != "run-1" || reportArgs[4] != "FAILED" {
		t.Fatalf("unexpected report args %v", reportArgs[:5])
	}
	frame2 := db.calls[3].args
	if frame2[1] != 2 || frame2[2] != false || frame2[4].(*float64) != nil || *frame2[5].(*string) == "" {
		t.Fatalf("unexpected frame args %v", frame2)
	}

	if err := rec.Record(context.Background(), regressionReport()); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(db.calls[4].sql, "CREATE TABLE") {
		t.Fatalf("schema should be created once per recorder")
	}
}

func TestRecord_RenderFrames(t *testing.T) {
	rt := 1.5
	job := render.Summarize([]render.Result{{Frame: 1, Success: true, RenderTime: &rt}}, time.Second)
	rep := report.Render(job, report.DefaultGates(), report.Meta{RunID: "run-2", Subject: "shot.blend"})

	db := &fakeExecer{}
	if err := NewRecorder(db, logging.Nop()).Record(context.Background(), rep); err != nil {
		t.Fatalf("Record: %v", err)
	}
	frame := db.calls[2].args
	if got := frame[3].(*float64); got == nil || *got != 1.5 {
		t.Fatalf("render time not recorded: %v", frame)
	}
	if db.calls[1].args[3].(*string) != nil {
		t.Fatalf("render reports have no project")
	}
}

func TestRecord_Errors(t *testing.T) {
	db := &fakeExecer{failOn: "renderqa_frame_results (run_id"}
	err := NewRecorder(db, logging.Nop()).Record(context.Background(), regressionReport())
	if err == nil || !strings.Contains(err.Error(), "insert frame 1") {
		t.Fatalf("expected frame insert error, got %v", err)
	}

	noID := regressionReport()
	noID.RunID = ""
	if err := NewRecorder(&fakeExecer{}, logging.Nop()).Record(context.Background(), noID); err == nil {
		t.Fatalf("expected missing run id to be rejected")
	}
}
