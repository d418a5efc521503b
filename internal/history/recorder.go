package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"renderqa/internal/logging"
	"renderqa/internal/report"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS renderqa_reports (
    run_id              TEXT PRIMARY KEY,
    kind                TEXT NOT NULL,
    subject             TEXT NOT NULL,
    project             TEXT,
    status              TEXT NOT NULL,
    total               INTEGER NOT NULL,
    passed              INTEGER NOT NULL,
    failed              INTEGER NOT NULL,
    threshold           DOUBLE PRECISION NOT NULL,
    average_render_time DOUBLE PRECISION,
    average_similarity  DOUBLE PRECISION,
    failed_gates        TEXT[] NOT NULL,
    started_at          TIMESTAMPTZ NOT NULL,
    finished_at         TIMESTAMPTZ NOT NULL,
    report              JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS renderqa_frame_results (
    run_id      TEXT NOT NULL REFERENCES renderqa_reports(run_id) ON DELETE CASCADE,
    frame       INTEGER NOT NULL,
    passed      BOOLEAN NOT NULL,
    render_time DOUBLE PRECISION,
    similarity  DOUBLE PRECISION,
    error       TEXT,
    PRIMARY KEY (run_id, frame)
);
`

const insertReport = `
INSERT INTO renderqa_reports (
    run_id, kind, subject, project, status, total, passed, failed, threshold,
    average_render_time, average_similarity, failed_gates, started_at, finished_at, report
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
) ON CONFLICT (run_id) DO UPDATE SET
    status = EXCLUDED.status,
    total = EXCLUDED.total,
    passed = EXCLUDED.passed,
    failed = EXCLUDED.failed,
    average_render_time = EXCLUDED.average_render_time,
    average_similarity = EXCLUDED.average_similarity,
    failed_gates = EXCLUDED.failed_gates,
    finished_at = EXCLUDED.finished_at,
    report = EXCLUDED.report;
`

const insertFrame = `
INSERT INTO renderqa_frame_results (run_id, frame, passed, render_time, similarity, error)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (run_id, frame) DO UPDATE SET
    passed = EXCLUDED.passed,
    render_time = EXCLUDED.render_time,
    similarity = EXCLUDED.similarity,
    error = EXCLUDED.error;
`

// Recorder writes reports through an Execer.
type Recorder struct {
	DB     Execer
	Logger logging.Logger

	schemaReady bool
}

func NewRecorder(db Execer, logger logging.Logger) *Recorder {
	return &Recorder{DB: db, Logger: logger}
}

// EnsureSchema creates the history tables if they do not exist.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if r.schemaReady {
		return nil
	}
	if _, err := r.DB.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	r.schemaReady = true
	return nil
}

// Record upserts rep and its per-frame rows. Reports without a run id are rejected.
func (r *Recorder) Record(ctx context.Context, rep report.Report) error {
	if rep.RunID == "" {
		return fmt.Errorf("record history: report has no run id")
	}
	if err := r.EnsureSchema(ctx); err != nil {
		return err
	}
	doc, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	var project *string
	if rep.Project != "" {
		project = &rep.Project
	}
	if _, err := r.DB.Exec(ctx, insertReport,
		rep.RunID,
		string(rep.Kind),
		rep.Subject,
		project,
		string(rep.Status),
		rep.Total,
		rep.Passed,
		rep.Failed,
		rep.Threshold,
		rep.AverageRenderTime,
		rep.AverageSimilarity,
		rep.FailedGates,
		rep.StartedAt,
		rep.FinishedAt,
		string(doc),
	); err != nil {
		return fmt.Errorf("insert report %s: %w", rep.RunID, err)
	}

	for _, f := range rep.Frames() {
		var renderTime, similarity *float64
		var errText *string
		switch {
		case f.Render != nil:
			renderTime = f.Render.RenderTime
			if f.Render.Error != "" {
				errText = &f.Render.Error
			}
		case f.Comparison != nil:
			if f.Comparison.Error == "" {
				s := f.Comparison.Similarity
				similarity = &s
			} else {
				errText = &f.Comparison.Error
			}
		}
		if _, err := r.DB.Exec(ctx, insertFrame, rep.RunID, f.Frame, f.Passed, renderTime, similarity, errText); err != nil {
			return fmt.Errorf("insert frame %d of %s: %w", f.Frame, rep.RunID, err)
		}
	}
	r.Logger.Debug().Str("run_id", rep.RunID).Int("frames", len(rep.FrameResults)).Msg("report recorded in history")
	return nil
}
