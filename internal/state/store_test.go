package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStore_SaveAndLoadRun_FinishTimeNullable(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	run := Run{
		RunID:     "run-123",
		Command:   "render-validate",
		Subject:   "shot.blend",
		StartTime: time.Unix(1, 2).UTC(),
		Status:    RunStatusRunning,
	}
	if err := store.SaveRun(run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(base, ".renderqa", "runs", "run-123", "run.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "\"finish_time\": null") {
		t.Fatalf("expected finish_time to be null; got: %s", string(data))
	}

	loaded, err := store.LoadRun("run-123")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if loaded.RunID != run.RunID || loaded.Command != run.Command || loaded.FinishTime != nil {
		t.Fatalf("loaded run mismatch: %+v", loaded)
	}
}

func TestStore_RejectsInvalidRecords(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRun(Run{RunID: "r", Command: "x", StartTime: time.Now(), Status: "weird"}); err == nil {
		t.Fatalf("expected invalid status to be rejected")
	}
	if err := store.SaveRun(Run{RunID: "../escape", Command: "x", StartTime: time.Now(), Status: RunStatusRunning}); err == nil {
		t.Fatalf("expected path-like run id to be rejected")
	}
	if err := store.SaveFailure("r", Failure{FailureClass: "graph", ErrorCode: "x", ErrorMessage: "y"}); err == nil {
		t.Fatalf("expected unknown failure class to be rejected")
	}
	if _, err := NewStore(" "); err == nil {
		t.Fatalf("expected empty base dir to be rejected")
	}
}

func TestStore_LoadRunRejectsUnknownFields(t *testing.T) {
	base := t.TempDir()
	store, _ := NewStore(base)
	dir := filepath.Join(base, ".renderqa", "runs", "r1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	doc := `{"run_id":"r1","command":"c","subject":"s","start_time":"2026-01-01T00:00:00Z","finish_time":null,"status":"running","exit_code":0,"extra":1}`
	if err := os.WriteFile(filepath.Join(dir, "run.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.LoadRun("r1"); err == nil {
		t.Fatalf("expected strict decoding to reject unknown field")
	}
}
