package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDigestFile_ContentOnly(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "nested", "b.png")
	if err := os.MkdirAll(filepath.Dir(b), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(a, []byte("pixels"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("pixels"), 0o600); err != nil {
		t.Fatal(err)
	}

	da, err := DigestFile(a)
	if err != nil {
		t.Fatalf("DigestFile(a): %v", err)
	}
	db, err := DigestFile(b)
	if err != nil {
		t.Fatalf("DigestFile(b): %v", err)
	}
	if da != db {
		t.Fatalf("same content, different digests: %s vs %s", da, db)
	}
	if da != DigestBytes([]byte("pixels")) {
		t.Fatalf("file digest differs from bytes digest")
	}
	if len(da.String()) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(da.String()))
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.png")
	full := filepath.Join(dir, "full.png")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		path    string
		missing bool
	}{
		{name: "absent", path: filepath.Join(dir, "nope.png"), missing: true},
		{name: "empty", path: empty, missing: true},
		{name: "directory", path: dir, missing: true},
		{name: "present", path: full},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			size, err := Check(tc.path)
			if tc.missing {
				if !errors.Is(err, ErrMissing) {
					t.Fatalf("expected ErrMissing, got %v", err)
				}
				return
			}
			if err != nil || size != 3 {
				t.Fatalf("size=%d err=%v", size, err)
			}
		})
	}
}

func TestCopy_ReturnsDigestAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	dst := filepath.Join(dir, "out", "ref", "frame_0001.png")
	if err := os.WriteFile(src, []byte("frame-1"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := Copy(src, dst)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if d != DigestBytes([]byte("frame-1")) {
		t.Fatalf("unexpected digest %s", d)
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "frame-1" {
		t.Fatalf("dst content %q err=%v", got, err)
	}
	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteJSONAndReadStrict(t *testing.T) {
	type record struct {
		Frame int    `json:"frame"`
		Note  string `json:"note"`
	}
	path := filepath.Join(t.TempDir(), "meta.json")
	if err := WriteJSON(path, record{Frame: 7, Note: "ok"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(raw), "}\n") {
		t.Fatalf("expected trailing newline: %q", raw)
	}

	var got record
	if err := ReadJSONStrict(path, &got); err != nil {
		t.Fatalf("ReadJSONStrict: %v", err)
	}
	if got.Frame != 7 || got.Note != "ok" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if err := os.WriteFile(path, []byte(`{"frame":1,"note":"x","extra":true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ReadJSONStrict(path, &got); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if err := os.WriteFile(path, []byte(`{"frame":1,"note":"x"}{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ReadJSONStrict(path, &got); err == nil {
		t.Fatalf("expected trailing content error")
	}
}
