// Package reference persists golden frame sets per project and loads them back
// for regression comparison.
//
// Layout under the store root:
//
//	<root>/<project>/reference/frame_<NNNN>.<ext>
//	<root>/<project>/reference/metadata.json
//	<root>/<project>/reference/history/metadata-<timestamp>.json
package reference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"renderqa/internal/artifact"
	"renderqa/internal/logging"
	"renderqa/internal/render"
	"renderqa/internal/trace"
)

const (
	metadataFile = "metadata.json"
	historyDir   = "history"
)

// Renderer is the subset of the orchestrator a capture needs.
type Renderer interface {
	Run(ctx context.Context, spec render.JobSpec) (render.JobResult, error)
}

// Mirror receives a copy of every captured file. Implementations must be safe
// to call sequentially for one project; failures are logged, never fatal.
type Mirror interface {
	Upload(ctx context.Context, key string, path string) error
}

// Set is the persisted description of a captured reference set.
type Set struct {
	ProjectID  string         `json:"project_id"`
	CapturedAt time.Time      `json:"captured_at"`
	Scene      string         `json:"scene,omitempty"`
	Frames     []int          `json:"frames"`
	Quality    render.Quality `json:"quality"`
	Format     string         `json:"format"`
	Hashes     map[int]string `json:"per_frame_hash"`
}

// CaptureRequest describes one capture.
type CaptureRequest struct {
	Project string
	Scene   string
	Frames  []int
	Quality render.Quality
	Timeout time.Duration
	Format  string
	// Clear drops frame files of the previous set that the capture does not replace.
	Clear bool
}

// Store reads and writes reference sets. It has no internal locking; callers
// serialize capture and compare for the same project.
type Store struct {
	Root     string
	Renderer Renderer
	Mirror   Mirror
	Logger   logging.Logger
	Trace    trace.Sink

	now      func() time.Time
	copyFile func(src, dst string) (artifact.Digest, error)
}

func NewStore(root string, renderer Renderer, logger logging.Logger) *Store {
	return &Store{Root: root, Renderer: renderer, Logger: logger, Trace: trace.NopSink{}, now: time.Now}
}

// Dir is the reference directory for project.
func (s *Store) Dir(project string) string {
	return filepath.Join(s.Root, project, "reference")
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func validProject(project string) error {
	p := strings.TrimSpace(project)
	if p == "" {
		return errors.New("project is required")
	}
	if p != project || p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
		return fmt.Errorf("invalid project name %q", project)
	}
	return nil
}

// Capture renders the requested frames into a staging directory and, only if
// every frame succeeded, builds the new reference directory beside the current
// one and swaps it in. The previous metadata.json, if any, is archived under
// history/.
func (s *Store) Capture(ctx context.Context, req CaptureRequest) (Set, error) {
	if err := validProject(req.Project); err != nil {
		return Set{}, err
	}
	if s.Renderer == nil {
		return Set{}, errors.New("capture: no renderer configured")
	}
	format := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(req.Format)), ".")
	if format == "" {
		format = render.DefaultFormat
	}

	projectDir := filepath.Join(s.Root, req.Project)
	staging := filepath.Join(projectDir, ".capture-"+uuid.NewString())
	defer os.RemoveAll(staging)

	job, err := s.Renderer.Run(ctx, render.JobSpec{
		Scene:     req.Scene,
		Frames:    req.Frames,
		Quality:   req.Quality,
		Timeout:   req.Timeout,
		OutputDir: staging,
		Format:    format,
	})
	if err != nil {
		return Set{}, fmt.Errorf("capture %s: %w", req.Project, err)
	}
	if job.Failures > 0 {
		cerr := &CaptureError{Project: req.Project}
		for _, r := range job.Frames {
			if !r.Success {
				cerr.Frames = append(cerr.Frames, r.Frame)
				cerr.Reasons = append(cerr.Reasons, r.Error)
			}
		}
		return Set{}, cerr
	}

	// The new set is assembled next to the current one and swapped in by
	// rename, so a failure at any point leaves the current set untouched.
	dir := s.Dir(req.Project)
	next := filepath.Join(projectDir, ".reference-"+uuid.NewString())
	defer os.RemoveAll(next)
	if err := os.MkdirAll(next, 0o755); err != nil {
		return Set{}, fmt.Errorf("create reference dir: %w", err)
	}

	set := Set{
		ProjectID:  req.Project,
		CapturedAt: s.clock(),
		Scene:      req.Scene,
		Quality:    req.Quality,
		Format:     format,
		Hashes:     make(map[int]string, len(job.Frames)),
	}
	captured := make(map[string]bool, len(job.Frames))
	for _, r := range job.Frames {
		name := render.FrameFileName(r.Frame, format)
		digest, err := s.copy(r.OutputPath, filepath.Join(next, name))
		if err != nil {
			return Set{}, fmt.Errorf("capture %s: frame %d: %w", req.Project, r.Frame, err)
		}
		captured[name] = true
		set.Frames = append(set.Frames, r.Frame)
		set.Hashes[r.Frame] = digest.String()
	}
	sort.Ints(set.Frames)

	if !req.Clear {
		if err := s.carryFrames(dir, next, captured); err != nil {
			return Set{}, err
		}
	}
	if err := s.archiveMetadata(dir, next); err != nil {
		return Set{}, err
	}
	if err := artifact.WriteJSON(filepath.Join(next, metadataFile), set); err != nil {
		return Set{}, fmt.Errorf("write reference metadata: %w", err)
	}
	if err := s.promote(dir, next); err != nil {
		return Set{}, err
	}
	for _, f := range set.Frames {
		trace.SafeRecord(s.Trace, trace.Event{Kind: trace.FrameCaptured, Frame: f, Digest: set.Hashes[f]})
	}
	s.Logger.Info().Str("project", req.Project).Int("frames", len(set.Frames)).Str("dir", dir).Msg("reference set captured")

	s.mirror(ctx, set)
	return set, nil
}

func (s *Store) copy(src, dst string) (artifact.Digest, error) {
	if s.copyFile != nil {
		return s.copyFile(src, dst)
	}
	return artifact.Copy(src, dst)
}

// carryFrames copies frame files of the current set that the new capture
// does not replace.
func (s *Store) carryFrames(dir, next string, captured map[string]bool) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read reference dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || captured[e.Name()] {
			continue
		}
		if _, ok := render.ParseFrameFileName(e.Name()); !ok {
			continue
		}
		if _, err := s.copy(filepath.Join(dir, e.Name()), filepath.Join(next, e.Name())); err != nil {
			return fmt.Errorf("keep reference frame %s: %w", e.Name(), err)
		}
	}
	return nil
}

// archiveMetadata carries the history of dir into next and adds the current
// metadata.json to it.
func (s *Store) archiveMetadata(dir, next string) error {
	entries, err := os.ReadDir(filepath.Join(dir, historyDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read metadata history: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := artifact.Copy(filepath.Join(dir, historyDir, e.Name()), filepath.Join(next, historyDir, e.Name())); err != nil {
			return fmt.Errorf("keep metadata history: %w", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read previous metadata: %w", err)
	}
	name := fmt.Sprintf("metadata-%s.json", s.clock().Format("20060102T150405.000000000Z"))
	if err := artifact.WriteFileAtomic(filepath.Join(next, historyDir, name), data, 0o644); err != nil {
		return fmt.Errorf("archive previous metadata: %w", err)
	}
	return nil
}

// promote replaces dir with next. The previous set is moved aside first and
// restored if the second rename fails.
func (s *Store) promote(dir, next string) error {
	retired := ""
	if _, err := os.Stat(dir); err == nil {
		retired = filepath.Join(filepath.Dir(dir), ".reference-retired-"+uuid.NewString())
		if err := os.Rename(dir, retired); err != nil {
			return fmt.Errorf("retire previous reference set: %w", err)
		}
	}
	if err := os.Rename(next, dir); err != nil {
		if retired != "" {
			if rerr := os.Rename(retired, dir); rerr != nil {
				return fmt.Errorf("promote reference set: %w (previous set left at %s: %v)", err, retired, rerr)
			}
		}
		return fmt.Errorf("promote reference set: %w", err)
	}
	if retired != "" {
		if err := os.RemoveAll(retired); err != nil {
			s.Logger.Warn().Err(err).Str("dir", retired).Msg("remove previous reference set")
		}
	}
	return nil
}

func (s *Store) mirror(ctx context.Context, set Set) {
	if s.Mirror == nil {
		return
	}
	dir := s.Dir(set.ProjectID)
	upload := func(name string) {
		key := strings.Join([]string{set.ProjectID, "reference", name}, "/")
		if err := s.Mirror.Upload(ctx, key, filepath.Join(dir, name)); err != nil {
			s.Logger.Warn().Err(err).Str("key", key).Msg("mirror upload failed")
		}
	}
	for _, f := range set.Frames {
		upload(render.FrameFileName(f, set.Format))
	}
	upload(metadataFile)
}

// Load reads the project's metadata and returns the frame files present on
// disk, keyed by frame number. Frames listed in metadata but missing on disk
// are omitted from the map; Verify reports them.
func (s *Store) Load(project string) (Set, map[int]string, error) {
	if err := validProject(project); err != nil {
		return Set{}, nil, err
	}
	dir := s.Dir(project)
	metaPath := filepath.Join(dir, metadataFile)

	var set Set
	if err := artifact.ReadJSONStrict(metaPath, &set); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Set{}, nil, &NotFoundError{Project: project, Path: metaPath}
		}
		return Set{}, nil, fmt.Errorf("load reference %s: %w", project, err)
	}

	files := make(map[int]string, len(set.Frames))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Set{}, nil, fmt.Errorf("list reference dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, ok := render.ParseFrameFileName(e.Name())
		if !ok || strings.TrimPrefix(filepath.Ext(e.Name()), ".") != set.Format {
			continue
		}
		files[n] = filepath.Join(dir, e.Name())
	}
	return set, files, nil
}

// Drift describes one stored frame that no longer matches its recorded digest.
type Drift struct {
	Frame    int    `json:"frame"`
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Missing  bool   `json:"missing,omitempty"`
}

// Verify re-hashes every stored frame against metadata.json.
func (s *Store) Verify(project string) ([]Drift, error) {
	set, files, err := s.Load(project)
	if err != nil {
		return nil, err
	}
	var drifts []Drift
	for _, f := range set.Frames {
		expected := set.Hashes[f]
		path, ok := files[f]
		if !ok {
			drifts = append(drifts, Drift{Frame: f, Path: filepath.Join(s.Dir(project), render.FrameFileName(f, set.Format)), Expected: expected, Missing: true})
			continue
		}
		actual, err := artifact.DigestFile(path)
		if err != nil {
			drifts = append(drifts, Drift{Frame: f, Path: path, Expected: expected, Missing: true})
			continue
		}
		if actual.String() != expected {
			drifts = append(drifts, Drift{Frame: f, Path: path, Expected: expected, Actual: actual.String()})
		}
	}
	return drifts, nil
}
