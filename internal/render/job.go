package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const DefaultFormat = "png"

// JobSpec describes one render job. It is built by the caller and treated as
// read-only afterwards.
type JobSpec struct {
	Scene     string
	Frames    []int
	Quality   Quality
	Timeout   time.Duration
	OutputDir string
	Format    string
}

func (s JobSpec) Validate() error {
	if strings.TrimSpace(s.Scene) == "" {
		return fmt.Errorf("%w: scene is required", ErrInvalidSpec)
	}
	info, err := os.Stat(s.Scene)
	if err != nil {
		return fmt.Errorf("%w: scene %s: %v", ErrInvalidSpec, s.Scene, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: scene %s is a directory", ErrInvalidSpec, s.Scene)
	}
	if len(s.Frames) == 0 {
		return fmt.Errorf("%w: at least one frame is required", ErrInvalidSpec)
	}
	seen := make(map[int]struct{}, len(s.Frames))
	for _, f := range s.Frames {
		if f <= 0 {
			return fmt.Errorf("%w: frame numbers must be positive (got %d)", ErrInvalidSpec, f)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("%w: duplicate frame %d", ErrInvalidSpec, f)
		}
		seen[f] = struct{}{}
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidSpec)
	}
	if strings.TrimSpace(s.OutputDir) == "" {
		return fmt.Errorf("%w: output dir is required", ErrInvalidSpec)
	}
	if err := s.Quality.Validate(); err != nil {
		return fmt.Errorf("%w: quality: %v", ErrInvalidSpec, err)
	}
	return nil
}

func (s JobSpec) format() string {
	f := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s.Format)), ".")
	if f == "" {
		return DefaultFormat
	}
	return f
}

// FramePath is where the renderer must write frame n.
func (s JobSpec) FramePath(frame int) string {
	return filepath.Join(s.OutputDir, FrameFileName(frame, s.format()))
}

// MetaPath is where per-frame timing and quality metadata is written.
func (s JobSpec) MetaPath(frame int) string {
	return filepath.Join(s.OutputDir, fmt.Sprintf("frame_%04d_meta.json", frame))
}

// FrameFileName returns frame_<NNNN>.<ext>.
func FrameFileName(frame int, ext string) string {
	return fmt.Sprintf("frame_%04d.%s", frame, strings.TrimPrefix(ext, "."))
}

// ParseFrameFileName extracts the frame number from frame_<NNNN>.<ext>.
func ParseFrameFileName(name string) (int, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if !strings.HasPrefix(base, "frame_") || strings.HasSuffix(base, "_meta") {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimPrefix(base, "frame_"), "%d", &n); err != nil || n <= 0 {
		return 0, false
	}
	if FrameFileName(n, filepath.Ext(name)) != name {
		return 0, false
	}
	return n, true
}
