package reference

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound matches any NotFoundError via errors.Is.
var ErrNotFound = errors.New("reference set not found")

// NotFoundError is returned by Load and Verify when a project has no captured reference set.
type NotFoundError struct {
	Project string
	Path    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no reference set for project %q (expected %s); run a capture first", e.Project, e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// CaptureError reports frames that failed to render during a capture. Nothing
// is written to the reference directory when it is returned.
type CaptureError struct {
	Project string
	Frames  []int
	Reasons []string
}

func (e *CaptureError) Error() string {
	nums := make([]string, len(e.Frames))
	for i, f := range e.Frames {
		nums[i] = fmt.Sprintf("%d", f)
	}
	msg := fmt.Sprintf("capture %s: frames failed to render: %s", e.Project, strings.Join(nums, ","))
	if len(e.Reasons) > 0 {
		msg += " (" + strings.Join(e.Reasons, "; ") + ")"
	}
	return msg
}
