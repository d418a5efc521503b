// Package compare scores rendered frames against their reference images.
//
// Two comparators share one contract. Heuristic compares digests and byte
// sizes only; Pixel decodes both images and scores the mean per-channel
// delta. Both report identical files as similarity 1.0 with hash_match set,
// and both record unreadable inputs as an error with similarity 0.
package compare

import (
	"fmt"
	"math"
	"os"

	"renderqa/internal/artifact"
)

// DefaultThreshold is the mean similarity a regression run must reach.
const DefaultThreshold = 0.95

// Metric is the outcome of comparing one test frame to its reference.
type Metric struct {
	Frame          int     `json:"frame"`
	ReferenceFrame string  `json:"reference_frame"`
	TestFrame      string  `json:"test_frame"`
	Identical      bool    `json:"identical"`
	HashMatch      bool    `json:"hash_match"`
	SizeMatch      bool    `json:"size_match"`
	Similarity     float64 `json:"similarity"`
	Error          string  `json:"error,omitempty"`
}

// Passed reports whether the frame clears threshold.
func (m Metric) Passed(threshold float64) bool {
	return m.Error == "" && m.Similarity >= threshold
}

// Comparator scores test against reference. On failure the returned Metric
// already carries the error text and zero similarity.
type Comparator interface {
	Compare(reference, test string) (Metric, error)
}

// Error is an unreadable or missing input file.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("compare %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func failedMetric(reference, test string, err error) (Metric, error) {
	return Metric{ReferenceFrame: reference, TestFrame: test, Error: err.Error()}, err
}

// stat returns the size of path, or *Error when it is missing or not a file.
func stat(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, &Error{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return 0, &Error{Path: path, Err: fmt.Errorf("not a regular file")}
	}
	return info.Size(), nil
}

// hashes digests both files and reports whether they are byte-identical.
func hashes(reference, test string) (bool, error) {
	ref, err := artifact.DigestFile(reference)
	if err != nil {
		return false, &Error{Path: reference, Err: err}
	}
	tst, err := artifact.DigestFile(test)
	if err != nil {
		return false, &Error{Path: test, Err: err}
	}
	return ref == tst, nil
}

func identical(reference, test string) Metric {
	return Metric{
		ReferenceFrame: reference,
		TestFrame:      test,
		Identical:      true,
		HashMatch:      true,
		SizeMatch:      true,
		Similarity:     1.0,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
