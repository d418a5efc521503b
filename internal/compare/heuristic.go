package compare

import "math"

// DefaultSizeTolerance is the relative size delta below which two files count as size-matched.
const DefaultSizeTolerance = 0.05

// Heuristic scores frames by digest and relative byte size. It never decodes
// pixels, so two different images of equal size score close to 1.
type Heuristic struct {
	SizeTolerance float64
}

func (h Heuristic) tolerance() float64 {
	if h.SizeTolerance > 0 {
		return h.SizeTolerance
	}
	return DefaultSizeTolerance
}

// Compare implements:
//
//	missing file            -> error, similarity 0
//	equal digests           -> identical, similarity 1
//	d = |ref-test|/max(ref,1)
//	d < tolerance           -> similarity 1-d
//	otherwise               -> similarity max(0, 1-2d)
func (h Heuristic) Compare(reference, test string) (Metric, error) {
	refSize, err := stat(reference)
	if err != nil {
		return failedMetric(reference, test, err)
	}
	testSize, err := stat(test)
	if err != nil {
		return failedMetric(reference, test, err)
	}
	same, err := hashes(reference, test)
	if err != nil {
		return failedMetric(reference, test, err)
	}
	if same {
		return identical(reference, test), nil
	}

	d := math.Abs(float64(refSize-testSize)) / math.Max(float64(refSize), 1)
	m := Metric{ReferenceFrame: reference, TestFrame: test, SizeMatch: d < h.tolerance()}
	if m.SizeMatch {
		m.Similarity = clamp01(1 - d)
	} else {
		m.Similarity = math.Max(0, 1-2*d)
	}
	return m, nil
}
