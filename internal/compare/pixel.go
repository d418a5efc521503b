package compare

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds the decoded size of one frame (8192x8192).
const DefaultMaxPixels = 8192 * 8192

// ErrImageTooLarge is returned for frames whose header declares more pixels
// than the comparator accepts.
var ErrImageTooLarge = errors.New("image too large")

// Pixel scores frames by decoding both images and averaging the normalized
// absolute difference of every RGBA channel. Images with different bounds
// score 0 with size_match false.
type Pixel struct {
	// MaxPixels rejects larger frames before decoding; zero means DefaultMaxPixels.
	MaxPixels int
}

func (p Pixel) Compare(reference, test string) (Metric, error) {
	if _, err := stat(reference); err != nil {
		return failedMetric(reference, test, err)
	}
	if _, err := stat(test); err != nil {
		return failedMetric(reference, test, err)
	}
	same, err := hashes(reference, test)
	if err != nil {
		return failedMetric(reference, test, err)
	}
	if same {
		return identical(reference, test), nil
	}

	limit := p.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	refImg, err := decode(reference, limit)
	if err != nil {
		return failedMetric(reference, test, err)
	}
	testImg, err := decode(test, limit)
	if err != nil {
		return failedMetric(reference, test, err)
	}

	m := Metric{ReferenceFrame: reference, TestFrame: test}
	rb, tb := refImg.Bounds(), testImg.Bounds()
	if rb.Dx() != tb.Dx() || rb.Dy() != tb.Dy() {
		return m, nil
	}
	m.SizeMatch = true
	m.Similarity = clamp01(1 - meanChannelDelta(refImg, testImg))
	return m, nil
}

func decode(path string, maxPixels int) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("decode image header: %w", err)}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxPixels/cfg.Height {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("decode image: %w", err)}
	}
	return img, nil
}

// meanChannelDelta assumes a and b have equal dimensions.
func meanChannelDelta(a, b image.Image) float64 {
	ab, bb := a.Bounds(), b.Bounds()
	w, h := ab.Dx(), ab.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	var sum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r1, g1, b1, a1 := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			r2, g2, b2, a2 := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			sum += channelDelta(r1, r2) + channelDelta(g1, g2) + channelDelta(b1, b2) + channelDelta(a1, a2)
		}
	}
	return sum / float64(4*w*h)
}

func channelDelta(x, y uint32) float64 {
	if x > y {
		return float64(x-y) / 0xffff
	}
	return float64(y-x) / 0xffff
}
