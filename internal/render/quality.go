package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Engine string

const (
	EngineCycles    Engine = "CYCLES"
	EngineEevee     Engine = "EEVEE"
	EngineWorkbench Engine = "WORKBENCH"
)

type Device string

const (
	DeviceCPU Device = "CPU"
	DeviceGPU Device = "GPU"
)

func ParseEngine(raw string) (Engine, error) {
	switch e := Engine(strings.ToUpper(strings.TrimSpace(raw))); e {
	case EngineCycles, EngineEevee, EngineWorkbench:
		return e, nil
	default:
		return "", fmt.Errorf("unsupported engine %q (expected CYCLES|EEVEE|WORKBENCH)", raw)
	}
}

func ParseDevice(raw string) (Device, error) {
	switch d := Device(strings.ToUpper(strings.TrimSpace(raw))); d {
	case DeviceCPU, DeviceGPU:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported device %q (expected CPU|GPU)", raw)
	}
}

// Resolution encodes as a [width, height] pair.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

func (r Resolution) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Width, r.Height})
}

func (r *Resolution) UnmarshalJSON(b []byte) error {
	var pair [2]int
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("resolution must be [width, height]: %w", err)
	}
	r.Width, r.Height = pair[0], pair[1]
	return nil
}

// Quality is the immutable set of parameters handed to the renderer for each
// frame. Adjustments return new values; nothing shares or mutates a Quality.
type Quality struct {
	Name       string     `json:"name,omitempty"`
	Samples    int        `json:"samples"`
	Resolution Resolution `json:"resolution"`
	Denoise    bool       `json:"denoise"`
	Engine     Engine     `json:"engine"`
	Device     Device     `json:"device"`
}

const (
	PresetQuick  = "quick"
	PresetMedium = "medium"
	PresetHigh   = "high"
)

// Preset returns the named quality preset.
func Preset(name string) (Quality, error) {
	base := Quality{Engine: EngineCycles, Device: DeviceGPU}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PresetQuick:
		base.Name, base.Samples, base.Resolution, base.Denoise = PresetQuick, 16, Resolution{960, 540}, true
	case PresetMedium, "":
		base.Name, base.Samples, base.Resolution, base.Denoise = PresetMedium, 64, Resolution{1280, 720}, true
	case PresetHigh:
		base.Name, base.Samples, base.Resolution, base.Denoise = PresetHigh, 256, Resolution{1920, 1080}, false
	default:
		return Quality{}, fmt.Errorf("unknown quality preset %q (expected quick|medium|high)", name)
	}
	return base, nil
}

func (q Quality) WithDevice(d Device) Quality {
	q.Device = d
	return q
}

func (q Quality) WithEngine(e Engine) Quality {
	q.Engine = e
	return q
}

func (q Quality) WithSamples(n int) Quality {
	q.Samples = n
	return q
}

func (q Quality) Validate() error {
	var errs []error
	if q.Samples <= 0 {
		errs = append(errs, fmt.Errorf("samples must be positive (got %d)", q.Samples))
	}
	if q.Resolution.Width <= 0 || q.Resolution.Height <= 0 {
		errs = append(errs, fmt.Errorf("resolution must be positive (got %s)", q.Resolution))
	}
	if _, err := ParseEngine(string(q.Engine)); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDevice(string(q.Device)); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Payload is the JSON document passed to the renderer as the quality argument.
func (q Quality) Payload() ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(q)
}
