package validate

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// MaterialRule restricts a material to objects whose names match AllowedObjects
// (a path.Match glob, e.g. "Floor*").
type MaterialRule struct {
	Material       string `yaml:"material" json:"material"`
	AllowedObjects string `yaml:"allowed_objects" json:"allowed_objects"`
}

// Rules is the configurable policy applied by the validator.
type Rules struct {
	TestPrefixes     []string       `yaml:"test_prefixes" json:"test_prefixes"`
	Materials        []MaterialRule `yaml:"materials" json:"materials"`
	MinCameraHeight  float64        `yaml:"min_camera_height" json:"min_camera_height"`
	MinResolutionX   int            `yaml:"min_resolution_x" json:"min_resolution_x"`
	MinResolutionY   int            `yaml:"min_resolution_y" json:"min_resolution_y"`
	MinSamples       int            `yaml:"min_samples" json:"min_samples"`
	IgnoreDirtyState bool           `yaml:"ignore_dirty_state" json:"ignore_dirty_state"`
}

// DefaultRules returns the stock policy.
func DefaultRules() Rules {
	return Rules{
		TestPrefixes:    []string{"test_", "debug_", "temp_", "placeholder_"},
		MinCameraHeight: 0,
		MinResolutionX:  1280,
		MinResolutionY:  720,
		MinSamples:      64,
	}
}

func (r Rules) Validate() error {
	var errs []error
	for i, p := range r.TestPrefixes {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("test_prefixes[%d] must not be empty", i))
		}
	}
	for i, m := range r.Materials {
		if strings.TrimSpace(m.Material) == "" {
			errs = append(errs, fmt.Errorf("materials[%d].material is required", i))
		}
		if strings.TrimSpace(m.AllowedObjects) == "" {
			errs = append(errs, fmt.Errorf("materials[%d].allowed_objects is required", i))
		} else if _, err := path.Match(m.AllowedObjects, ""); err != nil {
			errs = append(errs, fmt.Errorf("materials[%d].allowed_objects: %w", i, err))
		}
	}
	if r.MinResolutionX < 0 || r.MinResolutionY < 0 {
		errs = append(errs, errors.New("minimum resolution must be >= 0"))
	}
	if r.MinSamples < 0 {
		errs = append(errs, errors.New("min_samples must be >= 0"))
	}
	return errors.Join(errs...)
}

// matchesTestPrefix reports the first configured prefix name starts with.
func (r Rules) matchesTestPrefix(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, p := range r.TestPrefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.HasPrefix(lower, p) {
			return p, true
		}
	}
	return "", false
}
