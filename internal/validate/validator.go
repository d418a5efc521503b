// Package validate implements pre-flight checks that decide whether a scene is
// worth rendering at all.
package validate

import (
	"fmt"
	"os"
	"path"

	"renderqa/internal/scene"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

const (
	CategoryTestObject     = "test_object_visibility"
	CategoryMaterial       = "material_assignment"
	CategoryCamera         = "camera"
	CategoryRenderSettings = "render_settings"
	CategoryIntegrity      = "integrity"
)

// Issue is a single finding. Issues are values; only the validator creates them.
type Issue struct {
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Target   string   `json:"target,omitempty"`
}

func (i Issue) String() string {
	if i.Target == "" {
		return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Category, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s (%s)", i.Severity, i.Category, i.Message, i.Target)
}

// Validator applies Rules to a scene. It never mutates the scene.
type Validator struct {
	Rules Rules

	// AssetExists resolves linked assets. Defaults to a filesystem check.
	AssetExists func(path string) bool
}

func New(rules Rules) *Validator {
	return &Validator{Rules: rules}
}

// Validate returns every issue found in s. Rule groups run in a fixed order
// and objects are visited by name, so an unchanged scene always yields the
// same list.
func (v *Validator) Validate(s *scene.Scene) []Issue {
	if s == nil {
		return []Issue{{Category: CategoryIntegrity, Severity: SeverityError, Message: "no scene loaded"}}
	}
	objects := s.SortedObjects()

	var issues []Issue
	issues = append(issues, v.checkTestObjects(objects)...)
	issues = append(issues, v.checkMaterials(objects)...)
	issues = append(issues, v.checkCamera(s)...)
	issues = append(issues, v.checkRenderSettings(s)...)
	issues = append(issues, v.checkIntegrity(s)...)
	return issues
}

func (v *Validator) checkTestObjects(objects []scene.Object) []Issue {
	var out []Issue
	for _, o := range objects {
		prefix, ok := v.Rules.matchesTestPrefix(o.Name)
		if !ok {
			continue
		}
		if o.Rendered() {
			out = append(out, Issue{
				Category: CategoryTestObject,
				Severity: SeverityError,
				Message:  fmt.Sprintf("object matching test prefix %q is included in render output", prefix),
				Target:   o.Name,
			})
			continue
		}
		out = append(out, Issue{
			Category: CategoryTestObject,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("object matching test prefix %q is present but excluded from render", prefix),
			Target:   o.Name,
		})
	}
	return out
}

func (v *Validator) checkMaterials(objects []scene.Object) []Issue {
	var out []Issue
	for _, rule := range v.Rules.Materials {
		for _, o := range objects {
			if !hasMaterial(o, rule.Material) {
				continue
			}
			ok, err := path.Match(rule.AllowedObjects, o.Name)
			if err == nil && ok {
				continue
			}
			out = append(out, Issue{
				Category: CategoryMaterial,
				Severity: SeverityError,
				Message:  fmt.Sprintf("material %q is only allowed on objects matching %q", rule.Material, rule.AllowedObjects),
				Target:   o.Name,
			})
		}
	}
	return out
}

func hasMaterial(o scene.Object, material string) bool {
	for _, m := range o.Materials {
		if m == material {
			return true
		}
	}
	return false
}

func (v *Validator) checkCamera(s *scene.Scene) []Issue {
	if s.ActiveCamera == "" {
		return []Issue{{Category: CategoryCamera, Severity: SeverityError, Message: "scene has no active camera"}}
	}
	cam, ok := s.Object(s.ActiveCamera)
	if !ok || cam.Type != scene.ObjectCamera {
		return []Issue{{
			Category: CategoryCamera,
			Severity: SeverityError,
			Message:  "active camera does not reference a camera object",
			Target:   s.ActiveCamera,
		}}
	}
	if cam.Location[2] < v.Rules.MinCameraHeight {
		return []Issue{{
			Category: CategoryCamera,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("camera height %.2f is below %.2f", cam.Location[2], v.Rules.MinCameraHeight),
			Target:   cam.Name,
		}}
	}
	return nil
}

func (v *Validator) checkRenderSettings(s *scene.Scene) []Issue {
	var out []Issue
	r := s.Render
	if r.ResolutionX < v.Rules.MinResolutionX || r.ResolutionY < v.Rules.MinResolutionY {
		out = append(out, Issue{
			Category: CategoryRenderSettings,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("resolution %dx%d is below minimum %dx%d",
				r.ResolutionX, r.ResolutionY, v.Rules.MinResolutionX, v.Rules.MinResolutionY),
		})
	}
	if r.Samples < v.Rules.MinSamples {
		out = append(out, Issue{
			Category: CategoryRenderSettings,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("sample count %d is below minimum %d", r.Samples, v.Rules.MinSamples),
		})
	}
	return out
}

func (v *Validator) checkIntegrity(s *scene.Scene) []Issue {
	var out []Issue
	if s.Dirty && !v.Rules.IgnoreDirtyState {
		out = append(out, Issue{
			Category: CategoryIntegrity,
			Severity: SeverityWarning,
			Message:  "scene has unsaved changes",
		})
	}
	exists := v.AssetExists
	if exists == nil {
		exists = fileExists
	}
	for _, a := range s.LinkedAssets {
		resolved := s.ResolveAsset(a)
		if exists(resolved) {
			continue
		}
		out = append(out, Issue{
			Category: CategoryIntegrity,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("linked %s asset cannot be resolved: %s", a.Kind, resolved),
			Target:   a.Path,
		})
	}
	return out
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
