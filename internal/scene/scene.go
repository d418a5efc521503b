// Package scene models the read-only scene handle the pre-flight validator
// inspects. The renderer's scene file itself is opaque; its contents are
// described by a manifest exported next to it.
package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"renderqa/internal/artifact"
)

const (
	ObjectMesh   = "MESH"
	ObjectCamera = "CAMERA"
	ObjectLight  = "LIGHT"
	ObjectEmpty  = "EMPTY"
)

// ErrNoManifest is returned by Discover when no manifest sits next to the scene.
var ErrNoManifest = errors.New("scene manifest not found")

// Scene is the inspected description of one renderer scene.
type Scene struct {
	// Path is the scene file handed to the renderer. Not serialized.
	Path string `yaml:"-" json:"-"`
	// ManifestPath is where the description was loaded from. Not serialized.
	ManifestPath string `yaml:"-" json:"-"`

	Name         string         `yaml:"name,omitempty" json:"name,omitempty"`
	ActiveCamera string         `yaml:"active_camera,omitempty" json:"active_camera,omitempty"`
	Objects      []Object       `yaml:"objects" json:"objects"`
	Render       RenderSettings `yaml:"render" json:"render"`
	Dirty        bool           `yaml:"dirty,omitempty" json:"dirty,omitempty"`
	LinkedAssets []Asset        `yaml:"linked_assets,omitempty" json:"linked_assets,omitempty"`
}

type Object struct {
	Name         string     `yaml:"name" json:"name"`
	Type         string     `yaml:"type" json:"type"`
	HideRender   bool       `yaml:"hide_render,omitempty" json:"hide_render,omitempty"`
	HideViewport bool       `yaml:"hide_viewport,omitempty" json:"hide_viewport,omitempty"`
	Materials    []string   `yaml:"materials,omitempty" json:"materials,omitempty"`
	Location     [3]float64 `yaml:"location" json:"location"`
}

// Rendered reports whether the object contributes to render output.
func (o Object) Rendered() bool {
	return !o.HideRender
}

type RenderSettings struct {
	ResolutionX int    `yaml:"resolution_x" json:"resolution_x"`
	ResolutionY int    `yaml:"resolution_y" json:"resolution_y"`
	Samples     int    `yaml:"samples" json:"samples"`
	Engine      string `yaml:"engine,omitempty" json:"engine,omitempty"`
}

type Asset struct {
	Kind string `yaml:"kind" json:"kind"`
	Path string `yaml:"path" json:"path"`
}

// Object returns the object with the given name.
func (s *Scene) Object(name string) (Object, bool) {
	for _, o := range s.Objects {
		if o.Name == name {
			return o, true
		}
	}
	return Object{}, false
}

// SortedObjects returns a copy of the objects ordered by name.
func (s *Scene) SortedObjects() []Object {
	out := make([]Object, len(s.Objects))
	copy(out, s.Objects)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResolveAsset returns the absolute location of a linked asset. Relative paths
// (including the renderer's "//" prefix) resolve against the scene directory.
func (s *Scene) ResolveAsset(a Asset) string {
	p := strings.TrimSpace(a.Path)
	p = strings.TrimPrefix(p, "//")
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	base := filepath.Dir(s.Path)
	if s.Path == "" {
		base = filepath.Dir(s.ManifestPath)
	}
	return filepath.Clean(filepath.Join(base, p))
}

// Discover finds the manifest exported for scenePath: <scene>.manifest.yaml,
// .yml or .json, in that order.
func Discover(scenePath string) (string, error) {
	for _, ext := range []string{".manifest.yaml", ".manifest.yml", ".manifest.json"} {
		candidate := scenePath + ext
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w for %s", ErrNoManifest, scenePath)
}

// Load parses the manifest at manifestPath for the scene at scenePath.
// YAML and JSON manifests are both accepted.
func Load(scenePath, manifestPath string) (*Scene, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var s Scene
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", manifestPath, err)
	}
	for i, o := range s.Objects {
		if strings.TrimSpace(o.Name) == "" {
			return nil, fmt.Errorf("decode manifest %s: objects[%d].name is required", manifestPath, i)
		}
		s.Objects[i].Type = strings.ToUpper(strings.TrimSpace(o.Type))
	}
	s.Path = scenePath
	s.ManifestPath = manifestPath
	return &s, nil
}

// Save writes the scene back to its manifest, keeping the original encoding.
func (s *Scene) Save() error {
	if s.ManifestPath == "" {
		return errors.New("scene has no manifest path")
	}
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(s.ManifestPath), ".json") {
		data, err = json.MarshalIndent(s, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(s)
	}
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return artifact.WriteFileAtomic(s.ManifestPath, data, 0o644)
}
