package validate

import (
	"reflect"
	"strings"
	"testing"

	"renderqa/internal/scene"
)

func cleanScene() *scene.Scene {
	return &scene.Scene{
		Path:         "/scenes/shot.blend",
		ActiveCamera: "Camera",
		Objects: []scene.Object{
			{Name: "Camera", Type: scene.ObjectCamera, Location: [3]float64{0, -10, 4}},
			{Name: "Floor", Type: scene.ObjectMesh, Materials: []string{"Concrete"}},
			{Name: "Hero", Type: scene.ObjectMesh, Materials: []string{"Skin"}},
		},
		Render: scene.RenderSettings{ResolutionX: 1920, ResolutionY: 1080, Samples: 128},
	}
}

func TestValidate_CleanSceneIsReady(t *testing.T) {
	issues := New(DefaultRules()).Validate(cleanScene())
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
	if v := Classify(issues); v != VerdictReady || v.ExitCode() != 0 {
		t.Fatalf("verdict=%s exit=%d", v, v.ExitCode())
	}
}

func TestValidate_RenderedTestObjectIsSingleError(t *testing.T) {
	s := cleanScene()
	s.Objects = append(s.Objects, scene.Object{Name: "test_cube", Type: scene.ObjectMesh})

	issues := New(DefaultRules()).Validate(s)
	if len(issues) != 1 {
		t.Fatalf("expected exactly one issue, got %v", issues)
	}
	got := issues[0]
	if got.Severity != SeverityError || got.Target != "test_cube" || got.Category != CategoryTestObject {
		t.Fatalf("unexpected issue: %+v", got)
	}
	if v := Classify(issues); v != VerdictBlocked || v.ExitCode() != 2 {
		t.Fatalf("verdict=%s exit=%d", v, v.ExitCode())
	}
}

func TestValidate_HiddenTestObjectIsWarning(t *testing.T) {
	s := cleanScene()
	s.Objects = append(s.Objects, scene.Object{Name: "DEBUG_grid", Type: scene.ObjectMesh, HideRender: true})

	issues := New(DefaultRules()).Validate(s)
	if len(issues) != 1 || issues[0].Severity != SeverityWarning || issues[0].Target != "DEBUG_grid" {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if v := Classify(issues); v != VerdictProceedWithCaution || v.ExitCode() != 1 {
		t.Fatalf("verdict=%s", v)
	}
}

func TestValidate_MaterialMisassignment(t *testing.T) {
	rules := DefaultRules()
	rules.Materials = []MaterialRule{{Material: "Concrete", AllowedObjects: "Floor*"}}
	s := cleanScene()
	s.Objects = append(s.Objects,
		scene.Object{Name: "Floor_B", Type: scene.ObjectMesh, Materials: []string{"Concrete"}},
		scene.Object{Name: "Statue", Type: scene.ObjectMesh, Materials: []string{"Marble", "Concrete"}},
	)

	issues := New(rules).Validate(s)
	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %v", issues)
	}
	if issues[0].Category != CategoryMaterial || issues[0].Target != "Statue" || issues[0].Severity != SeverityError {
		t.Fatalf("unexpected issue: %+v", issues[0])
	}
}

func TestValidate_Camera(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(s *scene.Scene)
		severity Severity
	}{
		{name: "no active camera", mutate: func(s *scene.Scene) { s.ActiveCamera = "" }, severity: SeverityError},
		{name: "active camera is a mesh", mutate: func(s *scene.Scene) { s.ActiveCamera = "Hero" }, severity: SeverityError},
		{name: "camera below ground", mutate: func(s *scene.Scene) { s.Objects[0].Location[2] = -1.5 }, severity: SeverityWarning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := cleanScene()
			tc.mutate(s)
			issues := New(DefaultRules()).Validate(s)
			if len(issues) != 1 || issues[0].Category != CategoryCamera || issues[0].Severity != tc.severity {
				t.Fatalf("unexpected issues: %v", issues)
			}
		})
	}
}

func TestValidate_RenderSettingsAreWarnings(t *testing.T) {
	s := cleanScene()
	s.Render = scene.RenderSettings{ResolutionX: 640, ResolutionY: 360, Samples: 8}

	issues := New(DefaultRules()).Validate(s)
	if len(issues) != 2 {
		t.Fatalf("expected resolution and samples warnings, got %v", issues)
	}
	for _, i := range issues {
		if i.Category != CategoryRenderSettings || i.Severity != SeverityWarning {
			t.Fatalf("unexpected issue %+v", i)
		}
	}
	if Classify(issues) != VerdictProceedWithCaution {
		t.Fatalf("low quality must not block rendering")
	}
}

func TestValidate_Integrity(t *testing.T) {
	s := cleanScene()
	s.Dirty = true
	s.LinkedAssets = []scene.Asset{
		{Kind: "image", Path: "//textures/present.png"},
		{Kind: "library", Path: "//libs/missing.blend"},
	}
	v := New(DefaultRules())
	v.AssetExists = func(p string) bool { return strings.HasSuffix(p, "present.png") }

	issues := v.Validate(s)
	if len(issues) != 2 {
		t.Fatalf("expected dirty + missing asset warnings, got %v", issues)
	}
	if issues[0].Message != "scene has unsaved changes" {
		t.Fatalf("dirty warning must come first: %v", issues)
	}
	if issues[1].Target != "//libs/missing.blend" {
		t.Fatalf("unexpected asset issue %+v", issues[1])
	}
}

func TestValidate_Deterministic(t *testing.T) {
	s := cleanScene()
	s.Objects = append([]scene.Object{
		{Name: "temp_b", Type: scene.ObjectMesh},
		{Name: "placeholder_a", Type: scene.ObjectMesh, HideRender: true},
		{Name: "test_c", Type: scene.ObjectMesh},
	}, s.Objects...)
	s.Render.Samples = 1

	v := New(DefaultRules())
	first := v.Validate(s)
	for i := 0; i < 5; i++ {
		if again := v.Validate(s); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%v\n%v", i, first, again)
		}
	}
	if first[0].Target != "placeholder_a" || first[1].Target != "temp_b" || first[2].Target != "test_c" {
		t.Fatalf("objects must be reported in name order: %v", first)
	}
}

func TestFix_HidesRenderedTestObjectsOnly(t *testing.T) {
	s := cleanScene()
	s.Objects = append(s.Objects,
		scene.Object{Name: "test_cube", Type: scene.ObjectMesh},
		scene.Object{Name: "temp_hidden", Type: scene.ObjectMesh, HideRender: true},
	)
	v := New(DefaultRules())

	before := v.Validate(s)
	if Classify(before) != VerdictBlocked {
		t.Fatalf("expected blocked before fix")
	}
	actions := v.Fix(s)
	if len(actions) != 1 || actions[0].Target != "test_cube" || actions[0].Action != ActionHideTestObject {
		t.Fatalf("unexpected actions %v", actions)
	}
	after := v.Validate(s)
	if Classify(after) != VerdictProceedWithCaution {
		t.Fatalf("expected warnings only after fix, got %v", after)
	}
}

func TestRules_Validate(t *testing.T) {
	rules := DefaultRules()
	rules.TestPrefixes = append(rules.TestPrefixes, " ")
	rules.Materials = []MaterialRule{{Material: "", AllowedObjects: "["}}
	rules.MinSamples = -1
	err := rules.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"test_prefixes[4]", "materials[0].material", "materials[0].allowed_objects", "min_samples"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("default rules invalid: %v", err)
	}
}
