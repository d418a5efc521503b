package validate

import "renderqa/internal/scene"

// FixAction records one mutation applied by Fix.
type FixAction struct {
	Target string `json:"target"`
	Action string `json:"action"`
}

const ActionHideTestObject = "hide_test_object"

// Fix hides every render-visible object matching a test prefix. It is the only
// operation in this package that mutates a scene; callers must log the returned
// actions and persist the scene themselves.
func (v *Validator) Fix(s *scene.Scene) []FixAction {
	if s == nil {
		return nil
	}
	var actions []FixAction
	for i := range s.Objects {
		o := &s.Objects[i]
		if _, ok := v.Rules.matchesTestPrefix(o.Name); !ok || !o.Rendered() {
			continue
		}
		o.HideRender = true
		o.HideViewport = true
		actions = append(actions, FixAction{Target: o.Name, Action: ActionHideTestObject})
	}
	return actions
}
