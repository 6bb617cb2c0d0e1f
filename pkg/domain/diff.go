package domain

import (
	"reflect"
)

// ViewDiff represents the changes between two views of a session.
// It is designed to be serialized to JSON for partial updates on the client.
type ViewDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	StepID *string `json:"step_id,omitempty"`
	Active *string `json:"active,omitempty"`

	// Files contains only changed or added paths. Deleted paths carry a nil value.
	Files map[string]*string `json:"files,omitempty"`

	// Checkpoints is the full list whenever any checkpoint changed.
	Checkpoints []Checkpoint `json:"checkpoints,omitempty"`
	Current     *string      `json:"current_checkpoint_id,omitempty"`

	Complete *bool `json:"complete,omitempty"`
	Loading  *bool `json:"loading,omitempty"`
	Grading  *bool `json:"grading,omitempty"`
	Ready    *bool `json:"ready,omitempty"`
}

// Diff calculates the difference between oldView and newView.
// If oldView is nil, it returns a diff representing the entire newView (initial load).
func Diff(oldView, newView *View) *ViewDiff {
	if newView == nil {
		return nil
	}

	diff := &ViewDiff{
		SessionID: newView.SessionID,
	}

	if oldView == nil || oldView.StepID != newView.StepID {
		diff.StepID = &newView.StepID
	}
	if oldView == nil || oldView.Active != newView.Active {
		diff.Active = &newView.Active
	}
	if oldView == nil || oldView.Current != newView.Current {
		diff.Current = &newView.Current
	}

	diff.Complete = diffBool(oldView, newView, func(v *View) bool { return v.Complete })
	diff.Loading = diffBool(oldView, newView, func(v *View) bool { return v.Loading })
	diff.Grading = diffBool(oldView, newView, func(v *View) bool { return v.Grading })
	diff.Ready = diffBool(oldView, newView, func(v *View) bool { return v.Ready })

	diff.Files = diffFiles(oldView, newView)

	if oldView == nil || !reflect.DeepEqual(oldView.Checkpoints, newView.Checkpoints) {
		diff.Checkpoints = newView.Checkpoints
	}

	if diff.StepID == nil &&
		diff.Active == nil &&
		diff.Current == nil &&
		diff.Complete == nil &&
		diff.Loading == nil &&
		diff.Grading == nil &&
		diff.Ready == nil &&
		len(diff.Files) == 0 &&
		diff.Checkpoints == nil {
		return nil
	}

	return diff
}

func diffBool(oldView, newView *View, get func(*View) bool) *bool {
	v := get(newView)
	if oldView == nil {
		if v {
			return &v
		}
		return nil
	}
	if get(oldView) != v {
		return &v
	}
	return nil
}

func diffFiles(oldView, newView *View) map[string]*string {
	delta := make(map[string]*string)

	var oldFiles map[string]string
	if oldView != nil {
		oldFiles = oldView.Files
	}

	for path, content := range newView.Files {
		prev, ok := oldFiles[path]
		if !ok || prev != content {
			c := content
			delta[path] = &c
		}
	}
	for path := range oldFiles {
		if _, ok := newView.Files[path]; !ok {
			delta[path] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}
