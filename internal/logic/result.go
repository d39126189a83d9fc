package logic

import "github.com/hyperengineering/ficha/internal/schema"

// State is the effective state of one field. It is derived on every
// evaluation and never persisted.
type State struct {
	Visible  bool `json:"visible"`
	Enabled  bool `json:"enabled"`
	Required bool `json:"required"`
}

// DefaultState is the state of a field no rule has acted on.
func DefaultState(f schema.Field) State {
	return State{Visible: true, Enabled: true, Required: f.Required}
}

// apply returns s with the action's effect.
func (s State) apply(a schema.Action) State {
	switch a {
	case schema.ActionShow:
		s.Visible = true
	case schema.ActionHide:
		s.Visible = false
	case schema.ActionEnable:
		s.Enabled = true
	case schema.ActionDisable:
		s.Enabled = false
	case schema.ActionRequire:
		s.Required = true
	case schema.ActionNotRequire:
		s.Required = false
	}
	return s
}

// DiagnosticCode classifies a rule the evaluator could not honour.
type DiagnosticCode string

const (
	// CodeDanglingSource marks a rule whose source field does not exist.
	// Its condition is treated as false.
	CodeDanglingSource DiagnosticCode = "dangling_source"
	// CodeDanglingTarget marks a rule whose target field does not exist.
	// The rule is skipped.
	CodeDanglingTarget DiagnosticCode = "dangling_target"
	// CodeUnstable marks a field whose state had not settled when the pass
	// budget ran out.
	CodeUnstable DiagnosticCode = "unstable"
)

// Diagnostic reports a rule or field the evaluator skipped or could not settle.
type Diagnostic struct {
	Code          DiagnosticCode `json:"code"`
	FieldID       string         `json:"fieldId"`
	SourceFieldID string         `json:"sourceFieldId,omitempty"`
	Message       string         `json:"message"`
}

// Result is the output of Evaluate.
type Result struct {
	// States holds an entry for every field in the schema.
	States map[string]State `json:"states"`
	// Passes is the number of relaxation passes run.
	Passes int `json:"passes"`
	// Converged is false when the pass budget ran out before a fixed point.
	Converged bool `json:"converged"`
	// Unstable lists, in schema order, fields still changing in the last pass.
	Unstable    []string     `json:"unstable,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// State returns the effective state of a field. Unknown ids get the state of a
// visible, enabled, optional field.
func (r Result) State(fieldID string) State {
	if s, ok := r.States[fieldID]; ok {
		return s
	}
	return State{Visible: true, Enabled: true}
}
