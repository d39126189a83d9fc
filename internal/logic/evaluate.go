// Package logic resolves the effective visible, enabled and required state of
// every field in a form from the form's logic rules and the values entered so
// far.
//
// Rules form a directed graph (source field -> target field) that may contain
// cycles, and actions are not monotonic, so evaluation is a bounded fixed-point
// relaxation: every pass recomputes each field from its default state by
// applying its incoming rules in declaration order, reading the tentative
// states produced so far. A source field that is currently hidden contributes
// no value, which is how hiding cascades along chains of rules. Evaluation
// stops at the first pass that changes nothing, or after len(rules)+1 passes.
//
// Evaluate is pure and safe for concurrent use.
package logic

import (
	"fmt"

	"github.com/hashicorp/go-set/v2"

	"github.com/hyperengineering/ficha/internal/catalog"
	"github.com/hyperengineering/ficha/internal/schema"
)

// Evaluate computes the effective state of every field in s for values.
func Evaluate(s schema.FormSchema, values schema.Values) Result {
	fields := schema.AllFields(s)
	byID := make(map[string]schema.Field, len(fields))
	position := make(map[string]int, len(fields))
	for i, f := range fields {
		byID[f.ID] = f
		position[f.ID] = i
	}

	rules := schema.Rules(s)
	res := Result{States: make(map[string]State, len(fields))}

	// Incoming rules per target, in declaration order. Dangling rules are
	// reported once and left out of the passes.
	incoming := make(map[string][]schema.LogicRule)
	for _, r := range rules {
		if _, ok := byID[r.TargetFieldID]; !ok {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Code:          CodeDanglingTarget,
				FieldID:       r.TargetFieldID,
				SourceFieldID: r.SourceFieldID,
				Message:       fmt.Sprintf("rule target %q does not exist; rule skipped", r.TargetFieldID),
			})
			continue
		}
		if _, ok := byID[r.SourceFieldID]; !ok {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Code:          CodeDanglingSource,
				FieldID:       r.TargetFieldID,
				SourceFieldID: r.SourceFieldID,
				Message:       fmt.Sprintf("rule source %q does not exist; condition is false", r.SourceFieldID),
			})
			continue
		}
		incoming[r.TargetFieldID] = append(incoming[r.TargetFieldID], r)
	}

	for _, f := range fields {
		res.States[f.ID] = DefaultState(f)
	}

	ev := evaluator{fields: byID, values: values, states: res.States}
	sequence := order(fields, position, rules)
	budget := len(rules) + 1

	var changed *set.Set[string]
	for res.Passes < budget {
		res.Passes++
		changed = set.New[string](0)

		for _, id := range sequence {
			next := DefaultState(byID[id])
			for _, r := range incoming[id] {
				if ev.holds(r) {
					next = next.apply(r.Action)
				}
			}
			if next != res.States[id] {
				res.States[id] = next
				changed.Insert(id)
			}
		}

		if changed.Empty() {
			res.Converged = true
			break
		}
	}

	if !res.Converged {
		for _, f := range fields {
			if !changed.Contains(f.ID) {
				continue
			}
			res.Unstable = append(res.Unstable, f.ID)
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Code:    CodeUnstable,
				FieldID: f.ID,
				Message: fmt.Sprintf("state did not settle after %d passes; last rule in declaration order wins", res.Passes),
			})
		}
	}

	return res
}

type evaluator struct {
	fields map[string]schema.Field
	values schema.Values
	states map[string]State
}

// holds evaluates a rule's condition against the current values and tentative
// states. Absent, hidden or incomparable sources make every condition false.
func (e evaluator) holds(r schema.LogicRule) bool {
	src, ok := e.fields[r.SourceFieldID]
	if !ok || !e.states[src.ID].Visible {
		return false
	}
	d, err := catalog.Describe(src.Type)
	if err != nil {
		return false
	}

	v, ok := e.values.Get(src.ID)
	if !ok {
		v = src.DefaultValue
	}

	switch r.Operator {
	case schema.OpEquals:
		eq, ok := d.Equal(v, r.Comparand)
		return ok && eq
	case schema.OpNotEquals:
		eq, ok := d.Equal(v, r.Comparand)
		return ok && !eq
	case schema.OpContains:
		in, ok := d.Contains(v, r.Comparand)
		return ok && in
	case schema.OpNotContains:
		in, ok := d.Contains(v, r.Comparand)
		return ok && !in
	case schema.OpGreaterThan:
		o, ok := d.Order(v, r.Comparand)
		return ok && o > 0
	case schema.OpLessThan:
		o, ok := d.Order(v, r.Comparand)
		return ok && o < 0
	default:
		return false
	}
}
