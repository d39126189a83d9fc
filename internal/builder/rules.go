package builder

import (
	"fmt"
	"slices"

	"github.com/hyperengineering/ficha/internal/schema"
)

// AddLogicRule appends a rule to the target field's logic. The rule's
// TargetFieldID is set to targetFieldID. Rules whose source is the target are
// rejected with ErrSelfReferentialRule; unknown operators or actions, and
// sources that do not exist, with ErrInvalidRule.
func (b *Builder) AddLogicRule(s schema.FormSchema, targetFieldID string, rule schema.LogicRule) (schema.FormSchema, error) {
	loc, ok := schema.Locate(s, targetFieldID)
	if !ok {
		return s, notFound(ErrFieldNotFound, targetFieldID)
	}
	if rule.TargetFieldID != "" && rule.TargetFieldID != targetFieldID {
		return s, fmt.Errorf("%w: rule targets %q but is attached to %q", ErrInvalidRule, rule.TargetFieldID, targetFieldID)
	}
	if rule.SourceFieldID == targetFieldID {
		return s, fmt.Errorf("%w: field %q", ErrSelfReferentialRule, targetFieldID)
	}
	if _, ok := schema.FindField(s, rule.SourceFieldID); !ok {
		return s, fmt.Errorf("%w: source field %q does not exist", ErrInvalidRule, rule.SourceFieldID)
	}
	if !rule.Operator.Valid() {
		return s, fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, rule.Operator)
	}
	if !rule.Action.Valid() {
		return s, fmt.Errorf("%w: unknown action %q", ErrInvalidRule, rule.Action)
	}

	rule.TargetFieldID = targetFieldID
	out := schema.Clone(s)
	f := &out.Pages[loc.Page].Sections[loc.Section].Fields[loc.Field]
	f.Logic = append(f.Logic, rule)
	return out, nil
}

// RemoveLogicRule detaches the rule at index from the target field's logic.
func (b *Builder) RemoveLogicRule(s schema.FormSchema, targetFieldID string, index int) (schema.FormSchema, error) {
	loc, ok := schema.Locate(s, targetFieldID)
	if !ok {
		return s, notFound(ErrFieldNotFound, targetFieldID)
	}
	logic := s.Pages[loc.Page].Sections[loc.Section].Fields[loc.Field].Logic
	if index < 0 || index >= len(logic) {
		return s, fmt.Errorf("%w: index %d on field %q", ErrRuleNotFound, index, targetFieldID)
	}

	out := schema.Clone(s)
	f := &out.Pages[loc.Page].Sections[loc.Section].Fields[loc.Field]
	f.Logic = slices.Delete(f.Logic, index, index+1)
	return out, nil
}
