package builder

import (
	"fmt"

	"github.com/hyperengineering/ficha/internal/catalog"
	"github.com/hyperengineering/ficha/internal/schema"
)

// Op names a builder operation in a serialized Operation.
type Op string

const (
	OpAddPage         Op = "add_page"
	OpAddSection      Op = "add_section"
	OpAddField        Op = "add_field"
	OpUpdatePage      Op = "update_page"
	OpUpdateSection   Op = "update_section"
	OpUpdateField     Op = "update_field"
	OpRemovePage      Op = "remove_page"
	OpRemoveSection   Op = "remove_section"
	OpRemoveField     Op = "remove_field"
	OpDuplicateField  Op = "duplicate_field"
	OpReorderPages    Op = "reorder_pages"
	OpReorderSections Op = "reorder_sections"
	OpReorderFields   Op = "reorder_fields"
	OpMoveField       Op = "move_field"
	OpAddLogicRule    Op = "add_logic_rule"
	OpRemoveLogicRule Op = "remove_logic_rule"
)

// Operation is the serialized form of a single builder call, as sent by an
// editing surface. Only the members the op uses are read; Title names a new
// page or section.
type Operation struct {
	Op        Op                `json:"op"`
	PageID    string            `json:"pageId,omitempty"`
	SectionID string            `json:"sectionId,omitempty"`
	FieldID   string            `json:"fieldId,omitempty"`
	Type      catalog.FieldType `json:"type,omitempty"`
	Title     string            `json:"title,omitempty"`
	Index     int               `json:"index,omitempty"`
	Order     []string          `json:"order,omitempty"`
	Rule      *schema.LogicRule `json:"rule,omitempty"`
	Page      *PagePatch        `json:"page,omitempty"`
	Section   *SectionPatch     `json:"section,omitempty"`
	Field     *FieldPatch       `json:"field,omitempty"`
}

// Apply runs op against s. The returned id is the id of the page, section or
// field the op created, or empty for ops that create nothing.
func (b *Builder) Apply(s schema.FormSchema, op Operation) (schema.FormSchema, string, error) {
	switch op.Op {
	case OpAddPage:
		out, id := b.AddPage(s, op.Title)
		return out, id, nil
	case OpAddSection:
		return b.AddSection(s, op.PageID, op.Title)
	case OpAddField:
		return b.AddField(s, op.PageID, op.SectionID, op.Type)
	case OpDuplicateField:
		return b.DuplicateField(s, op.FieldID)
	}

	out, err := b.apply(s, op)
	return out, "", err
}

func (b *Builder) apply(s schema.FormSchema, op Operation) (schema.FormSchema, error) {
	switch op.Op {
	case OpUpdatePage:
		return b.UpdatePage(s, op.PageID, deref(op.Page))
	case OpUpdateSection:
		return b.UpdateSection(s, op.SectionID, deref(op.Section))
	case OpUpdateField:
		return b.UpdateField(s, op.FieldID, deref(op.Field))
	case OpRemovePage:
		return b.RemovePage(s, op.PageID)
	case OpRemoveSection:
		return b.RemoveSection(s, op.SectionID)
	case OpRemoveField:
		return b.RemoveField(s, op.FieldID)
	case OpReorderPages:
		return b.ReorderPages(s, op.Order)
	case OpReorderSections:
		return b.ReorderSections(s, op.PageID, op.Order)
	case OpReorderFields:
		return b.ReorderFields(s, op.SectionID, op.Order)
	case OpMoveField:
		return b.MoveField(s, op.FieldID, op.SectionID, op.Index)
	case OpAddLogicRule:
		if op.Rule == nil {
			return s, fmt.Errorf("%w: rule is required", ErrInvalidRule)
		}
		return b.AddLogicRule(s, op.FieldID, *op.Rule)
	case OpRemoveLogicRule:
		return b.RemoveLogicRule(s, op.FieldID, op.Index)
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownOperation, op.Op)
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
