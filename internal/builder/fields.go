package builder

import (
	"errors"
	"slices"

	"github.com/hyperengineering/ficha/internal/catalog"
	"github.com/hyperengineering/ficha/internal/schema"
)

// Bounds replaces all of a field's numeric bounds at once.
type Bounds struct {
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step *float64 `json:"step,omitempty"`
}

// DefaultPatch replaces a field's default value; a nil Value clears it.
type DefaultPatch struct {
	Value any `json:"value"`
}

// FieldPatch holds the field attributes to change; nil members are left as is.
//
// Changing Type drops the attributes the new type does not use and seeds the
// ones it requires from the catalog; the default value is cleared unless the
// patch sets a new one.
type FieldPatch struct {
	Type        *catalog.FieldType `json:"type,omitempty"`
	Label       *string            `json:"label,omitempty"`
	Description *string            `json:"description,omitempty"`
	Placeholder *string            `json:"placeholder,omitempty"`
	Required    *bool              `json:"required,omitempty"`
	Options     *[]string          `json:"options,omitempty"`
	Bounds      *Bounds            `json:"bounds,omitempty"`
	MinLabel    *string            `json:"minLabel,omitempty"`
	MaxLabel    *string            `json:"maxLabel,omitempty"`
	Default     *DefaultPatch      `json:"default,omitempty"`
}

// AddField appends a field of type t to a section, configured with the
// catalog's defaults for that type.
func (b *Builder) AddField(s schema.FormSchema, pageID, sectionID string, t catalog.FieldType) (schema.FormSchema, string, error) {
	d, err := catalog.Describe(t)
	if err != nil {
		return s, "", err
	}
	p, i, err := sectionOnPage(s, pageID, sectionID)
	if err != nil {
		return s, "", err
	}

	f := newField(b.NewID(), d)
	out := schema.Clone(s)
	out.Pages[p].Sections[i].Fields = append(out.Pages[p].Sections[i].Fields, f)
	return out, f.ID, nil
}

func newField(id string, d catalog.Descriptor) schema.Field {
	f := schema.Field{ID: id, Type: d.Type, Label: d.Defaults.Label, Logic: []schema.LogicRule{}}
	seedKnobs(&f, d)
	return f
}

// seedKnobs copies the descriptor's defaults into attributes f leaves unset.
func seedKnobs(f *schema.Field, d catalog.Descriptor) {
	if d.RequiresOptions() && len(f.Options) == 0 {
		f.Options = slices.Clone(d.Defaults.Options)
	}
	if d.Knobs.Range && f.Min == nil && f.Max == nil && f.Step == nil {
		f.Min = copyPtr(d.Defaults.Min)
		f.Max = copyPtr(d.Defaults.Max)
		f.Step = copyPtr(d.Defaults.Step)
	}
}

// stripKnobs clears the attributes d does not use.
func stripKnobs(f *schema.Field, d catalog.Descriptor) {
	if !d.RequiresOptions() {
		f.Options = nil
	}
	if !d.Knobs.Range {
		f.Min, f.Max, f.Step = nil, nil, nil
	}
	if !d.Knobs.ScaleLabels {
		f.MinLabel, f.MaxLabel = "", ""
	}
	if !d.Knobs.Placeholder {
		f.Placeholder = ""
	}
	if d.Presentational {
		f.Required = false
	}
}

func copyPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// UpdateField merges patch into a field. A patch that would leave the field
// violating its invariants is rejected with a *PatchError and the schema is
// returned unchanged.
func (b *Builder) UpdateField(s schema.FormSchema, fieldID string, patch FieldPatch) (schema.FormSchema, error) {
	loc, ok := schema.Locate(s, fieldID)
	if !ok {
		return s, notFound(ErrFieldNotFound, fieldID)
	}

	out := schema.Clone(s)
	f := &out.Pages[loc.Page].Sections[loc.Section].Fields[loc.Field]

	if patch.Type != nil && *patch.Type != f.Type {
		d, err := catalog.Describe(*patch.Type)
		if err != nil {
			return s, err
		}
		f.Type = d.Type
		f.DefaultValue = nil
		stripKnobs(f, d)
		seedKnobs(f, d)
	}
	if patch.Label != nil {
		f.Label = *patch.Label
	}
	if patch.Description != nil {
		f.Description = *patch.Description
	}
	if patch.Placeholder != nil {
		f.Placeholder = *patch.Placeholder
	}
	if patch.Required != nil {
		f.Required = *patch.Required
	}
	if patch.Options != nil {
		f.Options = slices.Clone(*patch.Options)
	}
	if patch.Bounds != nil {
		f.Min = copyPtr(patch.Bounds.Min)
		f.Max = copyPtr(patch.Bounds.Max)
		f.Step = copyPtr(patch.Bounds.Step)
	}
	if patch.MinLabel != nil {
		f.MinLabel = *patch.MinLabel
	}
	if patch.MaxLabel != nil {
		f.MaxLabel = *patch.MaxLabel
	}
	if patch.Default != nil {
		f.DefaultValue = patch.Default.Value
	}

	if err := schema.CheckField(*f); err != nil {
		var verrs schema.ValidationErrors
		if errors.As(err, &verrs) {
			return s, &PatchError{FieldID: fieldID, Errors: verrs.Errors}
		}
		return s, err
	}
	if f.DefaultValue != nil {
		// Store the default in its canonical shape.
		v, _ := schema.CheckValue(*f, f.DefaultValue)
		f.DefaultValue = v
	}
	return out, nil
}

// RemoveField deletes a field and prunes every rule left dangling, including
// rules on other fields that used it as their source.
func (b *Builder) RemoveField(s schema.FormSchema, fieldID string) (schema.FormSchema, error) {
	loc, ok := schema.Locate(s, fieldID)
	if !ok {
		return s, notFound(ErrFieldNotFound, fieldID)
	}

	out := schema.Clone(s)
	section := &out.Pages[loc.Page].Sections[loc.Section]
	section.Fields = slices.Delete(section.Fields, loc.Field, loc.Field+1)
	return pruneRules(out), nil
}

// DuplicateField inserts a copy of a field directly after it. The copy gets a
// new id and its rules are retargeted to it; rule sources are not relinked.
func (b *Builder) DuplicateField(s schema.FormSchema, fieldID string) (schema.FormSchema, string, error) {
	loc, ok := schema.Locate(s, fieldID)
	if !ok {
		return s, "", notFound(ErrFieldNotFound, fieldID)
	}

	out := schema.Clone(s)
	section := &out.Pages[loc.Page].Sections[loc.Section]

	dup := schema.CloneField(section.Fields[loc.Field])
	dup.ID = b.NewID()
	dup.Label += " (copy)"
	for i := range dup.Logic {
		dup.Logic[i].TargetFieldID = dup.ID
	}

	section.Fields = slices.Insert(section.Fields, loc.Field+1, dup)
	return out, dup.ID, nil
}

// MoveField moves a field, with its id and rules, to position index of another
// (or the same) section. An index of -1 appends.
func (b *Builder) MoveField(s schema.FormSchema, fieldID, toSectionID string, index int) (schema.FormSchema, error) {
	loc, ok := schema.Locate(s, fieldID)
	if !ok {
		return s, notFound(ErrFieldNotFound, fieldID)
	}
	if _, _, _, ok := schema.FindSection(s, toSectionID); !ok {
		return s, notFound(ErrSectionNotFound, toSectionID)
	}

	out := schema.Clone(s)
	from := &out.Pages[loc.Page].Sections[loc.Section]
	f := from.Fields[loc.Field]
	from.Fields = slices.Delete(from.Fields, loc.Field, loc.Field+1)

	_, p, i, _ := schema.FindSection(out, toSectionID)
	to := &out.Pages[p].Sections[i]
	if index == -1 {
		index = len(to.Fields)
	}
	if index < 0 || index > len(to.Fields) {
		return s, ErrInvalidOrder
	}
	to.Fields = slices.Insert(to.Fields, index, f)
	return out, nil
}

// sectionOnPage resolves a section that must belong to the given page.
func sectionOnPage(s schema.FormSchema, pageID, sectionID string) (int, int, error) {
	page, p, ok := schema.FindPage(s, pageID)
	if !ok {
		return 0, 0, notFound(ErrPageNotFound, pageID)
	}
	for i, section := range page.Sections {
		if section.ID == sectionID {
			return p, i, nil
		}
	}
	return 0, 0, notFound(ErrSectionNotFound, sectionID)
}
