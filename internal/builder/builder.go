// Package builder is the only mutation path for form schemas. Every operation
// takes a schema value and returns a new one that still satisfies the schema
// invariants; the input is never modified. On error the input is returned
// unchanged together with the error, so callers can keep using it.
package builder

import (
	"fmt"

	"github.com/hashicorp/go-set/v2"
	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/ficha/internal/schema"
	"github.com/hyperengineering/ficha/internal/validation"
)

// Builder performs schema operations. NewID generates page, section and field
// ids; it must return ids unique within a schema.
type Builder struct {
	NewID func() string
}

// New returns a Builder generating ULID ids.
func New() *Builder {
	return &Builder{NewID: func() string { return ulid.Make().String() }}
}

// NewSchema returns a fresh schema with one page holding one empty section.
func (b *Builder) NewSchema(ownerProjectID, title string) schema.FormSchema {
	return schema.FormSchema{
		ID:             b.NewID(),
		OwnerProjectID: ownerProjectID,
		Title:          title,
		Pages:          []schema.Page{b.newPage("Page 1")},
	}
}

func (b *Builder) newPage(title string) schema.Page {
	return schema.Page{
		ID:       b.NewID(),
		Title:    title,
		Sections: []schema.Section{b.newSection("Section 1")},
	}
}

func (b *Builder) newSection(name string) schema.Section {
	return schema.Section{ID: b.NewID(), Name: name, Fields: []schema.Field{}}
}

// PagePatch holds the page attributes to change; nil members are left as is.
type PagePatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// SectionPatch holds the section attributes to change; nil members are left as is.
type SectionPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Collapsed   *bool   `json:"collapsed,omitempty"`
}

// AddPage appends a page with one empty section. An empty title is replaced
// by "Page N".
func (b *Builder) AddPage(s schema.FormSchema, title string) (schema.FormSchema, string) {
	if title == "" {
		title = fmt.Sprintf("Page %d", len(s.Pages)+1)
	}
	out := schema.Clone(s)
	page := b.newPage(title)
	out.Pages = append(out.Pages, page)
	return out, page.ID
}

// AddSection appends an empty section to a page. An empty name is replaced by
// "Section N".
func (b *Builder) AddSection(s schema.FormSchema, pageID, name string) (schema.FormSchema, string, error) {
	page, p, ok := schema.FindPage(s, pageID)
	if !ok {
		return s, "", notFound(ErrPageNotFound, pageID)
	}
	if name == "" {
		name = fmt.Sprintf("Section %d", len(page.Sections)+1)
	}

	out := schema.Clone(s)
	section := b.newSection(name)
	out.Pages[p].Sections = append(out.Pages[p].Sections, section)
	return out, section.ID, nil
}

// UpdatePage applies a patch to a page.
func (b *Builder) UpdatePage(s schema.FormSchema, pageID string, patch PagePatch) (schema.FormSchema, error) {
	_, p, ok := schema.FindPage(s, pageID)
	if !ok {
		return s, notFound(ErrPageNotFound, pageID)
	}

	if err := checkText(map[string]*string{"title": patch.Title, "description": patch.Description}); err != nil {
		return s, err
	}

	out := schema.Clone(s)
	page := &out.Pages[p]
	if patch.Title != nil {
		page.Title = *patch.Title
	}
	if patch.Description != nil {
		page.Description = *patch.Description
	}
	return out, nil
}

// UpdateSection applies a patch to a section.
func (b *Builder) UpdateSection(s schema.FormSchema, sectionID string, patch SectionPatch) (schema.FormSchema, error) {
	_, p, i, ok := schema.FindSection(s, sectionID)
	if !ok {
		return s, notFound(ErrSectionNotFound, sectionID)
	}

	if err := checkText(map[string]*string{"name": patch.Name, "description": patch.Description}); err != nil {
		return s, err
	}

	out := schema.Clone(s)
	section := &out.Pages[p].Sections[i]
	if patch.Name != nil {
		section.Name = *patch.Name
	}
	if patch.Description != nil {
		section.Description = *patch.Description
	}
	if patch.Collapsed != nil {
		section.Collapsed = *patch.Collapsed
	}
	return out, nil
}

// RemovePage deletes a page with its sections and fields, then prunes rules
// left dangling. The last page cannot be removed.
func (b *Builder) RemovePage(s schema.FormSchema, pageID string) (schema.FormSchema, error) {
	_, p, ok := schema.FindPage(s, pageID)
	if !ok {
		return s, notFound(ErrPageNotFound, pageID)
	}
	if len(s.Pages) == 1 {
		return s, ErrLastPage
	}

	out := schema.Clone(s)
	out.Pages = append(out.Pages[:p], out.Pages[p+1:]...)
	return pruneRules(out), nil
}

// RemoveSection deletes a section with its fields, then prunes rules left
// dangling. The last section of a page cannot be removed.
func (b *Builder) RemoveSection(s schema.FormSchema, sectionID string) (schema.FormSchema, error) {
	_, p, i, ok := schema.FindSection(s, sectionID)
	if !ok {
		return s, notFound(ErrSectionNotFound, sectionID)
	}
	if len(s.Pages[p].Sections) == 1 {
		return s, ErrLastSection
	}

	out := schema.Clone(s)
	sections := out.Pages[p].Sections
	out.Pages[p].Sections = append(sections[:i], sections[i+1:]...)
	return pruneRules(out), nil
}

// checkText validates the length of patched text attributes.
func checkText(attrs map[string]*string) error {
	var c validation.Collector
	for name, v := range attrs {
		if v != nil {
			c.Add(validation.ValidateMaxLength(name, *v, schema.MaxTextLength))
		}
	}
	if c.HasErrors() {
		return schema.ValidationErrors{Errors: c.Errors()}
	}
	return nil
}

// pruneRules drops every rule whose source or target no longer resolves.
// s must not share storage with a caller-visible schema.
func pruneRules(s schema.FormSchema) schema.FormSchema {
	ids := set.From(schema.FieldIDs(s))
	for p := range s.Pages {
		for i := range s.Pages[p].Sections {
			fields := s.Pages[p].Sections[i].Fields
			for k := range fields {
				kept := fields[k].Logic[:0]
				for _, r := range fields[k].Logic {
					if ids.Contains(r.SourceFieldID) && ids.Contains(r.TargetFieldID) {
						kept = append(kept, r)
					}
				}
				fields[k].Logic = kept
			}
		}
	}
	return s
}
