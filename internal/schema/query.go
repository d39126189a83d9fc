package schema

// Location addresses a field by index within its schema.
type Location struct {
	Page    int
	Section int
	Field   int
}

// Locate returns the position of a field.
func Locate(s FormSchema, fieldID string) (Location, bool) {
	for p, page := range s.Pages {
		for sec, section := range page.Sections {
			for f, field := range section.Fields {
				if field.ID == fieldID {
					return Location{Page: p, Section: sec, Field: f}, true
				}
			}
		}
	}
	return Location{}, false
}

// FindField returns the field with the given id.
func FindField(s FormSchema, fieldID string) (Field, bool) {
	loc, ok := Locate(s, fieldID)
	if !ok {
		return Field{}, false
	}
	return s.Pages[loc.Page].Sections[loc.Section].Fields[loc.Field], true
}

// AllFields flattens the schema in page, section, field order.
func AllFields(s FormSchema) []Field {
	var out []Field
	for _, page := range s.Pages {
		for _, section := range page.Sections {
			out = append(out, section.Fields...)
		}
	}
	return out
}

// FieldLabel returns a field's label, falling back to its id when the field does
// not exist or has an empty label.
func FieldLabel(s FormSchema, fieldID string) string {
	f, ok := FindField(s, fieldID)
	if !ok || f.Label == "" {
		return fieldID
	}
	return f.Label
}

// Rules returns every logic rule in declaration order: page, section, field,
// then position within the field's logic list.
func Rules(s FormSchema) []LogicRule {
	var out []LogicRule
	for _, f := range AllFields(s) {
		out = append(out, f.Logic...)
	}
	return out
}

// FindPage returns the page with the given id and its index.
func FindPage(s FormSchema, pageID string) (Page, int, bool) {
	for i, page := range s.Pages {
		if page.ID == pageID {
			return page, i, true
		}
	}
	return Page{}, -1, false
}

// FindSection returns the section with the given id and the index of the page
// and section holding it.
func FindSection(s FormSchema, sectionID string) (Section, int, int, bool) {
	for p, page := range s.Pages {
		for i, section := range page.Sections {
			if section.ID == sectionID {
				return section, p, i, true
			}
		}
	}
	return Section{}, -1, -1, false
}

// SectionOf returns the ids of the page and section owning a field.
func SectionOf(s FormSchema, fieldID string) (pageID, sectionID string, ok bool) {
	loc, ok := Locate(s, fieldID)
	if !ok {
		return "", "", false
	}
	page := s.Pages[loc.Page]
	return page.ID, page.Sections[loc.Section].ID, true
}

// FieldIDs returns the ids of AllFields.
func FieldIDs(s FormSchema) []string {
	fields := AllFields(s)
	ids := make([]string, len(fields))
	for i, f := range fields {
		ids[i] = f.ID
	}
	return ids
}
