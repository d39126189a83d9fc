package builder

import (
	"fmt"

	"github.com/hashicorp/go-set/v2"

	"github.com/hyperengineering/ficha/internal/schema"
)

// ReorderFields arranges a section's fields in the given id order, which must
// be a permutation of the section's current field ids.
func (b *Builder) ReorderFields(s schema.FormSchema, sectionID string, order []string) (schema.FormSchema, error) {
	section, p, i, ok := schema.FindSection(s, sectionID)
	if !ok {
		return s, notFound(ErrSectionNotFound, sectionID)
	}
	ids := make([]string, len(section.Fields))
	for k, f := range section.Fields {
		ids[k] = f.ID
	}
	perm, err := permutation(ids, order)
	if err != nil {
		return s, err
	}

	out := schema.Clone(s)
	out.Pages[p].Sections[i].Fields = reorder(out.Pages[p].Sections[i].Fields, perm)
	return out, nil
}

// ReorderSections arranges a page's sections in the given id order.
func (b *Builder) ReorderSections(s schema.FormSchema, pageID string, order []string) (schema.FormSchema, error) {
	page, p, ok := schema.FindPage(s, pageID)
	if !ok {
		return s, notFound(ErrPageNotFound, pageID)
	}
	ids := make([]string, len(page.Sections))
	for k, sec := range page.Sections {
		ids[k] = sec.ID
	}
	perm, err := permutation(ids, order)
	if err != nil {
		return s, err
	}

	out := schema.Clone(s)
	out.Pages[p].Sections = reorder(out.Pages[p].Sections, perm)
	return out, nil
}

// ReorderPages arranges the schema's pages in the given id order.
func (b *Builder) ReorderPages(s schema.FormSchema, order []string) (schema.FormSchema, error) {
	ids := make([]string, len(s.Pages))
	for k, page := range s.Pages {
		ids[k] = page.ID
	}
	perm, err := permutation(ids, order)
	if err != nil {
		return s, err
	}

	out := schema.Clone(s)
	out.Pages = reorder(out.Pages, perm)
	return out, nil
}

// permutation maps each position of order to the index of that id in current.
// order must contain every current id exactly once.
func permutation(current, order []string) ([]int, error) {
	if len(order) != len(current) {
		return nil, fmt.Errorf("%w: got %d ids, want %d", ErrInvalidOrder, len(order), len(current))
	}
	if set.From(order).Size() != len(order) {
		return nil, fmt.Errorf("%w: duplicate ids", ErrInvalidOrder)
	}

	index := make(map[string]int, len(current))
	for i, id := range current {
		index[id] = i
	}
	perm := make([]int, len(order))
	for i, id := range order {
		k, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown id %q", ErrInvalidOrder, id)
		}
		perm[i] = k
	}
	return perm, nil
}

func reorder[T any](items []T, perm []int) []T {
	out := make([]T, len(perm))
	for i, k := range perm {
		out[i] = items[k]
	}
	return out
}
