package schema

import "slices"

// Clone returns a deep copy of s that shares no slices, pointers or container
// values with the original.
func Clone(s FormSchema) FormSchema {
	out := s
	if s.Pages != nil {
		out.Pages = make([]Page, len(s.Pages))
		for i, p := range s.Pages {
			out.Pages[i] = ClonePage(p)
		}
	}
	return out
}

// ClonePage returns a deep copy of p.
func ClonePage(p Page) Page {
	out := p
	if p.Sections != nil {
		out.Sections = make([]Section, len(p.Sections))
		for i, sec := range p.Sections {
			out.Sections[i] = CloneSection(sec)
		}
	}
	return out
}

// CloneSection returns a deep copy of sec.
func CloneSection(sec Section) Section {
	out := sec
	if sec.Fields != nil {
		out.Fields = make([]Field, len(sec.Fields))
		for i, f := range sec.Fields {
			out.Fields[i] = CloneField(f)
		}
	}
	return out
}

// CloneField returns a deep copy of f.
func CloneField(f Field) Field {
	out := f
	out.Options = slices.Clone(f.Options)
	out.Min = clonePtr(f.Min)
	out.Max = clonePtr(f.Max)
	out.Step = clonePtr(f.Step)
	out.DefaultValue = cloneValue(f.DefaultValue)
	out.Logic = slices.Clone(f.Logic)
	return out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// cloneValue copies the container shapes a decoded value can take.
func cloneValue(v any) any {
	switch x := v.(type) {
	case []string:
		return slices.Clone(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	case []float64:
		return slices.Clone(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
