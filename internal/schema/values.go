package schema

import "maps"

// Values maps field ids to entered values (FormValues). A Values map is never
// modified after construction; With and Without return new maps so snapshots
// can be compared and retained safely.
type Values map[string]any

// Get returns the value for a field.
func (v Values) Get(fieldID string) (any, bool) {
	val, ok := v[fieldID]
	return val, ok
}

// With returns a copy of v with fieldID set to val.
func (v Values) With(fieldID string, val any) Values {
	out := make(Values, len(v)+1)
	maps.Copy(out, v)
	out[fieldID] = val
	return out
}

// Without returns a copy of v with fieldID removed.
func (v Values) Without(fieldID string) Values {
	out := maps.Clone(v)
	if out == nil {
		return Values{}
	}
	delete(out, fieldID)
	return out
}

// Restrict returns a copy of v holding only entries for fields in s.
func (v Values) Restrict(s FormSchema) Values {
	out := make(Values, len(v))
	for _, f := range AllFields(s) {
		if val, ok := v[f.ID]; ok {
			out[f.ID] = val
		}
	}
	return out
}

// Defaults returns the default values declared by the schema's fields,
// normalized into each field's value shape. Defaults that do not fit their
// field are left out; Validate reports them.
func Defaults(s FormSchema) Values {
	out := Values{}
	for _, f := range AllFields(s) {
		if f.DefaultValue == nil {
			continue
		}
		v, err := CheckValue(f, f.DefaultValue)
		if err != nil || v == nil {
			continue
		}
		out[f.ID] = cloneValue(v)
	}
	return out
}
