package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-set/v2"

	"github.com/hyperengineering/ficha/internal/catalog"
	"github.com/hyperengineering/ficha/internal/validation"
)

// MaxTextLength bounds titles, names, labels and descriptions.
const MaxTextLength = 1000

// ErrValueNotAllowed indicates a well-shaped value outside a field's options or bounds.
var ErrValueNotAllowed = errors.New("value not allowed")

// Validate checks every structural invariant of s and returns ValidationErrors
// listing all violations, or nil.
//
// Dangling rule references are not violations; see DanglingRules.
func Validate(s FormSchema) error {
	var c validation.Collector

	c.Add(validation.ValidateID("id", s.ID))
	c.Add(validation.ValidateMaxLength("title", s.Title, MaxTextLength))
	if len(s.Pages) == 0 {
		c.Addf("pages", "must contain at least 1 page")
	}

	pageIDs := set.New[string](len(s.Pages))
	sectionIDs := set.New[string](0)
	fieldIDs := set.New[string](0)

	for i, page := range s.Pages {
		path := fmt.Sprintf("pages[%d]", i)
		checkID(&c, path+".id", page.ID, pageIDs)
		c.Add(validation.ValidateMaxLength(path+".title", page.Title, MaxTextLength))
		if len(page.Sections) == 0 {
			c.Addf(path+".sections", "must contain at least 1 section")
		}

		for j, section := range page.Sections {
			spath := fmt.Sprintf("%s.sections[%d]", path, j)
			checkID(&c, spath+".id", section.ID, sectionIDs)
			c.Add(validation.ValidateMaxLength(spath+".name", section.Name, MaxTextLength))

			for k, f := range section.Fields {
				fpath := fmt.Sprintf("%s.fields[%d]", spath, k)
				checkID(&c, fpath+".id", f.ID, fieldIDs)
				validateField(&c, fpath, f)
			}
		}
	}

	if c.HasErrors() {
		return ValidationErrors{Errors: c.Errors()}
	}
	return nil
}

// CheckField validates a single field in isolation (no id uniqueness).
func CheckField(f Field) error {
	var c validation.Collector
	c.Add(validation.ValidateID("id", f.ID))
	validateField(&c, "field", f)
	if c.HasErrors() {
		return ValidationErrors{Errors: c.Errors()}
	}
	return nil
}

// CheckValue normalizes raw into f's value shape and checks it against the
// field's options and numeric bounds. The normalized value is returned.
func CheckValue(f Field, raw any) (any, error) {
	d, err := catalog.Describe(f.Type)
	if err != nil {
		return nil, err
	}
	v, err := d.Normalize(raw)
	if err != nil || v == nil {
		return v, err
	}

	switch d.Semantics {
	case catalog.SemanticsChoice:
		if s := v.(string); s != "" && !slices.Contains(f.Options, s) {
			return nil, fmt.Errorf("%w: %q is not an option", ErrValueNotAllowed, s)
		}
	case catalog.SemanticsSet:
		for _, s := range v.([]string) {
			if !slices.Contains(f.Options, s) {
				return nil, fmt.Errorf("%w: %q is not an option", ErrValueNotAllowed, s)
			}
		}
	case catalog.SemanticsNumber:
		if err := checkBounds(f, v.(float64)); err != nil {
			return nil, err
		}
	case catalog.SemanticsInterval:
		p := v.(catalog.Pair)
		for _, n := range p {
			if err := checkBounds(f, n); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

// CheckValues normalizes every entry of raw that names a field of s with
// CheckValue. Entries for unknown fields are ignored and nil values are
// dropped. Rejected values are reported per field id.
func CheckValues(s FormSchema, raw map[string]any) (Values, []validation.ValidationError) {
	var c validation.Collector
	out := Values{}
	for _, f := range AllFields(s) {
		r, ok := raw[f.ID]
		if !ok {
			continue
		}
		v, err := CheckValue(f, r)
		if err != nil {
			c.Addf(f.ID, "%v", err)
			continue
		}
		if v != nil {
			out[f.ID] = v
		}
	}
	return out, c.Errors()
}

// DanglingRules returns the rules whose source or target field does not exist.
func DanglingRules(s FormSchema) []LogicRule {
	ids := set.From(FieldIDs(s))
	var out []LogicRule
	for _, r := range Rules(s) {
		if !ids.Contains(r.SourceFieldID) || !ids.Contains(r.TargetFieldID) {
			out = append(out, r)
		}
	}
	return out
}

func checkID(c *validation.Collector, path, id string, seen *set.Set[string]) {
	if err := validation.ValidateID(path, id); err != nil {
		c.Add(err)
		return
	}
	if !seen.Insert(id) {
		c.Addf(path, "duplicate id %q", id)
	}
}

func validateField(c *validation.Collector, path string, f Field) {
	c.Add(validation.ValidateMaxLength(path+".label", f.Label, MaxTextLength))
	c.Add(validation.ValidateMaxLength(path+".description", f.Description, MaxTextLength))
	validateRules(c, path, f)

	d, err := catalog.Describe(f.Type)
	if err != nil {
		c.Addf(path+".type", "unknown field type %q", f.Type)
		return
	}

	if d.RequiresOptions() {
		validateOptions(c, path+".options", f.Options)
	} else if len(f.Options) > 0 {
		c.Addf(path+".options", "not applicable to %s fields", f.Type)
	}

	if d.Knobs.Range {
		c.Add(validation.ValidateBounds(path, f.Min, f.Max))
		if f.Step != nil && *f.Step <= 0 {
			c.Addf(path+".step", "must be greater than 0")
		}
	} else if f.Min != nil || f.Max != nil || f.Step != nil {
		c.Addf(path, "min, max and step are not applicable to %s fields", f.Type)
	}

	if !d.Knobs.ScaleLabels && (f.MinLabel != "" || f.MaxLabel != "") {
		c.Addf(path, "scale labels are not applicable to %s fields", f.Type)
	}

	if d.Presentational && f.Required {
		c.Addf(path+".required", "%s fields cannot be required", f.Type)
	}

	if f.DefaultValue != nil {
		if _, err := CheckValue(f, f.DefaultValue); err != nil {
			c.Addf(path+".defaultValue", "%v", err)
		}
	}
}

func validateOptions(c *validation.Collector, path string, options []string) {
	if len(options) == 0 {
		c.Addf(path, "must contain at least 1 option")
		return
	}
	seen := set.New[string](len(options))
	for i, o := range options {
		opath := fmt.Sprintf("%s[%d]", path, i)
		switch {
		case strings.TrimSpace(o) == "":
			c.Addf(opath, "must not be blank")
		case strings.Contains(o, ","):
			c.Addf(opath, "must not contain a comma")
		case !seen.Insert(o):
			c.Addf(opath, "duplicate option %q", o)
		}
	}
}

func validateRules(c *validation.Collector, path string, f Field) {
	for i, r := range f.Logic {
		rpath := fmt.Sprintf("%s.logic[%d]", path, i)
		c.Add(validation.ValidateID(rpath+".sourceFieldId", r.SourceFieldID))
		if !r.Operator.Valid() {
			c.Add(validation.ValidateEnum(rpath+".operator", string(r.Operator), operatorNames()))
		}
		if !r.Action.Valid() {
			c.Add(validation.ValidateEnum(rpath+".action", string(r.Action), actionNames()))
		}
		if r.TargetFieldID != f.ID {
			c.Addf(rpath+".targetFieldId", "must equal the owning field id %q", f.ID)
		}
		if r.SourceFieldID == f.ID {
			c.Addf(rpath+".sourceFieldId", "rule must not reference its own target")
		}
	}
}

func checkBounds(f Field, n float64) error {
	if f.Min != nil && n < *f.Min {
		return fmt.Errorf("%w: %g is below the minimum %g", ErrValueNotAllowed, n, *f.Min)
	}
	if f.Max != nil && n > *f.Max {
		return fmt.Errorf("%w: %g is above the maximum %g", ErrValueNotAllowed, n, *f.Max)
	}
	return nil
}

func operatorNames() []string {
	out := make([]string, len(Operators))
	for i, op := range Operators {
		out[i] = string(op)
	}
	return out
}

func actionNames() []string {
	out := make([]string, len(Actions))
	for i, a := range Actions {
		out[i] = string(a)
	}
	return out
}
