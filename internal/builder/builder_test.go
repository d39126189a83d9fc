package builder

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/hyperengineering/ficha/internal/catalog"
	"github.com/hyperengineering/ficha/internal/logic"
	"github.com/hyperengineering/ficha/internal/schema"
)

func seqBuilder() *Builder {
	n := 0
	return &Builder{NewID: func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}}
}

// fixture is a schema with two sections on one page:
// s1: age (number), consent (switch); s2: guardian (text, required when age < 18).
type fixture struct {
	b        *Builder
	s        schema.FormSchema
	page     string
	s1, s2   string
	age      string
	consent  string
	guardian string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	fx := fixture{b: seqBuilder()}
	fx.s = fx.b.NewSchema("proj-1", "Inspection")
	fx.page = fx.s.Pages[0].ID
	fx.s1 = fx.s.Pages[0].Sections[0].ID

	var err error
	fx.s, fx.s2, err = fx.b.AddSection(fx.s, fx.page, "Guardian")
	must(t, err)
	fx.s, fx.age, err = fx.b.AddField(fx.s, fx.page, fx.s1, catalog.TypeNumber)
	must(t, err)
	fx.s, fx.consent, err = fx.b.AddField(fx.s, fx.page, fx.s1, catalog.TypeSwitch)
	must(t, err)
	fx.s, fx.guardian, err = fx.b.AddField(fx.s, fx.page, fx.s2, catalog.TypeText)
	must(t, err)
	fx.s, err = fx.b.AddLogicRule(fx.s, fx.guardian, schema.LogicRule{
		SourceFieldID: fx.age, Operator: schema.OpLessThan, Comparand: "18", Action: schema.ActionRequire,
	})
	must(t, err)

	if err := schema.Validate(fx.s); err != nil {
		t.Fatalf("fixture schema invalid: %v", err)
	}
	return fx
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewSchema(t *testing.T) {
	b := seqBuilder()
	s := b.NewSchema("proj-1", "Survey")
	if len(s.Pages) != 1 || len(s.Pages[0].Sections) != 1 {
		t.Fatalf("NewSchema() = %+v, want one page with one section", s)
	}
	if s.OwnerProjectID != "proj-1" || s.Title != "Survey" {
		t.Errorf("NewSchema() = %+v", s)
	}
	if err := schema.Validate(s); err != nil {
		t.Errorf("NewSchema() invalid: %v", err)
	}
}

func TestNew_GeneratesULIDs(t *testing.T) {
	b := New()
	a, c := b.NewID(), b.NewID()
	if len(a) != 26 || a == c {
		t.Errorf("NewID() = %q, %q", a, c)
	}
}

func TestAddField_CatalogDefaults(t *testing.T) {
	fx := newFixture(t)
	s, id, err := fx.b.AddField(fx.s, fx.page, fx.s1, catalog.TypeSlider)
	must(t, err)

	f, ok := schema.FindField(s, id)
	if !ok {
		t.Fatal("added field not found")
	}
	if f.Label != "Slider" || f.Min == nil || *f.Min != 0 || f.Max == nil || *f.Max != 100 {
		t.Errorf("AddField(slider) = %+v", f)
	}

	s, id, err = fx.b.AddField(s, fx.page, fx.s1, catalog.TypeDropdown)
	must(t, err)
	f, _ = schema.FindField(s, id)
	if len(f.Options) == 0 {
		t.Error("AddField(dropdown) has no options")
	}

	// Defaults are copies, not shared with the catalog.
	f.Options[0] = "mutated"
	if catalog.MustDescribe(catalog.TypeDropdown).Defaults.Options[0] == "mutated" {
		t.Error("AddField shares option storage with the catalog")
	}
}

func TestAddField_Errors(t *testing.T) {
	fx := newFixture(t)

	s, _, err := fx.b.AddField(fx.s, fx.page, fx.s1, "hologram")
	if !errors.Is(err, catalog.ErrUnknownFieldType) {
		t.Errorf("AddField(unknown) error = %v, want ErrUnknownFieldType", err)
	}
	if !reflect.DeepEqual(s, fx.s) {
		t.Error("failed AddField changed the schema")
	}

	if _, _, err := fx.b.AddField(fx.s, "nope", fx.s1, catalog.TypeText); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("AddField(bad page) error = %v", err)
	}
	other, _ := fx.b.AddPage(fx.s, "")
	if _, _, err := fx.b.AddField(other, other.Pages[1].ID, fx.s1, catalog.TypeText); !errors.Is(err, ErrSectionNotFound) {
		t.Errorf("AddField(section on another page) error = %v", err)
	}
}

func TestAddThenRemoveField_RoundTrip(t *testing.T) {
	fx := newFixture(t)

	s, id, err := fx.b.AddField(fx.s, fx.page, fx.s2, catalog.TypeRadio)
	must(t, err)
	s, err = fx.b.RemoveField(s, id)
	must(t, err)

	if !reflect.DeepEqual(schema.FieldIDs(s), schema.FieldIDs(fx.s)) {
		t.Errorf("fields = %v, want %v", schema.FieldIDs(s), schema.FieldIDs(fx.s))
	}
	if !reflect.DeepEqual(schema.Rules(s), schema.Rules(fx.s)) {
		t.Errorf("rules = %v, want %v", schema.Rules(s), schema.Rules(fx.s))
	}
}

func TestRemoveField_PrunesRulesUsingIt(t *testing.T) {
	fx := newFixture(t)

	s, err := fx.b.RemoveField(fx.s, fx.age)
	must(t, err)
	if got := schema.Rules(s); len(got) != 0 {
		t.Errorf("Rules() = %v, want the age rule pruned", got)
	}
	if len(schema.Rules(fx.s)) != 1 {
		t.Error("RemoveField modified its input")
	}
	if _, err := fx.b.RemoveField(s, fx.age); !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("RemoveField(missing) error = %v", err)
	}
}

func TestRemoveSection_CascadesAndPrunes(t *testing.T) {
	fx := newFixture(t)

	s, err := fx.b.RemoveSection(fx.s, fx.s1)
	must(t, err)
	if !reflect.DeepEqual(schema.FieldIDs(s), []string{fx.guardian}) {
		t.Errorf("FieldIDs() = %v", schema.FieldIDs(s))
	}
	if len(schema.DanglingRules(s)) != 0 || len(schema.Rules(s)) != 0 {
		t.Errorf("Rules() = %v, want dangling rule pruned", schema.Rules(s))
	}

	if _, err := fx.b.RemoveSection(s, fx.s2); !errors.Is(err, ErrLastSection) {
		t.Errorf("RemoveSection(last) error = %v, want ErrLastSection", err)
	}
}

func TestRemovePage(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.b.RemovePage(fx.s, fx.page); !errors.Is(err, ErrLastPage) {
		t.Fatalf("RemovePage(last) error = %v, want ErrLastPage", err)
	}

	s, p2 := fx.b.AddPage(fx.s, "")
	if s.Pages[1].Title != "Page 2" {
		t.Errorf("AddPage default title = %q", s.Pages[1].Title)
	}
	s, err := fx.b.RemovePage(s, fx.page)
	must(t, err)
	if len(s.Pages) != 1 || s.Pages[0].ID != p2 {
		t.Errorf("Pages = %+v", s.Pages)
	}
	if len(schema.AllFields(s)) != 0 {
		t.Errorf("fields survived their page: %v", schema.FieldIDs(s))
	}
}

func TestDuplicateField(t *testing.T) {
	fx := newFixture(t)

	s, dup, err := fx.b.DuplicateField(fx.s, fx.guardian)
	must(t, err)

	ids := schema.FieldIDs(s)
	want := []string{fx.age, fx.consent, fx.guardian, dup}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("FieldIDs() = %v, want %v", ids, want)
	}

	f, _ := schema.FindField(s, dup)
	if f.Label != "Short answer (copy)" {
		t.Errorf("duplicate label = %q", f.Label)
	}
	if len(f.Logic) != 1 || f.Logic[0].TargetFieldID != dup || f.Logic[0].SourceFieldID != fx.age {
		t.Errorf("duplicate logic = %+v, want retargeted, source unchanged", f.Logic)
	}
	orig, _ := schema.FindField(s, fx.guardian)
	if orig.Logic[0].TargetFieldID != fx.guardian {
		t.Error("DuplicateField retargeted the original's rules")
	}
	if err := schema.Validate(s); err != nil {
		t.Errorf("schema invalid after duplicate: %v", err)
	}
}

func TestUpdateField(t *testing.T) {
	fx := newFixture(t)
	label := "Owner age"
	required := true

	s, err := fx.b.UpdateField(fx.s, fx.age, FieldPatch{
		Label:    &label,
		Required: &required,
		Bounds:   &Bounds{Min: ptr(0), Max: ptr(120)},
		Default:  &DefaultPatch{Value: 30},
	})
	must(t, err)

	f, _ := schema.FindField(s, fx.age)
	if f.Label != label || !f.Required || *f.Max != 120 {
		t.Errorf("UpdateField() = %+v", f)
	}
	if f.DefaultValue != float64(30) {
		t.Errorf("DefaultValue = %#v, want canonical float64(30)", f.DefaultValue)
	}
}

func TestUpdateField_ChangeTypeSeedsAndStrips(t *testing.T) {
	fx := newFixture(t)
	radio := catalog.TypeRadio

	s, err := fx.b.UpdateField(fx.s, fx.age, FieldPatch{Type: &radio})
	must(t, err)

	f, _ := schema.FindField(s, fx.age)
	if f.Type != catalog.TypeRadio || len(f.Options) == 0 {
		t.Errorf("field = %+v, want radio with default options", f)
	}
	if f.Min != nil || f.Max != nil || f.Step != nil {
		t.Errorf("field = %+v, want numeric bounds stripped", f)
	}
}

func TestUpdateField_InvalidPatch(t *testing.T) {
	fx := newFixture(t)
	s, id, err := fx.b.AddField(fx.s, fx.page, fx.s1, catalog.TypeCheckbox)
	must(t, err)
	s2, hid, err := fx.b.AddField(s, fx.page, fx.s1, catalog.TypeHeader)
	must(t, err)

	yes := true
	tests := []struct {
		name  string
		id    string
		patch FieldPatch
	}{
		{"empty options on choice", id, FieldPatch{Options: &[]string{}}},
		{"duplicate options", id, FieldPatch{Options: &[]string{"a", "a"}}},
		{"min above max", fx.age, FieldPatch{Bounds: &Bounds{Min: ptr(10), Max: ptr(1)}}},
		{"options on number", fx.age, FieldPatch{Options: &[]string{"a"}}},
		{"default wrong shape", fx.age, FieldPatch{Default: &DefaultPatch{Value: "ten"}}},
		{"default outside bounds", fx.age, FieldPatch{Bounds: &Bounds{Max: ptr(5)}, Default: &DefaultPatch{Value: 6}}},
		{"required header", hid, FieldPatch{Required: &yes}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fx.b.UpdateField(s2, tt.id, tt.patch)
			if !errors.Is(err, ErrInvalidFieldPatch) {
				t.Fatalf("UpdateField() error = %v, want ErrInvalidFieldPatch", err)
			}
			var perr *PatchError
			if !errors.As(err, &perr) || perr.FieldID != tt.id || len(perr.Errors) == 0 {
				t.Errorf("error = %#v, want *PatchError for %q", err, tt.id)
			}
			if !reflect.DeepEqual(got, s2) {
				t.Error("rejected patch changed the schema")
			}
		})
	}
}

func TestAddLogicRule(t *testing.T) {
	fx := newFixture(t)

	tests := []struct {
		name    string
		target  string
		rule    schema.LogicRule
		wantErr error
	}{
		{"self reference", fx.guardian, schema.LogicRule{SourceFieldID: fx.guardian, Operator: schema.OpEquals, Action: schema.ActionHide}, ErrSelfReferentialRule},
		{"missing source", fx.guardian, schema.LogicRule{SourceFieldID: "ghost", Operator: schema.OpEquals, Action: schema.ActionHide}, ErrInvalidRule},
		{"bad operator", fx.guardian, schema.LogicRule{SourceFieldID: fx.consent, Operator: "like", Action: schema.ActionHide}, ErrInvalidRule},
		{"bad action", fx.guardian, schema.LogicRule{SourceFieldID: fx.consent, Operator: schema.OpEquals, Action: "blink"}, ErrInvalidRule},
		{"mismatched target", fx.guardian, schema.LogicRule{SourceFieldID: fx.consent, Operator: schema.OpEquals, Action: schema.ActionHide, TargetFieldID: fx.age}, ErrInvalidRule},
		{"missing target", "ghost", schema.LogicRule{SourceFieldID: fx.consent, Operator: schema.OpEquals, Action: schema.ActionHide}, ErrFieldNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := fx.b.AddLogicRule(fx.s, tt.target, tt.rule)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AddLogicRule() error = %v, want %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(s, fx.s) {
				t.Error("rejected rule changed the schema")
			}
		})
	}
}

func TestAddAndRemoveLogicRule(t *testing.T) {
	fx := newFixture(t)

	s, err := fx.b.AddLogicRule(fx.s, fx.guardian, schema.LogicRule{
		SourceFieldID: fx.consent, Operator: schema.OpEquals, Comparand: "false", Action: schema.ActionHide,
	})
	must(t, err)
	f, _ := schema.FindField(s, fx.guardian)
	if len(f.Logic) != 2 || f.Logic[1].TargetFieldID != fx.guardian {
		t.Fatalf("Logic = %+v", f.Logic)
	}

	s, err = fx.b.RemoveLogicRule(s, fx.guardian, 0)
	must(t, err)
	f, _ = schema.FindField(s, fx.guardian)
	if len(f.Logic) != 1 || f.Logic[0].SourceFieldID != fx.consent {
		t.Errorf("Logic after remove = %+v", f.Logic)
	}

	if _, err := fx.b.RemoveLogicRule(s, fx.guardian, 5); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("RemoveLogicRule(out of range) error = %v", err)
	}
}

func TestReorderFields(t *testing.T) {
	fx := newFixture(t)

	s, err := fx.b.ReorderFields(fx.s, fx.s1, []string{fx.consent, fx.age})
	must(t, err)
	if got := schema.FieldIDs(s); !reflect.DeepEqual(got, []string{fx.consent, fx.age, fx.guardian}) {
		t.Errorf("FieldIDs() = %v", got)
	}
	if !reflect.DeepEqual(schema.Rules(s), schema.Rules(fx.s)) {
		t.Error("reorder changed rules")
	}

	bad := [][]string{
		{fx.age},
		{fx.age, fx.age},
		{fx.age, fx.guardian},
	}
	for _, order := range bad {
		if _, err := fx.b.ReorderFields(fx.s, fx.s1, order); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("ReorderFields(%v) error = %v, want ErrInvalidOrder", order, err)
		}
	}
}

func TestReorderSectionsAndPages(t *testing.T) {
	fx := newFixture(t)

	s, err := fx.b.ReorderSections(fx.s, fx.page, []string{fx.s2, fx.s1})
	must(t, err)
	if got := schema.FieldIDs(s); got[0] != fx.guardian {
		t.Errorf("FieldIDs() = %v, want guardian first", got)
	}

	s, p2 := fx.b.AddPage(s, "Second")
	s, err = fx.b.ReorderPages(s, []string{p2, fx.page})
	must(t, err)
	if s.Pages[0].ID != p2 {
		t.Errorf("Pages[0] = %q, want %q", s.Pages[0].ID, p2)
	}
}

func TestMoveField(t *testing.T) {
	fx := newFixture(t)

	s, err := fx.b.MoveField(fx.s, fx.age, fx.s2, 0)
	must(t, err)
	if got := schema.FieldIDs(s); !reflect.DeepEqual(got, []string{fx.consent, fx.age, fx.guardian}) {
		t.Errorf("FieldIDs() = %v", got)
	}
	if _, sec, _ := schema.SectionOf(s, fx.age); sec != fx.s2 {
		t.Errorf("age in section %q, want %q", sec, fx.s2)
	}
	if len(schema.Rules(s)) != 1 {
		t.Error("MoveField dropped rules")
	}

	if _, err := fx.b.MoveField(fx.s, fx.age, fx.s2, 7); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("MoveField(bad index) error = %v", err)
	}
}

func TestUpdatePageAndSection(t *testing.T) {
	fx := newFixture(t)
	title := "Identification"
	collapsed := true

	s, err := fx.b.UpdatePage(fx.s, fx.page, PagePatch{Title: &title})
	must(t, err)
	s, err = fx.b.UpdateSection(s, fx.s2, SectionPatch{Collapsed: &collapsed})
	must(t, err)

	if s.Pages[0].Title != title || !s.Pages[0].Sections[1].Collapsed {
		t.Errorf("page = %+v", s.Pages[0])
	}
	if _, err := fx.b.UpdateSection(s, "nope", SectionPatch{}); !errors.Is(err, ErrSectionNotFound) {
		t.Errorf("UpdateSection(missing) error = %v", err)
	}
}

func TestApply(t *testing.T) {
	fx := newFixture(t)

	s, id, err := fx.b.Apply(fx.s, Operation{Op: OpAddField, PageID: fx.page, SectionID: fx.s1, Type: catalog.TypeEmail})
	must(t, err)
	if f, ok := schema.FindField(s, id); !ok || f.Type != catalog.TypeEmail {
		t.Fatalf("Apply(add_field) created %q", id)
	}

	s, _, err = fx.b.Apply(s, Operation{
		Op:      OpAddLogicRule,
		FieldID: id,
		Rule:    &schema.LogicRule{SourceFieldID: fx.consent, Operator: schema.OpEquals, Comparand: "true", Action: schema.ActionRequire},
	})
	must(t, err)

	res := logic.Evaluate(s, schema.Values{fx.consent: true})
	if !res.States[id].Required {
		t.Error("rule added through Apply did not take effect")
	}

	if _, _, err := fx.b.Apply(s, Operation{Op: "paint"}); !errors.Is(err, ErrUnknownOperation) {
		t.Errorf("Apply(unknown) error = %v", err)
	}
	if _, _, err := fx.b.Apply(s, Operation{Op: OpAddLogicRule, FieldID: id}); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("Apply(add_logic_rule without rule) error = %v", err)
	}
}

func ptr(f float64) *float64 { return &f }
