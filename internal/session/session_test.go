package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/hyperengineering/ficha/internal/catalog"
	"github.com/hyperengineering/ficha/internal/logic"
	"github.com/hyperengineering/ficha/internal/schema"
	"github.com/hyperengineering/ficha/internal/store"
)

func f64(v float64) *float64 { return &v }

// surveyForm has a required name, an age that makes guardian required when
// under 18, and a required stone type hidden for timber buildings.
func surveyForm() schema.FormSchema {
	return schema.FormSchema{
		ID:    "survey",
		Title: "Building survey",
		Pages: []schema.Page{{
			ID:    "p1",
			Title: "Building",
			Sections: []schema.Section{{
				ID:   "s1",
				Name: "General",
				Fields: []schema.Field{
					{ID: "name", Type: catalog.TypeText, Label: "Name", Required: true},
					{ID: "age", Type: catalog.TypeNumber, Label: "Owner age", Min: f64(0), Max: f64(130)},
					{
						ID: "guardian", Type: catalog.TypeText, Label: "Guardian",
						Logic: []schema.LogicRule{
							{SourceFieldID: "age", Operator: schema.OpLessThan, Comparand: "18", Action: schema.ActionRequire, TargetFieldID: "guardian"},
						},
					},
					{ID: "material", Type: catalog.TypeDropdown, Label: "Material", Options: []string{"stone", "timber"}, DefaultValue: "stone"},
					{
						ID: "stoneType", Type: catalog.TypeText, Label: "Stone type", Required: true,
						Logic: []schema.LogicRule{
							{SourceFieldID: "material", Operator: schema.OpEquals, Comparand: "timber", Action: schema.ActionHide, TargetFieldID: "stoneType"},
						},
					},
					{ID: "intro", Type: catalog.TypeParagraph, Label: "Read carefully"},
				},
			}},
		}},
	}
}

// seededStore returns a memory store holding surveyForm as version 1.
func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ms := store.NewMemoryStore()
	if _, err := ms.PutSchema(context.Background(), surveyForm()); err != nil {
		t.Fatalf("PutSchema: %v", err)
	}
	return ms
}

func loadedSession(t *testing.T, ms *store.MemoryStore, responses ResponseStore) *Session {
	t.Helper()
	if responses == nil {
		responses = ms
	}
	s := New(ms, responses)
	s.NewID = func() string { return "resp-1" }
	if err := s.Load(context.Background(), "survey", ""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

// flakyResponses fails the next n puts, then delegates.
type flakyResponses struct {
	ResponseStore
	mu    sync.Mutex
	fails int
	puts  int
}

func (f *flakyResponses) PutResponse(ctx context.Context, r store.Response) (store.Response, error) {
	f.mu.Lock()
	f.puts++
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return store.Response{}, errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.ResponseStore.PutResponse(ctx, r)
}

// blockingResponses holds every put until release is closed.
type blockingResponses struct {
	ResponseStore
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	puts    int
}

func (b *blockingResponses) PutResponse(ctx context.Context, r store.Response) (store.Response, error) {
	b.mu.Lock()
	b.puts++
	b.mu.Unlock()
	b.entered <- struct{}{}
	<-b.release
	return b.ResponseStore.PutResponse(ctx, r)
}

// flakySchemas fails the next n schema reads, then delegates.
type flakySchemas struct {
	SchemaSource
	fails int
}

func (f *flakySchemas) GetSchema(ctx context.Context, id string) (schema.FormSchema, error) {
	if f.fails > 0 {
		f.fails--
		return schema.FormSchema{}, errors.New("timeout")
	}
	return f.SchemaSource.GetSchema(ctx, id)
}

func TestLoad_NewResponseSeedsDefaults(t *testing.T) {
	s := loadedSession(t, seededStore(t), nil)

	if s.State() != StateReady {
		t.Fatalf("state = %s, want ready", s.State())
	}
	if s.ResponseID() != "resp-1" {
		t.Errorf("ResponseID = %q", s.ResponseID())
	}
	view, err := s.CurrentView()
	if err != nil {
		t.Fatalf("CurrentView: %v", err)
	}
	want := schema.Values{"material": "stone"}
	if !reflect.DeepEqual(view.Values, want) {
		t.Errorf("values = %v, want %v", view.Values, want)
	}
	if view.Schema.Version != 1 {
		t.Errorf("schema version = %d", view.Schema.Version)
	}
}

func TestLoad_DefaultsNormalizedAndPersisted(t *testing.T) {
	ms := store.NewMemoryStore()
	_, err := ms.PutSchema(context.Background(), schema.FormSchema{
		ID:    "visit",
		Title: "Site visit",
		Pages: []schema.Page{{
			ID:    "p1",
			Title: "Visit",
			Sections: []schema.Section{{
				ID:   "s1",
				Name: "Visit",
				Fields: []schema.Field{
					{ID: "visited", Type: catalog.TypeDate, Label: "Visited on", DefaultValue: "2024-05-01T10:00:00Z"},
					{ID: "tags", Type: catalog.TypeCheckbox, Label: "Tags", Options: []string{"a", "b"}, DefaultValue: []any{"a"}},
				},
			}},
		}},
	})
	if err != nil {
		t.Fatalf("PutSchema: %v", err)
	}

	s := New(ms, ms)
	s.NewID = func() string { return "resp-visit" }
	if err := s.Load(context.Background(), "visit", ""); err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := schema.Values{"visited": "2024-05-01", "tags": []string{"a"}}
	view, err := s.CurrentView()
	if err != nil {
		t.Fatalf("CurrentView: %v", err)
	}
	if !reflect.DeepEqual(view.Values, want) {
		t.Errorf("seeded values = %#v, want %#v", view.Values, want)
	}

	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r, err := ms.GetResponse(context.Background(), "resp-visit")
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if !reflect.DeepEqual(r.Values, want) {
		t.Errorf("stored values = %#v, want %#v", r.Values, want)
	}
}

func TestLoad_SchemaNotFound(t *testing.T) {
	s := New(store.NewMemoryStore(), store.NewMemoryStore())
	err := s.Load(context.Background(), "missing", "")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if s.State() != StateError {
		t.Errorf("state = %s, want error", s.State())
	}
	if !errors.Is(s.LastError(), store.ErrNotFound) {
		t.Errorf("LastError = %v", s.LastError())
	}
	if _, err := s.CurrentView(); !errors.Is(err, ErrNotReady) {
		t.Errorf("CurrentView err = %v, want ErrNotReady", err)
	}
}

func TestLoad_Twice(t *testing.T) {
	s := loadedSession(t, seededStore(t), nil)
	if err := s.Load(context.Background(), "survey", ""); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second Load err = %v, want ErrSessionClosed", err)
	}
}

func TestLoad_RetryAfterFailure(t *testing.T) {
	ms := seededStore(t)
	s := New(&flakySchemas{SchemaSource: ms, fails: 1}, ms)

	if err := s.Load(context.Background(), "survey", ""); err == nil {
		t.Fatal("expected first load to fail")
	}
	if s.State() != StateError {
		t.Fatalf("state = %s, want error", s.State())
	}
	if err := s.Retry(context.Background()); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("state = %s, want ready", s.State())
	}
	if s.LastError() != nil {
		t.Errorf("LastError = %v, want nil", s.LastError())
	}
}

func TestSetValue_RecomputesStates(t *testing.T) {
	s := loadedSession(t, seededStore(t), nil)

	if err := s.SetValue("age", 15); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	view, _ := s.CurrentView()
	if !view.States["guardian"].Required {
		t.Error("guardian should be required for age 15")
	}

	if err := s.SetValue("age", 30); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	view, _ = s.CurrentView()
	if view.States["guardian"].Required {
		t.Error("guardian should not be required for age 30")
	}
	if view.Values["age"] != float64(30) {
		t.Errorf("age = %#v, want float64 30", view.Values["age"])
	}
}

func TestSetValue_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		fieldID string
		value   any
		want    error
	}{
		{"text given number", "name", 42, ErrTypeMismatch},
		{"number given string", "age", "fifteen", ErrTypeMismatch},
		{"number out of bounds", "age", 200, ErrTypeMismatch},
		{"choice not an option", "material", "brick", ErrTypeMismatch},
		{"presentational field", "intro", "text", ErrTypeMismatch},
		{"unknown field", "nope", "x", ErrFieldNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadedSession(t, seededStore(t), nil)
			before, _ := s.CurrentView()

			err := s.SetValue(tt.fieldID, tt.value)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if s.State() != StateReady {
				t.Errorf("state = %s, want ready", s.State())
			}
			after, _ := s.CurrentView()
			if !reflect.DeepEqual(before.Values, after.Values) {
				t.Errorf("values changed on rejection: %v -> %v", before.Values, after.Values)
			}
		})
	}
}

func TestSetValue_TypeMismatchDetail(t *testing.T) {
	s := loadedSession(t, seededStore(t), nil)

	err := s.SetValue("age", "old")
	var tm *TypeMismatchError
	if !errors.As(err, &tm) {
		t.Fatalf("err = %T, want *TypeMismatchError", err)
	}
	if tm.FieldID != "age" || tm.Type != catalog.TypeNumber {
		t.Errorf("detail = %+v", tm)
	}
	if !errors.Is(err, catalog.ErrShapeMismatch) {
		t.Error("cause should be ErrShapeMismatch")
	}
}

func TestSetValue_NilClears(t *testing.T) {
	s := loadedSession(t, seededStore(t), nil)

	if err := s.SetValue("material", nil); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	view, _ := s.CurrentView()
	if _, ok := view.Values["material"]; ok {
		t.Error("material should be cleared")
	}
}

func TestSetValue_ReplacesSnapshot(t *testing.T) {
	s := loadedSession(t, seededStore(t), nil)
	before, _ := s.CurrentView()

	if err := s.SetValue("name", "Casa Grande"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if _, ok := before.Values["name"]; ok {
		t.Error("earlier snapshot was modified in place")
	}
}

func TestCurrentView_ListsVisibleFields(t *testing.T) {
	s := loadedSession(t, seededStore(t), nil)
	if err := s.SetValue("material", "timber"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	view, err := s.CurrentView()
	if err != nil {
		t.Fatalf("CurrentView: %v", err)
	}
	var ids []string
	for _, fv := range view.Fields {
		ids = append(ids, fv.Field.ID)
		if fv.PageID != "p1" || fv.SectionID != "s1" {
			t.Errorf("%s located at %s/%s", fv.Field.ID, fv.PageID, fv.SectionID)
		}
	}
	want := []string{"name", "age", "guardian", "material", "intro"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("visible fields = %v, want %v", ids, want)
	}
	if view.States["stoneType"].Visible {
		t.Error("stoneType state should be hidden")
	}
}

func TestCurrentView_ReturnsCopies(t *testing.T) {
	s := loadedSession(t, seededStore(t), nil)

	view, err := s.CurrentView()
	if err != nil {
		t.Fatalf("CurrentView: %v", err)
	}
	view.States["name"] = logic.State{}
	view.Values["material"] = "timber"

	if got := s.Validate(); !reflect.DeepEqual(got, []string{"name", "stoneType"}) {
		t.Errorf("Validate() = %v, want [name stoneType]", got)
	}
	again, _ := s.CurrentView()
	if again.Values["material"] != "stone" || !again.States["name"].Visible {
		t.Errorf("view changed through a returned map: values=%v name=%+v", again.Values, again.States["name"])
	}
}

func TestValidate_IgnoresHiddenRequiredFields(t *testing.T) {
	s := loadedSession(t, seededStore(t), nil)

	if got := s.Validate(); !reflect.DeepEqual(got, []string{"name", "stoneType"}) {
		t.Errorf("Validate = %v, want [name stoneType]", got)
	}

	if err := s.SetValue("material", "timber"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if got := s.Validate(); !reflect.DeepEqual(got, []string{"name"}) {
		t.Errorf("Validate with stoneType hidden = %v, want [name]", got)
	}

	if err := s.SetValue("name", "Molino"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if got := s.Validate(); len(got) != 0 {
		t.Errorf("Validate = %v, want empty", got)
	}
}

func TestValidate_RuleRequiredField(t *testing.T) {
	s := loadedSession(t, seededStore(t), nil)
	for id, v := range map[string]any{"name": "Molino", "stoneType": "granite", "age": 12} {
		if err := s.SetValue(id, v); err != nil {
			t.Fatalf("SetValue(%s): %v", id, err)
		}
	}
	if got := s.Validate(); !reflect.DeepEqual(got, []string{"guardian"}) {
		t.Errorf("Validate = %v, want [guardian]", got)
	}
}

func TestSubmit_IncompleteStaysReady(t *testing.T) {
	ms := seededStore(t)
	s := loadedSession(t, ms, nil)

	err := s.Submit(context.Background())
	var inc *IncompleteFormError
	if !errors.As(err, &inc) {
		t.Fatalf("err = %v, want *IncompleteFormError", err)
	}
	if !errors.Is(err, ErrIncompleteForm) {
		t.Error("should match ErrIncompleteForm")
	}
	if !reflect.DeepEqual(inc.FieldIDs, []string{"name", "stoneType"}) {
		t.Errorf("FieldIDs = %v", inc.FieldIDs)
	}
	if s.State() != StateReady {
		t.Errorf("state = %s, want ready", s.State())
	}
	if _, err := ms.GetResponse(context.Background(), "resp-1"); !errors.Is(err, store.ErrNotFound) {
		t.Error("incomplete submit must not write a response")
	}
}

func fillRequired(t *testing.T, s *Session) {
	t.Helper()
	for id, v := range map[string]any{"name": "Molino", "stoneType": "granite"} {
		if err := s.SetValue(id, v); err != nil {
			t.Fatalf("SetValue(%s): %v", id, err)
		}
	}
}

func TestSubmit_WritesResponseAndCloses(t *testing.T) {
	ms := seededStore(t)
	s := loadedSession(t, ms, nil)
	fillRequired(t, s)

	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.State() != StateDone {
		t.Fatalf("state = %s, want done", s.State())
	}

	r, err := ms.GetResponse(context.Background(), "resp-1")
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if r.SchemaID != "survey" || r.SchemaVersion != 1 {
		t.Errorf("response pinned to %s v%d", r.SchemaID, r.SchemaVersion)
	}
	if r.Values["name"] != "Molino" {
		t.Errorf("values = %v", r.Values)
	}

	if err := s.SetValue("name", "Other"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("SetValue after done err = %v, want ErrSessionClosed", err)
	}
	if err := s.Submit(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Submit after done err = %v, want ErrSessionClosed", err)
	}
}

func TestSubmit_ConcurrentSecondSubmitRejected(t *testing.T) {
	ms := seededStore(t)
	br := &blockingResponses{
		ResponseStore: ms,
		entered:       make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
	s := loadedSession(t, ms, br)
	fillRequired(t, s)

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background()) }()
	<-br.entered

	if s.State() != StateSubmitting {
		t.Errorf("state = %s, want submitting", s.State())
	}
	err := s.Submit(context.Background())
	if !errors.Is(err, ErrSubmitInProgress) || !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second Submit err = %v, want ErrSubmitInProgress wrapping ErrSessionClosed", err)
	}
	if err := s.SetValue("name", "x"); !errors.Is(err, ErrSubmitInProgress) {
		t.Errorf("SetValue while submitting err = %v", err)
	}

	close(br.release)
	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if br.puts != 1 {
		t.Errorf("puts = %d, want 1", br.puts)
	}
}

func TestSubmit_RetryAfterStoreFailure(t *testing.T) {
	ms := seededStore(t)
	fr := &flakyResponses{ResponseStore: ms, fails: 1}
	s := loadedSession(t, ms, fr)
	fillRequired(t, s)

	if err := s.Submit(context.Background()); err == nil {
		t.Fatal("expected submit to fail")
	}
	if s.State() != StateError {
		t.Fatalf("state = %s, want error", s.State())
	}
	if s.LastError() == nil {
		t.Error("LastError should be set")
	}
	if err := s.SetValue("name", "x"); !errors.Is(err, ErrNotReady) {
		t.Errorf("SetValue in error state err = %v, want ErrNotReady", err)
	}

	if err := s.Retry(context.Background()); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if s.State() != StateDone {
		t.Errorf("state = %s, want done", s.State())
	}
	if fr.puts != 2 {
		t.Errorf("puts = %d, want 2", fr.puts)
	}
	r, err := ms.GetResponse(context.Background(), "resp-1")
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if r.Values["name"] != "Molino" {
		t.Errorf("retried submit lost values: %v", r.Values)
	}
}

func TestRetry_NothingToRetry(t *testing.T) {
	s := loadedSession(t, seededStore(t), nil)
	if err := s.Retry(context.Background()); !errors.Is(err, ErrNothingToRetry) {
		t.Errorf("err = %v, want ErrNothingToRetry", err)
	}
}

func TestLoad_EditMode(t *testing.T) {
	ms := seededStore(t)
	ctx := context.Background()
	prior := store.Response{
		ID:            "resp-9",
		SchemaID:      "survey",
		SchemaVersion: 1,
		Values: schema.Values{
			"name":    "Casa",
			"age":     float64(16),
			"removed": "stale",
			"stoneType": []any{
				"not a string",
			},
		},
	}
	if _, err := ms.PutResponse(ctx, prior); err != nil {
		t.Fatalf("PutResponse: %v", err)
	}

	// A newer schema version must not be used for an existing response.
	v2 := surveyForm()
	v2.Title = "Building survey (v2)"
	if _, err := ms.PutSchema(ctx, v2); err != nil {
		t.Fatalf("PutSchema: %v", err)
	}

	s := New(ms, ms)
	if err := s.Load(ctx, "", "resp-9"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ResponseID() != "resp-9" || s.SchemaID() != "survey" {
		t.Errorf("ids = %s / %s", s.ResponseID(), s.SchemaID())
	}

	view, _ := s.CurrentView()
	if view.Schema.Version != 1 {
		t.Errorf("schema version = %d, want pinned 1", view.Schema.Version)
	}
	want := schema.Values{"name": "Casa", "age": float64(16)}
	if !reflect.DeepEqual(view.Values, want) {
		t.Errorf("values = %v, want %v", view.Values, want)
	}
	if !view.States["guardian"].Required {
		t.Error("guardian should be required for prior age 16")
	}
}

func TestLoad_EditModeSchemaMismatch(t *testing.T) {
	ms := seededStore(t)
	ctx := context.Background()
	if _, err := ms.PutResponse(ctx, store.Response{ID: "r1", SchemaID: "survey", SchemaVersion: 1}); err != nil {
		t.Fatalf("PutResponse: %v", err)
	}

	s := New(ms, ms)
	if err := s.Load(ctx, "other", "r1"); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("err = %v, want ErrSchemaMismatch", err)
	}
}

func TestLoad_InvalidStoredSchema(t *testing.T) {
	ms := store.NewMemoryStore()
	bad := surveyForm()
	bad.Pages[0].Sections[0].Fields[0].Type = "hologram"
	if _, err := ms.PutSchema(context.Background(), bad); err != nil {
		t.Fatalf("PutSchema: %v", err)
	}

	s := New(ms, ms)
	if err := s.Load(context.Background(), "survey", ""); !errors.Is(err, schema.ErrInvalidSchema) {
		t.Errorf("err = %v, want ErrInvalidSchema", err)
	}
}
