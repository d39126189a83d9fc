// Package session runs one respondent's pass through a form: it loads the
// schema (and, in edit mode, a prior response), accepts values, keeps the
// effective field states current, and submits the response.
//
// A Session moves Loading -> Ready -> Submitting -> Done. Any store failure
// moves it to Error, from which Retry re-attempts the failed load or submit.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/ficha/internal/catalog"
	"github.com/hyperengineering/ficha/internal/logic"
	"github.com/hyperengineering/ficha/internal/schema"
	"github.com/hyperengineering/ficha/internal/store"
)

// State is a session lifecycle state.
type State string

const (
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateSubmitting State = "submitting"
	StateDone       State = "done"
	StateError      State = "error"
)

// SchemaSource is the schema store collaborator.
type SchemaSource interface {
	GetSchema(ctx context.Context, id string) (schema.FormSchema, error)
	GetSchemaVersion(ctx context.Context, id string, version int) (schema.FormSchema, error)
}

// ResponseStore is the response store collaborator.
type ResponseStore interface {
	GetResponse(ctx context.Context, id string) (store.Response, error)
	PutResponse(ctx context.Context, r store.Response) (store.Response, error)
}

type operation int

const (
	opNone operation = iota
	opLoad
	opSubmit
)

// Session is safe for concurrent use. Store calls are made without holding
// the session lock; at most one load or submit is outstanding at a time.
type Session struct {
	schemas   SchemaSource
	responses ResponseStore

	// NewID generates response ids for new responses.
	NewID func() string

	mu         sync.Mutex
	state      State
	busy       bool
	pending    operation
	lastErr    error
	schemaID   string
	responseID string
	editing    bool
	form       schema.FormSchema
	values     schema.Values
	result     logic.Result
}

// New returns a session in the Loading state. Call Load to fetch the form.
func New(schemas SchemaSource, responses ResponseStore) *Session {
	return &Session{
		schemas:   schemas,
		responses: responses,
		NewID:     func() string { return ulid.Make().String() },
		state:     StateLoading,
	}
}

// Load fetches the schema and, when responseID is non-empty, the prior
// response to edit. In edit mode the schema version the response was entered
// against is used; schemaID may be empty and otherwise must match.
func (s *Session) Load(ctx context.Context, schemaID, responseID string) error {
	s.mu.Lock()
	switch {
	case s.busy:
		s.mu.Unlock()
		return fmt.Errorf("%w: load in progress", ErrNotReady)
	case s.state != StateLoading:
		s.mu.Unlock()
		return fmt.Errorf("%w: session already loaded", ErrSessionClosed)
	}
	s.schemaID = schemaID
	s.responseID = responseID
	s.editing = responseID != ""
	s.busy = true
	s.mu.Unlock()

	return s.load(ctx)
}

// load runs with busy set and the lock released.
func (s *Session) load(ctx context.Context) error {
	form, values, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		return s.fail(opLoad, err)
	}

	if !s.editing {
		s.responseID = s.NewID()
	}
	s.schemaID = form.ID
	s.form = form
	s.values = values
	s.result = logic.Evaluate(form, values)
	s.state = StateReady
	s.pending = opNone
	s.lastErr = nil
	s.logDiagnostics(s.result.Diagnostics)

	slog.Info("session loaded",
		"component", "session",
		"action", "load",
		"schema_id", form.ID,
		"schema_version", form.Version,
		"response_id", s.responseID,
		"editing", s.editing,
	)
	return nil
}

func (s *Session) fetch(ctx context.Context) (schema.FormSchema, schema.Values, error) {
	s.mu.Lock()
	schemaID, responseID, editing := s.schemaID, s.responseID, s.editing
	s.mu.Unlock()

	if !editing {
		form, err := s.schemas.GetSchema(ctx, schemaID)
		if err != nil {
			return schema.FormSchema{}, nil, fmt.Errorf("get schema: %w", err)
		}
		if err := schema.Validate(form); err != nil {
			return schema.FormSchema{}, nil, err
		}
		return form, schema.Defaults(form), nil
	}

	prior, err := s.responses.GetResponse(ctx, responseID)
	if err != nil {
		return schema.FormSchema{}, nil, fmt.Errorf("get response: %w", err)
	}
	if schemaID != "" && prior.SchemaID != schemaID {
		return schema.FormSchema{}, nil, fmt.Errorf("%w: response %q is for schema %q", ErrSchemaMismatch, responseID, prior.SchemaID)
	}
	form, err := s.schemas.GetSchemaVersion(ctx, prior.SchemaID, prior.SchemaVersion)
	if err != nil {
		return schema.FormSchema{}, nil, fmt.Errorf("get schema version: %w", err)
	}
	if err := schema.Validate(form); err != nil {
		return schema.FormSchema{}, nil, err
	}
	return form, seed(form, prior.Values), nil
}

// seed converts stored values back into canonical shapes, dropping values
// for fields the schema no longer has or that no longer fit their field.
func seed(form schema.FormSchema, prior schema.Values) schema.Values {
	out := schema.Values{}
	for id, raw := range prior.Restrict(form) {
		f, _ := schema.FindField(form, id)
		v, err := schema.CheckValue(f, raw)
		if err != nil {
			slog.Warn("prior value dropped",
				"component", "session",
				"action", "value_dropped",
				"schema_id", form.ID,
				"field_id", id,
				"error", err,
			)
			continue
		}
		if v != nil {
			out[id] = v
		}
	}
	return out
}

// SetValue validates raw against the field's type and stores it. A nil raw
// clears the field. The effective states are recomputed on success.
func (s *Session) SetValue(fieldID string, raw any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkEditable(); err != nil {
		return err
	}

	f, ok := schema.FindField(s.form, fieldID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrFieldNotFound, fieldID)
	}

	next := s.values.Without(fieldID)
	if raw != nil {
		d, err := catalog.Describe(f.Type)
		if err != nil {
			return err
		}
		if d.Presentational {
			return &TypeMismatchError{FieldID: f.ID, Type: f.Type, Err: errors.New("field does not hold a value")}
		}
		v, err := schema.CheckValue(f, raw)
		if err != nil {
			return &TypeMismatchError{FieldID: f.ID, Type: f.Type, Err: err}
		}
		if v != nil {
			next = s.values.With(fieldID, v)
		}
	}

	s.values = next
	s.result = logic.Evaluate(s.form, next)
	if !s.result.Converged {
		s.logDiagnostics(s.result.Diagnostics)
	}
	return nil
}

func (s *Session) checkEditable() error {
	switch s.state {
	case StateReady:
		return nil
	case StateSubmitting:
		return ErrSubmitInProgress
	case StateDone:
		return ErrSessionClosed
	default:
		return fmt.Errorf("%w: state %s", ErrNotReady, s.state)
	}
}

// FieldView is one visible field as handed to a renderer.
type FieldView struct {
	PageID    string       `json:"pageId"`
	SectionID string       `json:"sectionId"`
	Field     schema.Field `json:"field"`
	State     logic.State  `json:"state"`
	Value     any          `json:"value,omitempty"`
}

// View is the renderer input: the schema, the current values, every field's
// effective state, and the visible fields in schema order.
type View struct {
	Schema schema.FormSchema      `json:"schema"`
	Values schema.Values          `json:"values"`
	States map[string]logic.State `json:"states"`
	Fields []FieldView            `json:"fields"`
}

// CurrentView returns the renderer input for the current values. The
// returned maps are copies.
func (s *Session) CurrentView() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.form.ID == "" {
		return View{}, fmt.Errorf("%w: state %s", ErrNotReady, s.state)
	}

	v := View{
		Schema: s.form,
		Values: maps.Clone(s.values),
		States: maps.Clone(s.result.States),
		Fields: []FieldView{},
	}
	for _, page := range s.form.Pages {
		for _, sec := range page.Sections {
			for _, f := range sec.Fields {
				st := s.result.State(f.ID)
				if !st.Visible {
					continue
				}
				v.Fields = append(v.Fields, FieldView{
					PageID:    page.ID,
					SectionID: sec.ID,
					Field:     f,
					State:     st,
					Value:     s.values[f.ID],
				})
			}
		}
	}
	return v, nil
}

// Validate returns the ids of visible required fields without a value, in
// schema order. An empty list means the form can be submitted.
func (s *Session) Validate() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missing()
}

func (s *Session) missing() []string {
	out := []string{}
	for _, f := range schema.AllFields(s.form) {
		st := s.result.State(f.ID)
		if !st.Visible || !st.Required {
			continue
		}
		if v, ok := s.values[f.ID]; !ok || catalog.IsEmpty(v) {
			out = append(out, f.ID)
		}
	}
	return out
}

// Submit validates the form and writes the response. A form with missing
// required fields stays Ready and returns *IncompleteFormError. A submit
// while another is outstanding is rejected with ErrSubmitInProgress.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkEditable(); err != nil {
		s.mu.Unlock()
		return err
	}
	if missing := s.missing(); len(missing) > 0 {
		s.mu.Unlock()
		return &IncompleteFormError{FieldIDs: missing}
	}
	s.state = StateSubmitting
	s.mu.Unlock()

	return s.submit(ctx)
}

// submit runs in the Submitting state with the lock released.
func (s *Session) submit(ctx context.Context) error {
	s.mu.Lock()
	r := store.Response{
		ID:            s.responseID,
		SchemaID:      s.form.ID,
		SchemaVersion: s.form.Version,
		Values:        s.values,
	}
	s.mu.Unlock()

	_, err := s.responses.PutResponse(ctx, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return s.fail(opSubmit, fmt.Errorf("put response: %w", err))
	}
	s.state = StateDone
	s.pending = opNone
	s.lastErr = nil

	slog.Info("response submitted",
		"component", "session",
		"action", "submit",
		"schema_id", r.SchemaID,
		"response_id", r.ID,
	)
	return nil
}

// Retry re-attempts the load or submit that moved the session to Error.
// Entered values are kept and not re-validated.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateError || s.busy {
		s.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrNothingToRetry, s.state)
	}
	op := s.pending
	switch op {
	case opLoad:
		s.state = StateLoading
		s.busy = true
	case opSubmit:
		s.state = StateSubmitting
	default:
		s.mu.Unlock()
		return ErrNothingToRetry
	}
	s.mu.Unlock()

	if op == opLoad {
		return s.load(ctx)
	}
	return s.submit(ctx)
}

// fail moves the session to Error. The caller holds the lock.
func (s *Session) fail(op operation, err error) error {
	s.state = StateError
	s.pending = op
	s.lastErr = err
	slog.Warn("session operation failed",
		"component", "session",
		"action", opName(op),
		"schema_id", s.schemaID,
		"response_id", s.responseID,
		"error", err,
	)
	return err
}

func opName(op operation) string {
	switch op {
	case opLoad:
		return "load"
	case opSubmit:
		return "submit"
	default:
		return "none"
	}
}

// logDiagnostics reports rules the evaluator skipped. The caller holds the lock.
func (s *Session) logDiagnostics(diags []logic.Diagnostic) {
	for _, d := range diags {
		slog.Warn("rule skipped",
			"component", "session",
			"action", "rule_skipped",
			"schema_id", s.form.ID,
			"field_id", d.FieldID,
			"source_field_id", d.SourceFieldID,
			"code", string(d.Code),
			"message", d.Message,
		)
	}
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SchemaID returns the id of the loaded schema.
func (s *Session) SchemaID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schemaID
}

// ResponseID returns the id the response is stored under. It is empty until
// a new-response session has loaded.
func (s *Session) ResponseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responseID
}

// LastError returns the error that moved the session to Error, or nil.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
