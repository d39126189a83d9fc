// Package schema defines the form definition tree: a FormSchema holds ordered
// Pages, each Page holds ordered Sections, each Section holds ordered Fields, and
// each Field carries the LogicRules that affect it.
//
// Everything in this package is pure data plus read-only queries and invariant
// checks. Mutation lives in the builder package.
package schema

import "github.com/hyperengineering/ficha/internal/catalog"

// Operator compares a rule's source value against its comparand.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not-equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not-contains"
	OpGreaterThan Operator = "greater-than"
	OpLessThan    Operator = "less-than"
)

// Operators lists every valid operator.
var Operators = []Operator{OpEquals, OpNotEquals, OpContains, OpNotContains, OpGreaterThan, OpLessThan}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	for _, op := range Operators {
		if o == op {
			return true
		}
	}
	return false
}

// Action is the effect a satisfied rule has on its target's state.
type Action string

const (
	ActionShow       Action = "show"
	ActionHide       Action = "hide"
	ActionEnable     Action = "enable"
	ActionDisable    Action = "disable"
	ActionRequire    Action = "require"
	ActionNotRequire Action = "not-require"
)

// Actions lists every valid action.
var Actions = []Action{ActionShow, ActionHide, ActionEnable, ActionDisable, ActionRequire, ActionNotRequire}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	for _, act := range Actions {
		if a == act {
			return true
		}
	}
	return false
}

// LogicRule is a single edge source -> target: when the source field's value
// satisfies Operator against Comparand, Action is applied to the target.
// Rules are stored on the target field.
type LogicRule struct {
	SourceFieldID string   `json:"sourceFieldId" yaml:"sourceFieldId"`
	Operator      Operator `json:"operator" yaml:"operator"`
	Comparand     string   `json:"comparand" yaml:"comparand"`
	Action        Action   `json:"action" yaml:"action"`
	TargetFieldID string   `json:"targetFieldId" yaml:"targetFieldId"`
}

// Field is a single input (or presentational element) of a form.
type Field struct {
	ID           string            `json:"id" yaml:"id"`
	Type         catalog.FieldType `json:"type" yaml:"type"`
	Label        string            `json:"label" yaml:"label"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	Placeholder  string            `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Required     bool              `json:"required" yaml:"required"`
	Options      []string          `json:"options,omitempty" yaml:"options,omitempty"`
	Min          *float64          `json:"min,omitempty" yaml:"min,omitempty"`
	Max          *float64          `json:"max,omitempty" yaml:"max,omitempty"`
	Step         *float64          `json:"step,omitempty" yaml:"step,omitempty"`
	MinLabel     string            `json:"minLabel,omitempty" yaml:"minLabel,omitempty"`
	MaxLabel     string            `json:"maxLabel,omitempty" yaml:"maxLabel,omitempty"`
	DefaultValue any               `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Logic        []LogicRule       `json:"logic" yaml:"logic"`
}

// Section groups fields on a page.
type Section struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Collapsed   bool    `json:"collapsed" yaml:"collapsed"`
	Fields      []Field `json:"fields" yaml:"fields"`
}

// Page is one screen of a form.
type Page struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Sections    []Section `json:"sections" yaml:"sections"`
}

// FormSchema is the root of a form definition. Version is assigned by the
// schema store on every put; a persisted response pins the version it was
// entered against.
type FormSchema struct {
	ID             string `json:"id" yaml:"id"`
	OwnerProjectID string `json:"ownerProjectId,omitempty" yaml:"ownerProjectId,omitempty"`
	Title          string `json:"title" yaml:"title"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	Version        int    `json:"version" yaml:"version"`
	Pages          []Page `json:"pages" yaml:"pages"`
}

// New constructs a schema from pages and checks every invariant. A schema with
// zero pages, or whose first page has no section, is rejected.
func New(id string, pages []Page) (FormSchema, error) {
	s := FormSchema{ID: id, Pages: pages}
	if err := Validate(s); err != nil {
		return FormSchema{}, err
	}
	return s, nil
}
