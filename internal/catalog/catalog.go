// Package catalog is the single registry of field types. Every field type tag maps
// to a Descriptor that states the shape of its values, how those values compare
// against a rule comparand, and which configuration knobs apply to it.
package catalog

import (
	"fmt"
	"sync"
)

// FieldType is the tag stored in a schema field's "type" attribute.
type FieldType string

const (
	TypeText      FieldType = "text"
	TypeMultiline FieldType = "multiline"
	TypeEmail     FieldType = "email"
	TypeNumber    FieldType = "number"
	TypeCheckbox  FieldType = "checkbox"
	TypeRadio     FieldType = "radio"
	TypeDropdown  FieldType = "dropdown"
	TypeSwitch    FieldType = "switch"
	TypeDate      FieldType = "date"
	TypeTime      FieldType = "time"
	TypeSlider    FieldType = "slider"
	TypeRating    FieldType = "rating"
	TypeScale     FieldType = "scale"
	TypeRange     FieldType = "range"
	TypeImage     FieldType = "image"
	TypeSignature FieldType = "signature"
	TypeLocation  FieldType = "location"
	TypeParagraph FieldType = "paragraph"
	TypeHeader    FieldType = "header"
	TypeDivider   FieldType = "divider"
)

// Shape is the canonical Go representation of a field type's value.
type Shape string

const (
	ShapeString     Shape = "string"      // string
	ShapeEmail      Shape = "email"       // string holding a bare address
	ShapeNumber     Shape = "number"      // float64
	ShapeBoolean    Shape = "boolean"     // bool
	ShapeStringList Shape = "string_list" // []string
	ShapeDate       Shape = "date"        // string, ISO-8601 date
	ShapeClock      Shape = "clock"       // string, HH:MM
	ShapePair       Shape = "pair"        // Pair
	ShapeURI        Shape = "uri"         // string
	ShapeLatLng     Shape = "lat_lng"     // LatLng
	ShapeNone       Shape = "none"        // presentational, never holds a value
)

// Semantics selects how a value is compared against a rule comparand.
type Semantics string

const (
	SemanticsString   Semantics = "string"   // case-sensitive equality, substring containment
	SemanticsChoice   Semantics = "choice"   // equality, membership in a comma-separated option list
	SemanticsNumber   Semantics = "number"   // numeric equality and ordering
	SemanticsDate     Semantics = "date"     // chronological equality and ordering
	SemanticsSet      Semantics = "set"      // set equality, option membership
	SemanticsBoolean  Semantics = "boolean"  // boolean equality
	SemanticsInterval Semantics = "interval" // pair equality, point containment
	SemanticsNone     Semantics = "none"     // never comparable
)

// Knobs lists which optional field attributes are meaningful for a type.
type Knobs struct {
	Options     bool `json:"options"`
	Range       bool `json:"range"`
	Placeholder bool `json:"placeholder"`
	ScaleLabels bool `json:"scaleLabels"`
}

// Defaults is the configuration a freshly added field of the type starts with.
type Defaults struct {
	Label   string   `json:"label"`
	Options []string `json:"options,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Step    *float64 `json:"step,omitempty"`
}

// Descriptor describes one field type.
type Descriptor struct {
	Type           FieldType `json:"type"`
	Name           string    `json:"name"`
	Shape          Shape     `json:"shape"`
	Semantics      Semantics `json:"semantics"`
	Knobs          Knobs     `json:"knobs"`
	Presentational bool      `json:"presentational"`
	Defaults       Defaults  `json:"defaults"`
}

// RequiresOptions reports whether fields of this type must list at least one option.
func (d Descriptor) RequiresOptions() bool {
	return d.Knobs.Options
}

// ZeroValue returns the empty value of the descriptor's shape, or nil for
// presentational types.
func (d Descriptor) ZeroValue() any {
	switch d.Shape {
	case ShapeNumber:
		return float64(0)
	case ShapeBoolean:
		return false
	case ShapeStringList:
		return []string{}
	case ShapePair:
		return Pair{}
	case ShapeLatLng:
		return LatLng{}
	case ShapeNone:
		return nil
	default:
		return ""
	}
}

// registry holds all registered field types in registration order.
var (
	registryMu  sync.RWMutex
	descriptors = make(map[FieldType]Descriptor)
	order       []FieldType
)

// Register adds a descriptor to the catalog.
// Panics if the type is already registered.
func Register(d Descriptor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := descriptors[d.Type]; exists {
		panic("field type already registered: " + string(d.Type))
	}
	descriptors[d.Type] = d
	order = append(order, d.Type)
}

// Describe returns the descriptor for a field type.
// Returns ErrUnknownFieldType when the tag is not registered.
func Describe(t FieldType) (Descriptor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	d, ok := descriptors[t]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownFieldType, string(t))
	}
	return d, nil
}

// MustDescribe is Describe for tags known at compile time.
func MustDescribe(t FieldType) Descriptor {
	d, err := Describe(t)
	if err != nil {
		panic(err)
	}
	return d
}

// Types returns all registered field types in registration order.
func Types() []FieldType {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]FieldType, len(order))
	copy(out, order)
	return out
}

// All returns every registered descriptor in registration order.
func All() []Descriptor {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Descriptor, 0, len(order))
	for _, t := range order {
		out = append(out, descriptors[t])
	}
	return out
}

// IsKnown reports whether the tag is registered.
func IsKnown(t FieldType) bool {
	_, err := Describe(t)
	return err == nil
}
