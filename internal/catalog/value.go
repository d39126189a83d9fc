package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"strings"
	"time"
)

const (
	// DateLayout is the ISO-8601 calendar date layout used for date values.
	DateLayout = "2006-01-02"
	// ClockLayout is the 24-hour layout used for time-of-day values.
	ClockLayout = "15:04"
)

// Pair is a numeric pair such as the two handles of a range slider.
type Pair [2]float64

// LatLng is a geographic position in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Normalize coerces a decoded value (from JSON, YAML or Go callers) into the
// canonical shape of field type t. A nil value normalizes to nil.
func Normalize(t FieldType, raw any) (any, error) {
	d, err := Describe(t)
	if err != nil {
		return nil, err
	}
	return d.Normalize(raw)
}

// Normalize coerces raw into the descriptor's canonical shape.
func (d Descriptor) Normalize(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch d.Shape {
	case ShapeString:
		return asString(raw)
	case ShapeEmail:
		s, err := asString(raw)
		if err != nil {
			return nil, err
		}
		addr, perr := mail.ParseAddress(s)
		if perr != nil || addr.Address != strings.TrimSpace(s) {
			return nil, mismatch("must be a bare email address")
		}
		return addr.Address, nil
	case ShapeNumber:
		return asNumber(raw)
	case ShapeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, mismatch("must be a boolean, got %T", raw)
		}
		return b, nil
	case ShapeStringList:
		return asStringList(raw)
	case ShapeDate:
		return asTimeString(raw, DateLayout, time.RFC3339)
	case ShapeClock:
		return asTimeString(raw, ClockLayout, "15:04:05")
	case ShapePair:
		return asPair(raw)
	case ShapeURI:
		s, err := asString(raw)
		if err != nil {
			return nil, err
		}
		u, perr := url.Parse(s)
		if perr != nil || u.Scheme == "" {
			return nil, mismatch("must be an absolute URI")
		}
		return s, nil
	case ShapeLatLng:
		return asLatLng(raw)
	default:
		return nil, mismatch("%s fields do not hold values", d.Type)
	}
}

// IsEmpty reports whether a value counts as unanswered: nil, an empty or
// whitespace-only string, or an empty list.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []string:
		return len(x) == 0
	case []any:
		return len(x) == 0
	default:
		return false
	}
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrShapeMismatch, fmt.Sprintf(format, args...))
}

func asString(raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", mismatch("must be a string, got %T", raw)
	}
	return s, nil
}

func asNumber(raw any) (float64, error) {
	var f float64
	switch x := raw.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, mismatch("must be a number")
		}
		f = parsed
	default:
		return 0, mismatch("must be a number, got %T", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, mismatch("must be a finite number")
	}
	return f, nil
}

func asStringList(raw any) ([]string, error) {
	switch x := raw.(type) {
	case []string:
		out := make([]string, len(x))
		copy(out, x)
		return out, nil
	case []any:
		out := make([]string, 0, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, mismatch("item %d must be a string, got %T", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, mismatch("must be a list of strings, got %T", raw)
	}
}

// asTimeString accepts a string in layout (or in alt, which is reformatted) or
// a time.Time, and returns the value formatted in layout.
func asTimeString(raw any, layout, alt string) (string, error) {
	switch x := raw.(type) {
	case time.Time:
		return x.Format(layout), nil
	case string:
		if _, err := time.Parse(layout, x); err == nil {
			return x, nil
		}
		if t, err := time.Parse(alt, x); err == nil {
			return t.Format(layout), nil
		}
		return "", mismatch("must match %s", layout)
	default:
		return "", mismatch("must be a string, got %T", raw)
	}
}

func asPair(raw any) (Pair, error) {
	switch x := raw.(type) {
	case Pair:
		return x, nil
	case [2]float64:
		return Pair(x), nil
	case []float64:
		if len(x) != 2 {
			return Pair{}, mismatch("must have exactly 2 numbers")
		}
		return Pair{x[0], x[1]}, nil
	case []any:
		if len(x) != 2 {
			return Pair{}, mismatch("must have exactly 2 numbers")
		}
		lo, err := asNumber(x[0])
		if err != nil {
			return Pair{}, err
		}
		hi, err := asNumber(x[1])
		if err != nil {
			return Pair{}, err
		}
		return Pair{lo, hi}, nil
	default:
		return Pair{}, mismatch("must be a pair of numbers, got %T", raw)
	}
}

func asLatLng(raw any) (LatLng, error) {
	var p LatLng
	switch x := raw.(type) {
	case LatLng:
		p = x
	case map[string]any:
		lat, okLat := firstOf(x, "lat", "latitude")
		lng, okLng := firstOf(x, "lng", "longitude")
		if !okLat || !okLng {
			return LatLng{}, mismatch("must have lat and lng")
		}
		var err error
		if p.Lat, err = asNumber(lat); err != nil {
			return LatLng{}, err
		}
		if p.Lng, err = asNumber(lng); err != nil {
			return LatLng{}, err
		}
	case []any:
		pair, err := asPair(x)
		if err != nil {
			return LatLng{}, err
		}
		p = LatLng{Lat: pair[0], Lng: pair[1]}
	default:
		return LatLng{}, mismatch("must be a lat/lng position, got %T", raw)
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return LatLng{}, mismatch("position out of range")
	}
	return p, nil
}

func firstOf(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}
