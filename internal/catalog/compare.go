package catalog

import (
	"cmp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-set/v2"
)

// The comparison methods below evaluate a stored value against a rule comparand,
// which is always a string and is parsed according to the descriptor's
// semantics. Each returns ok=false when the value is absent, the value or
// comparand cannot be parsed, or the operation does not apply to the type.
// Callers treat ok=false as a false condition.

// Equal reports whether v equals the comparand.
func (d Descriptor) Equal(v any, comparand string) (equal, ok bool) {
	v, ok = d.comparable(v)
	if !ok {
		return false, false
	}

	switch d.Semantics {
	case SemanticsString, SemanticsChoice:
		return v.(string) == comparand, true
	case SemanticsNumber:
		c, err := parseNumber(comparand)
		if err != nil {
			return false, false
		}
		return v.(float64) == c, true
	case SemanticsDate:
		a, b, ok := d.parseTimes(v.(string), comparand)
		if !ok {
			return false, false
		}
		return a.Equal(b), true
	case SemanticsSet:
		values := set.From(v.([]string))
		want := splitOptions(comparand)
		if values.Size() != want.Size() {
			return false, true
		}
		return containsAll(values, want.Slice()), true
	case SemanticsBoolean:
		c, err := strconv.ParseBool(strings.TrimSpace(comparand))
		if err != nil {
			return false, false
		}
		return v.(bool) == c, true
	case SemanticsInterval:
		c, err := parsePair(comparand)
		if err != nil {
			return false, false
		}
		return v.(Pair) == c, true
	default:
		return false, false
	}
}

// Contains reports containment: substring for text, membership of the value in
// the comparand's option list for single choices, membership of every comparand
// option in the selection for multi-selects, and point-in-interval for ranges.
func (d Descriptor) Contains(v any, comparand string) (contains, ok bool) {
	v, ok = d.comparable(v)
	if !ok {
		return false, false
	}

	switch d.Semantics {
	case SemanticsString:
		return strings.Contains(v.(string), comparand), true
	case SemanticsChoice:
		return splitOptions(comparand).Contains(v.(string)), true
	case SemanticsSet:
		want := splitOptions(comparand)
		if want.Size() == 0 {
			return false, false
		}
		return containsAll(set.From(v.([]string)), want.Slice()), true
	case SemanticsInterval:
		c, err := parseNumber(comparand)
		if err != nil {
			return false, false
		}
		p := v.(Pair)
		lo, hi := min(p[0], p[1]), max(p[0], p[1])
		return c >= lo && c <= hi, true
	default:
		return false, false
	}
}

// Order compares v with the comparand, returning -1, 0 or +1. Only numeric and
// chronological types are ordered.
func (d Descriptor) Order(v any, comparand string) (order int, ok bool) {
	v, ok = d.comparable(v)
	if !ok {
		return 0, false
	}

	switch d.Semantics {
	case SemanticsNumber:
		c, err := parseNumber(comparand)
		if err != nil {
			return 0, false
		}
		return cmp.Compare(v.(float64), c), true
	case SemanticsDate:
		a, b, ok := d.parseTimes(v.(string), comparand)
		if !ok {
			return 0, false
		}
		return a.Compare(b), true
	default:
		return 0, false
	}
}

// comparable normalizes v and rejects empty values.
func (d Descriptor) comparable(v any) (any, bool) {
	if IsEmpty(v) {
		return nil, false
	}
	n, err := d.Normalize(v)
	if err != nil || IsEmpty(n) {
		return nil, false
	}
	return n, true
}

func (d Descriptor) layout() string {
	if d.Shape == ShapeClock {
		return ClockLayout
	}
	return DateLayout
}

func (d Descriptor) parseTimes(value, comparand string) (time.Time, time.Time, bool) {
	layout := d.layout()
	a, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	b, err := time.Parse(layout, strings.TrimSpace(comparand))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return a, b, true
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parsePair(s string) (Pair, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Pair{}, ErrShapeMismatch
	}
	lo, err := parseNumber(parts[0])
	if err != nil {
		return Pair{}, err
	}
	hi, err := parseNumber(parts[1])
	if err != nil {
		return Pair{}, err
	}
	return Pair{lo, hi}, nil
}

// splitOptions parses a comma-separated option list, trimming blanks.
func splitOptions(s string) *set.Set[string] {
	out := set.New[string](0)
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out.Insert(p)
		}
	}
	return out
}

func containsAll(s *set.Set[string], items []string) bool {
	for _, item := range items {
		if !s.Contains(item) {
			return false
		}
	}
	return true
}
