package logic

import (
	"slices"

	"github.com/hyperengineering/ficha/internal/schema"
)

// Order returns the field ids of s in evaluation order: a topological order of
// the rule graph (source before target), ties broken by schema order. Fields on
// a cycle, and fields reachable only through one, follow in schema order.
func Order(s schema.FormSchema) []string {
	fields := schema.AllFields(s)
	position := make(map[string]int, len(fields))
	for i, f := range fields {
		position[f.ID] = i
	}
	return order(fields, position, schema.Rules(s))
}

func order(fields []schema.Field, position map[string]int, rules []schema.LogicRule) []string {
	type edge struct{ from, to string }

	// Kahn's algorithm over deduplicated edges between existing fields
	inDegree := make(map[string]int, len(fields))
	children := make(map[string][]string)
	seen := make(map[edge]bool)
	for _, r := range rules {
		_, srcOK := position[r.SourceFieldID]
		_, dstOK := position[r.TargetFieldID]
		e := edge{r.SourceFieldID, r.TargetFieldID}
		if !srcOK || !dstOK || seen[e] {
			continue
		}
		seen[e] = true
		inDegree[e.to]++
		children[e.from] = append(children[e.from], e.to)
	}

	// ready is kept sorted by schema position so ties resolve in schema order
	var ready []int
	for i, f := range fields {
		if inDegree[f.ID] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]string, 0, len(fields))
	placed := make(map[string]bool, len(fields))
	for len(ready) > 0 {
		id := fields[ready[0]].ID
		ready = ready[1:]
		out = append(out, id)
		placed[id] = true

		for _, child := range children[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				p := position[child]
				at, _ := slices.BinarySearch(ready, p)
				ready = slices.Insert(ready, at, p)
			}
		}
	}

	for _, f := range fields {
		if !placed[f.ID] {
			out = append(out, f.ID)
		}
	}
	return out
}
