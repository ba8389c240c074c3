package timetable

import (
	"encoding/json"
	"fmt"
)

// WeekNode is one node of the nested week structure the portal produces:
// either a single week number or a group of further nodes. Representing the
// nesting as an explicit variant keeps the flattener total without any
// runtime type inspection.
type WeekNode struct {
	week  int
	group []WeekNode
	leaf  bool
}

// Week wraps a single week number.
func Week(n int) WeekNode {
	return WeekNode{week: n, leaf: true}
}

// Group wraps a nested group of week nodes.
func Group(nodes ...WeekNode) WeekNode {
	return WeekNode{group: nodes}
}

// Flatten yields every leaf week number in depth-first traversal order.
// It preserves order and does not deduplicate; an already-flat input comes
// back unchanged.
func Flatten(nodes []WeekNode) []int {
	out := make([]int, 0, len(nodes))
	for _, n := range nodes {
		out = appendLeaves(out, n)
	}
	return out
}

func appendLeaves(out []int, n WeekNode) []int {
	if n.leaf {
		return append(out, n.week)
	}
	for _, child := range n.group {
		out = appendLeaves(out, child)
	}
	return out
}

// UnmarshalJSON decodes either a bare integer or an arbitrarily nested
// array of integers, matching the portal's wire shape (e.g. [1,[2,3],[[4]]]).
func (n *WeekNode) UnmarshalJSON(data []byte) error {
	var week int
	if err := json.Unmarshal(data, &week); err == nil {
		*n = Week(week)
		return nil
	}

	var group []WeekNode
	if err := json.Unmarshal(data, &group); err != nil {
		return fmt.Errorf("timetable: week node is neither int nor array: %w", err)
	}
	*n = WeekNode{group: group}
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON.
func (n WeekNode) MarshalJSON() ([]byte, error) {
	if n.leaf {
		return json.Marshal(n.week)
	}
	if n.group == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(n.group)
}
