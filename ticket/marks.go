package ticket

import (
	"maps"
	"slices"
)

// Marks is the set of numbers the player has marked as called. It is
// global to the ticket and is treated as an immutable value: Toggle
// returns a new set. The zero value is the empty set.
//
// Marks are not checked against the ticket; a number that appears on no
// row may be marked and simply never renders.
type Marks struct {
	set map[int]struct{}
}

// NewMarks returns a set holding the given numbers.
func NewMarks(numbers ...int) Marks {
	m := Marks{set: make(map[int]struct{}, len(numbers))}
	for _, n := range numbers {
		m.set[n] = struct{}{}
	}
	return m
}

// Toggle returns a copy of m with n removed if present, added otherwise.
// m itself is left untouched.
func Toggle(m Marks, n int) Marks {
	next := Marks{set: maps.Clone(m.set)}
	if next.set == nil {
		next.set = make(map[int]struct{}, 1)
	}
	if _, ok := next.set[n]; ok {
		delete(next.set, n)
	} else {
		next.set[n] = struct{}{}
	}
	return next
}

// Has reports whether n is marked.
func (m Marks) Has(n int) bool {
	_, ok := m.set[n]
	return ok
}

// Len returns the number of marked numbers.
func (m Marks) Len() int {
	return len(m.set)
}

// Empty reports whether nothing is marked.
func (m Marks) Empty() bool {
	return len(m.set) == 0
}

// Sorted returns the marked numbers in ascending order.
func (m Marks) Sorted() []int {
	return slices.Sorted(maps.Keys(m.set))
}

// Equal reports whether both sets hold the same numbers.
func (m Marks) Equal(other Marks) bool {
	if len(m.set) != len(other.set) {
		return false
	}
	for n := range m.set {
		if _, ok := other.set[n]; !ok {
			return false
		}
	}
	return true
}
