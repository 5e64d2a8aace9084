// Package annotation holds the in-memory annotation map and its local file codec.
package annotation

import (
	"fmt"
	"slices"
	"strings"
)

// Map is the id -> ordered label list mapping. An absent key means "not annotated";
// a present key with no labels counts as unannotated too.
//
// Keys keep first-insertion order so that saved files are stable between runs.
// The order carries no meaning.
type Map struct {
	labels map[string][]string
	order  []string
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{labels: make(map[string][]string)}
}

// Get returns a copy of the labels stored for id (nil when absent).
func (m *Map) Get(id string) []string {
	labels, ok := m.labels[id]
	if !ok {
		return nil
	}
	return append([]string{}, labels...)
}

// Has reports whether id has an entry (possibly with zero labels).
func (m *Map) Has(id string) bool {
	_, ok := m.labels[id]
	return ok
}

// Set replaces the labels for id. An empty list is stored as a present-but-empty entry.
func (m *Map) Set(id string, labels []string) {
	if _, ok := m.labels[id]; !ok {
		m.order = append(m.order, id)
	}
	m.labels[id] = append([]string{}, labels...)
}

// Len returns the number of entries, annotated or not.
func (m *Map) Len() int {
	return len(m.order)
}

// Keys returns the ids in insertion order.
func (m *Map) Keys() []string {
	return append([]string{}, m.order...)
}

// CountAnnotated counts entries with at least one label.
func (m *Map) CountAnnotated() int {
	n := 0
	for _, labels := range m.labels {
		if len(labels) > 0 {
			n++
		}
	}
	return n
}

// IsAnnotated reports whether id has at least one label.
func (m *Map) IsAnnotated(id string) bool {
	return len(m.labels[id]) > 0
}

// Equal reports whether both maps hold the same ids with the same label sets.
// Neither key order nor label order matters.
func (m *Map) Equal(other *Map) bool {
	if other == nil || len(m.labels) != len(other.labels) {
		return false
	}
	for id, labels := range m.labels {
		o, ok := other.labels[id]
		if !ok || !SameLabels(labels, o) {
			return false
		}
	}
	return true
}

// SameLabels compares two label lists as sets; nil and empty are equal.
// Order carries no meaning, so "Y,X" and "X,Y" are the same selection.
func SameLabels(a, b []string) bool {
	as, bs := slices.Clone(a), slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(slices.Compact(as), slices.Compact(bs))
}

// NormalizeLabels trims labels, drops empties and repeats, and keeps first-seen order.
func NormalizeLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// ValidateLabel rejects labels the file format cannot round-trip.
func ValidateLabel(label string) error {
	if strings.ContainsAny(label, labelSeparator+"\r\n") {
		return fmt.Errorf("label %q must not contain %q or line breaks", label, labelSeparator)
	}
	return nil
}
