// Package dump renders nested values as indented, YAML-like text.
//
// Output is deterministic: mapping entries and sequence items are written in
// the order they were added, never sorted. The only cycle protection is a
// comparison against the root value of the current Write call, so a composite
// that contains the root is rendered as a recursion marker while cycles among
// non-root composites are not detected.
package dump

import "sort"

// Value is one of Scalar, *Mapping, *Sequence or Opaque.
type Value interface {
	isValue()
}

// Scalar is a string leaf.
type Scalar string

// Opaque carries a pre-rendered textual form for values with no natural
// mapping or sequence decomposition. Its text is written as-is.
type Opaque struct {
	Text string
}

// Entry is a single key/value pair of a Mapping.
type Entry struct {
	Key   string
	Value Value
}

// Mapping is an ordered set of unique keys.
type Mapping struct {
	entries []Entry
	index   map[string]int
}

// Sequence is an ordered list of values.
type Sequence struct {
	items []Value
}

func (Scalar) isValue()    {}
func (Opaque) isValue()    {}
func (*Mapping) isValue()  {}
func (*Sequence) isValue() {}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{index: make(map[string]int)}
}

// Set adds key with value. Setting an existing key replaces its value in place
// so the original insertion position is kept.
func (m *Mapping) Set(key string, value Value) *Mapping {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[key]; ok {
		m.entries[i].Value = value
		return m
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, Entry{Key: key, Value: value})
	return m
}

// SetString is shorthand for Set(key, Scalar(value)).
func (m *Mapping) SetString(key, value string) *Mapping {
	return m.Set(key, Scalar(value))
}

// Get returns the value stored under key.
func (m *Mapping) Get(key string) (Value, bool) {
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.entries[i].Value, true
}

// Len returns the number of entries.
func (m *Mapping) Len() int {
	return len(m.entries)
}

// Entries returns the entries in insertion order.
func (m *Mapping) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// NewSequence returns a sequence holding values.
func NewSequence(values ...Value) *Sequence {
	return &Sequence{items: append([]Value(nil), values...)}
}

// Append adds values to the end of the sequence.
func (s *Sequence) Append(values ...Value) *Sequence {
	s.items = append(s.items, values...)
	return s
}

// Len returns the number of items.
func (s *Sequence) Len() int {
	return len(s.items)
}

// Strings builds a sequence of scalars.
func Strings(values []string) *Sequence {
	s := &Sequence{items: make([]Value, 0, len(values))}
	for _, v := range values {
		s.items = append(s.items, Scalar(v))
	}
	return s
}

// StringMap builds a mapping from a Go map. Go maps have no order, so keys are
// sorted to keep the output stable.
func StringMap(values map[string]string) *Mapping {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := NewMapping()
	for _, k := range keys {
		m.SetString(k, values[k])
	}
	return m
}
