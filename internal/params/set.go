// Package params assembles the per-host parameter set used to fill
// fragment tokens: query string, then the data-include-params blob, then
// individual data-include-<key> attributes.
package params

import (
	"slices"
	"strings"
)

// Value is a parameter value. A null value comes from a JSON null in the
// params blob; it shadows earlier layers and makes tokens use their default.
type Value struct {
	Str  string
	Null bool
}

// String returns a non-null value.
func String(s string) Value {
	return Value{Str: s}
}

// Null returns the null value.
func Null() Value {
	return Value{Null: true}
}

// Set is an insertion-ordered parameter mapping. Overwriting a key keeps
// its original position.
type Set struct {
	keys []string
	vals map[string]Value
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{vals: make(map[string]Value)}
}

// FromMap builds a set from m in sorted key order.
func FromMap(m map[string]string) *Set {
	s := NewSet()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		s.Set(k, m[k])
	}
	return s
}

// Set stores a string value.
func (s *Set) Set(key, val string) {
	s.Put(key, String(val))
}

// Put stores v under key.
func (s *Set) Put(key string, v Value) {
	if _, ok := s.vals[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.vals[key] = v
}

// Lookup returns the value stored under the exact key.
func (s *Set) Lookup(key string) (Value, bool) {
	v, ok := s.vals[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (s *Set) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Len returns the number of keys.
func (s *Set) Len() int {
	return len(s.keys)
}

// Folded returns a lowercase-keyed index of the set. When several keys
// fold to the same value the one inserted last wins.
func (s *Set) Folded() map[string]Value {
	out := make(map[string]Value, len(s.keys))
	for _, k := range s.keys {
		out[strings.ToLower(k)] = s.vals[k]
	}
	return out
}

// Map returns the non-null values as a plain map.
func (s *Set) Map() map[string]string {
	out := make(map[string]string, len(s.keys))
	for _, k := range s.keys {
		if v := s.vals[k]; !v.Null {
			out[k] = v.Str
		}
	}
	return out
}
