// Package datatree implements the ordered nested mapping that flows between
// trackers, transformers and renderers.
//
// A Tree maps string keys (track, slice or column names) to a Value. Values
// are scalars (string, int64, float64, bool, nil), sequences of scalars
// ([]any) or nested *Tree. Key order is insertion order at every level.
//
// Trees are mutable only while being built. Once a tree has been returned by a
// tracker or handed to a transformer it must be treated as read-only; the
// With and Without helpers return modified copies instead.
package datatree

import (
	"fmt"
	"sort"
	"strings"
)

// Value is a leaf scalar, a []any sequence or a *Tree.
type Value = any

// Tree is an insertion-ordered mapping from string keys to values.
type Tree struct {
	keys []string
	vals map[string]Value
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{vals: make(map[string]Value)}
}

// Set stores v under key. A new key is appended; an existing key keeps its
// position. Set returns the receiver so construction can be chained.
// It must not be called on a tree that has already been shared.
func (t *Tree) Set(key string, v Value) *Tree {
	if t.vals == nil {
		t.vals = make(map[string]Value)
	}
	if _, ok := t.vals[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.vals[key] = normalize(v)
	return t
}

// Get returns the value stored under key.
func (t *Tree) Get(key string) (Value, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.vals[key]
	return v, ok
}

// Subtree returns the nested tree stored under key, if any.
func (t *Tree) Subtree(key string) (*Tree, bool) {
	v, ok := t.Get(key)
	if !ok {
		return nil, false
	}
	sub, ok := v.(*Tree)
	return sub, ok
}

// Keys returns a copy of the keys in insertion order.
func (t *Tree) Keys() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Len returns the number of keys at the top level.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Empty reports whether the tree holds no keys.
func (t *Tree) Empty() bool { return t.Len() == 0 }

// With returns a copy of t with key set to v. Untouched siblings keep their
// order; replacing an existing key keeps its position. Nested trees are shared,
// not copied.
func (t *Tree) With(key string, v Value) *Tree {
	out := t.shallow()
	out.Set(key, v)
	return out
}

// Without returns a copy of t with key removed.
func (t *Tree) Without(key string) *Tree {
	out := &Tree{vals: make(map[string]Value, t.Len())}
	for _, k := range t.keys {
		if k == key {
			continue
		}
		out.keys = append(out.keys, k)
		out.vals[k] = t.vals[k]
	}
	return out
}

// Clone returns a deep copy of t.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	out := &Tree{keys: make([]string, len(t.keys)), vals: make(map[string]Value, len(t.keys))}
	copy(out.keys, t.keys)
	for k, v := range t.vals {
		out.vals[k] = cloneValue(v)
	}
	return out
}

// Depth returns the number of mapping levels, 0 for an empty tree.
func (t *Tree) Depth() int {
	if t.Len() == 0 {
		return 0
	}
	max := 0
	for _, k := range t.keys {
		if sub, ok := t.vals[k].(*Tree); ok {
			if d := sub.Depth(); d > max {
				max = d
			}
		}
	}
	return max + 1
}

// Walk visits every leaf value depth first in key order. path holds the keys
// leading to the leaf and must not be retained by fn.
func (t *Tree) Walk(fn func(path []string, v Value)) {
	t.walk(nil, fn)
}

func (t *Tree) walk(prefix []string, fn func([]string, Value)) {
	for _, k := range t.Keys() {
		path := append(prefix, k)
		if sub, ok := t.vals[k].(*Tree); ok {
			sub.walk(path, fn)
			continue
		}
		fn(path, t.vals[k])
	}
}

// IsLeafMap reports whether every value in t is a leaf (no nested trees).
func (t *Tree) IsLeafMap() bool {
	for _, k := range t.keys {
		if _, ok := t.vals[k].(*Tree); ok {
			return false
		}
	}
	return true
}

// Map applies fn to every leaf and returns a new tree of the same shape.
// Returning a *Tree from fn replaces the leaf with a subtree.
func (t *Tree) Map(fn func(path []string, v Value) (Value, error)) (*Tree, error) {
	return t.mapAt(nil, fn)
}

func (t *Tree) mapAt(prefix []string, fn func([]string, Value) (Value, error)) (*Tree, error) {
	out := New()
	for _, k := range t.keys {
		path := append(prefix[:len(prefix):len(prefix)], k)
		v := t.vals[k]
		if sub, ok := v.(*Tree); ok {
			m, err := sub.mapAt(path, fn)
			if err != nil {
				return nil, err
			}
			out.Set(k, m)
			continue
		}
		nv, err := fn(path, v)
		if err != nil {
			return nil, err
		}
		out.Set(k, nv)
	}
	return out, nil
}

// String renders a compact single-line representation, mainly for logs.
func (t *Tree) String() string {
	var b strings.Builder
	t.format(&b)
	return b.String()
}

func (t *Tree) format(b *strings.Builder) {
	b.WriteByte('{')
	for i, k := range t.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		if sub, ok := t.vals[k].(*Tree); ok {
			sub.format(b)
			continue
		}
		fmt.Fprintf(b, "%v", t.vals[k])
	}
	b.WriteByte('}')
}

func (t *Tree) shallow() *Tree {
	out := &Tree{keys: make([]string, len(t.keys)), vals: make(map[string]Value, len(t.keys)+1)}
	copy(out.keys, t.keys)
	for k, v := range t.vals {
		out.vals[k] = v
	}
	return out
}

// FromMap builds a tree from a plain map. Go maps carry no order, so keys are
// sorted; use Set directly when order matters.
func FromMap(m map[string]any) *Tree {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := New()
	for _, k := range keys {
		if nested, ok := m[k].(map[string]any); ok {
			out.Set(k, FromMap(nested))
			continue
		}
		out.Set(k, m[k])
	}
	return out
}

func cloneValue(v Value) Value {
	switch x := v.(type) {
	case *Tree:
		return x.Clone()
	case []any:
		out := make([]any, len(x))
		copy(out, x)
		return out
	default:
		return v
	}
}

// normalize widens integer and float types so equality and encoding only deal
// with int64 and float64.
func normalize(v Value) Value {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}
