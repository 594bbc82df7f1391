// Package transform holds the ordered chain of tree transformers run
// between fetching and rendering.
package transform

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
)

// ErrTransform is matched by every TransformError.
var ErrTransform = errors.New("transform failed")

// Transformer reshapes a tree. It must not modify its input.
type Transformer interface {
	Transform(tree *datatree.Tree) (*datatree.Tree, error)
}

// Func adapts a function to the Transformer interface.
type Func func(tree *datatree.Tree) (*datatree.Tree, error)

// Transform calls f.
func (f Func) Transform(tree *datatree.Tree) (*datatree.Tree, error) { return f(tree) }

// TransformError reports the failing step of a chain.
type TransformError struct {
	Index int
	Name  string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transformer %d (%s): %v", e.Index+1, e.Name, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransform) true.
func (e *TransformError) Is(target error) bool {
	return target == ErrTransform
}

// Entry registers a transformer with the option names it recognizes.
type Entry struct {
	Name        string
	Description string
	Options     []string
	New         func(opts params.Options) (Transformer, error)
}

// Registry maps names to transformer entries.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds an entry; names are unique.
func (r *Registry) Register(e Entry) error {
	if e.Name == "" || e.New == nil {
		return fmt.Errorf("transform: entry %q needs a name and a constructor", e.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.Name]; ok {
		return fmt.Errorf("transform: %q already registered", e.Name)
	}
	r.entries[e.Name] = e
	return nil
}

// MustRegister is Register that panics.
func (r *Registry) MustRegister(e Entry) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Entries lists every entry sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OptionNames is the union of the option names of every entry. It is the
// transform schema used to partition options.
func (r *Registry) OptionNames() []string {
	var lists [][]string
	for _, e := range r.Entries() {
		lists = append(lists, e.Options)
	}
	return params.Union(lists...)
}

// Build instantiates the named transformers in order. Each receives the
// options it declares; an option no selected transformer declares is a
// configuration error.
func (r *Registry) Build(names []string, opts params.Options) (*Chain, error) {
	c := &Chain{}
	var declared [][]string
	for _, name := range names {
		e, ok := r.Lookup(name)
		if !ok {
			return nil, &params.ConfigurationError{Component: "transformers", Option: name, Reason: "unknown transformer"}
		}
		declared = append(declared, e.Options)
		t, err := e.New(opts.Select(e.Options))
		if err != nil {
			return nil, err
		}
		c.steps = append(c.steps, step{name: name, t: t})
	}
	if bad := params.Unrecognized(opts, params.Union(declared...)); len(bad) > 0 {
		return nil, params.NotRecognized("transformers", bad)
	}
	return c, nil
}

// Chain applies transformers in the order they were given.
type Chain struct {
	steps []step
}

type step struct {
	name string
	t    Transformer
}

// NewChain builds a chain from already constructed transformers.
func NewChain(names []string, ts []Transformer) *Chain {
	c := &Chain{}
	for i, t := range ts {
		c.steps = append(c.steps, step{name: names[i], t: t})
	}
	return c
}

// Len returns the number of steps.
func (c *Chain) Len() int { return len(c.steps) }

// Names returns the step names in order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.steps))
	for i, s := range c.steps {
		out[i] = s.name
	}
	return out
}

// Apply runs every step on the output of the previous one. A failing step
// aborts the chain and no partial result is returned. An empty chain
// returns tree unchanged.
func (c *Chain) Apply(tree *datatree.Tree) (*datatree.Tree, error) {
	cur := tree
	for i, s := range c.steps {
		out, err := s.t.Transform(cur)
		if err != nil {
			return nil, &TransformError{Index: i, Name: s.name, Err: err}
		}
		if out == nil {
			out = datatree.New()
		}
		cur = out
	}
	return cur, nil
}
