// Package tracker defines named, parameterized data sources and the registry
// the dispatcher resolves them from.
//
// A tracker is either derived (a factory instantiated with the tracker option
// bucket and invocable with any selection) or plain (a single function
// invoked as-is). The kind is an explicit field of the registry entry.
package tracker

import (
	"context"
	"fmt"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
)

// Kind classifies a registered tracker.
type Kind int

const (
	// Derived trackers are instantiated per dispatch and listed as available.
	Derived Kind = iota
	// Plain trackers are invoked as-is and never suggested.
	Plain
)

func (k Kind) String() string {
	switch k {
	case Derived:
		return "derived"
	case Plain:
		return "plain"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a definition kind to a Kind. Empty means Derived.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "derived":
		return Derived, nil
	case "plain":
		return Plain, nil
	}
	return 0, fmt.Errorf("unknown tracker kind %q", s)
}

// Identity names a tracker by the module that registers it and its name.
type Identity struct {
	Module string
	Name   string
}

// String returns module.Name.
func (id Identity) String() string {
	if id.Module == "" {
		return id.Name
	}
	return id.Module + "." + id.Name
}

// Tracker produces a data tree for a selection.
type Tracker interface {
	Collect(ctx context.Context, sel params.Selection) (*datatree.Tree, error)
}

// Func adapts a function to the Tracker interface.
type Func func(ctx context.Context, sel params.Selection) (*datatree.Tree, error)

// Collect calls f.
func (f Func) Collect(ctx context.Context, sel params.Selection) (*datatree.Tree, error) {
	return f(ctx, sel)
}

// Factory instantiates a derived tracker from its option bucket.
type Factory func(opts params.Options) (Tracker, error)

// Entry is one registered tracker.
type Entry struct {
	Identity    Identity
	Kind        Kind
	Description string

	// Options lists the option names the tracker accepts.
	Options []string

	// New builds a derived tracker. Required when Kind is Derived.
	New Factory

	// Func is the plain tracker. Required when Kind is Plain.
	Func Tracker
}

// Instance returns the tracker to collect from: a fresh instance for derived
// entries, the registered function for plain ones.
func (e Entry) Instance(opts params.Options) (Tracker, error) {
	if e.Kind == Plain {
		return e.Func, nil
	}
	t, err := e.New(opts)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", e.Identity, err)
	}
	return t, nil
}

// CheckOptions reports tracker options the entry does not declare.
func (e Entry) CheckOptions(opts params.Options) error {
	if bad := params.Unrecognized(opts, e.Options); len(bad) > 0 {
		return params.NotRecognized("tracker "+e.Identity.String(), bad)
	}
	return nil
}
