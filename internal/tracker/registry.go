package tracker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LibraryModule is the module the built-in backends register under. Its
// trackers are invocable by exact name but never suggested or batch-run.
const LibraryModule = "library"

// Registry maps identities to tracker entries. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[Identity]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Identity]Entry)}
}

// Register adds an entry. Registering an identity twice is an error.
func (r *Registry) Register(e Entry) error {
	if e.Identity.Name == "" {
		return errors.New("tracker: empty name")
	}
	if strings.Contains(e.Identity.Name, ".") {
		return fmt.Errorf("tracker: name %q must not contain '.'", e.Identity.Name)
	}
	switch e.Kind {
	case Derived:
		if e.New == nil {
			return fmt.Errorf("tracker %s: derived tracker without factory", e.Identity)
		}
	case Plain:
		if e.Func == nil {
			return fmt.Errorf("tracker %s: plain tracker without function", e.Identity)
		}
	default:
		return fmt.Errorf("tracker %s: invalid kind %v", e.Identity, e.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.Identity]; ok {
		return fmt.Errorf("tracker %s: already registered", e.Identity)
	}
	r.entries[e.Identity] = e
	return nil
}

// MustRegister is Register that panics, for static registrations.
func (r *Registry) MustRegister(e Entry) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Resolve finds a tracker by exact name or module.Name.
func (r *Registry) Resolve(name string) (Entry, error) {
	name = strings.TrimSpace(name)
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Names never contain a dot; module names may.
	if i := strings.LastIndex(name, "."); i >= 0 {
		if e, found := r.entries[Identity{Module: name[:i], Name: name[i+1:]}]; found {
			return e, nil
		}
		return Entry{}, r.unknown(name)
	}

	var matches []Entry
	for id, e := range r.entries {
		if id.Name == name {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return Entry{}, r.unknown(name)
	}
	ids := make([]string, len(matches))
	for i, e := range matches {
		ids[i] = e.Identity.String()
	}
	sort.Strings(ids)
	return Entry{}, &UnknownTrackerError{Name: name, Ambiguous: ids}
}

func (r *Registry) unknown(name string) error {
	return &UnknownTrackerError{Name: name, Suggestions: r.available()}
}

// Available lists the derived trackers outside the library module, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available()
}

func (r *Registry) available() []string {
	var out []string
	for id, e := range r.entries {
		if e.Kind == Derived && id.Module != LibraryModule {
			out = append(out, id.String())
		}
	}
	sort.Strings(out)
	return out
}

// Discovered lists every derived and plain entry outside the library module,
// sorted by identity. These are the trackers a batch run executes.
func (r *Registry) Discovered() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for id, e := range r.entries {
		if id.Module != LibraryModule {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// Entries lists every registered entry sorted by identity.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		return es[i].Identity.String() < es[j].Identity.String()
	})
}
