// Package render turns a (transformed) tree into render results: RST and
// terminal tables, JSON, gonum/plot figures and go-echarts pages.
package render

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/fsutil"
	"github.com/banshee-data/trackreport/internal/params"
)

// SectionKind tags the content of a section.
type SectionKind string

const (
	KindText   SectionKind = "text"
	KindFigure SectionKind = "figure"
	KindHTML   SectionKind = "html"
)

// Section is one content item of a result. Text holds rendered text;
// figures and pages are files referenced by Path.
type Section struct {
	Kind SectionKind `json:"kind"`
	Text string      `json:"text,omitempty"`
	Path string      `json:"path,omitempty"`
}

// Result is one titled render output.
type Result struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// Renderer converts a tree into results. An empty tree yields no results.
// Rendering never modifies the tree.
type Renderer interface {
	Render(ctx context.Context, tree *datatree.Tree, display params.Options) ([]Result, error)
}

// Env is where renderers write figure files.
type Env struct {
	FS        fsutil.FileSystem
	OutputDir string
}

func (e Env) fs() fsutil.FileSystem {
	if e.FS == nil {
		return fsutil.OSFileSystem{}
	}
	return e.FS
}

// OptGroupBy is the render option every renderer accepts.
const OptGroupBy = "groupby"

// Entry registers a renderer with its render and display option names.
type Entry struct {
	Name           string
	Description    string
	RenderOptions  []string
	DisplayOptions []string
	New            func(opts params.Options, env Env) (Renderer, error)
}

func (e Entry) renderOptions() []string {
	return params.Union([]string{OptGroupBy}, e.RenderOptions)
}

// Registry maps names to renderer entries.
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
		return fmt.Errorf("render: entry %q needs a name and a constructor", e.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.Name]; ok {
		return fmt.Errorf("render: %q already registered", e.Name)
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

// RenderOptionNames is the union of every entry's render options.
func (r *Registry) RenderOptionNames() []string {
	lists := [][]string{{OptGroupBy}}
	for _, e := range r.Entries() {
		lists = append(lists, e.RenderOptions)
	}
	return params.Union(lists...)
}

// DisplayOptionNames is the union of every entry's display options.
func (r *Registry) DisplayOptionNames() []string {
	var lists [][]string
	for _, e := range r.Entries() {
		lists = append(lists, e.DisplayOptions)
	}
	return params.Union(lists...)
}

// Build instantiates the named renderer. Render and display options it does
// not declare are configuration errors.
func (r *Registry) Build(name string, renderOpts, display params.Options, env Env) (Renderer, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return nil, &params.ConfigurationError{Component: "renderers", Option: name, Reason: "unknown renderer"}
	}
	if err := e.Check(renderOpts, display); err != nil {
		return nil, err
	}
	rd, err := e.New(renderOpts, env)
	if err != nil {
		return nil, err
	}
	return &checked{entry: e, r: rd}, nil
}

// Check validates option names against the entry's declarations.
func (e Entry) Check(renderOpts, display params.Options) error {
	if bad := params.Unrecognized(renderOpts, e.renderOptions()); len(bad) > 0 {
		return params.NotRecognized("renderer "+e.Name, bad)
	}
	if bad := params.Unrecognized(display, e.DisplayOptions); len(bad) > 0 {
		return params.NotRecognized("renderer "+e.Name, bad)
	}
	return nil
}

// checked rejects display options the renderer does not declare.
type checked struct {
	entry Entry
	r     Renderer
}

func (c *checked) Render(ctx context.Context, tree *datatree.Tree, display params.Options) ([]Result, error) {
	if bad := params.Unrecognized(display, c.entry.DisplayOptions); len(bad) > 0 {
		return nil, params.NotRecognized("renderer "+c.entry.Name, bad)
	}
	return c.r.Render(ctx, tree, display)
}
