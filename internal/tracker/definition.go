package tracker

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
	"github.com/banshee-data/trackreport/internal/security"
)

// Sources a definition may declare.
const (
	SourceSQL    = "sql"
	SourceCSV    = "csv"
	SourceValues = "values"
)

// Definition is one tracker declared in a search path file.
type Definition struct {
	Name        string   `yaml:"name"`
	Kind        string   `yaml:"kind"`
	Description string   `yaml:"description"`
	Source      string   `yaml:"source"`
	Tracks      []string `yaml:"tracks"`
	Slices      []string `yaml:"slices"`
	Options     []string `yaml:"options"`

	// sql
	Database    string `yaml:"database"`
	Query       string `yaml:"query"`
	TracksQuery string `yaml:"tracks_query"`

	// csv
	File        string `yaml:"file"`
	TrackColumn string `yaml:"track_column"`
	SliceColumn string `yaml:"slice_column"`

	// values
	Values yaml.Node `yaml:"values"`
}

type definitionFile struct {
	Trackers []Definition `yaml:"trackers"`
}

// ParseDefinitions decodes and validates the trackers of one file.
func ParseDefinitions(data []byte) ([]Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var file definitionFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode definitions: %w", err)
	}
	seen := map[string]bool{}
	for i := range file.Trackers {
		d := &file.Trackers[i]
		d.Name = strings.TrimSpace(d.Name)
		d.Source = strings.TrimSpace(d.Source)
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("tracker %q defined twice", d.Name)
		}
		seen[d.Name] = true
	}
	return file.Trackers, nil
}

// Validate checks that the definition is complete for its source.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("tracker definition without name")
	}
	if strings.Contains(d.Name, ".") {
		return fmt.Errorf("tracker %q: name must not contain '.'", d.Name)
	}
	kind, err := ParseKind(d.Kind)
	if err != nil {
		return fmt.Errorf("tracker %q: %w", d.Name, err)
	}
	if kind == Plain && len(d.Options) > 0 {
		return fmt.Errorf("tracker %q: plain trackers take no options", d.Name)
	}
	if len(d.Tracks) > 0 && d.TracksQuery != "" {
		return fmt.Errorf("tracker %q: tracks and tracks_query are exclusive", d.Name)
	}
	switch d.Source {
	case SourceSQL:
		if d.Database == "" || d.Query == "" {
			return fmt.Errorf("tracker %q: sql source requires database and query", d.Name)
		}
		declared := toSet(d.Options)
		for _, q := range []string{d.Query, d.TracksQuery} {
			for _, p := range QueryParams(q) {
				if p != "track" && p != "slice" && !declared[optionName(p)] {
					return fmt.Errorf("tracker %q: query parameter :%s has no declared option %q", d.Name, p, optionName(p))
				}
			}
		}
	case SourceCSV:
		if d.File == "" || d.TrackColumn == "" {
			return fmt.Errorf("tracker %q: csv source requires file and track_column", d.Name)
		}
		if d.TrackColumn == d.SliceColumn {
			return fmt.Errorf("tracker %q: track_column and slice_column must differ", d.Name)
		}
		if len(d.Slices) > 0 && d.SliceColumn == "" {
			return fmt.Errorf("tracker %q: slices require slice_column", d.Name)
		}
		if len(d.Tracks) > 0 || d.TracksQuery != "" {
			return fmt.Errorf("tracker %q: csv tracks come from track_column", d.Name)
		}
	case SourceValues:
		if d.Values.Kind != yaml.MappingNode {
			return fmt.Errorf("tracker %q: values source requires a values mapping", d.Name)
		}
		if len(d.Tracks) > 0 || d.TracksQuery != "" {
			return fmt.Errorf("tracker %q: values tracks are the top-level keys", d.Name)
		}
	default:
		return fmt.Errorf("tracker %q: unknown source %q", d.Name, d.Source)
	}
	return nil
}

// Entry builds the registry entry for the definition. Relative file paths
// are resolved against dir.
func (d *Definition) Entry(module, dir string) (Entry, error) {
	kind, err := ParseKind(d.Kind)
	if err != nil {
		return Entry{}, err
	}
	id := Identity{Module: module, Name: d.Name}
	e := Entry{
		Identity:    id,
		Kind:        kind,
		Description: d.Description,
		Options:     append([]string(nil), d.Options...),
	}

	var build Factory
	switch d.Source {
	case SourceSQL:
		database, err := resolvePath(dir, d.Database, "tracker "+id.String(), "database")
		if err != nil {
			return Entry{}, err
		}
		build = func(opts params.Options) (Tracker, error) {
			return &sqlTracker{
				name:        id.String(),
				database:    database,
				query:       d.Query,
				tracksQuery: d.TracksQuery,
				tracks:      d.Tracks,
				slices:      d.Slices,
				opts:        opts,
			}, nil
		}
	case SourceCSV:
		file, err := resolvePath(dir, d.File, "tracker "+id.String(), "file")
		if err != nil {
			return Entry{}, err
		}
		build = func(params.Options) (Tracker, error) {
			return &csvTracker{
				name:        id.String(),
				path:        file,
				trackColumn: d.TrackColumn,
				sliceColumn: d.SliceColumn,
				slices:      d.Slices,
			}, nil
		}
	case SourceValues:
		tree, err := NodeTree(&d.Values)
		if err != nil {
			return Entry{}, fmt.Errorf("tracker %s: %w", id, err)
		}
		build = func(params.Options) (Tracker, error) {
			return newValuesTracker(id.String(), tree, d.Slices), nil
		}
	default:
		return Entry{}, fmt.Errorf("tracker %s: unknown source %q", id, d.Source)
	}

	if kind == Plain {
		t, err := build(params.Options{})
		if err != nil {
			return Entry{}, err
		}
		e.Func = t
	} else {
		e.New = build
	}
	return e, nil
}

// NodeTree converts a YAML mapping node to a tree, keeping key order.
func NodeTree(n *yaml.Node) (*datatree.Tree, error) {
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	t := datatree.New()
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		v, err := nodeValue(val)
		if err != nil {
			return nil, err
		}
		t.Set(key.Value, v)
	}
	return t, nil
}

func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.MappingNode:
		return NodeTree(n)
	case yaml.SequenceNode:
		seq := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: sequences hold scalars only", item.Line)
			}
			v, err := scalarValue(item)
			if err != nil {
				return nil, err
			}
			seq = append(seq, v)
		}
		return seq, nil
	case yaml.ScalarNode:
		return scalarValue(n)
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	}
	return nil, fmt.Errorf("line %d: unsupported value", n.Line)
}

func scalarValue(n *yaml.Node) (any, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, fmt.Errorf("line %d: %w", n.Line, err)
	}
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case uint64:
		return float64(x), nil
	}
	return v, nil
}

// resolvePath resolves a relative data path against the tracker search path
// and refuses paths that leave it.
func resolvePath(dir, p, component, option string) (string, error) {
	resolved, err := security.ResolveWithin(dir, p)
	if err != nil {
		return "", &params.ConfigurationError{Component: component, Option: option, Reason: err.Error()}
	}
	return resolved, nil
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
