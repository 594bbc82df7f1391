package render

import (
	"fmt"
	"strings"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
	"github.com/banshee-data/trackreport/internal/security"
)

type group struct {
	title string
	tree  *datatree.Tree
}

// groupTree splits a tree according to the groupby option: one group for
// the whole tree ("all") or one per top-level key ("track").
func groupTree(tree *datatree.Tree, opts params.Options) ([]group, error) {
	if tree.Empty() {
		return nil, nil
	}
	switch by := opts.Value(OptGroupBy, "all"); by {
	case "all":
		title := params.AllName
		if keys := tree.Keys(); len(keys) == 1 {
			title = keys[0]
		}
		return []group{{title: title, tree: tree}}, nil
	case "track":
		var out []group
		for _, k := range tree.Keys() {
			v, _ := tree.Get(k)
			sub, ok := v.(*datatree.Tree)
			if !ok {
				sub = datatree.New().Set(k, v)
			}
			out = append(out, group{title: k, tree: sub})
		}
		return out, nil
	default:
		return nil, &params.ConfigurationError{Component: "renderers", Option: OptGroupBy, Reason: fmt.Sprintf("unknown grouping %q (want all or track)", by)}
	}
}

// table is a tree flattened to rows. Every mapping whose values are all
// leaves becomes a row labelled by its path; its keys become columns.
type table struct {
	header []string
	rows   [][]string
}

func tabulate(title string, tree *datatree.Tree) table {
	var (
		columns []string
		seen    = map[string]bool{}
		labels  []string
		cells   []map[string]string
	)
	var visit func(path []string, t *datatree.Tree)
	visit = func(path []string, t *datatree.Tree) {
		row := map[string]string{}
		hasLeaf := false
		for _, k := range t.Keys() {
			v, _ := t.Get(k)
			if sub, ok := v.(*datatree.Tree); ok {
				visit(append(path[:len(path):len(path)], k), sub)
				continue
			}
			hasLeaf = true
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
			row[k] = formatLeaf(v)
		}
		if hasLeaf {
			label := strings.Join(path, "/")
			if label == "" {
				label = title
			}
			labels = append(labels, label)
			cells = append(cells, row)
		}
	}
	visit(nil, tree)

	tb := table{header: append([]string{"row"}, columns...)}
	for i, label := range labels {
		r := []string{label}
		for _, c := range columns {
			r = append(r, cells[i][c])
		}
		tb.rows = append(tb.rows, r)
	}
	return tb
}

func formatLeaf(v datatree.Value) string {
	seq, ok := v.([]any)
	if !ok {
		return datatree.FormatScalar(v)
	}
	parts := make([]string, len(seq))
	for i, e := range seq {
		parts[i] = datatree.FormatScalar(e)
	}
	return strings.Join(parts, ", ")
}

// series is one numeric leaf, named by its path.
type series struct {
	name   string
	values []float64
	scalar bool
}

func numericSeries(tree *datatree.Tree) []series {
	var out []series
	tree.Walk(func(path []string, v datatree.Value) {
		xs, ok := datatree.Floats(v)
		if !ok {
			return
		}
		out = append(out, series{name: strings.Join(path, "/"), values: xs, scalar: !datatree.IsSequence(v)})
	})
	return out
}

func allScalar(ss []series) bool {
	for _, s := range ss {
		if !s.scalar {
			return false
		}
	}
	return true
}

// figureName builds a file name from the renderer and the result title.
func figureName(renderer, title, ext string) string {
	slug := security.SanitizeFilename(title)
	if slug == "" {
		slug = "figure"
	}
	return renderer + "-" + slug + "." + ext
}
