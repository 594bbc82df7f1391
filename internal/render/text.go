package render

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
)

// rstTable renders RST list-table directives.
type rstTable struct {
	opts params.Options
}

func (r *rstTable) Render(ctx context.Context, tree *datatree.Tree, _ params.Options) ([]Result, error) {
	groups, err := groupTree(tree, r.opts)
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, g := range groups {
		out = append(out, Result{
			Title:    g.title,
			Sections: []Section{{Kind: KindText, Text: listTable(g.title, tabulate(g.title, g.tree))}},
		})
	}
	return out, nil
}

func listTable(title string, tb table) string {
	var b strings.Builder
	b.WriteString(".. list-table:: ")
	b.WriteString(title)
	b.WriteString("\n   :header-rows: 1\n\n")
	writeRow := func(cells []string) {
		for i, c := range cells {
			if i == 0 {
				b.WriteString("   * - ")
			} else {
				b.WriteString("     - ")
			}
			b.WriteString(c)
			b.WriteByte('\n')
		}
	}
	writeRow(tb.header)
	for _, r := range tb.rows {
		writeRow(r)
	}
	return b.String()
}

// textTable renders bordered terminal tables.
type textTable struct {
	opts params.Options
}

func (r *textTable) Render(ctx context.Context, tree *datatree.Tree, _ params.Options) ([]Result, error) {
	groups, err := groupTree(tree, r.opts)
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, g := range groups {
		tb := tabulate(g.title, g.tree)
		t := lgtable.New().
			Border(lipgloss.NormalBorder()).
			Headers(tb.header...).
			Rows(tb.rows...)
		out = append(out, Result{
			Title:    g.title,
			Sections: []Section{{Kind: KindText, Text: t.String()}},
		})
	}
	return out, nil
}

// jsonRenderer renders indented JSON. Display option indent sets the
// number of spaces.
type jsonRenderer struct {
	opts params.Options
}

func (r *jsonRenderer) Render(ctx context.Context, tree *datatree.Tree, display params.Options) ([]Result, error) {
	indent, err := display.Int("indent", 2)
	if err != nil {
		return nil, err
	}
	if indent < 0 || indent > 8 {
		return nil, &params.ConfigurationError{Component: "renderer json", Option: "indent", Reason: "must be between 0 and 8"}
	}
	groups, err := groupTree(tree, r.opts)
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, g := range groups {
		raw, err := g.tree.MarshalJSON()
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", strings.Repeat(" ", indent)); err != nil {
			return nil, err
		}
		out = append(out, Result{
			Title:    g.title,
			Sections: []Section{{Kind: KindText, Text: buf.String()}},
		})
	}
	return out, nil
}
