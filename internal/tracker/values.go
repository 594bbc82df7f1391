package tracker

import (
	"context"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
)

// valuesTracker serves an inline tree. The first level holds tracks; when
// slices are declared the second level holds slices.
type valuesTracker struct {
	name   string
	tree   *datatree.Tree
	slices []string
}

func newValuesTracker(name string, tree *datatree.Tree, slices []string) *valuesTracker {
	return &valuesTracker{name: name, tree: tree, slices: slices}
}

func (v *valuesTracker) Collect(ctx context.Context, sel params.Selection) (*datatree.Tree, error) {
	sp := space{tracks: v.tree.Keys(), slices: v.slices, sliced: len(v.slices) > 0}
	tracks, slices, err := sp.choose(v.name, sel)
	if err != nil {
		return nil, err
	}
	out := datatree.New()
	for _, t := range tracks {
		val, _ := v.tree.Get(t)
		if !sp.sliced {
			out.Set(t, val)
			continue
		}
		sub, ok := val.(*datatree.Tree)
		if !ok {
			return nil, Unavailable(v.name, "track %q has no slices", t)
		}
		picked := datatree.New()
		for _, s := range slices {
			if sv, ok := sub.Get(s); ok {
				picked.Set(s, sv)
			}
		}
		out.Set(t, picked)
	}
	return out, nil
}
