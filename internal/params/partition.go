package params

import "sort"

// Schema lists the option names each non-tracker stage recognizes. It is
// built from the static declarations of the registered renderers and
// transformers, never from the option values themselves.
type Schema struct {
	Render    []string
	Transform []string
	Display   []string
}

// Buckets is the result of partitioning free-form options by stage.
type Buckets struct {
	Tracker   Options
	Render    Options
	Transform Options
	Display   Options
}

// Partition moves each option into the bucket of the stage whose schema names
// it. Options named by no stage belong to the tracker. A name claimed by more
// than one stage goes to the first of render, transform, display.
func Partition(opts Options, schema Schema) Buckets {
	var b Buckets
	render := toSet(schema.Render)
	transform := toSet(schema.Transform)
	display := toSet(schema.Display)
	for _, opt := range opts.list {
		switch {
		case render[opt.Key]:
			b.Render.list = append(b.Render.list, opt)
		case transform[opt.Key]:
			b.Transform.list = append(b.Transform.list, opt)
		case display[opt.Key]:
			b.Display.list = append(b.Display.list, opt)
		default:
			b.Tracker.list = append(b.Tracker.list, opt)
		}
	}
	return b
}

// Unrecognized returns the names in opts that allowed does not contain,
// sorted.
func Unrecognized(opts Options, allowed []string) []string {
	ok := toSet(allowed)
	var out []string
	for _, opt := range opts.list {
		if !ok[opt.Key] {
			out = append(out, opt.Key)
		}
	}
	sort.Strings(out)
	return out
}

// Union merges name lists, dropping duplicates and sorting.
func Union(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range lists {
		for _, n := range l {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out
}
