package transform

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
	"github.com/banshee-data/trackreport/internal/units"
)

// Option names of the builtin transformers.
const (
	OptFields    = "tf-fields"
	OptBins      = "tf-bins"
	OptRange     = "tf-range"
	OptAggregate = "tf-aggregate"
	OptUnits     = "tf-units"
	OptFrom      = "tf-from"
)

const defaultBins = 10

// Builtins returns a registry holding every builtin transformer.
func Builtins() *Registry {
	r := NewRegistry()
	r.MustRegister(Entry{
		Name:        "filter",
		Description: "keep only the listed fields of each leaf mapping",
		Options:     []string{OptFields},
		New:         newFilter,
	})
	r.MustRegister(Entry{
		Name:        "stats",
		Description: "replace numeric sequences with summary statistics",
		New:         func(params.Options) (Transformer, error) { return Func(stats), nil },
	})
	r.MustRegister(Entry{
		Name:        "histogram",
		Description: "replace numeric sequences with bin edges and counts",
		Options:     []string{OptBins, OptRange},
		New:         newHistogram,
	})
	r.MustRegister(Entry{
		Name:        "aggregate",
		Description: "reduce numeric sequences to one value",
		Options:     []string{OptAggregate},
		New:         newAggregate,
	})
	r.MustRegister(Entry{
		Name:        "normalize-total",
		Description: "scale numeric sequences to sum to one",
		New: func(params.Options) (Transformer, error) {
			return numeric(func(xs []float64) (datatree.Value, error) {
				total := floats.Sum(xs)
				if total == 0 {
					return nil, errors.New("cannot normalize: total is zero")
				}
				return scaled(xs, 1/total), nil
			}), nil
		},
	})
	r.MustRegister(Entry{
		Name:        "normalize-max",
		Description: "scale numeric sequences so the maximum is one",
		New: func(params.Options) (Transformer, error) {
			return numeric(func(xs []float64) (datatree.Value, error) {
				if len(xs) == 0 {
					return datatree.Sequence(nil), nil
				}
				max := floats.Max(xs)
				if max == 0 {
					return nil, errors.New("cannot normalize: maximum is zero")
				}
				return scaled(xs, 1/max), nil
			}), nil
		},
	})
	r.MustRegister(Entry{
		Name:        "speed-units",
		Description: "convert numeric speeds from tf-from (default mps) to tf-units",
		Options:     []string{OptUnits, OptFrom},
		New:         newSpeedUnits,
	})
	r.MustRegister(Entry{
		Name:        "transpose",
		Description: "swap the first two levels of the tree",
		New:         func(params.Options) (Transformer, error) { return Func(transpose), nil },
	})
	return r
}

// numeric maps every numeric sequence leaf through fn. Leaves holding
// anything else are kept as they are.
func numeric(fn func(xs []float64) (datatree.Value, error)) Transformer {
	return Func(func(tree *datatree.Tree) (*datatree.Tree, error) {
		return tree.Map(func(path []string, v datatree.Value) (datatree.Value, error) {
			if !datatree.IsSequence(v) {
				return v, nil
			}
			xs, ok := datatree.Floats(v)
			if !ok {
				return v, nil
			}
			out, err := fn(xs)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", strings.Join(path, "/"), err)
			}
			return out, nil
		})
	})
}

func scaled(xs []float64, f float64) []any {
	out := make([]float64, len(xs))
	copy(out, xs)
	floats.Scale(f, out)
	return datatree.Sequence(out)
}

func newFilter(opts params.Options) (Transformer, error) {
	fields := opts.CSV(OptFields)
	if len(fields) == 0 {
		return nil, params.Missing("transformer filter", OptFields)
	}
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	var filter func(t *datatree.Tree) *datatree.Tree
	filter = func(t *datatree.Tree) *datatree.Tree {
		out := datatree.New()
		leafMap := t.IsLeafMap()
		for _, k := range t.Keys() {
			v, _ := t.Get(k)
			if sub, ok := v.(*datatree.Tree); ok {
				out.Set(k, filter(sub))
				continue
			}
			if !leafMap || keep[k] {
				out.Set(k, v)
			}
		}
		return out
	}
	return Func(func(tree *datatree.Tree) (*datatree.Tree, error) {
		return filter(tree), nil
	}), nil
}

func stats(tree *datatree.Tree) (*datatree.Tree, error) {
	return numeric(func(xs []float64) (datatree.Value, error) {
		out := datatree.New().Set("count", int64(len(xs)))
		if len(xs) == 0 {
			nan := math.NaN()
			return out.Set("mean", nan).Set("median", nan).Set("min", nan).Set("max", nan).Set("stddev", nan), nil
		}
		sorted := make([]float64, len(xs))
		copy(sorted, xs)
		sort.Float64s(sorted)
		return out.
			Set("mean", stat.Mean(xs, nil)).
			Set("median", stat.Quantile(0.5, stat.Empirical, sorted, nil)).
			Set("min", sorted[0]).
			Set("max", sorted[len(sorted)-1]).
			Set("stddev", stat.StdDev(xs, nil)), nil
	}).Transform(tree)
}

func newHistogram(opts params.Options) (Transformer, error) {
	bins, err := opts.Int(OptBins, defaultBins)
	if err != nil {
		return nil, withComponent(err, "transformer histogram")
	}
	if bins < 1 {
		return nil, &params.ConfigurationError{Component: "transformer histogram", Option: OptBins, Reason: "must be positive"}
	}
	var lo, hi float64
	fixed := opts.Has(OptRange)
	if fixed {
		lo, hi, err = parseRange(opts.Value(OptRange, ""))
		if err != nil {
			return nil, &params.ConfigurationError{Component: "transformer histogram", Option: OptRange, Reason: err.Error()}
		}
	}
	return numeric(func(xs []float64) (datatree.Value, error) {
		l, h := lo, hi
		if !fixed {
			if len(xs) == 0 {
				return nil, errors.New("histogram of an empty sequence needs tf-range")
			}
			l, h = floats.Min(xs), floats.Max(xs)
			if l == h {
				h = l + 1
			}
		}
		return histogram(xs, bins, l, h), nil
	}), nil
}

// histogram counts xs into bins equal-width bins over [lo, hi]. Values
// outside the range are ignored; hi itself falls in the last bin.
func histogram(xs []float64, bins int, lo, hi float64) *datatree.Tree {
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	edges := make([]float64, bins)
	copy(edges, dividers[:bins])
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	var in []float64
	for _, x := range xs {
		if x >= lo && x <= hi {
			in = append(in, x)
		}
	}
	sort.Float64s(in)
	counts := stat.Histogram(nil, dividers, in, nil)
	seq := make([]any, len(counts))
	for i, c := range counts {
		seq[i] = int64(c)
	}
	return datatree.New().Set("bins", datatree.Sequence(edges)).Set("counts", seq)
}

func parseRange(s string) (lo, hi float64, err error) {
	parts := params.SplitList(s)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want lo,hi, got %q", s)
	}
	if lo, err = strconv.ParseFloat(parts[0], 64); err != nil {
		return 0, 0, fmt.Errorf("invalid lower bound %q", parts[0])
	}
	if hi, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return 0, 0, fmt.Errorf("invalid upper bound %q", parts[1])
	}
	if !(lo < hi) {
		return 0, 0, fmt.Errorf("lower bound %g is not below upper bound %g", lo, hi)
	}
	return lo, hi, nil
}

func newAggregate(opts params.Options) (Transformer, error) {
	var reduce func(xs []float64) datatree.Value
	switch fn := opts.Value(OptAggregate, "sum"); fn {
	case "sum":
		reduce = func(xs []float64) datatree.Value { return floats.Sum(xs) }
	case "mean":
		reduce = func(xs []float64) datatree.Value {
			if len(xs) == 0 {
				return math.NaN()
			}
			return stat.Mean(xs, nil)
		}
	case "min":
		reduce = func(xs []float64) datatree.Value {
			if len(xs) == 0 {
				return math.NaN()
			}
			return floats.Min(xs)
		}
	case "max":
		reduce = func(xs []float64) datatree.Value {
			if len(xs) == 0 {
				return math.NaN()
			}
			return floats.Max(xs)
		}
	case "count":
		reduce = func(xs []float64) datatree.Value { return int64(len(xs)) }
	default:
		return nil, &params.ConfigurationError{Component: "transformer aggregate", Option: OptAggregate, Reason: fmt.Sprintf("unknown function %q", fn)}
	}
	return numeric(func(xs []float64) (datatree.Value, error) {
		return reduce(xs), nil
	}), nil
}

// newSpeedUnits converts every numeric leaf, scalar or sequence. Leaves
// holding anything else are kept.
func newSpeedUnits(opts params.Options) (Transformer, error) {
	const component = "transformer speed-units"
	if !opts.Has(OptUnits) {
		return nil, params.Missing(component, OptUnits)
	}
	to, err := units.Parse(opts.Value(OptUnits, ""))
	if err != nil {
		return nil, &params.ConfigurationError{Component: component, Option: OptUnits, Reason: err.Error()}
	}
	from, err := units.Parse(opts.Value(OptFrom, units.MPS))
	if err != nil {
		return nil, &params.ConfigurationError{Component: component, Option: OptFrom, Reason: err.Error()}
	}
	return Func(func(tree *datatree.Tree) (*datatree.Tree, error) {
		return tree.Map(func(_ []string, v datatree.Value) (datatree.Value, error) {
			xs, ok := datatree.Floats(v)
			if !ok {
				return v, nil
			}
			for i := range xs {
				xs[i] = units.Convert(xs[i], from, to)
			}
			if datatree.IsSequence(v) {
				return datatree.Sequence(xs), nil
			}
			return xs[0], nil
		})
	}), nil
}

// transpose swaps the first two levels: track -> slice -> v becomes
// slice -> track -> v. Second-level keys keep their first-seen order.
func transpose(tree *datatree.Tree) (*datatree.Tree, error) {
	var order []string
	inner := map[string]*datatree.Tree{}
	for _, outer := range tree.Keys() {
		v, _ := tree.Get(outer)
		sub, ok := v.(*datatree.Tree)
		if !ok {
			return nil, fmt.Errorf("key %q is a leaf, transpose needs two levels", outer)
		}
		for _, k := range sub.Keys() {
			t, seen := inner[k]
			if !seen {
				t = datatree.New()
				inner[k] = t
				order = append(order, k)
			}
			sv, _ := sub.Get(k)
			t.Set(outer, sv)
		}
	}
	out := datatree.New()
	for _, k := range order {
		out.Set(k, inner[k])
	}
	return out, nil
}

func withComponent(err error, component string) error {
	var cfg *params.ConfigurationError
	if errors.As(err, &cfg) && cfg.Component == "" {
		c := *cfg
		c.Component = component
		return &c
	}
	return err
}
