package datatree

import (
	"math"
	"strconv"
)

// Floats converts a numeric leaf to a slice of float64. Scalars become a
// single-element slice. ok is false when v holds any non-numeric element.
func Floats(v Value) ([]float64, bool) {
	switch x := v.(type) {
	case []any:
		out := make([]float64, 0, len(x))
		for _, e := range x {
			f, ok := Float(e)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	default:
		f, ok := Float(v)
		if !ok {
			return nil, false
		}
		return []float64{f}, true
	}
}

// Float converts a numeric scalar to float64.
func Float(v Value) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	default:
		return 0, false
	}
}

// IsSequence reports whether v is a sequence leaf.
func IsSequence(v Value) bool {
	_, ok := v.([]any)
	return ok
}

// Sequence converts a []float64 into a sequence leaf.
func Sequence(xs []float64) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

// FormatScalar renders a scalar the way tables print it.
func FormatScalar(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) {
			return "nan"
		}
		return strconv.FormatFloat(x, 'g', 6, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		s := ""
		for i, e := range x {
			if i > 0 {
				s += ", "
			}
			s += FormatScalar(e)
		}
		return s
	case *Tree:
		return x.String()
	default:
		return ""
	}
}

// Equal reports whether a and b hold the same keys in the same order with
// equal values. Integers and floats compare by numeric value so trees survive
// a round trip through JSON.
func Equal(a, b *Tree) bool {
	if a.Len() != b.Len() {
		return false
	}
	if a == nil || b == nil {
		return a.Len() == 0 && b.Len() == 0
	}
	for i, k := range a.keys {
		if b.keys[i] != k {
			return false
		}
		if !valueEqual(a.vals[k], b.vals[k]) {
			return false
		}
	}
	return true
}

func valueEqual(a, b Value) bool {
	switch x := a.(type) {
	case *Tree:
		y, ok := b.(*Tree)
		return ok && Equal(x, y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valueEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	if fa, ok := Float(a); ok {
		fb, ok := Float(b)
		if !ok {
			return false
		}
		return fa == fb || (math.IsNaN(fa) && math.IsNaN(fb))
	}
	return a == b
}
