// Package params holds the selection parameters that address a tracker's data
// space (tracks, slices and free-form options), their canonical form used as a
// cache key, and the partitioning of options between pipeline stages.
package params

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Option is one free-form option. A bare key ("force") has HasValue false and
// is rendered as a flag-style directive field.
type Option struct {
	Key      string
	Value    string
	HasValue bool
}

// String returns the key[=value] form accepted by ParseOption.
func (o Option) String() string {
	if !o.HasValue {
		return o.Key
	}
	return o.Key + "=" + o.Value
}

// ParseOption parses "key=value" or a bare "key". Everything after the first
// '=' is the value, so values may themselves contain '='.
func ParseOption(s string) (Option, error) {
	key, val, found := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return Option{}, &ConfigurationError{Component: "options", Option: s, Reason: "empty option name"}
	}
	if !found {
		return Option{Key: key}, nil
	}
	return Option{Key: key, Value: strings.TrimSpace(val), HasValue: true}, nil
}

// Options is an ordered set of options keyed by name. Setting an existing key
// replaces its value in place.
type Options struct {
	list []Option
}

// ParseOptions parses a list of key[=value] strings.
func ParseOptions(raw []string) (Options, error) {
	var opts Options
	for _, s := range raw {
		o, err := ParseOption(s)
		if err != nil {
			return Options{}, err
		}
		opts.Put(o)
	}
	return opts, nil
}

// NewOptions builds options from already parsed values.
func NewOptions(list ...Option) Options {
	var opts Options
	for _, o := range list {
		opts.Put(o)
	}
	return opts
}

// Put adds or replaces an option.
func (o *Options) Put(opt Option) {
	for i := range o.list {
		if o.list[i].Key == opt.Key {
			o.list[i] = opt
			return
		}
	}
	o.list = append(o.list, opt)
}

// Set is shorthand for Put with a value.
func (o *Options) Set(key, value string) {
	o.Put(Option{Key: key, Value: value, HasValue: true})
}

// Get returns the option named key.
func (o Options) Get(key string) (Option, bool) {
	for _, opt := range o.list {
		if opt.Key == key {
			return opt, true
		}
	}
	return Option{}, false
}

// Value returns the value of key, or def when the option is absent or has no
// value.
func (o Options) Value(key, def string) string {
	opt, ok := o.Get(key)
	if !ok || !opt.HasValue {
		return def
	}
	return opt.Value
}

// Has reports whether key is present, with or without a value.
func (o Options) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Len returns the number of options.
func (o Options) Len() int { return len(o.list) }

// List returns the options in insertion order.
func (o Options) List() []Option {
	out := make([]Option, len(o.list))
	copy(out, o.list)
	return out
}

// Keys returns the option names in insertion order.
func (o Options) Keys() []string {
	out := make([]string, len(o.list))
	for i, opt := range o.list {
		out[i] = opt.Key
	}
	return out
}

// Select returns the options whose names are in names, keeping order.
func (o Options) Select(names []string) Options {
	want := toSet(names)
	var out Options
	for _, opt := range o.list {
		if want[opt.Key] {
			out.list = append(out.list, opt)
		}
	}
	return out
}

// Without returns the options whose names are not in names.
func (o Options) Without(names []string) Options {
	drop := toSet(names)
	var out Options
	for _, opt := range o.list {
		if !drop[opt.Key] {
			out.list = append(out.list, opt)
		}
	}
	return out
}

// Strings returns the key[=value] forms in insertion order.
func (o Options) Strings() []string {
	out := make([]string, len(o.list))
	for i, opt := range o.list {
		out[i] = opt.String()
	}
	return out
}

// Canonical renders the options sorted by key.
func (o Options) Canonical() string {
	sorted := o.List()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	parts := make([]string, len(sorted))
	for i, opt := range sorted {
		parts[i] = opt.String()
	}
	return strings.Join(parts, ",")
}

// Int parses the value of key as an integer, returning def when absent.
func (o Options) Int(key string, def int) (int, error) {
	opt, ok := o.Get(key)
	if !ok {
		return def, nil
	}
	if !opt.HasValue {
		return 0, &ConfigurationError{Option: key, Reason: "requires an integer value"}
	}
	n, err := strconv.Atoi(opt.Value)
	if err != nil {
		return 0, &ConfigurationError{Option: key, Reason: fmt.Sprintf("invalid integer %q", opt.Value)}
	}
	return n, nil
}

// CSV splits the value of key on commas, trimming blanks.
func (o Options) CSV(key string) []string {
	return SplitList(o.Value(key, ""))
}

// SplitList splits a comma separated list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
