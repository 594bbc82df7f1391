package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
)

func emptyFactory(params.Options) (Tracker, error) {
	return Func(func(context.Context, params.Selection) (*datatree.Tree, error) {
		return datatree.New(), nil
	}), nil
}

type staticTracker struct {
	tree *datatree.Tree
}

func (s *staticTracker) Collect(context.Context, params.Selection) (*datatree.Tree, error) {
	return s.tree, nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, RegisterLibrary(reg, t.TempDir()))
	reg.MustRegister(Entry{Identity: Identity{Module: "speeds", Name: "Foo"}, New: emptyFactory})
	reg.MustRegister(Entry{Identity: Identity{Module: "speeds", Name: "Bar"}, New: emptyFactory})
	reg.MustRegister(Entry{Identity: Identity{Module: "counts", Name: "Foo"}, New: emptyFactory})
	reg.MustRegister(Entry{
		Identity: Identity{Module: "speeds", Name: "oneshot"},
		Kind:     Plain,
		Func:     &staticTracker{tree: datatree.New().Set("x", 1)},
	})
	return reg
}

func TestRegister_Validation(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Register(Entry{Identity: Identity{Name: "NoFactory"}}))
	assert.Error(t, reg.Register(Entry{Identity: Identity{Name: "NoFunc"}, Kind: Plain}))
	assert.Error(t, reg.Register(Entry{Identity: Identity{Name: "a.b"}, New: emptyFactory}))
	assert.Error(t, reg.Register(Entry{}))

	e := Entry{Identity: Identity{Module: "m", Name: "Dup"}, New: emptyFactory}
	require.NoError(t, reg.Register(e))
	assert.Error(t, reg.Register(e))
}

func TestResolve(t *testing.T) {
	reg := newTestRegistry(t)

	e, err := reg.Resolve("Bar")
	require.NoError(t, err)
	assert.Equal(t, "speeds.Bar", e.Identity.String())

	e, err = reg.Resolve("counts.Foo")
	require.NoError(t, err)
	assert.Equal(t, Identity{Module: "counts", Name: "Foo"}, e.Identity)

	// Library and plain trackers resolve by exact name.
	e, err = reg.Resolve("SQLTracker")
	require.NoError(t, err)
	assert.Equal(t, LibraryModule, e.Identity.Module)
	e, err = reg.Resolve("oneshot")
	require.NoError(t, err)
	assert.Equal(t, Plain, e.Kind)
}

func TestResolve_Ambiguous(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Resolve("Foo")
	var unknown *UnknownTrackerError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"counts.Foo", "speeds.Foo"}, unknown.Ambiguous)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestResolve_UnknownListsDerivedOnly(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Resolve("Nope")
	require.ErrorIs(t, err, ErrUnknownTracker)

	var unknown *UnknownTrackerError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "Nope", unknown.Name)
	assert.Equal(t, []string{"counts.Foo", "speeds.Bar", "speeds.Foo"}, unknown.Suggestions)
	assert.Equal(t, unknown.Suggestions, reg.Available())
}

func TestDiscovered_ExcludesLibrary(t *testing.T) {
	reg := newTestRegistry(t)
	var names []string
	for _, e := range reg.Discovered() {
		names = append(names, e.Identity.String())
	}
	assert.Equal(t, []string{"counts.Foo", "speeds.Bar", "speeds.Foo", "speeds.oneshot"}, names)
	assert.Len(t, reg.Entries(), 8)
}

func TestEntry_InstanceAndOptions(t *testing.T) {
	reg := newTestRegistry(t)

	plain, err := reg.Resolve("oneshot")
	require.NoError(t, err)
	a, err := plain.Instance(params.Options{})
	require.NoError(t, err)
	b, err := plain.Instance(params.Options{})
	require.NoError(t, err)
	assert.Same(t, a, b, "plain trackers are reused")

	sqlEntry, err := reg.Resolve("SQLTracker")
	require.NoError(t, err)
	require.NoError(t, sqlEntry.CheckOptions(params.NewOptions(params.Option{Key: "sql-query", Value: "select 1", HasValue: true})))
	err = sqlEntry.CheckOptions(params.NewOptions(params.Option{Key: "colour"}))
	assert.ErrorIs(t, err, params.ErrConfiguration)

	_, err = sqlEntry.Instance(params.Options{})
	assert.ErrorIs(t, err, params.ErrConfiguration)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, Derived, k)
	k, err = ParseKind("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", k.String())
	_, err = ParseKind("class")
	assert.Error(t, err)
}
