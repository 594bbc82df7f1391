package params

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOption(t *testing.T) {
	tests := []struct {
		in       string
		key      string
		value    string
		hasValue bool
	}{
		{"width=300", "width", "300", true},
		{"force", "force", "", false},
		{" groupby = track ", "groupby", "track", true},
		{"sql-query=a=b", "sql-query", "a=b", true},
		{"empty=", "empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			opt, err := ParseOption(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.key, opt.Key)
			assert.Equal(t, tt.value, opt.Value)
			assert.Equal(t, tt.hasValue, opt.HasValue)
		})
	}
}

func TestParseOption_EmptyKey(t *testing.T) {
	_, err := ParseOption("=300")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestOptions_LastWriteWinsInPlace(t *testing.T) {
	opts, err := ParseOptions([]string{"a=1", "b", "a=2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a=2", "b"}, opts.Strings())
	assert.Equal(t, "2", opts.Value("a", ""))
	assert.Equal(t, "def", opts.Value("b", "def"))
	assert.True(t, opts.Has("b"))
}

func TestOptions_Int(t *testing.T) {
	opts := NewOptions(Option{Key: "bins", Value: "12", HasValue: true}, Option{Key: "bad", Value: "1x", HasValue: true})
	n, err := opts.Int("bins", 10)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	n, err = opts.Int("missing", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = opts.Int("bad", 0)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSet(t *testing.T) {
	assert.True(t, ParseSet("").IsAll())
	assert.True(t, ParseSet("all").IsAll())
	assert.True(t, Of("a", "all").IsAll())

	s := ParseSet("south, north,north")
	assert.Equal(t, []string{"north", "south"}, s.Names())
	assert.Equal(t, "north,south", s.String())
	assert.True(t, s.Contains("north"))
	assert.False(t, s.Contains("east"))
}

func TestSet_Filter(t *testing.T) {
	selected, missing := Of("south", "west").Filter([]string{"north", "south", "east"})
	assert.Equal(t, []string{"south"}, selected)
	assert.Equal(t, []string{"west"}, missing)

	selected, missing = All().Filter([]string{"north", "south"})
	assert.Equal(t, []string{"north", "south"}, selected)
	assert.Empty(t, missing)
}

func TestSelection_CanonicalIgnoresOrder(t *testing.T) {
	a := Selection{
		Tracks:  ParseSet("b,a"),
		Slices:  All(),
		Options: NewOptions(Option{Key: "y", Value: "1", HasValue: true}, Option{Key: "x"}),
	}
	b := Selection{
		Tracks:  ParseSet("a,b"),
		Options: NewOptions(Option{Key: "x"}, Option{Key: "y", Value: "1", HasValue: true}),
	}
	assert.Equal(t, "tracks=a,b;slices=all;options=x,y=1", a.Canonical())
	assert.Equal(t, a.Canonical(), b.Canonical())
	assert.Equal(t, a.Key(), b.Key())
	assert.Len(t, a.Key(), 64)

	c := b
	c.Slices = Of("weekday")
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestPartition(t *testing.T) {
	opts, err := ParseOptions([]string{"width=300", "tf-bins=5", "groupby=track", "min-speed=5", "flag"})
	require.NoError(t, err)

	b := Partition(opts, Schema{
		Render:    []string{"groupby"},
		Transform: []string{"tf-bins"},
		Display:   []string{"width"},
	})
	assert.Equal(t, []string{"groupby=track"}, b.Render.Strings())
	assert.Equal(t, []string{"tf-bins=5"}, b.Transform.Strings())
	assert.Equal(t, []string{"width=300"}, b.Display.Strings())
	assert.Equal(t, []string{"min-speed=5", "flag"}, b.Tracker.Strings())
}

func TestUnrecognizedAndUnion(t *testing.T) {
	opts := NewOptions(Option{Key: "b"}, Option{Key: "a"}, Option{Key: "c"})
	assert.Equal(t, []string{"a", "b"}, Unrecognized(opts, []string{"c"}))
	assert.Equal(t, []string{"a", "b", "c"}, Union([]string{"c", "a"}, []string{"b", "a"}))
}

func TestConfigurationError_Message(t *testing.T) {
	err := NotRecognized("renderer table", []string{"bogus"})
	assert.Equal(t, `configuration error in renderer table: option "bogus": not recognized`, err.Error())
	assert.ErrorIs(t, Missing("transformer filter", "tf-fields"), ErrConfiguration)
}
