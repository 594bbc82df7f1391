package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackreport/internal/cache"
	"github.com/banshee-data/trackreport/internal/config"
	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/fsutil"
	"github.com/banshee-data/trackreport/internal/monitoring"
	"github.com/banshee-data/trackreport/internal/params"
	"github.com/banshee-data/trackreport/internal/render"
	"github.com/banshee-data/trackreport/internal/testutil"
	"github.com/banshee-data/trackreport/internal/timeutil"
	"github.com/banshee-data/trackreport/internal/tracker"
	"github.com/banshee-data/trackreport/internal/transform"
	"github.com/banshee-data/trackreport/internal/workerpool"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	reg   *tracker.Registry
	cache cache.Cache
	fs    *fsutil.MemoryFileSystem
	d     *Dispatcher
}

func newFixture(t *testing.T, entries ...tracker.Entry) *fixture {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	reg := tracker.NewRegistry()
	require.NoError(t, tracker.RegisterLibrary(reg, t.TempDir()))
	for _, e := range entries {
		require.NoError(t, reg.Register(e))
	}
	clock := timeutil.NewMockClock(epoch)
	c := cache.NewMemory(clock)
	pool, err := workerpool.New(workerpool.Config{Strategy: workerpool.Thread, Workers: 4, Clock: clock})
	require.NoError(t, err)

	f := &fixture{reg: reg, cache: c, fs: fsutil.NewMemoryFileSystem()}
	f.d, err = New(config.Default(), Deps{
		Trackers:     reg,
		Transformers: transform.Builtins(),
		Renderers:    render.DefaultRegistry(),
		Cache:        c,
		Clock:        clock,
		Env:          render.Env{FS: f.fs, OutputDir: "figures"},
		Pool:         pool,
	})
	require.NoError(t, err)
	return f
}

func options(t *testing.T, raw ...string) params.Options {
	t.Helper()
	o, err := params.ParseOptions(raw)
	require.NoError(t, err)
	return o
}

func requireStage(t *testing.T, err error, stage Stage) *StageError {
	t.Helper()
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stage, se.Stage)
	return se
}

func TestDispatch_SecondCallHitsCache(t *testing.T) {
	foo := &testutil.CountingTracker{Tree: testutil.SpeedTree()}
	f := newFixture(t, foo.Entry("speeds", "Foo"))
	ctx := context.Background()
	req := Request{Tracker: "Foo", Tracks: params.ParseSet("all")}

	first, err := f.d.Dispatch(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := f.d.Dispatch(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, foo.Calls())
	assert.True(t, datatree.Equal(first.Tree, second.Tree))
	assert.Equal(t, "speeds.Foo", second.Identity.String())
}

func TestDispatch_ForceInvalidatesOnlyThatIdentity(t *testing.T) {
	foo := &testutil.CountingTracker{Tree: testutil.SpeedTree()}
	bar := &testutil.CountingTracker{Tree: testutil.SpeedTree()}
	f := newFixture(t, foo.Entry("speeds", "Foo"), bar.Entry("speeds", "Bar"))
	ctx := context.Background()

	for _, tracks := range []string{"south", "north"} {
		_, err := f.d.Dispatch(ctx, Request{Tracker: "Foo", Tracks: params.ParseSet(tracks)})
		require.NoError(t, err)
	}
	_, err := f.d.Dispatch(ctx, Request{Tracker: "Bar"})
	require.NoError(t, err)

	out, err := f.d.Dispatch(ctx, Request{Tracker: "Foo", Tracks: params.ParseSet("south"), Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Removed)
	assert.False(t, out.CacheHit, "forced dispatch always misses")
	assert.Equal(t, 3, foo.Calls())

	infos, err := f.cache.Entries(ctx, "speeds.Bar")
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	out, err = f.d.Dispatch(ctx, Request{Tracker: "Bar"})
	require.NoError(t, err)
	assert.True(t, out.CacheHit)
}

func TestDispatch_DataOnlyAndTable(t *testing.T) {
	foo := &testutil.CountingTracker{Tree: testutil.SpeedTree()}
	empty := &testutil.CountingTracker{Tree: datatree.New()}
	f := newFixture(t, foo.Entry("speeds", "Foo"), empty.Entry("speeds", "Empty"))
	ctx := context.Background()

	out, err := f.d.Dispatch(ctx, Request{Tracker: "Foo", Tracks: params.ParseSet("all")})
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.True(t, datatree.Equal(testutil.SpeedTree(), out.Tree))

	out, err = f.d.Dispatch(ctx, Request{Tracker: "Foo", Tracks: params.ParseSet("all"), Renderer: "table"})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.NotEmpty(t, out.Results[0].Title)
	assert.NotEmpty(t, out.Results[0].Sections)

	out, err = f.d.Dispatch(ctx, Request{Tracker: "Empty", Renderer: "table"})
	require.NoError(t, err)
	assert.Empty(t, out.Results)
}

func TestDispatch_FigureGoesToEnv(t *testing.T) {
	foo := &testutil.CountingTracker{Tree: testutil.SpeedTree()}
	f := newFixture(t, foo.Entry("speeds", "Foo"))

	out, err := f.d.Dispatch(context.Background(), Request{
		Tracker:  "Foo",
		Renderer: "line-plot",
		Options:  options(t, "groupby=track", "width=200"),
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, []string{"figures/line-plot-north.png", "figures/line-plot-south.png"}, f.fs.Files())
}

func TestDispatch_UnknownTracker(t *testing.T) {
	foo := &testutil.CountingTracker{Tree: testutil.SpeedTree()}
	fn := &testutil.CountingTracker{Tree: testutil.SpeedTree()}
	f := newFixture(t, foo.Entry("speeds", "Foo"), fn.PlainEntry("speeds", "helper"))

	_, err := f.d.Dispatch(context.Background(), Request{Tracker: "Nope"})
	requireStage(t, err, StageResolving)

	var unknown *tracker.UnknownTrackerError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"speeds.Foo"}, unknown.Suggestions)
	assert.Equal(t, workerpool.KindUnknownTracker, ErrorKind(err))
}

func TestDispatch_LibraryTrackerByExactName(t *testing.T) {
	f := newFixture(t)
	out, err := f.d.Dispatch(context.Background(), Request{
		Tracker: "ValuesTracker",
		Options: options(t, `values-json={"south":{"speed":[1,2]}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"south":{"speed":[1,2]}}`, mustJSON(t, out.Tree))
}

func TestDispatch_OptionPartitioning(t *testing.T) {
	foo := &testutil.CountingTracker{Tree: testutil.SpeedTree()}
	f := newFixture(t, foo.Entry("speeds", "Foo", "min-speed"))
	ctx := context.Background()

	out, err := f.d.Dispatch(ctx, Request{
		Tracker:      "Foo",
		Renderer:     "json",
		Transformers: []string{"histogram"},
		Options:      options(t, "min-speed=5", "groupby=track", "tf-bins=2", "indent=4"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"min-speed=5"}, out.Buckets.Tracker.Strings())
	assert.Equal(t, []string{"groupby=track"}, out.Buckets.Render.Strings())
	assert.Equal(t, []string{"tf-bins=2"}, out.Buckets.Transform.Strings())
	assert.Equal(t, []string{"indent=4"}, out.Buckets.Display.Strings())
	assert.Equal(t, "tracks=all;slices=all;options=min-speed=5", foo.LastSelection().Canonical())

	// Only the tracker bucket addresses the cache.
	out, err = f.d.Dispatch(ctx, Request{Tracker: "Foo", Renderer: "json", Options: options(t, "min-speed=5", "indent=2")})
	require.NoError(t, err)
	assert.True(t, out.CacheHit)
	assert.Equal(t, 1, foo.Calls())
}

func TestDispatch_ConfigurationErrorsByStage(t *testing.T) {
	foo := &testutil.CountingTracker{Tree: testutil.SpeedTree()}
	f := newFixture(t, foo.Entry("speeds", "Foo", "min-speed"))
	ctx := context.Background()

	_, err := f.d.Dispatch(ctx, Request{Tracker: "Foo", Options: options(t, "max-speed=3")})
	requireStage(t, err, StageResolving)
	assert.ErrorIs(t, err, params.ErrConfiguration)
	assert.Equal(t, 0, foo.Calls())

	_, err = f.d.Dispatch(ctx, Request{Tracker: "Foo", Transformers: []string{"stats"}, Options: options(t, "tf-bins=3")})
	requireStage(t, err, StageTransforming)
	assert.ErrorIs(t, err, params.ErrConfiguration)

	_, err = f.d.Dispatch(ctx, Request{Tracker: "Foo", Renderer: "table", Options: options(t, "width=300")})
	requireStage(t, err, StageRendering)
	assert.Equal(t, workerpool.KindConfiguration, ErrorKind(err))

	// Data-only runs carry render and display options without checking them.
	out, err := f.d.Dispatch(ctx, Request{Tracker: "Foo", Options: options(t, "width=300")})
	require.NoError(t, err)
	assert.Equal(t, []string{"width=300"}, out.Buckets.Display.Strings())
}

func TestDispatch_StageTaggedFailures(t *testing.T) {
	broken := &testutil.CountingTracker{Err: tracker.Unavailable("speeds.Broken", "database offline")}
	words := &testutil.CountingTracker{Tree: datatree.New().Set("label", "fast")}
	f := newFixture(t, broken.Entry("speeds", "Broken"), words.Entry("speeds", "Words"))
	ctx := context.Background()

	_, err := f.d.Dispatch(ctx, Request{Tracker: "Broken"})
	requireStage(t, err, StageFetching)
	assert.ErrorIs(t, err, tracker.ErrDataUnavailable)

	_, err = f.d.Dispatch(ctx, Request{Tracker: "Words", Renderer: "bar-plot"})
	requireStage(t, err, StageRendering)

	_, err = f.d.Dispatch(ctx, Request{Tracker: "Words", Transformers: []string{"filter"}})
	requireStage(t, err, StageTransforming)
	assert.ErrorIs(t, err, params.ErrConfiguration)
}

func TestDispatch_TransformFailureAbortsRender(t *testing.T) {
	foo := &testutil.CountingTracker{Tree: testutil.SpeedTree()}
	f := newFixture(t, foo.Entry("speeds", "Foo"))
	boom := errors.New("boom")
	f.d.deps.Transformers = transform.NewRegistry()
	f.d.deps.Transformers.MustRegister(transform.Entry{
		Name: "explode",
		New: func(params.Options) (transform.Transformer, error) {
			return transform.Func(func(*datatree.Tree) (*datatree.Tree, error) { return nil, boom }), nil
		},
	})

	out, err := f.d.Dispatch(context.Background(), Request{Tracker: "Foo", Transformers: []string{"explode"}, Renderer: "table"})
	assert.Nil(t, out)
	requireStage(t, err, StageTransforming)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, workerpool.KindTransform, ErrorKind(err))
	assert.Empty(t, f.fs.Files())
}

func TestDispatch_ConcurrentIdenticalFetchesCollectOnce(t *testing.T) {
	release := make(chan struct{})
	foo := &testutil.CountingTracker{Tree: testutil.SpeedTree(), Block: release}
	f := newFixture(t, foo.Entry("speeds", "Foo"))
	ctx := context.Background()

	var wg sync.WaitGroup
	trees := make([]*datatree.Tree, 5)
	for i := range trees {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.d.Dispatch(ctx, Request{Tracker: "Foo", Tracks: params.ParseSet("south")})
			if assert.NoError(t, err) {
				trees[i] = out.Tree
			}
		}()
	}
	require.Eventually(t, func() bool { return foo.Calls() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, foo.Calls())
	for _, tr := range trees {
		assert.True(t, datatree.Equal(testutil.SpeedTree(), tr))
	}
}

// corruptOnce reports one corrupt entry, then behaves like the wrapped cache.
type corruptOnce struct {
	cache.Cache
	mu   sync.Mutex
	done bool
}

func (c *corruptOnce) Lookup(ctx context.Context, identity string, sel params.Selection) (*datatree.Tree, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.done = true
		return nil, false, &cache.CorruptionError{Identity: identity, Key: sel.Key(), Err: errors.New("bad payload")}
	}
	return c.Cache.Lookup(ctx, identity, sel)
}

func TestDispatch_CorruptEntryIsRecollected(t *testing.T) {
	foo := &testutil.CountingTracker{Tree: testutil.SpeedTree()}
	f := newFixture(t, foo.Entry("speeds", "Foo"))
	f.d.deps.Cache = &corruptOnce{Cache: f.cache}

	out, err := f.d.Dispatch(context.Background(), Request{Tracker: "Foo"})
	require.NoError(t, err)
	assert.False(t, out.CacheHit)
	assert.Equal(t, 1, foo.Calls())

	out, err = f.d.Dispatch(context.Background(), Request{Tracker: "Foo"})
	require.NoError(t, err)
	assert.True(t, out.CacheHit)
}

// countingStores counts Store calls on the wrapped cache.
type countingStores struct {
	cache.Cache
	stores atomic.Int32
}

func (c *countingStores) Store(ctx context.Context, identity string, sel params.Selection, tree *datatree.Tree) error {
	c.stores.Add(1)
	return c.Cache.Store(ctx, identity, sel, tree)
}

func TestDispatch_ForceDuringCollectStartsFreshCollect(t *testing.T) {
	release := make(chan struct{})
	foo := &testutil.CountingTracker{Tree: testutil.SpeedTree(), Block: release}
	f := newFixture(t, foo.Entry("speeds", "Foo"))
	stores := &countingStores{Cache: f.cache}
	f.d.deps.Cache = stores
	ctx := context.Background()
	req := Request{Tracker: "Foo", Tracks: params.ParseSet("south")}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.d.Dispatch(ctx, req)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return foo.Calls() == 1 }, time.Second, time.Millisecond)

	forced := req
	forced.Force = true
	go func() {
		defer wg.Done()
		out, err := f.d.Dispatch(ctx, forced)
		if assert.NoError(t, err) {
			assert.False(t, out.CacheHit)
		}
	}()
	require.Eventually(t, func() bool { return foo.Calls() == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 2, foo.Calls(), "forced dispatch must not join the earlier collect")
	assert.Equal(t, int32(1), stores.stores.Load(), "collect started before the invalidation is not stored")

	out, err := f.d.Dispatch(ctx, req)
	require.NoError(t, err)
	assert.True(t, out.CacheHit)
	assert.Equal(t, 2, foo.Calls())
}

func TestDispatch_CancelledCallerDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	foo := &testutil.CountingTracker{Tree: testutil.SpeedTree(), Block: release}
	f := newFixture(t, foo.Entry("speeds", "Foo"))
	req := Request{Tracker: "Foo", Tracks: params.ParseSet("south")}

	cctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := make(chan error, 1)
	go func() {
		_, err := f.d.Dispatch(cctx, req)
		first <- err
	}()
	require.Eventually(t, func() bool { return foo.Calls() == 1 }, time.Second, time.Millisecond)

	second := make(chan *Outcome, 1)
	go func() {
		out, err := f.d.Dispatch(context.Background(), req)
		assert.NoError(t, err)
		second <- out
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-first
	requireStage(t, err, StageFetching)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	out := <-second
	require.NotNil(t, out)
	assert.True(t, datatree.Equal(testutil.SpeedTree(), out.Tree))
	assert.Equal(t, 1, foo.Calls())
}

func TestDispatch_OutcomeTreeIsCallerOwned(t *testing.T) {
	foo := &testutil.CountingTracker{Tree: testutil.SpeedTree()}
	f := newFixture(t, foo.Entry("speeds", "Foo"))
	ctx := context.Background()
	req := Request{Tracker: "Foo"}

	miss, err := f.d.Dispatch(ctx, req)
	require.NoError(t, err)
	miss.Tree.Set("scribble", 1)

	hit, err := f.d.Dispatch(ctx, req)
	require.NoError(t, err)
	require.True(t, hit.CacheHit)
	assert.True(t, datatree.Equal(testutil.SpeedTree(), hit.Tree))
	hit.Tree.Set("scribble", 2)

	again, err := f.d.Dispatch(ctx, req)
	require.NoError(t, err)
	assert.True(t, datatree.Equal(testutil.SpeedTree(), again.Tree))
	assert.True(t, datatree.Equal(testutil.SpeedTree(), foo.Tree), "tracker's tree is untouched")
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(config.Default(), Deps{})
	assert.Error(t, err)
}

func TestStageError_Message(t *testing.T) {
	err := &StageError{Stage: StageFetching, Tracker: "Foo", Err: errors.New("gone")}
	assert.Equal(t, "Foo: fetching: gone", err.Error())
	assert.Equal(t, StageFetching, StageOf(err))
	assert.Equal(t, Stage(""), StageOf(errors.New("x")))
}

func mustJSON(t *testing.T, tree *datatree.Tree) string {
	t.Helper()
	b, err := tree.MarshalJSON()
	require.NoError(t, err)
	return string(b)
}

func TestRequest_DataOnly(t *testing.T) {
	got := []bool{
		Request{}.DataOnly(),
		Request{Renderer: NoRenderer}.DataOnly(),
		Request{Renderer: "table"}.DataOnly(),
	}
	if diff := cmp.Diff([]bool{true, true, false}, got); diff != "" {
		t.Errorf("DataOnly mismatch (-want +got):\n%s", diff)
	}
}
