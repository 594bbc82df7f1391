// Package dispatch sequences a tracker dispatch: resolve the tracker,
// optionally invalidate its cache entries, fetch (from the cache or by
// collecting), transform and render. It also runs every discovered tracker
// as a batch on a worker pool.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/banshee-data/trackreport/internal/cache"
	"github.com/banshee-data/trackreport/internal/config"
	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/monitoring"
	"github.com/banshee-data/trackreport/internal/params"
	"github.com/banshee-data/trackreport/internal/render"
	"github.com/banshee-data/trackreport/internal/timeutil"
	"github.com/banshee-data/trackreport/internal/tracker"
	"github.com/banshee-data/trackreport/internal/transform"
	"github.com/banshee-data/trackreport/internal/workerpool"
)

// NoRenderer requests a data-only run.
const NoRenderer = "none"

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Trackers     *tracker.Registry
	Transformers *transform.Registry
	Renderers    *render.Registry
	Cache        cache.Cache
	Clock        timeutil.Clock
	Env          render.Env

	// Pool runs batch tasks. When nil, one is built from the config.
	Pool *workerpool.Pool
}

// Request is one dispatch.
type Request struct {
	Tracker      string
	Tracks       params.Set
	Slices       params.Set
	Options      params.Options
	Transformers []string
	Renderer     string
	Force        bool
}

// DataOnly reports whether no renderer was requested.
func (r Request) DataOnly() bool {
	return r.Renderer == "" || r.Renderer == NoRenderer
}

// Outcome is the result of a successful dispatch. Tree is the transformed
// tree; Results is empty on data-only runs.
type Outcome struct {
	Identity tracker.Identity
	Tree     *datatree.Tree
	Results  []render.Result
	Removed  int
	CacheHit bool
	Elapsed  time.Duration
	Buckets  params.Buckets
}

// Dispatcher runs dispatches. It is safe for concurrent use.
type Dispatcher struct {
	cfg    config.Config
	deps   Deps
	clock  timeutil.Clock
	pool   *workerpool.Pool
	flight singleflight.Group

	genMu sync.Mutex
	gens  map[string]*generation
}

// generation counts invalidations of one identity. A collect stores its
// result only if no invalidation happened since it started.
type generation struct {
	mu sync.Mutex
	n  uint64
}

func (d *Dispatcher) generation(identity string) *generation {
	d.genMu.Lock()
	defer d.genMu.Unlock()
	g := d.gens[identity]
	if g == nil {
		g = &generation{}
		d.gens[identity] = g
	}
	return g
}

// New builds a dispatcher. cfg is copied; nothing reads process-wide
// defaults after construction.
func New(cfg config.Config, deps Deps) (*Dispatcher, error) {
	if deps.Trackers == nil || deps.Transformers == nil || deps.Renderers == nil || deps.Cache == nil {
		return nil, errors.New("dispatch: trackers, transformers, renderers and cache are required")
	}
	d := &Dispatcher{cfg: cfg, deps: deps, clock: deps.Clock, pool: deps.Pool, gens: make(map[string]*generation)}
	if d.clock == nil {
		d.clock = timeutil.RealClock{}
	}
	if d.deps.Env.OutputDir == "" {
		d.deps.Env.OutputDir = cfg.OutputDir
	}
	if d.pool == nil {
		pool, err := workerpool.New(workerpool.Config{
			Strategy: workerpool.Strategy(cfg.Strategy),
			Workers:  cfg.Workers,
			Clock:    d.clock,
		})
		if err != nil {
			return nil, fmt.Errorf("dispatch: %w", err)
		}
		d.pool = pool
	}
	return d, nil
}

// Schema returns the option names claimed by the render, transform and
// display stages.
func (d *Dispatcher) Schema() params.Schema {
	return params.Schema{
		Render:    d.deps.Renderers.RenderOptionNames(),
		Transform: d.deps.Transformers.OptionNames(),
		Display:   d.deps.Renderers.DisplayOptionNames(),
	}
}

// Dispatch runs one tracker through the pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Outcome, error) {
	start := d.clock.Now()
	fail := func(stage Stage, err error) (*Outcome, error) {
		monitoring.Logger().Debug().Str("tracker", req.Tracker).Str("stage", string(stage)).Err(err).Msg("dispatch failed")
		return nil, &StageError{Stage: stage, Tracker: req.Tracker, Err: err}
	}

	entry, err := d.deps.Trackers.Resolve(req.Tracker)
	if err != nil {
		return fail(StageResolving, err)
	}
	id := entry.Identity
	out := &Outcome{Identity: id, Buckets: params.Partition(req.Options, d.Schema())}
	if err := entry.CheckOptions(out.Buckets.Tracker); err != nil {
		return fail(StageResolving, err)
	}
	tr, err := entry.Instance(out.Buckets.Tracker)
	if err != nil {
		return fail(StageResolving, err)
	}

	if req.Force {
		n, err := d.Invalidate(ctx, id)
		if err != nil {
			return fail(StageInvalidating, err)
		}
		out.Removed = n
	}

	sel := params.Selection{Tracks: req.Tracks, Slices: req.Slices, Options: out.Buckets.Tracker}
	tree, hit, err := d.fetch(ctx, id.String(), sel, tr)
	if err != nil {
		return fail(StageFetching, err)
	}
	out.CacheHit = hit

	chain, err := d.deps.Transformers.Build(req.Transformers, out.Buckets.Transform)
	if err != nil {
		return fail(StageTransforming, err)
	}
	if out.Tree, err = chain.Apply(tree); err != nil {
		return fail(StageTransforming, err)
	}

	if !req.DataOnly() {
		rd, err := d.deps.Renderers.Build(req.Renderer, out.Buckets.Render, out.Buckets.Display, d.deps.Env)
		if err != nil {
			return fail(StageRendering, err)
		}
		if out.Results, err = rd.Render(ctx, out.Tree, out.Buckets.Display); err != nil {
			return fail(StageRendering, err)
		}
	}

	out.Elapsed = d.clock.Since(start)
	monitoring.Logger().Debug().
		Str("tracker", id.String()).
		Bool("cache_hit", hit).
		Dur("elapsed", out.Elapsed).
		Msg("dispatched")
	return out, nil
}

// Invalidate drops every cached entry of id. Collects already in flight
// for id are not stored once this returns, and later fetches start a new
// collect rather than joining them.
func (d *Dispatcher) Invalidate(ctx context.Context, id tracker.Identity) (int, error) {
	g := d.generation(id.String())
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := d.deps.Cache.Invalidate(ctx, id.String())
	if err != nil {
		return 0, err
	}
	g.n++
	monitoring.Logf("removed all data for tracker %s: %d entries", id, n)
	return n, nil
}

// fetch returns the cached tree for sel or collects and stores it. Callers
// asking for the same key while a collect is in flight share its result;
// each gets its own copy and stops waiting when its own ctx is done.
func (d *Dispatcher) fetch(ctx context.Context, identity string, sel params.Selection, tr tracker.Tracker) (*datatree.Tree, bool, error) {
	tree, ok, err := d.deps.Cache.Lookup(ctx, identity, sel)
	switch {
	case err != nil && errors.Is(err, cache.ErrCorruption):
		monitoring.Logf("cache: %v; recollecting", err)
	case err != nil:
		return nil, false, err
	case ok:
		return tree, true, nil
	}

	g := d.generation(identity)
	g.mu.Lock()
	gen := g.n
	g.mu.Unlock()

	// The collect outlives any single caller, so it runs without their
	// cancellation.
	cctx := context.WithoutCancel(ctx)
	key := fmt.Sprintf("%s\x00%d\x00%s", identity, gen, sel.Key())
	ch := d.flight.DoChan(key, func() (any, error) {
		tree, err := tr.Collect(cctx, sel)
		if err != nil {
			return nil, err
		}
		if tree == nil {
			tree = datatree.New()
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.n != gen {
			monitoring.Logger().Debug().Str("tracker", identity).Msg("invalidated during collect; not stored")
			return tree, nil
		}
		if err := d.deps.Cache.Store(cctx, identity, sel, tree); err != nil {
			monitoring.Logf("cache: store %s: %v", identity, err)
		}
		return tree, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		if res.Shared {
			monitoring.Logger().Debug().Str("tracker", identity).Msg("shared in-flight collect")
		}
		return res.Val.(*datatree.Tree).Clone(), false, nil
	}
}
