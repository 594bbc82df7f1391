package main

import (
	"fmt"

	"github.com/banshee-data/trackreport/internal/cache"
	"github.com/banshee-data/trackreport/internal/config"
	"github.com/banshee-data/trackreport/internal/dispatch"
	"github.com/banshee-data/trackreport/internal/fsutil"
	"github.com/banshee-data/trackreport/internal/monitoring"
	"github.com/banshee-data/trackreport/internal/render"
	"github.com/banshee-data/trackreport/internal/timeutil"
	"github.com/banshee-data/trackreport/internal/tracker"
	"github.com/banshee-data/trackreport/internal/transform"
)

// app is the wired pipeline for one invocation.
type app struct {
	cfg  config.Config
	deps dispatch.Deps
	d    *dispatch.Dispatcher
}

func newApp(cfg config.Config) (*app, error) {
	clock := timeutil.RealClock{}
	reg := tracker.NewRegistry()
	if err := tracker.RegisterLibrary(reg, cfg.TrackerDir); err != nil {
		return nil, err
	}
	n, err := tracker.Discover(cfg.TrackerDir, reg)
	if err != nil {
		return nil, err
	}
	monitoring.Logger().Debug().Int("trackers", n).Str("path", cfg.TrackerDir).Msg("discovered trackers")

	c, err := cache.Open(cfg.Cache, clock)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", cfg.Cache, err)
	}
	deps := dispatch.Deps{
		Trackers:     reg,
		Transformers: transform.Builtins(),
		Renderers:    render.DefaultRegistry(),
		Cache:        c,
		Clock:        clock,
		Env:          render.Env{FS: fsutil.OSFileSystem{}, OutputDir: cfg.OutputDir},
	}
	d, err := dispatch.New(cfg, deps)
	if err != nil {
		c.Close()
		return nil, err
	}
	return &app{cfg: cfg, deps: deps, d: d}, nil
}

func (a *app) Close() error {
	return a.deps.Cache.Close()
}
