package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"

	"github.com/banshee-data/trackreport/internal/cache"
	"github.com/banshee-data/trackreport/internal/monitoring"
	"github.com/banshee-data/trackreport/internal/timeutil"
	"github.com/banshee-data/trackreport/internal/tracker"
)

// runCache maintains the tracker cache: list, invalidate <tracker> and
// migrate.
func runCache(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: trackreport cache list|invalidate <tracker>|migrate [flags]")
		return 2
	}
	sub := args[0]
	fs := flag.NewFlagSet("cache "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	cfg, err := common.load()
	if err == nil {
		err = monitoring.Configure(cfg.LogLevel, stderr)
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	switch sub {
	case "migrate":
		if cfg.UsesMemoryCache() {
			fmt.Fprintln(stderr, "error: the in-memory cache has no schema")
			return 1
		}
		c, err := cache.OpenSQLite(cfg.Cache, timeutil.RealClock{})
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		defer c.Close()
		v, dirty, err := cache.MigrateVersion(c.DB())
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "cache %s at schema version %d (dirty=%t)\n", c.Path(), v, dirty)
		return 0

	case "list", "invalidate":
		a, err := newApp(cfg)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		defer a.Close()
		if sub == "list" {
			return listCache(ctx, a, stdout, stderr)
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "usage: trackreport cache invalidate [flags] <tracker>")
			return 2
		}
		e, err := a.deps.Trackers.Resolve(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		n, err := a.d.Invalidate(ctx, e.Identity)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "removed all data for tracker %s: %d entries\n", e.Identity, n)
		return 0

	default:
		fmt.Fprintf(stderr, "unknown cache command %q\n", sub)
		return 2
	}
}

func listCache(ctx context.Context, a *app, stdout, stderr io.Writer) int {
	summary, err := a.deps.Cache.Summary(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	rows := make([][]string, 0, len(summary))
	for _, s := range summary {
		kind := ""
		e, err := a.deps.Trackers.Resolve(s.Identity)
		var unknown *tracker.UnknownTrackerError
		switch {
		case err == nil:
			kind = e.Kind.String()
		case errors.As(err, &unknown):
			kind = "gone"
		}
		rows = append(rows, []string{s.Identity, kind, fmt.Sprint(s.Entries)})
	}
	t := lgtable.New().
		Border(lipgloss.NormalBorder()).
		Headers("tracker", "kind", "entries").
		Rows(rows...)
	fmt.Fprintln(stdout, t.String())
	return 0
}
