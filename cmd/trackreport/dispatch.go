package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"

	"github.com/banshee-data/trackreport/internal/config"
	"github.com/banshee-data/trackreport/internal/dispatch"
	"github.com/banshee-data/trackreport/internal/monitoring"
	"github.com/banshee-data/trackreport/internal/params"
	"github.com/banshee-data/trackreport/internal/render"
	"github.com/banshee-data/trackreport/internal/snippet"
	"github.com/banshee-data/trackreport/internal/tracker"
	"github.com/banshee-data/trackreport/internal/version"
)

func runDispatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs, f := newDispatchFlags(stderr)
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if f.version {
		fmt.Fprintln(stdout, version.String())
		return 0
	}
	switch fs.NArg() {
	case 0:
	case 2:
		f.tracker, f.renderer = fs.Arg(0), fs.Arg(1)
	default:
		fmt.Fprintf(stderr, "expected no arguments or 'tracker renderer', got %d\n", fs.NArg())
		return 2
	}

	cfg, err := f.load()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if f.language != "" {
		cfg.Language = f.language
	}
	if f.label != "" {
		cfg.Label = f.label
	}
	if f.caption != "" {
		cfg.Caption = f.caption
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if err := monitoring.Configure(cfg.LogLevel, stderr); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	a, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer a.Close()

	if f.tracker == "" {
		return runAll(ctx, a, stdout)
	}
	return dispatchOne(ctx, a, f, stdout, stderr)
}

func dispatchOne(ctx context.Context, a *app, f *dispatchFlags, stdout, stderr io.Writer) int {
	opts, err := params.ParseOptions(f.options)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	notebook := a.cfg.Language == config.LanguageNotebook
	req := dispatch.Request{
		Tracker:      f.tracker,
		Tracks:       params.ParseSet(f.tracks),
		Slices:       params.ParseSet(f.slices),
		Options:      opts,
		Transformers: f.transformers,
		Renderer:     f.renderer,
		Force:        f.force,
	}
	if notebook {
		req.Renderer = dispatch.NoRenderer
	}

	out, err := a.d.Dispatch(ctx, req)
	if err != nil {
		var unknown *tracker.UnknownTrackerError
		if errors.As(err, &unknown) && len(unknown.Ambiguous) == 0 {
			fmt.Fprintf(stdout, "unknown tracker '%s': possible trackers are\n  %s\n", unknown.Name, strings.Join(unknown.Suggestions, "\n  "))
			fmt.Fprintln(stdout, "(the list above does not contain functions).")
			return 1
		}
		var se *dispatch.StageError
		if errors.As(err, &se) {
			fmt.Fprintf(stderr, "error in stage %s: %v\n", se.Stage, se.Err)
		} else {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return 1
	}
	if req.Force {
		fmt.Fprintf(stdout, "removed all data for tracker %s: %d entries\n", out.Identity, out.Removed)
	}

	dataOnly := req.DataOnly()
	doPrint := !f.noPrint
	if dataOnly {
		doPrint = doPrint && notebook
	}
	if doPrint {
		p := snippetParams(a.cfg, req, out)
		write := func(w io.Writer) error { return snippet.WriteRST(w, p) }
		if notebook {
			write = func(w io.Writer) error { return snippet.WriteNotebook(w, p) }
		}
		if err := snippet.Frame(stdout, write); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
	}

	if dataOnly {
		b, err := out.Tree.MarshalJSON()
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, string(b))
		return 0
	}
	if !f.noShow {
		printResults(stdout, out.Results)
	}
	return 0
}

func snippetParams(cfg config.Config, req dispatch.Request, out *dispatch.Outcome) snippet.Params {
	return snippet.Params{
		Label:            cfg.Label,
		Caption:          cfg.Caption,
		Module:           out.Identity.Module,
		Tracker:          out.Identity.Name,
		Renderer:         req.Renderer,
		Transformers:     req.Transformers,
		Tracks:           req.Tracks,
		Slices:           req.Slices,
		TrackerOptions:   out.Buckets.Tracker,
		RenderOptions:    out.Buckets.Render,
		TransformOptions: out.Buckets.Transform,
		DisplayOptions:   out.Buckets.Display,
		Dir:              cfg.TrackerDir,
	}
}

func printResults(w io.Writer, results []render.Result) {
	for _, r := range results {
		fmt.Fprintf(w, "\ntitle: %s\n\n", r.Title)
		for _, s := range r.Sections {
			switch s.Kind {
			case render.KindText:
				fmt.Fprintln(w, s.Text)
			default:
				fmt.Fprintf(w, "%s: %s\n", s.Kind, s.Path)
			}
		}
	}
}

func runAll(ctx context.Context, a *app, stdout io.Writer) int {
	rep := a.d.RunAll(ctx)

	rows := make([][]string, 0, len(rep.Results))
	for _, r := range rep.Results {
		status := "ok"
		detail := ""
		if !r.OK {
			status = "failed(" + string(r.Kind) + ")"
			if r.Err != nil {
				detail = r.Err.Error()
			}
		}
		rows = append(rows, []string{r.Tracker, status, fmt.Sprintf("%.2fs", r.Elapsed.Seconds()), detail})
	}
	t := lgtable.New().
		Border(lipgloss.NormalBorder()).
		Headers("tracker", "status", "elapsed", "error").
		Rows(rows...)
	fmt.Fprintln(stdout, t.String())

	failed := rep.Failed()
	fmt.Fprintf(stdout, "run %s: %d trackers, %d failed\n", rep.RunID, len(rep.Results), len(failed))
	if len(failed) > 0 {
		return 1
	}
	return 0
}
