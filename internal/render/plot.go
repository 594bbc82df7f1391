package render

import (
	"context"
	"fmt"
	"image/color"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
)

// Plot option names.
const (
	OptPlotFormat = "plot-format"
	OptPlotBins   = "plot-bins"
	OptXLabel     = "xlabel"
	OptYLabel     = "ylabel"
	OptWidth      = "width"
	OptHeight     = "height"
)

type plotKind int

const (
	linePlot plotKind = iota
	barPlot
	histPlot
)

// figure draws gonum plots and writes them as png or svg files.
type figure struct {
	name   string
	kind   plotKind
	format string
	bins   int
	xlabel string
	ylabel string
	env    Env
	opts   params.Options
}

func newFigure(name string, kind plotKind) func(params.Options, Env) (Renderer, error) {
	return func(opts params.Options, env Env) (Renderer, error) {
		f := &figure{
			name:   name,
			kind:   kind,
			format: opts.Value(OptPlotFormat, "png"),
			xlabel: opts.Value(OptXLabel, ""),
			ylabel: opts.Value(OptYLabel, ""),
			env:    env,
			opts:   opts,
		}
		switch f.format {
		case "png", "svg":
		default:
			return nil, &params.ConfigurationError{Component: "renderer " + name, Option: OptPlotFormat, Reason: fmt.Sprintf("unsupported format %q", f.format)}
		}
		if kind == histPlot {
			bins, err := opts.Int(OptPlotBins, 10)
			if err != nil || bins < 1 {
				return nil, &params.ConfigurationError{Component: "renderer " + name, Option: OptPlotBins, Reason: "must be a positive integer"}
			}
			f.bins = bins
		}
		return f, nil
	}
}

func (f *figure) Render(ctx context.Context, tree *datatree.Tree, display params.Options) ([]Result, error) {
	width, err := length(display, OptWidth, 6*vg.Inch)
	if err != nil {
		return nil, err
	}
	height, err := length(display, OptHeight, 4*vg.Inch)
	if err != nil {
		return nil, err
	}
	groups, err := groupTree(tree, f.opts)
	if err != nil {
		return nil, err
	}
	fsys := f.env.fs()
	if len(groups) > 0 {
		if err := fsys.MkdirAll(f.env.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create figure dir: %w", err)
		}
	}

	var out []Result
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := f.draw(g)
		if err != nil {
			return nil, err
		}
		wt, err := p.WriterTo(width, height, f.format)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.format, err)
		}
		path := filepath.Join(f.env.OutputDir, figureName(f.name, g.title, f.format))
		w, err := fsys.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		if _, err := wt.WriteTo(w); err != nil {
			w.Close()
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close %s: %w", path, err)
		}
		out = append(out, Result{Title: g.title, Sections: []Section{{Kind: KindFigure, Path: path}}})
	}
	return out, nil
}

func (f *figure) draw(g group) (*plot.Plot, error) {
	ss := numericSeries(g.tree)
	if len(ss) == 0 {
		return nil, fmt.Errorf("renderer %s: no numeric data in %q", f.name, g.title)
	}
	p := plot.New()
	p.Title.Text = g.title
	p.X.Label.Text = f.xlabel
	p.Y.Label.Text = f.ylabel
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	switch f.kind {
	case linePlot:
		colors := generateColors(len(ss))
		for i, s := range ss {
			pts := make(plotter.XYs, len(s.values))
			for j, y := range s.values {
				pts[j] = plotter.XY{X: float64(j), Y: y}
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return nil, err
			}
			line.Color = colors[i]
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(s.name, line)
		}
	case barPlot:
		if err := f.drawBars(p, ss); err != nil {
			return nil, err
		}
	case histPlot:
		colors := generateColors(len(ss))
		for i, s := range ss {
			if len(s.values) == 0 {
				continue
			}
			h, err := plotter.NewHist(plotter.Values(s.values), f.bins)
			if err != nil {
				return nil, err
			}
			h.FillColor = withAlpha(colors[i], 160)
			p.Add(h)
			p.Legend.Add(s.name, h)
		}
	}
	return p, nil
}

// drawBars draws one bar per scalar leaf, or one bar group per sequence
// index with a series per leaf.
func (f *figure) drawBars(p *plot.Plot, ss []series) error {
	if allScalar(ss) {
		vals := make(plotter.Values, len(ss))
		names := make([]string, len(ss))
		for i, s := range ss {
			vals[i] = s.values[0]
			names[i] = s.name
		}
		bars, err := plotter.NewBarChart(vals, vg.Points(20))
		if err != nil {
			return err
		}
		bars.Color = generateColors(1)[0]
		p.Add(bars)
		p.NominalX(names...)
		return nil
	}

	colors := generateColors(len(ss))
	width := vg.Points(float64(40) / float64(len(ss)))
	longest := 0
	for i, s := range ss {
		if len(s.values) == 0 {
			continue
		}
		if len(s.values) > longest {
			longest = len(s.values)
		}
		bars, err := plotter.NewBarChart(plotter.Values(s.values), width)
		if err != nil {
			return err
		}
		bars.Color = colors[i]
		bars.Offset = width * vg.Length(i-len(ss)/2)
		p.Add(bars)
		p.Legend.Add(s.name, bars)
	}
	names := make([]string, longest)
	for i := range names {
		names[i] = strconv.Itoa(i)
	}
	p.NominalX(names...)
	return nil
}

// length reads a display option in points.
func length(display params.Options, key string, def vg.Length) (vg.Length, error) {
	raw := display.Value(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, &params.ConfigurationError{Component: "display", Option: key, Reason: fmt.Sprintf("invalid length %q (points)", raw)}
	}
	return vg.Points(v), nil
}

func withAlpha(c color.Color, a uint8) color.Color {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: a}
}
