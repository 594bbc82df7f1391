package render

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
)

// OptAssetsHost overrides where generated pages load the echarts scripts from.
const OptAssetsHost = "assets-host"

const defaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// page renders interactive go-echarts HTML pages, one per group.
type page struct {
	name   string
	bar    bool
	assets string
	env    Env
	opts   params.Options
}

func newPage(name string, bar bool) func(params.Options, Env) (Renderer, error) {
	return func(o params.Options, env Env) (Renderer, error) {
		return &page{
			name:   name,
			bar:    bar,
			assets: o.Value(OptAssetsHost, defaultAssetsHost),
			env:    env,
			opts:   o,
		}, nil
	}
}

func (p *page) Render(ctx context.Context, tree *datatree.Tree, display params.Options) ([]Result, error) {
	width := display.Value(OptWidth, "900px")
	height := display.Value(OptHeight, "500px")
	groups, err := groupTree(tree, p.opts)
	if err != nil {
		return nil, err
	}
	fsys := p.env.fs()
	if len(groups) > 0 {
		if err := fsys.MkdirAll(p.env.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create page dir: %w", err)
		}
	}

	var out []Result
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ss := numericSeries(g.tree)
		if len(ss) == 0 {
			return nil, fmt.Errorf("renderer %s: no numeric data in %q", p.name, g.title)
		}
		init := opts.Initialization{PageTitle: g.title, Width: width, Height: height, AssetsHost: p.assets}
		title := opts.Title{Title: g.title}

		var chart components.Charter
		if p.bar {
			chart = p.barChart(init, title, ss)
		} else {
			chart = p.lineChart(init, title, ss)
		}

		pg := components.NewPage()
		pg.SetAssetsHost(p.assets)
		pg.AddCharts(chart)
		var buf bytes.Buffer
		if err := pg.Render(&buf); err != nil {
			return nil, fmt.Errorf("render page: %w", err)
		}

		path := filepath.Join(p.env.OutputDir, figureName(p.name, g.title, "html"))
		w, err := fsys.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			w.Close()
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close %s: %w", path, err)
		}
		out = append(out, Result{Title: g.title, Sections: []Section{{Kind: KindHTML, Path: path}}})
	}
	return out, nil
}

func (p *page) barChart(init opts.Initialization, title opts.Title, ss []series) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(init),
		charts.WithTitleOpts(title),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	if allScalar(ss) {
		x := make([]string, len(ss))
		y := make([]opts.BarData, len(ss))
		for i, s := range ss {
			x[i] = s.name
			y[i] = opts.BarData{Value: s.values[0]}
		}
		bar.SetXAxis(x).AddSeries(title.Title, y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
		return bar
	}
	colors := hexColors(len(ss))
	bar.SetXAxis(indexLabels(ss))
	for i, s := range ss {
		y := make([]opts.BarData, len(s.values))
		for j, v := range s.values {
			y[j] = opts.BarData{Value: v}
		}
		bar.AddSeries(s.name, y, charts.WithItemStyleOpts(opts.ItemStyle{Color: colors[i]}))
	}
	return bar
}

func (p *page) lineChart(init opts.Initialization, title opts.Title, ss []series) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(init),
		charts.WithTitleOpts(title),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	colors := hexColors(len(ss))
	line.SetXAxis(indexLabels(ss))
	for i, s := range ss {
		y := make([]opts.LineData, len(s.values))
		for j, v := range s.values {
			y[j] = opts.LineData{Value: v}
		}
		line.AddSeries(s.name, y, charts.WithItemStyleOpts(opts.ItemStyle{Color: colors[i]}))
	}
	return line
}

// indexLabels labels the x axis 0..n-1 for the longest series.
func indexLabels(ss []series) []string {
	n := 0
	for _, s := range ss {
		if len(s.values) > n {
			n = len(s.values)
		}
	}
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}
