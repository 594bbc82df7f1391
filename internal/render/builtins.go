package render

import "github.com/banshee-data/trackreport/internal/params"

// Builtins returns the stock renderers.
func Builtins() []Entry {
	plain := func(mk func(params.Options) Renderer) func(params.Options, Env) (Renderer, error) {
		return func(o params.Options, _ Env) (Renderer, error) { return mk(o), nil }
	}
	plotRender := []string{OptPlotFormat, OptXLabel, OptYLabel}
	return []Entry{
		{
			Name:        "table",
			Description: "RST list-table per group",
			New:         plain(func(o params.Options) Renderer { return &rstTable{opts: o} }),
		},
		{
			Name:        "text-table",
			Description: "bordered terminal table per group",
			New:         plain(func(o params.Options) Renderer { return &textTable{opts: o} }),
		},
		{
			Name:           "json",
			Description:    "indented JSON per group",
			DisplayOptions: []string{"indent"},
			New:            plain(func(o params.Options) Renderer { return &jsonRenderer{opts: o} }),
		},
		{
			Name:           "line-plot",
			Description:    "line per numeric leaf, x is the sample index",
			RenderOptions:  plotRender,
			DisplayOptions: []string{OptWidth, OptHeight},
			New:            newFigure("line-plot", linePlot),
		},
		{
			Name:           "bar-plot",
			Description:    "bars per numeric leaf",
			RenderOptions:  plotRender,
			DisplayOptions: []string{OptWidth, OptHeight},
			New:            newFigure("bar-plot", barPlot),
		},
		{
			Name:           "histogram-plot",
			Description:    "histogram of each numeric sequence",
			RenderOptions:  append([]string{OptPlotBins}, plotRender...),
			DisplayOptions: []string{OptWidth, OptHeight},
			New:            newFigure("histogram-plot", histPlot),
		},
		{
			Name:           "echarts-bar",
			Description:    "interactive bar chart page",
			RenderOptions:  []string{OptAssetsHost},
			DisplayOptions: []string{OptWidth, OptHeight},
			New:            newPage("echarts-bar", true),
		},
		{
			Name:           "echarts-line",
			Description:    "interactive line chart page",
			RenderOptions:  []string{OptAssetsHost},
			DisplayOptions: []string{OptWidth, OptHeight},
			New:            newPage("echarts-line", false),
		},
	}
}

// DefaultRegistry returns a registry holding the builtins.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, e := range Builtins() {
		r.MustRegister(e)
	}
	return r
}
