package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/banshee-data/trackreport/internal/config"
	"github.com/banshee-data/trackreport/internal/monitoring"
	"github.com/banshee-data/trackreport/internal/workerpool"
)

// runWorker collects one tracker for a process pool parent and prints the
// JSON report on stdout. Logs go to stderr.
func runWorker(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	name := fs.String("t", "", "tracker to collect")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	report := func(rep workerpool.Report) int {
		if err := workerpool.WriteReport(stdout, rep); err != nil {
			fmt.Fprintf(stderr, "write report: %v\n", err)
			return 1
		}
		if !rep.OK {
			return 1
		}
		return 0
	}
	if *name == "" {
		return report(workerpool.Report{Kind: workerpool.KindConfiguration, Error: "worker needs -t"})
	}

	cfg, err := common.load()
	if err == nil {
		// The parent owns parallelism; a child never spawns workers.
		cfg.Strategy = config.StrategyThread
		err = monitoring.Configure(cfg.LogLevel, stderr)
	}
	if err != nil {
		return report(workerpool.Report{Tracker: *name, Kind: workerpool.KindConfiguration, Error: err.Error()})
	}
	a, err := newApp(cfg)
	if err != nil {
		return report(workerpool.Report{Tracker: *name, Kind: workerpool.Classify(err), Error: err.Error()})
	}
	defer a.Close()
	return report(a.d.Report(ctx, *name))
}
