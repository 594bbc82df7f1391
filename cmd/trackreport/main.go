// Command trackreport dispatches trackers: it collects a tracker's data
// (through the cache), transforms it, renders it and prints the snippet
// that embeds the result in a report. Without a tracker it collects every
// discovered tracker in parallel.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one invocation and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "worker":
			return runWorker(ctx, args[1:], stdout, stderr)
		case "cache":
			return runCache(ctx, args[1:], stdout, stderr)
		case "serve":
			return runServe(ctx, args[1:], stdout, stderr)
		case "help":
			printUsage(stdout)
			return 0
		}
	}
	return runDispatch(ctx, args, stdout, stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `trackreport - collect, transform and render tracker data

Usage:
  trackreport [flags] [tracker renderer]
  trackreport worker -t <tracker> [-config file] [-w dir] [-cache dsn]
  trackreport cache list|invalidate <tracker>|migrate [-config file]
  trackreport serve [-listen :8080] [-config file]

Without a tracker every discovered tracker is collected in parallel and a
summary is printed.

Flags:
  -config <file>       configuration file (default trackreport.toml)
  -t, -tracker <name>  tracker to dispatch (name or module.Name)
  -r, -renderer <name> renderer (default table; none for data only)
  -m, -transformer <n> add a transformer, repeatable, applied in order
  -a, -tracks <list>   tracks to select (comma separated, default all)
  -s, -slices <list>   slices to select (comma separated, default all)
  -o, -option <k[=v]>  option, repeatable
  -f, -force           remove cached data of the tracker first
  -w, -path <dir>      tracker search path
  -l, -language <l>    snippet language: rst or notebook
  -no-print            do not print the snippet
  -no-show             do not print the render results
  -label, -caption     snippet label and caption
  -workers <n>         parallel workers when running all trackers
  -strategy <s>        worker strategy: thread or process
  -version             print version and exit
`)
}
