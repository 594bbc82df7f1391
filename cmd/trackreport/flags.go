package main

import (
	"flag"
	"io"
	"strings"

	"github.com/banshee-data/trackreport/internal/config"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// commonFlags are shared by every subcommand that builds the pipeline.
type commonFlags struct {
	configPath string
	trackerDir string
	cache      string
	workers    int
	strategy   string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", config.DefaultPath, "configuration file")
	fs.StringVar(&c.trackerDir, "w", "", "tracker search path")
	fs.StringVar(&c.trackerDir, "path", "", "tracker search path")
	fs.StringVar(&c.cache, "cache", "", "cache database (:memory: for an in-memory cache)")
	fs.IntVar(&c.workers, "workers", 0, "parallel workers")
	fs.StringVar(&c.strategy, "strategy", "", "worker strategy: thread or process")
}

// load reads the configuration and applies flag overrides.
func (c *commonFlags) load() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.trackerDir != "" {
		cfg.TrackerDir = c.trackerDir
	}
	if c.cache != "" {
		cfg.Cache = c.cache
	}
	if c.workers > 0 {
		cfg.Workers = c.workers
	}
	if c.strategy != "" {
		cfg.Strategy = c.strategy
	}
	return cfg, cfg.Validate()
}

// dispatchFlags are the flags of the default command.
type dispatchFlags struct {
	commonFlags
	tracker      string
	renderer     string
	transformers stringList
	tracks       string
	slices       string
	options      stringList
	force        bool
	language     string
	noPrint      bool
	noShow       bool
	label        string
	caption      string
	version      bool
}

func newDispatchFlags(stderr io.Writer) (*flag.FlagSet, *dispatchFlags) {
	f := &dispatchFlags{}
	fs := flag.NewFlagSet("trackreport", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f.commonFlags.register(fs)
	for _, name := range []string{"t", "tracker"} {
		fs.StringVar(&f.tracker, name, "", "tracker to dispatch")
	}
	for _, name := range []string{"r", "renderer"} {
		fs.StringVar(&f.renderer, name, "table", "renderer, none for data only")
	}
	for _, name := range []string{"m", "transformer"} {
		fs.Var(&f.transformers, name, "transformer, repeatable")
	}
	for _, name := range []string{"a", "tracks"} {
		fs.StringVar(&f.tracks, name, "", "tracks to select")
	}
	for _, name := range []string{"s", "slices"} {
		fs.StringVar(&f.slices, name, "", "slices to select")
	}
	for _, name := range []string{"o", "option"} {
		fs.Var(&f.options, name, "option key[=value], repeatable")
	}
	for _, name := range []string{"f", "force"} {
		fs.BoolVar(&f.force, name, false, "remove cached data of the tracker first")
	}
	for _, name := range []string{"l", "language"} {
		fs.StringVar(&f.language, name, "", "snippet language: rst or notebook")
	}
	fs.BoolVar(&f.noPrint, "no-print", false, "do not print the snippet")
	fs.BoolVar(&f.noShow, "no-show", false, "do not print the render results")
	fs.StringVar(&f.label, "label", "", "snippet label")
	fs.StringVar(&f.caption, "caption", "", "snippet caption")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	return fs, f
}
