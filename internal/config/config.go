// Package config loads the trackreport configuration file. The resulting
// Config is passed explicitly to the dispatcher; nothing here is global.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultPath is the configuration file looked up when -config is not given.
const DefaultPath = "trackreport.toml"

// MemoryCache selects the in-memory cache instead of an SQLite file.
const MemoryCache = ":memory:"

// Worker pool strategies.
const (
	StrategyThread  = "thread"
	StrategyProcess = "process"
)

// Snippet languages.
const (
	LanguageRST      = "rst"
	LanguageNotebook = "notebook"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config holds the resolved settings.
type Config struct {
	// Path is the file the settings were loaded from, empty for defaults.
	Path string

	TrackerDir string
	OutputDir  string
	Cache      string
	Workers    int
	Strategy   string
	LogLevel   string

	// Snippet defaults.
	Label    string
	Caption  string
	Language string
}

type fileConfig struct {
	TrackerDir string `toml:"tracker_dir"`
	OutputDir  string `toml:"output_dir"`
	Cache      string `toml:"cache"`
	Workers    int    `toml:"workers"`
	Strategy   string `toml:"strategy"`
	LogLevel   string `toml:"log_level"`
	Label      string `toml:"label"`
	Caption    string `toml:"caption"`
	Language   string `toml:"language"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		TrackerDir: "trackers",
		OutputDir:  "report_figures",
		Cache:      "cache.db",
		Workers:    runtime.NumCPU(),
		Strategy:   StrategyProcess,
		LogLevel:   "info",
		Label:      "GenericLabel",
		Caption:    "add caption here",
		Language:   LanguageRST,
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Relative paths in the file are resolved against the file's directory.
func Load(path string) (Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(cleanPath, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", cleanPath, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config %s: unknown key %q", cleanPath, undecoded[0].String())
	}

	base := filepath.Dir(cleanPath)
	cfg.Path = cleanPath
	if meta.IsDefined("tracker_dir") {
		cfg.TrackerDir = resolve(base, raw.TrackerDir)
	}
	if meta.IsDefined("output_dir") {
		cfg.OutputDir = resolve(base, raw.OutputDir)
	}
	if meta.IsDefined("cache") {
		c := strings.TrimSpace(raw.Cache)
		if c != MemoryCache {
			c = resolve(base, c)
		}
		cfg.Cache = c
	}
	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("strategy") {
		cfg.Strategy = strings.TrimSpace(raw.Strategy)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("label") {
		cfg.Label = raw.Label
	}
	if meta.IsDefined("caption") {
		cfg.Caption = raw.Caption
	}
	if meta.IsDefined("language") {
		cfg.Language = strings.TrimSpace(raw.Language)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	switch c.Strategy {
	case StrategyThread, StrategyProcess:
	default:
		return fmt.Errorf("unknown strategy %q (want %s or %s)", c.Strategy, StrategyThread, StrategyProcess)
	}
	switch c.Language {
	case LanguageRST, LanguageNotebook:
	default:
		return fmt.Errorf("unknown language %q (want %s or %s)", c.Language, LanguageRST, LanguageNotebook)
	}
	if strings.TrimSpace(c.TrackerDir) == "" {
		return errors.New("tracker_dir must not be empty")
	}
	if strings.TrimSpace(c.Cache) == "" {
		return errors.New("cache must not be empty")
	}
	return nil
}

// UsesMemoryCache reports whether the in-memory cache is selected.
func (c Config) UsesMemoryCache() bool {
	return c.Cache == MemoryCache
}

func resolve(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
