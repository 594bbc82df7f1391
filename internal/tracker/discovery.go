package tracker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/trackreport/internal/monitoring"
	"github.com/banshee-data/trackreport/internal/params"
)

// Discover registers the trackers defined in the *.yaml and *.yml files of
// dir. Each file is a module named after its base name. A missing directory
// is a configuration error. It returns the number of trackers registered.
func Discover(dir string, reg *Registry) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, &params.ConfigurationError{Component: "tracker search path", Option: dir, Reason: "directory not found"}
	}
	if err != nil {
		return 0, fmt.Errorf("read tracker dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !isYAMLFile(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	n := 0
	for _, name := range files {
		module := strings.TrimSuffix(name, filepath.Ext(name))
		if module == LibraryModule {
			return n, fmt.Errorf("tracker file %s: module name %q is reserved", name, LibraryModule)
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return n, fmt.Errorf("read %s: %w", path, err)
		}
		defs, err := ParseDefinitions(data)
		if err != nil {
			return n, fmt.Errorf("%s: %w", path, err)
		}
		for i := range defs {
			e, err := defs[i].Entry(module, dir)
			if err != nil {
				return n, fmt.Errorf("%s: %w", path, err)
			}
			if err := reg.Register(e); err != nil {
				return n, fmt.Errorf("%s: %w", path, err)
			}
			n++
		}
		monitoring.Logf("tracker module %s: %d trackers", module, len(defs))
	}
	return n, nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
