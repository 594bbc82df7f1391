package tracker

import (
	"context"
	"strings"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
)

// Library tracker names. They take their definition through options.
const (
	SQLTrackerName    = "SQLTracker"
	CSVTrackerName    = "CSVTracker"
	ValuesTrackerName = "ValuesTracker"
	EmptyTrackerName  = "EmptyTracker"
)

// RegisterLibrary registers the backends under LibraryModule. Relative file
// options are resolved against dir.
func RegisterLibrary(reg *Registry, dir string) error {
	lib := func(name string) Identity { return Identity{Module: LibraryModule, Name: name} }
	entries := []Entry{
		{
			Identity:    lib(SQLTrackerName),
			Kind:        Derived,
			Description: "rows of an SQLite query, one column per leaf",
			Options:     []string{"sql-database", "sql-query", "sql-tracks-query"},
			New: func(opts params.Options) (Tracker, error) {
				id := lib(SQLTrackerName).String()
				db, query := opts.Value("sql-database", ""), opts.Value("sql-query", "")
				if db == "" {
					return nil, params.Missing("tracker "+id, "sql-database")
				}
				if query == "" {
					return nil, params.Missing("tracker "+id, "sql-query")
				}
				tracksQuery := opts.Value("sql-tracks-query", "")
				for _, q := range []string{query, tracksQuery} {
					for _, p := range QueryParams(q) {
						if p != "track" && p != "slice" {
							return nil, &params.ConfigurationError{Component: "tracker " + id, Option: "sql-query", Reason: "only :track and :slice parameters are bound"}
						}
					}
				}
				database, err := resolvePath(dir, db, "tracker "+id, "sql-database")
				if err != nil {
					return nil, err
				}
				return &sqlTracker{
					name:        id,
					database:    database,
					query:       query,
					tracksQuery: tracksQuery,
				}, nil
			},
		},
		{
			Identity:    lib(CSVTrackerName),
			Kind:        Derived,
			Description: "columns of a CSV file grouped by a track column",
			Options:     []string{"csv-file", "csv-track-column", "csv-slice-column"},
			New: func(opts params.Options) (Tracker, error) {
				id := lib(CSVTrackerName).String()
				file, track := opts.Value("csv-file", ""), opts.Value("csv-track-column", "")
				if file == "" {
					return nil, params.Missing("tracker "+id, "csv-file")
				}
				if track == "" {
					return nil, params.Missing("tracker "+id, "csv-track-column")
				}
				path, err := resolvePath(dir, file, "tracker "+id, "csv-file")
				if err != nil {
					return nil, err
				}
				return &csvTracker{
					name:        id,
					path:        path,
					trackColumn: track,
					sliceColumn: opts.Value("csv-slice-column", ""),
				}, nil
			},
		},
		{
			Identity:    lib(ValuesTrackerName),
			Kind:        Derived,
			Description: "a JSON object given inline",
			Options:     []string{"values-json"},
			New: func(opts params.Options) (Tracker, error) {
				id := lib(ValuesTrackerName).String()
				raw := opts.Value("values-json", "")
				if raw == "" {
					return nil, params.Missing("tracker "+id, "values-json")
				}
				tree, err := datatree.Decode(strings.NewReader(raw))
				if err != nil {
					return nil, &params.ConfigurationError{Component: "tracker " + id, Option: "values-json", Reason: err.Error()}
				}
				return newValuesTracker(id, tree, nil), nil
			},
		},
		{
			Identity:    lib(EmptyTrackerName),
			Kind:        Derived,
			Description: "always returns an empty tree",
			New: func(params.Options) (Tracker, error) {
				return Func(func(ctx context.Context, sel params.Selection) (*datatree.Tree, error) {
					return datatree.New(), nil
				}), nil
			},
		},
	}
	for _, e := range entries {
		if err := reg.Register(e); err != nil {
			return err
		}
	}
	return nil
}
