package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"

	_ "modernc.org/sqlite"
)

// namedParam matches :name placeholders. A doubled colon is not a parameter.
var namedParam = regexp.MustCompile(`(^|[^:]):([A-Za-z_][A-Za-z0-9_]*)`)

// QueryParams returns the distinct named parameters of a query in order of
// first use.
func QueryParams(query string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range namedParam.FindAllStringSubmatch(query, -1) {
		out = firstSeen(out, seen, m[2])
	}
	return out
}

// optionName maps a query parameter to the option it binds. Option names
// use '-' where parameters use '_'.
func optionName(param string) string {
	return strings.ReplaceAll(param, "_", "-")
}

// sqlTracker runs a query against an SQLite database once per selected track
// and slice. Result columns become leaf sequences.
type sqlTracker struct {
	name        string
	database    string
	query       string
	tracksQuery string
	tracks      []string
	slices      []string
	opts        params.Options
}

func (q *sqlTracker) Collect(ctx context.Context, sel params.Selection) (*datatree.Tree, error) {
	if _, err := os.Stat(q.database); errors.Is(err, fs.ErrNotExist) {
		return nil, &DataUnavailableError{Tracker: q.name, Reason: "database missing", Err: err}
	}
	db, err := sql.Open("sqlite", "file:"+q.database+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", q.database, err)
	}
	defer db.Close()

	tracks := q.tracks
	if len(tracks) == 0 && q.tracksQuery != "" {
		if tracks, err = q.discoverTracks(ctx, db); err != nil {
			return nil, err
		}
	}
	if len(tracks) == 0 {
		tracks = []string{allTrack}
	}
	sp := space{tracks: tracks, slices: q.slices, sliced: len(q.slices) > 0}
	chosenTracks, chosenSlices, err := sp.choose(q.name, sel)
	if err != nil {
		return nil, err
	}

	out := datatree.New()
	for _, t := range chosenTracks {
		if !sp.sliced {
			leaves, err := q.run(ctx, db, q.query, t, "")
			if err != nil {
				return nil, err
			}
			out.Set(t, leaves)
			continue
		}
		sub := datatree.New()
		for _, s := range chosenSlices {
			leaves, err := q.run(ctx, db, q.query, t, s)
			if err != nil {
				return nil, err
			}
			sub.Set(s, leaves)
		}
		out.Set(t, sub)
	}
	return out, nil
}

func (q *sqlTracker) discoverTracks(ctx context.Context, db *sql.DB) ([]string, error) {
	args, err := q.bind(q.tracksQuery, "", "")
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q.tracksQuery, args...)
	if err != nil {
		return nil, &DataUnavailableError{Tracker: q.name, Reason: "tracks query", Err: err}
	}
	defer rows.Close()
	var tracks []string
	seen := map[string]bool{}
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, &DataUnavailableError{Tracker: q.name, Reason: "tracks query", Err: err}
		}
		tracks = firstSeen(tracks, seen, datatree.FormatScalar(sqlValue(v)))
	}
	if err := rows.Err(); err != nil {
		return nil, &DataUnavailableError{Tracker: q.name, Reason: "tracks query", Err: err}
	}
	return tracks, nil
}

func (q *sqlTracker) run(ctx context.Context, db *sql.DB, query, track, slice string) (*datatree.Tree, error) {
	args, err := q.bind(query, track, slice)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &DataUnavailableError{Tracker: q.name, Reason: fmt.Sprintf("query track %q", track), Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	seqs := make([][]any, len(cols))
	for i := range seqs {
		seqs[i] = []any{}
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &DataUnavailableError{Tracker: q.name, Reason: "scan row", Err: err}
		}
		for i, v := range vals {
			seqs[i] = append(seqs[i], sqlValue(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &DataUnavailableError{Tracker: q.name, Reason: "read rows", Err: err}
	}

	leaves := datatree.New()
	for i, c := range cols {
		leaves.Set(c, seqs[i])
	}
	return leaves, nil
}

// bind builds the named arguments the query references.
func (q *sqlTracker) bind(query, track, slice string) ([]any, error) {
	var args []any
	for _, p := range QueryParams(query) {
		switch p {
		case "track":
			args = append(args, sql.Named(p, track))
		case "slice":
			args = append(args, sql.Named(p, slice))
		default:
			opt, ok := q.opts.Get(optionName(p))
			if !ok {
				return nil, params.Missing("tracker "+q.name, optionName(p))
			}
			if !opt.HasValue {
				return nil, &params.ConfigurationError{Component: "tracker " + q.name, Option: opt.Key, Reason: "requires a value"}
			}
			args = append(args, sql.Named(p, opt.Value))
		}
	}
	return args, nil
}

// sqlValue converts a scanned column value to a tree scalar.
func sqlValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	}
	return v
}
