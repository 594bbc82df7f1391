package tracker

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
)

// csvTracker reads a CSV file with a header row. One column names the track,
// an optional one the slice; every other column becomes a leaf sequence.
type csvTracker struct {
	name        string
	path        string
	trackColumn string
	sliceColumn string
	slices      []string
}

type csvGroup struct {
	track, slice string
	cols         [][]any
}

func (c *csvTracker) Collect(ctx context.Context, sel params.Selection) (*datatree.Tree, error) {
	f, err := os.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &DataUnavailableError{Tracker: c.name, Reason: "csv file missing", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, &DataUnavailableError{Tracker: c.name, Reason: "read csv header", Err: err}
	}
	trackIdx, sliceIdx := -1, -1
	var columns []string
	var colIdx []int
	for i, h := range header {
		h = strings.TrimSpace(h)
		switch h {
		case c.trackColumn:
			trackIdx = i
		case c.sliceColumn:
			if c.sliceColumn != "" {
				sliceIdx = i
				continue
			}
			fallthrough
		default:
			columns = append(columns, h)
			colIdx = append(colIdx, i)
		}
	}
	if trackIdx < 0 {
		return nil, &params.ConfigurationError{Component: "tracker " + c.name, Option: "track_column", Reason: fmt.Sprintf("column %q not in header", c.trackColumn)}
	}
	if c.sliceColumn != "" && sliceIdx < 0 {
		return nil, &params.ConfigurationError{Component: "tracker " + c.name, Option: "slice_column", Reason: fmt.Sprintf("column %q not in header", c.sliceColumn)}
	}

	var (
		byKey                = map[string]*csvGroup{}
		tracks, slices       []string
		seenTrack, seenSlice = map[string]bool{}, map[string]bool{}
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &DataUnavailableError{Tracker: c.name, Reason: "read csv", Err: err}
		}
		track := strings.TrimSpace(rec[trackIdx])
		tracks = firstSeen(tracks, seenTrack, track)
		slice := ""
		if sliceIdx >= 0 {
			slice = strings.TrimSpace(rec[sliceIdx])
			slices = firstSeen(slices, seenSlice, slice)
		}
		key := track + "\x00" + slice
		g, ok := byKey[key]
		if !ok {
			g = &csvGroup{track: track, slice: slice, cols: make([][]any, len(columns))}
			for i := range g.cols {
				g.cols[i] = []any{}
			}
			byKey[key] = g
		}
		for i, idx := range colIdx {
			g.cols[i] = append(g.cols[i], parseCell(rec[idx]))
		}
	}

	if len(c.slices) > 0 {
		slices = c.slices
	}
	sp := space{tracks: tracks, slices: slices, sliced: sliceIdx >= 0}
	chosenTracks, chosenSlices, err := sp.choose(c.name, sel)
	if err != nil {
		return nil, err
	}

	leaves := func(g *csvGroup) *datatree.Tree {
		t := datatree.New()
		for i, col := range columns {
			t.Set(col, g.cols[i])
		}
		return t
	}
	out := datatree.New()
	for _, t := range chosenTracks {
		if !sp.sliced {
			out.Set(t, leaves(byKey[t+"\x00"]))
			continue
		}
		sub := datatree.New()
		for _, s := range chosenSlices {
			if g, ok := byKey[t+"\x00"+s]; ok {
				sub.Set(s, leaves(g))
			}
		}
		out.Set(t, sub)
	}
	return out, nil
}

// parseCell converts a CSV cell to an integer, a float, nil for an empty
// cell, or the trimmed string.
func parseCell(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
