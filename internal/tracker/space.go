package tracker

import (
	"strings"

	"github.com/banshee-data/trackreport/internal/params"
)

// allTrack names the single track of a source that declares none.
const allTrack = "all"

// space is the set of track and slice names a source can provide.
type space struct {
	tracks []string
	slices []string
	sliced bool
}

// choose resolves a selection against the space. Explicitly requested names
// the source lacks are a DataUnavailableError.
func (s space) choose(name string, sel params.Selection) (tracks, slices []string, err error) {
	tracks, missing := sel.Tracks.Filter(s.tracks)
	if len(missing) > 0 {
		return nil, nil, Unavailable(name, "unknown tracks %s", strings.Join(missing, ","))
	}
	if !s.sliced {
		if !sel.Slices.IsAll() {
			return nil, nil, Unavailable(name, "no slices declared, requested %s", sel.Slices)
		}
		return tracks, nil, nil
	}
	slices, missing = sel.Slices.Filter(s.slices)
	if len(missing) > 0 {
		return nil, nil, Unavailable(name, "unknown slices %s", strings.Join(missing, ","))
	}
	return tracks, slices, nil
}

// firstSeen appends v to names when not yet present.
func firstSeen(names []string, seen map[string]bool, v string) []string {
	if seen[v] {
		return names
	}
	seen[v] = true
	return append(names, v)
}
