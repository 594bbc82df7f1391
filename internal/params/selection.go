package params

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// AllName is the reserved set value meaning "every track" or "every slice".
const AllName = "all"

// Set selects either every name ("all") or an explicit set of names.
// The zero value selects all.
type Set struct {
	names []string
}

// All returns a set selecting everything.
func All() Set { return Set{} }

// Of returns an explicit set. Names are deduplicated and sorted; passing no
// names or the reserved name "all" yields All.
func Of(names ...string) Set {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		if n == AllName {
			return All()
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return Set{names: out}
}

// ParseSet parses a comma separated list. An empty string or "all" selects
// everything.
func ParseSet(s string) Set {
	return Of(SplitList(s)...)
}

// IsAll reports whether the set selects everything.
func (s Set) IsAll() bool { return len(s.names) == 0 }

// Names returns the explicit names in sorted order, nil for All.
func (s Set) Names() []string {
	if s.IsAll() {
		return nil
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Contains reports whether name is selected.
func (s Set) Contains(name string) bool {
	if s.IsAll() {
		return true
	}
	i := sort.SearchStrings(s.names, name)
	return i < len(s.names) && s.names[i] == name
}

// Filter returns the members of available selected by s, in the order of
// available, plus the explicitly requested names that available lacks.
func (s Set) Filter(available []string) (selected, missing []string) {
	if s.IsAll() {
		return append([]string(nil), available...), nil
	}
	have := toSet(available)
	for _, n := range available {
		if s.Contains(n) {
			selected = append(selected, n)
		}
	}
	for _, n := range s.names {
		if !have[n] {
			missing = append(missing, n)
		}
	}
	return selected, missing
}

// String returns "all" or the comma separated names.
func (s Set) String() string {
	if s.IsAll() {
		return AllName
	}
	return strings.Join(s.names, ",")
}

// Selection addresses a subset of a tracker's data space.
type Selection struct {
	Tracks  Set
	Slices  Set
	Options Options
}

// Canonical renders the selection in a stable form: sets sorted, options
// sorted by key. Two selections with the same canonical form address the
// same data.
func (s Selection) Canonical() string {
	var b strings.Builder
	b.WriteString("tracks=")
	b.WriteString(s.Tracks.String())
	b.WriteString(";slices=")
	b.WriteString(s.Slices.String())
	b.WriteString(";options=")
	b.WriteString(s.Options.Canonical())
	return b.String()
}

// Key returns the hex SHA-256 of the canonical form.
func (s Selection) Key() string {
	sum := sha256.Sum256([]byte(s.Canonical()))
	return hex.EncodeToString(sum[:])
}
