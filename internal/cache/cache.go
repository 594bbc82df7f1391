// Package cache stores collected tracker trees keyed by tracker identity and
// canonical selection. Render output is never cached.
package cache

import (
	"context"
	"time"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
	"github.com/banshee-data/trackreport/internal/timeutil"
)

// MemoryDSN selects the in-memory cache in Open.
const MemoryDSN = ":memory:"

// Cache is the tracker data cache. A miss is not an error. Invalidate
// removes every entry of one identity atomically with respect to concurrent
// lookups of that identity.
type Cache interface {
	Lookup(ctx context.Context, identity string, sel params.Selection) (*datatree.Tree, bool, error)
	Store(ctx context.Context, identity string, sel params.Selection, tree *datatree.Tree) error
	Invalidate(ctx context.Context, identity string) (int, error)
	Entries(ctx context.Context, identity string) ([]EntryInfo, error)
	Summary(ctx context.Context) ([]IdentitySummary, error)
	Close() error
}

// EntryInfo describes one stored entry.
type EntryInfo struct {
	Identity  string    `json:"identity"`
	Key       string    `json:"key"`
	Selection string    `json:"selection"`
	Created   time.Time `json:"created"`
	Bytes     int64     `json:"bytes,omitempty"`
}

// IdentitySummary counts the entries of one identity.
type IdentitySummary struct {
	Identity string `json:"identity"`
	Entries  int    `json:"entries"`
}

// Open returns the in-memory cache for MemoryDSN and an SQLite cache at dsn
// otherwise.
func Open(dsn string, clock timeutil.Clock) (Cache, error) {
	if dsn == MemoryDSN {
		return NewMemory(clock), nil
	}
	return OpenSQLite(dsn, clock)
}
