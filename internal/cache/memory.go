package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
	"github.com/banshee-data/trackreport/internal/timeutil"
)

// Memory is an in-process cache with one shard per identity. Identities
// never share a shard lock; invalidation detaches the whole shard under the
// map lock, so a reader sees either the full old set or nothing.
type Memory struct {
	clock timeutil.Clock

	mu     sync.RWMutex
	shards map[string]*shard
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

type memEntry struct {
	info EntryInfo
	tree *datatree.Tree
}

// NewMemory creates an empty memory cache.
func NewMemory(clock timeutil.Clock) *Memory {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Memory{clock: clock, shards: make(map[string]*shard)}
}

func (m *Memory) shard(identity string, create bool) *shard {
	m.mu.RLock()
	s := m.shards[identity]
	m.mu.RUnlock()
	if s != nil || !create {
		return s
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s = m.shards[identity]; s == nil {
		s = &shard{entries: make(map[string]memEntry)}
		m.shards[identity] = s
	}
	return s
}

// Lookup returns a copy of the stored tree for the selection; callers may
// modify it freely.
func (m *Memory) Lookup(_ context.Context, identity string, sel params.Selection) (*datatree.Tree, bool, error) {
	s := m.shard(identity, false)
	if s == nil {
		return nil, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[sel.Key()]
	if !ok {
		return nil, false, nil
	}
	return e.tree.Clone(), true, nil
}

// Store keeps a copy of tree for the selection.
func (m *Memory) Store(_ context.Context, identity string, sel params.Selection, tree *datatree.Tree) error {
	key := sel.Key()
	e := memEntry{
		info: EntryInfo{Identity: identity, Key: key, Selection: sel.Canonical(), Created: m.clock.Now()},
		tree: tree.Clone(),
	}
	s := m.shard(identity, true)
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// Invalidate drops every entry of identity and reports how many there were.
func (m *Memory) Invalidate(_ context.Context, identity string) (int, error) {
	m.mu.Lock()
	s := m.shards[identity]
	delete(m.shards, identity)
	m.mu.Unlock()
	if s == nil {
		return 0, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Entries lists the entries of identity, oldest first.
func (m *Memory) Entries(_ context.Context, identity string) ([]EntryInfo, error) {
	s := m.shard(identity, false)
	if s == nil {
		return nil, nil
	}
	s.mu.RLock()
	out := make([]EntryInfo, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.info)
	}
	s.mu.RUnlock()
	sortInfos(out)
	return out, nil
}

// Summary counts entries per identity.
func (m *Memory) Summary(_ context.Context) ([]IdentitySummary, error) {
	m.mu.RLock()
	shards := make(map[string]*shard, len(m.shards))
	for id, s := range m.shards {
		shards[id] = s
	}
	m.mu.RUnlock()

	var out []IdentitySummary
	for id, s := range shards {
		s.mu.RLock()
		n := len(s.entries)
		s.mu.RUnlock()
		if n > 0 {
			out = append(out, IdentitySummary{Identity: id, Entries: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func sortInfos(infos []EntryInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].Created.Equal(infos[j].Created) {
			return infos[i].Created.Before(infos[j].Created)
		}
		return infos[i].Key < infos[j].Key
	})
}
