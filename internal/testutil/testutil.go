// Package testutil provides shared test fixtures: trackers that count their
// invocations and small tree builders.
package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/banshee-data/trackreport/internal/datatree"
	"github.com/banshee-data/trackreport/internal/params"
	"github.com/banshee-data/trackreport/internal/tracker"
)

// CountingTracker returns a fixed tree, or Err, and counts Collect calls.
// Block, when set, is waited on before returning so tests can hold a
// collect in flight.
type CountingTracker struct {
	Tree  *datatree.Tree
	Err   error
	Block <-chan struct{}

	calls atomic.Int64
	mu    sync.Mutex
	last  params.Selection
}

// Collect implements tracker.Tracker.
func (c *CountingTracker) Collect(ctx context.Context, sel params.Selection) (*datatree.Tree, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.last = sel
	c.mu.Unlock()
	if c.Block != nil {
		select {
		case <-c.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Tree, nil
}

// Calls returns the number of Collect invocations.
func (c *CountingTracker) Calls() int { return int(c.calls.Load()) }

// LastSelection returns the selection of the most recent call.
func (c *CountingTracker) LastSelection() params.Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Entry wraps c in a derived registry entry under module.name. Every
// instance shares c, so Calls counts across dispatches.
func (c *CountingTracker) Entry(module, name string, options ...string) tracker.Entry {
	return tracker.Entry{
		Identity: tracker.Identity{Module: module, Name: name},
		Kind:     tracker.Derived,
		Options:  options,
		New:      func(params.Options) (tracker.Tracker, error) { return c, nil },
	}
}

// PlainEntry wraps c in a plain registry entry.
func (c *CountingTracker) PlainEntry(module, name string) tracker.Entry {
	return tracker.Entry{
		Identity: tracker.Identity{Module: module, Name: name},
		Kind:     tracker.Plain,
		Func:     c,
	}
}

// SpeedTree builds the two-track fixture used across packages:
// south -> {speed, count}, north -> {speed, count}.
func SpeedTree() *datatree.Tree {
	return datatree.New().
		Set("south", datatree.New().
			Set("speed", []float64{30, 32, 34, 40}).
			Set("count", []int64{4, 3, 2, 1})).
		Set("north", datatree.New().
			Set("speed", []float64{20, 25}).
			Set("count", []int64{1, 1}))
}

// Leaves builds a single-level tree of numeric sequences.
func Leaves(kv ...any) *datatree.Tree {
	t := datatree.New()
	for i := 0; i+1 < len(kv); i += 2 {
		t.Set(kv[i].(string), kv[i+1])
	}
	return t
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
