package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackreport/internal/workerpool"
)

const trackersYAML = `
trackers:
  - name: Foo
    source: values
    values:
      south: {speed: [30, 32], count: [4, 3]}
      north: {speed: [20], count: [1]}
  - name: Broken
    source: csv
    file: missing.csv
    track_column: site
  - name: Limits
    kind: plain
    source: values
    values:
      south: {limit: 30}
`

const fooJSON = `{"south":{"speed":[30,32],"count":[4,3]},"north":{"speed":[20],"count":[1]}}`

type result struct {
	code   int
	stdout string
	stderr string
}

func invoke(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// flagsFor returns the flags every test passes: a tracker directory, no
// configuration file, the thread strategy and the given cache.
func flagsFor(dir, cache string) []string {
	return []string{"-config", filepath.Join(dir, "none.toml"), "-w", dir, "-strategy", "thread", "-cache", cache}
}

func cmdline(head []string, rest ...string) []string {
	return append(append([]string(nil), head...), rest...)
}

func trackerDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "speeds.yaml"), []byte(trackersYAML), 0o644))
	return dir
}

func TestDataOnly(t *testing.T) {
	dir := trackerDir(t)
	res := invoke(t, cmdline(flagsFor(dir, ":memory:"), "-r", "none", "-t", "Foo")...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.JSONEq(t, fooJSON, res.stdout)
	assert.NotContains(t, res.stdout, "Template start")
}

func TestTableWithSnippet(t *testing.T) {
	dir := trackerDir(t)
	res := invoke(t, cmdline(flagsFor(dir, ":memory:"), "-t", "Foo", "-o", "groupby=track", "-label", "speeds-table")...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "..Template start\n\n.. _speeds-table:\n\n.. report:: speeds.Foo\n   :render: table\n   :groupby: track\n")
	assert.Contains(t, res.stdout, "\n..Template ends\n")
	assert.Contains(t, res.stdout, "\ntitle: south\n\n.. list-table:: south")
	assert.Contains(t, res.stdout, "\ntitle: north\n")
}

func TestPositionalTrackerRenderer(t *testing.T) {
	dir := trackerDir(t)
	res := invoke(t, cmdline(flagsFor(dir, ":memory:"), "-no-print", "Foo", "json")...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.NotContains(t, res.stdout, "Template start")
	assert.Contains(t, res.stdout, "\ntitle: all\n")
	assert.Contains(t, res.stdout, `"south": {`)
}

func TestNoShow(t *testing.T) {
	dir := trackerDir(t)
	res := invoke(t, cmdline(flagsFor(dir, ":memory:"), "-t", "Foo", "-no-show")...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, ".. report:: speeds.Foo")
	assert.NotContains(t, res.stdout, "title:")
}

func TestNotebook(t *testing.T) {
	dir := trackerDir(t)
	res := invoke(t, cmdline(flagsFor(dir, ":memory:"), "-l", "notebook", "-t", "Foo", "-a", "south", "-o", "groupby=track")...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "..Template start\n\ncd "+dir+"\ntrackreport -r none -t Foo -a south -o groupby=track\n\n..Template ends\n")
	assert.Contains(t, res.stdout, `{"south":{"speed":[30,32],"count":[4,3]}}`)
}

func TestUnknownTracker(t *testing.T) {
	dir := trackerDir(t)
	res := invoke(t, cmdline(flagsFor(dir, ":memory:"), "-t", "Nope")...)
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "unknown tracker 'Nope': possible trackers are\n  speeds.Broken\n  speeds.Foo\n(the list above does not contain functions).\n", res.stdout)
}

func TestStageError(t *testing.T) {
	dir := trackerDir(t)
	res := invoke(t, cmdline(flagsFor(dir, ":memory:"), "-t", "Foo", "-m", "filter")...)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "error in stage transforming: ")

	res = invoke(t, cmdline(flagsFor(dir, ":memory:"), "-t", "Broken")...)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "error in stage fetching: ")
}

func TestRunAll(t *testing.T) {
	dir := trackerDir(t)
	res := invoke(t, flagsFor(dir, ":memory:")...)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "speeds.Foo")
	assert.Contains(t, res.stdout, "speeds.Limits")
	assert.Contains(t, res.stdout, "failed(DataUnavailable)")
	assert.Contains(t, res.stdout, "3 trackers, 1 failed")
	assert.NotContains(t, res.stdout, "library.")
}

func TestForceAndCacheCommands(t *testing.T) {
	dir := trackerDir(t)
	db := filepath.Join(t.TempDir(), "cache.db")
	common := flagsFor(dir, db)

	for _, tracks := range []string{"south", "north"} {
		res := invoke(t, cmdline(common, "-r", "none", "-t", "Foo", "-a", tracks)...)
		require.Equal(t, 0, res.code, res.stderr)
	}
	res := invoke(t, cmdline(common, "-r", "none", "-t", "Foo", "-f")...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "removed all data for tracker speeds.Foo: 2 entries\n")

	res = invoke(t, cmdline([]string{"cache", "list"}, common...)...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "speeds.Foo")

	res = invoke(t, cmdline(cmdline([]string{"cache", "invalidate"}, common...), "Foo")...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "removed all data for tracker speeds.Foo: 1 entries\n", res.stdout)

	res = invoke(t, cmdline([]string{"cache", "migrate"}, common...)...)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "schema version 2 (dirty=false)")

	res = invoke(t, cmdline([]string{"cache", "migrate"}, flagsFor(dir, ":memory:")...)...)
	assert.Equal(t, 1, res.code)
}

func TestWorker(t *testing.T) {
	dir := trackerDir(t)
	res := invoke(t, cmdline(cmdline([]string{"worker"}, flagsFor(dir, ":memory:")...), "-t", "Foo")...)
	require.Equal(t, 0, res.code, res.stderr)
	rep, err := workerpool.DecodeReport([]byte(res.stdout))
	require.NoError(t, err)
	assert.True(t, rep.OK)
	assert.Equal(t, "Foo", rep.Tracker)

	res = invoke(t, cmdline(cmdline([]string{"worker"}, flagsFor(dir, ":memory:")...), "-t", "Broken")...)
	assert.Equal(t, 1, res.code)
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &raw))
	assert.Equal(t, "DataUnavailable", raw["kind"])
	assert.Equal(t, "fetching", raw["stage"])
}

func TestMissingTrackerDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nowhere")
	res := invoke(t, cmdline(flagsFor(dir, ":memory:"), "-t", "Foo")...)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "tracker search path")
}

func TestVersionAndHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run(context.Background(), []string{"-version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "trackreport dev")

	stdout.Reset()
	assert.Equal(t, 0, run(context.Background(), []string{"help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Usage:")

	assert.Equal(t, 2, run(context.Background(), []string{"a", "b", "c"}, &stdout, &stderr))
}
