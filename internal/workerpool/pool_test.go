package workerpool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackreport/internal/params"
	"github.com/banshee-data/trackreport/internal/tracker"
	"github.com/banshee-data/trackreport/internal/transform"
)

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{Strategy: "fork", Workers: 1})
	assert.Error(t, err)
	_, err = New(Config{Strategy: Thread, Workers: 0})
	assert.Error(t, err)

	p, err := New(Config{Strategy: Thread, Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, Thread, p.Strategy())
	assert.Equal(t, 3, p.Workers())
}

func TestThread_FailureDoesNotCancelSiblings(t *testing.T) {
	p, err := New(Config{Strategy: Thread, Workers: 2})
	require.NoError(t, err)

	var ran atomic.Int32
	jobs := []Job{
		{Name: "a", Local: func(ctx context.Context) error { ran.Add(1); return nil }},
		{Name: "b", Local: func(ctx context.Context) error {
			ran.Add(1)
			return tracker.Unavailable("B", "no rows")
		}},
		{Name: "c", Local: func(ctx context.Context) error { ran.Add(1); return nil }},
		{Name: "d", Local: func(ctx context.Context) error { panic("kaboom") }},
	}
	res := p.Run(context.Background(), jobs)

	require.Len(t, res, 4)
	assert.Equal(t, int32(3), ran.Load())
	assert.Equal(t, "a", res[0].Name)
	assert.NoError(t, res[0].Err)
	assert.ErrorIs(t, res[1].Err, tracker.ErrDataUnavailable)
	assert.NoError(t, res[2].Err)
	require.Error(t, res[3].Err)
	assert.Contains(t, res[3].Err.Error(), "panicked")
}

func TestThread_RespectsLimit(t *testing.T) {
	p, err := New(Config{Strategy: Thread, Workers: 2})
	require.NoError(t, err)

	var cur, peak atomic.Int32
	job := func(ctx context.Context) error {
		n := cur.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		cur.Add(-1)
		return nil
	}
	var jobs []Job
	for i := 0; i < 8; i++ {
		jobs = append(jobs, Job{Name: fmt.Sprint(i), Local: job})
	}
	p.Run(context.Background(), jobs)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestProcess_DecodesReports(t *testing.T) {
	outputs := map[string]string{
		"ok":      `{"tracker":"a","ok":true,"elapsed_ms":3}`,
		"unavail": "noise from the tracker\n" + `{"tracker":"b","ok":false,"kind":"DataUnavailable","stage":"fetching","error":"no rows"}`,
		"config":  `{"tracker":"c","ok":false,"kind":"Configuration","stage":"resolving","error":"bad option"}`,
		"garbage": `not json`,
	}
	runner := func(ctx context.Context, args []string) ([]byte, error) {
		out := outputs[args[len(args)-1]]
		if args[len(args)-1] == "ok" {
			return []byte(out), nil
		}
		return []byte(out), errors.New("exit status 1")
	}
	p, err := New(Config{Strategy: Process, Workers: 2, Runner: runner})
	require.NoError(t, err)

	res := p.Run(context.Background(), []Job{
		{Name: "a", Args: []string{"worker", "ok"}},
		{Name: "b", Args: []string{"worker", "unavail"}},
		{Name: "c", Args: []string{"worker", "config"}},
		{Name: "d", Args: []string{"worker", "garbage"}},
	})

	assert.NoError(t, res[0].Err)

	var remote *RemoteError
	require.ErrorAs(t, res[1].Err, &remote)
	assert.Equal(t, "fetching", remote.Stage)
	assert.ErrorIs(t, res[1].Err, tracker.ErrDataUnavailable)
	assert.NotErrorIs(t, res[1].Err, params.ErrConfiguration)

	assert.ErrorIs(t, res[2].Err, params.ErrConfiguration)

	require.ErrorAs(t, res[3].Err, &remote)
	assert.Equal(t, KindInternal, remote.Kind)
	assert.Contains(t, remote.Msg, "exit status 1")
}

func TestClassifyAndSentinel(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{nil, ""},
		{&tracker.UnknownTrackerError{Name: "x"}, KindUnknownTracker},
		{params.Missing("renderer table", "x"), KindConfiguration},
		{fmt.Errorf("wrapped: %w", tracker.Unavailable("t", "gone")), KindDataUnavailable},
		{&transform.TransformError{Index: 0, Name: "stats", Err: errors.New("x")}, KindTransform},
		{errors.New("boom"), KindInternal},
	}
	for _, c := range cases {
		assert.Equal(t, c.kind, Classify(c.err))
		if c.kind != "" && c.kind != KindInternal {
			assert.ErrorIs(t, c.kind.Sentinel(), c.kind.Sentinel())
			assert.ErrorIs(t, &RemoteError{Kind: c.kind}, c.kind.Sentinel())
		}
	}
	assert.Nil(t, KindInternal.Sentinel())
}

func TestDecodeReport_Empty(t *testing.T) {
	_, err := DecodeReport(nil)
	assert.Error(t, err)

	_, err = DecodeReport([]byte("just chatter\n{not json\n"))
	assert.Error(t, err)
}

func TestDecodeReport_IgnoresEarlierOutput(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("loading speeds.csv\n[debug] 3 tracks {south,north,east}\n")
	buf.WriteString(`{"note": "tracker printed its own json"}` + "\n")
	require.NoError(t, WriteReport(&buf, Report{Tracker: "speeds.Foo"}))
	buf.WriteString("\n")

	rep, err := DecodeReport(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "speeds.Foo", rep.Tracker)
}

// TestHelperProcess is re-executed as a worker child by TestProcess_Exec.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("TRACKREPORT_WORKER_HELPER") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(3)
	}
	switch args[1] {
	case "ok":
		_ = WriteReport(os.Stdout, Report{Tracker: "a", OK: true})
		os.Exit(0)
	case "fail":
		_ = WriteReport(os.Stdout, Report{Tracker: "b", Kind: KindDataUnavailable, Stage: "fetching", Error: "no rows"})
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, "boom")
		os.Exit(2)
	}
}

func TestProcess_Exec(t *testing.T) {
	p, err := New(Config{
		Strategy:   Process,
		Workers:    2,
		Executable: os.Args[0],
		Env:        []string{"TRACKREPORT_WORKER_HELPER=1"},
	})
	require.NoError(t, err)

	helper := func(mode string) []string {
		return []string{"-test.run=^TestHelperProcess$", "--", mode}
	}
	res := p.Run(context.Background(), []Job{
		{Name: "a", Args: helper("ok")},
		{Name: "b", Args: helper("fail")},
		{Name: "c", Args: helper("crash")},
	})

	assert.NoError(t, res[0].Err)
	assert.ErrorIs(t, res[1].Err, tracker.ErrDataUnavailable)

	var remote *RemoteError
	require.ErrorAs(t, res[2].Err, &remote)
	assert.Equal(t, KindInternal, remote.Kind)
	assert.Contains(t, remote.Msg, "boom")
}
