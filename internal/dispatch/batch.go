package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trackreport/internal/monitoring"
	"github.com/banshee-data/trackreport/internal/workerpool"
)

// TaskResult is the outcome of one tracker in a batch run.
type TaskResult struct {
	Tracker string          `json:"tracker"`
	OK      bool            `json:"ok"`
	Elapsed time.Duration   `json:"elapsed"`
	Kind    workerpool.Kind `json:"kind,omitempty"`
	Stage   Stage           `json:"stage,omitempty"`
	Err     error           `json:"-"`
}

// BatchReport aggregates a run over every discovered tracker.
type BatchReport struct {
	RunID   string        `json:"run_id"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`
	Results []TaskResult  `json:"results"`
}

// Failed returns the failed tasks in tracker order.
func (r *BatchReport) Failed() []TaskResult {
	var out []TaskResult
	for _, t := range r.Results {
		if !t.OK {
			out = append(out, t)
		}
	}
	return out
}

// RunAll collects every discovered tracker without rendering. Each tracker
// is an independent pool job; failures are recorded per tracker and never
// stop the others.
func (d *Dispatcher) RunAll(ctx context.Context) *BatchReport {
	rep := &BatchReport{RunID: uuid.NewString(), Started: d.clock.Now()}
	log := monitoring.Logger().With().Str("run_id", rep.RunID).Logger()

	entries := d.deps.Trackers.Discovered()
	jobs := make([]workerpool.Job, 0, len(entries))
	for _, e := range entries {
		name := e.Identity.String()
		jobs = append(jobs, workerpool.Job{
			Name: name,
			Local: func(ctx context.Context) error {
				_, err := d.Dispatch(ctx, Request{Tracker: name, Renderer: NoRenderer})
				return err
			},
			Args: d.WorkerArgs(name),
		})
	}
	log.Info().Int("trackers", len(jobs)).Str("strategy", string(d.pool.Strategy())).Msg("running all trackers")

	for _, res := range d.pool.Run(ctx, jobs) {
		tr := TaskResult{Tracker: res.Name, OK: res.Err == nil, Elapsed: res.Elapsed, Err: res.Err}
		if res.Err != nil {
			tr.Kind = ErrorKind(res.Err)
			tr.Stage = StageOf(res.Err)
		}
		rep.Results = append(rep.Results, tr)
	}
	sort.Slice(rep.Results, func(i, j int) bool { return rep.Results[i].Tracker < rep.Results[j].Tracker })
	rep.Elapsed = d.clock.Since(rep.Started)
	log.Info().Int("failed", len(rep.Failed())).Dur("elapsed", rep.Elapsed).Msg("run finished")
	return rep
}

// WorkerArgs are the arguments a process worker is started with to
// collect one tracker.
func (d *Dispatcher) WorkerArgs(tracker string) []string {
	args := []string{"worker", "-t", tracker}
	if d.cfg.Path != "" {
		args = append(args, "-config", d.cfg.Path)
	}
	if d.cfg.TrackerDir != "" {
		args = append(args, "-w", d.cfg.TrackerDir)
	}
	if d.cfg.Cache != "" {
		args = append(args, "-cache", d.cfg.Cache)
	}
	return args
}

// Report runs a data-only dispatch of one tracker and summarizes it in the
// form a worker child prints.
func (d *Dispatcher) Report(ctx context.Context, tracker string) workerpool.Report {
	start := d.clock.Now()
	_, err := d.Dispatch(ctx, Request{Tracker: tracker, Renderer: NoRenderer})
	rep := workerpool.Report{Tracker: tracker, OK: err == nil, ElapsedMS: d.clock.Since(start).Milliseconds()}
	if err != nil {
		rep.Kind = ErrorKind(err)
		rep.Stage = string(StageOf(err))
		rep.Error = err.Error()
	}
	return rep
}
