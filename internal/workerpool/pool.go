// Package workerpool runs independent jobs with bounded parallelism, either
// on goroutines or in child processes of the running binary.
package workerpool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/trackreport/internal/monitoring"
	"github.com/banshee-data/trackreport/internal/timeutil"
)

// Strategy selects how jobs execute. It is fixed when the pool is built.
type Strategy string

const (
	Thread  Strategy = "thread"
	Process Strategy = "process"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Thread, Process:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown worker strategy %q", s)
}

// Job is one independent task. Local runs under the thread strategy; Args
// are passed to the child under the process strategy.
type Job struct {
	Name  string
	Local func(ctx context.Context) error
	Args  []string
}

// Result is the outcome of one job.
type Result struct {
	Name    string
	Err     error
	Elapsed time.Duration
}

// Runner executes a child and returns its stdout. A non-nil error with
// output still lets the pool decode the child's report.
type Runner func(ctx context.Context, args []string) ([]byte, error)

// Config configures a Pool.
type Config struct {
	Strategy Strategy
	Workers  int
	Clock    timeutil.Clock

	// Executable and Env apply to the process strategy. Executable
	// defaults to os.Executable; Env is appended to the parent's
	// environment.
	Executable string
	Env        []string
	Runner     Runner
}

// Pool runs jobs. It is safe for concurrent use.
type Pool struct {
	strategy Strategy
	workers  int
	clock    timeutil.Clock
	run      Runner
}

// New builds a pool.
func New(cfg Config) (*Pool, error) {
	if _, err := ParseStrategy(string(cfg.Strategy)); err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	p := &Pool{strategy: cfg.Strategy, workers: cfg.Workers, clock: cfg.Clock, run: cfg.Runner}
	if p.clock == nil {
		p.clock = timeutil.RealClock{}
	}
	if p.strategy == Process && p.run == nil {
		exe := cfg.Executable
		if exe == "" {
			var err error
			if exe, err = os.Executable(); err != nil {
				return nil, fmt.Errorf("locate executable for process workers: %w", err)
			}
		}
		p.run = execRunner(exe, cfg.Env)
	}
	return p, nil
}

// Strategy returns the configured strategy.
func (p *Pool) Strategy() Strategy { return p.strategy }

// Workers returns the parallelism limit.
func (p *Pool) Workers() int { return p.workers }

// Run executes every job and returns results in job order. A failing job
// never cancels its siblings; Run returns after all jobs finish.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, job := range jobs {
		g.Go(func() error {
			start := p.clock.Now()
			err := p.runOne(ctx, job)
			results[i] = Result{Name: job.Name, Err: err, Elapsed: p.clock.Since(start)}
			if err != nil {
				monitoring.Logf("worker %s failed: %v", job.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pool) runOne(ctx context.Context, job Job) (err error) {
	if p.strategy == Process {
		return p.runProcess(ctx, job)
	}
	if job.Local == nil {
		return fmt.Errorf("job %s has no local function", job.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Local(ctx)
}

func (p *Pool) runProcess(ctx context.Context, job Job) error {
	out, runErr := p.run(ctx, job.Args)
	rep, err := DecodeReport(out)
	if err != nil {
		msg := err.Error()
		if runErr != nil {
			msg = runErr.Error()
		}
		return &RemoteError{Job: job.Name, Kind: KindInternal, Msg: msg}
	}
	if rep.OK {
		return nil
	}
	kind := rep.Kind
	if kind == "" {
		kind = KindInternal
	}
	return &RemoteError{Job: job.Name, Kind: kind, Stage: rep.Stage, Msg: rep.Error}
}

func execRunner(exe string, env []string) Runner {
	return func(ctx context.Context, args []string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, exe, args...)
		cmd.Env = append(os.Environ(), env...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err := cmd.Run()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				err = fmt.Errorf("%w: %s", err, lastLine(msg))
			}
		}
		return stdout.Bytes(), err
	}
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
