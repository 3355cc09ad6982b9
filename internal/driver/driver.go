// Package driver wires a configured engine, workspace, checkpoint store
// and orchestrator into runnable units: a single task run, or queue mode
// draining a task file with optional parallelism across independent
// workspaces.
package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/quintetdev/quintet/internal/checkpoint"
	"github.com/quintetdev/quintet/internal/config"
	"github.com/quintetdev/quintet/internal/escalate"
	"github.com/quintetdev/quintet/internal/executor"
	"github.com/quintetdev/quintet/internal/pipeline"
	"github.com/quintetdev/quintet/internal/stage"
	"github.com/quintetdev/quintet/internal/store"
	"github.com/quintetdev/quintet/internal/verdict"
	"github.com/quintetdev/quintet/internal/workspace"
)

// Options configure a Driver.
type Options struct {
	BaseDir  string // parent directory for workspace roots
	Engine   executor.Runner
	Config   *config.Config
	Audit    *store.Store      // may be nil
	Resolver escalate.Resolver // nil = sentinel resolver
	Logf     func(format string, args ...any)
}

// Driver runs pipelines over named workspaces.
type Driver struct {
	opts Options
}

// New creates a driver.
func New(opts Options) *Driver {
	if opts.Resolver == nil {
		opts.Resolver = escalate.SentinelResolver{}
	}
	if opts.Logf == nil {
		opts.Logf = func(format string, args ...any) {
			fmt.Printf(format+"\n", args...)
		}
	}
	return &Driver{opts: opts}
}

// Policy derives the unrecognized-verdict policy from configuration.
func Policy(cfg *config.Config) verdict.Policy {
	return verdict.Policy{
		ReviewBlocks:  cfg.Pipeline.Unrecognized.ReviewBlocks,
		TestBlocks:    cfg.Pipeline.Unrecognized.TestBlocks,
		UserSatisfies: cfg.Pipeline.Unrecognized.UserSatisfies,
	}
}

// Bounds derives the loop bounds from configuration.
func Bounds(cfg *config.Config) pipeline.Bounds {
	return pipeline.Bounds{
		MaxIterations: cfg.Pipeline.MaxOuter(),
		MaxInnerLoops: cfg.Pipeline.MaxInner(),
	}
}

// RunTask executes one pipeline run in the named workspace, creating the
// workspace if needed.
func (d *Driver) RunTask(ctx context.Context, name, task string) (*pipeline.RunResult, error) {
	ws, err := workspace.Open(name, filepath.Join(d.opts.BaseDir, name))
	if err != nil {
		return nil, fmt.Errorf("open workspace %s: %w", name, err)
	}

	cp, err := checkpoint.Open(ws.Root)
	if err != nil {
		return nil, fmt.Errorf("open checkpoints for %s: %w", name, err)
	}

	runner := stage.New(ws, d.opts.Engine, cp, d.opts.Resolver, stage.Options{
		TimeoutSec:       d.opts.Config.Executor.TimeoutSec,
		ContinueSessions: d.opts.Config.Pipeline.ContinueSessions,
	})

	orch := pipeline.New(ws, runner, cp, d.opts.Audit, Policy(d.opts.Config), Bounds(d.opts.Config))
	return orch.Run(ctx, task)
}

// TaskResult is the outcome of one queued task.
type TaskResult struct {
	Task      string
	Workspace string
	Status    store.RunStatus
	Duration  time.Duration
	Err       error
}

// ReadQueue parses a queue file: one task per line, blank lines and
// #-comments skipped.
func ReadQueue(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}

	var tasks []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tasks = append(tasks, line)
	}
	return tasks, nil
}

// DrainQueue runs every task currently in the queue file, truncates the
// file, and returns per-task results. One task's failure is logged and
// never stops the rest. parallel > 1 runs tasks concurrently, each in a
// derived workspace — queue tasks share no state, so isolation is just
// distinct directories.
func (d *Driver) DrainQueue(ctx context.Context, path, baseName string, parallel int) ([]TaskResult, error) {
	tasks, err := ReadQueue(path)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	// Consume the queue up front: a crash mid-drain loses queue entries,
	// never duplicates runs.
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return nil, fmt.Errorf("truncate queue: %w", err)
	}

	if parallel <= 1 || len(tasks) <= 1 {
		return d.drainSequential(ctx, tasks, baseName), nil
	}
	return d.drainParallel(ctx, tasks, baseName, parallel), nil
}

func (d *Driver) drainSequential(ctx context.Context, tasks []string, baseName string) []TaskResult {
	results := make([]TaskResult, len(tasks))
	for i, task := range tasks {
		results[i] = d.runQueued(ctx, task, queueWorkspace(baseName, i))
	}
	return results
}

func (d *Driver) drainParallel(ctx context.Context, tasks []string, baseName string, parallel int) []TaskResult {
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup
	var mu sync.Mutex

	results := make([]TaskResult, len(tasks))

	for i, task := range tasks {
		wg.Add(1)
		sem <- struct{}{} // Acquire worker slot.

		go func(idx int, t string) {
			defer wg.Done()
			defer func() { <-sem }() // Release worker slot.

			r := d.runQueued(ctx, t, queueWorkspace(baseName, idx))

			mu.Lock()
			results[idx] = r
			mu.Unlock()
		}(i, task)
	}

	wg.Wait()
	return results
}

func (d *Driver) runQueued(ctx context.Context, task, wsName string) TaskResult {
	start := time.Now()
	d.opts.Logf("queue: running %q in workspace %s", firstLine(task), wsName)

	res, err := d.RunTask(ctx, wsName, task)
	tr := TaskResult{Task: task, Workspace: wsName, Duration: time.Since(start), Err: err}
	if err != nil {
		d.opts.Logf("queue: %q failed: %v", firstLine(task), err)
		tr.Status = store.StatusFailed
		return tr
	}

	tr.Status = res.Status
	d.opts.Logf("queue: %q finished %s after %d iteration(s)", firstLine(task), res.Status, res.Iterations)
	return tr
}

// RunQueue polls the queue file until the context ends, draining whatever
// appears and sleeping a fixed backoff when the queue is empty.
func (d *Driver) RunQueue(ctx context.Context, path, baseName string, parallel int, backoff time.Duration) error {
	for {
		if _, err := d.DrainQueue(ctx, path, fmt.Sprintf("%s-%d", baseName, time.Now().Unix()), parallel); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.opts.Logf("queue: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func queueWorkspace(baseName string, idx int) string {
	return fmt.Sprintf("%s-%02d", baseName, idx+1)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
