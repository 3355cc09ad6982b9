// Package executor invokes the external reasoning engine for one role with
// one prompt and a declared capability profile. The engine's reasoning is
// opaque; this package only owns the process boundary.
package executor

import (
	"context"
	"time"

	"github.com/quintetdev/quintet/internal/role"
)

// Request contains everything one role invocation needs.
type Request struct {
	Role            role.Role
	Profile         role.Profile // ordered permission tags; enforced by the executor, not by us
	Prompt          string
	SessionDir      string   // per-role directory, isolates the conversation context
	GrantDirs       []string // extra directories the engine may touch (the shared workspace)
	ContinueSession bool     // resume the role's prior conversation
	TimeoutSec      int      // 0 = caller default
}

// Response is what we get back from the engine.
type Response struct {
	Output   string        // engine's text output
	ExitCode int           // 0 = success
	Duration time.Duration // wall-clock execution time
	Err      error         // spawn/timeout diagnostic, nil on clean exit
}

// Failed reports whether the invocation should be treated as a stage
// failure (the stage runner converts this into an error envelope, never
// into a raised error).
func (r *Response) Failed() bool {
	return r.ExitCode != 0 || r.Err != nil
}

// Runner is the adapter boundary to the reasoning engine.
type Runner interface {
	// Invoke runs one role invocation. A non-nil error means the process
	// could not even be spawned; engine-level failures come back in the
	// Response with a diagnostic in Err.
	Invoke(ctx context.Context, req Request) (*Response, error)

	// Name identifies the underlying engine (the CLI command).
	Name() string
}

// RunnerFunc adapts a function to the Runner interface. Used by tests and
// by the understand phase, which drives the engine outside the pipeline.
type RunnerFunc func(ctx context.Context, req Request) (*Response, error)

func (f RunnerFunc) Invoke(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

func (f RunnerFunc) Name() string { return "func" }
