package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/quintetdev/quintet/internal/config"
)

// CLIRunner spawns the external reasoning CLI (claude, gemini, codex, ...)
// once per invocation, with the role's permission tags and the prompt as
// the last argument. Each role runs inside its own session directory so
// conversation contexts never bleed between roles.
type CLIRunner struct {
	cfg config.Executor
}

// NewCLIRunner creates a runner that spawns the configured CLI.
func NewCLIRunner(cfg config.Executor) *CLIRunner {
	return &CLIRunner{cfg: cfg}
}

func (r *CLIRunner) Name() string { return r.cfg.Cmd }

// Invoke spawns the CLI with the request's capability profile.
//
// For cmd="claude" the full command looks like:
//
//	claude --print -p --allowedTools Read,Write --add-dir <workspace> "the prompt"
//
// The session directory is the process working directory; the engine keeps
// its conversation state there, which is what gives each role an isolated
// context. ContinueSession adds -c to resume that conversation.
func (r *CLIRunner) Invoke(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if req.SessionDir != "" {
		if err := os.MkdirAll(req.SessionDir, 0755); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}

	args := r.cfg.EffectiveArgs()

	if req.ContinueSession {
		args = append(args, "-c")
	}
	if len(req.Profile.Tools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.Profile.Tools, ","))
	}
	for _, d := range req.GrantDirs {
		args = append(args, "--add-dir", d)
	}

	// Prompt goes last; the known CLIs all accept it as a positional argument.
	args = append(args, req.Prompt)

	timeout := time.Duration(r.cfg.DefaultTimeout()) * time.Second
	if req.TimeoutSec > 0 {
		timeout = time.Duration(req.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.Cmd, args...)
	cmd.Dir = req.SessionDir
	cmd.Env = cleanEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	resp := &Response{
		Output:   strings.TrimSpace(stdout.String()),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			resp.ExitCode = -1
			resp.Err = fmt.Errorf("%s (%s) timed out after %ds", r.cfg.Cmd, req.Role, int(timeout.Seconds()))
			return resp, nil
		}

		if exitErr, ok := err.(*exec.ExitError); ok {
			resp.ExitCode = exitErr.ExitCode()
		} else {
			resp.ExitCode = -1
		}

		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			resp.Err = fmt.Errorf("%s (%s) exited with code %d: %s", r.cfg.Cmd, req.Role, resp.ExitCode, stderrStr)
		} else {
			resp.Err = fmt.Errorf("%s (%s) exited with code %d: %w", r.cfg.Cmd, req.Role, resp.ExitCode, err)
		}

		// Partial output may still be useful — return the response.
		return resp, nil
	}

	resp.ExitCode = 0
	return resp, nil
}

// cleanEnv strips CLAUDECODE so the engine can be invoked from inside a
// claude session without refusing to nest.
func cleanEnv() []string {
	env := os.Environ()
	out := env[:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "CLAUDECODE=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// CLIAvailable checks if the CLI command exists in PATH.
func CLIAvailable(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}
