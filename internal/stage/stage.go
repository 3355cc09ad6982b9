// Package stage runs one role execution end to end: checkpoint branch,
// executor invocation, artifact capture, verdict classification, and
// escalation handling. A stage never raises — executor failure degrades
// into a Result carrying an error envelope, so the orchestrator always
// has something to classify and record.
package stage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quintetdev/quintet/internal/checkpoint"
	"github.com/quintetdev/quintet/internal/escalate"
	"github.com/quintetdev/quintet/internal/executor"
	"github.com/quintetdev/quintet/internal/role"
	"github.com/quintetdev/quintet/internal/verdict"
	"github.com/quintetdev/quintet/internal/workspace"
)

// Result is the outcome of one stage. It is a value, never an error:
// Failed marks executor-level failure, Verdict is always classified, and
// Escalation is non-nil when the role asked for human input.
type Result struct {
	Role       role.Role
	Iteration  int
	Output     string
	Verdict    verdict.Verdict
	Artifact   string // workspace-relative path
	Failed     bool
	Escalation *escalate.Escalation
	Duration   time.Duration
}

// Options configure a Runner.
type Options struct {
	// ProfileFor resolves a role's capability profile; defaults to the
	// built-in table.
	ProfileFor func(role.Role) role.Profile
	// TimeoutSec bounds each executor invocation; 0 means the executor
	// default.
	TimeoutSec int
	// ContinueSessions threads -c through to the executor so each role
	// keeps its conversation across iterations.
	ContinueSessions bool
}

// Runner executes stages for one workspace.
type Runner struct {
	ws          *workspace.Workspace
	exec        executor.Runner
	checkpoints *checkpoint.Store
	resolver    escalate.Resolver
	opts        Options
}

// New creates a stage runner.
func New(ws *workspace.Workspace, exec executor.Runner, cp *checkpoint.Store, resolver escalate.Resolver, opts Options) *Runner {
	if opts.ProfileFor == nil {
		opts.ProfileFor = role.ProfileFor
	}
	return &Runner{ws: ws, exec: exec, checkpoints: cp, resolver: resolver, opts: opts}
}

// Run executes one stage. Checkpoint trouble is journaled and survived;
// only the surrounding process dying can stop a stage from producing a
// Result.
func (r *Runner) Run(ctx context.Context, rl role.Role, iteration int, prompt string) Result {
	res := Result{Role: rl, Iteration: iteration}
	r.ws.Journal("stage %s iteration %d started", rl, iteration)

	if err := r.checkpoints.EnsureBranch(rl); err != nil {
		r.ws.Journal("warning: checkpoint branch for %s: %v", rl, err)
	}

	sessionDir := r.ws.SessionDir(rl)
	os.MkdirAll(sessionDir, 0755)

	start := time.Now()
	resp, err := r.exec.Invoke(ctx, executor.Request{
		Role:            rl,
		Profile:         r.opts.ProfileFor(rl),
		Prompt:          prompt,
		SessionDir:      sessionDir,
		GrantDirs:       []string{r.ws.Root},
		ContinueSession: r.opts.ContinueSessions,
		TimeoutSec:      r.opts.TimeoutSec,
	})
	res.Duration = time.Since(start)

	switch {
	case err != nil:
		res.Failed = true
		res.Output = envelope(rl, err.Error(), "")
	case resp.Failed():
		diagnostic := fmt.Sprintf("exit code %d", resp.ExitCode)
		if resp.Err != nil {
			diagnostic = resp.Err.Error()
		}
		res.Failed = true
		res.Output = envelope(rl, diagnostic, resp.Output)
		res.Duration = resp.Duration
	default:
		res.Output = resp.Output
		res.Duration = resp.Duration
	}

	artifactName := fmt.Sprintf("iter-%02d-%s.md", iteration, rl)
	artifact, aerr := r.ws.WriteArtifact(rl, artifactName, res.Output)
	if aerr != nil {
		r.ws.Journal("warning: write artifact for %s: %v", rl, aerr)
	} else {
		res.Artifact = artifact
	}

	committed, cerr := r.checkpoints.Commit(rl, fmt.Sprintf("iteration %d %s output", iteration, rl))
	switch {
	case cerr != nil:
		r.ws.Journal("warning: checkpoint commit for %s: %v", rl, cerr)
	case committed:
		r.ws.Journal("checkpoint: committed %s iteration %d", rl, iteration)
	default:
		r.ws.Journal("checkpoint: %s iteration %d produced no changes", rl, iteration)
	}

	res.Verdict = verdict.Classify(rl, res.Output)

	if esc := escalate.Detect(res.Output); esc != nil {
		esc.Role = rl
		esc.Iteration = iteration
		r.handleEscalation(esc)
		res.Escalation = esc
	}

	r.ws.Journal("stage %s iteration %d finished: verdict=%s failed=%v", rl, iteration, res.Verdict, res.Failed)
	return res
}

// handleEscalation persists the escalation artifact, blocks on the
// resolver, threads the resolution into the shared understanding so every
// later prompt sees it, and checkpoints the exchange under the human tag.
func (r *Runner) handleEscalation(esc *escalate.Escalation) {
	esc.ArtifactPath = r.ws.EscalationPath(esc.Iteration, esc.Role)
	if err := os.WriteFile(esc.ArtifactPath, []byte(esc.Artifact()), 0644); err != nil {
		r.ws.Journal("warning: write escalation artifact: %v", err)
		esc.ArtifactPath = ""
	}

	r.ws.Journal("escalation from %s: %s", esc.Role, firstLine(esc.Question))

	answer, err := r.resolver.Resolve(esc)
	if err != nil {
		r.ws.Journal("warning: escalation resolution: %v", err)
		answer = escalate.NoResponse
	}
	esc.Resolution = answer

	if err := r.ws.AppendDoc(workspace.DocShared, esc.Section()); err != nil {
		r.ws.Journal("warning: record escalation answer: %v", err)
	}

	if _, err := r.checkpoints.CommitAll("human", fmt.Sprintf("answer escalation from %s (iteration %d)", esc.Role, esc.Iteration)); err != nil {
		r.ws.Journal("warning: checkpoint escalation answer: %v", err)
	}

	r.ws.Journal("escalation resolved: %s", firstLine(esc.Resolution))
}

// envelope renders an executor failure as stage output so downstream
// classification and audit always have text to work with.
func envelope(rl role.Role, diagnostic, partial string) string {
	var sb strings.Builder
	sb.WriteString("EXECUTOR FAILURE\n\n")
	sb.WriteString("Role: " + string(rl) + "\n")
	sb.WriteString("Diagnostic: " + diagnostic + "\n")
	if strings.TrimSpace(partial) != "" {
		sb.WriteString("\n--- partial output ---\n")
		sb.WriteString(partial)
	}
	return sb.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
