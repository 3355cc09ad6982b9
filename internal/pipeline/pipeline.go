// Package pipeline orchestrates the five-role development loop: plan,
// implement, review, test, use. One goroutine of control walks an explicit
// state machine; stages execute strictly in sequence and every stage
// boundary merges that role's checkpoint branch back into the trunk.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/quintetdev/quintet/internal/checkpoint"
	"github.com/quintetdev/quintet/internal/prompt"
	"github.com/quintetdev/quintet/internal/role"
	"github.com/quintetdev/quintet/internal/stage"
	"github.com/quintetdev/quintet/internal/store"
	"github.com/quintetdev/quintet/internal/verdict"
	"github.com/quintetdev/quintet/internal/workspace"
)

// maxSummaryLen bounds the per-iteration summary folded into the
// cumulative understanding document.
const maxSummaryLen = 2000

// Orchestrator drives one run over one workspace.
type Orchestrator struct {
	ws          *workspace.Workspace
	runner      *stage.Runner
	checkpoints *checkpoint.Store
	prompts     *prompt.Builder
	audit       *store.Store // optional; nil disables the audit trail
	policy      verdict.Policy
	bounds      Bounds
}

// New creates an orchestrator. audit may be nil.
func New(ws *workspace.Workspace, runner *stage.Runner, cp *checkpoint.Store, audit *store.Store, policy verdict.Policy, bounds Bounds) *Orchestrator {
	return &Orchestrator{
		ws:          ws,
		runner:      runner,
		checkpoints: cp,
		prompts:     prompt.New(ws),
		audit:       audit,
		policy:      policy,
		bounds:      bounds,
	}
}

// RunResult is the terminal outcome of a run.
type RunResult struct {
	RunID      string
	Status     store.RunStatus // done or incomplete
	Iterations int
	Stages     []stage.Result
}

// outputs carries the latest text each role produced, threading plans
// forward and feedback backward between prompts.
type outputs struct {
	plan           string
	implementation string
	review         string
	test           string
	user           string
}

// Run executes the pipeline until DONE or INCOMPLETE. The returned error
// covers setup problems only; stage failures degrade per stage semantics
// and still end in a terminal state with a persisted report.
func (o *Orchestrator) Run(ctx context.Context, task string) (*RunResult, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("task must not be empty")
	}

	// The task is the first checkpoint of the run.
	if err := o.ws.WriteDoc(workspace.DocTask, task); err != nil {
		return nil, fmt.Errorf("record task: %w", err)
	}
	if _, err := o.checkpoints.CommitAll("pipeline", "record task"); err != nil {
		o.ws.Journal("warning: checkpoint task: %v", err)
	}

	var runID string
	if o.audit != nil {
		if run, err := o.audit.StartRun(o.ws.Name, task); err == nil {
			runID = run.ID
		} else {
			o.ws.Journal("warning: audit start: %v", err)
		}
	}

	o.ws.Journal("run started: %s", firstLine(task))

	result := &RunResult{RunID: runID}
	state := StatePlan
	counters := Counters{Iteration: 1}
	var out outputs

	for !state.Terminal() {
		if ctx.Err() != nil {
			o.ws.Journal("run cancelled: %v", ctx.Err())
			state = StateIncomplete
			break
		}

		rl := stageRole(state)
		res := o.runner.Run(ctx, rl, counters.Iteration, o.buildPrompt(state, task, counters, out))
		result.Stages = append(result.Stages, res)
		o.recordStage(runID, res)
		o.absorb(state, res.Output, &out)

		// The trunk absorbs every stage, failed ones included, so the
		// next role always sees the latest artifacts.
		if err := o.checkpoints.MergeToTrunk(rl); err != nil {
			o.ws.Journal("warning: merge %s to trunk: %v", rl, err)
			o.event(runID, "checkpoint", fmt.Sprintf("merge conflict on %s: %v", rl, err))
		}

		next, nextCounters := Next(state, res.Verdict, counters, o.policy, o.bounds)
		o.ws.Journal("transition: %s -> %s (verdict=%s iteration=%d)", state, next, res.Verdict, nextCounters.Iteration)
		o.event(runID, "transition", fmt.Sprintf("%s -> %s", state, next))

		// A finished iteration that did not satisfy the user folds its
		// learnings into the cumulative understanding.
		if state == StateUser && next == StatePlan {
			o.foldIteration(counters.Iteration, res.Verdict, out.user)
		}

		state, counters = next, nextCounters
	}

	result.Status = store.StatusIncomplete
	if state == StateDone {
		result.Status = store.StatusDone
	}
	result.Iterations = counters.Iteration

	o.writeReport(result, task, out)
	if _, err := o.checkpoints.CommitAll("pipeline", fmt.Sprintf("final report (%s)", result.Status)); err != nil {
		o.ws.Journal("warning: checkpoint final report: %v", err)
	}

	if o.audit != nil && runID != "" {
		if err := o.audit.EndRun(runID, result.Status, result.Iterations); err != nil {
			o.ws.Journal("warning: audit end: %v", err)
		}
	}

	o.ws.Journal("run finished: %s after %d iteration(s)", result.Status, result.Iterations)
	return result, nil
}

// stageRole maps a non-terminal state to the role that executes it.
func stageRole(s State) role.Role {
	switch s {
	case StatePlan:
		return role.Planner
	case StateImplement:
		return role.Implementer
	case StateReview:
		return role.Reviewer
	case StateTest:
		return role.Tester
	default:
		return role.User
	}
}

func (o *Orchestrator) buildPrompt(s State, task string, c Counters, out outputs) string {
	switch s {
	case StatePlan:
		feedback := ""
		if c.Iteration > 1 {
			feedback = out.user
		}
		return o.prompts.Plan(task, feedback)
	case StateImplement:
		reviewFeedback, testFeedback := "", ""
		switch c.Rework {
		case ReworkReview:
			reviewFeedback = out.review
		case ReworkTest:
			testFeedback = out.test
		}
		return o.prompts.Implement(task, out.plan, reviewFeedback, testFeedback)
	case StateReview:
		diff, err := o.checkpoints.Diff(role.Implementer)
		if err != nil {
			o.ws.Journal("warning: diff for review: %v", err)
			diff = ""
		}
		return o.prompts.Review(task, out.implementation, diff)
	case StateTest:
		return o.prompts.Test(task, out.implementation, out.review)
	default:
		return o.prompts.User(task, out.implementation, out.test)
	}
}

func (o *Orchestrator) absorb(s State, output string, out *outputs) {
	switch s {
	case StatePlan:
		out.plan = output
	case StateImplement:
		out.implementation = output
	case StateReview:
		out.review = output
	case StateTest:
		out.test = output
	case StateUser:
		out.user = output
	}
}

func (o *Orchestrator) recordStage(runID string, res stage.Result) {
	if o.audit == nil || runID == "" {
		return
	}
	if err := o.audit.AddStage(runID, res.Iteration, string(res.Role), string(res.Verdict), res.Artifact, res.Failed, res.Duration); err != nil {
		o.ws.Journal("warning: audit stage: %v", err)
	}
	if res.Escalation != nil {
		if err := o.audit.AddEscalation(runID, res.Iteration, string(res.Role), res.Escalation.Question, res.Escalation.Resolution); err != nil {
			o.ws.Journal("warning: audit escalation: %v", err)
		}
	}
}

func (o *Orchestrator) event(runID, eventType, content string) {
	if o.audit == nil || runID == "" {
		return
	}
	o.audit.AddEvent(runID, eventType, content)
}

// foldIteration appends a condensed summary of an unsatisfied iteration
// into the cumulative understanding so the next planner prompt starts from
// what was learned, not from scratch.
func (o *Orchestrator) foldIteration(iteration int, v verdict.Verdict, userFeedback string) {
	section := fmt.Sprintf("\n\n## Iteration %d\nUser verdict: %s\n\n%s\n",
		iteration, v, condense(userFeedback))
	if err := o.ws.AppendDoc(workspace.DocCumulative, section); err != nil {
		o.ws.Journal("warning: fold iteration summary: %v", err)
	}
}

func (o *Orchestrator) writeReport(result *RunResult, task string, out outputs) {
	var sb strings.Builder
	sb.WriteString("# Final Report\n\n")
	sb.WriteString(fmt.Sprintf("Status: %s\n", strings.ToUpper(string(result.Status))))
	sb.WriteString(fmt.Sprintf("Iterations: %d\n\n", result.Iterations))
	sb.WriteString("## Task\n" + task + "\n\n")

	if out.user != "" {
		sb.WriteString("## Last User Feedback\n" + out.user + "\n\n")
	}

	sb.WriteString("## Stages\n")
	for _, st := range result.Stages {
		mark := "ok"
		if st.Failed {
			mark = "FAILED"
		}
		sb.WriteString(fmt.Sprintf("- iteration %d %s: %s (%s)\n", st.Iteration, st.Role, st.Verdict, mark))
	}

	if result.Status == store.StatusIncomplete {
		sb.WriteString("\n## How To Resume\n")
		sb.WriteString("All artifacts are retained under roles/ and on the role branches.\n")
		sb.WriteString(fmt.Sprintf("Re-run with:\n\n    quintet run --workspace %s --continue \"%s\"\n", o.ws.Name, firstLine(task)))
		sb.WriteString("\nThe cumulative understanding carries forward everything learned so far.\n")
	}

	if err := o.ws.WriteDoc(workspace.DocReport, sb.String()); err != nil {
		o.ws.Journal("warning: write final report: %v", err)
	}
}

func condense(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxSummaryLen {
		return s
	}
	return s[:maxSummaryLen] + "\n... (truncated)"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
