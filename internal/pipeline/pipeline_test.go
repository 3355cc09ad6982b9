package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintetdev/quintet/internal/checkpoint"
	"github.com/quintetdev/quintet/internal/escalate"
	"github.com/quintetdev/quintet/internal/executor"
	"github.com/quintetdev/quintet/internal/role"
	"github.com/quintetdev/quintet/internal/stage"
	"github.com/quintetdev/quintet/internal/store"
	"github.com/quintetdev/quintet/internal/verdict"
	"github.com/quintetdev/quintet/internal/workspace"
)

// scriptedEngine pops canned outputs per role and records every request.
// When a role's queue runs dry its last output repeats.
type scriptedEngine struct {
	mu       sync.Mutex
	outputs  map[role.Role][]string
	requests []executor.Request
}

func (s *scriptedEngine) Invoke(ctx context.Context, req executor.Request) (*executor.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	queue := s.outputs[req.Role]
	if len(queue) == 0 {
		return nil, errors.New("no scripted output for " + string(req.Role))
	}
	out := queue[0]
	if len(queue) > 1 {
		s.outputs[req.Role] = queue[1:]
	}
	return &executor.Response{Output: out}, nil
}

func (s *scriptedEngine) Name() string { return "scripted" }

func (s *scriptedEngine) calledRoles() []role.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := make([]role.Role, len(s.requests))
	for i, req := range s.requests {
		roles[i] = req.Role
	}
	return roles
}

func (s *scriptedEngine) promptsFor(r role.Role) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var prompts []string
	for _, req := range s.requests {
		if req.Role == r {
			prompts = append(prompts, req.Prompt)
		}
	}
	return prompts
}

func happyScript() map[role.Role][]string {
	return map[role.Role][]string{
		role.Planner:     {"1. Build it.\n\nCONFIDENCE: HIGH"},
		role.Implementer: {"Implemented as planned."},
		role.Reviewer:    {"Clean work.\n\nVERDICT: APPROVED"},
		role.Tester:      {"All green.\n\nVERDICT: TESTS_PASSED"},
		role.User:        {"Works for me.\n\nVERDICT: SATISFIED"},
	}
}

func testOrchestrator(t *testing.T, script map[role.Role][]string, bounds Bounds) (*Orchestrator, *workspace.Workspace, *scriptedEngine, *store.Store) {
	t.Helper()

	ws, err := workspace.Open("demo", filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)

	cp, err := checkpoint.Open(ws.Root)
	require.NoError(t, err)

	audit, err := store.New(filepath.Join(t.TempDir(), "quintet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	engine := &scriptedEngine{outputs: script}
	runner := stage.New(ws, engine, cp, escalate.SentinelResolver{}, stage.Options{})

	return New(ws, runner, cp, audit, verdict.Policy{}, bounds), ws, engine, audit
}

func TestRun_HappyPath(t *testing.T) {
	o, ws, engine, audit := testOrchestrator(t, happyScript(), testBounds)

	result, err := o.Run(context.Background(), "add input validation")
	require.NoError(t, err)

	assert.Equal(t, store.StatusDone, result.Status)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, []role.Role{role.Planner, role.Implementer, role.Reviewer, role.Tester, role.User}, engine.calledRoles())

	// Task and report are persisted workspace documents.
	assert.Equal(t, "add input validation", ws.ReadDoc(workspace.DocTask))
	report := ws.ReadDoc(workspace.DocReport)
	assert.Contains(t, report, "Status: DONE")
	assert.NotContains(t, report, "How To Resume")

	// Audit trail covers the whole run.
	run, err := audit.GetRun(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, run.Status)
	stages, err := audit.ListStages(result.RunID)
	require.NoError(t, err)
	assert.Len(t, stages, 5)
}

func TestRun_ReviewLoopThreadsFeedback(t *testing.T) {
	script := happyScript()
	script[role.Reviewer] = []string{
		"Missing nil check in the parser.\n\nVERDICT: NEEDS_CHANGES",
		"Fixed now.\n\nVERDICT: APPROVED",
	}
	o, _, engine, _ := testOrchestrator(t, script, testBounds)

	result, err := o.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, result.Status)

	assert.Equal(t, []role.Role{
		role.Planner, role.Implementer,
		role.Reviewer, role.Implementer, role.Reviewer, // loop A once
		role.Tester, role.User,
	}, engine.calledRoles())

	// The rework prompt carries the reviewer's objection.
	implPrompts := engine.promptsFor(role.Implementer)
	require.Len(t, implPrompts, 2)
	assert.NotContains(t, implPrompts[0], "## Reviewer Feedback")
	assert.Contains(t, implPrompts[1], "## Reviewer Feedback")
	assert.Contains(t, implPrompts[1], "Missing nil check")
}

// Two rejections then an approval: with max_inner_iterations=3 the
// implementer and reviewer each run exactly three times.
func TestRun_ReviewLoopRoundTrips(t *testing.T) {
	script := happyScript()
	script[role.Reviewer] = []string{
		"Missing nil check.\n\nVERDICT: NEEDS_CHANGES",
		"Error paths still untested.\n\nVERDICT: NEEDS_CHANGES",
		"Good now.\n\nVERDICT: APPROVED",
	}
	o, _, engine, _ := testOrchestrator(t, script, Bounds{MaxIterations: 3, MaxInnerLoops: 3})

	result, err := o.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, result.Status)

	assert.Len(t, engine.promptsFor(role.Implementer), 3)
	assert.Len(t, engine.promptsFor(role.Reviewer), 3)
}

// A reviewer that never approves exhausts the round-trip budget: the
// implementer and reviewer each run exactly max_inner_iterations times,
// then the pipeline falls forward to the tester.
func TestRun_ReviewLoopBoundFallsForward(t *testing.T) {
	script := happyScript()
	script[role.Reviewer] = []string{"Never good enough.\n\nVERDICT: NEEDS_CHANGES"}
	o, _, engine, _ := testOrchestrator(t, script, Bounds{MaxIterations: 1, MaxInnerLoops: 3})

	result, err := o.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, result.Status)

	assert.Len(t, engine.promptsFor(role.Implementer), 3)
	assert.Len(t, engine.promptsFor(role.Reviewer), 3)
	assert.Len(t, engine.promptsFor(role.Tester), 1)
}

func TestRun_TestLoopSkipsReview(t *testing.T) {
	script := happyScript()
	script[role.Tester] = []string{
		"TestParse fails on empty input.\n\nVERDICT: TESTS_FAILED",
		"All green now.\n\nVERDICT: TESTS_PASSED",
	}
	o, _, engine, _ := testOrchestrator(t, script, testBounds)

	result, err := o.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, result.Status)

	// Loop B goes test -> implement -> test, without another review.
	assert.Equal(t, []role.Role{
		role.Planner, role.Implementer, role.Reviewer,
		role.Tester, role.Implementer, role.Tester,
		role.User,
	}, engine.calledRoles())

	implPrompts := engine.promptsFor(role.Implementer)
	require.Len(t, implPrompts, 2)
	assert.Contains(t, implPrompts[1], "## Tester Feedback")
	assert.Contains(t, implPrompts[1], "TestParse fails")
}

func TestRun_IterationBoundEndsIncomplete(t *testing.T) {
	script := happyScript()
	script[role.User] = []string{"Still clunky.\n\nVERDICT: NEEDS_IMPROVEMENT"}
	o, ws, engine, _ := testOrchestrator(t, script, Bounds{MaxIterations: 2, MaxInnerLoops: 3})

	result, err := o.Run(context.Background(), "task")
	require.NoError(t, err)

	assert.Equal(t, store.StatusIncomplete, result.Status)
	assert.Equal(t, 2, result.Iterations)
	assert.Len(t, engine.calledRoles(), 10)

	// Iteration 1's learnings fold into the cumulative understanding and
	// reach the second planner prompt.
	cumulative := ws.ReadDoc(workspace.DocCumulative)
	assert.Contains(t, cumulative, "## Iteration 1")
	assert.Contains(t, cumulative, "Still clunky")

	planPrompts := engine.promptsFor(role.Planner)
	require.Len(t, planPrompts, 2)
	assert.NotContains(t, planPrompts[0], "## User Feedback From Previous Iteration")
	assert.Contains(t, planPrompts[1], "## User Feedback From Previous Iteration")
	assert.Contains(t, planPrompts[1], "Still clunky")

	// INCOMPLETE retains artifacts and documents how to resume.
	report := ws.ReadDoc(workspace.DocReport)
	assert.Contains(t, report, "Status: INCOMPLETE")
	assert.Contains(t, report, "How To Resume")
	entries, err := os.ReadDir(filepath.Join(ws.Root, "roles", "planner"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestRun_ExecutorFailureStillTerminates(t *testing.T) {
	script := happyScript()
	// The implementer engine never works; everything else proceeds.
	script[role.Implementer] = nil
	o, _, _, _ := testOrchestrator(t, script, Bounds{MaxIterations: 1, MaxInnerLoops: 1})

	result, err := o.Run(context.Background(), "task")
	require.NoError(t, err, "executor failure must degrade, not raise")

	assert.True(t, result.Status == store.StatusDone || result.Status == store.StatusIncomplete)
	var sawFailure bool
	for _, st := range result.Stages {
		if st.Role == role.Implementer {
			assert.True(t, st.Failed)
			assert.Contains(t, st.Output, "EXECUTOR FAILURE")
			sawFailure = true
		}
	}
	assert.True(t, sawFailure)
}

func TestRun_EmptyTaskRejected(t *testing.T) {
	o, _, _, _ := testOrchestrator(t, happyScript(), testBounds)

	_, err := o.Run(context.Background(), "   ")
	assert.Error(t, err)
}

func TestRun_CancelledContextEndsIncomplete(t *testing.T) {
	o, ws, _, _ := testOrchestrator(t, happyScript(), testBounds)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.Run(ctx, "task")
	require.NoError(t, err)
	assert.Equal(t, store.StatusIncomplete, result.Status)
	assert.Contains(t, ws.ReadDoc(workspace.DocReport), "Status: INCOMPLETE")
}
