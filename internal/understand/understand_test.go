package understand

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintetdev/quintet/internal/executor"
	"github.com/quintetdev/quintet/internal/role"
	"github.com/quintetdev/quintet/internal/workspace"
)

// steppedEngine returns one canned output per invocation and records the
// requests.
type steppedEngine struct {
	outputs  []string
	requests []executor.Request
}

func (s *steppedEngine) Invoke(ctx context.Context, req executor.Request) (*executor.Response, error) {
	s.requests = append(s.requests, req)
	if len(s.requests) > len(s.outputs) {
		return nil, errors.New("unexpected invocation")
	}
	return &executor.Response{Output: s.outputs[len(s.requests)-1]}, nil
}

func (s *steppedEngine) Name() string { return "stepped" }

func testPhase(t *testing.T, engine *steppedEngine, answers AnswerSource) (*Phase, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.Open("demo", filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	return New(ws, engine, answers), ws
}

func TestRun_ThreeSteps(t *testing.T) {
	engine := &steppedEngine{outputs: []string{
		"## CLARIFYING QUESTIONS\n1. Which database?",
		"## UPDATED UNDERSTANDING\nPostgres it is.",
		"## Problem Statement\nA validated understanding.",
	}}
	p, ws := testPhase(t, engine, StaticAnswers("Postgres, latest stable."))

	doc, err := p.Run(context.Background(), "build a user service", nil)
	require.NoError(t, err)
	assert.Contains(t, doc, "Problem Statement")

	require.Len(t, engine.requests, 3)
	for _, req := range engine.requests {
		assert.Equal(t, role.Understand, req.Role)
		assert.Contains(t, req.GrantDirs, ws.Root)
	}

	// The first step opens a fresh session; the later two continue it.
	assert.False(t, engine.requests[0].ContinueSession)
	assert.True(t, engine.requests[1].ContinueSession)
	assert.True(t, engine.requests[2].ContinueSession)

	// Human answers thread into the validation prompt.
	assert.Contains(t, engine.requests[1].Prompt, "Postgres, latest stable.")

	// All three artifacts persist in the workspace.
	assert.Contains(t, ws.ReadDoc(DocInitialAnalysis), "Which database?")
	assert.Contains(t, ws.ReadDoc(DocValidation), "Postgres, latest stable.")
	assert.Contains(t, ws.ReadDoc(workspace.DocShared), "Problem Statement")
}

func TestRun_NoAnswersUsesSentinel(t *testing.T) {
	engine := &steppedEngine{outputs: []string{"analysis", "validation", "doc"}}
	p, _ := testPhase(t, engine, StaticAnswers(""))

	_, err := p.Run(context.Background(), "task", nil)
	require.NoError(t, err)

	assert.Contains(t, engine.requests[1].Prompt, "proceeding with assumptions")
}

func TestRun_ContextSourcesEmbedded(t *testing.T) {
	dir := t.TempDir()
	ticket := filepath.Join(dir, "TICKET-42.md")
	require.NoError(t, os.WriteFile(ticket, []byte("login breaks on empty password"), 0644))

	engine := &steppedEngine{outputs: []string{"analysis", "validation", "doc"}}
	p, _ := testPhase(t, engine, StaticAnswers("x"))

	_, err := p.Run(context.Background(), "fix the login bug", []string{ticket, "see also the slack thread"})
	require.NoError(t, err)

	first := engine.requests[0].Prompt
	assert.Contains(t, first, "login breaks on empty password")
	assert.Contains(t, first, "see also the slack thread")
}

func TestRun_EngineFailureFailsHard(t *testing.T) {
	engine := &steppedEngine{outputs: nil} // every invocation errors
	p, _ := testPhase(t, engine, StaticAnswers("x"))

	_, err := p.Run(context.Background(), "task", nil)
	assert.Error(t, err)
}

func TestFileAnswers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.txt")
	require.NoError(t, os.WriteFile(path, []byte("use sqlite"), 0644))

	got, err := FileAnswers(path).Collect("")
	require.NoError(t, err)
	assert.Equal(t, "use sqlite", got)

	_, err = FileAnswers(filepath.Join(t.TempDir(), "missing")).Collect("")
	assert.Error(t, err)
}
