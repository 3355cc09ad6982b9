package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintetdev/quintet/internal/checkpoint"
	"github.com/quintetdev/quintet/internal/role"
	"github.com/quintetdev/quintet/internal/workspace"
)

func TestRunPublish_RemovesPipelineArtifacts(t *testing.T) {
	chdir(t, t.TempDir())

	ws, err := workspace.Open("main", workspaceRoot("main"))
	require.NoError(t, err)
	cp, err := checkpoint.Open(ws.Root)
	require.NoError(t, err)

	// A finished run leaves artifacts, docs, and the deliverable behind.
	_, err = ws.WriteArtifact(role.Planner, "iter-01-planner.md", "the plan")
	require.NoError(t, err)
	require.NoError(t, ws.WriteDoc(workspace.DocTask, "the task"))
	require.NoError(t, ws.WriteDoc(workspace.DocReport, "# Final Report"))
	deliverable := filepath.Join(ws.Root, "main.go")
	require.NoError(t, os.WriteFile(deliverable, []byte("package main\n"), 0644))
	_, err = cp.CommitAll("orchestrator", "final state")
	require.NoError(t, err)

	publishWorkspace = "main"
	publishSquash = ""
	publishPush = ""
	publishPR = false
	publishKeep = false
	publishKeepDocs = false
	require.NoError(t, runPublish(publishCmd, nil))

	// Pipeline-owned paths are gone from the trunk; the deliverable stays.
	for _, p := range []string{"roles", "escalations", workspace.JournalFile, workspace.DocTask, workspace.DocReport} {
		_, err := os.Stat(filepath.Join(ws.Root, p))
		assert.True(t, os.IsNotExist(err), "%s should be removed", p)
	}
	_, err = os.Stat(deliverable)
	assert.NoError(t, err)

	history, err := cp.History(10)
	require.NoError(t, err)
	assert.Contains(t, history, "quintet(publish): remove pipeline artifacts")
}

func TestRunPublish_KeepArtifacts(t *testing.T) {
	chdir(t, t.TempDir())

	ws, err := workspace.Open("main", workspaceRoot("main"))
	require.NoError(t, err)
	cp, err := checkpoint.Open(ws.Root)
	require.NoError(t, err)

	require.NoError(t, ws.WriteDoc(workspace.DocReport, "# Final Report"))
	_, err = cp.CommitAll("orchestrator", "final state")
	require.NoError(t, err)

	publishWorkspace = "main"
	publishSquash = ""
	publishPush = ""
	publishPR = false
	publishKeep = false
	publishKeepDocs = true
	require.NoError(t, runPublish(publishCmd, nil))

	_, err = os.Stat(filepath.Join(ws.Root, workspace.DocReport))
	assert.NoError(t, err)
}
