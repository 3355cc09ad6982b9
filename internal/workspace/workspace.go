// Package workspace manages the named, isolated area a pipeline run works
// in: one subdirectory per role, the shared top-level documents, and the
// append-only journal. Exactly one workspace is active per run and every
// component receives it explicitly — there is no ambient "current
// workspace" anywhere.
package workspace

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/quintetdev/quintet/internal/role"
)

// Shared document names. These live at the workspace top level and are
// readable by every role.
const (
	DocTask       = "TASK.md"
	DocShared     = "SHARED_UNDERSTANDING.md"
	DocCumulative = "CUMULATIVE_UNDERSTANDING.md"
	DocReport     = "FINAL_REPORT.md"

	JournalFile    = "pipeline.log"
	rolesDir       = "roles"
	escalationsDir = "escalations"
	sessionsDir    = ".sessions"
)

// Workspace is one named working area. Root is the directory everything
// lives under; Name is how the CLI refers to it.
type Workspace struct {
	Name string
	Root string
}

// Open returns the workspace at root, creating the directory skeleton if
// needed. Reusing the same root across runs keeps all prior state.
func Open(name, root string) (*Workspace, error) {
	ws := &Workspace{Name: name, Root: root}

	dirs := []string{
		root,
		filepath.Join(root, rolesDir),
		filepath.Join(root, escalationsDir),
		filepath.Join(root, sessionsDir),
	}
	for _, r := range role.Pipeline {
		dirs = append(dirs, filepath.Join(root, rolesDir, string(r)))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create workspace dir: %w", err)
		}
	}

	// Session state is conversation-local, never checkpointed.
	ignore := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(ignore); os.IsNotExist(err) {
		if err := os.WriteFile(ignore, []byte(sessionsDir+"/\n"), 0644); err != nil {
			return nil, fmt.Errorf("write gitignore: %w", err)
		}
	}

	return ws, nil
}

// Clone initializes a workspace from an existing version-controlled
// source, then lays the quintet skeleton on top of it.
func Clone(name, root, gitURL string) (*Workspace, error) {
	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("workspace %s already exists at %s", name, root)
	}

	cmd := exec.Command("git", "clone", gitURL, root)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("clone %s: %s", gitURL, strings.TrimSpace(string(out)))
	}

	return Open(name, root)
}

// RoleDir returns the subdirectory owned by one role. Two roles must never
// write into each other's directory; the checkpoint store stages commits
// per role directory.
func (w *Workspace) RoleDir(r role.Role) string {
	return filepath.Join(w.Root, rolesDir, string(r))
}

// RoleRel returns a role's directory relative to the workspace root,
// the form the checkpoint store stages by.
func (w *Workspace) RoleRel(r role.Role) string {
	return filepath.Join(rolesDir, string(r))
}

// SessionDir returns the executor session directory for a role.
func (w *Workspace) SessionDir(r role.Role) string {
	return filepath.Join(w.Root, sessionsDir, string(r))
}

// DocPath returns the absolute path of a shared document.
func (w *Workspace) DocPath(name string) string {
	return filepath.Join(w.Root, name)
}

// WriteDoc writes a shared top-level document.
func (w *Workspace) WriteDoc(name, content string) error {
	if err := os.WriteFile(w.DocPath(name), []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ReadDoc reads a shared document; a missing document reads as empty.
func (w *Workspace) ReadDoc(name string) string {
	data, err := os.ReadFile(w.DocPath(name))
	if err != nil {
		return ""
	}
	return string(data)
}

// AppendDoc appends a section to a shared document, creating it if absent.
func (w *Workspace) AppendDoc(name, content string) error {
	f, err := os.OpenFile(w.DocPath(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("append %s: %w", name, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("append %s: %w", name, err)
	}
	return nil
}

// WriteArtifact writes a named artifact into a role's directory and
// returns its workspace-relative path.
func (w *Workspace) WriteArtifact(r role.Role, name, content string) (string, error) {
	rel := filepath.Join(rolesDir, string(r), name)
	if err := os.WriteFile(filepath.Join(w.Root, rel), []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", rel, err)
	}
	return rel, nil
}

// EscalationPath returns the path for a persisted escalation artifact.
func (w *Workspace) EscalationPath(iteration int, r role.Role) string {
	return filepath.Join(w.Root, escalationsDir, fmt.Sprintf("iter-%02d-%s.md", iteration, r))
}

// CleanArtifacts removes every pipeline-owned path from the workspace:
// role directories, escalations, session state, the journal, and the
// shared documents, plus any extra named files. The task's own files are
// untouched. Used when publishing a finished workspace.
func (w *Workspace) CleanArtifacts(extra ...string) error {
	paths := []string{
		rolesDir,
		escalationsDir,
		sessionsDir,
		JournalFile,
		DocTask,
		DocShared,
		DocCumulative,
		DocReport,
	}
	paths = append(paths, extra...)

	for _, p := range paths {
		if err := os.RemoveAll(filepath.Join(w.Root, p)); err != nil {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// Journal appends one timestamped line to the workspace's append-only
// pipeline log. Journal failures are swallowed — the log is for offline
// audit, never a reason to stop a run.
func (w *Workspace) Journal(format string, args ...any) {
	f, err := os.OpenFile(filepath.Join(w.Root, JournalFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	ts := time.Now().UTC().Format(time.RFC3339)
	fmt.Fprintf(f, "%s %s\n", ts, fmt.Sprintf(format, args...))
}
