// Package checkpoint records pipeline progress as git history. Every role
// works on its own branch; after each stage the role's subtree is committed
// there, and at stage boundaries the branch is merged back into the trunk.
// The trunk therefore always holds the latest agreed state of the run, and
// any stage can be inspected or rolled back with ordinary git tooling.
package checkpoint

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/quintetdev/quintet/internal/role"
)

// Store manages the checkpoint history of one workspace.
type Store struct {
	workDir string
	trunk   string
}

// BranchFor returns the checkpoint branch name for a role.
// Format: quintet/{role}
func BranchFor(r role.Role) string {
	return fmt.Sprintf("quintet/%s", r)
}

// Open returns a Store for the given workspace directory, initializing a
// git repository there if none exists yet. A fresh repository gets an
// empty root commit so branches have a base to fork from.
func Open(workDir string) (*Store, error) {
	s := &Store{workDir: workDir}

	if !s.isGitRepo() {
		if out, err := s.git("init"); err != nil {
			return nil, fmt.Errorf("git init: %s", out)
		}
		s.ensureIdentity()
		if out, err := s.git("commit", "--allow-empty", "-m", "quintet: initialize workspace"); err != nil {
			return nil, fmt.Errorf("initial commit: %s", out)
		}
	} else {
		s.ensureIdentity()
	}

	trunk, err := s.baseBranch()
	if err != nil {
		return nil, err
	}
	s.trunk = trunk
	return s, nil
}

// Trunk returns the detected trunk branch name.
func (s *Store) Trunk() string {
	return s.trunk
}

// ensureIdentity sets a repo-local committer identity when none resolves,
// so checkpoint commits work on machines without global git config.
func (s *Store) ensureIdentity() {
	if _, err := s.git("config", "user.email"); err != nil {
		s.git("config", "user.email", "quintet@localhost")
	}
	if _, err := s.git("config", "user.name"); err != nil {
		s.git("config", "user.name", "quintet")
	}
}

func (s *Store) isGitRepo() bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = s.workDir
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// baseBranch detects the main/master branch name, falling back to whatever
// branch is currently checked out.
func (s *Store) baseBranch() (string, error) {
	for _, name := range []string{"main", "master"} {
		cmd := exec.Command("git", "rev-parse", "--verify", name)
		cmd.Dir = s.workDir
		if err := cmd.Run(); err == nil {
			return name, nil
		}
	}
	return s.CurrentBranch()
}

// git runs one git command in the workspace and returns its combined
// output, trimmed.
func (s *Store) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = s.workDir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// CurrentBranch returns the name of the current git branch.
func (s *Store) CurrentBranch() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = s.workDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("get current branch: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// BranchExists checks if a branch exists.
func (s *Store) BranchExists(branch string) bool {
	cmd := exec.Command("git", "rev-parse", "--verify", branch)
	cmd.Dir = s.workDir
	return cmd.Run() == nil
}

// EnsureBranch checks out the role's checkpoint branch, creating it from
// the trunk if absent, then merges the trunk into it so the role sees
// every stage already merged. A merge conflict is reported as an error but
// leaves the branch checked out at its pre-merge state; callers log the
// conflict and let the run continue.
func (s *Store) EnsureBranch(r role.Role) error {
	branch := BranchFor(r)

	if !s.BranchExists(branch) {
		if err := s.Checkout(s.trunk); err != nil {
			return err
		}
		if out, err := s.git("checkout", "-b", branch); err != nil {
			return fmt.Errorf("create branch %s: %s", branch, out)
		}
		return nil
	}

	if err := s.Checkout(branch); err != nil {
		return err
	}

	if out, err := s.git("merge", s.trunk, "--no-edit"); err != nil {
		s.git("merge", "--abort")
		return fmt.Errorf("merge %s into %s: %s", s.trunk, branch, out)
	}
	return nil
}

// Commit stages the role's subtree plus the given extra paths (workspace
// relative) on the role's branch and commits them. Returns true if a
// commit was made, false if the subtree was unchanged.
func (s *Store) Commit(r role.Role, message string, extraPaths ...string) (bool, error) {
	paths := append([]string{fmt.Sprintf("roles/%s", r)}, extraPaths...)

	args := append([]string{"add", "-A", "--"}, paths...)
	if out, err := s.git(args...); err != nil {
		return false, fmt.Errorf("git add: %s", out)
	}

	// No staged changes means the role produced nothing new.
	diffCmd := exec.Command("git", "diff", "--cached", "--quiet")
	diffCmd.Dir = s.workDir
	if err := diffCmd.Run(); err == nil {
		return false, nil
	}

	msg := fmt.Sprintf("quintet(%s): %s", r, message)
	if out, err := s.git("commit", "-m", msg); err != nil {
		return false, fmt.Errorf("git commit: %s", out)
	}
	return true, nil
}

// CommitAll stages every change in the workspace and commits under the
// given tag. Used for orchestrator-owned state: shared documents,
// escalation artifacts, human answers. Returns true if a commit was made.
func (s *Store) CommitAll(tag, message string) (bool, error) {
	if out, err := s.git("add", "-A"); err != nil {
		return false, fmt.Errorf("git add: %s", out)
	}

	diffCmd := exec.Command("git", "diff", "--cached", "--quiet")
	diffCmd.Dir = s.workDir
	if err := diffCmd.Run(); err == nil {
		return false, nil
	}

	msg := fmt.Sprintf("quintet(%s): %s", tag, message)
	if out, err := s.git("commit", "-m", msg); err != nil {
		return false, fmt.Errorf("git commit: %s", out)
	}
	return true, nil
}

// MergeToTrunk merges the role's branch into the trunk and leaves the
// trunk checked out. A conflict aborts the merge and is returned as an
// error; the caller logs it and the run continues on the trunk's state.
func (s *Store) MergeToTrunk(r role.Role) error {
	branch := BranchFor(r)
	if !s.BranchExists(branch) {
		return nil
	}

	if err := s.Checkout(s.trunk); err != nil {
		return err
	}

	if out, err := s.git("merge", branch, "--no-ff", "-m", fmt.Sprintf("Merge %s", branch)); err != nil {
		s.git("merge", "--abort")
		return fmt.Errorf("merge %s: %s", branch, out)
	}
	return nil
}

// Checkout switches to an existing branch.
func (s *Store) Checkout(branch string) error {
	if out, err := s.git("checkout", branch); err != nil {
		return fmt.Errorf("checkout %s: %s", branch, out)
	}
	return nil
}

// HasUncommittedChanges checks if there are uncommitted changes in the
// working tree.
func (s *Store) HasUncommittedChanges() bool {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = s.workDir
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}

// History returns up to limit one-line commit summaries from the trunk,
// newest first.
func (s *Store) History(limit int) (string, error) {
	cmd := exec.Command("git", "log", "--oneline", "-n", fmt.Sprintf("%d", limit), s.trunk)
	cmd.Dir = s.workDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git log: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Diff returns the changes a role's branch carries beyond the trunk.
func (s *Store) Diff(r role.Role) (string, error) {
	cmd := exec.Command("git", "diff", s.trunk+"..."+BranchFor(r))
	cmd.Dir = s.workDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return string(out), nil
}

// DiffStat returns a summary of changes on the trunk relative to ref.
func (s *Store) DiffStat(ref string) (string, error) {
	cmd := exec.Command("git", "diff", "--stat", ref+"..."+s.trunk)
	cmd.Dir = s.workDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff --stat: %w", err)
	}
	return string(out), nil
}

// Squash collapses all trunk history since ref into a single commit with
// the given message. Used by publish to hand over one reviewable commit
// instead of the per-stage checkpoint trail.
func (s *Store) Squash(ref, message string) error {
	if err := s.Checkout(s.trunk); err != nil {
		return err
	}
	if out, err := s.git("reset", "--soft", ref); err != nil {
		return fmt.Errorf("reset to %s: %s", ref, out)
	}
	if out, err := s.git("commit", "-m", message); err != nil {
		return fmt.Errorf("squash commit: %s", out)
	}
	return nil
}

// Push publishes the trunk to a remote.
func (s *Store) Push(remote string) error {
	if out, err := s.git("push", remote, s.trunk); err != nil {
		return fmt.Errorf("push %s: %s", remote, out)
	}
	return nil
}

// DeleteBranch deletes a role's checkpoint branch. Part of publish
// cleanup after the trunk has absorbed everything.
func (s *Store) DeleteBranch(r role.Role) error {
	branch := BranchFor(r)
	if !s.BranchExists(branch) {
		return nil
	}
	if out, err := s.git("branch", "-D", branch); err != nil {
		return fmt.Errorf("delete branch %s: %s", branch, out)
	}
	return nil
}
