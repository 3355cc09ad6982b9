package checkpoint

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quintetdev/quintet/internal/role"
)

// initTestRepo creates a temporary git repo with an initial commit and the
// per-role directory layout the store stages by.
func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test",
			"GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test",
			"GIT_COMMITTER_EMAIL=test@test.com",
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %s failed: %s\n%s", strings.Join(args, " "), err, out)
		}
	}

	run("init", "-b", "main")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "test")

	for _, r := range role.Pipeline {
		if err := os.MkdirAll(filepath.Join(dir, "roles", string(r)), 0755); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(dir, "TASK.md"), []byte("# task\n"), 0644)
	run("add", ".")
	run("commit", "-m", "initial commit")

	return dir
}

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func writeRoleFile(t *testing.T, dir string, r role.Role, name, content string) {
	t.Helper()
	path := filepath.Join(dir, "roles", string(r), name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestBranchFor(t *testing.T) {
	got := BranchFor(role.Planner)
	if got != "quintet/planner" {
		t.Fatalf("expected 'quintet/planner', got %q", got)
	}
}

func TestOpen_DetectsTrunk(t *testing.T) {
	dir := initTestRepo(t)
	s := openStore(t, dir)

	if s.Trunk() != "main" {
		t.Fatalf("expected trunk 'main', got %q", s.Trunk())
	}
}

func TestOpen_InitializesBareDirectory(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open on bare dir: %v", err)
	}
	if !s.isGitRepo() {
		t.Fatal("expected Open to initialize a git repo")
	}

	// The root commit must exist so branches can fork.
	if _, err := s.CurrentBranch(); err != nil {
		t.Fatalf("CurrentBranch after init: %v", err)
	}
}

func TestEnsureBranch_CreatesAndSwitches(t *testing.T) {
	dir := initTestRepo(t)
	s := openStore(t, dir)

	if err := s.EnsureBranch(role.Planner); err != nil {
		t.Fatalf("EnsureBranch: %v", err)
	}

	branch, _ := s.CurrentBranch()
	if branch != "quintet/planner" {
		t.Fatalf("expected 'quintet/planner', got %q", branch)
	}

	// Second call switches back and merges trunk without error.
	if err := s.Checkout("main"); err != nil {
		t.Fatalf("Checkout main: %v", err)
	}
	if err := s.EnsureBranch(role.Planner); err != nil {
		t.Fatalf("EnsureBranch existing: %v", err)
	}
	branch, _ = s.CurrentBranch()
	if branch != "quintet/planner" {
		t.Fatalf("expected 'quintet/planner' after re-ensure, got %q", branch)
	}
}

func TestEnsureBranch_PicksUpTrunkProgress(t *testing.T) {
	dir := initTestRepo(t)
	s := openStore(t, dir)

	// Planner commits and merges to trunk.
	if err := s.EnsureBranch(role.Planner); err != nil {
		t.Fatalf("EnsureBranch planner: %v", err)
	}
	writeRoleFile(t, dir, role.Planner, "iter-01-planner.md", "the plan\n")
	if _, err := s.Commit(role.Planner, "iteration 1 plan"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.MergeToTrunk(role.Planner); err != nil {
		t.Fatalf("MergeToTrunk: %v", err)
	}

	// Implementer branch must see the plan after EnsureBranch.
	if err := s.EnsureBranch(role.Implementer); err != nil {
		t.Fatalf("EnsureBranch implementer: %v", err)
	}
	plan := filepath.Join(dir, "roles", "planner", "iter-01-planner.md")
	if _, err := os.Stat(plan); err != nil {
		t.Fatalf("plan not visible on implementer branch: %v", err)
	}
}

func TestCommit_ScopedToRoleSubtree(t *testing.T) {
	dir := initTestRepo(t)
	s := openStore(t, dir)

	if err := s.EnsureBranch(role.Reviewer); err != nil {
		t.Fatalf("EnsureBranch: %v", err)
	}

	writeRoleFile(t, dir, role.Reviewer, "iter-01-reviewer.md", "VERDICT: APPROVED\n")
	// A stray change outside the reviewer's subtree must not be swept in.
	os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x\n"), 0644)

	committed, err := s.Commit(role.Reviewer, "iteration 1 review")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !committed {
		t.Fatal("expected a commit")
	}

	// The stray file stays uncommitted.
	if !s.HasUncommittedChanges() {
		t.Fatal("expected stray.txt to remain uncommitted")
	}
}

func TestCommit_NoOpReturnsFalse(t *testing.T) {
	dir := initTestRepo(t)
	s := openStore(t, dir)

	if err := s.EnsureBranch(role.Tester); err != nil {
		t.Fatalf("EnsureBranch: %v", err)
	}

	committed, err := s.Commit(role.Tester, "nothing happened")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if committed {
		t.Fatal("expected no commit when subtree unchanged")
	}
}

func TestCommit_ExtraPaths(t *testing.T) {
	dir := initTestRepo(t)
	s := openStore(t, dir)

	if err := s.EnsureBranch(role.Planner); err != nil {
		t.Fatalf("EnsureBranch: %v", err)
	}

	writeRoleFile(t, dir, role.Planner, "iter-01-planner.md", "plan\n")
	os.WriteFile(filepath.Join(dir, "TASK.md"), []byte("# task\nrefined\n"), 0644)

	committed, err := s.Commit(role.Planner, "refined task", "TASK.md")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !committed {
		t.Fatal("expected a commit")
	}
	if s.HasUncommittedChanges() {
		t.Fatal("expected TASK.md to be committed alongside the subtree")
	}
}

func TestMergeToTrunk_LeavesTrunkCheckedOut(t *testing.T) {
	dir := initTestRepo(t)
	s := openStore(t, dir)

	s.EnsureBranch(role.Implementer)
	writeRoleFile(t, dir, role.Implementer, "iter-01-implementer.md", "changes\n")
	s.Commit(role.Implementer, "iteration 1 implementation")

	if err := s.MergeToTrunk(role.Implementer); err != nil {
		t.Fatalf("MergeToTrunk: %v", err)
	}

	branch, _ := s.CurrentBranch()
	if branch != "main" {
		t.Fatalf("expected 'main' after merge, got %q", branch)
	}
	artifact := filepath.Join(dir, "roles", "implementer", "iter-01-implementer.md")
	if _, err := os.Stat(artifact); err != nil {
		t.Fatalf("artifact missing on trunk: %v", err)
	}
}

func TestMergeToTrunk_MissingBranchIsNoOp(t *testing.T) {
	dir := initTestRepo(t)
	s := openStore(t, dir)

	if err := s.MergeToTrunk(role.User); err != nil {
		t.Fatalf("expected no error for missing branch, got %v", err)
	}
}

func TestEnsureBranch_ConflictAbortsAndReports(t *testing.T) {
	dir := initTestRepo(t)
	s := openStore(t, dir)

	// Diverge: the planner branch and the trunk edit the same file.
	s.EnsureBranch(role.Planner)
	writeRoleFile(t, dir, role.Planner, "plan.md", "branch version\n")
	s.Commit(role.Planner, "branch side")

	s.Checkout("main")
	writeRoleFile(t, dir, role.Planner, "plan.md", "trunk version\n")
	if _, err := s.CommitAll("human", "trunk side"); err != nil {
		t.Fatalf("CommitAll: %v", err)
	}

	err := s.EnsureBranch(role.Planner)
	if err == nil {
		t.Fatal("expected merge conflict error")
	}

	// The aborted merge must leave a clean tree so the run can continue.
	if s.HasUncommittedChanges() {
		t.Fatal("expected clean tree after aborted merge")
	}
}

func TestHistory(t *testing.T) {
	dir := initTestRepo(t)
	s := openStore(t, dir)

	s.EnsureBranch(role.Planner)
	writeRoleFile(t, dir, role.Planner, "plan.md", "v1\n")
	s.Commit(role.Planner, "iteration 1 plan")
	s.MergeToTrunk(role.Planner)

	log, err := s.History(10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if !strings.Contains(log, "quintet(planner): iteration 1 plan") {
		t.Fatalf("expected planner commit in history, got: %s", log)
	}
}

func TestSquash(t *testing.T) {
	dir := initTestRepo(t)
	s := openStore(t, dir)

	// Record the pre-run trunk tip.
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("rev-parse: %v", err)
	}
	base := strings.TrimSpace(string(out))

	s.EnsureBranch(role.Planner)
	writeRoleFile(t, dir, role.Planner, "plan.md", "v1\n")
	s.Commit(role.Planner, "first")
	s.MergeToTrunk(role.Planner)

	s.EnsureBranch(role.Implementer)
	writeRoleFile(t, dir, role.Implementer, "impl.md", "v1\n")
	s.Commit(role.Implementer, "second")
	s.MergeToTrunk(role.Implementer)

	if err := s.Squash(base, "feature: complete run"); err != nil {
		t.Fatalf("Squash: %v", err)
	}

	log, err := s.History(5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	lines := strings.Split(log, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected squashed history of 2 commits, got %d:\n%s", len(lines), log)
	}
	if !strings.Contains(lines[0], "feature: complete run") {
		t.Fatalf("expected squash commit at tip, got: %s", lines[0])
	}
}
