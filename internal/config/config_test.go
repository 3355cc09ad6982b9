package config

import (
	"os"
	"path/filepath"
	"testing"
)

// --- EffectiveArgs tests ---

func TestEffectiveArgs_Claude_AddsNonInteractive(t *testing.T) {
	e := Executor{
		Cmd:  "claude",
		Args: []string{"--model", "sonnet"},
	}
	got := e.EffectiveArgs()
	// Should prepend --print even without auto_accept.
	if !containsAny(got, "--print") {
		t.Fatalf("expected --print in args, got %v", got)
	}
	// Should NOT have --dangerously-skip-permissions without auto_accept.
	if containsAny(got, "--dangerously-skip-permissions") {
		t.Fatalf("should not have --dangerously-skip-permissions without auto_accept, got %v", got)
	}
}

func TestEffectiveArgs_Claude_AutoAccept(t *testing.T) {
	e := Executor{
		Cmd:        "claude",
		Args:       []string{"--model", "sonnet"},
		AutoAccept: true,
	}
	got := e.EffectiveArgs()
	if !containsAny(got, "--print") {
		t.Fatalf("expected --print, got %v", got)
	}
	if !containsAny(got, "--dangerously-skip-permissions") {
		t.Fatalf("expected --dangerously-skip-permissions with auto_accept, got %v", got)
	}
}

func TestEffectiveArgs_Claude_NoDuplicateFlags(t *testing.T) {
	e := Executor{
		Cmd:        "claude",
		Args:       []string{"--print", "--dangerously-skip-permissions"},
		AutoAccept: true,
	}
	got := e.EffectiveArgs()
	if len(got) != 2 {
		t.Fatalf("expected no injected duplicates, got %v", got)
	}
}

func TestEffectiveArgs_Gemini_AutoAccept(t *testing.T) {
	e := Executor{Cmd: "gemini", AutoAccept: true}
	got := e.EffectiveArgs()
	if !containsAny(got, "--yolo") {
		t.Fatalf("expected --yolo for gemini auto_accept, got %v", got)
	}
}

func TestEffectiveArgs_UnknownTool_Unchanged(t *testing.T) {
	e := Executor{Cmd: "mytool", Args: []string{"--flag"}, AutoAccept: true}
	got := e.EffectiveArgs()
	if len(got) != 1 || got[0] != "--flag" {
		t.Fatalf("expected args unchanged for unknown tool, got %v", got)
	}
}

// --- Defaults ---

func TestDefaults(t *testing.T) {
	var p Pipeline
	if p.MaxOuter() != 3 {
		t.Errorf("MaxOuter default: got %d", p.MaxOuter())
	}
	if p.MaxInner() != 3 {
		t.Errorf("MaxInner default: got %d", p.MaxInner())
	}
	if p.QueueBackoff() != 30 {
		t.Errorf("QueueBackoff default: got %d", p.QueueBackoff())
	}

	var e Executor
	if e.DefaultTimeout() != 600 {
		t.Errorf("DefaultTimeout: got %d", e.DefaultTimeout())
	}
}

func TestUnrecognizedDefaults_Asymmetric(t *testing.T) {
	// Zero value: review and test pass through, user is not satisfied.
	var u Unrecognized
	if u.ReviewBlocks {
		t.Error("unrecognized review should pass by default")
	}
	if u.TestBlocks {
		t.Error("unrecognized test should pass by default")
	}
	if u.UserSatisfies {
		t.Error("unrecognized user verdict must not satisfy by default")
	}
}

// --- Load/Save round trip ---

func TestLoadSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Pipeline.MaxIterations = 5
	cfg.Roles = map[string]RoleOverride{
		"tester": {TimeoutSec: 1200},
	}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Executor.Cmd != "claude" {
		t.Errorf("executor cmd: got %q", loaded.Executor.Cmd)
	}
	if loaded.Pipeline.MaxIterations != 5 {
		t.Errorf("max_iterations: got %d", loaded.Pipeline.MaxIterations)
	}
	if loaded.Roles["tester"].TimeoutSec != 1200 {
		t.Errorf("tester timeout: got %d", loaded.Roles["tester"].TimeoutSec)
	}
}

func TestLoad_MissingExecutorCmd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("version: 1\n"), 0644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing executor cmd")
	}
}

func TestValidate_APIMode(t *testing.T) {
	cfg := &Config{
		Version: 1,
		Executor: Executor{
			Mode:      "api",
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-20250514",
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("api mode config should validate: %v", err)
	}

	cfg.Executor.Provider = ""
	if err := cfg.validate(); err == nil {
		t.Fatal("expected validation error for api mode without provider")
	}

	cfg.Executor.Provider = "anthropic"
	cfg.Executor.APIKeyEnv = ""
	if err := cfg.validate(); err == nil {
		t.Fatal("expected validation error for api mode without api_key_env")
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Executor.Mode = "telepathy"
	if err := cfg.validate(); err == nil {
		t.Fatal("expected validation error for unknown executor mode")
	}
}
