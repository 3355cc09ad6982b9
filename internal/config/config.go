// Package config loads and validates the quintet project configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a quintet project.
type Config struct {
	Version  int                     `yaml:"version"`
	Executor Executor                `yaml:"executor"`
	Pipeline Pipeline                `yaml:"pipeline"`
	Roles    map[string]RoleOverride `yaml:"roles,omitempty"`
}

// Executor describes the external reasoning engine and how to reach it:
// either a CLI to spawn (the default) or a provider HTTP API.
type Executor struct {
	Mode       string   `yaml:"mode,omitempty"`        // "cli" (default) or "api"
	Cmd        string   `yaml:"cmd"`                   // CLI command to spawn (claude, gemini, codex, ...)
	Args       []string `yaml:"args,omitempty"`        // extra CLI arguments
	AutoAccept bool     `yaml:"auto_accept,omitempty"` // skip permission prompts for known CLIs
	TimeoutSec int      `yaml:"timeout_sec,omitempty"` // per-stage timeout (0 = default 600)

	// API mode only.
	Provider  string `yaml:"provider,omitempty"`    // openai, anthropic, google
	Model     string `yaml:"model,omitempty"`       // provider model name
	APIKeyEnv string `yaml:"api_key_env,omitempty"` // env var holding the API key
}

// IsAPI reports whether the engine is reached over a provider HTTP API
// instead of a spawned CLI.
func (e Executor) IsAPI() bool {
	return e.Mode == "api"
}

// Pipeline holds the loop bounds and verdict policy for a run.
type Pipeline struct {
	MaxIterations    int          `yaml:"max_iterations,omitempty"`       // outer plan→user passes (default 3)
	MaxInnerLoops    int          `yaml:"max_inner_iterations,omitempty"` // review/test retry bound (default 3)
	ContinueSessions bool         `yaml:"continue_sessions,omitempty"`    // thread -c through every role invocation
	QueueBackoffSec  int          `yaml:"queue_backoff_sec,omitempty"`    // sleep when the queue is empty (default 30)
	Unrecognized     Unrecognized `yaml:"unrecognized,omitempty"`
}

// Unrecognized configures what happens when a role's output carries no
// recognizable verdict marker. The defaults are asymmetric on purpose:
// review and test pass through (a mumbling reviewer must not deadlock the
// pipeline) while the user verdict stays unsatisfied (silence must not
// terminate a run).
type Unrecognized struct {
	ReviewBlocks  bool `yaml:"review_blocks,omitempty"`  // unrecognized review verdict counts as NEEDS_CHANGES
	TestBlocks    bool `yaml:"test_blocks,omitempty"`    // unrecognized test verdict counts as TESTS_FAILED
	UserSatisfies bool `yaml:"user_satisfies,omitempty"` // unrecognized user verdict counts as SATISFIED
}

// RoleOverride adjusts a single role without replacing its static
// capability profile. Tools, when set, replaces the permitted tool list
// passed to the executor for that role.
type RoleOverride struct {
	Tools      []string `yaml:"tools,omitempty"`
	TimeoutSec int      `yaml:"timeout_sec,omitempty"`
}

// EffectiveArgs returns the final args for the executor CLI, injecting
// non-interactive and auto-accept flags for known tools.
//
// Known tools and their flags:
//   - claude: --print --dangerously-skip-permissions
//   - gemini: --yolo
//   - codex:  --full-auto
//
// Auto-accept flags only apply when auto_accept: true in the config.
// Users can always add these flags manually in args if they prefer.
func (e Executor) EffectiveArgs() []string {
	args := make([]string, len(e.Args))
	copy(args, e.Args)

	switch e.Cmd {
	case "claude":
		if !containsAny(args, "-p", "--print") {
			args = appendFront(args, "--print")
		}
		if e.AutoAccept && !containsAny(args, "--dangerously-skip-permissions", "--permission-mode") {
			args = appendFront(args, "--dangerously-skip-permissions")
		}
	case "gemini":
		if e.AutoAccept && !containsAny(args, "-y", "--yolo") {
			args = appendFront(args, "--yolo")
		}
	case "codex":
		if e.AutoAccept && !containsAny(args, "--full-auto", "--approval-mode") {
			args = appendFront(args, "--full-auto")
		}
	}

	return args
}

// DefaultTimeout returns the effective per-stage timeout in seconds.
func (e Executor) DefaultTimeout() int {
	if e.TimeoutSec > 0 {
		return e.TimeoutSec
	}
	return 600
}

// MaxOuter returns the outer iteration bound.
func (p Pipeline) MaxOuter() int {
	if p.MaxIterations > 0 {
		return p.MaxIterations
	}
	return 3
}

// MaxInner returns the inner retry-loop bound.
func (p Pipeline) MaxInner() int {
	if p.MaxInnerLoops > 0 {
		return p.MaxInnerLoops
	}
	return 3
}

// QueueBackoff returns the queue-empty backoff in seconds.
func (p Pipeline) QueueBackoff() int {
	if p.QueueBackoffSec > 0 {
		return p.QueueBackoffSec
	}
	return 30
}

// Load reads and parses the config file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the config to the given path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns a starter config driving the claude CLI.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Executor: Executor{
			Cmd:        "claude",
			AutoAccept: true,
		},
		Pipeline: Pipeline{
			MaxIterations: 3,
			MaxInnerLoops: 3,
		},
	}
}

func (c *Config) validate() error {
	switch c.Executor.Mode {
	case "", "cli":
		if c.Executor.Cmd == "" {
			return fmt.Errorf("executor: cmd is required")
		}
	case "api":
		if c.Executor.Provider == "" {
			return fmt.Errorf("executor: provider is required in api mode")
		}
		if c.Executor.APIKeyEnv == "" {
			return fmt.Errorf("executor: api_key_env is required in api mode")
		}
	default:
		return fmt.Errorf("executor: unknown mode %q", c.Executor.Mode)
	}
	if c.Pipeline.MaxIterations < 0 {
		return fmt.Errorf("pipeline: max_iterations must be >= 0")
	}
	if c.Pipeline.MaxInnerLoops < 0 {
		return fmt.Errorf("pipeline: max_inner_iterations must be >= 0")
	}
	for name, r := range c.Roles {
		if r.TimeoutSec < 0 {
			return fmt.Errorf("role %q: timeout_sec must be >= 0", name)
		}
	}
	return nil
}

// containsAny checks if any of the targets exist in the slice.
func containsAny(slice []string, targets ...string) bool {
	for _, s := range slice {
		for _, t := range targets {
			if s == t {
				return true
			}
		}
	}
	return false
}

// appendFront inserts a value at the beginning of a slice.
func appendFront(slice []string, val string) []string {
	return append([]string{val}, slice...)
}
