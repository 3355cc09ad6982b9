// Package role defines the five fixed pipeline participants and the
// capability profile each one hands to the agent executor.
package role

import "fmt"

// Role is one of the five fixed pipeline participants.
type Role string

const (
	Planner     Role = "planner"
	Implementer Role = "implementer"
	Reviewer    Role = "reviewer"
	Tester      Role = "tester"
	User        Role = "user"

	// Understand is not a pipeline stage. It runs before iteration 1 to
	// build the shared understanding document all planner prompts read.
	Understand Role = "understand"
)

// Pipeline lists the five stage roles in execution order.
var Pipeline = [5]Role{Planner, Implementer, Reviewer, Tester, User}

// Parse converts a string into a known Role.
func Parse(s string) (Role, error) {
	switch Role(s) {
	case Planner, Implementer, Reviewer, Tester, User, Understand:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role: %q", s)
}

// Valid reports whether r is one of the five stage roles.
func (r Role) Valid() bool {
	for _, p := range Pipeline {
		if r == p {
			return true
		}
	}
	return false
}

// Profile is an ordered set of permission tags passed opaquely to the
// executor. The orchestrator never inspects or enforces the tags —
// enforcement is the executor's job.
type Profile struct {
	Tools       []string // permitted operation categories, in order
	GrantsWrite bool     // whether the role may modify the shared workspace
	Description string
}

// DefaultProfiles maps each role to its static capability profile.
// Planner and reviewer only read; the implementer writes; the tester
// writes tests and runs them; the user reads and executes.
var DefaultProfiles = map[Role]Profile{
	Understand: {
		Tools:       []string{"Read", "Glob", "Grep"},
		Description: "reads files for context gathering",
	},
	Planner: {
		Tools:       []string{"Read", "Glob", "Grep"},
		Description: "reads the codebase to plan, does not write",
	},
	Implementer: {
		Tools:       []string{"Read", "Write", "Edit", "Glob", "Grep"},
		GrantsWrite: true,
		Description: "reads, writes and edits files in the workspace",
	},
	Reviewer: {
		Tools:       []string{"Read", "Glob", "Grep"},
		Description: "reads files for review, does not modify",
	},
	Tester: {
		Tools:       []string{"Read", "Write", "Edit", "Glob", "Grep", "Bash"},
		GrantsWrite: true,
		Description: "creates test files and runs them",
	},
	User: {
		Tools:       []string{"Read", "Glob", "Grep", "Bash"},
		GrantsWrite: true,
		Description: "reads the code and actually runs it",
	},
}

// ProfileFor returns the capability profile for a role, falling back to
// read-only for anything unknown.
func ProfileFor(r Role) Profile {
	if p, ok := DefaultProfiles[r]; ok {
		return p
	}
	return Profile{Tools: []string{"Read"}, Description: "default: read only"}
}
