// Package prompt builds the full prompt each role receives. This is the
// key piece — how information moves between roles: plans flow forward,
// review and test feedback flow back, user feedback loops to the planner,
// and the shared understanding documents frame every stage.
package prompt

import (
	"fmt"
	"strings"

	"github.com/quintetdev/quintet/internal/role"
	"github.com/quintetdev/quintet/internal/workspace"
)

// maxDiffLen limits embedded diffs to avoid blowing up the prompt.
const maxDiffLen = 8000

// Builder assembles prompts for one workspace. The shared understanding
// documents are read fresh on every build so human answers and iteration
// summaries land in the very next prompt.
type Builder struct {
	ws *workspace.Workspace
}

// New creates a prompt builder for a workspace.
func New(ws *workspace.Workspace) *Builder {
	return &Builder{ws: ws}
}

// Plan builds the planner prompt. userFeedback is the user stage's output
// from the previous iteration, empty on the first.
func (b *Builder) Plan(task, userFeedback string) string {
	parts := []string{roleHeader(role.Planner)}

	parts = append(parts, taskSection(task))
	parts = append(parts, b.understandingSections()...)

	if userFeedback != "" {
		parts = append(parts, "## User Feedback From Previous Iteration\n"+
			userFeedback+"\n\n"+
			"Consider this feedback. Decide which feature requests are worth implementing.\n"+
			"Explain which you'll address and which you won't (and why).")
	}

	parts = append(parts, `## Your Job
1. Requirements analysis - what exactly needs to be built and why
2. Implementation steps (suggestions for the implementer)
3. Key design decisions
4. Success criteria - what the user should be able to do when complete
5. If addressing user feedback, explain what you're prioritizing and why

Be concise and actionable. The implementer may push back on the HOW.`)

	parts = append(parts, responseFormat(role.Planner))
	return strings.Join(parts, "\n\n")
}

// Implement builds the implementer prompt. reviewerFeedback and
// testerFeedback carry the latest rework request, if any; at most one is
// non-empty per build.
func (b *Builder) Implement(task, plan, reviewerFeedback, testerFeedback string) string {
	parts := []string{roleHeader(role.Implementer)}

	parts = append(parts, taskSection(task))
	parts = append(parts, "## Planner's Plan\n"+plan)

	if reviewerFeedback != "" {
		parts = append(parts, "## Reviewer Feedback\n"+reviewerFeedback+
			"\n\nAddress the reviewer's concerns in your implementation.")
	}
	if testerFeedback != "" {
		parts = append(parts, "## Tester Feedback\n"+testerFeedback+
			"\n\nFix the failures the tester found.")
	}

	parts = append(parts, `## Your Job
1. Evaluate the planner's suggested approach
2. If the approach won't work, explain WHY and what you'll do instead
3. Implement the solution with clear error messages and structured output
4. Write code that's easy for users (human or AI) to understand when it fails

Provide the implementation. If you're pushing back on the plan, explain why first.`)

	parts = append(parts, responseFormat(role.Implementer))
	return strings.Join(parts, "\n\n")
}

// Review builds the reviewer prompt. diff is the change set the
// implementer's branch carries; empty when nothing changed.
func (b *Builder) Review(task, implementation, diff string) string {
	parts := []string{roleHeader(role.Reviewer)}

	parts = append(parts, taskSection(task))
	parts = append(parts, "## Implementation\n"+implementation)

	if diff != "" {
		parts = append(parts, "## Changes (git diff)\n```diff\n"+truncateDiff(diff)+"\n```")
	}

	parts = append(parts, `## Your Job
Provide TWO sections:

1. FEEDBACK FOR IMPLEMENTER:
   - Correctness: Does it fulfill the task?
   - Error handling: Are errors clear and actionable?
   - Usability: Can users easily understand failures?
   - If changes are required, list each one specifically

2. FEED-FORWARD FOR TESTER:
   - Key behaviors to test
   - Edge cases to consider
   - Suggested test scenarios
   - Any areas of concern to focus testing on

Format your response with clear section headers.`)

	parts = append(parts, responseFormat(role.Reviewer))
	return strings.Join(parts, "\n\n")
}

// Test builds the tester prompt, threading the reviewer's feed-forward
// notes in.
func (b *Builder) Test(task, implementation, reviewerNotes string) string {
	parts := []string{roleHeader(role.Tester)}

	parts = append(parts, taskSection(task))
	parts = append(parts, "## Implementation\n"+implementation)

	if reviewerNotes != "" {
		parts = append(parts, "## Reviewer's Notes For Testing\n"+reviewerNotes)
	}

	parts = append(parts, `## Your Job
1. TEST CASES:
   - Tests that validate the implementation
   - Edge cases based on reviewer notes
   - A test script if applicable

2. USAGE INSTRUCTIONS FOR USER:
   - Clear step-by-step instructions on how to use this software
   - Example commands or function calls
   - Expected outputs
   - Common error scenarios and what they mean

The user stage will follow your instructions to actually run the software.
Make the instructions clear enough for someone (human or AI) to follow.`)

	parts = append(parts, responseFormat(role.Tester))
	return strings.Join(parts, "\n\n")
}

// User builds the user-stage prompt from the tester's usage instructions.
func (b *Builder) User(task, implementation, usage string) string {
	parts := []string{roleHeader(role.User)}

	parts = append(parts, taskSection(task))
	parts = append(parts, "## Implementation\n"+implementation)
	parts = append(parts, "## Usage Instructions From Tester\n"+usage)

	parts = append(parts, `## Your Job
Follow the instructions and try to accomplish the task.

After using the software, provide:

1. USAGE REPORT:
   - What worked
   - What failed or was confusing
   - What information was missing from error messages

2. FEATURE REQUESTS:
   What changes would make your job easier? Be specific and practical.
   Think about:
   - What frustrated you?
   - What information were you missing?
   - What capabilities did you wish you had?

The planner will review your feature requests and decide which to implement.`)

	parts = append(parts, responseFormat(role.User))
	return strings.Join(parts, "\n\n")
}

// understandingSections returns the shared and cumulative understanding
// documents as prompt sections, skipping whichever is absent.
func (b *Builder) understandingSections() []string {
	var parts []string
	if doc := strings.TrimSpace(b.ws.ReadDoc(workspace.DocShared)); doc != "" {
		parts = append(parts, "## Shared Understanding\n"+doc)
	}
	if doc := strings.TrimSpace(b.ws.ReadDoc(workspace.DocCumulative)); doc != "" {
		parts = append(parts, "## Learnings From Previous Iterations\n"+doc)
	}
	return parts
}

func taskSection(task string) string {
	return "## Task\n" + task
}

func roleHeader(r role.Role) string {
	switch r {
	case role.Planner:
		return "# You are a Software Planner (product manager + architect)\nYou decide WHAT to build and WHY. You suggest HOW, but the implementer has final say on implementation approach."
	case role.Implementer:
		return "# You are a Software Implementer\nYou have ULTIMATE CONTROL of HOW the software is built. You can push back on the planner's suggestions if they won't work."
	case role.Reviewer:
		return "# You are a Code Reviewer\nYou provide feedback for two audiences: the implementer (what to fix) and the tester (what to probe)."
	case role.Tester:
		return "# You are a QA Tester\nYou create tests for the implementation and document how to use the software."
	case role.User:
		return "# You are a User of This Software\nYou ACTUALLY USE the software by following the tester's instructions, then provide feedback."
	default:
		return fmt.Sprintf("# You are working as: %s", r)
	}
}

// responseFormat gives each role the exact verdict vocabulary the
// orchestrator classifies on, plus the escalation protocol.
func responseFormat(r role.Role) string {
	var verdictLine string
	switch r {
	case role.Planner:
		verdictLine = "End with a line of the form:\n\nCONFIDENCE: HIGH or MEDIUM or LOW"
	case role.Reviewer:
		verdictLine = "End the implementer section with a line of the form:\n\nVERDICT: APPROVED or NEEDS_CHANGES"
	case role.Tester:
		verdictLine = "End the test cases section with a line of the form:\n\nVERDICT: TESTS_PASSED or TESTS_FAILED"
	case role.User:
		verdictLine = "End with a line of the form:\n\nVERDICT: SATISFIED or NEEDS_IMPROVEMENT"
	default:
		verdictLine = "State clearly whether you completed the work."
	}

	return "## Response Format\n" + verdictLine + `

If you cannot proceed without human input, start a line with one of:
BLOCKED: / STUCK: / ESCALATE: / QUESTION FOR HUMAN: / NEED CLARIFICATION:
followed by your question, then a blank line. Otherwise, never use those
phrases at the start of a line.`
}

func truncateDiff(diff string) string {
	if len(diff) <= maxDiffLen {
		return diff
	}
	return diff[:maxDiffLen] + fmt.Sprintf("\n\n... (diff truncated, %d bytes total)", len(diff))
}
