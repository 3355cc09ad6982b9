// Package escalate detects when a role is blocked on a human and runs the
// bounded resolution protocol. Resolution is the only deliberate blocking
// point in the pipeline, and it can never deadlock: when no answer arrives
// the sentinel resolution lets the run continue on best judgment.
package escalate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quintetdev/quintet/internal/role"
)

// Markers are the phrases (matched case-insensitively at line start) that
// raise an escalation.
var Markers = []string{
	"ESCALATE:",
	"QUESTION FOR HUMAN:",
	"NEED CLARIFICATION:",
	"STUCK:",
	"BLOCKED:",
}

// NoResponse is the sentinel resolution recorded when the human provides
// no answer.
const NoResponse = "no response; proceed with best judgment"

// AnswerHeading is the marker heading in a persisted escalation artifact.
// Text after it counts as the human's answer.
const AnswerHeading = "## ANSWER"

// Escalation is one detected request for human input.
type Escalation struct {
	Role         role.Role
	Iteration    int
	Question     string // the marker line through the next blank line
	Resolution   string // human answer, or NoResponse
	ArtifactPath string // persisted escalation file, if written
}

// Detect scans output line by line for an escalation marker. On the first
// match it captures from the marker line through the next blank line,
// bounding the question to one paragraph. Detection is pure: running it
// twice on the same text yields the same payload.
func Detect(text string) *Escalation {
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		if !hasMarker(line) {
			continue
		}

		captured := []string{strings.TrimSpace(line)}
		for _, next := range lines[i+1:] {
			if strings.TrimSpace(next) == "" {
				break
			}
			captured = append(captured, strings.TrimSpace(next))
		}

		return &Escalation{Question: strings.Join(captured, "\n")}
	}

	return nil
}

func hasMarker(line string) bool {
	upper := strings.ToUpper(strings.TrimSpace(line))
	for _, m := range Markers {
		if strings.HasPrefix(upper, m) {
			return true
		}
	}
	return false
}

// Resolver collects a human answer for one escalation.
type Resolver interface {
	Resolve(e *Escalation) (string, error)
}

// FileAnswer reads a persisted escalation artifact and returns the text
// the human wrote after the answer heading, if any.
func FileAnswer(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	_, after, found := strings.Cut(string(data), AnswerHeading)
	if !found {
		return "", false
	}

	answer := strings.TrimSpace(after)
	if answer == "" {
		return "", false
	}
	return answer, true
}

// Artifact renders the escalation file persisted into the workspace. The
// human may edit it below the answer heading instead of answering on the
// console.
func (e *Escalation) Artifact() string {
	var sb strings.Builder
	sb.WriteString("# Escalation from " + string(e.Role) + "\n\n")
	sb.WriteString(e.Question + "\n\n")
	sb.WriteString(AnswerHeading + "\n")
	return sb.String()
}

// Section renders the shared-understanding entry for a resolved
// escalation. Every prompt re-reads the shared understanding document,
// so appending this section is what makes an answer reach later stages.
func (e *Escalation) Section() string {
	return fmt.Sprintf("\n\n## Human Answer (iteration %d, %s)\nQuestion:\n%s\n\nAnswer:\n%s\n",
		e.Iteration, e.Role, e.Question, e.Resolution)
}

// ReadArtifact parses a persisted escalation file back into an
// Escalation: iteration and role from the file name, question from the
// body, resolution from any text after the answer heading.
func ReadArtifact(path string) (*Escalation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read escalation file: %w", err)
	}

	before, after, found := strings.Cut(string(data), AnswerHeading)
	if !found {
		return nil, fmt.Errorf("%s is not an escalation file (no %q heading)", path, AnswerHeading)
	}

	e := &Escalation{
		ArtifactPath: path,
		Resolution:   strings.TrimSpace(after),
	}

	// Body after the "# Escalation from <role>" header line.
	if _, body, ok := strings.Cut(before, "\n"); ok {
		e.Question = strings.TrimSpace(body)
	}

	// File names follow iter-NN-<role>.md.
	name := strings.TrimSuffix(filepath.Base(path), ".md")
	if parts := strings.SplitN(name, "-", 3); len(parts) == 3 && parts[0] == "iter" {
		fmt.Sscanf(parts[1], "%d", &e.Iteration)
		if r, err := role.Parse(parts[2]); err == nil {
			e.Role = r
		}
	}

	return e, nil
}

// SentinelResolver always yields the no-response sentinel. Used in queue
// mode and in tests, where nobody is at the console.
type SentinelResolver struct{}

func (SentinelResolver) Resolve(e *Escalation) (string, error) {
	if e.ArtifactPath != "" {
		if answer, ok := FileAnswer(e.ArtifactPath); ok {
			return answer, nil
		}
	}
	return NoResponse, nil
}
