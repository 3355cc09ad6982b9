// Package verdict classifies raw role output into the enumerated verdict
// variants. Classification happens once, at the stage-runner boundary;
// everything downstream works with typed verdicts, never with substring
// searches over prose.
package verdict

import (
	"strings"

	"github.com/quintetdev/quintet/internal/role"
)

// Verdict is the enumerated outcome classification of one stage.
type Verdict string

const (
	// Planner confidence.
	ConfidenceHigh   Verdict = "HIGH"
	ConfidenceMedium Verdict = "MEDIUM"
	ConfidenceLow    Verdict = "LOW"

	// Reviewer.
	Approved     Verdict = "APPROVED"
	NeedsChanges Verdict = "NEEDS_CHANGES"

	// Tester.
	TestsPassed Verdict = "TESTS_PASSED"
	TestsFailed Verdict = "TESTS_FAILED"

	// User.
	Satisfied        Verdict = "SATISFIED"
	NeedsImprovement Verdict = "NEEDS_IMPROVEMENT"

	// Unrecognized means no marker was found. What it counts as is a
	// Policy decision, never an implicit default.
	Unrecognized Verdict = "UNRECOGNIZED"
)

// markers lists, per role, the blocking variant first: when an output
// carries both markers (a reviewer quoting "APPROVED" while demanding
// changes), the blocking one wins.
var markers = map[role.Role][]Verdict{
	role.Reviewer:    {NeedsChanges, Approved},
	role.Tester:      {TestsFailed, TestsPassed},
	role.User:        {NeedsImprovement, Satisfied},
	role.Implementer: {},
}

// Classify maps one role's raw output to its verdict variant.
// The implementer produces no verdict and always classifies Unrecognized.
func Classify(r role.Role, output string) Verdict {
	if r == role.Planner {
		return classifyConfidence(output)
	}
	upper := strings.ToUpper(output)
	for _, v := range markers[r] {
		if strings.Contains(upper, string(v)) {
			return v
		}
	}
	return Unrecognized
}

// classifyConfidence reads the planner's CONFIDENCE: line. HIGH/MEDIUM/LOW
// are too short to search for across the whole output ("LOW" hides inside
// "workflow"), so only an explicit line counts.
func classifyConfidence(output string) Verdict {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.ToUpper(strings.TrimSpace(line))
		if !strings.HasPrefix(trimmed, "CONFIDENCE:") {
			continue
		}
		rest := strings.TrimSpace(trimmed[len("CONFIDENCE:"):])
		for _, v := range []Verdict{ConfidenceHigh, ConfidenceMedium, ConfidenceLow} {
			if strings.Contains(rest, string(v)) {
				return v
			}
		}
	}
	return Unrecognized
}

// Policy decides what an Unrecognized verdict counts as, per role.
//
// The zero value is the reference behavior and it is asymmetric on
// purpose: unrecognized review/test verdicts pass (the pipeline keeps
// moving forward) while an unrecognized user verdict is NOT satisfied
// (a run never terminates on silence).
type Policy struct {
	ReviewBlocks  bool // unrecognized review counts as NEEDS_CHANGES
	TestBlocks    bool // unrecognized test counts as TESTS_FAILED
	UserSatisfies bool // unrecognized user counts as SATISFIED
}

// ReviewApproved reports whether a reviewer verdict lets the pipeline
// leave the review loop.
func (p Policy) ReviewApproved(v Verdict) bool {
	if v == Unrecognized {
		return !p.ReviewBlocks
	}
	return v == Approved
}

// TestsPassed reports whether a tester verdict lets the pipeline leave
// the test loop.
func (p Policy) TestsPassed(v Verdict) bool {
	if v == Unrecognized {
		return !p.TestBlocks
	}
	return v == TestsPassed
}

// UserSatisfied reports whether a user verdict terminates the run as DONE.
func (p Policy) UserSatisfied(v Verdict) bool {
	if v == Unrecognized {
		return p.UserSatisfies
	}
	return v == Satisfied
}
