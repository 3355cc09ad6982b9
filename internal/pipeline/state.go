package pipeline

import (
	"github.com/quintetdev/quintet/internal/verdict"
)

// State is one node of the pipeline state machine.
type State string

const (
	StatePlan      State = "PLAN"
	StateImplement State = "IMPLEMENT"
	StateReview    State = "REVIEW"
	StateTest      State = "TEST"
	StateUser      State = "USER"

	// Terminals. Both are successful process outcomes; DONE means the
	// user verdict was satisfied, INCOMPLETE means a bound ran out first.
	StateDone       State = "DONE"
	StateIncomplete State = "INCOMPLETE"
)

// Terminal reports whether the state ends the run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateIncomplete
}

// Rework marks whose feedback the implementer is currently addressing.
type Rework int

const (
	ReworkNone   Rework = iota
	ReworkReview        // inner loop A: review sent the work back
	ReworkTest          // inner loop B: tests sent the work back
)

// Counters is the complete mutable state of a run besides the State
// itself. It travels through Next by value; nothing else carries run
// state between transitions.
type Counters struct {
	Iteration   int // outer iteration, 1-based
	ReviewLoops int // review→implement retries this iteration
	TestLoops   int // test→implement retries this iteration
	Rework      Rework
}

// Bounds are the loop limits for a run. MaxInnerLoops counts
// implement→review (or implement→test) round-trips including the first
// one, so each inner loop allows MaxInnerLoops-1 retries.
type Bounds struct {
	MaxIterations int // outer plan→user iterations
	MaxInnerLoops int // per-iteration round-trips for each inner loop
}

// Next is the pure transition function of the pipeline. Given the state
// just executed, the verdict it produced, and the current counters, it
// returns the next state and updated counters. It touches nothing and
// decides everything: both inner loops, fall-forward on exhaustion, the
// outer iteration loop, and the two terminals.
func Next(s State, v verdict.Verdict, c Counters, p verdict.Policy, b Bounds) (State, Counters) {
	switch s {
	case StatePlan:
		// Planner confidence is recorded, never gating.
		c.Rework = ReworkNone
		return StateImplement, c

	case StateImplement:
		if c.Rework == ReworkTest {
			// Inner loop B goes straight back to the tester; the review
			// already approved this iteration's approach.
			return StateTest, c
		}
		return StateReview, c

	case StateReview:
		if p.ReviewApproved(v) {
			c.Rework = ReworkNone
			return StateTest, c
		}
		if c.ReviewLoops < b.MaxInnerLoops-1 {
			c.ReviewLoops++
			c.Rework = ReworkReview
			return StateImplement, c
		}
		// Retries exhausted: fall forward and let the tester judge.
		c.Rework = ReworkNone
		return StateTest, c

	case StateTest:
		if p.TestsPassed(v) {
			c.Rework = ReworkNone
			return StateUser, c
		}
		if c.TestLoops < b.MaxInnerLoops-1 {
			c.TestLoops++
			c.Rework = ReworkTest
			return StateImplement, c
		}
		// Retries exhausted: fall forward and let the user judge.
		c.Rework = ReworkNone
		return StateUser, c

	case StateUser:
		if p.UserSatisfied(v) {
			return StateDone, c
		}
		if c.Iteration < b.MaxIterations {
			c.Iteration++
			c.ReviewLoops = 0
			c.TestLoops = 0
			c.Rework = ReworkNone
			return StatePlan, c
		}
		return StateIncomplete, c
	}

	return s, c
}
