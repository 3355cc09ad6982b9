// Package understand implements phase 0 of the development loop: before
// any planning happens, the engine and a human build a shared
// understanding of the problem in three steps — initial analysis,
// validation against human answers, and a final document every later
// prompt reads.
package understand

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/quintetdev/quintet/internal/executor"
	"github.com/quintetdev/quintet/internal/role"
	"github.com/quintetdev/quintet/internal/workspace"
)

// maxContextLen limits how much of an embedded context file reaches the
// prompt.
const maxContextLen = 5000

// noAnswers is recorded when the human provides nothing; the phase
// proceeds on the engine's own assumptions.
const noAnswers = "(No additional input provided - proceeding with assumptions)"

// Intermediate artifacts kept at the workspace top level next to the
// final shared understanding.
const (
	DocInitialAnalysis = "INITIAL_ANALYSIS.md"
	DocValidation      = "VALIDATION.md"
)

// AnswerSource collects the human's answers to the clarifying questions.
type AnswerSource interface {
	Collect(analysis string) (string, error)
}

// StaticAnswers serves pre-written answers, the batch mode of the phase.
type StaticAnswers string

func (a StaticAnswers) Collect(string) (string, error) { return string(a), nil }

// FileAnswers reads answers from a file at collection time.
type FileAnswers string

func (a FileAnswers) Collect(string) (string, error) {
	data, err := os.ReadFile(string(a))
	if err != nil {
		return "", fmt.Errorf("read answers file: %w", err)
	}
	return string(data), nil
}

// Phase runs the shared understanding session for one workspace.
type Phase struct {
	ws      *workspace.Workspace
	exec    executor.Runner
	answers AnswerSource
}

// New creates the phase. answers decides interactive vs batch behavior.
func New(ws *workspace.Workspace, exec executor.Runner, answers AnswerSource) *Phase {
	return &Phase{ws: ws, exec: exec, answers: answers}
}

// Run executes the three steps and returns the final document text. The
// document is also persisted as the workspace's shared understanding.
// Unlike pipeline stages, this phase fails hard: without understanding
// there is nothing to run the loop on.
func (p *Phase) Run(ctx context.Context, task string, contextSources []string) (string, error) {
	analysis, err := p.invoke(ctx, initialPrompt(task, contextSources), false)
	if err != nil {
		return "", fmt.Errorf("initial analysis: %w", err)
	}
	if err := p.ws.WriteDoc(DocInitialAnalysis, "# Initial Analysis\n\nTask: "+task+"\n\n"+analysis); err != nil {
		return "", err
	}

	answers, err := p.answers.Collect(analysis)
	if err != nil {
		return "", fmt.Errorf("collect answers: %w", err)
	}
	if strings.TrimSpace(answers) == "" {
		answers = noAnswers
	}

	validation, err := p.invoke(ctx, validatePrompt(task, analysis, answers), true)
	if err != nil {
		return "", fmt.Errorf("validate understanding: %w", err)
	}
	if err := p.ws.WriteDoc(DocValidation, "# Validation\n\nHuman Answers:\n"+answers+"\n\n"+validation); err != nil {
		return "", err
	}

	doc, err := p.invoke(ctx, finalPrompt(task, analysis, validation), true)
	if err != nil {
		return "", fmt.Errorf("create shared understanding: %w", err)
	}
	if err := p.ws.WriteDoc(workspace.DocShared, doc); err != nil {
		return "", err
	}

	return doc, nil
}

func (p *Phase) invoke(ctx context.Context, promptText string, continueSession bool) (string, error) {
	sessionDir := p.ws.SessionDir(role.Understand)
	os.MkdirAll(sessionDir, 0755)

	resp, err := p.exec.Invoke(ctx, executor.Request{
		Role:            role.Understand,
		Profile:         role.ProfileFor(role.Understand),
		Prompt:          promptText,
		SessionDir:      sessionDir,
		GrantDirs:       []string{p.ws.Root},
		ContinueSession: continueSession,
	})
	if err != nil {
		return "", err
	}
	if resp.Failed() {
		if resp.Err != nil {
			return "", resp.Err
		}
		return "", fmt.Errorf("engine exited with code %d", resp.ExitCode)
	}
	return strings.TrimSpace(resp.Output), nil
}

func initialPrompt(task string, contextSources []string) string {
	var ctxSection strings.Builder
	if len(contextSources) > 0 {
		ctxSection.WriteString("\nADDITIONAL CONTEXT PROVIDED:\n")
		for _, source := range contextSources {
			if data, err := os.ReadFile(source); err == nil {
				content := string(data)
				if len(content) > maxContextLen {
					content = content[:maxContextLen]
				}
				ctxSection.WriteString("\n--- " + source + " ---\n" + content + "\n")
			} else {
				ctxSection.WriteString("\n" + source + "\n")
			}
		}
	}

	return fmt.Sprintf(`You are helping build shared understanding of a problem before development begins.

TASK: %s
%s
Your job is to:
1. Analyze the task and identify what we know vs what we don't know
2. List assumptions that need validation
3. Identify information gaps that could cause problems later
4. Ask 3-5 clarifying questions that would improve understanding

Format your response as:

## INITIAL ANALYSIS

What we understand about this task...

## ASSUMPTIONS

- Assumption 1 (needs validation: yes/no)
- Assumption 2 ...

## INFORMATION GAPS

What information is missing that we need...

## CLARIFYING QUESTIONS

1. Question 1?
2. Question 2?
...

Be specific and practical. These questions will be answered by a human.`, task, ctxSection.String())
}

func validatePrompt(task, analysis, answers string) string {
	return fmt.Sprintf(`We are building shared understanding of a problem.

ORIGINAL TASK: %s

INITIAL ANALYSIS:
%s

HUMAN ANSWERS TO QUESTIONS:
%s

Based on the human's answers:

1. Update our understanding - what new information did we learn?
2. Identify any remaining gaps or ambiguities
3. Check for contradictions between assumptions and answers
4. Summarize the validated understanding

Format your response as:

## UPDATED UNDERSTANDING

What we now understand with high confidence...

## REMAINING GAPS

What we still don't know (and whether we can proceed without it)...

## POTENTIAL RISKS

Issues that could arise based on current understanding...

## READY TO PROCEED?

- YES: Understanding is sufficient to begin development
- NO: List what else is needed

Be honest about uncertainty.`, task, analysis, answers)
}

func finalPrompt(task, analysis, validation string) string {
	return fmt.Sprintf(`Create a final shared understanding document that captures everything
we've learned about this task. This document will be used by the development team
(planner, implementer, reviewer, tester, user) as their foundation.

ORIGINAL TASK: %s

INITIAL ANALYSIS:
%s

VALIDATED UNDERSTANDING:
%s

Create a comprehensive but concise document with:

## Problem Statement

Clear statement of what we're solving and why

## Context

Relevant background information

## Requirements

What must be true for this to be successful

## Constraints

Limitations, boundaries, things we cannot change

## Assumptions

What we're assuming to be true (mark confidence: high/medium/low)

## Out of Scope

What we are explicitly NOT doing

## Success Criteria

How we'll know when we're done

## Open Questions

Things we don't know but will discover during development

## Key Decisions Made

Decisions that were made during understanding phase

Make this document useful for someone starting fresh.`, task, analysis, validation)
}
