package escalate

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
)

// ConsoleResolver presents the question to a human on the terminal and
// blocks for an answer. Input is freeform, terminated by a blank line.
// If the human typed nothing but edited the persisted escalation artifact
// instead, the answer is read from there. Otherwise the sentinel applies.
type ConsoleResolver struct{}

func (ConsoleResolver) Resolve(e *Escalation) (string, error) {
	yellow := color.New(color.FgYellow, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Println()
	fmt.Printf("%s the %s agent needs your input:\n\n", yellow("⚠ ESCALATION —"), e.Role)
	for _, line := range strings.Split(e.Question, "\n") {
		fmt.Printf("    %s\n", line)
	}
	fmt.Println()
	fmt.Printf("%s\n", dim("Type your answer; finish with a blank line. Just press enter to skip."))
	if e.ArtifactPath != "" {
		fmt.Printf("%s\n", dim(fmt.Sprintf("Or edit %s below the %q heading.", e.ArtifactPath, AnswerHeading)))
	}
	fmt.Println()

	rl, err := readline.New("> ")
	if err != nil {
		return "", fmt.Errorf("open console: %w", err)
	}
	defer rl.Close()

	var lines []string
	for {
		line, err := rl.Readline()
		if err != nil {
			// Ctrl+C or Ctrl+D both end input collection, not the run.
			if err == readline.ErrInterrupt || err == io.EOF {
				break
			}
			return "", fmt.Errorf("read answer: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}

	if answer := strings.TrimSpace(strings.Join(lines, "\n")); answer != "" {
		return answer, nil
	}

	// Nothing typed — maybe the artifact was edited directly.
	if e.ArtifactPath != "" {
		if answer, ok := FileAnswer(e.ArtifactPath); ok {
			return answer, nil
		}
	}

	return NoResponse, nil
}
