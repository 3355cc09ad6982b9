package understand

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
)

// ConsoleAnswers collects the human's answers interactively. Input is
// freeform, terminated by a blank line; Ctrl+C or Ctrl+D end collection
// with whatever was typed.
type ConsoleAnswers struct{}

func (ConsoleAnswers) Collect(analysis string) (string, error) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Println()
	fmt.Printf("%s\n", cyan("Please answer the clarifying questions above."))
	fmt.Printf("%s\n\n", dim("You can paste multiple lines. Finish with a blank line."))

	rl, err := readline.New("> ")
	if err != nil {
		return "", fmt.Errorf("open console: %w", err)
	}
	defer rl.Close()

	var lines []string
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				break
			}
			return "", fmt.Errorf("read answers: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			if len(lines) > 0 {
				break
			}
			continue
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n"), nil
}
