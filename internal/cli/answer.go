package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quintetdev/quintet/internal/checkpoint"
	"github.com/quintetdev/quintet/internal/escalate"
	"github.com/quintetdev/quintet/internal/workspace"
	"github.com/spf13/cobra"
)

var answerCmd = &cobra.Command{
	Use:   "answer [escalation-file] [answer text]",
	Short: "Answer a pending escalation by file",
	Long: `Writes an answer into a persisted escalation file (under
workspaces/<name>/escalations/) and folds it into the workspace's
SHARED_UNDERSTANDING.md. Every later prompt reads that document, so the
answer reaches all subsequent stages even though the escalating stage
already proceeded on best judgment.

Run without arguments to list escalation files and whether each has an
answer yet.`,
	RunE: runAnswer,
}

var answerWorkspace string

func init() {
	answerCmd.Flags().StringVarP(&answerWorkspace, "workspace", "w", "main", "Workspace the escalation belongs to")
	rootCmd.AddCommand(answerCmd)
}

func runAnswer(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listEscalationFiles()
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: quintet answer <escalation-file> <answer text>")
	}

	path := args[0]
	if !strings.Contains(path, string(os.PathSeparator)) {
		// Bare filename: resolve inside the workspace's escalations dir.
		path = filepath.Join(workspaceRoot(answerWorkspace), "escalations", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read escalation file: %w", err)
	}
	if !strings.Contains(string(data), escalate.AnswerHeading) {
		return fmt.Errorf("%s is not an escalation file (no %q heading)", path, escalate.AnswerHeading)
	}
	if _, answered := escalate.FileAnswer(path); answered {
		return fmt.Errorf("%s already has an answer", path)
	}

	answer := joinArgs(args[1:])
	content := strings.TrimRight(string(data), "\n") + "\n" + answer + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write answer: %w", err)
	}

	if err := recordAnswer(path); err != nil {
		return err
	}

	fmt.Printf("%sAnswered%s %s\n", colorGreen, colorReset, path)
	return nil
}

// recordAnswer folds an answered escalation file into the shared
// understanding document of the workspace it lives in, and checkpoints
// the exchange under the human tag.
func recordAnswer(path string) error {
	esc, err := escalate.ReadArtifact(path)
	if err != nil {
		return err
	}

	// escalations/ sits directly under the workspace root.
	root := filepath.Dir(filepath.Dir(path))
	ws, err := workspace.Open(filepath.Base(root), root)
	if err != nil {
		return err
	}
	if err := ws.AppendDoc(workspace.DocShared, esc.Section()); err != nil {
		return err
	}

	if cp, err := checkpoint.Open(root); err == nil {
		cp.CommitAll("human", fmt.Sprintf("answer escalation from %s (iteration %d)", esc.Role, esc.Iteration))
	}
	return nil
}

func listEscalationFiles() error {
	dir := filepath.Join(workspaceRoot(answerWorkspace), "escalations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No escalations.")
			return nil
		}
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		fmt.Println("No escalations.")
		return nil
	}

	for _, name := range names {
		path := filepath.Join(dir, name)
		state := colorYellow + "pending " + colorReset
		if _, ok := escalate.FileAnswer(path); ok {
			state = colorGreen + "answered" + colorReset
		}
		fmt.Printf("  %s %s\n", state, name)
	}
	return nil
}
