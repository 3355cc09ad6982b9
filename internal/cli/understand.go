package cli

import (
	"context"
	"fmt"

	"github.com/quintetdev/quintet/internal/checkpoint"
	"github.com/quintetdev/quintet/internal/executor"
	"github.com/quintetdev/quintet/internal/understand"
	"github.com/quintetdev/quintet/internal/workspace"
	"github.com/spf13/cobra"
)

var understandCmd = &cobra.Command{
	Use:   "understand [task description]",
	Short: "Build shared understanding before running the pipeline (phase 0)",
	Long: `Runs the three-step shared understanding session: the engine analyzes
the task and asks clarifying questions, you answer, and the validated
understanding is written to SHARED_UNDERSTANDING.md in the workspace.
Every planner prompt reads that document.

With --answers the questions are answered from a file instead of
interactively (batch mode).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUnderstand,
}

var (
	understandWorkspace string
	understandContext   []string
	understandAnswers   string
)

func init() {
	understandCmd.Flags().StringVarP(&understandWorkspace, "workspace", "w", "main", "Workspace to build understanding in")
	understandCmd.Flags().StringSliceVar(&understandContext, "context", nil, "Context files or notes to include")
	understandCmd.Flags().StringVar(&understandAnswers, "answers", "", "Answer the clarifying questions from this file (batch mode)")
	rootCmd.AddCommand(understandCmd)
}

func runUnderstand(cmd *cobra.Command, args []string) error {
	cfg, err := mustConfig()
	if err != nil {
		return err
	}
	engine, err := executor.NewRunner(cfg.Executor)
	if err != nil {
		return fmt.Errorf("%w; edit .quintet/config.yaml", err)
	}

	ws, err := workspace.Open(understandWorkspace, workspaceRoot(understandWorkspace))
	if err != nil {
		return err
	}

	var answers understand.AnswerSource = understand.ConsoleAnswers{}
	if understandAnswers != "" {
		answers = understand.FileAnswers(understandAnswers)
	}

	task := joinArgs(args)
	fmt.Printf("%sSHARED UNDERSTANDING — Phase 0%s\n", colorBold, colorReset)
	fmt.Printf("TASK: %s\n\n", task)

	p := understand.New(ws, engine, answers)
	doc, err := p.Run(context.Background(), task, understandContext)
	if err != nil {
		return err
	}

	fmt.Println(doc)

	// Checkpoint the understanding so the run starts from it.
	if cp, err := checkpoint.Open(ws.Root); err == nil {
		cp.CommitAll("understand", "shared understanding document")
	}

	fmt.Printf("\nSaved to %s\n", ws.DocPath(workspace.DocShared))
	fmt.Printf("Next: quintet run -w %s \"%s\"\n", understandWorkspace, task)
	return nil
}
