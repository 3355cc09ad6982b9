package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quintetdev/quintet/internal/driver"
	"github.com/quintetdev/quintet/internal/escalate"
	"github.com/quintetdev/quintet/internal/executor"
	"github.com/quintetdev/quintet/internal/store"
	"github.com/quintetdev/quintet/internal/workspace"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [task description]",
	Short: "Run the five-role pipeline on a task",
	Long: `Runs the full development loop: plan, implement, review, test, use.
Escalations block on your answer at the console; every stage is
checkpointed to a git branch and merged back into the trunk.

The run always ends DONE or INCOMPLETE with a FINAL_REPORT.md in the
workspace — INCOMPLETE is a bounded outcome, not an error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runWorkspace     string
	runMaxIterations int
	runUnderstanding string // pre-built shared understanding document
	runContinue      bool   // resume each role's prior conversation
)

func init() {
	runCmd.Flags().StringVarP(&runWorkspace, "workspace", "w", "main", "Workspace to run in")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Override the outer iteration bound")
	runCmd.Flags().StringVar(&runUnderstanding, "understanding", "", "Path to a shared understanding document to seed the run")
	runCmd.Flags().BoolVarP(&runContinue, "continue", "c", false, "Continue each role's prior conversation")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := mustConfig()
	if err != nil {
		return err
	}
	audit, err := mustStore()
	if err != nil {
		return err
	}
	defer audit.Close()

	engine, err := executor.NewRunner(cfg.Executor)
	if err != nil {
		return fmt.Errorf("%w; edit .quintet/config.yaml", err)
	}

	if runMaxIterations > 0 {
		cfg.Pipeline.MaxIterations = runMaxIterations
	}
	if runContinue {
		cfg.Pipeline.ContinueSessions = true
	}

	task := joinArgs(args)

	// Seed a pre-built shared understanding before the first plan.
	if runUnderstanding != "" {
		data, err := os.ReadFile(runUnderstanding)
		if err != nil {
			return fmt.Errorf("read understanding document: %w", err)
		}
		ws, err := workspace.Open(runWorkspace, workspaceRoot(runWorkspace))
		if err != nil {
			return err
		}
		if err := ws.WriteDoc(workspace.DocShared, string(data)); err != nil {
			return err
		}
	}

	d := driver.New(driver.Options{
		BaseDir:  workspacesDir,
		Engine:   engine,
		Config:   cfg,
		Audit:    audit,
		Resolver: escalate.ConsoleResolver{},
		Logf: func(format string, a ...any) {
			fmt.Printf(colorDim+format+colorReset+"\n", a...)
		},
	})

	fmt.Printf("%sTASK:%s %s\n", colorBold, colorReset, task)
	fmt.Printf("%sWORKSPACE:%s %s  %sENGINE:%s %s\n\n",
		colorBold, colorReset, runWorkspace, colorBold, colorReset, cfg.Executor.Cmd)

	result, err := d.RunTask(context.Background(), runWorkspace, task)
	if err != nil {
		return err
	}

	printRunResult(result.Status, result.Iterations, len(result.Stages))
	fmt.Printf("\nReport: %s\n", filepath.Join(workspaceRoot(runWorkspace), workspace.DocReport))
	fmt.Printf("Audit:  quintet log %s\n", result.RunID)
	return nil
}

func printRunResult(status store.RunStatus, iterations, stages int) {
	color := colorGreen
	if status != store.StatusDone {
		color = colorYellow
	}
	fmt.Printf("\n%s%s%s after %d iteration(s), %d stage(s)\n",
		color+colorBold, status, colorReset, iterations, stages)
}

func joinArgs(args []string) string {
	task := ""
	for i, a := range args {
		if i > 0 {
			task += " "
		}
		task += a
	}
	return task
}
