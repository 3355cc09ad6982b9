package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log [run-id]",
	Short: "Show the audit trail of a run",
	Long: `Prints a run's stages, escalations, and events from the audit
database. Without a run id the most recent run is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLog,
}

var logWorkspace string

func init() {
	logCmd.Flags().StringVarP(&logWorkspace, "workspace", "w", "", "With no run id, show the latest run in this workspace")
	rootCmd.AddCommand(logCmd)
}

const timeFormat = "2006-01-02 15:04:05"

func runLog(cmd *cobra.Command, args []string) error {
	audit, err := mustStore()
	if err != nil {
		return err
	}
	defer audit.Close()

	var runID string
	if len(args) > 0 {
		runID = args[0]
	} else {
		latest, err := audit.LatestRun(logWorkspace)
		if err != nil {
			return err
		}
		if latest == nil {
			fmt.Println("No runs yet.")
			return nil
		}
		runID = latest.ID
	}

	run, err := audit.GetRun(runID)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}

	fmt.Printf("%sRun %s%s\n", colorBold, run.ID, colorReset)
	fmt.Printf("  Task:      %s\n", run.Task)
	fmt.Printf("  Workspace: %s\n", run.Workspace)
	fmt.Printf("  Status:    %s%s%s (%d iteration(s))\n",
		statusColor(run.Status), run.Status, colorReset, run.Iterations)
	fmt.Printf("  Started:   %s\n", run.StartedAt.Local().Format(timeFormat))
	if !run.EndedAt.IsZero() {
		fmt.Printf("  Ended:     %s\n", run.EndedAt.Local().Format(timeFormat))
	}

	stages, err := audit.ListStages(runID)
	if err != nil {
		return err
	}
	if len(stages) > 0 {
		fmt.Printf("\n%sStages:%s\n", colorBold, colorReset)
		for _, st := range stages {
			mark := colorGreen + "ok  " + colorReset
			if st.Failed {
				mark = colorRed + "fail" + colorReset
			}
			fmt.Printf("  %s iter %d %-12s %-14s %6.1fs  %s\n",
				mark, st.Iteration, st.Role, st.Verdict,
				float64(st.DurationMS)/1000, st.Artifact)
		}
	}

	escalations, err := audit.ListEscalations(runID)
	if err != nil {
		return err
	}
	if len(escalations) > 0 {
		fmt.Printf("\n%sEscalations:%s\n", colorBold, colorReset)
		for _, e := range escalations {
			fmt.Printf("  %siter %d %s:%s %s\n", colorYellow, e.Iteration, e.Role, colorReset, firstLogLine(e.Question))
			fmt.Printf("    -> %s\n", firstLogLine(e.Resolution))
		}
	}

	events, err := audit.GetEvents(runID)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		fmt.Printf("\n%sEvents:%s\n", colorBold, colorReset)
		for _, ev := range events {
			fmt.Printf("  %s%s%s %-10s %s\n",
				colorDim, ev.Timestamp.Local().Format(timeFormat), colorReset,
				ev.Type, truncate(ev.Content, 70))
		}
	}

	return nil
}

func firstLogLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
