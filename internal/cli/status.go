package cli

import (
	"fmt"

	"github.com/quintetdev/quintet/internal/store"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent pipeline runs",
	RunE:  runStatus,
}

var statusFilter string

func init() {
	statusCmd.Flags().StringVar(&statusFilter, "filter", "", "Only show runs with this status (running, done, incomplete, failed)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	audit, err := mustStore()
	if err != nil {
		return err
	}
	defer audit.Close()

	runs, err := audit.ListRuns(statusFilter)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs yet. Start one with: quintet run \"your task\"")
		return nil
	}

	fmt.Printf("%s%-36s %-10s %-10s %4s  %s%s\n",
		colorBold, "RUN", "WORKSPACE", "STATUS", "ITER", "TASK", colorReset)
	for _, r := range runs {
		fmt.Printf("%-36s %-10s %s%-10s%s %4d  %s\n",
			r.ID, r.Workspace, statusColor(r.Status), r.Status, colorReset,
			r.Iterations, truncate(r.Task, 50))
	}
	return nil
}

func statusColor(s store.RunStatus) string {
	switch s {
	case store.StatusDone:
		return colorGreen
	case store.StatusRunning:
		return colorCyan
	case store.StatusFailed:
		return colorRed
	default:
		return colorYellow
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
