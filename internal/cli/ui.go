package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/quintetdev/quintet/internal/tui"
	"github.com/spf13/cobra"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the terminal dashboard",
	Long: `Shows recent runs, their stage history, and pending escalations.
Escalations can be answered inline; answers are folded into the
workspace's SHARED_UNDERSTANDING.md, which every later prompt reads.`,
	RunE: runUI,
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

func runUI(cmd *cobra.Command, args []string) error {
	audit, err := mustStore()
	if err != nil {
		return err
	}
	defer audit.Close()

	p := tea.NewProgram(tui.New(audit, workspacesDir), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
