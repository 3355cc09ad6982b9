// Package cli implements the quintet command surface.
package cli

import (
	"github.com/spf13/cobra"
)

// ANSI color codes.
const (
	colorReset   = "\033[0m"
	colorBold    = "\033[1m"
	colorDim     = "\033[2m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
)

var rootCmd = &cobra.Command{
	Use:   "quintet",
	Short: "A five-role development pipeline for AI agents",
	Long: "quintet — plan, implement, review, test, use.\n" +
		"Five agent roles iterate on a task with bounded feedback loops,\n" +
		"git-backed checkpoints, and a human escalation protocol.",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
