package cli

import (
	"fmt"
	"os"

	"github.com/quintetdev/quintet/internal/config"
	"github.com/quintetdev/quintet/internal/store"
	"github.com/quintetdev/quintet/internal/workspace"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [workspace-name]",
	Short: "Initialize quintet and create a workspace",
	Long: `Creates a .quintet/ directory with default config and audit database,
plus a named workspace (default: main). With --from, the workspace starts
as a clone of an existing git repository.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var initFrom string // git URL to clone the workspace from

func init() {
	initCmd.Flags().StringVar(&initFrom, "from", "", "Clone the workspace from a git URL")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	name := "main"
	if len(args) > 0 {
		name = args[0]
	}

	firstInit := false
	if _, err := os.Stat(quintetDirName); os.IsNotExist(err) {
		firstInit = true
		if err := os.MkdirAll(quintetDirName, 0755); err != nil {
			return fmt.Errorf("create %s: %w", quintetDirName, err)
		}
		if err := config.Save(quintetPath("config.yaml"), config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		// Create the database by opening it (migration runs automatically).
		s, err := store.New(quintetPath("quintet.db"))
		if err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		s.Close()
	}

	root := workspaceRoot(name)
	if _, err := os.Stat(root); err == nil {
		return fmt.Errorf("workspace %s already exists at %s", name, root)
	}

	var err error
	if initFrom != "" {
		_, err = workspace.Clone(name, root, initFrom)
	} else {
		_, err = workspace.Open(name, root)
	}
	if err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	if firstInit {
		fmt.Println("Initialized quintet in .quintet/")
	}
	fmt.Printf("Created workspace %s%s%s at %s\n", colorCyan, name, colorReset, root)
	fmt.Println("")
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit .quintet/config.yaml to pick your engine (claude, gemini, codex)")
	fmt.Printf("  2. Run: quintet understand -w %s \"your task\"   (optional phase 0)\n", name)
	fmt.Printf("  3. Run: quintet run -w %s \"your task\"\n", name)

	return nil
}
