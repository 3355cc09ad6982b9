package cli

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/quintetdev/quintet/internal/checkpoint"
	"github.com/quintetdev/quintet/internal/role"
	"github.com/quintetdev/quintet/internal/understand"
	"github.com/quintetdev/quintet/internal/workspace"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Finalize a workspace's trunk after a run",
	Long: `Cleans up a finished run: removes the pipeline's own artifacts
(role directories, escalations, journal, shared documents) from the
trunk, deletes the per-role checkpoint branches, optionally squashes
the run's commits into one, and optionally pushes the trunk to a
remote. Checkpoints and artifacts are scaffolding; the trunk is the
deliverable.`,
	RunE: runPublish,
}

var (
	publishWorkspace string
	publishSquash    string
	publishMessage   string
	publishPush      string
	publishPR        bool
	publishKeep      bool
	publishKeepDocs  bool
)

func init() {
	publishCmd.Flags().StringVarP(&publishWorkspace, "workspace", "w", "main", "Workspace to publish")
	publishCmd.Flags().StringVar(&publishSquash, "squash", "", "Squash all commits since this ref into one")
	publishCmd.Flags().StringVarP(&publishMessage, "message", "m", "", "Commit message for the squashed commit")
	publishCmd.Flags().StringVar(&publishPush, "push", "", "Push the trunk to this remote")
	publishCmd.Flags().BoolVar(&publishPR, "pr", false, "Open a pull request with gh after pushing")
	publishCmd.Flags().BoolVar(&publishKeep, "keep-branches", false, "Keep the per-role checkpoint branches")
	publishCmd.Flags().BoolVar(&publishKeepDocs, "keep-artifacts", false, "Keep the pipeline artifacts on the trunk")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	cp, err := checkpoint.Open(workspaceRoot(publishWorkspace))
	if err != nil {
		return err
	}

	if cp.HasUncommittedChanges() {
		return fmt.Errorf("workspace %s has uncommitted changes; run the pipeline to completion first", publishWorkspace)
	}

	if !publishKeepDocs {
		ws, err := workspace.Open(publishWorkspace, workspaceRoot(publishWorkspace))
		if err != nil {
			return err
		}
		if err := ws.CleanArtifacts(understand.DocInitialAnalysis, understand.DocValidation); err != nil {
			return fmt.Errorf("clean artifacts: %w", err)
		}
		if _, err := cp.CommitAll("publish", "remove pipeline artifacts"); err != nil {
			return fmt.Errorf("commit artifact cleanup: %w", err)
		}
		fmt.Println("Removed pipeline artifacts from trunk")
	}

	if publishSquash != "" {
		msg := publishMessage
		if msg == "" {
			msg = "quintet(publish): squashed pipeline run"
		}
		if err := cp.Squash(publishSquash, msg); err != nil {
			return fmt.Errorf("squash since %s: %w", publishSquash, err)
		}
		fmt.Printf("Squashed commits since %s\n", publishSquash)
	}

	if !publishKeep {
		for _, r := range role.Pipeline {
			if err := cp.DeleteBranch(r); err != nil {
				// Branch may never have been created for this role.
				continue
			}
			fmt.Printf("Deleted branch %s\n", checkpoint.BranchFor(r))
		}
	}

	if publishPush != "" {
		if err := cp.Push(publishPush); err != nil {
			return fmt.Errorf("push to %s: %w", publishPush, err)
		}
		fmt.Printf("%sPushed%s trunk to %s\n", colorGreen, colorReset, publishPush)
	}

	if publishPR {
		gh := exec.Command("gh", "pr", "create", "--fill")
		gh.Dir = workspaceRoot(publishWorkspace)
		out, err := gh.CombinedOutput()
		if err != nil {
			return fmt.Errorf("open pull request: %s", strings.TrimSpace(string(out)))
		}
		fmt.Printf("%sOpened pull request%s %s\n", colorGreen, colorReset, strings.TrimSpace(string(out)))
	}

	fmt.Printf("Workspace %s%s%s published.\n", colorCyan, publishWorkspace, colorReset)
	return nil
}
