package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/quintetdev/quintet/internal/driver"
	"github.com/quintetdev/quintet/internal/escalate"
	"github.com/quintetdev/quintet/internal/executor"
	"github.com/quintetdev/quintet/internal/store"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue [queue-file]",
	Short: "Drain a queue file of tasks",
	Long: `Reads tasks (one per line, # comments allowed) from the queue file and
runs the pipeline on each. Nobody is at the console in queue mode:
escalations resolve from already-answered escalation files or the
no-response sentinel, and answers given later via quintet answer fold
into the shared understanding for subsequent stages. One task failing
never stops the rest.

By default the queue is drained once. With --watch the file is polled
with a fixed backoff until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runQueue,
}

var (
	queueParallel  int
	queueBackoff   int
	queueWatch     bool
	queueWorkspace string
)

func init() {
	queueCmd.Flags().IntVarP(&queueParallel, "parallel", "p", 1, "Tasks to run concurrently (each in its own workspace)")
	queueCmd.Flags().IntVar(&queueBackoff, "backoff", 0, "Seconds to sleep when the queue is empty (with --watch)")
	queueCmd.Flags().BoolVar(&queueWatch, "watch", false, "Keep polling the queue file until interrupted")
	queueCmd.Flags().StringVarP(&queueWorkspace, "workspace", "w", "queue", "Base name for derived workspaces")
	rootCmd.AddCommand(queueCmd)
}

func runQueue(cmd *cobra.Command, args []string) error {
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

	d := driver.New(driver.Options{
		BaseDir:  workspacesDir,
		Engine:   engine,
		Config:   cfg,
		Audit:    audit,
		Resolver: escalate.SentinelResolver{},
		Logf: func(format string, a ...any) {
			fmt.Printf(format+"\n", a...)
		},
	})

	if queueWatch {
		backoff := time.Duration(cfg.Pipeline.QueueBackoff()) * time.Second
		if queueBackoff > 0 {
			backoff = time.Duration(queueBackoff) * time.Second
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Watching %s (backoff %s, parallel %d). Ctrl+C to stop.\n", args[0], backoff, queueParallel)
		err := d.RunQueue(ctx, args[0], queueWorkspace, queueParallel, backoff)
		if err == context.Canceled {
			return nil
		}
		return err
	}

	results, err := d.DrainQueue(context.Background(), args[0], queueWorkspace, queueParallel)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	fmt.Printf("\n%sQueue results:%s\n", colorBold, colorReset)
	for _, r := range results {
		color := colorGreen
		switch r.Status {
		case store.StatusIncomplete:
			color = colorYellow
		case store.StatusFailed:
			color = colorRed
		}
		fmt.Printf("  %s%-10s%s %s (%s, %.0fs)\n", color, r.Status, colorReset, r.Task, r.Workspace, r.Duration.Seconds())
	}
	return nil
}
