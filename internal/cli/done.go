package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/existflow/irontrack/internal/model"
)

var doneCmd = &cobra.Command{
	Use:   "done [task-id]",
	Short: "Mark a task as done",
	Long: `Mark a task as completed.

Examples:
  irontrack done abc123
  irontrack done abc123 --undo`,
	Args: cobra.ExactArgs(1),
	RunE: runDone,
}

var doneUndo bool

func init() {
	doneCmd.Flags().BoolVar(&doneUndo, "undo", false, "Mark task as not done")
}

func runDone(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = e.Close()
	}()

	task, err := findTask(e.replica.Snapshot().Tasks, args[0])
	if err != nil {
		return err
	}

	task.Done = !doneUndo
	task.Touch(e.clock.Now())
	queued, err := e.write(ctx, model.OpUpdate, model.KindTask, task.ID, task)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	if task.Done {
		fmt.Printf("✓ Completed: \"%s\"%s\n", task.Title, queuedNote(queued))
	} else {
		fmt.Printf("○ Reopened: \"%s\"%s\n", task.Title, queuedNote(queued))
	}
	return nil
}
