package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/existflow/irontrack/internal/model"
)

var deleteCmd = &cobra.Command{
	Use:     "delete [id]",
	Aliases: []string{"rm"},
	Short:   "Delete a task or another record",
	Long: `Delete a record by its ID. Tasks accept a unique ID prefix.

Examples:
  irontrack delete abc123
  irontrack rm n-42 --resource notes`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var (
	deleteResource string
	deleteForce    bool
)

func init() {
	deleteCmd.Flags().StringVarP(&deleteResource, "resource", "r", "tasks", "Collection the record belongs to")
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Do not ask for confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	kind, ok := model.KindForResource(deleteResource)
	if !ok {
		return fmt.Errorf("unknown resource %q", deleteResource)
	}

	ctx := cmd.Context()
	e, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = e.Close()
	}()

	id, label := args[0], args[0]
	if kind == model.KindTask {
		task, err := findTask(e.replica.Snapshot().Tasks, id)
		if err != nil {
			return err
		}
		id, label = task.ID, task.Title
	}

	if !deleteForce {
		fmt.Printf("About to delete: \"%s\" (ID: %s)\n", label, id)
		fmt.Print("Are you sure? [y/N]: ")
		var confirm string
		_, _ = fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	queued, err := e.write(ctx, model.OpDelete, kind, id, nil)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}

	fmt.Printf("🗑️  Deleted: \"%s\"%s\n", label, queuedNote(queued))
	return nil
}
