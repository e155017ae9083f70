package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/existflow/irontrack/internal/model"
)

var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a new task",
	Long: `Add a new task to a category.

Examples:
  irontrack add "Buy groceries"
  irontrack add "Meeting with team" -p 1
  irontrack add "Feature work" --category work -p 2 --due 2024-01-15`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var (
	addCategory string
	addPriority int
	addDue      string
	addTags     []string
)

func init() {
	addCmd.Flags().StringVarP(&addCategory, "category", "c", model.DefaultCategoryID, "Category to add task to")
	addCmd.Flags().IntVarP(&addPriority, "priority", "p", model.PriorityLow, "Priority (1=urgent, 4=low)")
	addCmd.Flags().StringVarP(&addDue, "due", "d", "", "Due date (YYYY-MM-DD, 'today' or 'tomorrow')")
	addCmd.Flags().StringSliceVarP(&addTags, "tag", "t", nil, "Tags")
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = e.Close()
	}()

	now := e.clock.Now()
	task := model.NewTask(uuid.NewString(), addCategory, strings.Join(args, " "), now)

	// Validate priority
	if addPriority < model.PriorityUrgent || addPriority > model.PriorityLow {
		addPriority = model.PriorityLow
	}
	task.Priority = addPriority
	task.Tags = addTags

	if addDue != "" {
		due, err := parseDue(addDue, now)
		if err != nil {
			return err
		}
		task.DueDate = &due
	}

	queued, err := e.write(ctx, model.OpCreate, model.KindTask, task.ID, task)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	fmt.Printf("✓ Added to [%s]: \"%s\" (P%d)%s\n", addCategory, task.Title, task.Priority, queuedNote(queued))
	return nil
}

func parseDue(s string, now time.Time) (time.Time, error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch strings.ToLower(s) {
	case "today":
		return day, nil
	case "tomorrow":
		return day.AddDate(0, 0, 1), nil
	}
	due, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q: use YYYY-MM-DD", s)
	}
	return due, nil
}

func queuedNote(queued bool) string {
	if queued {
		return " [queued for sync]"
	}
	return ""
}
