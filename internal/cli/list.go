package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/existflow/irontrack/internal/model"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Long: `List tasks, optionally filtered by category.

Examples:
  irontrack list
  irontrack list --category work
  irontrack list --done --sync`,
	RunE: runList,
}

var (
	listCategory    string
	listIncludeDone bool
	listSync        bool
)

func init() {
	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "Filter by category")
	listCmd.Flags().BoolVar(&listIncludeDone, "done", false, "Include completed tasks")
	listCmd.Flags().BoolVarP(&listSync, "sync", "s", false, "Sync with server before listing")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = e.Close()
	}()

	if listSync {
		if err := e.SyncNow(ctx); err != nil {
			fmt.Printf("⚠️  Sync failed: %v\n", err)
		} else {
			fmt.Println("✓ Synced")
		}
	}

	snap := e.replica.Snapshot()
	var tasks []model.Task
	for _, t := range snap.Tasks {
		if listCategory != "" && t.CategoryID != listCategory {
			continue
		}
		if t.Done && !listIncludeDone {
			continue
		}
		tasks = append(tasks, t)
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found. Add one with: irontrack add \"Your task\"")
		return nil
	}

	printTasksByCategory(snap.Categories, tasks, e.clock.Now())
	return nil
}

func printTasksByCategory(categories []model.Category, tasks []model.Task, now time.Time) {
	byCategory := make(map[string][]model.Task)
	for _, t := range tasks {
		byCategory[t.CategoryID] = append(byCategory[t.CategoryID], t)
	}

	ids := make([]string, 0, len(byCategory))
	for id := range byCategory {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		name := id
		if c, ok := model.Find(categories, id); ok && c.Name != "" {
			name = c.Name
		}
		printTasks(name, byCategory[id], now)
	}
}

func printTasks(categoryName string, tasks []model.Task, now time.Time) {
	pending := 0
	for _, t := range tasks {
		if !t.Done {
			pending++
		}
	}

	fmt.Printf("\n📁 %s (%d pending)\n", categoryName, pending)
	fmt.Println(strings.Repeat("─", 60))

	for _, t := range tasks {
		printTask(t, now)
	}
	fmt.Println()
}

func printTask(t model.Task, now time.Time) {
	icon := "[ ]"
	if t.Done {
		icon = "[x]"
	}

	// Priority indicator
	priority := fmt.Sprintf("P%d", t.Priority)
	switch t.Priority {
	case model.PriorityUrgent:
		priority = "▲ P1"
	case model.PriorityHigh:
		priority = "▲ P2"
	case model.PriorityMedium:
		priority = "  P3"
	case model.PriorityLow:
		priority = "  P4"
	}

	due := ""
	if t.DueDate != nil {
		due = t.DueDate.Format("Jan 2")
		if t.IsOverdue(now) {
			due = "!" + due
		}
	}

	title := t.Title
	if len(title) > 40 {
		title = title[:37] + "..."
	}

	fmt.Printf("  %s  %-8s  %-40s  %-10s  %s\n", icon, shortID(t.ID), title, due, priority)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// findTask resolves a full id or a unique id prefix.
func findTask(tasks []model.Task, ref string) (model.Task, error) {
	if t, ok := model.Find(tasks, ref); ok {
		return t, nil
	}
	var matches []model.Task
	for _, t := range tasks {
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return model.Task{}, fmt.Errorf("task not found: %s", ref)
	case 1:
		return matches[0], nil
	default:
		return model.Task{}, fmt.Errorf("task id %q is ambiguous (%d matches)", ref, len(matches))
	}
}
