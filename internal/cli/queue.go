package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage writes waiting for the server",
}

var queueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List queued operations",
	RunE:    runQueueList,
}

var queueProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Replay queued operations now",
	RunE:  runQueueProcess,
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard queued operations without sending them",
	Long: `Discard queued operations without sending them to the server.

Discarded writes stay applied locally but will never reach the server
through the queue; the next full sync may still carry them.

Examples:
  irontrack queue clear
  irontrack queue clear --resource tasks --force`,
	RunE: runQueueClear,
}

var (
	queueResource string
	queueForce    bool
)

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueProcessCmd)
	queueCmd.AddCommand(queueClearCmd)

	queueClearCmd.Flags().StringVarP(&queueResource, "resource", "r", "", "Only discard operations for this resource")
	queueClearCmd.Flags().BoolVarP(&queueForce, "force", "f", false, "Do not ask for confirmation")
}

func runQueueList(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = e.Close()
	}()

	ops := e.queue.List()
	if len(ops) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	fmt.Printf("\n📮 %s (%d pending)\n", e.queue.Name(), len(ops))
	fmt.Println(strings.Repeat("─", 72))
	for _, op := range ops {
		fmt.Printf("  %-8s  %-6s  %-7s %-28s  %d/%d  %s\n",
			shortID(op.ID), op.Type, op.Method, op.Endpoint,
			op.RetryCount, op.MaxRetries, op.CreatedAt.Local().Format("Jan 2 15:04"))
		if op.LastError != "" {
			fmt.Printf("            last error: %s\n", op.LastError)
		}
	}
	fmt.Println()
	return nil
}

func runQueueProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = e.Close()
	}()

	before := e.queue.Len()
	if !e.goOnline(ctx) {
		return fmt.Errorf("server %q is unreachable, %d operations remain queued", e.client.BaseURL(), before)
	}

	st := e.queue.Status()
	fmt.Printf("✓ Replayed %d of %d operations\n", before-st.Pending, before)
	if st.Pending > 0 {
		fmt.Printf("⚠️  %d remain queued: %s\n", st.Pending, st.LastError)
	}
	return nil
}

func runQueueClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = e.Close()
	}()

	scope := "all queued operations"
	if queueResource != "" {
		scope = fmt.Sprintf("queued operations for %q", queueResource)
	}

	if !queueForce {
		fmt.Printf("⚠️  This discards %s. They will not be sent to the server.\n", scope)
		fmt.Print("Are you sure? [y/N]: ")
		var response string
		_, _ = fmt.Scanln(&response)
		if strings.ToLower(response) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var n int
	if queueResource != "" {
		n, err = e.queue.ClearResource(ctx, queueResource)
	} else {
		n, err = e.queue.Clear(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Printf("🧹 Discarded %d operations (data loss: these writes were never confirmed by the server)\n", n)
	return nil
}
