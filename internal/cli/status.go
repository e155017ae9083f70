package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/existflow/irontrack/internal/logger"
	"github.com/existflow/irontrack/internal/model"
	isync "github.com/existflow/irontrack/internal/sync"
	"github.com/existflow/irontrack/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	Long: `Show whether the server is reachable, how many writes are queued and how
this device is configured to sync.

With --watch the sync engine runs in the foreground under a live monitor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusWatch {
			return watchStatus(cmd.Context())
		}
		return printStatus(cmd.Context())
	},
}

var statusWatch bool

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Run the sync engine under a live monitor")
}

func printStatus(ctx context.Context) error {
	e, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = e.Close()
	}()

	online := false
	if e.client.BaseURL() != "" {
		online = isync.NewProber(e.client, 5*time.Second, e.clock, e.queue.SetOnline).Probe(ctx)
	}

	sc := e.cfg.Sync
	qs := e.queue.Status()
	snap := e.replica.Snapshot()

	label := tui.HelpStyle.Render
	fmt.Println(tui.HeaderStyle.Render("IronTrack"))
	fmt.Printf("%s %s\n", label("Network:  "), tui.FormatOnline(online))
	fmt.Printf("%s %s\n", label("Queue:    "), tui.FormatPending(qs.Pending))
	fmt.Printf("%s %s\n", label("Role:     "), sc.Role)
	fmt.Printf("%s %s\n", label("Remote:   "), orDash(sc.RemoteURL))
	fmt.Printf("%s %t (every %d min)\n", label("Enabled:  "), sc.Enabled, sc.IntervalMinutes)

	var counts []string
	for _, k := range model.Kinds {
		if n := snap.Count(k); n > 0 {
			counts = append(counts, fmt.Sprintf("%s=%d", k.Resource(), n))
		}
	}
	counts = append(counts, fmt.Sprintf("tombstones=%d", len(snap.Tombstones)))
	fmt.Printf("%s %s\n", label("Data:     "), strings.Join(counts, " "))
	return nil
}

// watchStatus runs the engine and the monitor until the user quits.
func watchStatus(ctx context.Context) error {
	e, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = e.Close()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.run(ctx, configPath)
	})
	g.Go(func() error {
		defer cancel()
		logger.Info("Launching status monitor")
		p := tea.NewProgram(tui.NewModel(ctx, e), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("failed to run TUI: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
