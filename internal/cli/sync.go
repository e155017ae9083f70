package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/existflow/irontrack/internal/apperr"
	"github.com/existflow/irontrack/internal/model"
	"github.com/existflow/irontrack/internal/queue"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync with the server now",
	Long: `Replay queued writes and run one push-then-pull sync cycle.

When the server is unreachable the snapshot is queued and pushed once it
answers again.

Examples:
  irontrack sync
  irontrack sync --pull    # replace local data with the server's
  irontrack sync --push    # replace the server's data with local`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Bool("pull", false, "Force sync from remote (replaces local)")
	syncCmd.Flags().Bool("push", false, "Force sync from local (replaces remote)")
}

func runSync(cmd *cobra.Command, args []string) error {
	pull, _ := cmd.Flags().GetBool("pull")
	push, _ := cmd.Flags().GetBool("push")
	if pull && push {
		return fmt.Errorf("cannot use both --pull and --push")
	}

	ctx := cmd.Context()
	e, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = e.Close()
	}()

	if !e.goOnline(ctx) {
		if pull || push || e.client.BaseURL() == "" {
			return fmt.Errorf("server %q is unreachable", e.client.BaseURL())
		}
		payload, err := json.Marshal(e.replica.Snapshot().Outbound())
		if err != nil {
			return err
		}
		if _, err := e.queue.Enqueue(ctx, queue.NewOperation(model.OpSync, "all", "", payload)); err != nil {
			return err
		}
		fmt.Println("📴 Server unreachable, snapshot queued for the next sync")
		return nil
	}

	switch {
	case pull:
		fmt.Println("⚠️  Forcing sync from remote (replacing local data)...")
		remote, err := e.client.GetAll(ctx)
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}
		remote.Settings.Sync = e.replica.Snapshot().Settings.Sync
		if err := e.replica.SaveAllData(ctx, remote); err != nil {
			return err
		}

	case push:
		fmt.Println("⚠️  Forcing sync from local (replacing remote data)...")
		if err := e.client.PutAll(ctx, e.replica.Snapshot()); err != nil {
			return fmt.Errorf("push failed: %w", err)
		}

	default:
		fmt.Println("🔄 Synchronizing...")
		if err := e.SyncNow(ctx); err != nil {
			switch {
			case errors.Is(err, apperr.ErrDisabled):
				return fmt.Errorf("%w: enable it with 'irontrack config set sync.enabled true'", err)
			case errors.Is(err, apperr.ErrNotClient):
				return fmt.Errorf("%w: this device is configured as role %q", err, e.cfg.Sync.Role)
			}
			return fmt.Errorf("sync failed: %w", err)
		}
	}

	snap := e.replica.Snapshot()
	fmt.Printf("✓ Sync complete! %d tasks, %d tombstones, %d queued\n",
		len(snap.Tasks), len(snap.Tombstones), e.queue.Len())
	return nil
}
