package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/existflow/irontrack/internal/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the client sync engine in the foreground",
	Long: `Run the sync engine until interrupted: the sync timer, the reachability
probe that replays queued writes and the config file watcher.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := openEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := e.Close(); err != nil {
				logger.Error("Failed to close engine", logger.F("error", err))
			}
		}()

		return e.run(ctx, configPath)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return Serve(ctx, cfg)
	},
}
