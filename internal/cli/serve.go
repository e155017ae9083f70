package cli

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/existflow/irontrack/internal/config"
	"github.com/existflow/irontrack/internal/logger"
	"github.com/existflow/irontrack/server"
)

// Serve runs the sync server described by cfg until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config) error {
	srv, err := server.New(ctx, cfg.Server.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error("Error closing server", logger.F("error", err))
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(cfg.Server.Addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
