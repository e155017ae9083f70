package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/existflow/irontrack/internal/logger"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 200 * time.Millisecond

// Watch reloads path whenever it changes and hands each valid result to
// onChange until ctx is cancelled. Invalid edits are logged and skipped.
//
// The parent directory is watched rather than the file so that editors
// replacing the file by rename are still observed.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	logger.Info("Config watcher started", logger.F("path", path))

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("Config watcher stopped")
			return nil

		case <-fire:
			fire = nil
			cfg, err := LoadFile(path)
			if err != nil {
				logger.Warn("Ignoring config change", logger.F("error", err))
				continue
			}
			logger.Info("Config reloaded",
				logger.F("role", cfg.Sync.Role),
				logger.F("enabled", cfg.Sync.Enabled),
				logger.F("interval_minutes", cfg.Sync.IntervalMinutes))
			onChange(cfg)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("Config watcher error", logger.F("error", err))
		}
	}
}
