package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/existflow/irontrack/internal/clock"
	"github.com/existflow/irontrack/internal/config"
	"github.com/existflow/irontrack/internal/logger"
	"github.com/existflow/irontrack/internal/model"
	"github.com/existflow/irontrack/internal/queue"
	"github.com/existflow/irontrack/internal/replica"
	"github.com/existflow/irontrack/internal/store"
	isync "github.com/existflow/irontrack/internal/sync"
)

// flushDelay coalesces bursts of local writes into one save.
const flushDelay = 500 * time.Millisecond

// engine is one client process's view of the sync machinery.
type engine struct {
	cfg     *config.Config
	clock   clock.Clock
	store   *store.Local
	replica *replica.Replica
	client  *isync.Client
	queue   *queue.Queue
	coord   *isync.Coordinator
}

func openEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	st, err := store.OpenLocal(cfg.DataPath)
	if errors.Is(err, store.ErrLocked) {
		return nil, fmt.Errorf("%w: another irontrack process (probably 'irontrack run') owns %s", err, cfg.DataPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	e := &engine{cfg: cfg, clock: clock.Real(), store: st}

	e.replica, err = replica.Open(ctx, st, replica.Options{FlushDelay: flushDelay, Clock: e.clock})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	e.client = isync.NewClient(cfg.Sync.RemoteURL)

	e.queue, err = queue.New(ctx, st, e.client, queue.Options{
		Name:        cfg.Queue.Name,
		MaxRetries:  cfg.Queue.MaxRetries,
		Debounce:    cfg.Queue.Debounce,
		BackoffBase: cfg.Queue.BackoffBase,
		BackoffMax:  cfg.Queue.BackoffMax,
		Clock:       e.clock,
		OnExhausted: func(op model.QueuedOperation, err error) {
			fmt.Printf("⚠️  Dropped %s %s after %d attempts: %v\n", op.Type, op.Resource, op.RetryCount, err)
		},
		OnOnline: func() {
			if e.coord != nil {
				e.coord.Trigger()
			}
		},
	})
	if err != nil {
		_ = e.replica.Close(ctx)
		_ = st.Close()
		return nil, err
	}

	e.coord, err = isync.NewCoordinator(cfg.Sync, e.client, e.replica, e.clock)
	if err != nil {
		e.queue.Close()
		_ = e.replica.Close(ctx)
		_ = st.Close()
		return nil, err
	}

	e.mirrorSyncSettings()
	return e, nil
}

// mirrorSyncSettings records the active sync configuration in the
// device-local part of the settings.
func (e *engine) mirrorSyncSettings() {
	sc := e.coord.Config()
	_ = e.replica.Mutate(func(s *model.Snapshot) error {
		s.Settings.Sync = &model.SyncPreferences{
			Role:            sc.Role,
			RemoteURL:       sc.RemoteURL,
			IntervalMinutes: sc.IntervalMinutes,
			Enabled:         sc.Enabled,
		}
		return nil
	})
}

func (e *engine) Close() error {
	e.coord.Stop()
	e.queue.Close()
	flushErr := e.replica.Close(context.Background())
	return errors.Join(flushErr, e.store.Close())
}

// goOnline probes the remote once and, when it answers, drains the
// queue in the foreground.
func (e *engine) goOnline(ctx context.Context) bool {
	if e.client.BaseURL() == "" {
		return false
	}
	online := isync.NewProber(e.client, 5*time.Second, e.clock, e.queue.SetOnline).Probe(ctx)
	if !online {
		return false
	}
	if _, err := e.queue.Process(ctx); err != nil && !errors.Is(err, queue.ErrProcessing) {
		logger.Warn("Queue replay stopped", logger.F("error", err))
	}
	return true
}

// write applies a local change and dispatches its replay to the server.
func (e *engine) write(ctx context.Context, typ model.OpType, kind model.Kind, id string, v any) (queued bool, err error) {
	var payload []byte
	if v != nil {
		payload, err = json.Marshal(v)
		if err != nil {
			return false, err
		}
	}

	switch typ {
	case model.OpDelete:
		ts, found := e.replica.Delete(kind, id)
		if !found {
			logger.Debug("Deleting unknown entity", logger.F("kind", kind), logger.F("id", id))
		}
		// The server needs the local deletion time, not its own.
		if payload, err = json.Marshal(ts); err != nil {
			return false, err
		}
	default:
		if _, err := e.replica.Upsert(kind, payload); err != nil {
			return false, err
		}
	}
	if err := e.replica.Flush(ctx); err != nil {
		return false, err
	}

	if sc := e.coord.Config(); !sc.Enabled || sc.Role != config.RoleClient {
		return false, nil
	}
	e.goOnline(ctx)
	return e.queue.Dispatch(ctx, queue.NewOperation(typ, kind.Resource(), id, payload))
}

// run drives the engine until ctx is cancelled: the sync timer, the
// health prober feeding the queue and the config watcher.
func (e *engine) run(ctx context.Context, configPath string) error {
	g, ctx := errgroup.WithContext(ctx)

	e.coord.Start(ctx)
	logger.Info("Sync engine running",
		logger.F("role", e.cfg.Sync.Role),
		logger.F("remote", e.cfg.Sync.RemoteURL),
		logger.F("pending", e.queue.Len()))

	g.Go(func() error {
		if e.client.BaseURL() == "" {
			<-ctx.Done()
			return nil
		}
		return isync.NewProber(e.client, isync.DefaultProbeInterval, e.clock, e.queue.SetOnline).Run(ctx)
	})

	g.Go(func() error {
		return config.Watch(ctx, configPath, e.applyConfig)
	})

	g.Go(func() error {
		<-ctx.Done()
		e.coord.Stop()
		return nil
	})

	return g.Wait()
}

func (e *engine) applyConfig(cfg *config.Config) {
	if err := e.coord.UpdateConfig(cfg.Sync); err != nil {
		logger.Warn("Rejected sync configuration", logger.F("error", err))
		return
	}
	e.cfg.Sync = e.coord.Config()
	e.mirrorSyncSettings()
}

// Engine methods used by the status monitor.

func (e *engine) Tasks() []model.Task {
	return e.replica.Snapshot().Tasks
}

func (e *engine) SyncStatus() isync.Status {
	return e.coord.Status()
}

func (e *engine) QueueStatus() queue.Status {
	return e.queue.Status()
}

func (e *engine) SyncNow(ctx context.Context) error {
	return e.coord.SyncNow(ctx)
}

func (e *engine) ToggleDone(ctx context.Context, id string) error {
	t, ok := model.Find(e.replica.Snapshot().Tasks, id)
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}
	t.Done = !t.Done
	t.Touch(e.clock.Now())
	_, err := e.write(ctx, model.OpUpdate, model.KindTask, t.ID, t)
	return err
}

func (e *engine) DeleteTask(ctx context.Context, id string) error {
	_, err := e.write(ctx, model.OpDelete, model.KindTask, id, nil)
	return err
}
