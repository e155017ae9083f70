// Package sync drives push-then-pull synchronization between a client
// replica and an irontrack server.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/existflow/irontrack/internal/apperr"
	"github.com/existflow/irontrack/internal/clock"
	"github.com/existflow/irontrack/internal/config"
	"github.com/existflow/irontrack/internal/logger"
	"github.com/existflow/irontrack/internal/model"
)

// State is the coordinator's position in a sync cycle.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

// Remote is the server side of a sync cycle.
type Remote interface {
	PushSnapshot(ctx context.Context, s *model.Snapshot) error
	PullSnapshot(ctx context.Context) (*model.Snapshot, error)
	SetBaseURL(url string)
}

// Local is the replica a sync cycle reads from and merges into.
type Local interface {
	Snapshot() *model.Snapshot
	MergeRemote(ctx context.Context, remote *model.Snapshot) (*model.Snapshot, error)
}

// Status is a point-in-time view of the coordinator.
//
// LastSyncTime only moves on success. The time of every attempt,
// failed ones included, is LastAttemptTime.
type Status struct {
	State               State
	LastResult          State // StateSuccess, StateFailed or empty before the first cycle
	LastSyncTime        time.Time
	LastAttemptTime     time.Time
	LastSyncError       string
	ConsecutiveFailures int
	Skipped             int // cycles not started because one was running
	Scheduled           bool
	Config              config.SyncConfig
}

// Coordinator owns the sync configuration and runs at most one cycle at
// a time, on a timer and on demand.
type Coordinator struct {
	remote Remote
	local  Local
	clock  clock.Clock

	mu          gosync.Mutex
	ctx         context.Context
	cfg         config.SyncConfig
	state       State
	lastResult  State
	lastSync    time.Time
	lastAttempt time.Time
	lastErr     string
	failures    int
	skipped     int
	inFlight    bool
	started     bool
	generation  uint64
	ticker      clock.Ticker
	stop        chan struct{}

	wg gosync.WaitGroup
}

// NewCoordinator creates a stopped coordinator for cfg.
func NewCoordinator(cfg config.SyncConfig, remote Remote, local Local, clk clock.Clock) (*Coordinator, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if err := normalize(&cfg); err != nil {
		return nil, err
	}
	remote.SetBaseURL(cfg.RemoteURL)
	return &Coordinator{
		remote: remote,
		local:  local,
		clock:  clk,
		cfg:    cfg,
		state:  StateIdle,
		ctx:    context.Background(),
	}, nil
}

func normalize(cfg *config.SyncConfig) error {
	cfg.RemoteURL = config.NormalizeURL(cfg.RemoteURL)
	return cfg.Validate()
}

// Start arms the timer when the configuration calls for one. Scheduled
// cycles run under ctx.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
	c.started = true
	c.rescheduleLocked()
}

// Stop disarms the timer and waits for running cycles.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.started = false
	c.cancelTimerLocked()
	c.mu.Unlock()
	c.wg.Wait()
}

// UpdateConfig validates cfg, applies it and reschedules. A pending
// timer for the old configuration never fires afterwards.
func (c *Coordinator) UpdateConfig(cfg config.SyncConfig) error {
	if err := normalize(&cfg); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg == c.cfg {
		return nil
	}
	c.cfg = cfg
	c.remote.SetBaseURL(cfg.RemoteURL)
	c.rescheduleLocked()

	logger.Info("Sync configuration updated",
		logger.F("role", cfg.Role),
		logger.F("remote", cfg.RemoteURL),
		logger.F("interval_minutes", cfg.IntervalMinutes),
		logger.F("enabled", cfg.Enabled))
	return nil
}

// Config returns the active configuration.
func (c *Coordinator) Config() config.SyncConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Status returns the current coordinator status.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:               c.state,
		LastResult:          c.lastResult,
		LastSyncTime:        c.lastSync,
		LastAttemptTime:     c.lastAttempt,
		LastSyncError:       c.lastErr,
		ConsecutiveFailures: c.failures,
		Skipped:             c.skipped,
		Scheduled:           c.ticker != nil,
		Config:              c.cfg,
	}
}

// SyncNow runs one cycle and waits for it.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	c.mu.Lock()
	if err := c.eligibleLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.inFlight {
		c.mu.Unlock()
		return apperr.ErrSyncInProgress
	}
	c.beginLocked()
	c.mu.Unlock()

	return c.cycle(ctx)
}

// Trigger starts a cycle in the background unless one is running or the
// configuration rules sync out.
func (c *Coordinator) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eligibleLocked() != nil || !c.started {
		return
	}
	c.launchLocked("trigger")
}

func (c *Coordinator) eligibleLocked() error {
	if c.cfg.Role != config.RoleClient {
		return apperr.ErrNotClient
	}
	if !c.cfg.Enabled {
		return apperr.ErrDisabled
	}
	if c.cfg.RemoteURL == "" {
		return apperr.New(apperr.CodeConfigInvalid, "no remote url configured")
	}
	return nil
}

// launchLocked starts a background cycle, or skips it when one is
// already running.
func (c *Coordinator) launchLocked(reason string) {
	if c.inFlight {
		c.skipped++
		logger.Debug("Sync in flight, skipping", logger.F("reason", reason))
		return
	}
	c.beginLocked()
	ctx := c.ctx
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.cycle(ctx)
	}()
}

func (c *Coordinator) beginLocked() {
	c.inFlight = true
	c.state = StateSyncing
	c.lastAttempt = c.clock.Now()
}

// cycle pushes the local snapshot, pulls the server's and merges it into
// the latest local state. The caller has marked the cycle in flight.
func (c *Coordinator) cycle(ctx context.Context) error {
	start := c.clock.Now()
	logger.Info("Sync started")

	err := c.remote.PushSnapshot(ctx, c.local.Snapshot().Outbound())
	if err != nil {
		err = fmt.Errorf("push failed: %w", err)
	}

	var remote *model.Snapshot
	if err == nil {
		remote, err = c.remote.PullSnapshot(ctx)
		if err != nil {
			err = fmt.Errorf("pull failed: %w", err)
		}
	}

	if err == nil {
		var role string
		role, err = c.mergeIfClient(ctx, remote)
		if errors.Is(err, apperr.ErrNotClient) {
			logger.Warn("Role changed during sync, discarding pulled snapshot", logger.F("role", role))
			c.finish(nil, false)
			return err
		}
	}

	c.finish(err, true)
	if err != nil {
		logger.Error("Sync failed", logger.F("error", err), logger.F("code", codeOf(err)))
		return err
	}
	logger.Info("Sync completed", logger.F("duration", c.clock.Now().Sub(start)))
	return nil
}

// mergeIfClient merges remote unless the role is no longer client. The
// coordinator lock is held across the check and the merge, so a role
// change waits for the merge instead of racing it.
func (c *Coordinator) mergeIfClient(ctx context.Context, remote *model.Snapshot) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.Role != config.RoleClient {
		return c.cfg.Role, apperr.ErrNotClient
	}
	if _, err := c.local.MergeRemote(ctx, remote); err != nil {
		return c.cfg.Role, fmt.Errorf("merge failed: %w", err)
	}
	return c.cfg.Role, nil
}

func (c *Coordinator) finish(err error, record bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	c.state = StateIdle
	if !record {
		return
	}
	if err != nil {
		c.lastResult = StateFailed
		c.lastErr = err.Error()
		c.failures++
		return
	}
	c.lastResult = StateSuccess
	c.lastSync = c.clock.Now()
	c.lastErr = ""
	c.failures = 0
}

// rescheduleLocked cancels the current timer and arms a new one when the
// configuration is active.
func (c *Coordinator) rescheduleLocked() {
	c.cancelTimerLocked()
	if !c.started || !c.cfg.Active() {
		return
	}

	t := c.clock.NewTicker(c.cfg.Interval())
	stop := make(chan struct{})
	gen := c.generation
	c.ticker = t
	c.stop = stop

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-stop:
				return
			case <-t.C():
				c.tick(gen)
			}
		}
	}()
	logger.Debug("Sync scheduled", logger.F("interval", c.cfg.Interval()))
}

func (c *Coordinator) cancelTimerLocked() {
	c.generation++
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Coordinator) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.eligibleLocked() != nil {
		return
	}
	c.launchLocked("tick")
}

func codeOf(err error) apperr.Code {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
