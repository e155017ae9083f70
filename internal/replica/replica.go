// Package replica owns the in-memory copy of one device's data and
// writes it back to the store through a coalescing buffer.
package replica

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/existflow/irontrack/internal/clock"
	"github.com/existflow/irontrack/internal/logger"
	"github.com/existflow/irontrack/internal/merge"
	"github.com/existflow/irontrack/internal/model"
)

// Store loads and saves the full snapshot.
type Store interface {
	LoadAllData(ctx context.Context) (*model.Snapshot, error)
	SaveAllData(ctx context.Context, s *model.Snapshot) error
}

// Options configure a Replica.
type Options struct {
	// FlushDelay is how long writes are buffered before they are saved.
	// Zero leaves saving to Flush, MergeRemote and Close.
	FlushDelay time.Duration
	Clock      clock.Clock
}

// Replica serializes every write to the local snapshot. Sync results are
// merged against the latest state rather than replacing it.
type Replica struct {
	store Store
	opts  Options

	mu      sync.Mutex
	state   *model.Snapshot
	dirty   bool
	version uint64
	timer   clock.Timer
	closed  bool

	flushMu sync.Mutex
}

// Open loads the current snapshot from store.
func Open(ctx context.Context, store Store, opts Options) (*Replica, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	s, err := store.LoadAllData(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return &Replica{store: store, opts: opts, state: s}, nil
}

// Snapshot returns a copy of the current state.
func (r *Replica) Snapshot() *model.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// LoadAllData returns the current state, so a Replica can stand in for
// the store it wraps.
func (r *Replica) LoadAllData(context.Context) (*model.Snapshot, error) {
	return r.Snapshot(), nil
}

// SaveAllData replaces the state and saves it right away.
func (r *Replica) SaveAllData(ctx context.Context, s *model.Snapshot) error {
	r.Replace(s)
	return r.Flush(ctx)
}

// Now returns the replica clock's time, used to stamp writes.
func (r *Replica) Now() time.Time {
	return r.opts.Clock.Now()
}

// Mutate applies fn to a copy of the state and commits it when fn
// succeeds.
func (r *Replica) Mutate(fn func(s *model.Snapshot) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.Clone()
	if err := fn(next); err != nil {
		return err
	}
	r.commitLocked(next)
	return nil
}

// Upsert inserts or replaces an entity given as JSON.
func (r *Replica) Upsert(kind model.Kind, raw []byte) (string, error) {
	var id string
	err := r.Mutate(func(s *model.Snapshot) error {
		var err error
		id, err = s.UpsertJSON(kind, raw)
		return err
	})
	return id, err
}

// Delete removes kind/id and records a tombstone dated now. It returns
// the tombstone and whether the entity existed; the tombstone is written
// either way.
func (r *Replica) Delete(kind model.Kind, id string) (model.Tombstone, bool) {
	ts := model.NewTombstone(kind, id, r.opts.Clock.Now())
	var found bool
	_ = r.Mutate(func(s *model.Snapshot) error {
		found = s.Remove(kind, id)
		s.Tombstones = append(s.Tombstones, ts)
		return nil
	})
	return ts, found
}

// MergeRemote reconciles remote into the latest local state, saves the
// result and returns a copy of it.
func (r *Replica) MergeRemote(ctx context.Context, remote *model.Snapshot) (*model.Snapshot, error) {
	r.mu.Lock()
	merged := merge.Reconcile(r.state, remote)
	r.commitLocked(merged)
	out := merged.Clone()
	r.mu.Unlock()

	if err := r.Flush(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// Replace swaps in s wholesale.
func (r *Replica) Replace(s *model.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitLocked(s.Clone())
}

// Dirty reports whether there are unsaved writes.
func (r *Replica) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

func (r *Replica) commitLocked(s *model.Snapshot) {
	r.state = s
	r.version++
	r.dirty = true
	if r.closed || r.timer != nil || r.opts.FlushDelay <= 0 {
		return
	}
	r.timer = r.opts.Clock.AfterFunc(r.opts.FlushDelay, r.flushInBackground)
}

func (r *Replica) flushInBackground() {
	if err := r.Flush(context.Background()); err != nil {
		logger.Error("Failed to save snapshot", logger.F("error", err))
		r.mu.Lock()
		if !r.closed && r.timer == nil && r.opts.FlushDelay > 0 {
			r.timer = r.opts.Clock.AfterFunc(r.opts.FlushDelay, r.flushInBackground)
		}
		r.mu.Unlock()
	}
}

// Flush saves pending writes now.
func (r *Replica) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if !r.dirty {
		r.mu.Unlock()
		return nil
	}
	snap := r.state.Clone()
	version := r.version
	r.mu.Unlock()

	if err := r.store.SaveAllData(ctx, snap); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	r.mu.Lock()
	if r.version == version {
		r.dirty = false
	}
	r.mu.Unlock()
	return nil
}

// Close saves pending writes and stops the flush timer.
func (r *Replica) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.Flush(ctx)
}
