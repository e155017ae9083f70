// Package queue holds writes that could not be confirmed against the
// remote and replays them in order once the remote is reachable.
package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/existflow/irontrack/internal/apperr"
	"github.com/existflow/irontrack/internal/clock"
	"github.com/existflow/irontrack/internal/logger"
	"github.com/existflow/irontrack/internal/model"
)

var (
	ErrOffline    = errors.New("queue is offline")
	ErrProcessing = errors.New("queue is already processing")
)

// Sender performs the network call an operation describes.
type Sender interface {
	Send(ctx context.Context, op model.QueuedOperation) error
}

// Log persists the queue under a name.
type Log interface {
	LoadQueue(ctx context.Context, name string) ([]model.QueuedOperation, error)
	SaveQueue(ctx context.Context, name string, ops []model.QueuedOperation) error
}

// Options configure a Queue. Zero values take defaults.
type Options struct {
	Name        string
	MaxRetries  int
	Debounce    time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Clock       clock.Clock

	// OnExhausted is called once for every operation dropped after
	// reaching its retry limit. err carries apperr.CodeQueueExhausted.
	OnExhausted func(op model.QueuedOperation, err error)
	// OnOnline is called when a debounced online transition fires,
	// before the queue is drained.
	OnOnline func()
}

func (o *Options) setDefaults() {
	if o.Name == "" {
		o.Name = "default"
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Debounce < 0 {
		o.Debounce = 0
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 5 * time.Second
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = o.BackoffBase
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
}

// Status is a point-in-time view of the queue.
type Status struct {
	Online              bool
	Pending             int
	Processing          bool
	ConsecutiveFailures int
	LastError           string
}

// Queue is a persistent FIFO of operations awaiting the remote.
type Queue struct {
	opts   Options
	log    Log
	sender Sender
	logger *logger.Logger

	mu         sync.Mutex
	ops        []model.QueuedOperation
	online     bool
	processing bool
	failures   int
	lastError  string
	debounce   clock.Timer
	retry      clock.Timer
	closed     bool
}

// New loads the persisted operations for opts.Name.
func New(ctx context.Context, log Log, sender Sender, opts Options) (*Queue, error) {
	opts.setDefaults()

	ops, err := log.LoadQueue(ctx, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue %q: %w", opts.Name, err)
	}

	q := &Queue{
		opts:   opts,
		log:    log,
		sender: sender,
		logger: logger.WithFields(logger.F("queue", opts.Name)),
		ops:    ops,
	}
	if len(ops) > 0 {
		q.logger.Info("Restored queued operations", logger.F("count", len(ops)))
	}
	return q, nil
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.opts.Name
}

// Enqueue appends op and persists the queue. Missing id, createdAt and
// maxRetries are filled in; retryCount always starts at zero.
func (q *Queue) Enqueue(ctx context.Context, op model.QueuedOperation) (model.QueuedOperation, error) {
	return q.enqueue(ctx, op, false)
}

// enqueue adds op at the tail, or at the head when front is set.
func (q *Queue) enqueue(ctx context.Context, op model.QueuedOperation, front bool) (model.QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = q.opts.Clock.Now()
	}
	if op.MaxRetries <= 0 {
		op.MaxRetries = q.opts.MaxRetries
	}
	op.RetryCount = 0

	prev := q.ops
	if front {
		q.ops = append([]model.QueuedOperation{op}, q.ops...)
	} else {
		q.ops = append(slices.Clip(q.ops), op)
	}
	if err := q.persistLocked(ctx); err != nil {
		q.ops = prev
		return model.QueuedOperation{}, err
	}

	q.logger.Debug("Enqueued operation",
		logger.F("id", op.ID),
		logger.F("type", op.Type),
		logger.F("resource", op.Resource))
	return op, nil
}

// Dispatch sends op right away when the queue is online and empty, and
// enqueues it otherwise or when the send fails. It reports whether the
// operation ended up queued.
//
// A direct send holds the processing flag, so writes dispatched meanwhile
// queue up behind it and are replayed once it returns. A failed direct
// send goes back to the head of the queue.
func (q *Queue) Dispatch(ctx context.Context, op model.QueuedOperation) (bool, error) {
	q.mu.Lock()
	direct := q.online && len(q.ops) == 0 && !q.processing && !q.closed
	if direct {
		q.processing = true
		q.stopRetryLocked()
	}
	q.mu.Unlock()

	if !direct {
		if _, err := q.Enqueue(ctx, op); err != nil {
			return false, err
		}
		return true, nil
	}

	sendErr := q.sender.Send(ctx, op)
	if sendErr == nil {
		q.mu.Lock()
		q.processing = false
		behind := len(q.ops) > 0
		q.mu.Unlock()
		if behind {
			q.run(ctx)
		}
		return false, nil
	}

	q.logger.Warn("Direct send failed, queueing",
		logger.F("resource", op.Resource),
		logger.F("error", sendErr))
	op.LastError = sendErr.Error()
	// Back at the head before the flag drops, so no pass can overtake it.
	_, err := q.enqueue(ctx, op, true)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.processing = false
	if err != nil {
		return false, err
	}
	q.failures++
	q.lastError = sendErr.Error()
	q.scheduleRetryLocked()
	return true, nil
}

// Process replays queued operations in FIFO order. It stops at the first
// operation that fails but can still be retried, so later writes to the
// same resource never overtake it. Operations appended while a pass runs
// are part of that pass.
func (q *Queue) Process(ctx context.Context) (int, error) {
	q.mu.Lock()
	if !q.online {
		q.mu.Unlock()
		return 0, ErrOffline
	}
	if q.processing {
		q.mu.Unlock()
		return 0, ErrProcessing
	}
	q.processing = true
	q.stopRetryLocked()
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		q.mu.Lock()
		if len(q.ops) == 0 || !q.online || q.closed {
			q.mu.Unlock()
			if sent > 0 {
				q.logger.Info("Queue drained", logger.F("sent", sent))
			}
			return sent, nil
		}
		op := q.ops[0]
		q.mu.Unlock()

		sendErr := q.sender.Send(ctx, op)

		q.mu.Lock()
		idx := q.indexLocked(op.ID)
		if sendErr == nil {
			sent++
			q.failures = 0
			q.lastError = ""
			if idx >= 0 {
				q.ops = slices.Delete(q.ops, idx, idx+1)
				q.persistOrLogLocked(ctx)
			}
			q.mu.Unlock()
			continue
		}

		q.failures++
		q.lastError = sendErr.Error()
		if idx < 0 {
			// Cleared while in flight.
			q.mu.Unlock()
			continue
		}

		cur := &q.ops[idx]
		cur.RetryCount++
		cur.LastError = sendErr.Error()

		if cur.RetryCount >= cur.MaxRetries {
			dropped := *cur
			q.ops = slices.Delete(q.ops, idx, idx+1)
			q.persistOrLogLocked(ctx)
			q.mu.Unlock()
			q.exhausted(dropped, sendErr)
			continue
		}

		q.logger.Warn("Operation failed, will retry",
			logger.F("id", cur.ID),
			logger.F("resource", cur.Resource),
			logger.F("retry", cur.RetryCount),
			logger.F("max_retries", cur.MaxRetries),
			logger.F("error", sendErr))
		q.persistOrLogLocked(ctx)
		q.scheduleRetryLocked()
		q.mu.Unlock()
		return sent, sendErr
	}
}

func (q *Queue) exhausted(op model.QueuedOperation, cause error) {
	err := apperr.Wrap(apperr.CodeQueueExhausted,
		fmt.Sprintf("%s %s dropped after %d attempts", op.Method, op.Endpoint, op.RetryCount), cause)
	q.logger.Error("Operation exhausted its retries",
		logger.F("id", op.ID),
		logger.F("type", op.Type),
		logger.F("resource", op.Resource),
		logger.F("error", err))
	if q.opts.OnExhausted != nil {
		q.opts.OnExhausted(op, err)
	}
}

// SetOnline records the network status. An offline to online transition
// drains the queue once after the debounce window; going offline cancels
// a pending drain.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || online == q.online {
		return
	}
	q.online = online

	if q.debounce != nil {
		q.debounce.Stop()
		q.debounce = nil
	}

	if !online {
		q.stopRetryLocked()
		q.logger.Info("Queue offline", logger.F("pending", len(q.ops)))
		return
	}

	q.logger.Info("Queue online", logger.F("pending", len(q.ops)))
	var t clock.Timer
	t = q.opts.Clock.AfterFunc(q.opts.Debounce, func() {
		q.mu.Lock()
		if q.debounce != t || q.closed {
			q.mu.Unlock()
			return
		}
		q.debounce = nil
		q.mu.Unlock()

		if q.opts.OnOnline != nil {
			q.opts.OnOnline()
		}
		q.run(context.Background())
	})
	q.debounce = t
}

// Online reports the last status passed to SetOnline.
func (q *Queue) Online() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

// run is a pass whose result only matters to the log.
func (q *Queue) run(ctx context.Context) {
	if _, err := q.Process(ctx); err != nil &&
		!errors.Is(err, ErrOffline) && !errors.Is(err, ErrProcessing) {
		q.logger.Debug("Background pass stopped", logger.F("error", err))
	}
}

// backoff returns base * 2^(failures-1), capped at BackoffMax.
func (q *Queue) backoff() time.Duration {
	d := q.opts.BackoffBase
	for i := 1; i < q.failures; i++ {
		d *= 2
		if d >= q.opts.BackoffMax {
			return q.opts.BackoffMax
		}
	}
	return d
}

func (q *Queue) scheduleRetryLocked() {
	if q.closed || !q.online {
		return
	}
	q.stopRetryLocked()
	delay := q.backoff()
	var t clock.Timer
	t = q.opts.Clock.AfterFunc(delay, func() {
		q.mu.Lock()
		if q.retry != t || q.closed {
			q.mu.Unlock()
			return
		}
		q.retry = nil
		q.mu.Unlock()
		q.run(context.Background())
	})
	q.retry = t
	q.logger.Debug("Retry scheduled", logger.F("delay", delay), logger.F("failures", q.failures))
}

func (q *Queue) stopRetryLocked() {
	if q.retry != nil {
		q.retry.Stop()
		q.retry = nil
	}
}

// List returns a copy of the queued operations in order.
func (q *Queue) List() []model.QueuedOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.ops)
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Status returns the current queue status.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		Online:              q.online,
		Pending:             len(q.ops),
		Processing:          q.processing,
		ConsecutiveFailures: q.failures,
		LastError:           q.lastError,
	}
}

// ClearResource discards every operation for resource without executing
// it and returns how many were dropped.
func (q *Queue) ClearResource(ctx context.Context, resource string) (int, error) {
	return q.discard(ctx, func(op model.QueuedOperation) bool { return op.Resource == resource })
}

// Clear discards the whole queue without executing it.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	return q.discard(ctx, func(model.QueuedOperation) bool { return true })
}

func (q *Queue) discard(ctx context.Context, match func(model.QueuedOperation) bool) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := make([]model.QueuedOperation, 0, len(q.ops))
	for _, op := range q.ops {
		if !match(op) {
			kept = append(kept, op)
		}
	}
	n := len(q.ops) - len(kept)
	if n == 0 {
		return 0, nil
	}

	prev := q.ops
	q.ops = kept
	if err := q.persistLocked(ctx); err != nil {
		q.ops = prev
		return 0, err
	}
	if len(kept) == 0 {
		q.failures = 0
		q.stopRetryLocked()
	}
	q.logger.Warn("Discarded queued operations", logger.F("count", n), logger.F("remaining", len(kept)))
	return n, nil
}

// Close stops pending timers. Queued operations stay persisted.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.debounce != nil {
		q.debounce.Stop()
		q.debounce = nil
	}
	q.stopRetryLocked()
}

func (q *Queue) indexLocked(id string) int {
	return slices.IndexFunc(q.ops, func(op model.QueuedOperation) bool { return op.ID == id })
}

// persistLocked saves the queue even when ctx was cancelled mid-pass so
// that progress is not lost.
func (q *Queue) persistLocked(ctx context.Context) error {
	if err := q.log.SaveQueue(context.WithoutCancel(ctx), q.opts.Name, slices.Clone(q.ops)); err != nil {
		return fmt.Errorf("failed to save queue %q: %w", q.opts.Name, err)
	}
	return nil
}

func (q *Queue) persistOrLogLocked(ctx context.Context) {
	if err := q.persistLocked(ctx); err != nil {
		q.logger.Error("Failed to persist queue", logger.F("error", err))
	}
}
