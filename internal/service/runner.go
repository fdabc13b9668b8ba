// Package service orchestrates catalog runs: Phase 1 and Phase 2 back to
// back, mutual exclusion per store, cooperative cancellation, progress
// snapshots and lifecycle events. The scheduler and the HTTP layer both
// enter through here, so a store can never have two runs in flight.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elizandromoreira/feed-control-sub000/internal/adapters/messaging"
	"github.com/elizandromoreira/feed-control-sub000/internal/adapters/storage"
	"github.com/elizandromoreira/feed-control-sub000/internal/domain/models"
	"github.com/elizandromoreira/feed-control-sub000/internal/metrics"
	"github.com/elizandromoreira/feed-control-sub000/pkg/interfaces"
)

// SyncEngine runs the supplier fetch/diff/update phase.
type SyncEngine interface {
	Run(ctx context.Context, store *models.Store, progress models.ProgressFunc, cancelled func() bool) (*models.SyncResult, error)
}

// FeedPublisher runs the marketplace feed phase.
type FeedPublisher interface {
	Run(ctx context.Context, store *models.Store, progress models.ProgressFunc, cancelled func() bool) (*models.FeedResult, error)
}

// Options tunes the runner's ambient integrations.
type Options struct {
	LifecycleTopic string
	ProgressTTL    time.Duration
}

// Runner coordinates sync runs for all stores.
type Runner struct {
	storage   storage.Port
	engine    SyncEngine
	publisher FeedPublisher
	cache     interfaces.CachePort     // nil disables snapshot publishing
	messaging interfaces.MessagingPort // nil disables lifecycle events
	logger    interfaces.LoggerPort
	opts      Options

	mu   sync.Mutex
	runs map[string]*runHandle
}

// runHandle is the in-memory state of one active run.
type runHandle struct {
	cancelled atomic.Bool

	mu       sync.Mutex
	snapshot models.SyncProgress
}

func NewRunner(st storage.Port, engine SyncEngine, publisher FeedPublisher,
	cache interfaces.CachePort, msg interfaces.MessagingPort, logger interfaces.LoggerPort, opts Options) *Runner {
	if opts.ProgressTTL <= 0 {
		opts.ProgressTTL = 5 * time.Minute
	}
	return &Runner{
		storage:   st,
		engine:    engine,
		publisher: publisher,
		cache:     cache,
		messaging: msg,
		logger:    logger,
		opts:      opts,
		runs:      make(map[string]*runHandle),
	}
}

// acquire registers a run for the store or fails with ErrAlreadyRunning.
func (r *Runner) acquire(storeID string) (*runHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, running := r.runs[storeID]; running {
		return nil, models.ErrAlreadyRunning
	}
	h := &runHandle{}
	r.runs[storeID] = h
	metrics.ActiveRuns.Inc()
	return h, nil
}

func (r *Runner) release(storeID string) {
	r.mu.Lock()
	delete(r.runs, storeID)
	r.mu.Unlock()
	metrics.ActiveRuns.Dec()
}

// RunStore executes Phase 1 followed by Phase 2 for the store. Blocks
// until both phases finish, the run is cancelled, or a run-level failure
// occurs. Satisfies the scheduler's Runner contract.
func (r *Runner) RunStore(ctx context.Context, storeID string) error {
	handle, err := r.acquire(storeID)
	if err != nil {
		return err
	}
	defer r.release(storeID)

	return r.run(ctx, storeID, handle, true, true)
}

// RunPhase1 executes only the supplier synchronization phase.
func (r *Runner) RunPhase1(ctx context.Context, storeID string) error {
	handle, err := r.acquire(storeID)
	if err != nil {
		return err
	}
	defer r.release(storeID)

	return r.run(ctx, storeID, handle, true, false)
}

// RunPhase2 executes only the feed publishing phase, sweeping whatever
// dirty flags earlier runs left behind.
func (r *Runner) RunPhase2(ctx context.Context, storeID string) error {
	handle, err := r.acquire(storeID)
	if err != nil {
		return err
	}
	defer r.release(storeID)

	return r.run(ctx, storeID, handle, false, true)
}

func (r *Runner) run(ctx context.Context, storeID string, handle *runHandle, phase1, phase2 bool) error {
	log := r.logger.WithStore(storeID)

	store, err := r.storage.GetStore(ctx, storeID)
	if err != nil {
		return err
	}

	if err := r.storage.SaveRunState(ctx, storeID, true); err != nil {
		return fmt.Errorf("failed to persist run state: %w", err)
	}
	defer func() {
		if err := r.storage.SaveRunState(context.WithoutCancel(ctx), storeID, false); err != nil {
			log.Error("failed to clear run state", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		r.clearSnapshot(storeID)
	}()

	r.publishEvent(ctx, messaging.SyncStartedEvent, storeID, nil)

	progress := func(snap models.SyncProgress) {
		handle.mu.Lock()
		handle.snapshot = snap
		handle.mu.Unlock()
		r.pushSnapshot(ctx, storeID, snap)
	}
	isCancelled := func() bool { return handle.cancelled.Load() }

	cancelled := false

	if phase1 {
		result, err := r.engine.Run(ctx, store, progress, isCancelled)
		if err != nil {
			metrics.SyncRunsTotal.WithLabelValues(storeID, "failed").Inc()
			r.publishEvent(ctx, messaging.SyncFailedEvent, storeID, map[string]interface{}{"error": err.Error()})
			return err
		}
		cancelled = result.Cancelled
		result.StoreID = storeID
	}

	if phase2 && !cancelled {
		result, err := r.publisher.Run(ctx, store, progress, isCancelled)
		if err != nil {
			metrics.SyncRunsTotal.WithLabelValues(storeID, "failed").Inc()
			r.publishEvent(ctx, messaging.SyncFailedEvent, storeID, map[string]interface{}{"error": err.Error()})
			return err
		}
		cancelled = result.Cancelled
		result.StoreID = storeID
		if result.Batches > 0 {
			r.publishEvent(ctx, messaging.FeedProcessedEvent, storeID, map[string]interface{}{
				"batches":  result.Batches,
				"accepted": result.Accepted,
				"rejected": result.Rejected,
			})
		}
	}

	if cancelled {
		metrics.SyncRunsTotal.WithLabelValues(storeID, "cancelled").Inc()
		r.publishEvent(ctx, messaging.SyncCancelledEvent, storeID, nil)
		log.Info("run cancelled")
		return nil
	}

	metrics.SyncRunsTotal.WithLabelValues(storeID, "ok").Inc()
	r.publishEvent(ctx, messaging.SyncFinishedEvent, storeID, nil)
	return nil
}

// Cancel requests cooperative cancellation of the store's active run.
// In-flight tasks finish; queued work is rejected.
func (r *Runner) Cancel(storeID string) error {
	r.mu.Lock()
	handle, running := r.runs[storeID]
	r.mu.Unlock()

	if !running {
		return fmt.Errorf("no active run for store %s", storeID)
	}
	handle.cancelled.Store(true)
	r.logger.WithStore(storeID).Info("cancellation requested")
	return nil
}

// Progress returns the latest snapshot of the store's active run. The
// second return value is false when no run is active.
func (r *Runner) Progress(storeID string) (models.SyncProgress, bool) {
	r.mu.Lock()
	handle, running := r.runs[storeID]
	r.mu.Unlock()

	if !running {
		return models.SyncProgress{}, false
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return handle.snapshot, true
}

// IsRunning reports whether the store has an active run.
func (r *Runner) IsRunning(storeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, running := r.runs[storeID]
	return running
}

func progressKey(storeID string) string {
	return "feedcontrol:progress:" + storeID
}

func (r *Runner) pushSnapshot(ctx context.Context, storeID string, snap models.SyncProgress) {
	if r.cache == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, progressKey(storeID), payload, r.opts.ProgressTTL); err != nil {
		r.logger.Debug("failed to push progress snapshot",
			interfaces.LogField{Key: "store_id", Value: storeID},
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
}

func (r *Runner) clearSnapshot(storeID string) {
	if r.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = r.cache.Delete(ctx, progressKey(storeID))
}

// publishEvent emits a lifecycle event keyed by store so downstream
// consumers see events for one store in order. Best effort.
func (r *Runner) publishEvent(ctx context.Context, event, storeID string, details map[string]interface{}) {
	if r.messaging == nil {
		return
	}

	payload := map[string]interface{}{
		"event":     event,
		"store_id":  storeID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range details {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := r.messaging.PublishWithKey(ctx, r.opts.LifecycleTopic, storeID, body); err != nil {
		r.logger.Warn("failed to publish lifecycle event",
			interfaces.LogField{Key: "event", Value: event},
			interfaces.LogField{Key: "store_id", Value: storeID},
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
}
