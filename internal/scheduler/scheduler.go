// Package scheduler arms one-shot timers per store and drives full sync
// runs on the configured interval. Timers are recursive, not periodic:
// the next one is armed only after a run finishes, so slow runs never
// compound drift.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elizandromoreira/feed-control-sub000/internal/adapters/storage"
	"github.com/elizandromoreira/feed-control-sub000/internal/domain/models"
	"github.com/elizandromoreira/feed-control-sub000/internal/metrics"
	"github.com/elizandromoreira/feed-control-sub000/pkg/interfaces"
)

// Runner executes one full Phase1+Phase2 run for a store. It enforces
// mutual exclusion and returns ErrAlreadyRunning when a run is already
// in flight for the store.
type Runner interface {
	RunStore(ctx context.Context, storeID string) error
}

// Scheduler owns the per-store timers. Safe for concurrent use.
type Scheduler struct {
	storage storage.Port
	runner  Runner
	logger  interfaces.LoggerPort

	mu     sync.Mutex
	timers map[string]*time.Timer
	ctx    context.Context
	cancel context.CancelFunc
}

func New(st storage.Port, runner Runner, logger interfaces.LoggerPort) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		storage: st,
		runner:  runner,
		logger:  logger,
		timers:  make(map[string]*time.Timer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Activate persists the schedule as active and arms the first timer.
// The delay derives from the persisted last run: lastRun + interval, or
// an immediate run when the store never ran.
func (s *Scheduler) Activate(ctx context.Context, storeID string, intervalHours int) error {
	store, err := s.storage.GetStore(ctx, storeID)
	if err != nil {
		return err
	}

	state := models.ScheduleState{
		Active:        true,
		IntervalHours: intervalHours,
		LastRun:       store.LastRun,
	}
	if err := s.storage.SaveScheduleState(ctx, storeID, state); err != nil {
		return err
	}

	interval := time.Duration(intervalHours) * time.Hour
	delay := time.Duration(0)
	if store.LastRun != nil {
		delay = time.Until(store.LastRun.Add(interval))
		if delay < 0 {
			delay = 0
		}
	}

	s.arm(storeID, delay)
	s.logger.Info("schedule activated",
		interfaces.LogField{Key: "store_id", Value: storeID},
		interfaces.LogField{Key: "interval_hours", Value: intervalHours},
		interfaces.LogField{Key: "first_delay", Value: delay.String()})
	return nil
}

// Cancel clears the timer and persists the store as inactive. A run
// already in progress finishes but will not re-arm.
func (s *Scheduler) Cancel(ctx context.Context, storeID string) error {
	store, err := s.storage.GetStore(ctx, storeID)
	if err != nil {
		return err
	}

	state := models.ScheduleState{
		Active:        false,
		IntervalHours: store.IntervalHours,
		LastRun:       store.LastRun,
	}
	if err := s.storage.SaveScheduleState(ctx, storeID, state); err != nil {
		return err
	}

	s.mu.Lock()
	if timer, ok := s.timers[storeID]; ok {
		timer.Stop()
		delete(s.timers, storeID)
		metrics.ScheduledStores.Dec()
	}
	s.mu.Unlock()

	s.logger.Info("schedule cancelled", interfaces.LogField{Key: "store_id", Value: storeID})
	return nil
}

// Recover re-derives timers for every active store after a restart.
// A store overdue by more than twice its interval runs immediately;
// otherwise the remaining delay is armed. Inactive stores are never
// resumed regardless of any stale run state left by a crash.
func (s *Scheduler) Recover(ctx context.Context) error {
	stores, err := s.storage.ListActiveStores(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, store := range stores {
		// Clear a running flag orphaned by a crash.
		if store.IsRunning {
			if err := s.storage.SaveRunState(ctx, store.ID, false); err != nil {
				s.logger.Error("failed to clear stale run state",
					interfaces.LogField{Key: "store_id", Value: store.ID},
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}

		delay := time.Duration(0)
		if store.LastRun != nil {
			overdue := now.Sub(*store.LastRun)
			if overdue <= 2*store.Interval() {
				delay = store.LastRun.Add(store.Interval()).Sub(now)
				if delay < 0 {
					delay = 0
				}
			}
		}

		s.arm(store.ID, delay)
		s.logger.Info("schedule recovered",
			interfaces.LogField{Key: "store_id", Value: store.ID},
			interfaces.LogField{Key: "delay", Value: delay.String()})
	}

	return nil
}

// Stop cancels the background context and stops every timer. Runs in
// flight finish on their own.
func (s *Scheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
}

func (s *Scheduler) arm(storeID string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[storeID]; ok {
		old.Stop()
	} else {
		metrics.ScheduledStores.Inc()
	}
	s.timers[storeID] = time.AfterFunc(delay, func() { s.fire(storeID) })
}

// fire runs one scheduled pass and re-arms. The persisted active flag is
// re-checked first: a cancel that raced the timer wins.
func (s *Scheduler) fire(storeID string) {
	log := s.logger.WithStore(storeID)

	store, err := s.storage.GetStore(s.ctx, storeID)
	if err != nil {
		log.Error("failed to load store for scheduled run",
			interfaces.LogField{Key: "error", Value: err.Error()})
		return
	}
	if !store.Active {
		s.mu.Lock()
		if _, ok := s.timers[storeID]; ok {
			delete(s.timers, storeID)
			metrics.ScheduledStores.Dec()
		}
		s.mu.Unlock()
		return
	}

	// A panic in one store's run must not kill the timers of the rest.
	err = func() (runErr error) {
		defer func() {
			if rvr := recover(); rvr != nil {
				runErr = fmt.Errorf("run panicked: %v", rvr)
			}
		}()
		return s.runner.RunStore(s.ctx, storeID)
	}()
	switch {
	case errors.Is(err, models.ErrAlreadyRunning):
		// Manual trigger beat us; try again next interval.
		log.Warn("scheduled run skipped, already running")
	case err != nil:
		// The store stays eligible for its next scheduled attempt.
		log.Error("scheduled run failed", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	// Re-load before re-arming: a cancel issued during the run wins.
	after, lerr := s.storage.GetStore(s.ctx, storeID)
	if lerr != nil {
		log.Error("failed to reload store after scheduled run",
			interfaces.LogField{Key: "error", Value: lerr.Error()})
		return
	}

	now := time.Now()
	state := models.ScheduleState{
		Active:        after.Active,
		IntervalHours: after.IntervalHours,
		LastRun:       &now,
	}
	if errors.Is(err, models.ErrAlreadyRunning) {
		// Not our run; leave lastRun to the owner.
		state.LastRun = after.LastRun
	}
	if perr := s.storage.SaveScheduleState(s.ctx, storeID, state); perr != nil {
		log.Error("failed to persist schedule state", interfaces.LogField{Key: "error", Value: perr.Error()})
	}

	if !after.Active || s.ctx.Err() != nil {
		s.mu.Lock()
		if _, ok := s.timers[storeID]; ok {
			delete(s.timers, storeID)
			metrics.ScheduledStores.Dec()
		}
		s.mu.Unlock()
		return
	}
	s.arm(storeID, after.Interval())
}
