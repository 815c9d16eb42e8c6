// Package scheduler starts a sync pass when connectivity comes back and there
// is something to replay.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/inventra/internal/connectivity"
	"github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/logging"
	syncpkg "github.com/kimhsiao/inventra/internal/sync"
)

// Scheduler watches the connectivity monitor on behalf of a coordinator.
// There is no periodic sync and no retry timer: a pass starts when the
// scheduler starts online with a non-empty queue, and on an offline to online
// transition with a non-empty queue.
type Scheduler struct {
	coordinator *syncpkg.Coordinator
	monitor     *connectivity.Monitor

	wg          sync.WaitGroup
	mu          sync.RWMutex
	isRunning   bool
	unsubscribe func()

	lastTrigger    time.Time
	triggered      int
	syncInProgress bool
	lastErr        error
}

// NewScheduler creates a Scheduler for coordinator.
func NewScheduler(coordinator *syncpkg.Coordinator) *Scheduler {
	return &Scheduler{
		coordinator: coordinator,
		monitor:     coordinator.Monitor(),
	}
}

// Start subscribes to connectivity transitions. Passes started by the
// scheduler stop being awaited once ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true

	s.unsubscribe = s.monitor.Subscribe(func(state connectivity.State) {
		s.onTransition(ctx, state)
	})

	logging.Info("Reconnect sync scheduler started", nil)

	// A queue restored from a previous run is replayed right away.
	if pending := s.coordinator.PendingCount(); pending > 0 && s.monitor.IsOnline() {
		logging.Info("Online at startup, replaying pending mutations",
			map[string]interface{}{"pending": pending})
		s.track()
		go s.runSync(ctx)
	}
}

// track records a pass about to start. The caller holds s.mu.
func (s *Scheduler) track() {
	s.wg.Add(1)
	s.lastTrigger = time.Now()
	s.triggered++
}

// Stop unsubscribes and waits for passes it started to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	unsubscribe()
	s.wg.Wait()

	logging.Info("Reconnect sync scheduler stopped", nil)
}

func (s *Scheduler) onTransition(ctx context.Context, state connectivity.State) {
	if !state.Online {
		logging.Debug("Went offline, writes will be queued", nil)
		return
	}

	pending := s.coordinator.PendingCount()
	if pending == 0 {
		logging.Debug("Back online with nothing to replay", nil)
		return
	}

	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.track()
	s.mu.Unlock()

	logging.Info("Back online, replaying pending mutations",
		map[string]interface{}{"pending": pending})

	go s.runSync(ctx)
}

// runSync executes one pass and records its outcome.
func (s *Scheduler) runSync(ctx context.Context) {
	defer s.wg.Done()

	s.mu.Lock()
	s.syncInProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncInProgress = false
		s.mu.Unlock()
	}()

	result, err := s.coordinator.TriggerSync(ctx)

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		logging.ErrorWithCode("Reconnect sync failed", string(errors.CodeOf(err)), err, nil)
		return
	}

	logging.Info("Reconnect sync completed",
		map[string]interface{}{
			"replayed": result.Replayed,
			"shared":   result.Shared,
		})
}

// SchedulerStatus is a snapshot of the scheduler.
type SchedulerStatus struct {
	IsRunning       bool           `json:"is_running"`
	IsOnline        bool           `json:"is_online"`
	LastTriggerTime *time.Time     `json:"last_trigger_time,omitempty"`
	Triggered       int            `json:"triggered"`
	SyncInProgress  bool           `json:"sync_in_progress"`
	LastError       string         `json:"last_error,omitempty"`
	PendingItems    int            `json:"pending_items"`
	QueueStats      map[string]int `json:"queue_stats"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	status := SchedulerStatus{
		IsRunning:      s.isRunning,
		Triggered:      s.triggered,
		SyncInProgress: s.syncInProgress,
	}
	if !s.lastTrigger.IsZero() {
		t := s.lastTrigger
		status.LastTriggerTime = &t
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	s.mu.RUnlock()

	status.IsOnline = s.monitor.IsOnline()
	status.PendingItems = s.coordinator.PendingCount()
	status.QueueStats = s.coordinator.QueueStats()

	return status
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
