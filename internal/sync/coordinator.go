// Package sync replays mutations recorded while offline to a remote endpoint
// and tracks the outcome of each pass.
package sync

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	gosync "sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kimhsiao/inventra/internal/connectivity"
	apperrors "github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/logging"
	"github.com/kimhsiao/inventra/internal/store"
	"github.com/kimhsiao/inventra/internal/sync/queue"
)

// SyncState is the coordinator's position in its state machine.
type SyncState string

const (
	SyncStateIdle    SyncState = "idle"
	SyncStateSyncing SyncState = "syncing"
	SyncStateFailed  SyncState = "failed"
)

// Result describes one sync pass.
type Result struct {
	Replayed    int           `json:"replayed"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	// Shared is set when the caller joined a pass started by another trigger.
	Shared bool   `json:"shared"`
	Error  string `json:"error,omitempty"`
}

// Status is a point-in-time snapshot for presenters.
type Status struct {
	State        SyncState  `json:"state"`
	Online       bool       `json:"online"`
	PendingCount int        `json:"pending_count"`
	LastSyncAt   *time.Time `json:"last_sync_at"`
	LastError    string     `json:"last_error,omitempty"`
}

// Options tunes a Coordinator.
type Options struct {
	// Timeout bounds a single pass. Zero waits for the transport indefinitely.
	Timeout time.Duration
}

// Coordinator owns the pending queue, the last-sync timestamp and the sync
// state machine. Construct one per process and share it.
type Coordinator struct {
	monitor   *connectivity.Monitor
	store     *store.LocalStore
	queue     *queue.Queue
	transport Transport
	timeout   time.Duration

	passes singleflight.Group

	mu       gosync.RWMutex
	state    SyncState
	lastSync *time.Time
	lastErr  error

	subMu       gosync.RWMutex
	subscribers map[uint64]func(Event)
	nextSubID   uint64

	now func() time.Time
}

const passKey = "sync"

// NewCoordinator creates a Coordinator in the idle state, restoring the last
// sync time persisted in s.
func NewCoordinator(monitor *connectivity.Monitor, s *store.LocalStore, q *queue.Queue, transport Transport, opts *Options) *Coordinator {
	if opts == nil {
		opts = &Options{}
	}

	c := &Coordinator{
		monitor:     monitor,
		store:       s,
		queue:       q,
		transport:   transport,
		timeout:     opts.Timeout,
		state:       SyncStateIdle,
		subscribers: make(map[uint64]func(Event)),
		now:         time.Now,
	}
	c.lastSync = loadLastSync(s)
	return c
}

func loadLastSync(s *store.LocalStore) *time.Time {
	raw := store.Get(s, store.KeyLastSync, "")
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		logging.Warn("Ignoring unparseable last sync time", map[string]interface{}{
			"value": raw,
			"error": err.Error(),
		})
		return nil
	}
	return &t
}

// IsOnline reports the connectivity monitor's cached state.
func (c *Coordinator) IsOnline() bool {
	return c.monitor.IsOnline()
}

// Monitor returns the connectivity monitor the coordinator consults.
func (c *Coordinator) Monitor() *connectivity.Monitor {
	return c.monitor
}

// PendingCount returns the number of queued mutations.
func (c *Coordinator) PendingCount() int {
	return c.queue.Len()
}

// Pending returns the queued mutations in replay order.
func (c *Coordinator) Pending() []queue.Entry {
	return c.queue.Drain()
}

// QueueStats returns counts over the pending queue.
func (c *Coordinator) QueueStats() map[string]int {
	return c.queue.Stats()
}

// LastSyncAt returns the time of the last successful pass, or nil.
func (c *Coordinator) LastSyncAt() *time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastSync == nil {
		return nil
	}
	t := *c.lastSync
	return &t
}

// State returns the current state machine position.
func (c *Coordinator) State() SyncState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError returns the error of the last failed pass, cleared when a new pass starts.
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Status returns a snapshot of the coordinator.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	status := Status{
		State: c.state,
	}
	if c.lastSync != nil {
		t := *c.lastSync
		status.LastSyncAt = &t
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	c.mu.RUnlock()

	status.Online = c.monitor.IsOnline()
	status.PendingCount = c.queue.Len()
	return status
}

// TriggerSync runs a sync pass and waits for its result. If a pass is already
// in flight the caller joins it and receives the same outcome; a second drain
// is never started. Cancelling ctx stops the wait, not the pass.
func (c *Coordinator) TriggerSync(ctx context.Context) (*Result, error) {
	ch := c.passes.DoChan(passKey, func() (interface{}, error) {
		return c.runPass()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		res := *r.Val.(*Result)
		res.Shared = r.Shared
		return &res, r.Err
	}
}

func (c *Coordinator) runPass() (result *Result, err error) {
	started := c.now()
	result = &Result{StartedAt: started}

	c.mu.Lock()
	c.state = SyncStateSyncing
	c.lastErr = nil
	c.mu.Unlock()

	batch := c.queue.Drain()
	result.Replayed = len(batch)

	logging.Info("Sync started", map[string]interface{}{"entries": len(batch)})
	c.emit(EventSyncStarted, map[string]interface{}{"entries": len(batch)})

	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.ErrSyncFailed, fmt.Sprintf("transport panicked: %v", r))
		}
		c.finish(result, err)
	}()

	if len(batch) > 0 {
		if err := c.send(batch); err != nil {
			return result, err
		}
		if err := c.queue.Acknowledge(batch); err != nil {
			return result, err
		}
	}

	// The batch is already acknowledged, so a failed timestamp write does not
	// fail the pass.
	completed := c.now()
	if err := c.store.Set(store.KeyLastSync, completed.UTC().Format(time.RFC3339Nano)); err != nil {
		logging.Warn("Failed to persist last sync time", map[string]interface{}{
			"error": err.Error(),
		})
	}
	result.CompletedAt = completed

	c.mu.Lock()
	c.lastSync = &completed
	c.mu.Unlock()

	return result, nil
}

func (c *Coordinator) send(batch []queue.Entry) error {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	err := c.transport.Sync(ctx, batch)
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.ErrSyncTimeout, fmt.Sprintf("sync did not complete within %s", c.timeout), err)
	case apperrors.Is(err, apperrors.ErrSyncFailed), apperrors.Is(err, apperrors.ErrSyncAuthFailed):
		return err
	default:
		return apperrors.Wrap(apperrors.ErrSyncFailed, "remote sync failed", err)
	}
}

func (c *Coordinator) finish(result *Result, err error) {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = c.now()
	}
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	c.mu.Lock()
	if err != nil {
		c.state = SyncStateFailed
		c.lastErr = err
		result.Error = err.Error()
	} else {
		c.state = SyncStateIdle
	}
	c.mu.Unlock()

	if err != nil {
		logging.ErrorWithCode("Sync failed", string(apperrors.CodeOf(err)), err,
			map[string]interface{}{"entries": result.Replayed})
		c.emit(EventSyncFailed, map[string]interface{}{
			"entries":     result.Replayed,
			"error":       err.Error(),
			"code":        string(apperrors.CodeOf(err)),
			"duration_ms": result.Duration.Milliseconds(),
		})
		return
	}

	logging.Info("Sync completed", map[string]interface{}{
		"entries":     result.Replayed,
		"duration_ms": result.Duration.Milliseconds(),
	})
	c.emit(EventSyncCompleted, map[string]interface{}{
		"entries":      result.Replayed,
		"last_sync_at": result.CompletedAt.UTC().Format(time.RFC3339Nano),
		"duration_ms":  result.Duration.Milliseconds(),
	})
	if result.Replayed > 0 {
		c.emit(EventQueueChanged, map[string]interface{}{"pending_count": c.queue.Len()})
	}
}

// AddMutation records a mutation for later replay when the monitor reports
// offline. Online it does nothing and returns false.
func (c *Coordinator) AddMutation(kind queue.Kind, resourceKey string, payload interface{}) (queued bool, err error) {
	if c.monitor.IsOnline() {
		return false, nil
	}

	entry, err := queue.NewEntry(kind, resourceKey, payload)
	if err != nil {
		return false, err
	}
	if err := c.queue.Enqueue(entry); err != nil {
		return false, err
	}

	c.emitQueued(entry)
	return true, nil
}

// ReadResource returns the JSON stored under key, or def when it is absent or corrupt.
func (c *Coordinator) ReadResource(key string, def json.RawMessage) json.RawMessage {
	raw, found, err := c.store.Raw(key)
	if err != nil {
		logging.Warn("Falling back to default for resource", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return def
	}
	if !found {
		return def
	}
	return raw
}

// ReadResourceAs decodes the value stored under key, or returns def.
func ReadResourceAs[T any](c *Coordinator, key string, def T) T {
	return store.Get(c.store, key, def)
}

// WriteResource persists value under key and queues a save when offline.
// A call that fails leaves neither the stored value nor the queue changed.
func (c *Coordinator) WriteResource(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "encode "+key, err)
	}
	payload := json.RawMessage(data)

	return c.mutate(queue.KindSave, key, payload, func() error {
		return c.store.Set(key, payload)
	})
}

// DeleteResource removes key and queues a delete when offline.
func (c *Coordinator) DeleteResource(key string) error {
	return c.mutate(queue.KindDelete, key, nil, func() error {
		return c.store.Remove(key)
	})
}

// mutate applies a local write. Offline, the mutation is enqueued first so a
// full queue rejects the call before anything is stored, and the entry is
// withdrawn again if the local write fails.
func (c *Coordinator) mutate(kind queue.Kind, key string, payload interface{}, write func() error) error {
	if c.monitor.IsOnline() {
		return write()
	}

	entry, err := queue.NewEntry(kind, key, payload)
	if err != nil {
		return err
	}
	if err := c.queue.Enqueue(entry); err != nil {
		return err
	}

	if err := write(); err != nil {
		if discardErr := c.queue.Discard(entry.ID); discardErr != nil {
			logging.Warn("Failed to withdraw queued mutation", map[string]interface{}{
				"entry_id": entry.ID,
				"error":    discardErr.Error(),
			})
		}
		return err
	}

	c.emitQueued(entry)
	return nil
}

func (c *Coordinator) emitQueued(entry queue.Entry) {
	c.emit(EventQueueChanged, map[string]interface{}{
		"pending_count": c.queue.Len(),
		"entry_id":      entry.ID,
		"kind":          string(entry.Kind),
		"resource_key":  entry.ResourceKey,
	})
}

// ClearQueue discards every pending mutation without replaying it.
func (c *Coordinator) ClearQueue() error {
	if err := c.queue.ClearAll(); err != nil {
		return err
	}
	c.emit(EventQueueChanged, map[string]interface{}{"pending_count": 0})
	return nil
}

// ResourceKeys lists the keys currently held in the local store.
func (c *Coordinator) ResourceKeys() ([]string, error) {
	return c.store.Keys()
}
