// Package queue holds the ordered log of mutations made while offline.
// The log is persisted through the local store on every change so that its
// order survives restarts.
package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/logging"
	"github.com/kimhsiao/inventra/internal/store"
	"github.com/kimhsiao/inventra/internal/uuid"
)

// Kind is the type of a queued mutation.
type Kind string

const (
	KindSave   Kind = "save"
	KindDelete Kind = "delete"
)

// Valid reports whether k is a known mutation kind.
func (k Kind) Valid() bool {
	return k == KindSave || k == KindDelete
}

// Entry is one queued mutation. IDs are UUIDv7, so sorting by ID sorts by
// creation time.
type Entry struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	ResourceKey string          `json:"resourceKey"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
}

// NewEntry builds an entry for kind on resourceKey. payload is serialized for
// saves and must be nil for deletes.
func NewEntry(kind Kind, resourceKey string, payload interface{}) (Entry, error) {
	e := Entry{
		ID:          uuid.New(),
		Kind:        kind,
		ResourceKey: resourceKey,
		EnqueuedAt:  time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Entry{}, apperrors.Wrap(apperrors.ErrInvalid, "encode payload", err)
		}
		e.Payload = data
	}
	return e, e.Validate()
}

// Validate checks the structural rules of an entry.
func (e Entry) Validate() error {
	switch {
	case e.ID == "":
		return apperrors.New(apperrors.ErrValidation, "entry id is required")
	case !e.Kind.Valid():
		return apperrors.Newf(apperrors.ErrValidation, "unknown mutation kind %q", e.Kind)
	case e.ResourceKey == "":
		return apperrors.New(apperrors.ErrValidation, "resource key is required")
	case e.Kind == KindSave && len(e.Payload) == 0:
		return apperrors.New(apperrors.ErrValidation, "save requires a payload")
	case e.Kind == KindDelete && len(e.Payload) != 0:
		return apperrors.New(apperrors.ErrValidation, "delete must not carry a payload")
	}
	return nil
}

// Queue is the persisted FIFO of pending mutations.
type Queue struct {
	mu      sync.RWMutex
	store   *store.LocalStore
	entries []Entry
	maxSize int
}

// New loads the queue persisted in s. A missing or corrupt record yields an
// empty queue. maxSize <= 0 means unbounded.
func New(s *store.LocalStore, maxSize int) *Queue {
	q := &Queue{store: s, maxSize: maxSize}

	loaded := store.Get(s, store.KeyPendingSync, []Entry{})
	q.entries = make([]Entry, 0, len(loaded))
	for _, e := range loaded {
		if err := e.Validate(); err != nil {
			logging.Warn("Dropping malformed pending entry", map[string]interface{}{
				"entry_id": e.ID,
				"error":    err.Error(),
			})
			continue
		}
		q.entries = append(q.entries, e)
	}

	if len(q.entries) > 0 {
		logging.Info("Restored pending sync queue", map[string]interface{}{"count": len(q.entries)})
	}
	return q
}

// Enqueue appends e and persists the queue before returning. If the write
// fails the queue is left as it was.
func (q *Queue) Enqueue(e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxSize > 0 && len(q.entries) >= q.maxSize {
		return apperrors.Newf(apperrors.ErrQueueFull, "queue is full (max size: %d)", q.maxSize)
	}

	next := make([]Entry, len(q.entries), len(q.entries)+1)
	copy(next, q.entries)
	next = append(next, e)

	if err := q.store.Set(store.KeyPendingSync, next); err != nil {
		return err
	}
	q.entries = next

	logging.Debug("Enqueued mutation", map[string]interface{}{
		"entry_id":     e.ID,
		"kind":         string(e.Kind),
		"resource_key": e.ResourceKey,
	})
	return nil
}

// Drain returns the queued entries in enqueue order without removing them.
func (q *Queue) Drain() []Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// ClearAll empties the queue and persists the empty state.
func (q *Queue) ClearAll() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Set(store.KeyPendingSync, []Entry{}); err != nil {
		return err
	}
	cleared := len(q.entries)
	q.entries = nil

	logging.Info("Pending sync queue cleared", map[string]interface{}{"count": cleared})
	return nil
}

// Acknowledge removes the entries of a successfully replayed batch. Entries
// appended after the batch was drained are kept. Removal is all or nothing.
func (q *Queue) Acknowledge(batch []Entry) error {
	if len(batch) == 0 {
		return nil
	}

	done := make(map[string]struct{}, len(batch))
	for _, e := range batch {
		done[e.ID] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	remaining := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		if _, ok := done[e.ID]; !ok {
			remaining = append(remaining, e)
		}
	}

	if err := q.store.Set(store.KeyPendingSync, remaining); err != nil {
		return fmt.Errorf("acknowledge %d entries: %w", len(batch), err)
	}
	removed := len(q.entries) - len(remaining)
	q.entries = remaining

	logging.Info("Acknowledged replayed entries", map[string]interface{}{
		"removed":   removed,
		"remaining": len(remaining),
	})
	return nil
}

// Discard removes the entry with id, if it is still queued.
func (q *Queue) Discard(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	remaining := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.ID != id {
			remaining = append(remaining, e)
		}
	}
	if len(remaining) == len(q.entries) {
		return nil
	}

	if err := q.store.Set(store.KeyPendingSync, remaining); err != nil {
		return fmt.Errorf("discard entry %s: %w", id, err)
	}
	q.entries = remaining
	return nil
}

// Stats returns counts by kind plus the number of distinct resource keys.
func (q *Queue) Stats() map[string]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := map[string]int{
		"total":     len(q.entries),
		"save":      0,
		"delete":    0,
		"resources": 0,
	}

	keys := make(map[string]struct{})
	for _, e := range q.entries {
		stats[string(e.Kind)]++
		keys[e.ResourceKey] = struct{}{}
	}
	stats["resources"] = len(keys)

	return stats
}
