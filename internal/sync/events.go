package sync

import (
	"fmt"
	"time"

	"github.com/kimhsiao/inventra/internal/logging"
)

// EventType identifies a coordinator notification.
type EventType string

const (
	EventSyncStarted   EventType = "sync.started"
	EventSyncCompleted EventType = "sync.completed"
	EventSyncFailed    EventType = "sync.failed"
	EventQueueChanged  EventType = "queue.changed"
)

// Event is delivered to coordinator subscribers.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Subscribe registers fn for coordinator events and returns a function that
// removes it. Events are delivered synchronously on the goroutine that caused
// them, so fn must not block.
func (c *Coordinator) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subscribers, id)
		c.subMu.Unlock()
	}
}

func (c *Coordinator) emit(typ EventType, data map[string]interface{}) {
	event := Event{Type: typ, Timestamp: c.now(), Data: data}

	c.subMu.RLock()
	subscribers := make([]func(Event), 0, len(c.subscribers))
	for id := uint64(0); id < c.nextSubID; id++ {
		if fn, ok := c.subscribers[id]; ok {
			subscribers = append(subscribers, fn)
		}
	}
	c.subMu.RUnlock()

	for _, fn := range subscribers {
		deliver(fn, event)
	}
}

func deliver(fn func(Event), event Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Sync event subscriber panicked", fmt.Errorf("%v", r),
				map[string]interface{}{"event": string(event.Type)})
		}
	}()
	fn(event)
}
