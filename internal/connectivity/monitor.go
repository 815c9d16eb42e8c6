// Package connectivity tracks the online/offline signal reported by the host
// environment and notifies subscribers when it changes.
package connectivity

import (
	"fmt"
	"sync"
	"time"

	"github.com/kimhsiao/inventra/internal/logging"
)

// State is the cached connectivity reading.
type State struct {
	Online    bool      `json:"online"`
	ChangedAt time.Time `json:"changed_at"`
}

// Listener is called once per observed transition with the new state.
type Listener func(State)

// Monitor mirrors an external connectivity oracle. The oracle is trusted as
// reported: there is no probing and no heartbeat.
type Monitor struct {
	mu        sync.RWMutex
	state     State
	listeners map[uint64]Listener
	nextID    uint64

	// notify serializes dispatch so subscribers observe transitions in order.
	notify sync.Mutex
	now    func() time.Time
}

// NewMonitor creates a Monitor with the given initial reading.
func NewMonitor(online bool) *Monitor {
	m := &Monitor{
		listeners: make(map[uint64]Listener),
		now:       time.Now,
	}
	m.state = State{Online: online, ChangedAt: m.now()}
	return m
}

// CurrentState returns the cached state. It never blocks on subscribers.
func (m *Monitor) CurrentState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsOnline reports the cached online flag.
func (m *Monitor) IsOnline() bool {
	return m.CurrentState().Online
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (m *Monitor) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Report feeds a reading from the oracle. It returns true when the reading
// is a transition; repeated readings of the same state are ignored.
func (m *Monitor) Report(online bool) bool {
	m.notify.Lock()
	defer m.notify.Unlock()

	m.mu.Lock()
	if m.state.Online == online {
		m.mu.Unlock()
		return false
	}
	m.state = State{Online: online, ChangedAt: m.now()}
	state := m.state
	listeners := make([]Listener, 0, len(m.listeners))
	for id := uint64(0); id < m.nextID; id++ {
		if fn, ok := m.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	m.mu.Unlock()

	logging.Info("Connectivity changed", map[string]interface{}{
		"online": online,
	})

	m.dispatch(state, listeners)
	return true
}

// dispatch runs listeners in subscription order. A panicking listener aborts
// the remaining listeners of this notification but leaves the monitor usable.
func (m *Monitor) dispatch(state State, listeners []Listener) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Connectivity listener panicked", fmt.Errorf("%v", r), map[string]interface{}{
				"online": state.Online,
			})
		}
	}()

	for _, fn := range listeners {
		fn(state)
	}
}
