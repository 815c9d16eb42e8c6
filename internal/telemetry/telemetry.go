// Package telemetry keeps in-process counters and timings for the status
// surfaces. Nothing is collected beyond this process and nothing is ever
// transmitted off the device.
package telemetry

import (
	"sync"
	"time"

	"github.com/kimhsiao/inventra/internal/connectivity"
	syncpkg "github.com/kimhsiao/inventra/internal/sync"
)

// Metric names recorded by the observers in this package.
const (
	MetricSyncPasses          = "sync.passes"
	MetricSyncCompleted       = "sync.completed"
	MetricSyncFailed          = "sync.failed"
	MetricSyncReplayed        = "sync.replayed"
	MetricSyncDuration        = "sync.duration"
	MetricQueueChanges        = "queue.changes"
	MetricConnectivityOnline  = "connectivity.online"
	MetricConnectivityOffline = "connectivity.offline"
	MetricHTTPRequests        = "http.requests"
)

// Timing aggregates observed durations.
type Timing struct {
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Last  time.Duration `json:"last"`
	Max   time.Duration `json:"max"`
}

// Snapshot is a copy of everything recorded so far.
type Snapshot struct {
	Since    time.Time         `json:"since"`
	Counters map[string]int64  `json:"counters"`
	Timings  map[string]Timing `json:"timings"`
}

// Recorder is a concurrency-safe metrics sink.
type Recorder struct {
	mu       sync.Mutex
	since    time.Time
	counters map[string]int64
	timings  map[string]Timing
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	r := &Recorder{}
	r.Reset()
	return r
}

// RecordCount adds delta to the named counter.
func (r *Recorder) RecordCount(name string, delta int64) {
	r.mu.Lock()
	r.counters[name] += delta
	r.mu.Unlock()
}

// RecordTiming adds one observation to the named timing.
func (r *Recorder) RecordTiming(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.timings[name]
	t.Count++
	t.Total += d
	t.Last = d
	if d > t.Max {
		t.Max = d
	}
	r.timings[name] = t
}

// Count returns the current value of the named counter.
func (r *Recorder) Count(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// Snapshot returns a copy of all counters and timings.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Since:    r.since,
		Counters: make(map[string]int64, len(r.counters)),
		Timings:  make(map[string]Timing, len(r.timings)),
	}
	for k, v := range r.counters {
		s.Counters[k] = v
	}
	for k, v := range r.timings {
		s.Timings[k] = v
	}
	return s
}

// Reset clears everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.since = time.Now()
	r.counters = make(map[string]int64)
	r.timings = make(map[string]Timing)
}

// =====================================================
// Observers
// =====================================================

// SyncObserver returns a coordinator subscriber that records pass outcomes.
func SyncObserver(r *Recorder) func(syncpkg.Event) {
	return func(e syncpkg.Event) {
		switch e.Type {
		case syncpkg.EventSyncStarted:
			r.RecordCount(MetricSyncPasses, 1)
		case syncpkg.EventSyncCompleted:
			r.RecordCount(MetricSyncCompleted, 1)
			r.RecordCount(MetricSyncReplayed, toInt64(e.Data["entries"]))
			r.RecordTiming(MetricSyncDuration, time.Duration(toInt64(e.Data["duration_ms"]))*time.Millisecond)
		case syncpkg.EventSyncFailed:
			r.RecordCount(MetricSyncFailed, 1)
			r.RecordTiming(MetricSyncDuration, time.Duration(toInt64(e.Data["duration_ms"]))*time.Millisecond)
		case syncpkg.EventQueueChanged:
			r.RecordCount(MetricQueueChanges, 1)
		}
	}
}

// ConnectivityObserver returns a monitor listener that counts transitions.
func ConnectivityObserver(r *Recorder) connectivity.Listener {
	return func(state connectivity.State) {
		if state.Online {
			r.RecordCount(MetricConnectivityOnline, 1)
			return
		}
		r.RecordCount(MetricConnectivityOffline, 1)
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
