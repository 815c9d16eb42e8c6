package connectivity

import (
	"sync"
	"testing"
	"time"
)

func TestNewMonitor(t *testing.T) {
	before := time.Now()
	m := NewMonitor(false)

	state := m.CurrentState()
	if state.Online {
		t.Error("expected offline initial state")
	}
	if state.ChangedAt.Before(before) {
		t.Errorf("ChangedAt = %v, want >= %v", state.ChangedAt, before)
	}
	if m.IsOnline() {
		t.Error("IsOnline() = true, want false")
	}
}

func TestMonitor_Report(t *testing.T) {
	m := NewMonitor(true)
	var got []bool
	m.Subscribe(func(s State) { got = append(got, s.Online) })

	readings := []bool{true, false, false, true, true, false}
	transitions := 0
	for _, r := range readings {
		if m.Report(r) {
			transitions++
		}
	}

	want := []bool{false, true, false}
	if transitions != len(want) {
		t.Errorf("transitions = %d, want %d", transitions, len(want))
	}
	if len(got) != len(want) {
		t.Fatalf("listener calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMonitor_ReportUpdatesChangedAt(t *testing.T) {
	m := NewMonitor(true)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	m.Report(false)
	if !m.CurrentState().ChangedAt.Equal(fixed) {
		t.Errorf("ChangedAt = %v, want %v", m.CurrentState().ChangedAt, fixed)
	}

	m.now = func() time.Time { return fixed.Add(time.Hour) }
	m.Report(false)
	if !m.CurrentState().ChangedAt.Equal(fixed) {
		t.Error("duplicate reading must not move ChangedAt")
	}
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := NewMonitor(true)
	calls := 0
	unsubscribe := m.Subscribe(func(State) { calls++ })

	m.Report(false)
	unsubscribe()
	unsubscribe()
	m.Report(true)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestMonitor_SubscriptionOrder(t *testing.T) {
	m := NewMonitor(true)
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		m.Subscribe(func(State) { order = append(order, i) })
	}

	m.Report(false)

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestMonitor_PanickingListener(t *testing.T) {
	m := NewMonitor(true)
	m.Subscribe(func(State) { panic("collaborator bug") })

	if !m.Report(false) {
		t.Fatal("Report() = false, want true")
	}
	if m.IsOnline() {
		t.Error("state must be updated even when a listener panics")
	}

	if !m.Report(true) {
		t.Error("monitor must keep accepting readings after a listener panic")
	}
	if !m.IsOnline() {
		t.Error("expected online after second report")
	}
}

func TestMonitor_ListenerMayReadState(t *testing.T) {
	m := NewMonitor(false)
	var observed State
	m.Subscribe(func(s State) { observed = m.CurrentState() })

	m.Report(true)

	if !observed.Online {
		t.Error("listener should observe the new state")
	}
}

func TestMonitor_ConcurrentReports(t *testing.T) {
	m := NewMonitor(false)
	var mu sync.Mutex
	var seen []bool
	m.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s.Online)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Report(i%2 == 0)
			_ = m.CurrentState()
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		if seen[i] == seen[i-1] {
			t.Fatalf("consecutive duplicate notifications at %d: %v", i, seen)
		}
	}
	if len(seen) > 0 && seen[len(seen)-1] != m.IsOnline() {
		t.Error("last notification must match the cached state")
	}
}
