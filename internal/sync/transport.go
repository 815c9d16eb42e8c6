package sync

import (
	"context"
	"time"

	"github.com/kimhsiao/inventra/internal/logging"
	"github.com/kimhsiao/inventra/internal/sync/queue"
)

// Transport delivers a drained batch to the remote side. Entries must be
// applied in slice order. A nil error means the whole batch was accepted;
// any error means none of it may be considered delivered.
type Transport interface {
	Sync(ctx context.Context, entries []queue.Entry) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, entries []queue.Entry) error

// Sync calls f(ctx, entries).
func (f TransportFunc) Sync(ctx context.Context, entries []queue.Entry) error {
	return f(ctx, entries)
}

// SimulatedTransport stands in for a remote endpoint: it waits Latency and
// accepts every batch.
type SimulatedTransport struct {
	Latency time.Duration
}

// NewSimulatedTransport creates a SimulatedTransport.
func NewSimulatedTransport(latency time.Duration) *SimulatedTransport {
	return &SimulatedTransport{Latency: latency}
}

// Sync waits for the configured latency or until ctx is done.
func (t *SimulatedTransport) Sync(ctx context.Context, entries []queue.Entry) error {
	if t.Latency > 0 {
		timer := time.NewTimer(t.Latency)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	logging.Info("Simulated sync accepted batch", map[string]interface{}{
		"entries": len(entries),
	})
	return nil
}
