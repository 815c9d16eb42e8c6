package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/sync/queue"
)

func sampleBatch(t *testing.T) []queue.Entry {
	t.Helper()
	save, err := queue.NewEntry(queue.KindSave, "clients", []map[string]interface{}{{"id": 1, "name": "Acme"}})
	require.NoError(t, err)
	del, err := queue.NewEntry(queue.KindDelete, "schedules", nil)
	require.NoError(t, err)
	return []queue.Entry{save, del}
}

// TestSimulatedTransport verifies the simulated endpoint accepts batches.
func TestSimulatedTransport(t *testing.T) {
	tr := NewSimulatedTransport(5 * time.Millisecond)
	start := time.Now()
	require.NoError(t, tr.Sync(context.Background(), sampleBatch(t)))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	require.NoError(t, NewSimulatedTransport(0).Sync(context.Background(), nil))
}

// TestSimulatedTransport_contextDone verifies the wait is abandoned on cancel.
func TestSimulatedTransport_contextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSimulatedTransport(time.Hour).Sync(ctx, sampleBatch(t))
	assert.ErrorIs(t, err, context.Canceled)
}

// TestTransportFunc verifies the function adapter.
func TestTransportFunc(t *testing.T) {
	var got int
	tr := TransportFunc(func(_ context.Context, entries []queue.Entry) error {
		got = len(entries)
		return nil
	})
	require.NoError(t, tr.Sync(context.Background(), sampleBatch(t)))
	assert.Equal(t, 2, got)
}

// TestHTTPTransport_success verifies the request shape.
func TestHTTPTransport_success(t *testing.T) {
	batch := sampleBatch(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, BatchPath, r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req BatchRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "device-1", req.DeviceID)
		if !assert.Len(t, req.Entries, 2) {
			return
		}
		assert.Equal(t, batch[0].ID, req.Entries[0].ID)
		assert.Equal(t, queue.KindDelete, req.Entries[1].Kind)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"applied":2}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(&HTTPConfig{Endpoint: srv.URL + "/", DeviceID: "device-1"},
		func() (string, error) { return "tok-123", nil })
	require.NoError(t, tr.Sync(context.Background(), batch))
}

// TestHTTPTransport_errors verifies status codes map to error codes.
func TestHTTPTransport_errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   apperrors.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, apperrors.ErrSyncAuthFailed},
		{"forbidden", http.StatusForbidden, apperrors.ErrSyncAuthFailed},
		{"server error", http.StatusInternalServerError, apperrors.ErrSyncFailed},
		{"accepted is not ok", http.StatusAccepted, apperrors.ErrSyncFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			tr := NewHTTPTransport(&HTTPConfig{Endpoint: srv.URL}, nil)
			err := tr.Sync(context.Background(), sampleBatch(t))
			require.Error(t, err)
			assert.Equal(t, tt.want, apperrors.CodeOf(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

// TestHTTPTransport_tokenFailure verifies no request is sent without a token.
func TestHTTPTransport_tokenFailure(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	tr := NewHTTPTransport(&HTTPConfig{Endpoint: srv.URL},
		func() (string, error) { return "", errors.New("not logged in") })
	err := tr.Sync(context.Background(), sampleBatch(t))
	assert.True(t, apperrors.Is(err, apperrors.ErrSyncAuthFailed))
	assert.False(t, called)
}

// TestHTTPTransport_unreachable verifies network errors are sync failures.
func TestHTTPTransport_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := NewHTTPTransport(&HTTPConfig{Endpoint: url, Timeout: time.Second}, nil)
	err := tr.Sync(context.Background(), sampleBatch(t))
	assert.True(t, apperrors.Is(err, apperrors.ErrSyncFailed))
}
