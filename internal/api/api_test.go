package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/inventra/internal/auth"
	"github.com/kimhsiao/inventra/internal/connectivity"
	"github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/inventory"
	"github.com/kimhsiao/inventra/internal/models"
	"github.com/kimhsiao/inventra/internal/store"
	syncpkg "github.com/kimhsiao/inventra/internal/sync"
	"github.com/kimhsiao/inventra/internal/sync/queue"
)

// =====================================================
// Test Helpers
// =====================================================

type testEnv struct {
	server  *Server
	http    *httptest.Server
	monitor *connectivity.Monitor
	coord   *syncpkg.Coordinator
	// syncErr, when set, fails every pass.
	syncErr error
}

func newTestEnv(t *testing.T, online bool) *testEnv {
	t.Helper()

	env := &testEnv{}
	s := store.NewLocalStore(store.NewMemoryBackend(), "inventra")
	env.monitor = connectivity.NewMonitor(online)
	transport := syncpkg.TransportFunc(func(ctx context.Context, entries []queue.Entry) error {
		return env.syncErr
	})
	env.coord = syncpkg.NewCoordinator(env.monitor, s, queue.New(s, 0), transport, nil)

	session, err := auth.NewSession(s, auth.NewTokenIssuer("test-secret"), time.Hour)
	require.NoError(t, err)

	env.server = NewServer("127.0.0.1:0", Deps{
		Coordinator: env.coord,
		Repository:  inventory.NewRepository(env.coord),
		Session:     session,
	})
	env.http = httptest.NewServer(env.server.Handler())
	t.Cleanup(func() {
		env.http.Close()
		env.server.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.http.URL+path, reader)
	require.NoError(t, err)
	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// =====================================================
// System and sync endpoints
// =====================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t, true)
	resp := env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestStatus_neverSynced(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body StatusResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "idle", body.State)
	assert.False(t, body.Online)
	assert.Nil(t, body.LastSyncAt)
	assert.Equal(t, "never", body.LastSyncHuman)
}

func TestOfflineWriteThenSync(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.do(t, http.MethodPut, "/api/resources/clients", `[{"id":"1","name":"Acme"}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, "/api/resources/schedules", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/queue", nil)
	var queued struct {
		Entries []queue.Entry  `json:"entries"`
		Stats   map[string]int `json:"stats"`
	}
	decodeBody(t, resp, &queued)
	require.Len(t, queued.Entries, 2)
	assert.Equal(t, queue.KindSave, queued.Entries[0].Kind)
	assert.Equal(t, queue.KindDelete, queued.Entries[1].Kind)

	resp = env.do(t, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result syncpkg.Result
	decodeBody(t, resp, &result)
	assert.Equal(t, 2, result.Replayed)

	resp = env.do(t, http.MethodGet, "/api/status", nil)
	var status StatusResponse
	decodeBody(t, resp, &status)
	assert.Equal(t, 0, status.PendingCount)
	require.NotNil(t, status.LastSyncAt)
	assert.NotEqual(t, "never", status.LastSyncHuman)
	assert.Equal(t, int64(1), status.Metrics.Counters["sync.completed"])
	assert.Equal(t, int64(2), status.Metrics.Counters["sync.replayed"])
}

func TestSyncFailureIsBadGateway(t *testing.T) {
	env := newTestEnv(t, false)
	env.syncErr = errors.New(errors.ErrSyncFailed, "remote rejected batch")
	env.do(t, http.MethodPut, "/api/resources/clients", `[]`)

	resp := env.do(t, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, string(errors.ErrSyncFailed), body.Code)
	assert.Equal(t, 1, env.coord.PendingCount())
}

func TestResources(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, http.MethodGet, "/api/resources/clients", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/resources/clients", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/resources/clients", `[{"id":"1"}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, env.coord.PendingCount(), "online writes are not queued")

	resp = env.do(t, http.MethodGet, "/api/resources/clients", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got []map[string]string
	decodeBody(t, resp, &got)
	assert.Equal(t, []map[string]string{{"id": "1"}}, got)

	resp = env.do(t, http.MethodGet, "/api/resources", nil)
	var keys struct {
		Keys []string `json:"keys"`
	}
	decodeBody(t, resp, &keys)
	assert.Contains(t, keys.Keys, store.KeyClients)
}

func TestWriteResource_tooLarge(t *testing.T) {
	env := newTestEnv(t, true)

	big := `"` + strings.Repeat("x", maxResourceBytes) + `"`
	resp := env.do(t, http.MethodPut, "/api/resources/notes", big)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	var body ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, string(errors.ErrTooLarge), body.Code)
	assert.Contains(t, body.Error, "8.0 MiB")
	assert.Nil(t, env.coord.ReadResource("notes", nil))
}

func TestConnectivityReport(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, http.MethodPost, "/api/connectivity", map[string]bool{"online": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]bool
	decodeBody(t, resp, &body)
	assert.True(t, body["changed"])
	assert.False(t, env.monitor.IsOnline())

	resp = env.do(t, http.MethodPost, "/api/connectivity", map[string]bool{"online": false})
	decodeBody(t, resp, &body)
	assert.False(t, body["changed"])

	resp = env.do(t, http.MethodPost, "/api/connectivity", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClearQueue(t *testing.T) {
	env := newTestEnv(t, false)
	env.do(t, http.MethodPut, "/api/resources/a", `1`)
	require.Equal(t, 1, env.coord.PendingCount())

	resp := env.do(t, http.MethodDelete, "/api/queue", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, env.coord.PendingCount())
}

// =====================================================
// Domain endpoints
// =====================================================

func TestClientsEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, http.MethodPost, "/api/clients", models.Client{Name: "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/clients", models.Client{
		Name: "Maria", Company: "Acme", Email: "maria@acme.com", Phone: "123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Client
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)

	resp = env.do(t, http.MethodGet, "/api/clients?q=acme", nil)
	var list []models.Client
	decodeBody(t, resp, &list)
	assert.Len(t, list, 1)

	resp = env.do(t, http.MethodDelete, "/api/clients/"+string(created.ID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, "/api/clients/"+string(created.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestItemsEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, http.MethodPost, "/api/items", models.InventoryItem{
		Barcode: "7891", Description: "Cadeira", Quantity: 2, Multiplier: 3,
		Location: "Sala 1", Unit: "un", Manufacturer: "Flexform", PhysicalState: models.PhysicalStateNew,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.InventoryItem
	decodeBody(t, resp, &created)
	assert.Equal(t, 6, created.TotalQuantity)

	resp = env.do(t, http.MethodGet, "/api/items/stats", nil)
	var stats inventory.ItemStats
	decodeBody(t, resp, &stats)
	assert.Equal(t, inventory.ItemStats{TotalItems: 1, TotalQuantity: 6, Locations: 1, Manufacturers: 1}, stats)

	resp = env.do(t, http.MethodGet, "/api/items?state=usado", nil)
	var list []models.InventoryItem
	decodeBody(t, resp, &list)
	assert.Empty(t, list)
}

func TestSchedulesEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, http.MethodPost, "/api/schedules", models.ScheduleEntry{
		ClientID: models.NewUUID(), Title: "Contagem", Date: "2024-07-15", Time: "09:00",
		Location: "Depósito", EstimatedDuration: 3, Priority: models.PriorityHigh,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.ScheduleEntry
	decodeBody(t, resp, &created)
	assert.Equal(t, models.ScheduleStatusScheduled, created.Status)

	resp = env.do(t, http.MethodPut, "/api/schedules/"+string(created.ID)+"/status",
		map[string]string{"status": "em_andamento"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/schedules?upcoming=true", nil)
	var upcoming []models.ScheduleEntry
	decodeBody(t, resp, &upcoming)
	assert.Empty(t, upcoming)

	resp = env.do(t, http.MethodGet, "/api/schedules/counts", nil)
	var counts map[string]int
	decodeBody(t, resp, &counts)
	assert.Equal(t, 1, counts["em_andamento"])

	resp = env.do(t, http.MethodPut, "/api/schedules/"+string(created.ID)+"/status",
		map[string]string{"status": "pausado"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ana@acme.com", "password": "pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		User     models.User `json:"user"`
		DeviceID string      `json:"device_id"`
	}
	decodeBody(t, resp, &me)
	assert.Equal(t, "ana@acme.com", me.User.Email)
	assert.NotEmpty(t, me.DeviceID)

	resp = env.do(t, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email": "bia@acme.com", "name": "Bia", "company": "Acme", "password": "pw",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =====================================================
// Websocket
// =====================================================

func dial(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return env.server.Hub().ClientCount() == 1 },
		time.Second, 5*time.Millisecond)
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebsocket_connectivityAndSyncEvents(t *testing.T) {
	env := newTestEnv(t, true)
	conn := dial(t, env)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "connectivity", "online": false}))

	// The broadcast and the ack race; collect both.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		msg := readJSON(t, conn)
		if typ, ok := msg["type"].(string); ok {
			seen[typ] = true
		}
		if action, ok := msg["action"].(string); ok {
			seen[action] = true
		}
	}
	assert.True(t, seen[EventConnectivityChanged])
	assert.True(t, seen["connectivity_ack"])
	assert.False(t, env.monitor.IsOnline())

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action": "subscribe", "events": []string{"sync.completed"},
	}))
	ack := readJSON(t, conn)
	assert.Equal(t, "subscribe_ack", ack["action"])

	_, err := env.coord.TriggerSync(context.Background())
	require.NoError(t, err)

	msg := readJSON(t, conn)
	assert.Equal(t, "sync.completed", msg["type"])
}

func TestWebsocket_ping(t *testing.T) {
	env := newTestEnv(t, true)
	conn := dial(t, env)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	assert.Equal(t, "pong", readJSON(t, conn)["action"])
}

func TestWSHub_replyAfterClientDropped(t *testing.T) {
	hub := NewWSHub(nil)
	client := &WSClient{
		id:            "c1",
		send:          make(chan []byte, 1),
		hub:           hub,
		subscriptions: make(map[string]bool),
	}
	require.True(t, hub.add(client))

	client.reply(map[string]interface{}{"action": "pong"})
	require.Len(t, client.send, 1)
	<-client.send

	hub.Close()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-client.send:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.NotPanics(t, func() {
		client.reply(map[string]interface{}{"action": "pong"})
	})
	assert.False(t, hub.add(&WSClient{id: "c2", send: make(chan []byte, 1), hub: hub}))
	assert.Equal(t, 0, hub.ClientCount())
}

func TestLocalOrigin(t *testing.T) {
	cases := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "example.com", true},
		{"http://localhost:5173", "127.0.0.1:8090", true},
		{"http://127.0.0.1:3000", "127.0.0.1:8090", true},
		{"http://example.com", "example.com", true},
		{"http://evil.test", "127.0.0.1:8090", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Host = tc.host
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		assert.Equal(t, tc.want, localOrigin(r), "origin %q host %q", tc.origin, tc.host)
	}
}
