package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/inventra/internal/config"
	"github.com/kimhsiao/inventra/internal/store"
	"github.com/kimhsiao/inventra/internal/sync/queue"
)

// =====================================================
// Test Helpers
// =====================================================

// run executes the command tree with args and returns combined output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// setup writes a config with an instant simulated transport and seeds one
// pending save for "clients".
func setup(t *testing.T) (configPath string) {
	t.Helper()
	dir := t.TempDir()

	configPath = filepath.Join(dir, "inventra.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
data_dir: `+filepath.Join(dir, "data")+`
backend: sqlite
log_level: ERROR
sync:
  transport: simulated
  latency: 0s
`), 0o600))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	backend, err := store.OpenBackend(cfg)
	require.NoError(t, err)
	s := store.NewLocalStore(backend, cfg.Namespace)

	entry, err := queue.NewEntry(queue.KindSave, store.KeyClients, json.RawMessage(`[{"id":"1"}]`))
	require.NoError(t, err)
	require.NoError(t, queue.New(s, 0).Enqueue(entry))
	require.NoError(t, s.Set(store.KeyClients, json.RawMessage(`[{"id":"1"}]`)))
	require.NoError(t, s.Close())

	return configPath
}

// =====================================================
// Commands
// =====================================================

func TestCommands_offlineReplayFlow(t *testing.T) {
	cfgPath := setup(t)

	out, err := run(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "PENDING")
	assert.Contains(t, out, "never")

	out, err = run(t, "--config", cfgPath, "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "save")
	assert.Contains(t, out, store.KeyClients)

	out, err = run(t, "--config", cfgPath, "queue", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "--yes")

	out, err = run(t, "--config", cfgPath, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "replayed 1 change(s)")

	out, err = run(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "IN SYNC")
	assert.NotContains(t, out, "never")

	out, err = run(t, "--config", cfgPath, "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending changes.")

	out, err = run(t, "--config", cfgPath, "resources")
	require.NoError(t, err)
	for _, key := range []string{store.KeyClients, store.KeyDeviceID, store.KeyLastSync, store.KeyPendingSync} {
		assert.Contains(t, out, key)
	}
}

func TestCommands_queueClearWithConfirmation(t *testing.T) {
	cfgPath := setup(t)

	out, err := run(t, "--config", cfgPath, "queue", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "discarded 1 change(s)")

	out, err = run(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "IN SYNC")
}

func TestCommands_flagsOverrideConfig(t *testing.T) {
	cfgPath := setup(t)

	_, err := run(t, "--config", cfgPath, "--backend", "tape", "status")
	require.Error(t, err)

	// A fresh memory store has nothing queued.
	out, err := run(t, "--config", cfgPath, "--backend", "memory", "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending changes.")
}

func TestCommands_migrateStatusAndDown(t *testing.T) {
	cfgPath := setup(t)

	out, err := run(t, "--config", cfgPath, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "V1")
	assert.Contains(t, out, "local_store")

	out, err = run(t, "--config", cfgPath, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "--yes")

	out, err = run(t, "--config", cfgPath, "migrate", "down", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "rolled back V1")

	out, err = run(t, "--config", cfgPath, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No migrations applied.")

	// The next command re-applies the schema on an empty store.
	out, err = run(t, "--config", cfgPath, "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending changes.")

	_, err = run(t, "--config", cfgPath, "--backend", "bolt", "migrate", "status")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "inventra "+Version))
}
