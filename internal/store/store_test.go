package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/inventra/internal/config"
	"github.com/kimhsiao/inventra/internal/db"
	apperrors "github.com/kimhsiao/inventra/internal/errors"
)

// backends returns one fresh instance of every Backend implementation.
func backends(t *testing.T) map[string]Backend {
	t.Helper()

	database, err := db.OpenMemory()
	require.NoError(t, err)
	require.NoError(t, db.NewMigrator(database.DB).Up())

	bolt, err := NewBoltBackend(filepath.Join(t.TempDir(), BoltFileName))
	require.NoError(t, err)

	out := map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": NewSQLiteBackend(database),
		"bolt":   bolt,
	}
	t.Cleanup(func() {
		for _, b := range out {
			_ = b.Close()
		}
	})
	return out
}

func TestBackend_contract(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, found, err := b.Get("missing")
			require.NoError(t, err)
			require.False(t, found)

			require.NoError(t, b.Set("ns:a", []byte(`1`)))
			require.NoError(t, b.Set("ns:b", []byte(`2`)))
			require.NoError(t, b.Set("other:c", []byte(`3`)))
			require.NoError(t, b.Set("ns:a", []byte(`10`)))

			v, found, err := b.Get("ns:a")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, []byte(`10`), v)

			keys, err := b.Keys("ns:")
			require.NoError(t, err)
			require.Equal(t, []string{"ns:a", "ns:b"}, keys)

			require.NoError(t, b.Remove("ns:a"))
			require.NoError(t, b.Remove("ns:a"), "remove must be idempotent")
			_, found, err = b.Get("ns:a")
			require.NoError(t, err)
			require.False(t, found)
		})
	}
}

func TestMemoryBackend_copiesValues(t *testing.T) {
	b := NewMemoryBackend()
	in := []byte(`"abc"`)
	require.NoError(t, b.Set("k", in))
	in[1] = 'z'

	out, _, _ := b.Get("k")
	require.Equal(t, `"abc"`, string(out))
	out[1] = 'y'

	again, _, _ := b.Get("k")
	require.Equal(t, `"abc"`, string(again))
}

type record struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestLocalStore_roundTrip(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := NewLocalStore(b, "inventra")
			want := []record{{ID: 1, Name: "Acme"}, {ID: 2, Name: "Globex"}}

			require.NoError(t, s.Set(KeyClients, want))
			require.Equal(t, want, Get(s, KeyClients, []record{}))

			raw, found, err := s.Raw(KeyClients)
			require.NoError(t, err)
			require.True(t, found)
			require.JSONEq(t, `[{"id":1,"name":"Acme"},{"id":2,"name":"Globex"}]`, string(raw))
		})
	}
}

func TestLocalStore_missingKeyReturnsDefault(t *testing.T) {
	s := NewLocalStore(NewMemoryBackend(), "inventra")

	got := Get(s, KeyClients, []record{})
	require.NotNil(t, got)
	require.Empty(t, got)

	found, err := s.Load(KeyClients, &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestLocalStore_corruptValueFallsBack(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.Set("inventra:clients", []byte(`[{"id":`)))
	s := NewLocalStore(b, "inventra")

	def := []record{{ID: 99}}
	require.Equal(t, def, Get(s, KeyClients, def))

	var out []record
	found, err := s.Load(KeyClients, &out)
	require.True(t, found)
	require.True(t, apperrors.Is(err, apperrors.ErrDeserialization))

	_, _, err = s.Raw(KeyClients)
	require.True(t, apperrors.Is(err, apperrors.ErrDeserialization))
}

func TestLocalStore_namespacing(t *testing.T) {
	b := NewMemoryBackend()
	a := NewLocalStore(b, "tenant-a")
	c := NewLocalStore(b, "tenant-b")

	require.NoError(t, a.Set(KeyUser, map[string]string{"email": "a@example.com"}))
	require.NoError(t, c.Set(KeyUser, map[string]string{"email": "b@example.com"}))
	require.NoError(t, a.Set(KeySchedules, []int{}))

	require.Equal(t, "a@example.com", Get(a, KeyUser, map[string]string{})["email"])
	require.Equal(t, "b@example.com", Get(c, KeyUser, map[string]string{})["email"])

	keys, err := a.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{KeySchedules, KeyUser}, keys)
}

func TestLocalStore_removeIsIdempotent(t *testing.T) {
	s := NewLocalStore(NewMemoryBackend(), "")
	require.NoError(t, s.Remove(KeyLastSync))
	require.NoError(t, s.Set(KeyLastSync, "2024-01-01T00:00:00Z"))
	require.NoError(t, s.Remove(KeyLastSync))
	require.Equal(t, "", Get(s, KeyLastSync, ""))
}

type failingBackend struct{ *MemoryBackend }

func (failingBackend) Set(string, []byte) error { return errors.New("quota exceeded") }

func TestLocalStore_writeFailurePropagates(t *testing.T) {
	s := NewLocalStore(failingBackend{NewMemoryBackend()}, "inventra")

	err := s.Set(KeyClients, []record{{ID: 1}})
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.ErrStorageWrite))

	err = s.Set(KeyClients, func() {})
	require.True(t, apperrors.Is(err, apperrors.ErrInvalid))
}

func TestOpenBackend(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendBolt, config.BackendMemory} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Backend = backend
			cfg.DataDir = t.TempDir()

			b, err := OpenBackend(cfg)
			require.NoError(t, err)
			defer b.Close()

			require.NoError(t, b.Set("k", []byte(`true`)))
			_, found, err := b.Get("k")
			require.NoError(t, err)
			require.True(t, found)
		})
	}

	cfg := config.Default()
	cfg.Backend = "tape"
	_, err := OpenBackend(cfg)
	require.Error(t, err)
}
