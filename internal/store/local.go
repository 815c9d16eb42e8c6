package store

import (
	"encoding/json"
	"strings"

	apperrors "github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/logging"
)

// Well-known keys.
const (
	KeyUser           = "user"
	KeyPendingSync    = "pendingSync"
	KeyLastSync       = "lastSync"
	KeyDeviceID       = "deviceId"
	KeyClients        = "clients"
	KeyInventoryItems = "inventoryItems"
	KeySchedules      = "schedules"
)

// LocalStore is a namespaced JSON key-value store over a Backend.
type LocalStore struct {
	backend   Backend
	namespace string
}

// NewLocalStore creates a LocalStore whose keys live under namespace.
// An empty namespace stores keys verbatim.
func NewLocalStore(backend Backend, namespace string) *LocalStore {
	return &LocalStore{backend: backend, namespace: namespace}
}

func (s *LocalStore) physical(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}

// Raw returns the stored JSON document for key without decoding it.
func (s *LocalStore) Raw(key string) (json.RawMessage, bool, error) {
	data, found, err := s.backend.Get(s.physical(key))
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrStorage, "read "+key, err)
	}
	if !found {
		return nil, false, nil
	}
	if !json.Valid(data) {
		return nil, true, apperrors.New(apperrors.ErrDeserialization, "stored value for "+key+" is not valid JSON")
	}
	return json.RawMessage(data), true, nil
}

// Load decodes the value stored under key into out. found is false when the key
// is absent. A corrupt value yields an ErrDeserialization error and leaves out
// in an unspecified state.
func (s *LocalStore) Load(key string, out interface{}) (found bool, err error) {
	data, found, err := s.backend.Get(s.physical(key))
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrStorage, "read "+key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, apperrors.Wrap(apperrors.ErrDeserialization, "decode "+key, err)
	}
	return true, nil
}

// Get returns the value stored under key, or def when the key is absent,
// unreadable or corrupt. Failures are logged and never returned.
func Get[T any](s *LocalStore, key string, def T) T {
	var v T
	found, err := s.Load(key, &v)
	if err != nil {
		logging.Warn("Falling back to default for stored value", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return def
	}
	if !found {
		return def
	}
	return v
}

// Set serializes value and stores it under key, replacing any previous value.
func (s *LocalStore) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "encode "+key, err)
	}
	if err := s.backend.Set(s.physical(key), data); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageWrite, "write "+key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *LocalStore) Remove(key string) error {
	if err := s.backend.Remove(s.physical(key)); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageWrite, "remove "+key, err)
	}
	return nil
}

// Keys lists the logical keys stored in this namespace.
func (s *LocalStore) Keys() ([]string, error) {
	prefix := ""
	if s.namespace != "" {
		prefix = s.namespace + ":"
	}
	physical, err := s.backend.Keys(prefix)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "list keys", err)
	}
	keys := make([]string, 0, len(physical))
	for _, k := range physical {
		keys = append(keys, strings.TrimPrefix(k, prefix))
	}
	return keys, nil
}

// Close closes the underlying backend.
func (s *LocalStore) Close() error {
	return s.backend.Close()
}
