// Package store provides the durable key-value layer the rest of Inventra reads
// and writes through. A Backend moves raw bytes; LocalStore adds namespacing and
// JSON (de)serialization on top.
package store

import (
	"fmt"
	"path/filepath"

	"github.com/kimhsiao/inventra/internal/config"
	"github.com/kimhsiao/inventra/internal/db"
)

// Backend is a durable byte-oriented key-value substrate.
// Set must replace the previous value atomically; Remove must be idempotent.
type Backend interface {
	Get(key string) (value []byte, found bool, err error)
	Set(key string, value []byte) error
	Remove(key string) error
	// Keys returns every stored key starting with prefix, sorted.
	Keys(prefix string) ([]string, error)
	Close() error
}

// BoltFileName is the bbolt file created inside the data directory.
const BoltFileName = "inventra.bolt"

// OpenBackend builds the backend selected by cfg.
func OpenBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemoryBackend(), nil
	case config.BackendBolt:
		return NewBoltBackend(filepath.Join(cfg.DataDir, BoltFileName))
	case config.BackendSQLite, "":
		database, err := db.Open(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		if err := db.NewMigrator(database.DB).Up(); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("migrate local store: %w", err)
		}
		return NewSQLiteBackend(database), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
