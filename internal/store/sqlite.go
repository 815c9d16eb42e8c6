package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/kimhsiao/inventra/internal/db"
)

// SQLiteBackend stores values in the local_store table created by the V1 migration.
type SQLiteBackend struct {
	db *db.DB
}

// NewSQLiteBackend wraps an opened and migrated database.
func NewSQLiteBackend(database *db.DB) *SQLiteBackend {
	return &SQLiteBackend{db: database}
}

func (s *SQLiteBackend) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM local_store WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set upserts in a single statement so readers never see a partial write.
func (s *SQLiteBackend) Set(key string, value []byte) error {
	_, err := s.db.Exec(`INSERT INTO local_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

func (s *SQLiteBackend) Remove(key string) error {
	_, err := s.db.Exec("DELETE FROM local_store WHERE key = ?", key)
	return err
}

func (s *SQLiteBackend) Keys(prefix string) ([]string, error) {
	// keys sort bytewise (BINARY collation), so a prefix is a contiguous range
	rows, err := s.db.Query("SELECT key FROM local_store WHERE key >= ? ORDER BY key", prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		if !strings.HasPrefix(k, prefix) {
			break
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
