package store

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const boltBucketLocalStore = "local_store" // key: namespaced key -> JSON value

// BoltBackend stores values in a single bbolt bucket.
type BoltBackend struct {
	storage *bbolt.DB
}

// NewBoltBackend opens (or creates) the bbolt file at path.
func NewBoltBackend(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	instance, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	if err := instance.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucketLocalStore))
		return err
	}); err != nil {
		_ = instance.Close()

		return nil, err
	}

	return &BoltBackend{storage: instance}, nil
}

func (b *BoltBackend) Get(key string) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)

	err := b.storage.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(boltBucketLocalStore)).Get([]byte(key))
		if v == nil {
			return nil
		}
		// bbolt values are only valid inside the transaction
		out = append([]byte(nil), v...)
		found = true

		return nil
	})

	return out, found, err
}

func (b *BoltBackend) Set(key string, value []byte) error {
	return b.storage.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucketLocalStore)).Put([]byte(key), value)
	})
}

func (b *BoltBackend) Remove(key string) error {
	return b.storage.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucketLocalStore)).Delete([]byte(key))
	})
}

func (b *BoltBackend) Keys(prefix string) ([]string, error) {
	var keys []string

	err := b.storage.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(boltBucketLocalStore)).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}

		return nil
	})

	return keys, err
}

func (b *BoltBackend) Close() error {
	return b.storage.Close()
}
