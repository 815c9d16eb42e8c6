// Package postgres provides a sync transport that applies batches to a
// PostgreSQL database.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/logging"
	"github.com/kimhsiao/inventra/internal/sync/queue"
)

// Transport applies replayed entries to remote_resources. Every entry ID is
// recorded in sync_log so a batch replayed after a partial failure is applied
// at most once per entry.
type Transport struct {
	pool     *pgxpool.Pool
	deviceID string
}

// New connects to dsn and verifies the connection.
func New(ctx context.Context, dsn, deviceID string) (*Transport, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSyncFailed, "connect to postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(apperrors.ErrSyncFailed, "ping postgres", err)
	}
	return NewWithPool(pool, deviceID), nil
}

// NewWithPool wraps an existing pool. The caller keeps ownership of the pool
// unless it calls Close.
func NewWithPool(pool *pgxpool.Pool, deviceID string) *Transport {
	return &Transport{pool: pool, deviceID: deviceID}
}

// Close releases the pool.
func (t *Transport) Close() {
	t.pool.Close()
}

// EnsureSchema creates the tables the transport writes to.
func (t *Transport) EnsureSchema(ctx context.Context) error {
	statements := []string{
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS sync_log (
			entry_id     TEXT        PRIMARY KEY,
			device_id    TEXT        NOT NULL,
			kind         TEXT        NOT NULL CHECK (kind IN ('save', 'delete')),
			resource_key TEXT        NOT NULL,
			enqueued_at  TIMESTAMPTZ NOT NULL,
			applied_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS remote_resources (
			resource_key TEXT        PRIMARY KEY,
			payload      JSONB,
			deleted      BOOLEAN     NOT NULL DEFAULT FALSE,
			updated_at   TIMESTAMPTZ NOT NULL
		)`,
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS sync_log_device_idx ON sync_log (device_id, enqueued_at)`,
	}

	return pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return apperrors.Wrap(apperrors.ErrSyncFailed, "create sync schema", err)
			}
		}
		return nil
	})
}

// Sync applies entries in order inside one transaction.
func (t *Transport) Sync(ctx context.Context, entries []queue.Entry) error {
	applied := 0
	err := pgx.BeginTxFunc(ctx, t.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}, func(tx pgx.Tx) error {
		for _, e := range entries {
			ok, err := t.apply(ctx, tx, e)
			if err != nil {
				return err
			}
			if ok {
				applied++
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return apperrors.Wrap(apperrors.ErrSyncFailed, "apply batch", err)
	}

	logging.Info("Applied batch to postgres", map[string]interface{}{
		"entries": len(entries),
		"applied": applied,
		"skipped": len(entries) - applied,
	})
	return nil
}

func (t *Transport) apply(ctx context.Context, tx pgx.Tx, e queue.Entry) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO sync_log (entry_id, device_id, kind, resource_key, enqueued_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entry_id) DO NOTHING`,
		e.ID, t.deviceID, string(e.Kind), e.ResourceKey, e.EnqueuedAt)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	var payload []byte
	deleted := e.Kind == queue.KindDelete
	if !deleted {
		payload = e.Payload
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO remote_resources (resource_key, payload, deleted, updated_at)
		VALUES ($1, $2::jsonb, $3, $4)
		ON CONFLICT (resource_key) DO UPDATE
		SET payload = EXCLUDED.payload,
		    deleted = EXCLUDED.deleted,
		    updated_at = EXCLUDED.updated_at
		WHERE remote_resources.updated_at <= EXCLUDED.updated_at`,
		e.ResourceKey, payload, deleted, e.EnqueuedAt)
	return err == nil, err
}

// Resource is the remote view of one resource key.
type Resource struct {
	Key       string
	Payload   json.RawMessage
	Deleted   bool
	UpdatedAt time.Time
}

// Get returns the remote state of key. found is false when nothing was ever
// replayed for it.
func (t *Transport) Get(ctx context.Context, key string) (res Resource, found bool, err error) {
	var payload []byte
	row := t.pool.QueryRow(ctx,
		`SELECT payload, deleted, updated_at FROM remote_resources WHERE resource_key = $1`, key)
	if err := row.Scan(&payload, &res.Deleted, &res.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resource{}, false, nil
		}
		return Resource{}, false, err
	}
	res.Key = key
	res.Payload = payload
	return res, true, nil
}
