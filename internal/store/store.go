// Package store persists replica state: the last-known snapshot and the
// offline queue log, each under a logical store name.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/existflow/irontrack/internal/apperr"
	"github.com/existflow/irontrack/internal/model"
)

// SnapshotName is the logical store name of the replica snapshot.
const SnapshotName = "snapshot"

// Store is the storage collaborator of the sync engine.
type Store interface {
	LoadAllData(ctx context.Context) (*model.Snapshot, error)
	SaveAllData(ctx context.Context, s *model.Snapshot) error
	LoadQueue(ctx context.Context, name string) ([]model.QueuedOperation, error)
	SaveQueue(ctx context.Context, name string, ops []model.QueuedOperation) error
	Close() error
}

// dialect holds the statements that differ between drivers.
type dialect struct {
	name   string
	get    string
	put    string
	schema []string
}

// DB is a Store backed by a single key/value table.
type DB struct {
	*sql.DB
	dialect dialect
}

// Open opens a Postgres store for postgres:// URLs and a SQLite store otherwise.
func Open(dsn string) (*DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(dsn)
	}
	return OpenSQLite(dsn)
}

func (db *DB) migrate() error {
	for i, m := range db.dialect.schema {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Dialect returns the driver name of the store.
func (db *DB) Dialect() string {
	return db.dialect.name
}

func (db *DB) get(ctx context.Context, name string) ([]byte, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, db.dialect.get, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return []byte(value), true, nil
}

func (db *DB) put(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperr.Wrap(apperr.CodeSerialization, "encode "+name, err)
	}
	if _, err := db.ExecContext(ctx, db.dialect.put, name, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// LoadAllData returns the stored snapshot, or a fresh one if none was saved.
func (db *DB) LoadAllData(ctx context.Context) (*model.Snapshot, error) {
	data, ok, err := db.get(ctx, SnapshotName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return model.NewSnapshot(), nil
	}
	var s model.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, apperr.Wrap(apperr.CodeSerialization, "decode snapshot", err)
	}
	return &s, nil
}

// SaveAllData replaces the stored snapshot.
func (db *DB) SaveAllData(ctx context.Context, s *model.Snapshot) error {
	return db.put(ctx, SnapshotName, s)
}

// LoadQueue returns the operations persisted for the named queue.
func (db *DB) LoadQueue(ctx context.Context, name string) ([]model.QueuedOperation, error) {
	data, ok, err := db.get(ctx, queueKey(name))
	if err != nil || !ok {
		return nil, err
	}
	var ops []model.QueuedOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, apperr.Wrap(apperr.CodeSerialization, "decode queue "+name, err)
	}
	return ops, nil
}

// SaveQueue replaces the operations persisted for the named queue.
func (db *DB) SaveQueue(ctx context.Context, name string, ops []model.QueuedOperation) error {
	if ops == nil {
		ops = []model.QueuedOperation{}
	}
	return db.put(ctx, queueKey(name), ops)
}

func queueKey(name string) string {
	return "queue:" + name
}
