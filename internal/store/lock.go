package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process owns the local data directory.
var ErrLocked = errors.New("local data is in use by another irontrack process")

// Local is a SQLite store owned exclusively by this process. The replica
// and the offline queue keep their state in memory, so two processes
// writing the same file would overwrite each other.
type Local struct {
	*DB
	lock *flock.Flock
}

// OpenLocal locks the directory of dbPath and opens the SQLite store.
func OpenLocal(dbPath string) (*Local, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	lock := flock.New(filepath.Join(filepath.Dir(dbPath), "irontrack.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring data lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	db, err := OpenSQLite(dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return &Local{DB: db, lock: lock}, nil
}

// Close closes the database and releases the lock.
func (l *Local) Close() error {
	err := l.DB.Close()
	if uerr := l.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}
