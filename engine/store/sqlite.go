package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/openweavr/openweavr/engine/core"
	"github.com/openweavr/openweavr/pkg/logger"
	_ "modernc.org/sqlite"
)

// Store wraps a single-file embedded sqlite database. A gofrs/flock
// advisory lock on a sibling ".lock" file guards against two daemon
// processes opening the same db file concurrently; connection-level
// mutation is otherwise serialized by sqlite itself (WAL + single
// connection).
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	log  logger.Logger
}

// Config configures Open.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Open creates the database file's parent directory if needed, acquires an
// advisory lock, opens the sqlite connection with WAL journaling and the
// given busy timeout, and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, core.NewError(fmt.Errorf("store path is required"), core.CodeTransient, nil)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	lock := flock.New(cfg.Path + ".lock")
	locked, err := lock.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !locked {
		return nil, core.NewError(
			fmt.Errorf("store at %s is already in use by another process", cfg.Path),
			core.CodeTransient,
			map[string]any{"path": cfg.Path},
		)
	}

	busyMS := int(cfg.BusyTimeout / time.Millisecond)
	if busyMS <= 0 {
		busyMS = 5000
	}
	connStr := fmt.Sprintf(
		"%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)",
		cfg.Path, busyMS,
	)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY under WAL for the
	// write-heavy claim/complete paths; reads share the same connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, lock: lock, log: logger.FromContext(ctx)}, nil
}

// Close releases the database handle and the advisory lock.
func (s *Store) Close() error {
	dbErr := s.db.Close()
	lockErr := s.lock.Unlock()
	if dbErr != nil {
		return dbErr
	}
	return lockErr
}
