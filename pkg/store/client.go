package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// busyTimeout is the minimum busy-wait the spec requires (≥ 5s) so
// concurrent processes block on lock contention instead of erroring.
const busyTimeout = 5 * time.Second

// staleLockAge is how old an init lock file must be before a competing
// process treats it as abandoned and removes it.
const staleLockAge = 30 * time.Second

// Store is the single embedded relational store shared by co-located
// processes in one workspace (spec §4.1). It never returns cursor handles
// across component boundaries — every exported method returns fully
// materialized Go values.
type Store struct {
	db            *sql.DB
	path          string
	log           *slog.Logger
	learningHooks []LearningChangeHook
}

// Open opens or creates a SQLite database at dbPath, enabling WAL mode and
// a busy timeout, then brings the schema up to date under a file-based init
// lock. If the existing file has an incompatible legacy schema, it is
// removed and recreated — ported from the teacher pack's Open/openDB retry
// shape, adapted to classify the error by substring because SQLite
// surfaces no typed "schema mismatch" error.
func Open(dbPath string) (*Store, error) {
	s, err := openDB(dbPath)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "no such column") ||
			strings.Contains(msg, "no such table") ||
			strings.Contains(msg, "SQL logic error") {
			if rmErr := os.Remove(dbPath); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("remove incompatible store file: %w", rmErr)
			}
			os.Remove(dbPath + "-wal")
			os.Remove(dbPath + "-shm")
			return openDB(dbPath)
		}
		return nil, err
	}
	return s, nil
}

func openDB(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	escaped := strings.ReplaceAll(dbPath, " ", "%20")
	connStr := fmt.Sprintf("file:%s?_time_format=sqlite&_pragma=busy_timeout(%d)",
		escaped, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// modernc.org/sqlite serializes writes per connection; a single
	// connection avoids SQLITE_BUSY races within this process while WAL +
	// busy_timeout handles cross-process contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db, path: dbPath, log: slog.With("component", "store", "path", dbPath)}

	if err := s.withInitLock(func() error {
		return s.migrate()
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema bring-up: %w", err)
	}

	return s, nil
}

// withInitLock guards schema creation/migration with a file-based lock so
// multiple co-located processes starting simultaneously do not race each
// other through CREATE TABLE / ALTER TABLE statements. A lock file older
// than staleLockAge is considered abandoned, per spec §4.1.
func (s *Store) withInitLock(fn func() error) error {
	lockPath := s.path + ".init.lock"
	deadline := time.Now().Add(busyTimeout * 6)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			defer os.Remove(lockPath)
			return fn()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create init lock: %w", err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil {
			if time.Since(info.ModTime()) > staleLockAge {
				s.log.Warn("removing stale init lock", "lock_path", lockPath, "age", time.Since(info.ModTime()))
				os.Remove(lockPath)
				continue
			}
		} else if os.IsNotExist(statErr) {
			continue
		}

		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for callers that need raw query
// access. The store's own FTS and retention queries use the handle directly.
func (s *Store) DB() *sql.DB {
	return s.db
}

// now returns a UTC timestamp with the monotonic reading stripped, matching
// the pack's convention for values stored in SQLite TEXT datetime columns.
func now() time.Time {
	return time.Now().UTC().Round(0)
}
