package store

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed migrations/0001_init.sql
var initSchemaSQL string

//go:embed migrations
var migrationsFS embed.FS

// addedColumn describes one idempotent ALTER TABLE ADD COLUMN migration,
// run after the base schema so a column introduced later never requires a
// destructive rewrite of 0001_init.sql.
type addedColumn struct {
	table      string
	definition string
}

// postInitColumns are applied in order after the base schema exists. This
// is the idiom spec §4.1 calls for: "ALTER … ADD COLUMN wrapped in
// try/swallow-already-exists".
var postInitColumns = []addedColumn{
	{table: "sessions", definition: "previous_session_id TEXT REFERENCES sessions(id)"},
}

// migrate brings the schema up to the current version inside the caller's
// init lock. It must only be invoked while holding that lock.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(initSchemaSQL); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}

	for _, col := range postInitColumns {
		if err := s.addColumnIfMissing(col.table, col.definition); err != nil {
			return err
		}
	}
	return nil
}

// addColumnIfMissing runs ALTER TABLE ... ADD COLUMN and swallows the
// "duplicate column name" failure SQLite reports when the column already
// exists, making the migration safe to re-run on every process start.
func (s *Store) addColumnIfMissing(table, columnDefinition string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnDefinition)
	_, err := s.db.Exec(stmt)
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "duplicate column name") {
		return nil
	}
	return fmt.Errorf("add column %s.%s: %w", table, columnDefinition, err)
}
