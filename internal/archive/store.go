// Package archive is the embedded sqlite database behind the background
// archiver: a jobs table driving the sync worker and a messages table
// holding everything pulled so far. The worker is the only writer; tools
// read concurrently.
package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the archive database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the archive database at path, enables WAL and
// applies schema migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}
	// modernc sqlite serializes on a single connection; more would only
	// contend on the file lock.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id           TEXT NOT NULL UNIQUE,
			peer_title           TEXT NOT NULL DEFAULT '',
			peer_type            TEXT NOT NULL DEFAULT '',
			status               TEXT NOT NULL DEFAULT 'pending',
			last_message_id      INTEGER NOT NULL DEFAULT 0,
			last_synced_at       INTEGER,
			created_at           INTEGER NOT NULL,
			updated_at           INTEGER NOT NULL,
			error                TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			channel_id TEXT NOT NULL,
			message_id INTEGER NOT NULL,
			date       INTEGER,
			from_id    TEXT,
			text       TEXT,
			raw_json   TEXT,
			created_at INTEGER NOT NULL,
			UNIQUE (channel_id, message_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, message_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	// Columns added after the first release; older databases gain them on
	// open.
	added := map[string]string{
		"oldest_message_id":    `ALTER TABLE jobs ADD COLUMN oldest_message_id INTEGER`,
		"target_message_count": `ALTER TABLE jobs ADD COLUMN target_message_count INTEGER NOT NULL DEFAULT 1000`,
		"message_count":        `ALTER TABLE jobs ADD COLUMN message_count INTEGER NOT NULL DEFAULT 0`,
	}
	for column, stmt := range added {
		has, err := s.hasJobsColumn(column)
		if err != nil {
			return err
		}
		if !has {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("adding jobs.%s: %w", column, err)
			}
		}
	}
	return nil
}

func (s *Store) hasJobsColumn(name string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('jobs') WHERE name = ?`, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("inspecting jobs schema: %w", err)
	}
	return count > 0, nil
}
