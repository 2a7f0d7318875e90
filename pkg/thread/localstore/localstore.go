// Package localstore implements thread.Store as a file-backed local
// cache: one JSON file per thread under the user's XDG data directory,
// atomic rename-on-write, with a modernc.org/sqlite FTS5 index alongside
// for search. Grounded on pkg/audit's SQLiteSink for the
// pure-Go-driver, single-writer-connection idiom.
package localstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	_ "modernc.org/sqlite" // pure-Go sqlite driver, registered as "sqlite"

	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/thread"
)

// DefaultDataDirName is the Loom-specific subdirectory created under the
// resolved XDG data root.
const DefaultDataDirName = "loom"

// DataDir resolves the directory threads are stored under: $XDG_DATA_HOME
// /loom if set, else $HOME/.local/share/loom.
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, DefaultDataDirName), nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", DefaultDataDirName), nil
}

// Store is a file-backed thread.Store.
type Store struct {
	baseDir string
	db      *sql.DB
}

var _ thread.Store = (*Store)(nil)

// Open creates (if absent) baseDir/threads and baseDir/index.db, and
// returns a ready Store.
func Open(baseDir string) (*Store, error) {
	threadsDir := filepath.Join(baseDir, "threads")
	if err := os.MkdirAll(threadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create threads directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(baseDir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("open thread index db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate thread index schema: %w", err)
	}

	return &Store{baseDir: baseDir, db: db}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS summaries (
	id TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	workspace_root TEXT NOT NULL DEFAULT '',
	visibility INTEGER NOT NULL DEFAULT 0,
	initial_commit TEXT NOT NULL DEFAULT '',
	current_commit TEXT NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	last_activity_at TEXT NOT NULL,
	owner_user_id TEXT NOT NULL DEFAULT '',
	deleted INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_summaries_workspace ON summaries(workspace_root);
CREATE INDEX IF NOT EXISTS idx_summaries_owner ON summaries(owner_user_id);
CREATE INDEX IF NOT EXISTS idx_summaries_activity ON summaries(last_activity_at);

CREATE VIRTUAL TABLE IF NOT EXISTS threads_fts USING fts5(
	id UNINDEXED,
	title,
	content
);

CREATE TABLE IF NOT EXISTS commits (
	thread_id TEXT NOT NULL,
	sha TEXT NOT NULL,
	is_initial INTEGER NOT NULL DEFAULT 0,
	is_final INTEGER NOT NULL DEFAULT 0,
	is_dirty INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_commits_sha ON commits(sha);
CREATE INDEX IF NOT EXISTS idx_commits_thread ON commits(thread_id);
`

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) threadPath(id ids.ThreadID) string {
	return filepath.Join(s.baseDir, "threads", id.String()+".json")
}
