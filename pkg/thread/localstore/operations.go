package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/thread"
)

// Upsert implements thread.Store. It distinguishes insert vs update by
// whether a summaries row already exists for the thread's id, and honors
// expectedVersion as an optimistic-concurrency gate on update.
func (s *Store) Upsert(ctx context.Context, t thread.Thread, expectedVersion *int64) (thread.Thread, error) {
	var existingVersion int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM summaries WHERE id = ?`, t.ID.String()).Scan(&existingVersion)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// insert
	case err != nil:
		return thread.Thread{}, thread.Backend(err)
	default:
		if expectedVersion != nil && *expectedVersion != existingVersion {
			return thread.Thread{}, thread.Conflict(*expectedVersion, existingVersion)
		}
	}

	if err := s.writeFile(t); err != nil {
		return thread.Thread{}, thread.Serialization(err)
	}

	if err := s.upsertSummary(ctx, t); err != nil {
		return thread.Thread{}, thread.Backend(err)
	}

	if err := s.reindexFTS(ctx, t); err != nil {
		return thread.Thread{}, thread.Backend(err)
	}

	if t.Git.RemoteSlug != "" {
		if err := s.recordCommits(ctx, t); err != nil {
			return thread.Thread{}, thread.Backend(err)
		}
	}

	return t, nil
}

func (s *Store) writeFile(t thread.Thread) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal thread: %w", err)
	}

	path := s.threadPath(t.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp thread file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomic rename thread file: %w", err)
	}
	return nil
}

func (s *Store) upsertSummary(ctx context.Context, t thread.Thread) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (
			id, version, title, workspace_root, visibility, initial_commit,
			current_commit, message_count, created_at, last_activity_at,
			owner_user_id, deleted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			title = excluded.title,
			workspace_root = excluded.workspace_root,
			visibility = excluded.visibility,
			initial_commit = excluded.initial_commit,
			current_commit = excluded.current_commit,
			message_count = excluded.message_count,
			last_activity_at = excluded.last_activity_at,
			owner_user_id = excluded.owner_user_id,
			deleted = 0
	`,
		t.ID.String(), t.Version, t.Metadata.Title, t.WorkspaceRoot, int(t.Visibility),
		t.Git.InitialCommit, t.Git.CurrentCommit, len(t.Conversation),
		t.CreatedAt.UTC().Format(time.RFC3339Nano), t.LastActivityAt.UTC().Format(time.RFC3339Nano),
		t.OwnerUserID.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert summary row: %w", err)
	}
	return nil
}

func (s *Store) reindexFTS(ctx context.Context, t thread.Thread) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM threads_fts WHERE id = ?`, t.ID.String()); err != nil {
		return fmt.Errorf("clear fts row: %w", err)
	}

	var content string
	for _, m := range t.Conversation {
		content += m.Content + "\n"
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO threads_fts (id, title, content) VALUES (?, ?, ?)`,
		t.ID.String(), t.Metadata.Title, content)
	if err != nil {
		return fmt.Errorf("insert fts row: %w", err)
	}
	return nil
}

// recordCommits ensures the thread's commit history is reflected in the
// commits table for SHA-prefix search, replacing any prior rows for this
// thread.
func (s *Store) recordCommits(ctx context.Context, t thread.Thread) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commits tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM commits WHERE thread_id = ?`, t.ID.String()); err != nil {
		return fmt.Errorf("clear commit rows: %w", err)
	}

	for _, c := range t.Git.Commits {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO commits (thread_id, sha, is_initial, is_final, is_dirty)
			VALUES (?, ?, ?, ?, ?)
		`, t.ID.String(), c.SHA, boolToInt(c.IsInitial), boolToInt(c.IsFinal), boolToInt(c.IsDirty)); err != nil {
			return fmt.Errorf("insert commit row: %w", err)
		}
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Get implements thread.Store.
func (s *Store) Get(ctx context.Context, id ids.ThreadID) (thread.Thread, error) {
	data, err := os.ReadFile(s.threadPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return thread.Thread{}, thread.NotFound()
		}
		return thread.Thread{}, thread.Backend(err)
	}

	var t thread.Thread
	if err := json.Unmarshal(data, &t); err != nil {
		return thread.Thread{}, thread.Serialization(err)
	}
	return t, nil
}

// List implements thread.Store, reading from the summaries index only.
func (s *Store) List(ctx context.Context, workspaceRoot string, limit, offset int) ([]thread.ThreadSummary, error) {
	query := `SELECT id, version, title, workspace_root, visibility, initial_commit, current_commit, message_count, created_at, last_activity_at, owner_user_id FROM summaries WHERE deleted = 0`
	args := []any{}
	if workspaceRoot != "" {
		query += ` AND workspace_root = ?`
		args = append(args, workspaceRoot)
	}
	query += ` ORDER BY last_activity_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, thread.Backend(err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]thread.ThreadSummary, error) {
	var out []thread.ThreadSummary
	for rows.Next() {
		var (
			idStr, title, workspaceRoot, initialCommit, currentCommit, ownerUserID string
			version                                                                int64
			visibility, messageCount                                               int
			createdAt, lastActivityAt                                              string
		)
		if err := rows.Scan(&idStr, &version, &title, &workspaceRoot, &visibility, &initialCommit,
			&currentCommit, &messageCount, &createdAt, &lastActivityAt, &ownerUserID); err != nil {
			return nil, thread.Backend(err)
		}

		created, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, thread.Serialization(err)
		}
		lastActivity, err := time.Parse(time.RFC3339Nano, lastActivityAt)
		if err != nil {
			return nil, thread.Serialization(err)
		}

		out = append(out, thread.ThreadSummary{
			ID:             ids.ThreadID(idStr),
			Version:        version,
			Title:          title,
			WorkspaceRoot:  workspaceRoot,
			Visibility:     thread.Visibility(visibility),
			InitialCommit:  initialCommit,
			CurrentCommit:  currentCommit,
			MessageCount:   messageCount,
			CreatedAt:      created,
			LastActivityAt: lastActivity,
			OwnerUserID:    ids.UserID(ownerUserID),
		})
	}
	return out, rows.Err()
}

// Delete implements thread.Store as a soft-delete: the summaries row is
// flagged so it drops out of List/Search, but the underlying file and Get
// are untouched.
func (s *Store) Delete(ctx context.Context, id ids.ThreadID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE summaries SET deleted = 1 WHERE id = ?`, id.String())
	if err != nil {
		return thread.Backend(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return thread.Backend(err)
	}
	if n == 0 {
		return thread.NotFound()
	}
	return nil
}

// SetOwner implements thread.Store, updating both the persisted file and
// the summaries index.
func (s *Store) SetOwner(ctx context.Context, id ids.ThreadID, owner ids.UserID) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	t.OwnerUserID = owner
	_, err = s.Upsert(ctx, t, nil)
	return err
}

// SetSharedWithSupport implements thread.Store.
func (s *Store) SetSharedWithSupport(ctx context.Context, id ids.ThreadID, shared bool) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	t.IsSharedWithSupport = shared
	_, err = s.Upsert(ctx, t, nil)
	return err
}

// SetVisibility implements thread.Store.
func (s *Store) SetVisibility(ctx context.Context, id ids.ThreadID, visibility thread.Visibility) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	t.Visibility = visibility
	_, err = s.Upsert(ctx, t, nil)
	return err
}

// HealthCheck implements thread.Store.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return thread.Backend(err)
	}
	return nil
}
