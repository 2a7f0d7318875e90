package localstore

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/thread"
)

// Search implements thread.Store's routing: a SHA-like query is tried
// against the commit-prefix index first, falling back to FTS only if
// that returns nothing; any other query goes straight to FTS.
func (s *Store) Search(ctx context.Context, query, workspaceRoot string, limit, offset int) ([]thread.ThreadSearchHit, error) {
	return s.search(ctx, query, workspaceRoot, "", limit, offset)
}

// SearchForOwner implements thread.Store, scoping results to owner.
func (s *Store) SearchForOwner(ctx context.Context, owner ids.UserID, query string, limit, offset int) ([]thread.ThreadSearchHit, error) {
	return s.search(ctx, query, "", owner.String(), limit, offset)
}

func (s *Store) search(ctx context.Context, rawQuery, workspaceRoot, ownerUserID string, limit, offset int) ([]thread.ThreadSearchHit, error) {
	trimmed := strings.TrimSpace(rawQuery)
	if trimmed == "" {
		return nil, nil
	}

	if thread.IsSHALike(trimmed) {
		hits, err := s.searchCommitPrefix(ctx, trimmed, workspaceRoot, ownerUserID, limit, offset)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			return hits, nil
		}
	}

	return s.searchFTS(ctx, trimmed, workspaceRoot, ownerUserID, limit, offset)
}

func (s *Store) searchCommitPrefix(ctx context.Context, prefix, workspaceRoot, ownerUserID string, limit, offset int) ([]thread.ThreadSearchHit, error) {
	query := `
		SELECT DISTINCT sm.id, sm.version, sm.title, sm.workspace_root, sm.visibility,
			sm.initial_commit, sm.current_commit, sm.message_count, sm.created_at,
			sm.last_activity_at, sm.owner_user_id
		FROM commits c
		JOIN summaries sm ON sm.id = c.thread_id
		WHERE c.sha LIKE ? AND sm.deleted = 0
	`
	args := []any{prefix + "%"}
	if workspaceRoot != "" {
		query += ` AND sm.workspace_root = ?`
		args = append(args, workspaceRoot)
	}
	if ownerUserID != "" {
		query += ` AND sm.owner_user_id = ?`
		args = append(args, ownerUserID)
	}
	query += ` ORDER BY sm.last_activity_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, thread.Backend(err)
	}
	defer rows.Close()

	summaries, err := scanSummaries(rows)
	if err != nil {
		return nil, err
	}

	hits := make([]thread.ThreadSearchHit, len(summaries))
	for i, summary := range summaries {
		hits[i] = thread.ThreadSearchHit{Summary: summary, Score: 1.0}
	}
	return hits, nil
}

// searchFTS ranks hits by SQLite's bm25() (lower is more relevant) and
// squashes it into a (0,1] similarity score via a logistic curve, so
// FTS scores sit in the same "higher is better" space as the commit-prefix
// path's flat 1.0 without claiming any numeric equivalence between the two.
func (s *Store) searchFTS(ctx context.Context, rawQuery, workspaceRoot, ownerUserID string, limit, offset int) ([]thread.ThreadSearchHit, error) {
	matchExpr := thread.FTSQuery(rawQuery)

	query := `
		SELECT sm.id, sm.version, sm.title, sm.workspace_root, sm.visibility,
			sm.initial_commit, sm.current_commit, sm.message_count, sm.created_at,
			sm.last_activity_at, sm.owner_user_id, bm25(threads_fts) AS rank
		FROM threads_fts
		JOIN summaries sm ON sm.id = threads_fts.id
		WHERE threads_fts MATCH ? AND sm.deleted = 0
	`
	args := []any{matchExpr}
	if workspaceRoot != "" {
		query += ` AND sm.workspace_root = ?`
		args = append(args, workspaceRoot)
	}
	if ownerUserID != "" {
		query += ` AND sm.owner_user_id = ?`
		args = append(args, ownerUserID)
	}
	query += ` ORDER BY rank ASC, sm.last_activity_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, thread.Backend(err)
	}
	defer rows.Close()

	var hits []thread.ThreadSearchHit
	for rows.Next() {
		var (
			idStr, title, workspaceRootVal, initialCommit, currentCommit, owner string
			version                                                             int64
			visibility, messageCount                                           int
			createdAt, lastActivityAt                                          string
			rank                                                               float64
		)
		if err := rows.Scan(&idStr, &version, &title, &workspaceRootVal, &visibility, &initialCommit,
			&currentCommit, &messageCount, &createdAt, &lastActivityAt, &owner, &rank); err != nil {
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

		hits = append(hits, thread.ThreadSearchHit{
			Summary: thread.ThreadSummary{
				ID:             ids.ThreadID(idStr),
				Version:        version,
				Title:          title,
				WorkspaceRoot:  workspaceRootVal,
				Visibility:     thread.Visibility(visibility),
				InitialCommit:  initialCommit,
				CurrentCommit:  currentCommit,
				MessageCount:   messageCount,
				CreatedAt:      created,
				LastActivityAt: lastActivity,
				OwnerUserID:    ids.UserID(owner),
			},
			Score: 1 / (1 + math.Exp(rank)),
		})
	}
	return hits, rows.Err()
}

// ListForOwner implements thread.Store.
func (s *Store) ListForOwner(ctx context.Context, owner ids.UserID, limit, offset int) ([]thread.ThreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, title, workspace_root, visibility, initial_commit, current_commit,
			message_count, created_at, last_activity_at, owner_user_id
		FROM summaries WHERE owner_user_id = ? AND deleted = 0
		ORDER BY last_activity_at DESC LIMIT ? OFFSET ?
	`, owner.String(), limit, offset)
	if err != nil {
		return nil, thread.Backend(err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// CountForOwner implements thread.Store.
func (s *Store) CountForOwner(ctx context.Context, owner ids.UserID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM summaries WHERE owner_user_id = ? AND deleted = 0`, owner.String()).Scan(&count)
	if err != nil {
		return 0, thread.Backend(err)
	}
	return count, nil
}
