package syncstore

import (
	"context"
	"strings"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/thread"
	entcommit "github.com/codeready-toolchain/loom/ent/threadcommit"
	"github.com/codeready-toolchain/loom/internal/ids"
	threadpkg "github.com/codeready-toolchain/loom/pkg/thread"
)

// List implements thread.Store.
func (s *Store) List(ctx context.Context, workspaceRoot string, limit, offset int) ([]threadpkg.ThreadSummary, error) {
	q := s.client.Thread.Query()
	if workspaceRoot != "" {
		q = q.Where(thread.WorkspaceRoot(workspaceRoot))
	}
	rows, err := q.Order(ent.Desc(thread.FieldLastActivityAt)).Limit(limit).Offset(offset).All(ctx)
	if err != nil {
		return nil, threadpkg.Backend(err)
	}
	return summaries(rows), nil
}

// ListForOwner implements thread.Store.
func (s *Store) ListForOwner(ctx context.Context, owner ids.UserID, limit, offset int) ([]threadpkg.ThreadSummary, error) {
	rows, err := s.client.Thread.Query().
		Where(thread.OwnerUserID(owner.String())).
		Order(ent.Desc(thread.FieldLastActivityAt)).
		Limit(limit).Offset(offset).
		All(ctx)
	if err != nil {
		return nil, threadpkg.Backend(err)
	}
	return summaries(rows), nil
}

// CountForOwner implements thread.Store.
func (s *Store) CountForOwner(ctx context.Context, owner ids.UserID) (int, error) {
	count, err := s.client.Thread.Query().Where(thread.OwnerUserID(owner.String())).Count(ctx)
	if err != nil {
		return 0, threadpkg.Backend(err)
	}
	return count, nil
}

func summaries(rows []*ent.Thread) []threadpkg.ThreadSummary {
	out := make([]threadpkg.ThreadSummary, len(rows))
	for i, r := range rows {
		out[i] = summaryFromEnt(r)
	}
	return out
}

// Delete implements thread.Store by removing the synced copy outright;
// unlike the local store there is no soft-delete tombstone here, since a
// re-sync from the client's local copy is always possible.
func (s *Store) Delete(ctx context.Context, id ids.ThreadID) error {
	n, err := s.client.Thread.Delete().Where(thread.ID(id.String())).Exec(ctx)
	if err != nil {
		return threadpkg.Backend(err)
	}
	if n == 0 {
		return threadpkg.NotFound()
	}
	return nil
}

// Search implements thread.Store's routing: a SHA-like query is
// tried against thread_commits first (score 1.0), falling back to a
// case-insensitive substring match on the title (score 0.5) only when that returns
// nothing. Postgres full-text search (to_tsvector/plainto_tsquery) is
// deliberately not used here: a synced thread's conversation JSON blob
// isn't a static column the GIN index machinery can attach to without a
// generated tsvector column this schema doesn't carry, so the fallback
// degrades to ILIKE on title, matching SQLite FTS's ranking contract in
// spirit (SHA hits always outrank it) rather than its exact scoring.
func (s *Store) Search(ctx context.Context, query, workspaceRoot string, limit, offset int) ([]threadpkg.ThreadSearchHit, error) {
	return s.search(ctx, query, workspaceRoot, "", limit, offset)
}

// SearchForOwner implements thread.Store.
func (s *Store) SearchForOwner(ctx context.Context, owner ids.UserID, query string, limit, offset int) ([]threadpkg.ThreadSearchHit, error) {
	return s.search(ctx, query, "", owner.String(), limit, offset)
}

func (s *Store) search(ctx context.Context, rawQuery, workspaceRoot, ownerUserID string, limit, offset int) ([]threadpkg.ThreadSearchHit, error) {
	trimmed := strings.TrimSpace(rawQuery)
	if trimmed == "" {
		return nil, nil
	}

	if threadpkg.IsSHALike(trimmed) {
		hits, err := s.searchCommitPrefix(ctx, trimmed, workspaceRoot, ownerUserID, limit, offset)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			return hits, nil
		}
	}

	return s.searchTitle(ctx, trimmed, workspaceRoot, ownerUserID, limit, offset)
}

func (s *Store) searchCommitPrefix(ctx context.Context, prefix, workspaceRoot, ownerUserID string, limit, offset int) ([]threadpkg.ThreadSearchHit, error) {
	commitRows, err := s.client.ThreadCommit.Query().Where(entcommit.ShaHasPrefix(prefix)).All(ctx)
	if err != nil {
		return nil, threadpkg.Backend(err)
	}
	if len(commitRows) == 0 {
		return nil, nil
	}

	threadIDs := make([]string, 0, len(commitRows))
	seen := make(map[string]bool, len(commitRows))
	for _, c := range commitRows {
		if !seen[c.ThreadID] {
			seen[c.ThreadID] = true
			threadIDs = append(threadIDs, c.ThreadID)
		}
	}

	q := s.client.Thread.Query().Where(thread.IDIn(threadIDs...))
	if workspaceRoot != "" {
		q = q.Where(thread.WorkspaceRoot(workspaceRoot))
	}
	if ownerUserID != "" {
		q = q.Where(thread.OwnerUserID(ownerUserID))
	}
	rows, err := q.Order(ent.Desc(thread.FieldLastActivityAt)).Limit(limit).Offset(offset).All(ctx)
	if err != nil {
		return nil, threadpkg.Backend(err)
	}

	hits := make([]threadpkg.ThreadSearchHit, len(rows))
	for i, r := range rows {
		hits[i] = threadpkg.ThreadSearchHit{Summary: summaryFromEnt(r), Score: 1.0}
	}
	return hits, nil
}

func (s *Store) searchTitle(ctx context.Context, query, workspaceRoot, ownerUserID string, limit, offset int) ([]threadpkg.ThreadSearchHit, error) {
	q := s.client.Thread.Query().Where(thread.TitleContainsFold(query))
	if workspaceRoot != "" {
		q = q.Where(thread.WorkspaceRoot(workspaceRoot))
	}
	if ownerUserID != "" {
		q = q.Where(thread.OwnerUserID(ownerUserID))
	}
	rows, err := q.Order(ent.Desc(thread.FieldLastActivityAt)).Limit(limit).Offset(offset).All(ctx)
	if err != nil {
		return nil, threadpkg.Backend(err)
	}

	hits := make([]threadpkg.ThreadSearchHit, len(rows))
	for i, r := range rows {
		hits[i] = threadpkg.ThreadSearchHit{Summary: summaryFromEnt(r), Score: 0.5}
	}
	return hits, nil
}

// SetOwner implements thread.Store.
func (s *Store) SetOwner(ctx context.Context, id ids.ThreadID, owner ids.UserID) error {
	n, err := s.client.Thread.Update().Where(thread.ID(id.String())).SetOwnerUserID(owner.String()).Save(ctx)
	if err != nil {
		return threadpkg.Backend(err)
	}
	if n == 0 {
		return threadpkg.NotFound()
	}
	return nil
}

// SetSharedWithSupport implements thread.Store.
func (s *Store) SetSharedWithSupport(ctx context.Context, id ids.ThreadID, shared bool) error {
	n, err := s.client.Thread.Update().Where(thread.ID(id.String())).SetIsSharedWithSupport(shared).Save(ctx)
	if err != nil {
		return threadpkg.Backend(err)
	}
	if n == 0 {
		return threadpkg.NotFound()
	}
	return nil
}

// SetVisibility implements thread.Store.
func (s *Store) SetVisibility(ctx context.Context, id ids.ThreadID, visibility threadpkg.Visibility) error {
	n, err := s.client.Thread.Update().
		Where(thread.ID(id.String())).
		SetVisibility(thread.Visibility(visibility.String())).
		Save(ctx)
	if err != nil {
		return threadpkg.Backend(err)
	}
	if n == 0 {
		return threadpkg.NotFound()
	}
	return nil
}
