// Package syncstore implements thread.Store against the server-side
// Postgres tables: a repository-over-ent shape with a constructor taking
// *ent.Client, typed errors, invariants enforced inside a single
// transaction.
package syncstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/thread"
	entcommit "github.com/codeready-toolchain/loom/ent/threadcommit"
	entrepo "github.com/codeready-toolchain/loom/ent/threadrepo"
	"github.com/codeready-toolchain/loom/internal/ids"
	threadpkg "github.com/codeready-toolchain/loom/pkg/thread"
)

// Store is a Postgres-backed thread.Store. It only ever holds threads
// that are not is_private - the sync boundary that keeps private
// threads off this store lives in pkg/thread/syncingstore, one layer
// up, not here.
type Store struct {
	client *ent.Client
}

var _ threadpkg.Store = (*Store)(nil)

// New constructs a Store.
func New(client *ent.Client) *Store {
	return &Store{client: client}
}

// Upsert implements thread.Store.
func (s *Store) Upsert(ctx context.Context, t threadpkg.Thread, expectedVersion *int64) (threadpkg.Thread, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return threadpkg.Thread{}, threadpkg.Backend(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	existing, err := tx.Thread.Query().Where(thread.ID(t.ID.String())).Only(ctx)
	switch {
	case ent.IsNotFound(err):
		if err := s.insert(ctx, tx, t); err != nil {
			return threadpkg.Thread{}, threadpkg.Backend(err)
		}
	case err != nil:
		return threadpkg.Thread{}, threadpkg.Backend(err)
	default:
		if expectedVersion != nil && *expectedVersion != existing.Version {
			return threadpkg.Thread{}, threadpkg.Conflict(*expectedVersion, existing.Version)
		}
		if err := s.update(ctx, tx, t); err != nil {
			return threadpkg.Thread{}, threadpkg.Backend(err)
		}
	}

	if t.Git.RemoteSlug != "" {
		if err := s.recordRepoAndCommits(ctx, tx, t); err != nil {
			return threadpkg.Thread{}, threadpkg.Backend(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return threadpkg.Thread{}, threadpkg.Backend(fmt.Errorf("commit: %w", err))
	}
	return t, nil
}

func (s *Store) insert(ctx context.Context, tx *ent.Tx, t threadpkg.Thread) error {
	_, err := tx.Thread.Create().
		SetID(t.ID.String()).
		SetVersion(t.Version).
		SetOwnerUserID(t.OwnerUserID.String()).
		SetNillableOrgID(orgIDOrNil(t.OrgID)).
		SetWorkspaceRoot(t.WorkspaceRoot).
		SetCwd(t.Cwd).
		SetLoomVersion(t.LoomVersion).
		SetProvider(t.Provider).
		SetModel(t.Model).
		SetTitle(t.Metadata.Title).
		SetVisibility(thread.Visibility(t.Visibility.String())).
		SetIsSharedWithSupport(t.IsSharedWithSupport).
		SetGit(gitSnapshotJSON(t.Git)).
		SetConversation(conversationJSON(t.Conversation)).
		SetAgentState(agentStateJSON(t.AgentState)).
		SetMetadata(metadataJSON(t.Metadata)).
		SetLastActivityAt(t.LastActivityAt).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, tx *ent.Tx, t threadpkg.Thread) error {
	_, err := tx.Thread.UpdateOneID(t.ID.String()).
		SetVersion(t.Version).
		SetWorkspaceRoot(t.WorkspaceRoot).
		SetCwd(t.Cwd).
		SetLoomVersion(t.LoomVersion).
		SetProvider(t.Provider).
		SetModel(t.Model).
		SetTitle(t.Metadata.Title).
		SetVisibility(thread.Visibility(t.Visibility.String())).
		SetIsSharedWithSupport(t.IsSharedWithSupport).
		SetGit(gitSnapshotJSON(t.Git)).
		SetConversation(conversationJSON(t.Conversation)).
		SetAgentState(agentStateJSON(t.AgentState)).
		SetMetadata(metadataJSON(t.Metadata)).
		SetLastActivityAt(t.LastActivityAt).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("update thread: %w", err)
	}
	return nil
}

func (s *Store) recordRepoAndCommits(ctx context.Context, tx *ent.Tx, t threadpkg.Thread) error {
	existingRepo, err := tx.ThreadRepo.Query().Where(entrepo.ThreadID(t.ID.String())).Only(ctx)
	switch {
	case ent.IsNotFound(err):
		if _, err := tx.ThreadRepo.Create().
			SetID(uuid.NewString()).
			SetThreadID(t.ID.String()).
			SetRemoteSlug(t.Git.RemoteSlug).
			Save(ctx); err != nil {
			return fmt.Errorf("create thread repo row: %w", err)
		}
	case err != nil:
		return fmt.Errorf("query thread repo row: %w", err)
	default:
		if existingRepo.RemoteSlug != t.Git.RemoteSlug {
			if _, err := tx.ThreadRepo.UpdateOneID(existingRepo.ID).SetRemoteSlug(t.Git.RemoteSlug).Save(ctx); err != nil {
				return fmt.Errorf("update thread repo row: %w", err)
			}
		}
	}

	if _, err := tx.ThreadCommit.Delete().Where(entcommit.ThreadID(t.ID.String())).Exec(ctx); err != nil {
		return fmt.Errorf("clear thread commits: %w", err)
	}
	for _, c := range t.Git.Commits {
		if _, err := tx.ThreadCommit.Create().
			SetID(uuid.NewString()).
			SetThreadID(t.ID.String()).
			SetSha(c.SHA).
			SetIsInitial(c.IsInitial).
			SetIsFinal(c.IsFinal).
			SetIsDirty(c.IsDirty).
			Save(ctx); err != nil {
			return fmt.Errorf("insert thread commit: %w", err)
		}
	}
	return nil
}

func orgIDOrNil(org ids.OrgID) *string {
	if org == "" {
		return nil
	}
	s := org.String()
	return &s
}

// Get implements thread.Store.
func (s *Store) Get(ctx context.Context, id ids.ThreadID) (threadpkg.Thread, error) {
	e, err := s.client.Thread.Query().Where(thread.ID(id.String())).Only(ctx)
	if ent.IsNotFound(err) {
		return threadpkg.Thread{}, threadpkg.NotFound()
	}
	if err != nil {
		return threadpkg.Thread{}, threadpkg.Backend(err)
	}

	commits, err := s.client.ThreadCommit.Query().Where(entcommit.ThreadID(id.String())).All(ctx)
	if err != nil {
		return threadpkg.Thread{}, threadpkg.Backend(err)
	}

	t, err := fromEnt(e, commits)
	if err != nil {
		return threadpkg.Thread{}, threadpkg.Serialization(err)
	}
	return t, nil
}

// HealthCheck implements thread.Store.
func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.client.Thread.Query().Limit(1).Count(ctx); err != nil {
		return threadpkg.Backend(err)
	}
	return nil
}
