// Package syncingstore composes a local thread.Store with a sync client,
// writing every mutation locally first and additionally pushing to the
// sync tier only when the thread is not private. This is the one place
// the is_private ⇒ never-synced invariant is enforced in code; every
// other store implementation only ever sees the side it's responsible
// for (localstore never talks to the network, syncstore never sees a
// private thread at all).
package syncingstore

import (
	"context"

	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/thread"
)

// Syncer is the subset of syncclient.Client's surface this package
// needs, kept as an interface so tests can substitute a recorder
// without making HTTP calls.
type Syncer interface {
	Upsert(ctx context.Context, t thread.Thread, expectedVersion *int64) (thread.Thread, error)
	Delete(ctx context.Context, id string) error
}

// Store wraps a local thread.Store, syncing non-private writes through
// sync to a remote tier.
type Store struct {
	local thread.Store
	sync  Syncer
}

var _ thread.Store = (*Store)(nil)

// New constructs a Store. sync may be nil, in which case Upsert behaves
// exactly like the local store's Upsert (useful for CLI invocations with
// no configured remote).
func New(local thread.Store, sync Syncer) *Store {
	return &Store{local: local, sync: sync}
}

// Upsert implements thread.Store: it always writes locally first, then
// additionally syncs when the thread is not private and a Syncer is
// configured. A sync failure does not roll back the local write - the
// thread is still durable locally and will sync on a later save.
func (s *Store) Upsert(ctx context.Context, t thread.Thread, expectedVersion *int64) (thread.Thread, error) {
	saved, err := s.local.Upsert(ctx, t, expectedVersion)
	if err != nil {
		return thread.Thread{}, err
	}

	if s.sync == nil || saved.IsPrivate {
		return saved, nil
	}

	remoteVersion := saved.Version
	if _, err := s.sync.Upsert(ctx, saved, &remoteVersion); err != nil {
		return saved, nil
	}
	return saved, nil
}

// Get implements thread.Store, always reading from the local copy.
func (s *Store) Get(ctx context.Context, id ids.ThreadID) (thread.Thread, error) {
	return s.local.Get(ctx, id)
}

// List implements thread.Store, always reading from the local copy.
func (s *Store) List(ctx context.Context, workspaceRoot string, limit, offset int) ([]thread.ThreadSummary, error) {
	return s.local.List(ctx, workspaceRoot, limit, offset)
}

// Delete implements thread.Store: deletes locally, and remotely too
// when a Syncer is configured (a private thread was never synced, so
// the remote delete is skipped for it - not an error, just a no-op
// the remote side was never going to have a row for).
func (s *Store) Delete(ctx context.Context, id ids.ThreadID) error {
	t, err := s.local.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.local.Delete(ctx, id); err != nil {
		return err
	}

	if s.sync != nil && !t.IsPrivate {
		_ = s.sync.Delete(ctx, id.String())
	}
	return nil
}

// Search implements thread.Store, always reading from the local copy -
// the local store is the client's authoritative view, synced or not.
func (s *Store) Search(ctx context.Context, query, workspaceRoot string, limit, offset int) ([]thread.ThreadSearchHit, error) {
	return s.local.Search(ctx, query, workspaceRoot, limit, offset)
}

func (s *Store) ListForOwner(ctx context.Context, owner ids.UserID, limit, offset int) ([]thread.ThreadSummary, error) {
	return s.local.ListForOwner(ctx, owner, limit, offset)
}

func (s *Store) CountForOwner(ctx context.Context, owner ids.UserID) (int, error) {
	return s.local.CountForOwner(ctx, owner)
}

func (s *Store) SearchForOwner(ctx context.Context, owner ids.UserID, query string, limit, offset int) ([]thread.ThreadSearchHit, error) {
	return s.local.SearchForOwner(ctx, owner, query, limit, offset)
}

// SetOwner implements thread.Store, updating the local copy only - this
// is the per-client view, not something worth a dedicated sync trip.
func (s *Store) SetOwner(ctx context.Context, id ids.ThreadID, owner ids.UserID) error {
	return s.local.SetOwner(ctx, id, owner)
}

// SetSharedWithSupport implements thread.Store. Flipping this to true
// on a private thread does not sync it - the flag describes support
// access to the local copy, not a change of visibility, and is_private
// threads never leave the machine regardless of this flag.
func (s *Store) SetSharedWithSupport(ctx context.Context, id ids.ThreadID, shared bool) error {
	return s.local.SetSharedWithSupport(ctx, id, shared)
}

// SetVisibility implements thread.Store, updating the local copy and,
// for a non-private thread with a Syncer configured, re-pushing it
// through Syncer.Upsert with its current version as the expected
// version, the same optimistic-concurrency gate Upsert uses. As in
// Upsert, a sync failure is ignored.
func (s *Store) SetVisibility(ctx context.Context, id ids.ThreadID, visibility thread.Visibility) error {
	if err := s.local.SetVisibility(ctx, id, visibility); err != nil {
		return err
	}
	if s.sync == nil {
		return nil
	}
	t, err := s.local.Get(ctx, id)
	if err != nil || t.IsPrivate {
		return nil
	}
	_, _ = s.sync.Upsert(ctx, t, &t.Version)
	return nil
}

// HealthCheck implements thread.Store, checking the local store only;
// remote reachability is not this store's concern to report since a
// missing sync tier degrades to local-only operation, not failure.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.local.HealthCheck(ctx)
}
