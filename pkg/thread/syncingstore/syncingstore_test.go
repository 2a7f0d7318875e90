package syncingstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/thread"
	"github.com/codeready-toolchain/loom/pkg/thread/localstore"
	"github.com/codeready-toolchain/loom/pkg/thread/syncingstore"
)

type recordingSyncer struct {
	upserted []thread.Thread
	deleted  []string
}

func (r *recordingSyncer) Upsert(ctx context.Context, t thread.Thread, expectedVersion *int64) (thread.Thread, error) {
	r.upserted = append(r.upserted, t)
	return t, nil
}

func (r *recordingSyncer) Delete(ctx context.Context, id string) error {
	r.deleted = append(r.deleted, id)
	return nil
}

func newStore(t *testing.T, sync syncingstore.Syncer) (*syncingstore.Store, *localstore.Store) {
	t.Helper()
	local, err := localstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })
	return syncingstore.New(local, sync), local
}

func sampleThread(id, owner string, private bool) thread.Thread {
	now := time.Now().UTC()
	visibility := thread.VisibilityOrganization
	if private {
		visibility = thread.VisibilityPrivate
	}
	return thread.Thread{
		ID:             ids.ThreadID(id),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
		WorkspaceRoot:  "/repo",
		Visibility:     visibility,
		IsPrivate:      private,
		OwnerUserID:    ids.UserID(owner),
	}
}

func TestUpsertNeverSyncsAPrivateThread(t *testing.T) {
	sync := &recordingSyncer{}
	store, local := newStore(t, sync)
	ctx := context.Background()

	in := sampleThread("T-private", "user-1", true)
	_, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)

	require.Empty(t, sync.upserted, "a private thread must never be pushed to the sync tier")

	got, err := local.Get(ctx, in.ID)
	require.NoError(t, err)
	require.True(t, got.IsPrivate)
}

func TestUpsertSyncsANonPrivateThread(t *testing.T) {
	sync := &recordingSyncer{}
	store, _ := newStore(t, sync)
	ctx := context.Background()

	in := sampleThread("T-public", "user-1", false)
	_, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)

	require.Len(t, sync.upserted, 1)
	require.Equal(t, in.ID, sync.upserted[0].ID)
}

func TestUpsertWithNilSyncerIsLocalOnly(t *testing.T) {
	store, local := newStore(t, nil)
	ctx := context.Background()

	in := sampleThread("T-local-only", "user-1", false)
	_, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)

	got, err := local.Get(ctx, in.ID)
	require.NoError(t, err)
	require.Equal(t, in.ID, got.ID)
}

func TestDeleteSkipsRemoteDeleteForPrivateThread(t *testing.T) {
	sync := &recordingSyncer{}
	store, _ := newStore(t, sync)
	ctx := context.Background()

	in := sampleThread("T-private-del", "user-1", true)
	_, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, in.ID))
	require.Empty(t, sync.deleted)
}

func TestDeleteIssuesRemoteDeleteForNonPrivateThread(t *testing.T) {
	sync := &recordingSyncer{}
	store, _ := newStore(t, sync)
	ctx := context.Background()

	in := sampleThread("T-public-del", "user-1", false)
	_, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, in.ID))
	require.Equal(t, []string{in.ID.String()}, sync.deleted)
}
