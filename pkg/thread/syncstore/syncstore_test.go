package syncstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/ids"
	threadpkg "github.com/codeready-toolchain/loom/pkg/thread"
	testdb "github.com/codeready-toolchain/loom/test/database"
)

func sampleThread(workspaceRoot, owner string) threadpkg.Thread {
	now := time.Now().UTC()
	return threadpkg.Thread{
		ID:             ids.NewThreadID(),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
		WorkspaceRoot:  workspaceRoot,
		Cwd:            workspaceRoot,
		Provider:       "anthropic",
		Model:          "claude",
		Conversation: []threadpkg.Message{
			{Role: threadpkg.RoleUser, Content: "triage the checkout latency regression"},
			{Role: threadpkg.RoleAssistant, Content: "pulling traces now"},
		},
		Metadata:    threadpkg.Metadata{Title: "checkout latency regression"},
		Visibility:  threadpkg.VisibilityOrganization,
		OwnerUserID: ids.UserID(owner),
	}
}

func TestUpsertAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	store := New(client)

	in := sampleThread("/repo/a", "user-1")
	out, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)
	require.Equal(t, in.ID, out.ID)

	got, err := store.Get(ctx, in.ID)
	require.NoError(t, err)
	require.Equal(t, in.Metadata.Title, got.Metadata.Title)
	require.Len(t, got.Conversation, 2)
	require.False(t, got.IsPrivate)
}

func TestUpsertRejectsVersionMismatch(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	store := New(client)

	in := sampleThread("/repo/a", "user-1")
	_, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)

	stale := int64(7)
	_, err = store.Upsert(ctx, in, &stale)
	require.Error(t, err)
	var storeErr *threadpkg.StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, threadpkg.ErrorKindConflict, storeErr.Kind)
	require.Equal(t, int64(7), storeErr.ExpectedVersion)
	require.Equal(t, int64(1), storeErr.ActualVersion)
}

func TestGetMissingThreadReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	store := New(client)

	_, err := store.Get(ctx, ids.ThreadID("T-missing"))
	require.Error(t, err)
	var storeErr *threadpkg.StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, threadpkg.ErrorKindNotFound, storeErr.Kind)
}

func TestSearchRoutesSHALikeQueryToCommitPrefixFirst(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	store := New(client)

	in := sampleThread("/repo/a", "user-1")
	in.Git.RemoteSlug = "acme/widgets"
	in.Git.Commits = []threadpkg.CommitRecord{
		{SHA: "abc1234def5678900000000000000000000000", IsInitial: true},
	}
	_, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)

	hits, err := store.Search(ctx, "abc1234", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, in.ID, hits[0].Summary.ID)
	require.Equal(t, 1.0, hits[0].Score)
}

func TestSearchFallsBackToTitleMatch(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	store := New(client)

	in := sampleThread("/repo/a", "user-1")
	_, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)

	hits, err := store.Search(ctx, "latency", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, in.ID, hits[0].Summary.ID)
}

func TestOwnerScopedListingAndCount(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	store := New(client)

	a := sampleThread("/repo/a", "user-1")
	b := sampleThread("/repo/b", "user-1")
	c := sampleThread("/repo/c", "user-2")
	for _, th := range []threadpkg.Thread{a, b, c} {
		_, err := store.Upsert(ctx, th, nil)
		require.NoError(t, err)
	}

	summaries, err := store.ListForOwner(ctx, ids.UserID("user-1"), 10, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	count, err := store.CountForOwner(ctx, ids.UserID("user-1"))
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestSetOwnerAndSetSharedWithSupportPersist(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	store := New(client)

	in := sampleThread("/repo/a", "user-1")
	_, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)

	require.NoError(t, store.SetOwner(ctx, in.ID, ids.UserID("user-2")))
	got, err := store.Get(ctx, in.ID)
	require.NoError(t, err)
	require.Equal(t, ids.UserID("user-2"), got.OwnerUserID)

	require.NoError(t, store.SetSharedWithSupport(ctx, in.ID, true))
	got, err = store.Get(ctx, in.ID)
	require.NoError(t, err)
	require.True(t, got.IsSharedWithSupport)

	require.NoError(t, store.SetVisibility(ctx, in.ID, threadpkg.VisibilityPublic))
	got, err = store.Get(ctx, in.ID)
	require.NoError(t, err)
	require.Equal(t, threadpkg.VisibilityPublic, got.Visibility)
}

func TestDeleteRemovesThreadOutright(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	store := New(client)

	in := sampleThread("/repo/a", "user-1")
	_, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, in.ID))

	_, err = store.Get(ctx, in.ID)
	require.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	client := testdb.NewTestClient(t).Client
	store := New(client)
	require.NoError(t, store.HealthCheck(context.Background()))
}
