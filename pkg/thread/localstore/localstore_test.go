package localstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/thread"
	"github.com/codeready-toolchain/loom/pkg/thread/localstore"
)

func openStore(t *testing.T) *localstore.Store {
	t.Helper()
	store, err := localstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleThread(workspaceRoot, owner string) thread.Thread {
	now := time.Now().UTC()
	return thread.Thread{
		ID:             ids.ThreadID("thread-" + owner),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
		WorkspaceRoot:  workspaceRoot,
		Cwd:            workspaceRoot,
		Provider:       "anthropic",
		Model:          "claude",
		Conversation: []thread.Message{
			{Role: thread.RoleUser, Content: "investigate the flaky deploy pipeline"},
			{Role: thread.RoleAssistant, Content: "looking at the logs now"},
		},
		Metadata:    thread.Metadata{Title: "flaky deploy pipeline"},
		Visibility:  thread.VisibilityPrivate,
		IsPrivate:   true,
		OwnerUserID: ids.UserID(owner),
	}
}

func TestUpsertAndGetRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	in := sampleThread("/repo/a", "user-1")
	out, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)
	require.Equal(t, in.ID, out.ID)

	got, err := store.Get(ctx, in.ID)
	require.NoError(t, err)
	require.Equal(t, in.Metadata.Title, got.Metadata.Title)
	require.Len(t, got.Conversation, 2)
}

func TestGetMissingThreadReturnsNotFound(t *testing.T) {
	store := openStore(t)
	_, err := store.Get(context.Background(), ids.ThreadID("nope"))
	require.Error(t, err)
	var storeErr *thread.StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, thread.ErrorKindNotFound, storeErr.Kind)
}

func TestUpsertRejectsVersionMismatch(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	in := sampleThread("/repo/a", "user-1")
	_, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)

	stale := int64(5)
	_, err = store.Upsert(ctx, in, &stale)
	require.Error(t, err)
	var storeErr *thread.StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, thread.ErrorKindConflict, storeErr.Kind)
	require.Equal(t, int64(5), storeErr.ExpectedVersion)
	require.Equal(t, int64(1), storeErr.ActualVersion)
}

func TestListScopesByWorkspaceRootAndHidesDeleted(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	a := sampleThread("/repo/a", "user-1")
	b := sampleThread("/repo/b", "user-2")
	_, err := store.Upsert(ctx, a, nil)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, b, nil)
	require.NoError(t, err)

	summaries, err := store.List(ctx, "/repo/a", 10, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, a.ID, summaries[0].ID)

	require.NoError(t, store.Delete(ctx, a.ID))

	summaries, err = store.List(ctx, "/repo/a", 10, 0)
	require.NoError(t, err)
	require.Empty(t, summaries)

	// Delete is a soft-delete: Get still succeeds.
	_, err = store.Get(ctx, a.ID)
	require.NoError(t, err)
}

func TestSearchRoutesSHALikeQueryToCommitPrefixFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	t1 := sampleThread("/repo/a", "user-1")
	t1.Git.RemoteSlug = "acme/widgets"
	t1.Git.Commits = []thread.CommitRecord{
		{SHA: "abc1234def5678900000000000000000000000", IsInitial: true},
	}
	_, err := store.Upsert(ctx, t1, nil)
	require.NoError(t, err)

	hits, err := store.Search(ctx, "abc1234", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, t1.ID, hits[0].Summary.ID)
	require.Equal(t, 1.0, hits[0].Score)
}

func TestSearchFallsBackToFTSWhenNoCommitMatches(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	in := sampleThread("/repo/a", "user-1")
	_, err := store.Upsert(ctx, in, nil)
	require.NoError(t, err)

	// "deployment" is SHA-like length-wise? No - contains non-hex letters,
	// so this goes straight to FTS. Use a query that is hex-length but
	// never recorded as a commit, to also exercise the fallback path.
	hits, err := store.Search(ctx, "deadbeef", "", 10, 0)
	require.NoError(t, err)
	require.Empty(t, hits)

	hits, err = store.Search(ctx, "pipeline", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, in.ID, hits[0].Summary.ID)
	require.Greater(t, hits[0].Score, 0.0)
}

func TestOwnerScopedListingAndCount(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	a := sampleThread("/repo/a", "user-1")
	b := sampleThread("/repo/b", "user-1")
	b.ID = ids.ThreadID("thread-user-1-b")
	c := sampleThread("/repo/c", "user-2")
	for _, th := range []thread.Thread{a, b, c} {
		_, err := store.Upsert(ctx, th, nil)
		require.NoError(t, err)
	}

	summaries, err := store.ListForOwner(ctx, ids.UserID("user-1"), 10, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	count, err := store.CountForOwner(ctx, ids.UserID("user-1"))
	require.NoError(t, err)
	require.Equal(t, 2, count)

	hits, err := store.SearchForOwner(ctx, ids.UserID("user-1"), "pipeline", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestSetOwnerAndSetSharedWithSupportPersist(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

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

	require.NoError(t, store.SetVisibility(ctx, in.ID, thread.VisibilityOrganization))
	got, err = store.Get(ctx, in.ID)
	require.NoError(t, err)
	require.Equal(t, thread.VisibilityOrganization, got.Visibility)
}

func TestHealthCheck(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.HealthCheck(context.Background()))
}

func TestDataDirPrefersXDGDataHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-test-home")
	dir, err := localstore.DataDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/tmp/xdg-test-home", localstore.DefaultDataDirName), dir)
}
