package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
	testdb "github.com/codeready-toolchain/loom/test/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := testdb.NewTestClient(t).Client
	kek, _, err := GenerateKEK()
	require.NoError(t, err)
	return NewStore(client, kek)
}

func TestPutThenRevealRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	secret, err := store.Put(ctx, OwnerRepo, "repo-1", "DEPLOY_KEY", ids.NewSecret("ssh-ed25519 AAAA..."))
	require.NoError(t, err)
	require.Equal(t, 1, secret.Version)

	revealed, err := store.Reveal(ctx, OwnerRepo, "repo-1", "DEPLOY_KEY")
	require.NoError(t, err)
	require.Equal(t, "ssh-ed25519 AAAA...", revealed.Reveal())
}

func TestPutOverwriteBumpsVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Put(ctx, OwnerRepo, "repo-1", "TOKEN", ids.NewSecret("v1"))
	require.NoError(t, err)
	second, err := store.Put(ctx, OwnerRepo, "repo-1", "TOKEN", ids.NewSecret("v2"))
	require.NoError(t, err)
	require.Equal(t, 2, second.Version)

	revealed, err := store.Reveal(ctx, OwnerRepo, "repo-1", "TOKEN")
	require.NoError(t, err)
	require.Equal(t, "v2", revealed.Reveal())
}

func TestRevealUnknownKeyReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Reveal(ctx, OwnerRepo, "repo-1", "MISSING")
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeNotFound, appErr.Code)
}

func TestListReturnsMetadataNotPlaintext(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Put(ctx, OwnerOrg, "org-1", "API_KEY", ids.NewSecret("secret-value"))
	require.NoError(t, err)
	_, err = store.Put(ctx, OwnerOrg, "org-1", "WEBHOOK_SECRET", ids.NewSecret("another-value"))
	require.NoError(t, err)

	list, err := store.List(ctx, OwnerOrg, "org-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "API_KEY", list[0].Key)
	require.Equal(t, "WEBHOOK_SECRET", list[1].Key)
}

func TestDeleteRemovesSecret(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Put(ctx, OwnerRepo, "repo-1", "TOKEN", ids.NewSecret("v1"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, OwnerRepo, "repo-1", "TOKEN"))

	_, err = store.Reveal(ctx, OwnerRepo, "repo-1", "TOKEN")
	require.Error(t, err)
}

func TestDeleteUnknownKeyIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Delete(ctx, OwnerRepo, "repo-1", "NEVER_EXISTED"))
}
