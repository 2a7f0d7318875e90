package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	testdb "github.com/codeready-toolchain/loom/test/database"
)

func TestSessionRoundTripAndRevocation(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)
	users := NewUserService(client, orgs)
	creds := NewCredentialService(client)

	user, _, err := users.Create(ctx, "Ada", "ada")
	require.NoError(t, err)

	raw, err := creds.CreateSession(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	resolved, err := creds.VerifySession(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved)

	require.NoError(t, creds.RevokeSession(ctx, raw))
	_, err = creds.VerifySession(ctx, raw)
	require.Error(t, err)
}

func TestVerifySessionRejectsUnknownToken(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	creds := NewCredentialService(client)

	_, err := creds.VerifySession(ctx, "not-a-real-token")
	require.Error(t, err)
}

func TestAPIKeyRoundTripAndRevocation(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)
	users := NewUserService(client, orgs)
	creds := NewCredentialService(client)

	user, _, err := users.Create(ctx, "Grace", "grace")
	require.NoError(t, err)

	raw, err := creds.CreateAPIKey(ctx, "ci-key", user.ID, "")
	require.NoError(t, err)

	resolved, err := creds.VerifyAPIKey(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved)
}

func TestVerifyAPIKeyRejectsUnknownToken(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	creds := NewCredentialService(client)

	_, err := creds.VerifyAPIKey(ctx, "not-a-real-key")
	require.Error(t, err)
}
