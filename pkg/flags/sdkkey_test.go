package flags

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/ids"
	testdb "github.com/codeready-toolchain/loom/test/database"
)

func TestIssueKeyThenAuthenticateRoundTrips(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	svc := NewKeyService(client)

	issued, raw, err := svc.IssueKey(ctx, ids.EnvironmentID("prod"), KeyTypeServer)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.Nil(t, issued.LastUsedAt)

	authenticated, err := svc.Authenticate(ctx, "prod", raw)
	require.NoError(t, err)
	require.Equal(t, issued.ID, authenticated.ID)
	require.NotNil(t, authenticated.LastUsedAt)
}

func TestAuthenticateRejectsWrongKey(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	svc := NewKeyService(client)

	_, _, err := svc.IssueKey(ctx, ids.EnvironmentID("prod"), KeyTypeServer)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "prod", "not-the-right-key")
	require.Error(t, err)
}

func TestAuthenticateRejectsRevokedKey(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	svc := NewKeyService(client)

	issued, raw, err := svc.IssueKey(ctx, ids.EnvironmentID("prod"), KeyTypeServer)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeKey(ctx, issued.ID))

	_, err = svc.Authenticate(ctx, "prod", raw)
	require.Error(t, err)
}

func TestAuthenticateScopesByEnvironment(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	svc := NewKeyService(client)

	_, raw, err := svc.IssueKey(ctx, ids.EnvironmentID("prod"), KeyTypeServer)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "staging", raw)
	require.Error(t, err, "a key issued for one environment must not authenticate against another")
}
