package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/apperr"
	testdb "github.com/codeready-toolchain/loom/test/database"
)

func TestUserServiceCreateProvisionsPersonalOrg(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)
	users := NewUserService(client, orgs)

	user, org, err := users.Create(ctx, "Ada Lovelace", "ada")
	require.NoError(t, err)
	require.True(t, org.IsPersonal)

	membership, err := client.OrgMembership.Query().Only(ctx)
	require.NoError(t, err)
	require.Equal(t, user.ID.String(), membership.UserID)
	require.Equal(t, "owner", string(membership.Role))
}

func TestUserServiceSoftDeleteThenRestoreWithinGrace(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)
	users := NewUserService(client, orgs)

	user, _, err := users.Create(ctx, "Ada Lovelace", "ada")
	require.NoError(t, err)

	require.NoError(t, users.SoftDelete(ctx, user.ID))
	require.NoError(t, users.Restore(ctx, user.ID))

	reloaded, err := client.User.Get(ctx, user.ID.String())
	require.NoError(t, err)
	require.Nil(t, reloaded.DeletedAt)
}

func TestUserServiceRestoreRejectsUndeletedUser(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)
	users := NewUserService(client, orgs)

	user, _, err := users.Create(ctx, "Ada Lovelace", "ada")
	require.NoError(t, err)

	err = users.Restore(ctx, user.ID)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeConflict, appErr.Code)
}
