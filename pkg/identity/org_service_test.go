package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
	testdb "github.com/codeready-toolchain/loom/test/database"
)

func TestOrgServiceCreateOrganizationAddsFoundingOwner(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)

	owner := ids.UserID("user-1")
	org, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPrivate, owner)
	require.NoError(t, err)
	require.False(t, org.IsPersonal)

	membership, err := client.OrgMembership.Query().Only(ctx)
	require.NoError(t, err)
	require.Equal(t, owner.String(), membership.UserID)
	require.Equal(t, "owner", string(membership.Role))
}

func TestOrgServiceCreateOrganizationRejectsDuplicateSlug(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)

	_, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPrivate, ids.UserID("user-1"))
	require.NoError(t, err)

	_, err = orgs.CreateOrganization(ctx, "Acme Again", "acme", OrgVisibilityPrivate, ids.UserID("user-2"))
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeSlugExists, appErr.Code)
}

func TestOrgServiceRemoveMemberRejectsLastOwner(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)

	owner := ids.UserID("user-1")
	org, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPrivate, owner)
	require.NoError(t, err)

	err = orgs.RemoveMember(ctx, org.ID, owner)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeLastOwner, appErr.Code)

	// membership must survive untouched
	count, err := client.OrgMembership.Query().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestOrgServiceRemoveMemberAllowsNonLastOwner(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)

	owner1 := ids.UserID("user-1")
	owner2 := ids.UserID("user-2")
	org, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPrivate, owner1)
	require.NoError(t, err)
	require.NoError(t, orgs.AddMember(ctx, org.ID, owner2, OrgRoleOwner, nil))

	require.NoError(t, orgs.RemoveMember(ctx, org.ID, owner1))

	count, err := client.OrgMembership.Query().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestOrgServiceChangeRoleRejectsDemotingLastOwner(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)

	owner := ids.UserID("user-1")
	org, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPrivate, owner)
	require.NoError(t, err)

	err = orgs.ChangeRole(ctx, org.ID, owner, OrgRoleMember)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeLastOwner, appErr.Code)
}

func TestOrgServiceAddMemberRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)

	owner := ids.UserID("user-1")
	org, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPrivate, owner)
	require.NoError(t, err)

	err = orgs.AddMember(ctx, org.ID, owner, OrgRoleMember, nil)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeAlreadyMember, appErr.Code)
}

func TestOrgServiceEnsureMirrorsOrgIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)

	first, err := orgs.EnsureMirrorsOrg(ctx)
	require.NoError(t, err)
	require.Equal(t, MirrorsOrgSlug, first.Slug)

	second, err := orgs.EnsureMirrorsOrg(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestOrgServiceSoftDeleteRejectsPersonalOrg(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)

	owner := ids.UserID("user-1")
	org, err := orgs.CreatePersonalOrg(ctx, "user-1-personal", owner)
	require.NoError(t, err)

	err = orgs.SoftDelete(ctx, org.ID)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeInvalidInput, appErr.Code)
}

func TestOrgServiceSoftDeleteThenRestore(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)

	org, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPrivate, ids.UserID("user-1"))
	require.NoError(t, err)

	require.NoError(t, orgs.SoftDelete(ctx, org.ID))
	require.NoError(t, orgs.Restore(ctx, org.ID))

	reloaded, err := client.Organization.Get(ctx, org.ID.String())
	require.NoError(t, err)
	require.Nil(t, reloaded.DeletedAt)
}
