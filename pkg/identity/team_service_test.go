package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
	testdb "github.com/codeready-toolchain/loom/test/database"
)

func TestTeamServiceCreateTeamAddsFoundingMaintainer(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)
	teams := NewTeamService(client)

	creator := ids.UserID("user-1")
	org, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPrivate, creator)
	require.NoError(t, err)

	team, err := teams.CreateTeam(ctx, org.ID, "Platform", "platform", creator)
	require.NoError(t, err)

	membership, err := client.TeamMembership.Query().Only(ctx)
	require.NoError(t, err)
	require.Equal(t, team.ID.String(), membership.TeamID)
	require.Equal(t, "maintainer", string(membership.Role))
}

func TestTeamServiceRemoveMemberRejectsLastMaintainer(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)
	teams := NewTeamService(client)

	creator := ids.UserID("user-1")
	org, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPrivate, creator)
	require.NoError(t, err)
	team, err := teams.CreateTeam(ctx, org.ID, "Platform", "platform", creator)
	require.NoError(t, err)

	err = teams.RemoveMember(ctx, team.ID, creator)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeLastMaintainer, appErr.Code)
}

func TestTeamServiceRemoveMemberAllowsNonLastMaintainer(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)
	teams := NewTeamService(client)

	creator := ids.UserID("user-1")
	second := ids.UserID("user-2")
	org, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPrivate, creator)
	require.NoError(t, err)
	team, err := teams.CreateTeam(ctx, org.ID, "Platform", "platform", creator)
	require.NoError(t, err)

	require.NoError(t, teams.AddMember(ctx, team.ID, second, TeamRoleMaintainer))
	require.NoError(t, teams.RemoveMember(ctx, team.ID, creator))

	count, err := client.TeamMembership.Query().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestTeamServiceChangeRoleRejectsDemotingLastMaintainer(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)
	teams := NewTeamService(client)

	creator := ids.UserID("user-1")
	org, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPrivate, creator)
	require.NoError(t, err)
	team, err := teams.CreateTeam(ctx, org.ID, "Platform", "platform", creator)
	require.NoError(t, err)

	err = teams.ChangeRole(ctx, team.ID, creator, TeamRoleMember)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeLastMaintainer, appErr.Code)
}
