package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
	testdb "github.com/codeready-toolchain/loom/test/database"
)

func TestJoinRequestServiceApproveAddsMember(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)
	joinRequests := NewJoinRequestService(client)

	owner := ids.UserID("user-1")
	requester := ids.UserID("user-2")
	org, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPublic, owner)
	require.NoError(t, err)

	req, err := joinRequests.Create(ctx, org.ID, requester)
	require.NoError(t, err)

	decided, err := joinRequests.Decide(ctx, req.ID, owner, true)
	require.NoError(t, err)
	require.NotNil(t, decided.Approved)
	require.True(t, *decided.Approved)

	count, err := client.OrgMembership.Query().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestJoinRequestServiceRejectDoesNotAddMember(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)
	joinRequests := NewJoinRequestService(client)

	owner := ids.UserID("user-1")
	requester := ids.UserID("user-2")
	org, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPublic, owner)
	require.NoError(t, err)

	req, err := joinRequests.Create(ctx, org.ID, requester)
	require.NoError(t, err)

	decided, err := joinRequests.Decide(ctx, req.ID, owner, false)
	require.NoError(t, err)
	require.False(t, *decided.Approved)

	count, err := client.OrgMembership.Query().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestJoinRequestServiceCreateRejectsDuplicatePending(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	orgs := NewOrgService(client)
	joinRequests := NewJoinRequestService(client)

	requester := ids.UserID("user-2")
	org, err := orgs.CreateOrganization(ctx, "Acme", "acme", OrgVisibilityPublic, ids.UserID("user-1"))
	require.NoError(t, err)

	_, err = joinRequests.Create(ctx, org.ID, requester)
	require.NoError(t, err)

	_, err = joinRequests.Create(ctx, org.ID, requester)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeConflict, appErr.Code)
}
