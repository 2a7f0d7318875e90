package abac

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/loom/internal/ids"
)

func TestDecideSystemAdminBypassesExceptImpersonate(t *testing.T) {
	admin := SubjectAttrs{UserID: "u1", IsSystemAdmin: true}
	res := ResourceAttrs{Kind: ResourceKindOrg, OrgID: "o1", Visibility: VisibilityPrivate}

	assert.True(t, Decide(admin, ActionDelete, res).Allowed)
	assert.True(t, Decide(admin, ActionManagePlatform, res).Allowed)

	decision := Decide(admin, ActionImpersonate, res)
	assert.False(t, decision.Allowed, "system admins never get Impersonate for free")
}

func TestDecideSelfRemoval(t *testing.T) {
	member := SubjectAttrs{UserID: "u1", OrgRoles: map[ids.OrgID]OrgRole{"o1": OrgRoleMember}}
	res := ResourceAttrs{Kind: ResourceKindOrg, OrgID: "o1", SelfRemoval: true, Visibility: VisibilityPrivate}

	assert.True(t, Decide(member, ActionManageOrg, res).Allowed)
	assert.True(t, Decide(member, ActionManageTeam, res).Allowed)

	notSelfRemoval := Decide(member, ActionWrite, ResourceAttrs{Kind: ResourceKindOrg, OrgID: "o1", SelfRemoval: true})
	assert.False(t, notSelfRemoval.Allowed, "self-removal only covers ManageOrg/ManageTeam")
}

func TestDecidePublicResourceReadable(t *testing.T) {
	stranger := SubjectAttrs{UserID: "u1"}
	res := ResourceAttrs{Kind: ResourceKindThread, Visibility: VisibilityPublic}

	assert.True(t, Decide(stranger, ActionRead, res).Allowed)
	assert.False(t, Decide(stranger, ActionWrite, res).Allowed)
}

func TestDecideOrgRoleCapabilities(t *testing.T) {
	res := func(vis Visibility) ResourceAttrs {
		return ResourceAttrs{Kind: ResourceKindThread, OrgID: "o1", Visibility: vis}
	}

	owner := SubjectAttrs{OrgRoles: map[ids.OrgID]OrgRole{"o1": OrgRoleOwner}}
	assert.True(t, Decide(owner, ActionDelete, res(VisibilityPrivate)).Allowed)
	assert.False(t, Decide(owner, ActionManagePlatform, res(VisibilityPrivate)).Allowed, "owner cannot ManagePlatform")

	admin := SubjectAttrs{OrgRoles: map[ids.OrgID]OrgRole{"o1": OrgRoleAdmin}}
	assert.True(t, Decide(admin, ActionManageOrg, res(VisibilityPrivate)).Allowed)
	assert.True(t, Decide(admin, ActionManageTeam, res(VisibilityPrivate)).Allowed)
	assert.False(t, Decide(admin, ActionDelete, res(VisibilityPrivate)).Allowed, "admin has no Delete capability")

	member := SubjectAttrs{OrgRoles: map[ids.OrgID]OrgRole{"o1": OrgRoleMember}}
	assert.True(t, Decide(member, ActionRead, res(VisibilityOrganization)).Allowed)
	assert.False(t, Decide(member, ActionRead, res(VisibilityPrivate)).Allowed, "member cannot read private org children")
	assert.False(t, Decide(member, ActionWrite, res(VisibilityOrganization)).Allowed)
}

func TestDecideTeamRoleCapabilities(t *testing.T) {
	res := ResourceAttrs{Kind: ResourceKindThread, TeamID: "t1", Visibility: VisibilityPrivate}

	maintainer := SubjectAttrs{TeamRoles: map[ids.TeamID]TeamRole{"t1": TeamRoleMaintainer}}
	assert.True(t, Decide(maintainer, ActionManageTeam, res).Allowed)
	assert.True(t, Decide(maintainer, ActionWrite, res).Allowed)
	assert.False(t, Decide(maintainer, ActionDelete, res).Allowed)

	member := SubjectAttrs{TeamRoles: map[ids.TeamID]TeamRole{"t1": TeamRoleMember}}
	assert.True(t, Decide(member, ActionRead, res).Allowed)
	assert.False(t, Decide(member, ActionWrite, res).Allowed)
}

func TestDecideSupportSharedResource(t *testing.T) {
	support := SubjectAttrs{IsSupport: true}
	res := ResourceAttrs{Kind: ResourceKindThread, Visibility: VisibilityPrivate, IsSharedWithSupport: true}

	assert.True(t, Decide(support, ActionRead, res).Allowed)
	assert.False(t, Decide(support, ActionWrite, res).Allowed)

	nonSupport := SubjectAttrs{}
	assert.False(t, Decide(nonSupport, ActionRead, res).Allowed)
}

func TestDecideDenyByDefault(t *testing.T) {
	stranger := SubjectAttrs{UserID: "u1"}
	res := ResourceAttrs{Kind: ResourceKindThread, Visibility: VisibilityPrivate}

	decision := Decide(stranger, ActionRead, res)
	assert.False(t, decision.Allowed)
	assert.Equal(t, DenyReasonNoGrant, decision.Reason)
}
