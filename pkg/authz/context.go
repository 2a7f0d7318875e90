// Package authz wires pkg/abac's pure decision function into gin request
// handling: loading the caller's subject attributes, resolving the
// resource being acted on, and returning the stable 403 JSON envelope on
// deny.
package authz

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/abac"
	"github.com/codeready-toolchain/loom/pkg/identity"
)

const subjectContextKey = "loom.authz.subject"

// MembershipLookup loads the org/team memberships and flags a subject
// needs for ABAC evaluation. Implemented by pkg/identity-backed adapters
// in production, and by an in-memory fake in tests.
type MembershipLookup interface {
	OrgMemberships(ctx context.Context, user ids.UserID) (map[ids.OrgID]identity.OrgRole, error)
	TeamMemberships(ctx context.Context, user ids.UserID) (map[ids.TeamID]identity.TeamRole, error)
	IsSystemAdmin(ctx context.Context, user ids.UserID) (bool, error)
	IsSupport(ctx context.Context, user ids.UserID) (bool, error)
	IsAuditor(ctx context.Context, user ids.UserID) (bool, error)
}

// orgRoleToAbac maps an identity.OrgRole onto its abac.OrgRole equivalent.
// The two enums are defined in different packages deliberately - pkg/abac
// must not import pkg/identity - so this mapping lives at the pkg/authz
// seam instead.
func orgRoleToAbac(role identity.OrgRole) abac.OrgRole {
	switch role {
	case identity.OrgRoleOwner:
		return abac.OrgRoleOwner
	case identity.OrgRoleAdmin:
		return abac.OrgRoleAdmin
	case identity.OrgRoleMember:
		return abac.OrgRoleMember
	default:
		return abac.OrgRoleNone
	}
}

func teamRoleToAbac(role identity.TeamRole) abac.TeamRole {
	switch role {
	case identity.TeamRoleMaintainer:
		return abac.TeamRoleMaintainer
	case identity.TeamRoleMember:
		return abac.TeamRoleMember
	default:
		return abac.TeamRoleNone
	}
}

// BuildSubjectAttrs loads the abac.SubjectAttrs for an authenticated user,
// to be cached on the gin context for the lifetime of the request.
func BuildSubjectAttrs(ctx context.Context, lookup MembershipLookup, user ids.UserID, origin abac.SessionOrigin) (abac.SubjectAttrs, error) {
	orgRoles, err := lookup.OrgMemberships(ctx, user)
	if err != nil {
		return abac.SubjectAttrs{}, fmt.Errorf("load org memberships: %w", err)
	}
	teamRoles, err := lookup.TeamMemberships(ctx, user)
	if err != nil {
		return abac.SubjectAttrs{}, fmt.Errorf("load team memberships: %w", err)
	}
	isAdmin, err := lookup.IsSystemAdmin(ctx, user)
	if err != nil {
		return abac.SubjectAttrs{}, fmt.Errorf("load system admin flag: %w", err)
	}
	isSupport, err := lookup.IsSupport(ctx, user)
	if err != nil {
		return abac.SubjectAttrs{}, fmt.Errorf("load support flag: %w", err)
	}
	isAuditor, err := lookup.IsAuditor(ctx, user)
	if err != nil {
		return abac.SubjectAttrs{}, fmt.Errorf("load auditor flag: %w", err)
	}

	abacOrgRoles := make(map[ids.OrgID]abac.OrgRole, len(orgRoles))
	for org, role := range orgRoles {
		abacOrgRoles[org] = orgRoleToAbac(role)
	}
	abacTeamRoles := make(map[ids.TeamID]abac.TeamRole, len(teamRoles))
	for team, role := range teamRoles {
		abacTeamRoles[team] = teamRoleToAbac(role)
	}

	return abac.SubjectAttrs{
		UserID:        user,
		IsSystemAdmin: isAdmin,
		IsSupport:     isSupport,
		IsAuditor:     isAuditor,
		SessionOrigin: origin,
		OrgRoles:      abacOrgRoles,
		TeamRoles:     abacTeamRoles,
	}, nil
}

// SetSubject stashes the request's SubjectAttrs on the gin context so
// downstream handlers and the Authorize middleware share one lookup per
// request.
func SetSubject(c *gin.Context, subject abac.SubjectAttrs) {
	c.Set(subjectContextKey, subject)
}

// SubjectFrom retrieves the SubjectAttrs set by SetSubject.
func SubjectFrom(c *gin.Context) (abac.SubjectAttrs, bool) {
	v, ok := c.Get(subjectContextKey)
	if !ok {
		return abac.SubjectAttrs{}, false
	}
	subject, ok := v.(abac.SubjectAttrs)
	return subject, ok
}
