// Package abac implements Loom's attribute-based access control core: a
// pure decision function over subject/action/resource attributes. Nothing
// in this package touches a database or an HTTP request — callers (see
// pkg/authz) are responsible for assembling the attribute values first.
package abac

import "github.com/codeready-toolchain/loom/internal/ids"

// OrgRole is a subject's role within an organization.
type OrgRole int

const (
	OrgRoleNone OrgRole = iota
	OrgRoleMember
	OrgRoleAdmin
	OrgRoleOwner
)

// TeamRole is a subject's role within a team.
type TeamRole int

const (
	TeamRoleNone TeamRole = iota
	TeamRoleMember
	TeamRoleMaintainer
)

// SessionOrigin distinguishes how the current credential was established,
// since some actions (e.g. Impersonate) are only ever exercised through an
// admin-console session, never an API key or SDK key.
type SessionOrigin int

const (
	SessionOriginUnknown SessionOrigin = iota
	SessionOriginWebSession
	SessionOriginAPIKey
	SessionOriginSDKKey
)

// SubjectAttrs is the caller identity and the full set of role grants
// decide consults, assembled once per request by pkg/authz's
// BuildSubjectAttrs before any Decide call.
type SubjectAttrs struct {
	UserID         ids.UserID
	IsSystemAdmin  bool
	IsSupport      bool
	IsAuditor      bool
	OrgRoles       map[ids.OrgID]OrgRole
	TeamRoles      map[ids.TeamID]TeamRole
	SessionOrigin  SessionOrigin
}

// OrgRoleFor returns the subject's role on org, or OrgRoleNone if they hold
// no membership there.
func (s SubjectAttrs) OrgRoleFor(org ids.OrgID) OrgRole {
	if s.OrgRoles == nil {
		return OrgRoleNone
	}
	return s.OrgRoles[org]
}

// TeamRoleFor returns the subject's role on team, or TeamRoleNone.
func (s SubjectAttrs) TeamRoleFor(team ids.TeamID) TeamRole {
	if s.TeamRoles == nil {
		return TeamRoleNone
	}
	return s.TeamRoles[team]
}

// Visibility is the exposure level carried by every ResourceAttrs value.
type Visibility int

const (
	VisibilityPrivate Visibility = iota
	VisibilityTeam
	VisibilityOrganization
	VisibilityPublic
)

// ResourceKind is the closed tag of the ResourceAttrs union: a tagged
// union, not interface polymorphism - Decide switches on Kind rather than
// dispatching through a method set.
type ResourceKind int

const (
	ResourceKindThread ResourceKind = iota
	ResourceKindOrg
	ResourceKindTeam
	ResourceKindRepo
	ResourceKindFlag
	ResourceKindKillSwitch
	ResourceKindSDKKey
	ResourceKindWeaver
	ResourceKindSecret
	ResourceKindAuditLog
)

// ResourceAttrs is the tagged-union payload every protected resource
// presents to Decide. Only the fields relevant to Kind are populated by
// convention; Decide never inspects fields outside the active Kind's
// contract.
type ResourceAttrs struct {
	Kind ResourceKind

	// ID is the resource's own opaque identifier, carried as a plain
	// string since ResourceAttrs spans many concrete id types (ThreadID,
	// WeaverID, FlagID, ...); it is used only for logging/error messages,
	// never compared against by Decide.
	ID string

	OrgID  ids.OrgID // owning org, zero value if the resource has none
	TeamID ids.TeamID // owning team, zero value if the resource has none

	OwnerUserID ids.UserID // direct owner (e.g. a weaver's or secret's owner_user_id)

	Visibility Visibility

	// IsSharedWithSupport mirrors Thread.is_shared_with_support;
	// other resource kinds leave this false.
	IsSharedWithSupport bool

	// SelfRemoval is set by the caller when the action targets the acting
	// subject's own org/team membership (rule 2): a member may always
	// remove themselves, subject to the handler's separate last-Owner /
	// last-Maintainer enforcement.
	SelfRemoval bool
}

// Action is the closed set of operations Decide can authorize.
type Action int

const (
	ActionRead Action = iota
	ActionWrite
	ActionDelete
	ActionManageOrg
	ActionManageTeam
	ActionManageRepo
	ActionAttach
	ActionProvision
	ActionImpersonate
	ActionManagePlatform
	ActionAdmin
)

func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionWrite:
		return "write"
	case ActionDelete:
		return "delete"
	case ActionManageOrg:
		return "manage_org"
	case ActionManageTeam:
		return "manage_team"
	case ActionManageRepo:
		return "manage_repo"
	case ActionAttach:
		return "attach"
	case ActionProvision:
		return "provision"
	case ActionImpersonate:
		return "impersonate"
	case ActionManagePlatform:
		return "manage_platform"
	case ActionAdmin:
		return "admin"
	default:
		return "unknown"
	}
}
