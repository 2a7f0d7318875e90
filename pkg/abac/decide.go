package abac

// Decision is the outcome of Decide: either Allow, or Deny carrying a
// stable reason code pkg/authz renders into the 403 JSON envelope.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// DenyReason is a stable, logged/returned code identifying which rule (or
// absence of one) produced a denial.
type DenyReason string

const (
	DenyReasonNone                DenyReason = ""
	DenyReasonNoGrant             DenyReason = "no_grant"
	DenyReasonImpersonateRequiresAdminConsole DenyReason = "impersonate_requires_admin_console"
)

// Allow constructs an affirmative Decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny constructs a negative Decision carrying reason.
func Deny(reason DenyReason) Decision { return Decision{Allowed: false, Reason: reason} }

// Decide is Loom's entire authorization core: a pure function, deny by
// default, evaluating the seven rules from/G in order and stopping at
// the first match. It never performs I/O; subject and resource must
// already be fully populated (pkg/authz.BuildSubjectAttrs is responsible
// for that).
func Decide(subject SubjectAttrs, action Action, resource ResourceAttrs) Decision {
	// Rule 1: system admins bypass everything except Impersonate, which
	// always requires its own dedicated flow (never silently granted).
	if subject.IsSystemAdmin && action != ActionImpersonate {
		return Allow()
	}

	// Rule 2: a subject removing themselves from an org/team may always
	// do so; the handler still separately enforces the last-Owner /
	// last-Maintainer invariants before committing the removal.
	if resource.SelfRemoval && (action == ActionManageTeam || action == ActionManageOrg) {
		return Allow()
	}

	// Rule 3: public resources are universally readable.
	if resource.Visibility == VisibilityPublic && action == ActionRead {
		return Allow()
	}

	// Rule 4: the resource-owner's org role maps to a capability set.
	if resource.OrgID != "" {
		switch subject.OrgRoleFor(resource.OrgID) {
		case OrgRoleOwner:
			if action != ActionManagePlatform {
				return Allow()
			}
		case OrgRoleAdmin:
			switch action {
			case ActionRead, ActionWrite, ActionManageOrg, ActionManageTeam:
				return Allow()
			}
		case OrgRoleMember:
			if action == ActionRead && (resource.Visibility == VisibilityOrganization || resource.Visibility == VisibilityPublic) {
				return Allow()
			}
		}
	}

	// Rule 5: team-scoped resources grant Maintainer write/manage, Member read.
	if resource.TeamID != "" {
		switch subject.TeamRoleFor(resource.TeamID) {
		case TeamRoleMaintainer:
			if action == ActionManageTeam || action == ActionWrite || action == ActionRead {
				return Allow()
			}
		case TeamRoleMember:
			if action == ActionRead {
				return Allow()
			}
		}
	}

	// Rule 6: resources explicitly shared with support grant Read to
	// support staff.
	if resource.IsSharedWithSupport && subject.IsSupport && action == ActionRead {
		return Allow()
	}

	// Rule 7: deny by default.
	return Deny(DenyReasonNoGrant)
}
