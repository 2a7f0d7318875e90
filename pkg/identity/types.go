// Package identity implements Loom's identity and access model: users,
// organizations, teams, memberships, invitations, join requests, and
// credentials.
package identity

import (
	"time"

	"github.com/codeready-toolchain/loom/internal/ids"
)

// OrgVisibility mirrors the Organization.visibility enum.
type OrgVisibility string

const (
	OrgVisibilityPublic   OrgVisibility = "public"
	OrgVisibilityUnlisted OrgVisibility = "unlisted"
	OrgVisibilityPrivate  OrgVisibility = "private"
)

// OrgRole mirrors OrgMembership.role.
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "owner"
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleMember OrgRole = "member"
)

// TeamRole mirrors TeamMembership.role.
type TeamRole string

const (
	TeamRoleMaintainer TeamRole = "maintainer"
	TeamRoleMember     TeamRole = "member"
)

// User projects the User entity.
type User struct {
	ID             ids.UserID
	DisplayName    string
	Username       *string
	PrimaryEmail   *string
	EmailVisible   bool
	AvatarURL      *string
	IsSystemAdmin  bool
	IsSupport      bool
	IsAuditor      bool
	Locale         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Organization projects the Organization entity.
type Organization struct {
	ID         ids.OrgID
	Name       string
	Slug       string
	Visibility OrgVisibility
	IsPersonal bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// SoftDeleteRestoreGraceDays is the 90-day restore window for orgs.
const SoftDeleteRestoreGraceDays = 90

// UserSoftDeleteRestoreGraceDays is the 30-day restore window for users.
const UserSoftDeleteRestoreGraceDays = 30

// OrgMembership projects the OrgMembership entity.
type OrgMembership struct {
	OrgID         ids.OrgID
	UserID        ids.UserID
	Role          OrgRole
	ProvisionedBy *string
	CreatedAt     time.Time
}

// Team projects the Team entity.
type Team struct {
	ID        ids.TeamID
	OrgID     ids.OrgID
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TeamMembership projects the TeamMembership entity.
type TeamMembership struct {
	TeamID    ids.TeamID
	UserID    ids.UserID
	Role      TeamRole
	CreatedAt time.Time
}

// Invitation projects the Invitation entity.
type Invitation struct {
	ID         ids.InvitationID
	OrgID      ids.OrgID
	Email      string
	Role       OrgRole
	InvitedBy  ids.UserID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	AcceptedAt *time.Time
}

// IsValid reports whether the invitation can still be accepted: not
// accepted yet and not expired.
func (i Invitation) IsValid(now time.Time) bool {
	return i.AcceptedAt == nil && now.Before(i.ExpiresAt)
}

// JoinRequest projects the JoinRequest entity.
type JoinRequest struct {
	ID        ids.JoinRequestID
	OrgID     ids.OrgID
	UserID    ids.UserID
	CreatedAt time.Time
	HandledAt *time.Time
	HandledBy *ids.UserID
	Approved  *bool
}

// MirrorsOrgSlug is the system org auto-created for on-demand external
// mirrors.
const MirrorsOrgSlug = "mirrors"
