package authz

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/orgmembership"
	"github.com/codeready-toolchain/loom/ent/teammembership"
	"github.com/codeready-toolchain/loom/ent/user"
	"github.com/codeready-toolchain/loom/internal/ids"
	"github.com/codeready-toolchain/loom/pkg/identity"
)

// EntMembershipLookup implements MembershipLookup directly against the
// generated ent client, grounded on the same query shapes pkg/identity's
// services already use.
type EntMembershipLookup struct {
	client *ent.Client
}

// NewEntMembershipLookup constructs an EntMembershipLookup.
func NewEntMembershipLookup(client *ent.Client) *EntMembershipLookup {
	return &EntMembershipLookup{client: client}
}

func (l *EntMembershipLookup) OrgMemberships(ctx context.Context, u ids.UserID) (map[ids.OrgID]identity.OrgRole, error) {
	rows, err := l.client.OrgMembership.Query().Where(orgmembership.UserID(u.String())).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query org memberships: %w", err)
	}
	out := make(map[ids.OrgID]identity.OrgRole, len(rows))
	for _, row := range rows {
		out[ids.OrgID(row.OrgID)] = identity.OrgRole(row.Role)
	}
	return out, nil
}

func (l *EntMembershipLookup) TeamMemberships(ctx context.Context, u ids.UserID) (map[ids.TeamID]identity.TeamRole, error) {
	rows, err := l.client.TeamMembership.Query().Where(teammembership.UserID(u.String())).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query team memberships: %w", err)
	}
	out := make(map[ids.TeamID]identity.TeamRole, len(rows))
	for _, row := range rows {
		out[ids.TeamID(row.TeamID)] = identity.TeamRole(row.Role)
	}
	return out, nil
}

func (l *EntMembershipLookup) IsSystemAdmin(ctx context.Context, u ids.UserID) (bool, error) {
	row, err := l.client.User.Query().Where(user.ID(u.String())).Only(ctx)
	if err != nil {
		return false, fmt.Errorf("query user: %w", err)
	}
	return row.IsSystemAdmin, nil
}

func (l *EntMembershipLookup) IsSupport(ctx context.Context, u ids.UserID) (bool, error) {
	row, err := l.client.User.Query().Where(user.ID(u.String())).Only(ctx)
	if err != nil {
		return false, fmt.Errorf("query user: %w", err)
	}
	return row.IsSupport, nil
}

func (l *EntMembershipLookup) IsAuditor(ctx context.Context, u ids.UserID) (bool, error) {
	row, err := l.client.User.Query().Where(user.ID(u.String())).Only(ctx)
	if err != nil {
		return false, fmt.Errorf("query user: %w", err)
	}
	return row.IsAuditor, nil
}
