package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/organization"
	"github.com/codeready-toolchain/loom/ent/orgmembership"
	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
)

// OrgService manages organization membership lifecycle: a constructor
// taking *ent.Client, methods returning typed errors, invariants enforced
// transactionally.
type OrgService struct {
	client *ent.Client
}

// NewOrgService constructs an OrgService.
func NewOrgService(client *ent.Client) *OrgService {
	return &OrgService{client: client}
}

// Get loads a single organization by id.
func (s *OrgService) Get(ctx context.Context, id ids.OrgID) (Organization, error) {
	row, err := s.client.Organization.Get(ctx, id.String())
	if err != nil {
		return Organization{}, apperr.NotFound("organization")
	}
	return Organization{
		ID:         ids.OrgID(row.ID),
		Name:       row.Name,
		Slug:       row.Slug,
		Visibility: OrgVisibility(row.Visibility),
		IsPersonal: row.IsPersonal,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		DeletedAt:  row.DeletedAt,
	}, nil
}

// ListMembers returns every membership row for org.
func (s *OrgService) ListMembers(ctx context.Context, org ids.OrgID) ([]OrgMembership, error) {
	rows, err := s.client.OrgMembership.Query().Where(orgmembership.OrgID(org.String())).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list org memberships: %w", err)
	}
	out := make([]OrgMembership, 0, len(rows))
	for _, row := range rows {
		out = append(out, OrgMembership{
			OrgID:         ids.OrgID(row.OrgID),
			UserID:        ids.UserID(row.UserID),
			Role:          OrgRole(row.Role),
			ProvisionedBy: row.ProvisionedBy,
			CreatedAt:     row.CreatedAt,
		})
	}
	return out, nil
}

// RemoveMember removes user from org, refusing to remove the org's last
// Owner: removing the last Owner of a non-personal org is rejected
// without mutating anything.
func (s *OrgService) RemoveMember(ctx context.Context, org ids.OrgID, user ids.UserID) error {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	membership, err := tx.OrgMembership.Query().
		Where(orgmembership.OrgID(org.String()), orgmembership.UserID(user.String())).
		Only(ctx)
	if err != nil {
		return apperr.NotFound("org membership")
	}

	if membership.Role == orgmembership.RoleOwner {
		ownerCount, err := tx.OrgMembership.Query().
			Where(orgmembership.OrgID(org.String()), orgmembership.RoleEQ(orgmembership.RoleOwner)).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count owners: %w", err)
		}
		if ownerCount <= 1 {
			return apperr.Conflict(apperr.CodeLastOwner, "cannot remove the last owner of an organization")
		}
	}

	if _, err := tx.OrgMembership.Delete().
		Where(orgmembership.OrgID(org.String()), orgmembership.UserID(user.String())).
		Exec(ctx); err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}

	return tx.Commit()
}

// ChangeRole updates a member's role, refusing to demote the last Owner.
func (s *OrgService) ChangeRole(ctx context.Context, org ids.OrgID, user ids.UserID, newRole OrgRole) error {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	membership, err := tx.OrgMembership.Query().
		Where(orgmembership.OrgID(org.String()), orgmembership.UserID(user.String())).
		Only(ctx)
	if err != nil {
		return apperr.NotFound("org membership")
	}

	if membership.Role == orgmembership.RoleOwner && newRole != OrgRoleOwner {
		ownerCount, err := tx.OrgMembership.Query().
			Where(orgmembership.OrgID(org.String()), orgmembership.RoleEQ(orgmembership.RoleOwner)).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count owners: %w", err)
		}
		if ownerCount <= 1 {
			return apperr.Conflict(apperr.CodeLastOwner, "cannot demote the last owner of an organization")
		}
	}

	if _, err := tx.OrgMembership.Update().
		Where(orgmembership.OrgID(org.String()), orgmembership.UserID(user.String())).
		SetRole(orgmembership.Role(newRole)).
		Save(ctx); err != nil {
		return fmt.Errorf("change role: %w", err)
	}

	return tx.Commit()
}

// AddMember inserts a new org membership. Returns apperr.CodeAlreadyMember
// if the user already belongs to the org.
func (s *OrgService) AddMember(ctx context.Context, org ids.OrgID, user ids.UserID, role OrgRole, provisionedBy *string) error {
	exists, err := s.client.OrgMembership.Query().
		Where(orgmembership.OrgID(org.String()), orgmembership.UserID(user.String())).
		Exist(ctx)
	if err != nil {
		return fmt.Errorf("check existing membership: %w", err)
	}
	if exists {
		return apperr.Conflict(apperr.CodeAlreadyMember, "user is already a member of this organization")
	}

	create := s.client.OrgMembership.Create().
		SetID(uuid.New().String()).
		SetOrgID(org.String()).
		SetUserID(user.String()).
		SetRole(orgmembership.Role(role))
	if provisionedBy != nil {
		create = create.SetProvisionedBy(*provisionedBy)
	}
	if _, err := create.Save(ctx); err != nil {
		return fmt.Errorf("add org membership: %w", err)
	}
	return nil
}

// CreateOrganization creates a non-personal organization and adds creator
// as its founding Owner.
func (s *OrgService) CreateOrganization(ctx context.Context, name, slug string, visibility OrgVisibility, creator ids.UserID) (Organization, error) {
	return s.create(ctx, name, slug, visibility, false, creator)
}

// CreatePersonalOrg auto-creates the single-member personal org every user
// receives on signup.
func (s *OrgService) CreatePersonalOrg(ctx context.Context, slug string, owner ids.UserID) (Organization, error) {
	return s.create(ctx, slug, slug, OrgVisibilityPrivate, true, owner)
}

func (s *OrgService) create(ctx context.Context, name, slug string, visibility OrgVisibility, isPersonal bool, owner ids.UserID) (Organization, error) {
	exists, err := s.client.Organization.Query().
		Where(organization.Slug(slug), organization.DeletedAtIsNil()).
		Exist(ctx)
	if err != nil {
		return Organization{}, fmt.Errorf("check slug: %w", err)
	}
	if exists {
		return Organization{}, apperr.Conflict(apperr.CodeSlugExists, "organization slug already taken")
	}

	tx, err := s.client.Tx(ctx)
	if err != nil {
		return Organization{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	orgID := uuid.New().String()
	created, err := tx.Organization.Create().
		SetID(orgID).
		SetName(name).
		SetSlug(slug).
		SetVisibility(organization.Visibility(visibility)).
		SetIsPersonal(isPersonal).
		Save(ctx)
	if err != nil {
		return Organization{}, fmt.Errorf("create organization: %w", err)
	}

	if _, err := tx.OrgMembership.Create().
		SetID(uuid.New().String()).
		SetOrgID(orgID).
		SetUserID(owner.String()).
		SetRole(orgmembership.RoleOwner).
		Save(ctx); err != nil {
		return Organization{}, fmt.Errorf("add founding owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Organization{}, fmt.Errorf("commit: %w", err)
	}

	return Organization{
		ID:         ids.OrgID(created.ID),
		Name:       created.Name,
		Slug:       created.Slug,
		Visibility: OrgVisibility(created.Visibility),
		IsPersonal: created.IsPersonal,
		CreatedAt:  created.CreatedAt,
		UpdatedAt:  created.UpdatedAt,
	}, nil
}

// SoftDelete marks a non-personal organization deleted, starting the
// 90-day restore grace window. Personal orgs are never deletable
// independently of their owning user.
func (s *OrgService) SoftDelete(ctx context.Context, id ids.OrgID) error {
	org, err := s.client.Organization.Get(ctx, id.String())
	if err != nil {
		return apperr.NotFound("organization")
	}
	if org.IsPersonal {
		return apperr.InvalidInput("org", "personal organizations cannot be deleted directly")
	}
	if _, err := s.client.Organization.UpdateOne(org).SetDeletedAt(timeNow()).Save(ctx); err != nil {
		return fmt.Errorf("soft-delete organization: %w", err)
	}
	return nil
}

// Restore reverses a soft-delete if still within the restore grace window.
func (s *OrgService) Restore(ctx context.Context, id ids.OrgID) error {
	org, err := s.client.Organization.Get(ctx, id.String())
	if err != nil {
		return apperr.NotFound("organization")
	}
	if org.DeletedAt == nil {
		return apperr.Conflict(apperr.CodeConflict, "organization is not deleted")
	}
	if timeNow().After(org.DeletedAt.Add(SoftDeleteRestoreGraceDays * 24 * time.Hour)) {
		return apperr.Conflict(apperr.CodeConflict, "restore grace period has elapsed")
	}
	if _, err := s.client.Organization.UpdateOne(org).ClearDeletedAt().Save(ctx); err != nil {
		return fmt.Errorf("restore organization: %w", err)
	}
	return nil
}

// EnsureMirrorsOrg returns the system "mirrors" org used to house
// on-demand external mirror repos, creating it (ownerless, system-admin
// managed) on first use if it doesn't yet exist.
func (s *OrgService) EnsureMirrorsOrg(ctx context.Context) (Organization, error) {
	existing, err := s.client.Organization.Query().Where(organization.Slug(MirrorsOrgSlug)).Only(ctx)
	if err == nil {
		return Organization{
			ID:         ids.OrgID(existing.ID),
			Name:       existing.Name,
			Slug:       existing.Slug,
			Visibility: OrgVisibility(existing.Visibility),
			IsPersonal: existing.IsPersonal,
			CreatedAt:  existing.CreatedAt,
			UpdatedAt:  existing.UpdatedAt,
		}, nil
	}
	if !ent.IsNotFound(err) {
		return Organization{}, fmt.Errorf("query mirrors org: %w", err)
	}

	orgID := uuid.New().String()
	created, err := s.client.Organization.Create().
		SetID(orgID).
		SetName("Mirrors").
		SetSlug(MirrorsOrgSlug).
		SetVisibility(organization.VisibilityPrivate).
		SetIsPersonal(false).
		Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return s.EnsureMirrorsOrg(ctx)
		}
		return Organization{}, fmt.Errorf("create mirrors org: %w", err)
	}

	return Organization{
		ID:         ids.OrgID(created.ID),
		Name:       created.Name,
		Slug:       created.Slug,
		Visibility: OrgVisibility(created.Visibility),
		IsPersonal: created.IsPersonal,
		CreatedAt:  created.CreatedAt,
		UpdatedAt:  created.UpdatedAt,
	}, nil
}
