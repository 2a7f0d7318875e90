package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/teammembership"
	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
)

// TeamService manages team membership lifecycle, mirroring OrgService's
// transactional shape for the equivalent last-Maintainer invariant:
// removing the last Maintainer of a team is rejected the same way.
type TeamService struct {
	client *ent.Client
}

// NewTeamService constructs a TeamService.
func NewTeamService(client *ent.Client) *TeamService {
	return &TeamService{client: client}
}

// RemoveMember removes user from team, refusing to remove the team's last
// Maintainer.
func (s *TeamService) RemoveMember(ctx context.Context, team ids.TeamID, user ids.UserID) error {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	membership, err := tx.TeamMembership.Query().
		Where(teammembership.TeamID(team.String()), teammembership.UserID(user.String())).
		Only(ctx)
	if err != nil {
		return apperr.NotFound("team membership")
	}

	if membership.Role == teammembership.RoleMaintainer {
		maintainerCount, err := tx.TeamMembership.Query().
			Where(teammembership.TeamID(team.String()), teammembership.RoleEQ(teammembership.RoleMaintainer)).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count maintainers: %w", err)
		}
		if maintainerCount <= 1 {
			return apperr.Conflict(apperr.CodeLastMaintainer, "cannot remove the last maintainer of a team")
		}
	}

	if _, err := tx.TeamMembership.Delete().
		Where(teammembership.TeamID(team.String()), teammembership.UserID(user.String())).
		Exec(ctx); err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}

	return tx.Commit()
}

// ChangeRole updates a team member's role, refusing to demote the last
// Maintainer.
func (s *TeamService) ChangeRole(ctx context.Context, team ids.TeamID, user ids.UserID, newRole TeamRole) error {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	membership, err := tx.TeamMembership.Query().
		Where(teammembership.TeamID(team.String()), teammembership.UserID(user.String())).
		Only(ctx)
	if err != nil {
		return apperr.NotFound("team membership")
	}

	if membership.Role == teammembership.RoleMaintainer && newRole != TeamRoleMaintainer {
		maintainerCount, err := tx.TeamMembership.Query().
			Where(teammembership.TeamID(team.String()), teammembership.RoleEQ(teammembership.RoleMaintainer)).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("count maintainers: %w", err)
		}
		if maintainerCount <= 1 {
			return apperr.Conflict(apperr.CodeLastMaintainer, "cannot demote the last maintainer of a team")
		}
	}

	if _, err := tx.TeamMembership.Update().
		Where(teammembership.TeamID(team.String()), teammembership.UserID(user.String())).
		SetRole(teammembership.Role(newRole)).
		Save(ctx); err != nil {
		return fmt.Errorf("change role: %w", err)
	}

	return tx.Commit()
}

// AddMember inserts a new team membership.
func (s *TeamService) AddMember(ctx context.Context, team ids.TeamID, user ids.UserID, role TeamRole) error {
	exists, err := s.client.TeamMembership.Query().
		Where(teammembership.TeamID(team.String()), teammembership.UserID(user.String())).
		Exist(ctx)
	if err != nil {
		return fmt.Errorf("check existing membership: %w", err)
	}
	if exists {
		return apperr.Conflict(apperr.CodeAlreadyMember, "user is already a member of this team")
	}

	if _, err := s.client.TeamMembership.Create().
		SetID(uuid.New().String()).
		SetTeamID(team.String()).
		SetUserID(user.String()).
		SetRole(teammembership.Role(role)).
		Save(ctx); err != nil {
		return fmt.Errorf("add team membership: %w", err)
	}
	return nil
}

// CreateTeam creates a new team and adds creator as its first Maintainer.
func (s *TeamService) CreateTeam(ctx context.Context, org ids.OrgID, name, slug string, creator ids.UserID) (Team, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return Team{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	teamID := uuid.New().String()
	created, err := tx.Team.Create().
		SetID(teamID).
		SetOrgID(org.String()).
		SetName(name).
		SetSlug(slug).
		Save(ctx)
	if err != nil {
		return Team{}, fmt.Errorf("create team: %w", err)
	}

	if _, err := tx.TeamMembership.Create().
		SetID(uuid.New().String()).
		SetTeamID(teamID).
		SetUserID(creator.String()).
		SetRole(teammembership.RoleMaintainer).
		Save(ctx); err != nil {
		return Team{}, fmt.Errorf("add founding maintainer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Team{}, fmt.Errorf("commit: %w", err)
	}

	return Team{
		ID:        ids.TeamID(created.ID),
		OrgID:     org,
		Name:      created.Name,
		Slug:      created.Slug,
		CreatedAt: created.CreatedAt,
		UpdatedAt: created.UpdatedAt,
	}, nil
}
