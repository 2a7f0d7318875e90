package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/invitation"
	"github.com/codeready-toolchain/loom/ent/orgmembership"
	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
)

// InvitationTTL is how long an invitation remains acceptable after
// creation.
const InvitationTTL = 7 * 24 * time.Hour

// InvitationService issues and redeems org invitations, grounded on the
// same ent transactional shape as OrgService.
type InvitationService struct {
	client *ent.Client
	orgs   *OrgService
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(client *ent.Client, orgs *OrgService) *InvitationService {
	return &InvitationService{client: client, orgs: orgs}
}

// rawToken mints a URL-safe invitation token, returning both the raw value
// (sent to the invitee, never persisted) and its SHA-256 hash (the only
// form stored at rest).
func rawToken() (raw, hash string) {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	raw = hex.EncodeToString(buf)
	sum := sha256.Sum256([]byte(raw))
	hash = hex.EncodeToString(sum[:])
	return raw, hash
}

// Create issues a new invitation to email for org at the given role.
// Returns the raw token to relay to the invitee out-of-band.
func (s *InvitationService) Create(ctx context.Context, org ids.OrgID, email string, role OrgRole, invitedBy ids.UserID) (Invitation, string, error) {
	raw, hash := rawToken()
	now := timeNow()

	created, err := s.client.Invitation.Create().
		SetID(uuid.New().String()).
		SetOrgID(org.String()).
		SetEmail(email).
		SetRole(invitation.Role(role)).
		SetInvitedBy(invitedBy.String()).
		SetTokenHash(hash).
		SetExpiresAt(now.Add(InvitationTTL)).
		Save(ctx)
	if err != nil {
		return Invitation{}, "", fmt.Errorf("create invitation: %w", err)
	}

	return toInvitation(created), raw, nil
}

// Accept redeems a raw invitation token for user, adding them to the
// invitation's org at its role, and marking the invitation accepted.
// Rejects invitations that are expired or already accepted.
func (s *InvitationService) Accept(ctx context.Context, rawTokenValue string, user ids.UserID) (Invitation, error) {
	sum := sha256.Sum256([]byte(rawTokenValue))
	hash := hex.EncodeToString(sum[:])

	tx, err := s.client.Tx(ctx)
	if err != nil {
		return Invitation{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	inv, err := tx.Invitation.Query().Where(invitation.TokenHash(hash)).Only(ctx)
	if err != nil {
		return Invitation{}, apperr.NotFound("invitation")
	}

	model := toInvitation(inv)
	now := timeNow()
	if !model.IsValid(now) {
		return Invitation{}, apperr.Conflict(apperr.CodeInvitationInvalid, "invitation has expired or was already accepted")
	}

	exists, err := tx.OrgMembership.Query().
		Where(orgmembership.OrgID(inv.OrgID), orgmembership.UserID(user.String())).
		Exist(ctx)
	if err != nil {
		return Invitation{}, fmt.Errorf("check existing membership: %w", err)
	}
	if !exists {
		if _, err := tx.OrgMembership.Create().
			SetID(uuid.New().String()).
			SetOrgID(inv.OrgID).
			SetUserID(user.String()).
			SetRole(orgmembership.Role(model.Role)).
			Save(ctx); err != nil {
			return Invitation{}, fmt.Errorf("add member from invitation: %w", err)
		}
	}

	updated, err := tx.Invitation.UpdateOne(inv).SetAcceptedAt(now).Save(ctx)
	if err != nil {
		return Invitation{}, fmt.Errorf("mark invitation accepted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Invitation{}, fmt.Errorf("commit: %w", err)
	}

	return toInvitation(updated), nil
}

// ListForOrg returns every outstanding invitation for org, newest first.
func (s *InvitationService) ListForOrg(ctx context.Context, org ids.OrgID) ([]Invitation, error) {
	rows, err := s.client.Invitation.Query().
		Where(invitation.OrgID(org.String())).
		Order(ent.Desc(invitation.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	out := make([]Invitation, 0, len(rows))
	for _, row := range rows {
		out = append(out, toInvitation(row))
	}
	return out, nil
}

func toInvitation(e *ent.Invitation) Invitation {
	return Invitation{
		ID:         ids.InvitationID(e.ID),
		OrgID:      ids.OrgID(e.OrgID),
		Email:      e.Email,
		Role:       OrgRole(e.Role),
		InvitedBy:  ids.UserID(e.InvitedBy),
		TokenHash:  e.TokenHash,
		CreatedAt:  e.CreatedAt,
		ExpiresAt:  e.ExpiresAt,
		AcceptedAt: e.AcceptedAt,
	}
}

// timeNow is a seam so tests can freeze invitation expiry/acceptance
// timestamps without reaching into service internals.
var timeNow = time.Now
