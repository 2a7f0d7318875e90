package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/joinrequest"
	"github.com/codeready-toolchain/loom/ent/orgmembership"
	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
)

// JoinRequestService lets a user request to join a public/unlisted org and
// lets an org admin decide it.
type JoinRequestService struct {
	client *ent.Client
}

// NewJoinRequestService constructs a JoinRequestService.
func NewJoinRequestService(client *ent.Client) *JoinRequestService {
	return &JoinRequestService{client: client}
}

// Create files a new join request.
func (s *JoinRequestService) Create(ctx context.Context, org ids.OrgID, user ids.UserID) (JoinRequest, error) {
	pending, err := s.client.JoinRequest.Query().
		Where(joinrequest.OrgID(org.String()), joinrequest.UserID(user.String()), joinrequest.HandledAtIsNil()).
		Exist(ctx)
	if err != nil {
		return JoinRequest{}, fmt.Errorf("check pending request: %w", err)
	}
	if pending {
		return JoinRequest{}, apperr.Conflict(apperr.CodeConflict, "a join request is already pending")
	}

	created, err := s.client.JoinRequest.Create().
		SetID(uuid.New().String()).
		SetOrgID(org.String()).
		SetUserID(user.String()).
		Save(ctx)
	if err != nil {
		return JoinRequest{}, fmt.Errorf("create join request: %w", err)
	}
	return toJoinRequest(created), nil
}

// Decide approves or rejects a pending join request, adding the requester
// as a Member on approval.
func (s *JoinRequestService) Decide(ctx context.Context, requestID ids.JoinRequestID, handledBy ids.UserID, approve bool) (JoinRequest, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return JoinRequest{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	req, err := tx.JoinRequest.Get(ctx, requestID.String())
	if err != nil {
		return JoinRequest{}, apperr.NotFound("join request")
	}
	if req.HandledAt != nil {
		return JoinRequest{}, apperr.Conflict(apperr.CodeConflict, "join request already handled")
	}

	now := timeNow()
	updated, err := tx.JoinRequest.UpdateOne(req).
		SetHandledAt(now).
		SetHandledBy(handledBy.String()).
		SetApproved(approve).
		Save(ctx)
	if err != nil {
		return JoinRequest{}, fmt.Errorf("decide join request: %w", err)
	}

	if approve {
		exists, err := tx.OrgMembership.Query().
			Where(orgmembership.OrgID(req.OrgID), orgmembership.UserID(req.UserID)).
			Exist(ctx)
		if err != nil {
			return JoinRequest{}, fmt.Errorf("check existing membership: %w", err)
		}
		if !exists {
			if _, err := tx.OrgMembership.Create().
				SetID(uuid.New().String()).
				SetOrgID(req.OrgID).
				SetUserID(req.UserID).
				SetRole(orgmembership.RoleMember).
				Save(ctx); err != nil {
				return JoinRequest{}, fmt.Errorf("add approved member: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return JoinRequest{}, fmt.Errorf("commit: %w", err)
	}

	return toJoinRequest(updated), nil
}

// ListPendingForOrg returns every unhandled join request for org.
func (s *JoinRequestService) ListPendingForOrg(ctx context.Context, org ids.OrgID) ([]JoinRequest, error) {
	rows, err := s.client.JoinRequest.Query().
		Where(joinrequest.OrgID(org.String()), joinrequest.HandledAtIsNil()).
		Order(ent.Desc(joinrequest.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list join requests: %w", err)
	}
	out := make([]JoinRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, toJoinRequest(row))
	}
	return out, nil
}

func toJoinRequest(e *ent.JoinRequest) JoinRequest {
	jr := JoinRequest{
		ID:        ids.JoinRequestID(e.ID),
		OrgID:     ids.OrgID(e.OrgID),
		UserID:    ids.UserID(e.UserID),
		CreatedAt: e.CreatedAt,
		HandledAt: e.HandledAt,
		Approved:  e.Approved,
	}
	if e.HandledBy != nil {
		handledBy := ids.UserID(*e.HandledBy)
		jr.HandledBy = &handledBy
	}
	return jr
}
