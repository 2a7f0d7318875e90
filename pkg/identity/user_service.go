package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/user"
	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
)

// UserService manages user lifecycle, including the auto-created personal
// organization every user receives on signup.
type UserService struct {
	client *ent.Client
	orgs   *OrgService
}

// NewUserService constructs a UserService.
func NewUserService(client *ent.Client, orgs *OrgService) *UserService {
	return &UserService{client: client, orgs: orgs}
}

// Create provisions a new user and their personal org in one transaction-
// adjacent sequence: the user row commits first (it is the stable identity
// anchor), then the personal org is created with the user as founding
// Owner. personalOrgSlug must already be validated as available by the
// caller (mirrors the slug-reservation checks the handler layer performs
// before calling here).
func (s *UserService) Create(ctx context.Context, displayName, personalOrgSlug string) (User, Organization, error) {
	created, err := s.client.User.Create().
		SetID(uuid.New().String()).
		SetDisplayName(displayName).
		Save(ctx)
	if err != nil {
		return User{}, Organization{}, fmt.Errorf("create user: %w", err)
	}

	u := toUser(created)
	org, err := s.orgs.CreatePersonalOrg(ctx, personalOrgSlug, u.ID)
	if err != nil {
		return User{}, Organization{}, fmt.Errorf("create personal org: %w", err)
	}

	return u, org, nil
}

// Get loads a single user by id.
func (s *UserService) Get(ctx context.Context, id ids.UserID) (User, error) {
	row, err := s.client.User.Get(ctx, id.String())
	if err != nil {
		return User{}, apperr.NotFound("user")
	}
	return toUser(row), nil
}

// FindByEmail loads the user with the given primary_email, if any. Used
// by identity-sync adapters (e.g. SCIM) that key users by email rather
// than by internal id.
func (s *UserService) FindByEmail(ctx context.Context, email string) (User, bool, error) {
	row, err := s.client.User.Query().Where(user.PrimaryEmail(email)).Only(ctx)
	if ent.IsNotFound(err) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("find user by email: %w", err)
	}
	return toUser(row), true, nil
}

// SetEmail sets a user's primary_email, e.g. from an identity-sync feed.
func (s *UserService) SetEmail(ctx context.Context, id ids.UserID, email string) (User, error) {
	row, err := s.client.User.UpdateOneID(id.String()).SetPrimaryEmail(email).Save(ctx)
	if err != nil {
		return User{}, fmt.Errorf("set user email: %w", err)
	}
	return toUser(row), nil
}

// SoftDelete marks a user deleted, starting the 30-day restore grace
// window.
func (s *UserService) SoftDelete(ctx context.Context, id ids.UserID) error {
	now := timeNow()
	n, err := s.client.User.Update().
		Where(user.ID(id.String()), user.DeletedAtIsNil()).
		SetDeletedAt(now).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("soft-delete user: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

// Restore reverses a soft-delete if still within the restore grace window.
func (s *UserService) Restore(ctx context.Context, id ids.UserID) error {
	u, err := s.client.User.Get(ctx, id.String())
	if err != nil {
		return apperr.NotFound("user")
	}
	if u.DeletedAt == nil {
		return apperr.Conflict(apperr.CodeConflict, "user is not deleted")
	}
	if timeNow().After(u.DeletedAt.Add(UserSoftDeleteRestoreGraceDays * 24 * time.Hour)) {
		return apperr.Conflict(apperr.CodeConflict, "restore grace period has elapsed")
	}
	if _, err := s.client.User.UpdateOne(u).ClearDeletedAt().Save(ctx); err != nil {
		return fmt.Errorf("restore user: %w", err)
	}
	return nil
}

func toUser(e *ent.User) User {
	return User{
		ID:            ids.UserID(e.ID),
		DisplayName:   e.DisplayName,
		Username:      e.Username,
		PrimaryEmail:  e.PrimaryEmail,
		EmailVisible:  e.EmailVisible,
		AvatarURL:     e.AvatarURL,
		IsSystemAdmin: e.IsSystemAdmin,
		IsSupport:     e.IsSupport,
		IsAuditor:     e.IsAuditor,
		Locale:        e.Locale,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
		DeletedAt:     e.DeletedAt,
	}
}
