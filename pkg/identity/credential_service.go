package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/apikey"
	"github.com/codeready-toolchain/loom/ent/session"
	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
)

// SessionTTL is how long an issued web session token remains valid.
const SessionTTL = 30 * 24 * time.Hour

// CredentialService issues and verifies the two bearer-token credential
// kinds the HTTP surface accepts: web sessions and long-lived API keys.
// Both are minted by the package's rawToken (invitation_service.go), the
// same raw-token/SHA-256-hash-at-rest shape invitations use.
type CredentialService struct {
	client *ent.Client
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(client *ent.Client) *CredentialService {
	return &CredentialService{client: client}
}

// CreateSession issues a new session for user, returning the raw token to
// hand back to the client (e.g. as a cookie value); only its hash is
// persisted.
func (s *CredentialService) CreateSession(ctx context.Context, user ids.UserID) (string, error) {
	raw, hash := rawToken()
	_, err := s.client.Session.Create().
		SetID(uuid.New().String()).
		SetUserID(user.String()).
		SetTokenHash(hash).
		SetExpiresAt(time.Now().Add(SessionTTL)).
		Save(ctx)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return raw, nil
}

// VerifySession resolves a raw session token to its owning user, rejecting
// expired or revoked sessions.
func (s *CredentialService) VerifySession(ctx context.Context, rawTokenValue string) (ids.UserID, error) {
	hash := hashToken(rawTokenValue)
	row, err := s.client.Session.Query().Where(session.TokenHash(hash)).Only(ctx)
	if err != nil {
		return "", apperr.Unauthorized("invalid or expired session")
	}
	if row.RevokedAt != nil {
		return "", apperr.Unauthorized("session revoked")
	}
	if time.Now().After(row.ExpiresAt) {
		return "", apperr.Unauthorized("session expired")
	}
	return ids.UserID(row.UserID), nil
}

// RevokeSession marks a session revoked by its raw token.
func (s *CredentialService) RevokeSession(ctx context.Context, rawTokenValue string) error {
	hash := hashToken(rawTokenValue)
	row, err := s.client.Session.Query().Where(session.TokenHash(hash)).Only(ctx)
	if err != nil {
		return apperr.NotFound("session not found")
	}
	now := time.Now()
	_, err = s.client.Session.UpdateOneID(row.ID).SetRevokedAt(now).Save(ctx)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// CreateAPIKey issues a new API key, owned by exactly one of user or org.
func (s *CredentialService) CreateAPIKey(ctx context.Context, name string, owner ids.UserID, ownerOrg ids.OrgID) (string, error) {
	raw, hash := rawToken()
	create := s.client.APIKey.Create().
		SetID(uuid.New().String()).
		SetName(name).
		SetTokenHash(hash)
	if owner != "" {
		create = create.SetOwnerUserID(owner.String())
	}
	if ownerOrg != "" {
		create = create.SetOwnerOrgID(ownerOrg.String())
	}
	if _, err := create.Save(ctx); err != nil {
		return "", fmt.Errorf("create api key: %w", err)
	}
	return raw, nil
}

// VerifyAPIKey resolves a raw API key to its owning user (if any),
// rejecting revoked keys. Org-owned keys with no user owner return an
// empty UserID; callers authorize those against the key's owning org
// directly instead of a subject's personal roles.
func (s *CredentialService) VerifyAPIKey(ctx context.Context, rawTokenValue string) (ids.UserID, error) {
	hash := hashToken(rawTokenValue)
	row, err := s.client.APIKey.Query().Where(apikey.TokenHash(hash)).Only(ctx)
	if err != nil {
		return "", apperr.Unauthorized("invalid api key")
	}
	if row.RevokedAt != nil {
		return "", apperr.Unauthorized("api key revoked")
	}
	if row.OwnerUserID == nil {
		return "", nil
	}
	return ids.UserID(*row.OwnerUserID), nil
}

// RevokeAPIKey revokes an API key by id.
func (s *CredentialService) RevokeAPIKey(ctx context.Context, id ids.APIKeyID) error {
	now := time.Now()
	_, err := s.client.APIKey.UpdateOneID(id.String()).SetRevokedAt(now).Save(ctx)
	if err != nil {
		return apperr.NotFound("api key not found")
	}
	return nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
