package flags

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/sdkkey"
	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
)

// argon2Params are deliberately modest: SDK-key verification runs once per
// connection establishment, not per request, so correctness and portability
// matter more here than squeezing out the last millisecond.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// KeyService issues and verifies Argon2-hashed SDK keys.
type KeyService struct {
	client *ent.Client
}

// NewKeyService constructs a KeyService.
func NewKeyService(client *ent.Client) *KeyService {
	return &KeyService{client: client}
}

// IssueKey mints a new raw key, stores only its Argon2 hash, and returns
// both the persisted SDKKey record and the raw key - the only time the raw
// key is ever available.
func (s *KeyService) IssueKey(ctx context.Context, env ids.EnvironmentID, keyType KeyType) (SDKKey, string, error) {
	raw, err := newRawKey()
	if err != nil {
		return SDKKey{}, "", fmt.Errorf("generate key: %w", err)
	}
	hash, err := hashKey(raw)
	if err != nil {
		return SDKKey{}, "", fmt.Errorf("hash key: %w", err)
	}

	row, err := s.client.SDKKey.Create().
		SetID(uuid.NewString()).
		SetEnvironmentID(env.String()).
		SetKeyType(sdkkey.KeyType(keyType)).
		SetKeyHash(hash).
		Save(ctx)
	if err != nil {
		return SDKKey{}, "", fmt.Errorf("create sdk key: %w", err)
	}
	return fromEntSDKKey(row), raw, nil
}

// Authenticate resolves the unrevoked keys for an environment and verifies
// the raw key against each stored hash: O(n) in keys per environment,
// acceptable at connection-start frequency. The first match's last-used
// timestamp is updated.
func (s *KeyService) Authenticate(ctx context.Context, env ids.EnvironmentID, rawKey string) (SDKKey, error) {
	candidates, err := s.client.SDKKey.Query().
		Where(sdkkey.EnvironmentID(env.String()), sdkkey.RevokedAtIsNil()).
		All(ctx)
	if err != nil {
		return SDKKey{}, fmt.Errorf("query sdk keys: %w", err)
	}

	for _, row := range candidates {
		if verifyKey(rawKey, row.KeyHash) {
			now := time.Now().UTC()
			updated, err := row.Update().SetLastUsedAt(now).Save(ctx)
			if err != nil {
				return SDKKey{}, fmt.Errorf("update last_used_at: %w", err)
			}
			return fromEntSDKKey(updated), nil
		}
	}
	return SDKKey{}, apperr.Unauthorized("invalid or revoked sdk key")
}

// RevokeKey marks a key revoked; Authenticate will no longer consider it.
func (s *KeyService) RevokeKey(ctx context.Context, id ids.SDKKeyID) error {
	now := time.Now().UTC()
	if _, err := s.client.SDKKey.UpdateOneID(id.String()).SetRevokedAt(now).Save(ctx); err != nil {
		return fmt.Errorf("revoke sdk key: %w", err)
	}
	return nil
}

func newRawKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "loom_sdk_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashKey produces "hex(salt):hex(argon2id(key, salt))", self-describing
// enough that verifyKey never needs separately-stored parameters.
func hashKey(raw string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	sum := argon2.IDKey([]byte(raw), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(sum), nil
}

func verifyKey(raw, stored string) bool {
	saltHex, sumHex, ok := splitHash(stored)
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(sumHex)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(raw), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func splitHash(stored string) (salt, sum string, ok bool) {
	return strings.Cut(stored, ":")
}

func fromEntSDKKey(row *ent.SDKKey) SDKKey {
	return SDKKey{
		ID:            ids.SDKKeyID(row.ID),
		EnvironmentID: ids.EnvironmentID(row.EnvironmentID),
		KeyType:       KeyType(row.KeyType),
		KeyHash:       row.KeyHash,
		LastUsedAt:    row.LastUsedAt,
		RevokedAt:     row.RevokedAt,
		CreatedAt:     row.CreatedAt,
	}
}
