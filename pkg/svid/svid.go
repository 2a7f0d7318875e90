// Package svid mints and verifies short-lived, SPIFFE-flavored workload
// identity tokens: one for each weaver sandbox a provisioner starts, and
// one for SCIM-provisioned clients calling the identity-sync endpoints.
// Both are JWTs signed with a single server-held HMAC key; the
// distinction between them is purely in issuer/audience/claim shape, not
// in transport or signing mechanism.
package svid

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codeready-toolchain/loom/internal/ids"
)

const (
	weaverIssuer   = "loom-weaver-provisioner"
	weaverAudience = "loom-weaver"

	scimIssuer   = "loom-identity"
	scimAudience = "loom-scim"
)

// WeaverClaims identifies a single weaver sandbox workload: which org and
// (optionally) which repo it was provisioned for, and the thread driving
// it.
type WeaverClaims struct {
	jwt.RegisteredClaims
	WeaverID ids.WeaverID `json:"weaver_id"`
	OrgID    ids.OrgID    `json:"org_id"`
	ThreadID string       `json:"thread_id,omitempty"`
}

// SCIMClaims identifies a SCIM-provisioning client authorized to push
// User/Group payloads for one organization.
type SCIMClaims struct {
	jwt.RegisteredClaims
	OrgID ids.OrgID `json:"org_id"`
}

// Minter signs and verifies both token kinds with a single HMAC key.
type Minter struct {
	key []byte
}

// NewMinter constructs a Minter from a server-held signing key. The key
// should be at least 32 bytes of high-entropy material (an env-configured
// random value, not a password).
func NewMinter(key ids.Secret) *Minter {
	return &Minter{key: []byte(key.Reveal())}
}

// MintWeaverSVID issues a token scoped to one weaver sandbox, valid for ttl.
func (m *Minter) MintWeaverSVID(weaverID ids.WeaverID, orgID ids.OrgID, threadID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := WeaverClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    weaverIssuer,
			Audience:  jwt.ClaimStrings{weaverAudience},
			Subject:   weaverID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		WeaverID: weaverID,
		OrgID:    orgID,
		ThreadID: threadID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("svid: mint weaver SVID: %w", err)
	}
	return signed, nil
}

// VerifyWeaverSVID parses and validates a weaver SVID, rejecting expired
// tokens, wrong issuer/audience, or any signing method other than HMAC.
func (m *Minter) VerifyWeaverSVID(tokenString string) (*WeaverClaims, error) {
	claims := &WeaverClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(weaverIssuer),
		jwt.WithAudience(weaverAudience),
	)
	if err != nil {
		return nil, fmt.Errorf("svid: invalid weaver SVID: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("svid: weaver SVID failed validation")
	}
	return claims, nil
}

// MintSCIMToken issues a bearer token authorizing SCIM provisioning calls
// for one organization.
func (m *Minter) MintSCIMToken(orgID ids.OrgID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SCIMClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    scimIssuer,
			Audience:  jwt.ClaimStrings{scimAudience},
			Subject:   orgID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		OrgID: orgID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("svid: mint SCIM token: %w", err)
	}
	return signed, nil
}

// VerifySCIMToken parses and validates a SCIM bearer token.
func (m *Minter) VerifySCIMToken(tokenString string) (*SCIMClaims, error) {
	claims := &SCIMClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(scimIssuer),
		jwt.WithAudience(scimAudience),
	)
	if err != nil {
		return nil, fmt.Errorf("svid: invalid SCIM token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("svid: SCIM token failed validation")
	}
	return claims, nil
}

func (m *Minter) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("svid: unexpected signing method %v", token.Header["alg"])
	}
	return m.key, nil
}
