package secrets

import (
	"fmt"
	"strings"

	"filippo.io/age"
)

// KEK is the server's key-encrypting key: an age X25519 identity every
// Secret envelope is sealed to and unsealed with. Callers load or generate
// one at startup (from an env var, a mounted file, or a KMS-backed secret
// store outside this package's scope) and hand it to NewStore.
type KEK struct {
	identity  *age.X25519Identity
	recipient string
}

// LoadKEK parses a previously generated age identity string (the
// "AGE-SECRET-KEY-..." form age.GenerateX25519Identity produces).
func LoadKEK(identityStr string) (*KEK, error) {
	identityStr = strings.TrimSpace(identityStr)
	if identityStr == "" {
		return nil, fmt.Errorf("secrets: empty KEK identity")
	}
	identity, err := age.ParseX25519Identity(identityStr)
	if err != nil {
		return nil, fmt.Errorf("secrets: invalid KEK identity: %w", err)
	}
	return &KEK{identity: identity, recipient: identity.Recipient().String()}, nil
}

// GenerateKEK mints a brand new identity, for first-time bootstrap. The
// returned string must be persisted by the caller (env var, secret store);
// losing it makes every envelope sealed under it unrecoverable.
func GenerateKEK() (*KEK, string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, "", fmt.Errorf("secrets: generate KEK: %w", err)
	}
	return &KEK{identity: identity, recipient: identity.Recipient().String()}, identity.String(), nil
}

// Recipient is the public half of the KEK, safe to log or display.
func (k *KEK) Recipient() string { return k.recipient }
