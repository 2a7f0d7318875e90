// Package secrets custodies tenant-owned secret values (repo deploy keys,
// CI tokens, provider credentials) sealed to the server's own KEK — the
// raw plaintext is never persisted, only an age-encrypted envelope, and is
// decrypted only for the duration of a single read.
package secrets

import (
	"time"

	"github.com/codeready-toolchain/loom/internal/ids"
)

// OwnerType names what a Secret is scoped to.
type OwnerType string

const (
	OwnerRepo OwnerType = "repo"
	OwnerOrg  OwnerType = "org"
)

// Secret is the envelope metadata exposed to callers; the plaintext value
// is never part of this struct and must be fetched separately via Reveal.
type Secret struct {
	ID        ids.SecretID
	OwnerType OwnerType
	OwnerID   string
	Key       string
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}
