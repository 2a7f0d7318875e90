// Package ids provides typed, copyable identifiers for every owned entity
// in Loom, plus an opaque secret wrapper that redacts itself in debug
// output. Keeping identifiers as distinct string newtypes (instead of bare
// strings) prevents a UserID from being passed where an OrgID is expected.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// newRandomID returns a 128-bit random hex identifier. Used where an entity
// has no natural opaque-prefixed form (UUIDs are generated at the
// persistence layer via google/uuid; this is for in-process/local-store ids
// such as thread ids that need a prefix).
func newRandomID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// UserID identifies a user.
type UserID string

// OrgID identifies an organization.
type OrgID string

// TeamID identifies a team within an organization.
type TeamID string

// InvitationID identifies an organization invitation.
type InvitationID string

// JoinRequestID identifies a pending join request.
type JoinRequestID string

// SessionID identifies an authenticated session credential.
type SessionID string

// APIKeyID identifies an API key credential.
type APIKeyID string

// FlagID identifies a feature flag.
type FlagID string

// EnvironmentID identifies a flag environment (dev/staging/prod/...).
type EnvironmentID string

// SDKKeyID identifies an SDK key used to authenticate flag/analytics SDK traffic.
type SDKKeyID string

// StrategyID identifies a flag rollout strategy.
type StrategyID string

// PersonID identifies an analytics person.
type PersonID string

// RepoID identifies a hosted repository (owned by the out-of-core SCM surface).
type RepoID string

// WebhookID identifies a webhook subscription.
type WebhookID string

// DeliveryID identifies a single webhook delivery attempt record.
type DeliveryID string

// SecretID identifies a custody-wrapped secret envelope.
type SecretID string

// String implementations so these satisfy fmt.Stringer and slog.LogValuer-friendly formatting.
func (id UserID) String() string        { return string(id) }
func (id OrgID) String() string         { return string(id) }
func (id TeamID) String() string        { return string(id) }
func (id InvitationID) String() string  { return string(id) }
func (id JoinRequestID) String() string { return string(id) }
func (id SessionID) String() string     { return string(id) }
func (id APIKeyID) String() string      { return string(id) }
func (id FlagID) String() string        { return string(id) }
func (id EnvironmentID) String() string { return string(id) }
func (id SDKKeyID) String() string      { return string(id) }
func (id StrategyID) String() string    { return string(id) }
func (id PersonID) String() string      { return string(id) }
func (id RepoID) String() string        { return string(id) }
func (id WebhookID) String() string     { return string(id) }
func (id DeliveryID) String() string    { return string(id) }
func (id SecretID) String() string      { return string(id) }

// ThreadID identifies a thread. Threads are opaque but prefixed "T-" so
// they are visually distinguishable from UUIDs in logs and URLs.
type ThreadID string

// NewThreadID mints a new opaque thread identifier.
func NewThreadID() ThreadID {
	return ThreadID("T-" + newRandomID())
}

// ParseThreadID validates and wraps a thread id string.
func ParseThreadID(s string) (ThreadID, error) {
	if !strings.HasPrefix(s, "T-") || len(s) <= len("T-") {
		return "", fmt.Errorf("invalid thread id %q: must have T- prefix", s)
	}
	return ThreadID(s), nil
}

func (id ThreadID) String() string { return string(id) }

// WeaverID identifies a weaver sandbox. Renderable as a DNS-compatible
// container name prefixed "weaver-", capped at 63 chars (the Kubernetes
// object-name limit).
type WeaverID string

// NewWeaverID mints a new weaver identifier.
func NewWeaverID() WeaverID {
	return WeaverID(newRandomID())
}

// ParseWeaverID wraps a raw weaver id string (without the "weaver-" prefix).
func ParseWeaverID(s string) (WeaverID, error) {
	if s == "" {
		return "", fmt.Errorf("invalid weaver id: empty")
	}
	return WeaverID(s), nil
}

func (id WeaverID) String() string { return string(id) }

// AsK8sName renders the weaver id as the Kubernetes pod name, truncating to
// fit within the 63-char DNS label limit while keeping the "weaver-" prefix
// intact (the limit here is intentionally tighter than the 253-char object
// name limit, matching how Loom also uses the name as a label value).
func (id WeaverID) AsK8sName() string {
	const maxLen = 63
	name := "weaver-" + string(id)
	if len(name) <= maxLen {
		return name
	}
	return name[:maxLen]
}

// Secret wraps a sensitive string value (a webhook secret, an SDK raw key,
// provider credentials, ...). Its String/GoString/LogValue forms never
// reveal the wrapped value, so an accidental %v, %+v, or slog field never
// leaks it. Use Reveal() only at the point of use (signing, outbound
// requests).
type Secret struct {
	value string
}

// NewSecret wraps a raw secret value.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Reveal returns the underlying value. Callers must not log or persist the
// return value in cleartext outside of its intended use.
func (s Secret) Reveal() string {
	return s.value
}

// IsZero reports whether the secret was never set.
func (s Secret) IsZero() bool {
	return s.value == ""
}

const redacted = "***redacted***"

func (s Secret) String() string  { return redacted }
func (s Secret) GoString() string { return redacted }

// LogValue implements slog.LogValuer so a Secret logged as a slog field
// renders redacted.
func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

// MarshalJSON redacts the secret so it is never accidentally serialized
// into an API response or log line that happens to json.Marshal a struct
// containing it.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
