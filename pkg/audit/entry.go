package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/internal/ids"
)

// Entry is the uniformly-schemaed audit envelope emitted by every
// privileged operation.
type Entry struct {
	ID        uuid.UUID       `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	EventType EventType       `json:"event_type"`
	Severity  Severity        `json:"severity"`

	ActorUserID          *ids.UserID `json:"actor_user_id,omitempty"`
	ImpersonatingUserID  *ids.UserID `json:"impersonating_user_id,omitempty"`

	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	Action string `json:"action"`

	IPAddress *string        `json:"ip_address,omitempty"`
	UserAgent *string        `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`

	TraceID   *string `json:"trace_id,omitempty"`
	SpanID    *string `json:"span_id,omitempty"`
	RequestID *string `json:"request_id,omitempty"`
}

// DetailsJSON marshals Details for storage in a sink that keeps it as a
// JSON text column (the SQLite sink, for instance).
func (e *Entry) DetailsJSON() (string, error) {
	if e.Details == nil {
		return "{}", nil
	}
	b, err := json.Marshal(e.Details)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
