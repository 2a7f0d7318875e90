package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/internal/ids"
)

// Builder is a fluent constructor for Entry values. Its defaults — action
// falls back to the event type's display string, severity falls back to
// the event type's DefaultSeverity, id and timestamp default to a fresh
// uuid/now — are the single source of truth for those fallbacks: call
// sites must never scatter their own default logic.
type Builder struct {
	entry Entry
	now   func() time.Time
}

// NewEntry starts a builder for the given event type.
func NewEntry(eventType EventType) *Builder {
	return &Builder{
		entry: Entry{EventType: eventType},
		now:   time.Now,
	}
}

// Actor sets the acting user.
func (b *Builder) Actor(userID ids.UserID) *Builder {
	b.entry.ActorUserID = &userID
	return b
}

// Impersonating records the real admin when an action is taken under impersonation.
func (b *Builder) Impersonating(userID ids.UserID) *Builder {
	b.entry.ImpersonatingUserID = &userID
	return b
}

// Resource sets the affected resource's type/id.
func (b *Builder) Resource(resourceType, resourceID string) *Builder {
	b.entry.ResourceType = resourceType
	b.entry.ResourceID = resourceID
	return b
}

// Action overrides the default action string (which otherwise falls back
// to the event type's display form).
func (b *Builder) Action(action string) *Builder {
	b.entry.Action = action
	return b
}

// Severity overrides the default severity (which otherwise falls back to
// EventType.DefaultSeverity()).
func (b *Builder) Severity(severity Severity) *Builder {
	b.entry.Severity = severity
	return b
}

// IPAddress records the originating client IP.
func (b *Builder) IPAddress(ip string) *Builder {
	b.entry.IPAddress = &ip
	return b
}

// UserAgent records the originating client's user agent.
func (b *Builder) UserAgent(ua string) *Builder {
	b.entry.UserAgent = &ua
	return b
}

// Details attaches arbitrary structured JSON context.
func (b *Builder) Details(details map[string]any) *Builder {
	b.entry.Details = details
	return b
}

// Correlate attaches distributed-tracing correlation identifiers.
func (b *Builder) Correlate(traceID, spanID, requestID string) *Builder {
	if traceID != "" {
		b.entry.TraceID = &traceID
	}
	if spanID != "" {
		b.entry.SpanID = &spanID
	}
	if requestID != "" {
		b.entry.RequestID = &requestID
	}
	return b
}

// Build finalizes the Entry, applying defaults for any field left unset.
func (b *Builder) Build() Entry {
	e := b.entry
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now().UTC()
	}
	if e.Action == "" {
		e.Action = e.EventType.String()
	}
	if e.Severity == 0 {
		e.Severity = e.EventType.DefaultSeverity()
	}
	return e
}
