package crash

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	entcrashevent "github.com/codeready-toolchain/loom/ent/crashevent"
	"github.com/codeready-toolchain/loom/internal/apperr"
)

// Store persists ingested crash events scoped to an org/project.
type Store struct {
	client *ent.Client
}

// NewStore constructs a Store.
func NewStore(client *ent.Client) *Store {
	return &Store{client: client}
}

// Ingest decodes a Sentry-compatible event envelope and persists the
// normalized subset of it.
func (s *Store) Ingest(ctx context.Context, orgID, projectID string, payload []byte) (Event, error) {
	var sentryEvent sentry.Event
	if err := json.Unmarshal(payload, &sentryEvent); err != nil {
		return Event{}, apperr.InvalidInput("payload", "not a valid crash event envelope: "+err.Error())
	}

	message := sentryEvent.Message
	if message == "" && len(sentryEvent.Exception) > 0 {
		last := sentryEvent.Exception[len(sentryEvent.Exception)-1]
		message = strings.TrimSpace(last.Type + ": " + last.Value)
	}
	if message == "" {
		return Event{}, apperr.InvalidInput("message", "crash event has neither message nor exception")
	}

	context := make(map[string]any, len(sentryEvent.Extra)+len(sentryEvent.Tags))
	for k, v := range sentryEvent.Extra {
		context[k] = v
	}
	for k, v := range sentryEvent.Tags {
		context[k] = v
	}

	row, err := s.client.CrashEvent.Create().
		SetID(uuid.NewString()).
		SetOrgID(orgID).
		SetProjectID(projectID).
		SetMessage(message).
		SetStacktrace(renderStacktrace(sentryEvent.Exception)).
		SetRelease(sentryEvent.Release).
		SetEnvironment(sentryEvent.Environment).
		SetContext(context).
		Save(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("crash: ingest: %w", err)
	}
	return fromEntCrashEvent(row), nil
}

// List returns crash events scoped to a project, newest first, optionally
// narrowed to a release.
func (s *Store) List(ctx context.Context, projectID string, filter ListFilter) ([]Event, error) {
	query := s.client.CrashEvent.Query().Where(entcrashevent.ProjectID(projectID))
	if filter.Release != "" {
		query = query.Where(entcrashevent.Release(filter.Release))
	}
	rows, err := query.Order(ent.Desc(entcrashevent.FieldReceivedAt)).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("crash: list: %w", err)
	}
	out := make([]Event, len(rows))
	for i, row := range rows {
		out[i] = fromEntCrashEvent(row)
	}
	return out, nil
}

// Delete removes a crash event by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.client.CrashEvent.DeleteOneID(id).Exec(ctx)
	if ent.IsNotFound(err) {
		return apperr.NotFound(fmt.Sprintf("crash event %s not found", id))
	}
	if err != nil {
		return fmt.Errorf("crash: delete: %w", err)
	}
	return nil
}

// renderStacktrace flattens the last exception's frames into a readable,
// storable string - innermost frame first, the way a terminal stack trace
// reads.
func renderStacktrace(exceptions []sentry.Exception) string {
	if len(exceptions) == 0 {
		return ""
	}
	exc := exceptions[len(exceptions)-1]
	if exc.Stacktrace == nil {
		return ""
	}
	var b strings.Builder
	frames := exc.Stacktrace.Frames
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		fmt.Fprintf(&b, "  at %s (%s:%d)\n", f.Function, f.Filename, f.Lineno)
	}
	return strings.TrimRight(b.String(), "\n")
}

func fromEntCrashEvent(row *ent.CrashEvent) Event {
	return Event{
		ID:          row.ID,
		OrgID:       row.OrgID,
		ProjectID:   row.ProjectID,
		Message:     row.Message,
		Stacktrace:  row.Stacktrace,
		Release:     row.Release,
		Environment: row.Environment,
		Context:     row.Context,
		ReceivedAt:  row.ReceivedAt,
	}
}
