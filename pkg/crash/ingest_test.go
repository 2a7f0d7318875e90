package crash

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"

	testdb "github.com/codeready-toolchain/loom/test/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testdb.NewTestClient(t).Client)
}

func mustMarshal(t *testing.T, evt sentry.Event) []byte {
	t.Helper()
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	return payload
}

func TestIngestExtractsMessageFromException(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	payload := mustMarshal(t, sentry.Event{
		Release:     "v1.2.3",
		Environment: "production",
		Exception: []sentry.Exception{
			{
				Type:  "RuntimeError",
				Value: "nil pointer dereference",
				Stacktrace: &sentry.Stacktrace{
					Frames: []sentry.Frame{
						{Function: "main", Filename: "main.go", Lineno: 10},
						{Function: "run", Filename: "run.go", Lineno: 42},
					},
				},
			},
		},
	})

	evt, err := store.Ingest(ctx, "org-1", "proj-1", payload)
	require.NoError(t, err)
	require.Equal(t, "RuntimeError: nil pointer dereference", evt.Message)
	require.Equal(t, "v1.2.3", evt.Release)
	require.Equal(t, "production", evt.Environment)
	require.Contains(t, evt.Stacktrace, "run.go:42")
	require.Contains(t, evt.Stacktrace, "main.go:10")
}

func TestIngestPrefersExplicitMessage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	payload := mustMarshal(t, sentry.Event{Message: "explicit crash message"})
	evt, err := store.Ingest(ctx, "org-1", "proj-1", payload)
	require.NoError(t, err)
	require.Equal(t, "explicit crash message", evt.Message)
}

func TestIngestRejectsEmptyEnvelope(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Ingest(ctx, "org-1", "proj-1", []byte(`{}`))
	require.Error(t, err)
}

func TestIngestRejectsMalformedPayload(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Ingest(ctx, "org-1", "proj-1", []byte(`not json`))
	require.Error(t, err)
}

func TestListFiltersByReleaseAndProject(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Ingest(ctx, "org-1", "proj-1", mustMarshal(t, sentry.Event{Message: "m1", Release: "v1"}))
	require.NoError(t, err)
	_, err = store.Ingest(ctx, "org-1", "proj-1", mustMarshal(t, sentry.Event{Message: "m2", Release: "v2"}))
	require.NoError(t, err)
	_, err = store.Ingest(ctx, "org-1", "proj-2", mustMarshal(t, sentry.Event{Message: "m3", Release: "v1"}))
	require.NoError(t, err)

	list, err := store.List(ctx, "proj-1", ListFilter{Release: "v1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "m1", list[0].Message)
}

func TestDeleteRemovesCrashEvent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	evt, err := store.Ingest(ctx, "org-1", "proj-1", mustMarshal(t, sentry.Event{Message: "gone soon"}))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, evt.ID))
	list, err := store.List(ctx, "proj-1", ListFilter{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestDeleteUnknownReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.Delete(ctx, "missing-id")
	require.Error(t, err)
}
