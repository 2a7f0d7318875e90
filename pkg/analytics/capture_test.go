package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/ids"
	testdb "github.com/codeready-toolchain/loom/test/database"
)

func TestCapturePersistsEventAgainstResolvedPerson(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	svc := NewPersonService(client, nil)
	org := ids.OrgID("org-1")

	evt, err := svc.Capture(ctx, org, "anon-1", "page_viewed", map[string]any{"path": "/home"})
	require.NoError(t, err)
	require.Equal(t, "page_viewed", evt.EventName)
	require.NotNil(t, evt.PersonID)

	resolved, err := svc.Resolve(ctx, org, "anon-1")
	require.NoError(t, err)
	require.Equal(t, resolved.Person.ID, *evt.PersonID)
}

func TestCaptureRejectsEmptyEventName(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	svc := NewPersonService(client, nil)

	_, err := svc.Capture(ctx, ids.OrgID("org-1"), "anon-1", "", nil)
	require.Error(t, err)
}

func TestBatchCapturesEveryEventAndSurvivesPartialFailure(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	svc := NewPersonService(client, nil)
	org := ids.OrgID("org-1")

	captured, err := svc.Batch(ctx, org, []CaptureRequest{
		{DistinctID: "anon-1", EventName: "signed_up"},
		{DistinctID: "anon-1", EventName: ""},
		{DistinctID: "anon-1", EventName: "page_viewed"},
	})
	require.Error(t, err)
	require.Len(t, captured, 2)
}

func TestSetMergesPropertiesWithoutRecordingAnEvent(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	svc := NewPersonService(client, nil)
	org := ids.OrgID("org-1")

	pwi, err := svc.Set(ctx, org, "anon-1", map[string]any{"plan": "free"})
	require.NoError(t, err)
	require.Equal(t, "free", pwi.Person.Properties["plan"])

	again, err := svc.Set(ctx, org, "anon-1", map[string]any{"plan": "paid", "seats": float64(5)})
	require.NoError(t, err)
	require.Equal(t, "free", again.Person.Properties["plan"], "existing properties win over new ones, same as the merge rule")
	require.Equal(t, float64(5), again.Person.Properties["seats"])
}
