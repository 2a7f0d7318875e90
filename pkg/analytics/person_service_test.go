package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/ids"
	testdb "github.com/codeready-toolchain/loom/test/database"
)

type recordingHook struct {
	calls []MergeDetails
}

func (h *recordingHook) OnMerge(details MergeDetails) {
	h.calls = append(h.calls, details)
}

func TestResolveCreatesAnonymousPersonOnFirstSight(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	svc := NewPersonService(client, nil)
	org := ids.OrgID("org-1")

	pwi, err := svc.Resolve(ctx, org, "anon-1")
	require.NoError(t, err)
	require.Nil(t, pwi.Person.MergedIntoID)
	require.Len(t, pwi.Identities, 1)
	require.Equal(t, IdentityKindAnonymous, pwi.Identities[0].Kind)

	again, err := svc.Resolve(ctx, org, "anon-1")
	require.NoError(t, err)
	require.Equal(t, pwi.Person.ID, again.Person.ID, "resolving the same distinct id twice must return the same person")
}

func TestIdentifyBothUnknownCreatesOnePersonWithTwoIdentities(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	svc := NewPersonService(client, nil)
	org := ids.OrgID("org-1")

	pwi, err := svc.Identify(ctx, org, "anon-2", "user-2", map[string]any{"plan": "pro"})
	require.NoError(t, err)
	require.Len(t, pwi.Identities, 2)
	require.Equal(t, "pro", pwi.Person.Properties["plan"])

	kinds := map[IdentityKind]int{}
	for _, id := range pwi.Identities {
		kinds[id.Kind]++
	}
	require.Equal(t, 1, kinds[IdentityKindAnonymous])
	require.Equal(t, 1, kinds[IdentityKindIdentified])
}

func TestIdentifyAttachesIdentifiedIdentityToKnownAnonymousPerson(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	svc := NewPersonService(client, nil)
	org := ids.OrgID("org-1")

	resolved, err := svc.Resolve(ctx, org, "anon-3")
	require.NoError(t, err)

	pwi, err := svc.Identify(ctx, org, "anon-3", "user-3", map[string]any{"tier": "gold"})
	require.NoError(t, err)
	require.Equal(t, resolved.Person.ID, pwi.Person.ID)
	require.Equal(t, "gold", pwi.Person.Properties["tier"])

	again, err := svc.Resolve(ctx, org, "user-3")
	require.NoError(t, err)
	require.Equal(t, resolved.Person.ID, again.Person.ID)
}

func TestIdentifyAttachesAnonymousIdentityToKnownIdentifiedPerson(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	svc := NewPersonService(client, nil)
	org := ids.OrgID("org-1")

	known, err := svc.Identify(ctx, org, "anon-4", "user-4", nil)
	require.NoError(t, err)

	pwi, err := svc.Identify(ctx, org, "anon-5", "user-4", map[string]any{"x": 1})
	require.NoError(t, err)
	require.Equal(t, known.Person.ID, pwi.Person.ID)
}

func TestIdentifySamePersonIsStructurallyANoOp(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	hook := &recordingHook{}
	svc := NewPersonService(client, hook)
	org := ids.OrgID("org-1")

	first, err := svc.Identify(ctx, org, "anon-6", "user-6", map[string]any{"a": 1})
	require.NoError(t, err)

	second, err := svc.Identify(ctx, org, "anon-6", "user-6", map[string]any{"b": 2})
	require.NoError(t, err)

	require.Equal(t, first.Person.ID, second.Person.ID)
	require.Equal(t, float64(1), second.Person.Properties["a"])
	require.Equal(t, float64(2), second.Person.Properties["b"])
	require.Empty(t, hook.calls, "a same-person identify must never fire the merge audit hook")
}

// TestIdentifyMergeWinnerIsIdentified reproduces the canonical merge
// scenario: an anonymous person A and an already-identified person B each
// exist independently, then an identify call linking A's distinct id to
// B's user id must merge A into B (identified beats anonymous) and report
// exactly what moved.
func TestIdentifyMergeWinnerIsIdentified(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	hook := &recordingHook{}
	svc := NewPersonService(client, hook)
	org := ids.OrgID("org-1")

	personA, err := svc.Resolve(ctx, org, "anon_a")
	require.NoError(t, err)

	personB, err := svc.Identify(ctx, org, "anon_b_seed", "user@x", nil)
	require.NoError(t, err)
	require.NotEqual(t, personA.Person.ID, personB.Person.ID)

	_, err = client.Event.Create().
		SetID("evt-1").SetOrgID(org.String()).SetDistinctID("anon_a").
		SetPersonID(personA.Person.ID.String()).SetEventName("page_view").
		Save(ctx)
	require.NoError(t, err)
	_, err = client.Event.Create().
		SetID("evt-2").SetOrgID(org.String()).SetDistinctID("anon_a").
		SetPersonID(personA.Person.ID.String()).SetEventName("click").
		Save(ctx)
	require.NoError(t, err)

	merged, err := svc.Identify(ctx, org, "anon_a", "user@x", nil)
	require.NoError(t, err)
	require.Equal(t, personB.Person.ID, merged.Person.ID, "the identified person must win the merge")

	require.Len(t, hook.calls, 1)
	details := hook.calls[0]
	require.Equal(t, org, details.OrgID)
	require.Equal(t, personB.Person.ID, details.WinnerID)
	require.Equal(t, personA.Person.ID, details.LoserID)
	require.Equal(t, MergeReasonIdentify, details.Reason.Kind)
	require.Equal(t, 2, details.EventsReassigned)
	require.Equal(t, 1, details.IdentitiesTransferred)

	loser, err := client.Person.Get(ctx, personA.Person.ID.String())
	require.NoError(t, err)
	require.NotNil(t, loser.MergedIntoID)
	require.Equal(t, personB.Person.ID.String(), *loser.MergedIntoID)

	resolvedAgain, err := svc.Resolve(ctx, org, "anon_a")
	require.NoError(t, err)
	require.Equal(t, personB.Person.ID, resolvedAgain.Person.ID, "a merged-away person must resolve through the chain to the winner")
}

func TestAliasSamePersonIsANoOpWithNoMergeRecorded(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	hook := &recordingHook{}
	svc := NewPersonService(client, hook)
	org := ids.OrgID("org-1")

	resolved, err := svc.Resolve(ctx, org, "device-1")
	require.NoError(t, err)

	pwi, err := svc.Alias(ctx, org, "device-1", "device-1-alias")
	require.NoError(t, err)
	require.Equal(t, resolved.Person.ID, pwi.Person.ID)

	again, err := svc.Alias(ctx, org, "device-1", "device-1-alias")
	require.NoError(t, err)
	require.Equal(t, resolved.Person.ID, again.Person.ID)
	require.Empty(t, hook.calls)
}

func TestAliasAcrossTwoKnownPersonsMerges(t *testing.T) {
	ctx := context.Background()
	client := testdb.NewTestClient(t).Client
	hook := &recordingHook{}
	svc := NewPersonService(client, hook)
	org := ids.OrgID("org-1")

	first, err := svc.Resolve(ctx, org, "device-a")
	require.NoError(t, err)
	second, err := svc.Resolve(ctx, org, "device-b")
	require.NoError(t, err)
	require.NotEqual(t, first.Person.ID, second.Person.ID)

	_, err = svc.Alias(ctx, org, "device-a", "device-b")
	require.NoError(t, err)

	require.Len(t, hook.calls, 1)
	require.Equal(t, MergeReasonAlias, hook.calls[0].Reason.Kind)

	resolvedA, err := svc.Resolve(ctx, org, "device-a")
	require.NoError(t, err)
	resolvedB, err := svc.Resolve(ctx, org, "device-b")
	require.NoError(t, err)
	require.Equal(t, resolvedA.Person.ID, resolvedB.Person.ID, "both distinct ids must resolve to the same surviving person")
}
