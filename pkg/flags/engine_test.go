package flags

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/ids"
	testdb "github.com/codeready-toolchain/loom/test/database"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	client := testdb.NewTestClient(t).Client
	return NewEngine(client, nil)
}

func mustCreateFlag(t *testing.T, e *Engine, key string, variants []string, defaultVariant string) Flag {
	t.Helper()
	f, err := e.CreateFlag(context.Background(), Flag{Key: key, Name: key, Variants: variants, DefaultVariant: defaultVariant})
	require.NoError(t, err)
	return f
}

func TestEvaluateWithNoConfigReturnsDisabled(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	f := mustCreateFlag(t, e, "no-config", []string{"on", "off"}, "off")

	result, err := e.Evaluate(ctx, f.Key, ids.EnvironmentID("prod"), EvalContext{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "off", result.Variant)
	require.Equal(t, ReasonDisabled, result.Reason)
}

func TestEvaluateDisabledConfigReturnsDisabled(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	f := mustCreateFlag(t, e, "explicitly-off", []string{"on", "off"}, "off")

	_, err := e.SetConfig(ctx, f.ID, "prod", false, nil)
	require.NoError(t, err)

	result, err := e.Evaluate(ctx, f.Key, "prod", EvalContext{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "off", result.Variant)
	require.Equal(t, ReasonDisabled, result.Reason)
}

func TestEvaluateEnabledWithUnconditionalStrategyMatches(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	f := mustCreateFlag(t, e, "rollout", []string{"on", "off"}, "off")

	strategy, err := e.CreateStrategy(ctx, Strategy{Variant: "on"})
	require.NoError(t, err)

	_, err = e.SetConfig(ctx, f.ID, "prod", true, &strategy.ID)
	require.NoError(t, err)

	result, err := e.Evaluate(ctx, f.Key, "prod", EvalContext{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "on", result.Variant)
	require.Equal(t, ReasonStrategyMatched, result.Reason)
}

func TestEvaluateEnabledWithoutStrategyIsUnmatched(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	f := mustCreateFlag(t, e, "enabled-no-strategy", []string{"on", "off"}, "off")

	_, err := e.SetConfig(ctx, f.ID, "prod", true, nil)
	require.NoError(t, err)

	result, err := e.Evaluate(ctx, f.Key, "prod", EvalContext{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "off", result.Variant)
	require.Equal(t, ReasonStrategyUnmatched, result.Reason)
}

func TestEvaluateKillSwitchOverridesEnabledStrategy(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	f := mustCreateFlag(t, e, "killable", []string{"on", "off"}, "off")

	strategy, err := e.CreateStrategy(ctx, Strategy{Variant: "on"})
	require.NoError(t, err)
	_, err = e.SetConfig(ctx, f.ID, "prod", true, &strategy.ID)
	require.NoError(t, err)

	_, err = e.client.KillSwitch.Create().
		SetID(uuid.NewString()).
		SetFlagKeys([]string{f.Key}).
		SetIsActive(true).
		Save(ctx)
	require.NoError(t, err)

	result, err := e.Evaluate(ctx, f.Key, "prod", EvalContext{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "off", result.Variant)
	require.Equal(t, ReasonKillSwitch, result.Reason)
}

func TestEvaluatePrerequisiteFailedFallsBackToDefault(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	base := mustCreateFlag(t, e, "base-flag", []string{"a", "b"}, "a")
	_, err := e.SetConfig(ctx, base.ID, "prod", true, nil) // enabled, no strategy -> evaluates to "a" (default)
	require.NoError(t, err)

	dependent, err := e.CreateFlag(ctx, Flag{
		Key: "dependent-flag", Name: "dependent", Variants: []string{"on", "off"}, DefaultVariant: "off",
		Prerequisites: []Prerequisite{{FlagKey: base.Key, RequiredVariant: "b"}},
	})
	require.NoError(t, err)
	strategy, err := e.CreateStrategy(ctx, Strategy{Variant: "on"})
	require.NoError(t, err)
	_, err = e.SetConfig(ctx, dependent.ID, "prod", true, &strategy.ID)
	require.NoError(t, err)

	result, err := e.Evaluate(ctx, dependent.Key, "prod", EvalContext{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "off", result.Variant)
	require.Equal(t, ReasonPrerequisiteFailed, result.Reason)
}

func TestEvaluatePercentageRolloutIsDeterministicPerUser(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	f := mustCreateFlag(t, e, "percentage-flag", []string{"on", "off"}, "off")

	full := 100
	strategy, err := e.CreateStrategy(ctx, Strategy{Variant: "on", Percentage: &full, PercentageKey: "user_id"})
	require.NoError(t, err)
	_, err = e.SetConfig(ctx, f.ID, "prod", true, &strategy.ID)
	require.NoError(t, err)

	result, err := e.Evaluate(ctx, f.Key, "prod", EvalContext{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "on", result.Variant, "a 100%% rollout must always match")
	require.Equal(t, ReasonStrategyMatched, result.Reason)

	zero := 0
	strategy2, err := e.CreateStrategy(ctx, Strategy{Variant: "on", Percentage: &zero, PercentageKey: "user_id"})
	require.NoError(t, err)
	_, err = e.SetConfig(ctx, f.ID, "prod", true, &strategy2.ID)
	require.NoError(t, err)

	result, err = e.Evaluate(ctx, f.Key, "prod", EvalContext{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "off", result.Variant, "a 0%% rollout must never match")
	require.Equal(t, ReasonStrategyUnmatched, result.Reason)
}

func TestEvaluateRecordsEvaluationLogForStats(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	f := mustCreateFlag(t, e, "stats-flag", []string{"on", "off"}, "off")

	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(ctx, f.Key, "prod", EvalContext{UserID: "u1"})
		require.NoError(t, err)
	}

	stats, err := e.Stats(ctx, f.ID, "prod")
	require.NoError(t, err)
	require.Equal(t, 3, stats.Count24h)
	require.Equal(t, 3, stats.Count7d)
	require.Equal(t, 3, stats.Count30d)
	require.NotNil(t, stats.LastEvaluatedAt)
}

func TestListStaleFlagsOrdersNeverEvaluatedFirst(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	neverEvaluated := mustCreateFlag(t, e, "never-evaluated", []string{"on", "off"}, "off")
	recentlyEvaluated := mustCreateFlag(t, e, "recently-evaluated", []string{"on", "off"}, "off")
	_, err := e.Evaluate(ctx, recentlyEvaluated.Key, "prod", EvalContext{UserID: "u1"})
	require.NoError(t, err)

	staleEvaluated := mustCreateFlag(t, e, "stale-evaluated", []string{"on", "off"}, "off")
	_, err = e.client.FlagEvaluationLog.Create().
		SetID(uuid.NewString()).
		SetFlagID(staleEvaluated.ID.String()).
		SetEnvironmentID("prod").
		SetEvaluatedAt(time.Now().UTC().AddDate(0, 0, -10)).
		Save(ctx)
	require.NoError(t, err)

	stale, err := e.ListStaleFlags(ctx, "", 5)
	require.NoError(t, err)

	var keys []string
	for _, s := range stale {
		keys = append(keys, s.Flag.Key)
	}
	require.Contains(t, keys, neverEvaluated.Key)
	require.Contains(t, keys, staleEvaluated.Key)
	require.NotContains(t, keys, recentlyEvaluated.Key)

	require.Equal(t, neverEvaluated.Key, stale[0].Flag.Key, "never-evaluated flags sort before older-but-evaluated ones")
}

func TestExposureLogDedupesWithinWindow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	f, err := e.CreateFlag(ctx, Flag{Key: "exposure-flag", Name: "exposure-flag", Variants: []string{"on", "off"}, DefaultVariant: "off", ExposureTrackingEnabled: true})
	require.NoError(t, err)

	_, err = e.Evaluate(ctx, f.Key, "prod", EvalContext{UserID: "u1"})
	require.NoError(t, err)
	_, err = e.Evaluate(ctx, f.Key, "prod", EvalContext{UserID: "u1"})
	require.NoError(t, err)

	count, err := e.client.ExposureLog.Query().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count, "the second identical exposure within the dedup window must not write a second row")
}
