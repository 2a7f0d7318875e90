package flags

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/ent/exposurelog"
	entflag "github.com/codeready-toolchain/loom/ent/flag"
	"github.com/codeready-toolchain/loom/ent/flagconfig"
	"github.com/codeready-toolchain/loom/ent/flagevaluationlog"
	"github.com/codeready-toolchain/loom/ent/flagstrategy"
	"github.com/codeready-toolchain/loom/ent/killswitch"
	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
)

// Engine implements flag evaluation and administration over *ent.Client,
// following the transactional-service shape used throughout pkg/identity
// and pkg/analytics. SetConfig announces each change to a Broadcaster so
// connected SDKs see it without polling; CreateFlag, CreateStrategy and the
// kill-switch toggles publish no event.
type Engine struct {
	client      *ent.Client
	broadcaster *Broadcaster
}

// NewEngine constructs an Engine. broadcaster may be nil (mutations are
// then simply not announced, e.g. in tests).
func NewEngine(client *ent.Client, broadcaster *Broadcaster) *Engine {
	return &Engine{client: client, broadcaster: broadcaster}
}

// CreateFlag persists a new flag.
func (e *Engine) CreateFlag(ctx context.Context, f Flag) (Flag, error) {
	if f.Key == "" {
		return Flag{}, apperr.InvalidInput("key", "is required")
	}
	if f.DefaultVariant == "" {
		return Flag{}, apperr.InvalidInput("default_variant", "is required")
	}

	id := ids.FlagID(uuid.NewString())
	create := e.client.Flag.Create().
		SetID(id.String()).
		SetKey(f.Key).
		SetName(f.Name).
		SetTags(f.Tags).
		SetVariants(f.Variants).
		SetDefaultVariant(f.DefaultVariant).
		SetPrerequisites(toEntPrerequisites(f.Prerequisites)).
		SetExposureTrackingEnabled(f.ExposureTrackingEnabled)
	if f.OrgID != "" {
		create = create.SetOrgID(f.OrgID.String())
	}

	row, err := create.Save(ctx)
	if err != nil {
		return Flag{}, fmt.Errorf("create flag: %w", err)
	}
	return fromEntFlag(row), nil
}

// SetConfig upserts the (flag, environment) enablement/strategy binding.
func (e *Engine) SetConfig(ctx context.Context, flagID ids.FlagID, envID ids.EnvironmentID, enabled bool, strategyID *ids.StrategyID) (Config, error) {
	existing, err := e.client.FlagConfig.Query().
		Where(flagconfig.FlagID(flagID.String()), flagconfig.EnvironmentID(envID.String())).
		Only(ctx)
	switch {
	case ent.IsNotFound(err):
		create := e.client.FlagConfig.Create().
			SetID(uuid.NewString()).
			SetFlagID(flagID.String()).
			SetEnvironmentID(envID.String()).
			SetEnabled(enabled)
		if strategyID != nil {
			create = create.SetStrategyID(strategyID.String())
		}
		row, err := create.Save(ctx)
		if err != nil {
			return Config{}, fmt.Errorf("create flag config: %w", err)
		}
		e.announceMutation(ctx, flagID, envID)
		return fromEntConfig(row), nil
	case err != nil:
		return Config{}, fmt.Errorf("query flag config: %w", err)
	}

	update := existing.Update().SetEnabled(enabled)
	if strategyID != nil {
		update = update.SetStrategyID(strategyID.String())
	} else {
		update = update.ClearStrategyID()
	}
	row, err := update.Save(ctx)
	if err != nil {
		return Config{}, fmt.Errorf("update flag config: %w", err)
	}
	e.announceMutation(ctx, flagID, envID)
	return fromEntConfig(row), nil
}

// CreateStrategy persists a rollout strategy for later assignment via
// SetConfig.
func (e *Engine) CreateStrategy(ctx context.Context, s Strategy) (Strategy, error) {
	create := e.client.FlagStrategy.Create().
		SetID(uuid.NewString()).
		SetConditions(s.Conditions).
		SetVariant(s.Variant)
	if s.Percentage != nil {
		create = create.SetPercentage(*s.Percentage)
	}
	if s.PercentageKey != "" {
		create = create.SetPercentageKey(s.PercentageKey)
	}
	if s.ScheduleStart != nil {
		create = create.SetScheduleStart(*s.ScheduleStart)
	}
	if s.ScheduleEnd != nil {
		create = create.SetScheduleEnd(*s.ScheduleEnd)
	}
	row, err := create.Save(ctx)
	if err != nil {
		return Strategy{}, fmt.Errorf("create strategy: %w", err)
	}
	return fromEntStrategy(row), nil
}

// ActivateKillSwitch flips a kill switch on, force-disabling every flag
// key it links until deactivated.
func (e *Engine) ActivateKillSwitch(ctx context.Context, id string, activatedBy, reason string) error {
	now := time.Now().UTC()
	_, err := e.client.KillSwitch.UpdateOneID(id).
		SetIsActive(true).
		SetActivatedBy(activatedBy).
		SetReason(reason).
		SetActivatedAt(now).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("activate kill switch: %w", err)
	}
	return nil
}

// DeactivateKillSwitch flips a kill switch off.
func (e *Engine) DeactivateKillSwitch(ctx context.Context, id string) error {
	if _, err := e.client.KillSwitch.UpdateOneID(id).SetIsActive(false).Save(ctx); err != nil {
		return fmt.Errorf("deactivate kill switch: %w", err)
	}
	return nil
}

// Evaluate runs the four-step evaluation order: kill switch, prerequisites,
// enablement, then strategy. It always logs the evaluation for stats and,
// when the flag has exposure tracking enabled, writes a deduped exposure
// row.
func (e *Engine) Evaluate(ctx context.Context, flagKey string, env ids.EnvironmentID, evalCtx EvalContext) (EvalResult, error) {
	flag, err := e.client.Flag.Query().Where(entflag.Key(flagKey)).Only(ctx)
	if ent.IsNotFound(err) {
		return EvalResult{}, apperr.NotFound(fmt.Sprintf("flag %q not found", flagKey))
	}
	if err != nil {
		return EvalResult{}, fmt.Errorf("query flag: %w", err)
	}

	result, err := e.evaluate(ctx, flag, env, evalCtx)
	if err != nil {
		return EvalResult{}, err
	}

	e.logEvaluation(ctx, ids.FlagID(flag.ID), env)
	if flag.ExposureTrackingEnabled {
		e.logExposure(ctx, flagKey, env, evalCtx, result)
	}
	return result, nil
}

func (e *Engine) evaluate(ctx context.Context, flag *ent.Flag, env ids.EnvironmentID, evalCtx EvalContext) (EvalResult, error) {
	active, err := e.client.KillSwitch.Query().
		Where(killswitch.IsActive(true)).
		All(ctx)
	if err != nil {
		return EvalResult{}, fmt.Errorf("query kill switches: %w", err)
	}
	for _, ks := range active {
		for _, key := range ks.FlagKeys {
			if key == flag.Key {
				return EvalResult{Variant: flag.DefaultVariant, Reason: ReasonKillSwitch}, nil
			}
		}
	}

	for _, prereq := range flag.Prerequisites {
		result, err := e.Evaluate(ctx, prereq.FlagKey, env, evalCtx)
		if err != nil {
			return EvalResult{}, fmt.Errorf("evaluate prerequisite %s: %w", prereq.FlagKey, err)
		}
		if result.Variant != prereq.RequiredVariant {
			return EvalResult{Variant: flag.DefaultVariant, Reason: ReasonPrerequisiteFailed}, nil
		}
	}

	config, err := e.client.FlagConfig.Query().
		Where(flagconfig.FlagID(flag.ID), flagconfig.EnvironmentID(env.String())).
		Only(ctx)
	if ent.IsNotFound(err) {
		return EvalResult{Variant: flag.DefaultVariant, Reason: ReasonDisabled}, nil
	}
	if err != nil {
		return EvalResult{}, fmt.Errorf("query flag config: %w", err)
	}
	if !config.Enabled {
		return EvalResult{Variant: flag.DefaultVariant, Reason: ReasonDisabled}, nil
	}

	if config.StrategyID == nil {
		return EvalResult{Variant: flag.DefaultVariant, Reason: ReasonStrategyUnmatched}, nil
	}
	strategy, err := e.client.FlagStrategy.Query().
		Where(flagstrategy.ID(*config.StrategyID)).
		Only(ctx)
	if ent.IsNotFound(err) {
		return EvalResult{Variant: flag.DefaultVariant, Reason: ReasonStrategyUnmatched}, nil
	}
	if err != nil {
		return EvalResult{}, fmt.Errorf("query strategy: %w", err)
	}

	if !conditionsMatch(strategy.Conditions, evalCtx) || !scheduleActive(strategy, time.Now().UTC()) {
		return EvalResult{Variant: flag.DefaultVariant, Reason: ReasonStrategyUnmatched}, nil
	}
	if strategy.Percentage != nil {
		key := strategy.PercentageKey
		if key == "" {
			key = "user_id"
		}
		value, ok := evalCtx.PropertyValue(key)
		if !ok || !withinPercentage(flag.Key, value, *strategy.Percentage) {
			return EvalResult{Variant: flag.DefaultVariant, Reason: ReasonStrategyUnmatched}, nil
		}
	}

	return EvalResult{Variant: strategy.Variant, Reason: ReasonStrategyMatched}, nil
}

// conditionsMatch is a simple equality match: every condition key must be
// present in the evaluation context properties with an equal value. An
// empty condition set always matches.
func conditionsMatch(conditions map[string]any, evalCtx EvalContext) bool {
	for k, want := range conditions {
		got, ok := evalCtx.PropertyValue(k)
		if !ok || fmt.Sprint(want) != got {
			return false
		}
	}
	return true
}

func scheduleActive(s *ent.FlagStrategy, now time.Time) bool {
	if s.ScheduleStart != nil && now.Before(*s.ScheduleStart) {
		return false
	}
	if s.ScheduleEnd != nil && now.After(*s.ScheduleEnd) {
		return false
	}
	return true
}

// withinPercentage hashes (flag_key, percentage_key_value) and checks the
// result modulo 100 against the rollout percentage, matching exactly.
func withinPercentage(flagKey, value string, percentage int) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(flagKey + "\x00" + value))
	return int(h.Sum32()%100) < percentage
}

func (e *Engine) logEvaluation(ctx context.Context, flagID ids.FlagID, env ids.EnvironmentID) {
	_, _ = e.client.FlagEvaluationLog.Create().
		SetID(uuid.NewString()).
		SetFlagID(flagID.String()).
		SetEnvironmentID(env.String()).
		Save(ctx)
}

func (e *Engine) logExposure(ctx context.Context, flagKey string, env ids.EnvironmentID, evalCtx EvalContext, result EvalResult) {
	contextHash := hashExposureContext(flagKey, evalCtx.UserID, evalCtx.OrgID, string(result.Reason), result.Variant)

	const dedupWindow = time.Hour
	cutoff := time.Now().UTC().Add(-dedupWindow)
	exists, err := e.client.ExposureLog.Query().
		Where(
			exposurelog.FlagKey(flagKey),
			exposurelog.ContextHash(contextHash),
			exposurelog.CreatedAtGTE(cutoff),
		).
		Exist(ctx)
	if err != nil || exists {
		return
	}

	_, _ = e.client.ExposureLog.Create().
		SetID(uuid.NewString()).
		SetFlagKey(flagKey).
		SetContextHash(contextHash).
		SetVariant(result.Variant).
		SetReason(string(result.Reason)).
		Save(ctx)
}

func hashExposureContext(flagKey, userID, orgID, reason, variant string) string {
	sum := sha256.Sum256([]byte(flagKey + "\x00" + userID + "\x00" + orgID + "\x00" + reason + "\x00" + variant))
	return hex.EncodeToString(sum[:])
}

// Stats computes windowed evaluation counts for a (flag, environment) pair
// from the raw evaluation log.
func (e *Engine) Stats(ctx context.Context, flagID ids.FlagID, env ids.EnvironmentID) (Stats, error) {
	now := time.Now().UTC()
	count24h, err := e.countSince(ctx, flagID, env, now.Add(-24*time.Hour))
	if err != nil {
		return Stats{}, err
	}
	count7d, err := e.countSince(ctx, flagID, env, now.Add(-7*24*time.Hour))
	if err != nil {
		return Stats{}, err
	}
	count30d, err := e.countSince(ctx, flagID, env, now.Add(-30*24*time.Hour))
	if err != nil {
		return Stats{}, err
	}

	last, err := e.client.FlagEvaluationLog.Query().
		Where(flagevaluationlog.FlagID(flagID.String()), flagevaluationlog.EnvironmentID(env.String())).
		Order(ent.Desc(flagevaluationlog.FieldEvaluatedAt)).
		First(ctx)
	var lastEvaluatedAt *time.Time
	if err == nil {
		t := last.EvaluatedAt
		lastEvaluatedAt = &t
	} else if !ent.IsNotFound(err) {
		return Stats{}, fmt.Errorf("query last evaluation: %w", err)
	}

	return Stats{
		FlagID:          flagID,
		EnvironmentID:   env,
		Count24h:        count24h,
		Count7d:         count7d,
		Count30d:        count30d,
		LastEvaluatedAt: lastEvaluatedAt,
	}, nil
}

func (e *Engine) countSince(ctx context.Context, flagID ids.FlagID, env ids.EnvironmentID, since time.Time) (int, error) {
	n, err := e.client.FlagEvaluationLog.Query().
		Where(
			flagevaluationlog.FlagID(flagID.String()),
			flagevaluationlog.EnvironmentID(env.String()),
			flagevaluationlog.EvaluatedAtGTE(since),
		).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count evaluations: %w", err)
	}
	return n, nil
}

// ListStaleFlags returns flags whose last evaluation (in any environment)
// is older than now-days, or that have never been evaluated, ordered by
// staleness.
func (e *Engine) ListStaleFlags(ctx context.Context, org ids.OrgID, days int) ([]StaleFlag, error) {
	query := e.client.Flag.Query()
	if org != "" {
		query = query.Where(entflag.OrgID(org.String()))
	}
	allFlags, err := query.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var stale []StaleFlag
	for _, row := range allFlags {
		last, err := e.client.FlagEvaluationLog.Query().
			Where(flagevaluationlog.FlagID(row.ID)).
			Order(ent.Desc(flagevaluationlog.FieldEvaluatedAt)).
			First(ctx)
		switch {
		case ent.IsNotFound(err):
			stale = append(stale, StaleFlag{Flag: fromEntFlag(row), LastEvaluatedAt: nil})
		case err != nil:
			return nil, fmt.Errorf("query last evaluation for flag %s: %w", row.Key, err)
		case last.EvaluatedAt.Before(cutoff):
			t := last.EvaluatedAt
			stale = append(stale, StaleFlag{Flag: fromEntFlag(row), LastEvaluatedAt: &t})
		}
	}

	sortStaleFlagsByStaleness(stale)
	return stale, nil
}

func sortStaleFlagsByStaleness(stale []StaleFlag) {
	for i := 1; i < len(stale); i++ {
		for j := i; j > 0 && staler(stale[j], stale[j-1]); j-- {
			stale[j], stale[j-1] = stale[j-1], stale[j]
		}
	}
}

// staler reports whether a is stale-er than b: never-evaluated sorts
// first, then oldest last_evaluated_at.
func staler(a, b StaleFlag) bool {
	if a.LastEvaluatedAt == nil {
		return b.LastEvaluatedAt != nil
	}
	if b.LastEvaluatedAt == nil {
		return false
	}
	return a.LastEvaluatedAt.Before(*b.LastEvaluatedAt)
}

func (e *Engine) announceMutation(ctx context.Context, flagID ids.FlagID, env ids.EnvironmentID) {
	if e.broadcaster == nil {
		return
	}
	e.broadcaster.Publish(env.String(), MutationEvent{FlagID: flagID.String(), EnvironmentID: env.String()})
}

// toEntPrerequisites/fromEntPrerequisites round-trip Prerequisite through
// map[string]any, the same way pkg/thread/syncstore's convert.go handles
// structured JSON columns ent has no custom-struct field type for.
func toEntPrerequisites(prereqs []Prerequisite) []map[string]any {
	out := make([]map[string]any, len(prereqs))
	for i, p := range prereqs {
		out[i] = map[string]any{"flag_key": p.FlagKey, "required_variant": p.RequiredVariant}
	}
	return out
}

func fromEntPrerequisites(rows []map[string]any) []Prerequisite {
	out := make([]Prerequisite, 0, len(rows))
	for _, row := range rows {
		p := Prerequisite{}
		if v, ok := row["flag_key"].(string); ok {
			p.FlagKey = v
		}
		if v, ok := row["required_variant"].(string); ok {
			p.RequiredVariant = v
		}
		out = append(out, p)
	}
	return out
}

func fromEntFlag(row *ent.Flag) Flag {
	var org ids.OrgID
	if row.OrgID != nil {
		org = ids.OrgID(*row.OrgID)
	}
	return Flag{
		ID:                      ids.FlagID(row.ID),
		OrgID:                   org,
		Key:                     row.Key,
		Name:                    row.Name,
		Tags:                    row.Tags,
		Variants:                row.Variants,
		DefaultVariant:          row.DefaultVariant,
		Prerequisites:           fromEntPrerequisites(row.Prerequisites),
		ExposureTrackingEnabled: row.ExposureTrackingEnabled,
		CreatedAt:               row.CreatedAt,
		ArchivedAt:              row.ArchivedAt,
	}
}

func fromEntConfig(row *ent.FlagConfig) Config {
	var strategyID *ids.StrategyID
	if row.StrategyID != nil {
		id := ids.StrategyID(*row.StrategyID)
		strategyID = &id
	}
	return Config{
		ID:            row.ID,
		FlagID:        ids.FlagID(row.FlagID),
		EnvironmentID: ids.EnvironmentID(row.EnvironmentID),
		Enabled:       row.Enabled,
		StrategyID:    strategyID,
		UpdatedAt:     row.UpdatedAt,
	}
}

func fromEntStrategy(row *ent.FlagStrategy) Strategy {
	return Strategy{
		ID:            ids.StrategyID(row.ID),
		Conditions:    row.Conditions,
		Variant:       row.Variant,
		Percentage:    row.Percentage,
		PercentageKey: row.PercentageKey,
		ScheduleStart: row.ScheduleStart,
		ScheduleEnd:   row.ScheduleEnd,
	}
}
