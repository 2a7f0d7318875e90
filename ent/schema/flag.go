package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// FlagEnvironment holds the schema definition for a flag environment
// (e.g. dev/staging/prod) within an org.
type FlagEnvironment struct {
	ent.Schema
}

func (FlagEnvironment) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("org_id"),
		field.String("name"),
		field.String("color").Optional(),
	}
}

func (FlagEnvironment) Indexes() []ent.Index {
	return []ent.Index{index.Fields("org_id", "name").Unique()}
}

// SDKKey holds the schema definition for an SDK key used to authenticate
// flag/analytics SDK connections against one environment.
type SDKKey struct {
	ent.Schema
}

func (SDKKey) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("environment_id"),
		field.Enum("key_type").Values("server", "client", "readwrite"),
		field.String("key_hash").Comment("Argon2id hash of the raw key; the raw key is shown only at creation"),
		field.Time("last_used_at").Optional().Nillable(),
		field.Time("revoked_at").Optional().Nillable(),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (SDKKey) Indexes() []ent.Index {
	return []ent.Index{index.Fields("environment_id")}
}

// Flag holds the schema definition for a feature flag, optionally scoped
// to an org (a nil org_id is a platform-level flag).
type Flag struct {
	ent.Schema
}

func (Flag) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("org_id").Optional().Nillable(),
		field.String("key"),
		field.String("name"),
		field.JSON("tags", []string{}).Optional(),
		field.JSON("variants", []string{}).Optional(),
		field.String("default_variant"),
		field.JSON("prerequisites", []map[string]any{}).Optional().
			Comment("each entry is {flag_key, required_variant}, gating this flag on another flag_key evaluating to required_variant"),
		field.Bool("exposure_tracking_enabled").Default(false),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("archived_at").Optional().Nillable(),
	}
}

func (Flag) Indexes() []ent.Index {
	return []ent.Index{index.Fields("org_id", "key").Unique()}
}

// FlagConfig holds the schema definition for the per-(flag, environment)
// enablement and strategy assignment.
type FlagConfig struct {
	ent.Schema
}

func (FlagConfig) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("flag_id"),
		field.String("environment_id"),
		field.Bool("enabled").Default(false),
		field.String("strategy_id").Optional().Nillable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (FlagConfig) Indexes() []ent.Index {
	return []ent.Index{index.Fields("flag_id", "environment_id").Unique()}
}

// FlagStrategy holds the schema definition for a rollout strategy: match
// conditions, an optional percentage rollout, and an optional schedule
// window during which the strategy is considered active.
type FlagStrategy struct {
	ent.Schema
}

func (FlagStrategy) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.JSON("conditions", map[string]any{}).Optional(),
		field.String("variant").Comment("variant returned when this strategy matches"),
		field.Int("percentage").Optional().Nillable(),
		field.String("percentage_key").Optional().
			Comment("evaluation-context property hashed for the percentage rollout"),
		field.Time("schedule_start").Optional().Nillable(),
		field.Time("schedule_end").Optional().Nillable(),
	}
}

// KillSwitch holds the schema definition for an emergency flag-disabling
// switch that can link several flag keys at once.
type KillSwitch struct {
	ent.Schema
}

func (KillSwitch) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("org_id").Optional().Nillable(),
		field.JSON("flag_keys", []string{}),
		field.Bool("is_active").Default(false),
		field.String("activated_by").Optional(),
		field.String("reason").Optional(),
		field.Time("activated_at").Optional().Nillable(),
	}
}

func (KillSwitch) Indexes() []ent.Index {
	return []ent.Index{index.Fields("org_id", "is_active")}
}

// ExposureLog holds the schema definition for a deduped exposure record,
// used to avoid logging the same (flag, context) pair more than once per
// dedup window.
type ExposureLog struct {
	ent.Schema
}

func (ExposureLog) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("flag_key"),
		field.String("context_hash"),
		field.String("variant"),
		field.String("reason"),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (ExposureLog) Indexes() []ent.Index {
	return []ent.Index{index.Fields("flag_key", "context_hash", "created_at")}
}

// FlagEvaluationLog holds the schema definition for a raw per-evaluation
// timestamp, feeding the windowed counts FlagStats reports. Unlike
// ExposureLog, every Evaluate call appends a row here regardless of
// whether exposure tracking is enabled for the flag.
type FlagEvaluationLog struct {
	ent.Schema
}

func (FlagEvaluationLog) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("flag_id"),
		field.String("environment_id"),
		field.Time("evaluated_at").Default(time.Now).Immutable(),
	}
}

func (FlagEvaluationLog) Indexes() []ent.Index {
	return []ent.Index{index.Fields("flag_id", "environment_id", "evaluated_at")}
}
