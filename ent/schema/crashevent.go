package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CrashEvent holds the schema definition for one ingested crash report,
// scoped to an org and project. The wire shape it is decoded from
// mirrors Sentry's event envelope; what is stored here is the normalized
// subset Loom's UI and API actually surface.
type CrashEvent struct {
	ent.Schema
}

func (CrashEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("org_id"),
		field.String("project_id"),
		field.String("message"),
		field.Text("stacktrace").Optional(),
		field.String("release").Optional(),
		field.String("environment").Optional(),
		field.JSON("context", map[string]any{}).Optional().Comment("arbitrary extra/tags payload from the reporter"),
		field.Time("received_at").Default(time.Now).Immutable(),
	}
}

func (CrashEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("org_id", "project_id"),
		index.Fields("project_id", "release"),
	}
}

// CronMonitor holds the schema definition for a dead-man's-switch job
// monitor: a job pings it periodically, and it is considered failed once
// expected_period + grace has elapsed since the last ping.
type CronMonitor struct {
	ent.Schema
}

func (CronMonitor) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("key").Comment("caller-chosen slug, unique per org"),
		field.String("org_id"),
		field.Int64("expected_period_seconds"),
		field.Int64("grace_seconds").Default(0),
		field.Time("last_ping_at").Optional().Nillable(),
		field.Enum("status").Values("ok", "in_progress", "failed", "unknown").Default("unknown"),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (CronMonitor) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("org_id", "key").Unique(),
	}
}
