package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Webhook holds the schema definition for a webhook subscription owned by
// either a repository or an organization.
type Webhook struct {
	ent.Schema
}

func (Webhook) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.Enum("owner_type").Values("repo", "org"),
		field.String("owner_id"),
		field.String("url"),
		field.String("secret").Sensitive(),
		field.Enum("payload_format").Values("github_compat", "loom_v1"),
		field.JSON("events", []string{}).Comment("event names this webhook is subscribed to"),
		field.Bool("enabled").Default(true),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (Webhook) Indexes() []ent.Index {
	return []ent.Index{index.Fields("owner_type", "owner_id")}
}

// WebhookDelivery holds the schema definition for one delivery attempt
// record: a single event fired at a single webhook, retried with
// exponential backoff until it succeeds or exhausts its attempt budget.
type WebhookDelivery struct {
	ent.Schema
}

func (WebhookDelivery) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("webhook_id"),
		field.String("event"),
		field.JSON("payload", map[string]any{}),
		field.Int("attempts").Default(0),
		field.Time("next_retry_at").Optional().Nillable(),
		field.Enum("status").Values("pending", "success", "failed"),
		field.Int("last_status_code").Optional().Nillable(),
		field.String("last_error").Optional(),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("delivered_at").Optional().Nillable(),
	}
}

func (WebhookDelivery) Indexes() []ent.Index {
	return []ent.Index{index.Fields("webhook_id"), index.Fields("status", "next_retry_at")}
}
