package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// User holds the schema definition for the User entity.
type User struct {
	ent.Schema
}

// Fields of the User.
func (User) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("display_name"),
		field.String("username").
			Optional().
			Nillable().
			Comment("unique slug; reserved-name list enforced at the service layer"),
		field.String("primary_email").
			Optional().
			Nillable(),
		field.Bool("email_visible").
			Default(false),
		field.String("avatar_url").
			Optional().
			Nillable(),
		field.Bool("is_system_admin").
			Default(false),
		field.Bool("is_support").
			Default(false),
		field.Bool("is_auditor").
			Default(false),
		field.String("locale").
			Default("en-US"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("deleted_at").
			Optional().
			Nillable().
			Comment("soft-delete; 30-day restore grace"),
	}
}

// Edges of the User.
func (User) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("org_memberships", OrgMembership.Type),
		edge.To("team_memberships", TeamMembership.Type),
		edge.To("sessions", Session.Type),
	}
}

// Indexes of the User.
func (User) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("username").Unique(),
	}
}
