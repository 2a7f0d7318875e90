package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// Invitation holds the schema definition for the Invitation entity.
type Invitation struct {
	ent.Schema
}

func (Invitation) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("org_id"),
		field.String("email"),
		field.Enum("role").Values("owner", "admin", "member"),
		field.String("invited_by"),
		field.String("token_hash").Comment("SHA-256 of the invitation token"),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("expires_at"),
		field.Time("accepted_at").Optional().Nillable(),
	}
}

func (Invitation) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("org", Organization.Type).Ref("invitations").Unique().Field("org_id").Required(),
	}
}

// JoinRequest holds the schema definition for the JoinRequest entity.
type JoinRequest struct {
	ent.Schema
}

func (JoinRequest) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("org_id"),
		field.String("user_id"),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("handled_at").Optional().Nillable(),
		field.String("handled_by").Optional().Nillable(),
		field.Bool("approved").Optional().Nillable(),
	}
}

func (JoinRequest) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("org", Organization.Type).Ref("join_requests").Unique().Field("org_id").Required(),
	}
}
