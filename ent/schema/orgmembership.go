package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// OrgMembership holds the schema definition for the OrgMembership entity.
type OrgMembership struct {
	ent.Schema
}

func (OrgMembership) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("org_id"),
		field.String("user_id"),
		field.Enum("role").Values("owner", "admin", "member"),
		field.String("provisioned_by").Optional().Nillable().Comment(`e.g. "scim", "oauth"`),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (OrgMembership) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("org", Organization.Type).Ref("memberships").Unique().Field("org_id").Required(),
		edge.From("user", User.Type).Ref("org_memberships").Unique().Field("user_id").Required(),
	}
}

func (OrgMembership) Indexes() []ent.Index {
	return []ent.Index{index.Fields("org_id", "user_id").Unique()}
}
