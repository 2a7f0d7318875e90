package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Team holds the schema definition for the Team entity.
type Team struct {
	ent.Schema
}

func (Team) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("org_id"),
		field.String("name"),
		field.String("slug").Comment("unique within org, 2-50 chars"),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (Team) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("org", Organization.Type).Ref("teams").Unique().Field("org_id").Required(),
		edge.To("memberships", TeamMembership.Type),
	}
}

func (Team) Indexes() []ent.Index {
	return []ent.Index{index.Fields("org_id", "slug").Unique()}
}

// TeamMembership holds the schema definition for the TeamMembership entity.
type TeamMembership struct {
	ent.Schema
}

func (TeamMembership) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("team_id"),
		field.String("user_id"),
		field.Enum("role").Values("maintainer", "member"),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (TeamMembership) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("team", Team.Type).Ref("memberships").Unique().Field("team_id").Required(),
		edge.From("user", User.Type).Ref("team_memberships").Unique().Field("user_id").Required(),
	}
}

func (TeamMembership) Indexes() []ent.Index {
	return []ent.Index{index.Fields("team_id", "user_id").Unique()}
}
