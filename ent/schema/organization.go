package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Organization holds the schema definition for the Organization entity.
type Organization struct {
	ent.Schema
}

func (Organization) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("name"),
		field.String("slug"),
		field.Enum("visibility").Values("public", "unlisted", "private").Default("private"),
		field.Bool("is_personal").Default(false),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
		field.Time("deleted_at").Optional().Nillable().Comment("soft-delete; 90-day restore grace"),
	}
}

func (Organization) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("memberships", OrgMembership.Type),
		edge.To("teams", Team.Type),
		edge.To("invitations", Invitation.Type),
		edge.To("join_requests", JoinRequest.Type),
	}
}

// Indexes declares a lookup index on slug only; true uniqueness is enforced
// by a partial unique index (slug WHERE deleted_at IS NULL, see
// database.CreatePartialUniqueIndexes) so a soft-deleted org's slug becomes
// reusable immediately instead of blocking new signups for its 90-day
// restore grace window.
func (Organization) Indexes() []ent.Index {
	return []ent.Index{index.Fields("slug")}
}
