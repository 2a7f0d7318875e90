package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Person holds the schema definition for an analytics person: the
// terminal identity a distinct id resolves to, possibly after following
// a chain of merges.
type Person struct {
	ent.Schema
}

func (Person) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("org_id"),
		field.JSON("properties", map[string]any{}).Optional(),
		field.String("merged_into_id").Optional().Nillable().Comment("non-nil once this person has been merged away"),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (Person) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("identities", PersonIdentity.Type),
	}
}

func (Person) Indexes() []ent.Index {
	return []ent.Index{index.Fields("org_id")}
}

// PersonIdentity holds the schema definition for a (distinct_id, person)
// pairing within an org.
type PersonIdentity struct {
	ent.Schema
}

func (PersonIdentity) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("org_id"),
		field.String("person_id"),
		field.String("distinct_id"),
		field.Enum("kind").Values("anonymous", "identified"),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (PersonIdentity) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("person", Person.Type).Ref("identities").Unique().Field("person_id").Required(),
	}
}

func (PersonIdentity) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("org_id", "distinct_id").Unique(),
		index.Fields("person_id"),
	}
}

// Event holds the schema definition for an analytics event.
type Event struct {
	ent.Schema
}

func (Event) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("org_id"),
		field.String("distinct_id"),
		field.String("person_id").Optional().Nillable(),
		field.String("event_name"),
		field.JSON("properties", map[string]any{}).Optional(),
		field.Time("timestamp").Default(time.Now).Immutable(),
	}
}

func (Event) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("org_id", "event_name", "timestamp"),
		index.Fields("person_id"),
	}
}

// PersonMerge holds the schema definition for a record of one person
// being merged into another.
type PersonMerge struct {
	ent.Schema
}

func (PersonMerge) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("org_id"),
		field.String("winner_id"),
		field.String("loser_id"),
		field.Enum("reason_kind").Values("identify", "alias"),
		field.String("reason_distinct_id"),
		field.String("reason_other").Comment("user_id for Identify, alias for Alias"),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (PersonMerge) Indexes() []ent.Index {
	return []ent.Index{index.Fields("org_id", "winner_id")}
}
