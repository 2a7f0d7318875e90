package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Secret holds the schema definition for a custody-wrapped secret value
// scoped to a repository or organization. The plaintext never
// touches storage: ciphertext is an age-encrypted envelope sealed to the
// server's own KEK recipient, decrypted only inside pkg/secrets for the
// duration of a single read.
type Secret struct {
	ent.Schema
}

func (Secret) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.Enum("owner_type").Values("repo", "org"),
		field.String("owner_id"),
		field.String("key"),
		field.String("ciphertext").Sensitive().Comment("age-encrypted envelope, never the plaintext"),
		field.Int("version").Default(1).Comment("bumped each time Put overwrites the value"),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (Secret) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("owner_type", "owner_id", "key").Unique(),
	}
}
