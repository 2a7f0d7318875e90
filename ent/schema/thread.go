package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Thread holds the schema definition for the server-side copy of a
// synced thread. is_private threads never reach this table - the
// server rejects their upload at the handler layer, so every row here
// is Organization- or Public-visibility by construction.
type Thread struct {
	ent.Schema
}

func (Thread) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable().Comment("T- prefixed opaque id, matches the client-local thread id"),
		field.Int64("version"),
		field.String("owner_user_id"),
		field.String("org_id").Optional().Nillable(),
		field.String("workspace_root"),
		field.String("cwd"),
		field.String("loom_version"),
		field.String("provider"),
		field.String("model"),
		field.String("title").Default("").Comment("denormalized from metadata for search/sort without decoding JSON"),
		field.Enum("visibility").Values("organization", "public"),
		field.Bool("is_shared_with_support").Default(false),
		field.JSON("git", map[string]any{}).Comment("GitSnapshot, minus the commit list which lives in thread_commits"),
		field.JSON("conversation", []map[string]any{}).Comment("ordered Message list"),
		field.JSON("agent_state", map[string]any{}),
		field.JSON("metadata", map[string]any{}),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
		field.Time("last_activity_at"),
	}
}

func (Thread) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("repo", ThreadRepo.Type).Unique(),
		edge.To("commits", ThreadCommit.Type),
	}
}

func (Thread) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("owner_user_id", "last_activity_at"),
		index.Fields("workspace_root"),
	}
}

// ThreadRepo links a synced thread to the hosted repository its commits
// were pushed to, when the thread's workspace has a remote.
type ThreadRepo struct {
	ent.Schema
}

func (ThreadRepo) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("thread_id"),
		field.String("remote_slug").Comment("org/repo slug this thread's commits were pushed to"),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (ThreadRepo) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("thread", Thread.Type).Ref("repo").Unique().Field("thread_id").Required(),
	}
}

func (ThreadRepo) Indexes() []ent.Index {
	return []ent.Index{index.Fields("thread_id").Unique()}
}

// ThreadCommit records one git commit observed over a synced thread's
// lifetime, flagged for the role it played, and is the backing index
// for SHA-prefix search across synced threads.
type ThreadCommit struct {
	ent.Schema
}

func (ThreadCommit) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").Unique().Immutable(),
		field.String("thread_id"),
		field.String("sha"),
		field.Bool("is_initial").Default(false),
		field.Bool("is_final").Default(false),
		field.Bool("is_dirty").Default(false),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (ThreadCommit) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("thread", Thread.Type).Ref("commits").Unique().Field("thread_id").Required(),
	}
}

func (ThreadCommit) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("sha"),
		index.Fields("thread_id"),
	}
}
