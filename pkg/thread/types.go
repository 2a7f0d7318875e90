// Package thread implements Loom's thread model and store: the CLI-local
// conversation record that travels between a local file, a Postgres-backed
// sync tier, and search.
package thread

import (
	"time"

	"github.com/codeready-toolchain/loom/internal/ids"
)

// Visibility is the exposure level of a thread.
type Visibility int

const (
	VisibilityPrivate Visibility = iota
	VisibilityOrganization
	VisibilityPublic
)

func (v Visibility) String() string {
	switch v {
	case VisibilityPrivate:
		return "private"
	case VisibilityOrganization:
		return "organization"
	case VisibilityPublic:
		return "public"
	default:
		return "unknown"
	}
}

// Role is a message's speaker.
type Role int

const (
	RoleUser Role = iota
	RoleAssistant
	RoleTool
	RoleSystem
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	case RoleTool:
		return "tool"
	case RoleSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ToolCall is an assistant-issued invocation, embedded on the message that
// requested it.
type ToolCall struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is one positional, immutable entry in a thread's conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID *string    `json:"tool_call_id,omitempty"`
	ToolName   *string    `json:"tool_name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// CommitRecord is one git commit observed over the thread's lifetime,
// flagged for the role it played.
type CommitRecord struct {
	SHA       string `json:"sha"`
	IsInitial bool   `json:"is_initial"`
	IsFinal   bool   `json:"is_final"`
	IsDirty   bool   `json:"is_dirty"`
}

// GitSnapshot captures the repo state a thread was opened/closed against.
type GitSnapshot struct {
	Branch          string         `json:"branch"`
	RemoteSlug      string         `json:"remote_slug"`
	InitialBranch   string         `json:"initial_branch"`
	InitialCommit   string         `json:"initial_commit_sha"`
	CurrentCommit   string         `json:"current_commit_sha"`
	StartDirty      bool           `json:"start_dirty"`
	EndDirty        bool           `json:"end_dirty"`
	Commits         []CommitRecord `json:"commits"`
}

// PendingToolCall is a tool invocation the agent state machine had
// in flight when the thread was last persisted.
type PendingToolCall struct {
	ID       string `json:"id"`
	ToolName string `json:"tool_name"`
}

// AgentStateSnapshot mirrors enough of pkg/agent.State to resume a thread
// without replaying the whole conversation through the state machine.
type AgentStateSnapshot struct {
	Kind             string             `json:"kind"`
	Retries          int                `json:"retries"`
	LastError        *string            `json:"last_error,omitempty"`
	PendingToolCalls []PendingToolCall  `json:"pending_tool_calls,omitempty"`
}

// Metadata is the free-form, user-editable part of a thread.
type Metadata struct {
	Title    string   `json:"title"`
	Tags     []string `json:"tags,omitempty"`
	IsPinned bool     `json:"is_pinned"`
}

// Thread is Loom's CLI-local conversation record.
type Thread struct {
	ID             ids.ThreadID       `json:"id"`
	Version        int64              `json:"version"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	LastActivityAt time.Time          `json:"last_activity_at"`
	WorkspaceRoot  string             `json:"workspace_root"`
	Cwd            string             `json:"cwd"`
	LoomVersion    string             `json:"loom_version"`
	Provider       string             `json:"provider"`
	Model          string             `json:"model"`
	Git            GitSnapshot        `json:"git"`
	Conversation   []Message          `json:"conversation"`
	AgentState     AgentStateSnapshot `json:"agent_state"`
	Metadata       Metadata           `json:"metadata"`
	Visibility     Visibility         `json:"visibility"`

	// IsPrivate, when true, means the thread is local-only and must never
	// be synced ( invariant (a): is_private ⇒ visibility == Private,
	// and the server must never accept its upload).
	IsPrivate         bool `json:"is_private"`
	IsSharedWithSupport bool `json:"is_shared_with_support"`

	OwnerUserID ids.UserID `json:"owner_user_id"`
	OrgID       ids.OrgID  `json:"org_id,omitempty"`
}

// Valid reports whether the thread satisfies its invariants, for callers
// that construct or mutate a Thread directly before handing it to a Store.
func (t Thread) Valid() bool {
	if t.IsPrivate && t.Visibility != VisibilityPrivate {
		return false
	}
	return true
}

// ThreadSummary is the listing/search projection of a Thread.
type ThreadSummary struct {
	ID             ids.ThreadID `json:"id"`
	Version        int64        `json:"version"`
	Title          string       `json:"title"`
	WorkspaceRoot  string       `json:"workspace_root"`
	Visibility     Visibility   `json:"visibility"`
	InitialCommit  string       `json:"initial_commit_sha"`
	CurrentCommit  string       `json:"current_commit_sha"`
	MessageCount   int          `json:"message_count"`
	CreatedAt      time.Time    `json:"created_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
	OwnerUserID    ids.UserID   `json:"owner_user_id"`
}

// ThreadSearchHit is a ThreadSummary plus its ranking score: 1.0 for a
// commit-SHA-prefix hit, a normalized BM25 score for a full-text hit
// ( Open Question: no blending between the two score spaces —
// a commit-prefix match always outranks every FTS hit to its query).
type ThreadSearchHit struct {
	Summary ThreadSummary `json:"summary"`
	Score   float64       `json:"score"`
}

func summarize(t Thread) ThreadSummary {
	initial, current := t.Git.InitialCommit, t.Git.CurrentCommit
	return ThreadSummary{
		ID:             t.ID,
		Version:        t.Version,
		Title:          t.Metadata.Title,
		WorkspaceRoot:  t.WorkspaceRoot,
		Visibility:     t.Visibility,
		InitialCommit:  initial,
		CurrentCommit:  current,
		MessageCount:   len(t.Conversation),
		CreatedAt:      t.CreatedAt,
		LastActivityAt: t.LastActivityAt,
		OwnerUserID:    t.OwnerUserID,
	}
}
