package syncstore

import (
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/loom/ent"
	"github.com/codeready-toolchain/loom/internal/ids"
	threadpkg "github.com/codeready-toolchain/loom/pkg/thread"
)

// gitSnapshotJSON, conversationJSON, agentStateJSON, and metadataJSON
// round-trip the corresponding pkg/thread structs through the generic
// map/slice shapes ent.Thread's JSON columns are typed with, since ent
// schema fields can't reference pkg/thread's types directly without an
// import cycle (pkg/thread would have to import the generated ent
// package, which already imports pkg/thread-adjacent code nowhere -
// keeping the schema package dependency-free of pkg/thread instead).
func gitSnapshotJSON(g threadpkg.GitSnapshot) map[string]any {
	return toMap(g)
}

func conversationJSON(msgs []threadpkg.Message) []map[string]any {
	out := make([]map[string]any, len(msgs))
	for i, m := range msgs {
		out[i] = toMap(m)
	}
	return out
}

func agentStateJSON(a threadpkg.AgentStateSnapshot) map[string]any {
	return toMap(a)
}

func metadataJSON(m threadpkg.Metadata) map[string]any {
	return toMap(m)
}

func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// fromEnt reconstructs a pkg/thread.Thread from its generated ent row
// plus its separately-stored commit rows.
func fromEnt(e *ent.Thread, commits []*ent.ThreadCommit) (threadpkg.Thread, error) {
	var git threadpkg.GitSnapshot
	if err := remarshal(e.Git, &git); err != nil {
		return threadpkg.Thread{}, fmt.Errorf("decode git snapshot: %w", err)
	}

	records := make([]threadpkg.CommitRecord, len(commits))
	for i, c := range commits {
		records[i] = threadpkg.CommitRecord{SHA: c.Sha, IsInitial: c.IsInitial, IsFinal: c.IsFinal, IsDirty: c.IsDirty}
	}
	git.Commits = records

	var conversation []threadpkg.Message
	if err := remarshal(e.Conversation, &conversation); err != nil {
		return threadpkg.Thread{}, fmt.Errorf("decode conversation: %w", err)
	}

	var agentState threadpkg.AgentStateSnapshot
	if err := remarshal(e.AgentState, &agentState); err != nil {
		return threadpkg.Thread{}, fmt.Errorf("decode agent state: %w", err)
	}

	var metadata threadpkg.Metadata
	if err := remarshal(e.Metadata, &metadata); err != nil {
		return threadpkg.Thread{}, fmt.Errorf("decode metadata: %w", err)
	}

	visibility, err := parseVisibility(string(e.Visibility))
	if err != nil {
		return threadpkg.Thread{}, err
	}

	var orgID ids.OrgID
	if e.OrgID != nil {
		orgID = ids.OrgID(*e.OrgID)
	}

	return threadpkg.Thread{
		ID:                  ids.ThreadID(e.ID),
		Version:             e.Version,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
		LastActivityAt:      e.LastActivityAt,
		WorkspaceRoot:       e.WorkspaceRoot,
		Cwd:                 e.Cwd,
		LoomVersion:         e.LoomVersion,
		Provider:            e.Provider,
		Model:               e.Model,
		Git:                 git,
		Conversation:        conversation,
		AgentState:          agentState,
		Metadata:            metadata,
		Visibility:          visibility,
		IsPrivate:           false,
		IsSharedWithSupport: e.IsSharedWithSupport,
		OwnerUserID:         ids.UserID(e.OwnerUserID),
		OrgID:               orgID,
	}, nil
}

func remarshal(from any, to any) error {
	data, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, to)
}

func parseVisibility(v string) (threadpkg.Visibility, error) {
	switch v {
	case "organization":
		return threadpkg.VisibilityOrganization, nil
	case "public":
		return threadpkg.VisibilityPublic, nil
	default:
		return 0, fmt.Errorf("unknown thread visibility %q", v)
	}
}

func summaryFromEnt(e *ent.Thread) threadpkg.ThreadSummary {
	var git threadpkg.GitSnapshot
	_ = remarshal(e.Git, &git)

	var conversation []map[string]any
	_ = remarshal(e.Conversation, &conversation)

	return threadpkg.ThreadSummary{
		ID:             ids.ThreadID(e.ID),
		Version:        e.Version,
		Title:          e.Title,
		WorkspaceRoot:  e.WorkspaceRoot,
		Visibility:     visibilityOrZero(string(e.Visibility)),
		InitialCommit:  git.InitialCommit,
		CurrentCommit:  git.CurrentCommit,
		MessageCount:   len(conversation),
		CreatedAt:      e.CreatedAt,
		LastActivityAt: e.LastActivityAt,
		OwnerUserID:    ids.UserID(e.OwnerUserID),
	}
}

func visibilityOrZero(v string) threadpkg.Visibility {
	vis, err := parseVisibility(v)
	if err != nil {
		return threadpkg.VisibilityOrganization
	}
	return vis
}
