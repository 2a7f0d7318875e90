package llmproxy

import (
	"testing"

	llmv1 "github.com/codeready-toolchain/loom/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToProtoMessages(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "You are a bot"},
		{Role: RoleUser, Content: "Hello"},
		{Role: RoleAssistant, Content: "Hi", ToolCalls: []ToolCall{
			{ID: "tc1", Name: "repo.search", Arguments: `{"q":"foo"}`},
		}},
		{Role: RoleTool, Content: `{"result":"ok"}`, ToolCallID: "tc1", ToolName: "repo.search"},
	}

	result := toProtoMessages(messages)
	require.Len(t, result, 4)

	assert.Equal(t, "system", result[0].Role)
	assert.Equal(t, "You are a bot", result[0].Content)

	assert.Equal(t, "assistant", result[2].Role)
	require.Len(t, result[2].ToolCalls, 1)
	assert.Equal(t, "tc1", result[2].ToolCalls[0].Id)
	assert.Equal(t, "repo.search", result[2].ToolCalls[0].Name)

	assert.Equal(t, "tool", result[3].Role)
	assert.Equal(t, "tc1", result[3].ToolCallId)
	assert.Equal(t, "repo.search", result[3].ToolName)
}

func TestToProtoTools(t *testing.T) {
	t.Run("nil tools returns nil", func(t *testing.T) {
		assert.Nil(t, toProtoTools(nil))
	})

	t.Run("converts tools", func(t *testing.T) {
		tools := []Tool{
			{Name: "repo.search", Description: "Search the repo", ParametersSchema: `{"type":"object"}`},
		}
		result := toProtoTools(tools)
		require.Len(t, result, 1)
		assert.Equal(t, "repo.search", result[0].Name)
	})
}

func TestToProtoRequest(t *testing.T) {
	req := Request{
		Model:       "claude-sonnet",
		MaxTokens:   1024,
		Temperature: 0.2,
		Messages:    []Message{{Role: RoleUser, Content: "hi"}},
	}
	proto := toProtoRequest(req)
	assert.Equal(t, "claude-sonnet", proto.Model)
	assert.Equal(t, int32(1024), proto.MaxTokens)
	assert.Equal(t, 0.2, proto.Temperature)
	require.Len(t, proto.Messages, 1)
}

func TestFromProtoResponse(t *testing.T) {
	t.Run("text delta", func(t *testing.T) {
		resp := &llmv1.GenerateResponse{
			Content: &llmv1.GenerateResponse_TextDelta{
				TextDelta: &llmv1.TextDelta{Content: "hello"},
			},
		}
		evt, terminal := fromProtoResponse(resp)
		assert.False(t, terminal)
		assert.Equal(t, EventTextDelta, evt.Kind)
		assert.Equal(t, "hello", evt.TextDelta)
	})

	t.Run("tool call delta", func(t *testing.T) {
		resp := &llmv1.GenerateResponse{
			Content: &llmv1.GenerateResponse_ToolCallDelta{
				ToolCallDelta: &llmv1.ToolCall{Id: "call1", Name: "repo.search", Arguments: `{"q":"x"}`},
			},
		}
		evt, terminal := fromProtoResponse(resp)
		assert.False(t, terminal)
		require.NotNil(t, evt.ToolCallDelta)
		assert.Equal(t, "call1", evt.ToolCallDelta.ID)
		assert.Equal(t, "repo.search", evt.ToolCallDelta.Name)
	})

	t.Run("completed with usage", func(t *testing.T) {
		resp := &llmv1.GenerateResponse{
			Content: &llmv1.GenerateResponse_Completed{
				Completed: &llmv1.Completed{
					Content: "final answer",
					Usage:   &llmv1.Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
				},
			},
		}
		evt, terminal := fromProtoResponse(resp)
		assert.True(t, terminal)
		require.NotNil(t, evt.Completed)
		assert.Equal(t, "final answer", evt.Completed.Content)
		assert.Equal(t, 30, evt.Completed.Usage.TotalTokens)
	})

	t.Run("error", func(t *testing.T) {
		resp := &llmv1.GenerateResponse{
			Content: &llmv1.GenerateResponse_Error{
				Error: &llmv1.Error{Message: "rate limited", Code: "429", Retryable: true},
			},
		}
		evt, terminal := fromProtoResponse(resp)
		assert.True(t, terminal)
		assert.Equal(t, EventError, evt.Kind)
		require.Error(t, evt.Err)
	})
}
