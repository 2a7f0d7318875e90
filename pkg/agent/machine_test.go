package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMachineStartsWaitingWithEmptyConversation(t *testing.T) {
	m := New(0, nil)
	assert.Equal(t, StateWaitingForUserInput, m.State().Kind)
	assert.Equal(t, 0, m.State().Retries)
	assert.Empty(t, m.Conversation())
}

// Scenario 1: happy path, no tools.
func TestScenarioHappyPathNoTools(t *testing.T) {
	m := New(0, nil)

	action := m.Handle(Event{Kind: EventUserInput, UserMessage: Message{Role: RoleUser, Content: "Hi"}})
	require.Equal(t, ActionSendLLMRequest, action.Kind)
	require.Equal(t, StateCallingLLM, m.State().Kind)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "Hi"}}, action.Messages)

	action = m.Handle(Event{Kind: EventLLMCompleted, LLMResult: LLMResult{
		AssistantMessage: Message{Role: RoleAssistant, Content: "Hello!"},
	}})
	assert.Equal(t, StateWaitingForUserInput, m.State().Kind)
	assert.Equal(t, ActionWaitForInput, action.Kind)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "Hi"},
		{Role: RoleAssistant, Content: "Hello!"},
	}, m.Conversation())
}

// Scenario 2: tool call with mutation.
func TestScenarioToolCallWithMutation(t *testing.T) {
	m := New(0, nil)
	m.Handle(Event{Kind: EventUserInput, UserMessage: Message{Role: RoleUser, Content: "edit the file"}})

	call := ToolCall{ID: "c1", ToolName: "edit_file", Arguments: map[string]any{}}
	action := m.Handle(Event{Kind: EventLLMCompleted, LLMResult: LLMResult{
		AssistantMessage: Message{Role: RoleAssistant, ToolCalls: []ToolCall{call}},
		ToolCalls:        []ToolCall{call},
	}})
	require.Equal(t, ActionExecuteTools, action.Kind)
	require.Equal(t, StateExecutingTools, m.State().Kind)
	assert.Equal(t, []ToolCall{call}, action.ToolCalls)

	action = m.Handle(Event{
		Kind:       EventToolCompleted,
		ToolCallID: "c1",
		Outcome:    ToolOutcome{Success: true, Output: map[string]any{"ok": true}},
	})
	require.Equal(t, ActionRunPostToolsHook, action.Kind)
	require.Equal(t, StatePostToolsHook, m.State().Kind)
	require.Len(t, action.CompletedTools, 1)
	assert.Equal(t, CompletedTool{ToolName: "edit_file", Success: true}, action.CompletedTools[0])

	action = m.Handle(Event{Kind: EventPostToolsHookCompleted, ActionTaken: true})
	assert.Equal(t, StateCallingLLM, m.State().Kind)
	assert.Equal(t, ActionSendLLMRequest, action.Kind)
	require.NotEmpty(t, action.Messages)
	assert.Equal(t, RoleTool, action.Messages[len(action.Messages)-1].Role)
}

// Scenario 3: non-mutating tool skips the hook.
func TestScenarioNonMutatingToolSkipsHook(t *testing.T) {
	m := New(0, nil)
	m.Handle(Event{Kind: EventUserInput, UserMessage: Message{Role: RoleUser, Content: "read a file"}})

	call := ToolCall{ID: "c1", ToolName: "read_file"}
	m.Handle(Event{Kind: EventLLMCompleted, LLMResult: LLMResult{
		AssistantMessage: Message{Role: RoleAssistant, ToolCalls: []ToolCall{call}},
		ToolCalls:        []ToolCall{call},
	}})

	action := m.Handle(Event{
		Kind:       EventToolCompleted,
		ToolCallID: "c1",
		Outcome:    ToolOutcome{Success: true, Output: map[string]any{"content": "hi"}},
	})
	assert.Equal(t, StateCallingLLM, m.State().Kind)
	assert.Equal(t, ActionSendLLMRequest, action.Kind, "a non-mutating tool must never trigger RunPostToolsHook")
}

// Scenario 4: LLM retry exhaustion with max_retries=2.
func TestScenarioLLMRetryExhaustion(t *testing.T) {
	m := New(2, nil)
	m.Handle(Event{Kind: EventUserInput, UserMessage: Message{Role: RoleUser, Content: "go"}})

	action := m.Handle(Event{Kind: EventLLMError, Err: "timeout"})
	assert.Equal(t, StateError, m.State().Kind)
	assert.Equal(t, 1, m.State().Retries)
	assert.Equal(t, ActionWaitForInput, action.Kind)

	action = m.Handle(Event{Kind: EventRetryTimeoutFired})
	assert.Equal(t, StateCallingLLM, m.State().Kind)
	assert.Equal(t, 1, m.State().Retries)
	assert.Equal(t, ActionSendLLMRequest, action.Kind)

	action = m.Handle(Event{Kind: EventLLMError, Err: "API error: x"})
	assert.Equal(t, StateWaitingForUserInput, m.State().Kind)
	assert.Equal(t, ActionDisplayError, action.Kind)
	assert.Contains(t, action.ErrorText, "API error")
}

func TestShutdownRequestedFromEveryReachableState(t *testing.T) {
	states := []State{
		{Kind: StateWaitingForUserInput},
		{Kind: StateCallingLLM, Retries: 1},
		{Kind: StateExecutingTools, Executions: []ToolExecution{{Call: ToolCall{ID: "c1"}}}},
		{Kind: StatePostToolsHook},
		{Kind: StateError, Retries: 1, ErrorOrigin: ErrorOriginLLM},
	}
	for _, s := range states {
		next, action := HandleEvent(s, Event{Kind: EventShutdownRequested}, 0, nil)
		assert.Equal(t, StateShuttingDown, next.Kind)
		assert.Equal(t, ActionShutdown, action.Kind)
	}
}

func TestUnhandledPairsLeaveStateUnchangedAndWait(t *testing.T) {
	s := State{Kind: StateWaitingForUserInput}
	next, action := HandleEvent(s, Event{Kind: EventLLMTextDelta, TextDelta: "x"}, 0, nil)
	assert.Equal(t, s.Kind, next.Kind)
	assert.Equal(t, ActionWaitForInput, action.Kind)
}

func TestRetryCountMonotonicUntilExhaustion(t *testing.T) {
	const maxRetries = 3
	m := New(maxRetries, nil)
	m.Handle(Event{Kind: EventUserInput, UserMessage: Message{Role: RoleUser}})

	for i := 1; i < maxRetries; i++ {
		m.Handle(Event{Kind: EventLLMError, Err: "x"})
		assert.Equal(t, i, m.State().Retries)
		assert.Equal(t, StateError, m.State().Kind)
		m.Handle(Event{Kind: EventRetryTimeoutFired})
		assert.Equal(t, StateCallingLLM, m.State().Kind)
	}

	action := m.Handle(Event{Kind: EventLLMError, Err: "final"})
	assert.Equal(t, StateWaitingForUserInput, m.State().Kind)
	assert.Equal(t, ActionDisplayError, action.Kind)
}

func TestToolNeverRequeued(t *testing.T) {
	m := New(0, nil)
	m.Handle(Event{Kind: EventUserInput, UserMessage: Message{Role: RoleUser}})
	call := ToolCall{ID: "c1", ToolName: "read_file"}
	m.Handle(Event{Kind: EventLLMCompleted, LLMResult: LLMResult{ToolCalls: []ToolCall{call}}})

	m.Handle(Event{Kind: EventToolCompleted, ToolCallID: "c1", Outcome: ToolOutcome{Success: true}})
	// Machine has already moved on to StateCallingLLM; a duplicate
	// ToolCompleted for the same id now falls through the catch-all.
	before := m.State()
	action := m.Handle(Event{Kind: EventToolCompleted, ToolCallID: "c1", Outcome: ToolOutcome{Success: true}})
	assert.Equal(t, before.Kind, m.State().Kind)
	assert.Equal(t, ActionWaitForInput, action.Kind)
}
