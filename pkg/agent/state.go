// Package agent implements Loom's conversation state machine: a pure
// (state, event) -> (state, action) transducer that drives one logical,
// open-ended multi-turn conversation through LLM calls, tool executions,
// and post-tool hooks.
package agent

// StateKind is the closed tag of the State union: a tagged enum rather
// than interface polymorphism, so HandleEvent stays an exhaustive switch.
type StateKind int

const (
	StateWaitingForUserInput StateKind = iota
	StateCallingLLM
	StateProcessingLLMResponse
	StateExecutingTools
	StatePostToolsHook
	StateError
	StateShuttingDown
)

func (k StateKind) String() string {
	switch k {
	case StateWaitingForUserInput:
		return "waiting_for_user_input"
	case StateCallingLLM:
		return "calling_llm"
	case StateProcessingLLMResponse:
		return "processing_llm_response"
	case StateExecutingTools:
		return "executing_tools"
	case StatePostToolsHook:
		return "post_tools_hook"
	case StateError:
		return "error"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// ErrorOrigin identifies which subsystem produced the error parked in an
// Error state, so RetryTimeoutFired knows which state to resume into.
type ErrorOrigin int

const (
	ErrorOriginUnknown ErrorOrigin = iota
	ErrorOriginLLM
)

// ToolExecutionStatus tracks one in-flight tool call within ExecutingTools.
type ToolExecutionStatus int

const (
	ToolExecutionPending ToolExecutionStatus = iota
	ToolExecutionCompleted
)

// ToolExecution is one tool call being tracked while the machine is in
// StateExecutingTools.
type ToolExecution struct {
	Call    ToolCall
	Status  ToolExecutionStatus
	Outcome ToolOutcome
}

// PendingRequest is the LLM request the machine preserves across a
// PostToolsHook detour so it can be resent once the hook completes.
type PendingRequest struct {
	Messages []Message
}

// State is the full state of one conversation. Only the fields relevant
// to Kind are meaningful; HandleEvent never reads a field outside its own
// state's contract.
type State struct {
	Kind StateKind

	// CallingLLM / Error carry a retry counter.
	Retries int

	// Error additionally carries which subsystem failed.
	ErrorOrigin ErrorOrigin

	// ExecutingTools / PostToolsHook carry the tool executions in flight.
	Executions []ToolExecution

	// PostToolsHook preserves the request to resend once the hook completes.
	PendingRequest PendingRequest
}

// NewState returns the starting state for a brand-new agent: Waiting with
// retries zeroed.
func NewState() State {
	return State{Kind: StateWaitingForUserInput}
}
