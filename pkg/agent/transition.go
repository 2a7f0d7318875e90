package agent

// DefaultMaxRetries is the default retry budget for a stalled LLM call.
const DefaultMaxRetries = 3

// DefaultMutatingTools is the default mutating-tool-name set: a completed
// tool in this set (on success) routes through PostToolsHook before the
// next LLM call.
func DefaultMutatingTools() map[string]bool {
	return map[string]bool{"edit_file": true, "bash": true}
}

// HandleEvent is the pure transducer at the heart of the agent: given the
// current state, an event, the configured max retries, and the mutating
// tool-name set, it returns the next state and the single action the host
// must perform. It never panics and never performs I/O; every transition
// not explicitly enumerated below falls through to the catch-all at the
// bottom: state unchanged, action WaitForInput.
func HandleEvent(state State, event Event, maxRetries int, mutatingTools map[string]bool) (State, Action) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if mutatingTools == nil {
		mutatingTools = DefaultMutatingTools()
	}

	// ShutdownRequested is reachable from every state.
	if event.Kind == EventShutdownRequested {
		return State{Kind: StateShuttingDown}, Action{Kind: ActionShutdown}
	}

	switch state.Kind {
	case StateWaitingForUserInput:
		if event.Kind == EventUserInput {
			return State{Kind: StateCallingLLM, Retries: 0},
				Action{Kind: ActionSendLLMRequest, Messages: []Message{event.UserMessage}}
		}

	case StateCallingLLM:
		switch event.Kind {
		case EventLLMTextDelta:
			return state, Action{Kind: ActionDisplayMessage, Text: event.TextDelta}

		case EventLLMToolCallDelta:
			return state, Action{Kind: ActionWaitForInput}

		case EventLLMCompleted:
			if len(event.LLMResult.ToolCalls) == 0 {
				return State{Kind: StateWaitingForUserInput}, Action{Kind: ActionWaitForInput}
			}
			executions := make([]ToolExecution, len(event.LLMResult.ToolCalls))
			for i, tc := range event.LLMResult.ToolCalls {
				executions[i] = ToolExecution{Call: tc, Status: ToolExecutionPending}
			}
			return State{Kind: StateExecutingTools, Executions: executions},
				Action{Kind: ActionExecuteTools, ToolCalls: event.LLMResult.ToolCalls}

		case EventLLMError:
			nextRetries := state.Retries + 1
			if nextRetries < maxRetries {
				return State{Kind: StateError, Retries: nextRetries, ErrorOrigin: ErrorOriginLLM},
					Action{Kind: ActionWaitForInput}
			}
			return State{Kind: StateWaitingForUserInput}, Action{Kind: ActionDisplayError, ErrorText: event.Err}
		}

	case StateError:
		if event.Kind == EventRetryTimeoutFired && state.ErrorOrigin == ErrorOriginLLM {
			return State{Kind: StateCallingLLM, Retries: state.Retries}, Action{Kind: ActionSendLLMRequest}
		}

	case StateExecutingTools:
		if event.Kind == EventToolCompleted {
			executions := markCompleted(state.Executions, event.ToolCallID, event.Outcome)
			if !allCompleted(executions) {
				return State{Kind: StateExecutingTools, Executions: executions}, Action{Kind: ActionWaitForInput}
			}

			completed := make([]CompletedTool, len(executions))
			anyMutatingSuccess := false
			for i, e := range executions {
				completed[i] = CompletedTool{ToolName: e.Call.ToolName, Success: e.Outcome.Success}
				if e.Outcome.Success && mutatingTools[e.Call.ToolName] {
					anyMutatingSuccess = true
				}
			}

			if anyMutatingSuccess {
				return State{Kind: StatePostToolsHook, Executions: executions},
					Action{Kind: ActionRunPostToolsHook, CompletedTools: completed}
			}
			return State{Kind: StateCallingLLM, Retries: 0}, Action{Kind: ActionSendLLMRequest}
		}

	case StatePostToolsHook:
		if event.Kind == EventPostToolsHookCompleted {
			return State{Kind: StateCallingLLM, Retries: 0},
				Action{Kind: ActionSendLLMRequest, Messages: state.PendingRequest.Messages}
		}
	}

	// Catch-all: any pair not explicitly handled above leaves state
	// unchanged and asks the host to wait.
	return state, Action{Kind: ActionWaitForInput}
}

func markCompleted(executions []ToolExecution, callID string, outcome ToolOutcome) []ToolExecution {
	out := make([]ToolExecution, len(executions))
	copy(out, executions)
	for i, e := range out {
		if e.Call.ID == callID {
			out[i].Status = ToolExecutionCompleted
			out[i].Outcome = outcome
		}
	}
	return out
}

func allCompleted(executions []ToolExecution) bool {
	for _, e := range executions {
		if e.Status != ToolExecutionCompleted {
			return false
		}
	}
	return true
}
