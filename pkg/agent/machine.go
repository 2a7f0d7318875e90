package agent

import "context"

// Machine is the thin stateful wrapper around the pure HandleEvent
// transducer: it owns the conversation history, the retry/mutating-tool
// configuration, and a cancel function for any in-flight host-side retry
// timer, so cancellation is an owned handle rather than left implicit.
type Machine struct {
	state         State
	conversation  []Message
	maxRetries    int
	mutatingTools map[string]bool

	cancelRetryTimer context.CancelFunc
}

// New constructs a Machine starting in StateWaitingForUserInput with an
// empty conversation and a zeroed retry count.
func New(maxRetries int, mutatingTools map[string]bool) *Machine {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if mutatingTools == nil {
		mutatingTools = DefaultMutatingTools()
	}
	return &Machine{
		state:         NewState(),
		maxRetries:    maxRetries,
		mutatingTools: mutatingTools,
	}
}

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

// Conversation returns the accumulated message history. The returned
// slice must be treated as read-only by the caller.
func (m *Machine) Conversation() []Message { return m.conversation }

// Handle drives one event through the machine, updating conversation
// history to match the transition performed, and returns the action the
// host must perform.
func (m *Machine) Handle(event Event) Action {
	switch {
	case m.state.Kind == StateWaitingForUserInput && event.Kind == EventUserInput:
		m.conversation = append(m.conversation, event.UserMessage)

	case m.state.Kind == StateCallingLLM && event.Kind == EventLLMCompleted:
		m.conversation = append(m.conversation, event.LLMResult.AssistantMessage)

	case m.state.Kind == StateExecutingTools && event.Kind == EventToolCompleted:
		// Append the Tool message for this completion immediately; whether
		// the overall transition out of ExecutingTools also happens is
		// decided by HandleEvent below (it only fires once every
		// execution is accounted for).
		for _, e := range m.state.Executions {
			if e.Call.ID == event.ToolCallID {
				completed := e
				completed.Status = ToolExecutionCompleted
				completed.Outcome = event.Outcome
				m.conversation = append(m.conversation, completed.ToMessage())
				break
			}
		}
	}

	// PostToolsHook preserves the pending request built from the current
	// conversation so it can be resent verbatim once the hook finishes.
	if m.state.Kind == StateExecutingTools && event.Kind == EventToolCompleted {
		next := markCompleted(m.state.Executions, event.ToolCallID, event.Outcome)
		if allCompleted(next) {
			m.state.Executions = next
			m.state.PendingRequest = PendingRequest{Messages: append([]Message(nil), m.conversation...)}
		}
	}

	next, action := HandleEvent(m.state, event, m.maxRetries, m.mutatingTools)
	// Preserve the pending request across the PostToolsHook detour; pure
	// HandleEvent has no conversation to draw it from.
	if next.Kind == StatePostToolsHook {
		next.PendingRequest = m.state.PendingRequest
	}
	if action.Kind == ActionSendLLMRequest && action.Messages == nil {
		action.Messages = append([]Message(nil), m.conversation...)
	}
	m.state = next
	return action
}

// ArmRetryTimer registers the cancel function for a host-managed retry
// timer, canceling any previously-armed timer first. Call with a nil
// cancel to simply clear the registry.
func (m *Machine) ArmRetryTimer(cancel context.CancelFunc) {
	if m.cancelRetryTimer != nil {
		m.cancelRetryTimer()
	}
	m.cancelRetryTimer = cancel
}
