package agent

import "github.com/olusolaa/mathagent/foundation/conversation"

// Decision is the router's choice of the next loop step.
type Decision int

const (
	// Terminate ends the turn; the last message is the answer.
	Terminate Decision = iota
	// DispatchTools runs the tool calls of the last message.
	DispatchTools
)

func (d Decision) String() string {
	switch d {
	case DispatchTools:
		return "dispatch_tools"
	case Terminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Route inspects only the most recent message of state. It returns
// DispatchTools iff that message is an assistant message carrying at least
// one named tool call.
func Route(state *conversation.State) Decision {
	last, ok := state.Last()
	if !ok {
		return Terminate
	}
	return routeMessage(last)
}

func routeMessage(m conversation.Message) Decision {
	if m.HasToolCalls() {
		return DispatchTools
	}
	return Terminate
}
