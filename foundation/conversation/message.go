// Package conversation holds the message log shared by the agent loop.
package conversation

// Role tags who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a request, emitted by the reasoning step, to run one tool.
// Argument values are always text; the tool parses them.
type ToolCall struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

// Message is one entry of the conversation log.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// Assistant messages only.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool-result messages only. Exactly one of Result and Error is set.
	ToolCallID string   `json:"tool_call_id,omitempty"`
	ToolName   string   `json:"tool_name,omitempty"`
	Result     *float64 `json:"result,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// UserMessage creates a message carrying the user's query.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates a reasoning-step message with optional tool calls.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResultMessage records a successful tool execution for call.
func ToolResultMessage(call ToolCall, value float64) Message {
	return Message{
		Role:       RoleTool,
		Content:    FormatNumber(value),
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Result:     &value,
	}
}

// ToolErrorMessage records a failed tool execution for call. The failure is
// data for the next reasoning step, not an error for the caller.
func ToolErrorMessage(call ToolCall, err error) Message {
	return Message{
		Role:       RoleTool,
		Content:    "Error: " + err.Error(),
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Error:      err.Error(),
	}
}

// HasToolCalls reports whether m is an assistant message requesting at least
// one named tool.
func (m Message) HasToolCalls() bool {
	if m.Role != RoleAssistant {
		return false
	}
	for _, call := range m.ToolCalls {
		if call.Name != "" {
			return true
		}
	}
	return false
}

// IsError reports whether m is a failed tool result.
func (m Message) IsError() bool {
	return m.Role == RoleTool && m.Result == nil
}

func (m Message) clone() Message {
	if len(m.ToolCalls) > 0 {
		calls := make([]ToolCall, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			calls[i] = call
			if call.Arguments != nil {
				args := make(map[string]string, len(call.Arguments))
				for k, v := range call.Arguments {
					args[k] = v
				}
				calls[i].Arguments = args
			}
		}
		m.ToolCalls = calls
	}
	if m.Result != nil {
		v := *m.Result
		m.Result = &v
	}
	return m
}
