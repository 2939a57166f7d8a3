package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olusolaa/mathagent/foundation/conversation"
)

func TestRoute(t *testing.T) {
	plus := call("c1", "plus", "1", "2")

	tests := []struct {
		name string
		msgs []conversation.Message
		want Decision
	}{
		{name: "empty state", want: Terminate},
		{name: "user message", msgs: []conversation.Message{conversation.UserMessage("hi")}, want: Terminate},
		{
			name: "assistant answer",
			msgs: []conversation.Message{conversation.UserMessage("hi"), conversation.AssistantMessage("hello")},
			want: Terminate,
		},
		{
			name: "assistant requesting a tool",
			msgs: []conversation.Message{conversation.UserMessage("1+2"), conversation.AssistantMessage("", plus)},
			want: DispatchTools,
		},
		{
			name: "unnamed call only",
			msgs: []conversation.Message{conversation.AssistantMessage("", conversation.ToolCall{ID: "x"})},
			want: Terminate,
		},
		{
			name: "tool result last",
			msgs: []conversation.Message{
				conversation.AssistantMessage("", plus),
				conversation.ToolResultMessage(plus, 3),
			},
			want: Terminate,
		},
		{
			name: "earlier tool requests are ignored",
			msgs: []conversation.Message{
				conversation.AssistantMessage("", plus),
				conversation.ToolResultMessage(plus, 3),
				conversation.AssistantMessage("3"),
			},
			want: Terminate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := conversation.NewState(tt.msgs...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Route(state))
		})
	}
}

func TestRouteNilState(t *testing.T) {
	assert.Equal(t, Terminate, Route(nil))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "terminate", Terminate.String())
	assert.Equal(t, "dispatch_tools", DispatchTools.String())
	assert.Equal(t, "unknown", Decision(7).String())
}
