package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnmatchedToolResult is returned when a tool result does not answer a
// pending tool call.
var ErrUnmatchedToolResult = errors.New("tool result does not match a pending tool call")

// ErrDuplicateToolCall is returned when a tool call reuses the ID of a call
// that is still pending.
var ErrDuplicateToolCall = errors.New("tool call id is already pending")

// ErrNonFiniteResult is returned for a tool result holding NaN or an
// infinity, which cannot be serialised.
var ErrNonFiniteResult = errors.New("tool result is not a finite number")

// State is the ordered, append-only message log of one conversation.
// Insertion order is the model's context and is never changed.
//
// A State is not safe for concurrent use. The agent loop works on a private
// clone for the duration of a turn.
type State struct {
	messages []Message
	pending  map[string]struct{}
}

// NewState creates a state holding msgs, validated as if appended one by one.
func NewState(msgs ...Message) (*State, error) {
	s := &State{}
	if err := s.Append(msgs...); err != nil {
		return nil, err
	}
	return s, nil
}

// Append adds msgs to the end of the log. Either all messages are appended or
// none are.
func (s *State) Append(msgs ...Message) error {
	pending := make(map[string]struct{}, len(s.pending))
	for id := range s.pending {
		pending[id] = struct{}{}
	}

	for i, m := range msgs {
		switch m.Role {
		case RoleUser:
		case RoleAssistant:
			for _, call := range m.ToolCalls {
				if call.Name == "" {
					continue
				}
				if _, dup := pending[call.ID]; dup {
					return fmt.Errorf("message %d (call %q): %w", i, call.ID, ErrDuplicateToolCall)
				}
				pending[call.ID] = struct{}{}
			}
		case RoleTool:
			if m.Result != nil && (math.IsNaN(*m.Result) || math.IsInf(*m.Result, 0)) {
				return fmt.Errorf("message %d (call %q): %w", i, m.ToolCallID, ErrNonFiniteResult)
			}
			if _, ok := pending[m.ToolCallID]; !ok {
				return fmt.Errorf("message %d (call %q): %w", i, m.ToolCallID, ErrUnmatchedToolResult)
			}
			delete(pending, m.ToolCallID)
		default:
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}

	for _, m := range msgs {
		s.messages = append(s.messages, m.clone())
	}
	s.pending = pending
	return nil
}

// Len returns the number of messages in the log.
func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.messages)
}

// Last returns the most recently appended message.
func (s *State) Last() (Message, bool) {
	if s.Len() == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Messages returns a copy of the log in insertion order.
func (s *State) Messages() []Message {
	if s == nil {
		return nil
	}
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.clone()
	}
	return out
}

// Pending returns the number of tool calls still waiting for a result.
func (s *State) Pending() int {
	if s == nil {
		return 0
	}
	return len(s.pending)
}

// Clone returns an independent copy of s. A nil state clones to an empty one.
func (s *State) Clone() *State {
	c := &State{pending: make(map[string]struct{})}
	if s == nil {
		return c
	}
	c.messages = s.Messages()
	for id := range s.pending {
		c.pending[id] = struct{}{}
	}
	return c
}

func (s *State) MarshalJSON() ([]byte, error) {
	msgs := s.Messages()
	if msgs == nil {
		msgs = []Message{}
	}
	return json.Marshal(msgs)
}

func (s *State) UnmarshalJSON(data []byte) error {
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return err
	}
	fresh, err := NewState(msgs...)
	if err != nil {
		return err
	}
	*s = *fresh
	return nil
}

// FormatNumber renders a tool result the way it is shown to the model:
// shortest round-trip representation, integral values keep a ".0" suffix.
func FormatNumber(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
