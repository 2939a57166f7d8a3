// Package reasoning adapts language-model providers to agent.Reasoner.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/olusolaa/mathagent/foundation/conversation"
)

// DefaultSystemPrompt steers the model towards the arithmetic tools. {date}
// is filled in on every call.
const DefaultSystemPrompt = `You are a helpful assistant with four arithmetic tools: plus, subtract, multiply and divide.
- Use a tool for every calculation instead of computing it yourself.
- If a tool returns an error, explain it to the user.
- Answer questions that need no arithmetic directly.
- Current Date: {date}`

type options struct {
	systemPrompt  string
	temperature   float32
	resultsByName bool
	logger        *slog.Logger
}

// Option configures a reasoner.
type Option func(*options)

// WithSystemPrompt replaces the system prompt. An empty prompt sends the
// history alone.
func WithSystemPrompt(p string) Option {
	return func(o *options) {
		o.systemPrompt = p
	}
}

// WithTemperature sets the sampling temperature. The default is 0.
func WithTemperature(t float32) Option {
	return func(o *options) {
		o.temperature = t
	}
}

// WithToolResultsByName renders call IDs and result IDs as the tool name.
// Providers such as Gemini match a function response to its call by name
// and ignore the IDs the history carries.
func WithToolResultsByName() Option {
	return func(o *options) {
		o.resultsByName = true
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) *options {
	o := &options{systemPrompt: DefaultSystemPrompt}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

func (o *options) template() prompt.ChatTemplate {
	if o.systemPrompt == "" {
		return prompt.FromMessages(schema.FString, schema.MessagesPlaceholder("history", false))
	}
	return prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(o.systemPrompt),
		schema.MessagesPlaceholder("history", false),
	)
}

// render builds the provider input: system prompt followed by the history.
func render(ctx context.Context, tpl prompt.ChatTemplate, history []conversation.Message, byName bool) ([]*schema.Message, error) {
	msgs, err := tpl.Format(ctx, map[string]any{
		"history": toSchemaMessages(history, byName),
		"date":    time.Now().Format("2006-01-02"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}
	return msgs, nil
}

// toSchemaMessages converts the history for a provider. With byName, call
// and result IDs are replaced by the tool name, undoing the unique IDs
// fromSchemaMessage assigned to repeated names.
func toSchemaMessages(history []conversation.Message, byName bool) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case conversation.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case conversation.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, toSchemaToolCalls(m.ToolCalls, byName)))
		case conversation.RoleTool:
			id := m.ToolCallID
			if byName && m.ToolName != "" {
				id = m.ToolName
			}
			out = append(out, schema.ToolMessage(m.Content, id, schema.WithToolName(m.ToolName)))
		}
	}
	return out
}

func toSchemaToolCalls(calls []conversation.ToolCall, byName bool) []schema.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]schema.ToolCall, 0, len(calls))
	for _, call := range calls {
		args, _ := json.Marshal(call.Arguments)
		id := call.ID
		if byName {
			id = call.Name
		}
		out = append(out, schema.ToolCall{
			ID:   id,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      call.Name,
				Arguments: string(args),
			},
		})
	}
	return out
}

// fromSchemaMessage converts provider output into a conversation message.
// Missing or repeated call IDs are replaced so every call can be answered.
func fromSchemaMessage(m *schema.Message, logger *slog.Logger) (conversation.Message, error) {
	if m == nil {
		return conversation.Message{}, fmt.Errorf("provider returned no message")
	}
	if m.Role != "" && m.Role != schema.Assistant {
		return conversation.Message{}, fmt.Errorf("provider returned a %s message", m.Role)
	}

	var calls []conversation.ToolCall
	seen := make(map[string]bool, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		args, err := decodeArguments(tc.Function.Arguments)
		if err != nil {
			// The tool reports the missing operands back to the model.
			logger.Warn("malformed tool arguments", "tool", tc.Function.Name, "arguments", tc.Function.Arguments, "error", err)
		}
		id := tc.ID
		if id == "" || seen[id] {
			id = "call_" + uuid.NewString()
		}
		seen[id] = true
		calls = append(calls, conversation.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return conversation.AssistantMessage(m.Content, calls...), nil
}

// decodeArguments turns the JSON argument object of a tool call into text
// arguments. Numbers keep their literal form.
func decodeArguments(raw string) (map[string]string, error) {
	if raw == "" {
		return map[string]string{}, nil
	}
	// UseNumber keeps the provider's spelling, e.g. 1e3 or 0.10.
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	args := make(map[string]string, len(obj))
	md, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := md.Decode(obj); err != nil {
		return nil, fmt.Errorf("failed to decode arguments: %w", err)
	}
	return args, nil
}
