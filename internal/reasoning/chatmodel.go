package reasoning

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/olusolaa/mathagent/foundation/conversation"
	"github.com/olusolaa/mathagent/foundation/tools"
)

// ChatModel is a reasoner backed by an eino tool-calling chat model, such as
// the Gemini model from foundation/gemini.
type ChatModel struct {
	model    model.ToolCallingChatModel
	template prompt.ChatTemplate
	opts     *options
}

// NewChatModel binds the registry's tools to cm.
func NewChatModel(cm model.ToolCallingChatModel, registry *tools.Registry, opts ...Option) (*ChatModel, error) {
	if cm == nil {
		return nil, errors.New("chat model cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}

	infos := make([]*schema.ToolInfo, 0, len(registry.Tools()))
	for _, t := range registry.Tools() {
		infos = append(infos, t.Info())
	}
	bound, err := cm.WithTools(infos)
	if err != nil {
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}

	o := newOptions(opts)
	return &ChatModel{
		model:    bound,
		template: o.template(),
		opts:     o,
	}, nil
}

// Reason sends the full history to the chat model and returns its reply.
func (c *ChatModel) Reason(ctx context.Context, history []conversation.Message) (conversation.Message, error) {
	input, err := render(ctx, c.template, history, c.opts.resultsByName)
	if err != nil {
		return conversation.Message{}, err
	}

	out, err := c.model.Generate(ctx, input, model.WithTemperature(c.opts.temperature))
	if err != nil {
		return conversation.Message{}, fmt.Errorf("failed to generate: %w", err)
	}
	return fromSchemaMessage(out, c.opts.logger)
}
