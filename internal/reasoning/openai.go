package reasoning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"

	"github.com/olusolaa/mathagent/foundation/conversation"
	"github.com/olusolaa/mathagent/foundation/tools"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "meta-llama/llama-4-scout-17b-16e-instruct"
)

// OpenAIConfig selects an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	// HTTPClient overrides the client used for requests. Optional.
	HTTPClient *http.Client
}

// OpenAI is a reasoner backed by any OpenAI-compatible chat completions API.
type OpenAI struct {
	client   *openai.Client
	model    string
	tools    []openai.Tool
	template prompt.ChatTemplate
	opts     *options
}

// NewOpenAI creates a reasoner for cfg with the registry's tools declared on
// every request.
func NewOpenAI(cfg OpenAIConfig, registry *tools.Registry, opts ...Option) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = DefaultBaseURL
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}

	o := newOptions(opts)
	return &OpenAI{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    modelName,
		tools:    openAITools(registry),
		template: o.template(),
		opts:     o,
	}, nil
}

// Reason sends the full history as one chat completion request.
func (r *OpenAI) Reason(ctx context.Context, history []conversation.Message) (conversation.Message, error) {
	input, err := render(ctx, r.template, history, r.opts.resultsByName)
	if err != nil {
		return conversation.Message{}, err
	}

	temperature := r.opts.temperature
	if temperature == 0 {
		// omitempty would drop an exact zero.
		temperature = math.SmallestNonzeroFloat32
	}
	req := openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    toOpenAIMessages(input),
		Tools:       r.tools,
		Temperature: temperature,
	}

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return conversation.Message{}, errors.New("chat completion returned no choices")
	}
	return fromSchemaMessage(fromOpenAIMessage(resp.Choices[0].Message), r.opts.logger)
}

func openAITools(registry *tools.Registry) []openai.Tool {
	out := make([]openai.Tool, 0, len(registry.Tools()))
	for _, t := range registry.Tools() {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description,
				Parameters:  t.JSONSchema(),
			},
		})
	}
	return out
}

func toOpenAIMessages(msgs []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) *schema.Message {
	calls := make([]schema.ToolCall, 0, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		calls = append(calls, schema.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return &schema.Message{
		Role:      schema.RoleType(m.Role),
		Content:   m.Content,
		ToolCalls: calls,
	}
}
