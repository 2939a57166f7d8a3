package gemini

import (
	"context"
	"errors"
	"fmt"

	geminiModel "github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

const ChatModelName = "gemini-2.5-flash"

// ErrMissingAPIKey is returned when no Gemini API key is configured.
var ErrMissingAPIKey = errors.New("gemini API key is required")

// Config selects the Gemini model and credentials.
type Config struct {
	APIKey string
	// Model defaults to ChatModelName.
	Model string
}

// NewClient creates a new Gemini API client.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return client, nil
}

// NewChatModel creates a tool-calling Gemini chat model.
func NewChatModel(ctx context.Context, cfg Config) (model.ToolCallingChatModel, error) {
	client, err := NewClient(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	name := cfg.Model
	if name == "" {
		name = ChatModelName
	}

	chatModel, err := geminiModel.NewChatModel(ctx, &geminiModel.Config{
		Client: client,
		Model:  name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return chatModel, nil
}
