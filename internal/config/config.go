// Package config loads the math agent configuration from defaults, an
// optional YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/olusolaa/mathagent/foundation/gemini"
	"github.com/olusolaa/mathagent/foundation/tools"
	"github.com/olusolaa/mathagent/internal/agent"
	"github.com/olusolaa/mathagent/internal/reasoning"
)

// Provider names a reasoning backend.
type Provider string

const (
	ProviderGroq   Provider = "groq"
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

const (
	OpenAIBaseURL      = "https://api.openai.com/v1"
	OpenAIDefaultModel = "gpt-4o-mini"
)

// ErrMissingAPIKey is returned by Validate when the selected provider has no
// credentials.
var ErrMissingAPIKey = errors.New("API key is required")

// Config is the full application configuration.
type Config struct {
	Provider     Provider `yaml:"provider"`
	Model        string   `yaml:"model,omitempty"`
	APIKey       string   `yaml:"api_key,omitempty"`
	BaseURL      string   `yaml:"base_url,omitempty"`
	Temperature  float32  `yaml:"temperature"`
	SystemPrompt string   `yaml:"system_prompt,omitempty"`

	MaxIterations    int           `yaml:"max_iterations"`
	ReasoningTimeout time.Duration `yaml:"reasoning_timeout"`
	Parallelism      int           `yaml:"parallelism"`
	ArgumentType     string        `yaml:"argument_type"`

	Addr        string `yaml:"addr"`
	LogLevel    string `yaml:"log_level"`
	DiagramPath string `yaml:"diagram_path"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Provider:         ProviderGroq,
		MaxIterations:    agent.DefaultMaxIterations,
		ReasoningTimeout: agent.DefaultReasoningTimeout,
		ArgumentType:     string(tools.ArgumentString),
		Addr:             ":8080",
		LogLevel:         "info",
		DiagramPath:      "math_agent_graph.mmd",
	}
}

// Load reads path (if not empty) over the defaults and then applies
// environment overrides. It does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyProviderDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("MATHAGENT_PROVIDER"); ok {
		c.Provider = Provider(strings.ToLower(v))
	}
	if v, ok := os.LookupEnv("MATHAGENT_MODEL"); ok {
		c.Model = v
	}
	if v, ok := os.LookupEnv("MATHAGENT_BASE_URL"); ok {
		c.BaseURL = v
	}
	if v := os.Getenv(c.APIKeyEnv()); v != "" {
		c.APIKey = v
	}
	if v, ok := os.LookupEnv("MATHAGENT_MAX_ITERATIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MATHAGENT_MAX_ITERATIONS %q: %w", v, err)
		}
		c.MaxIterations = n
	}
	if v, ok := os.LookupEnv("MATHAGENT_REASONING_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MATHAGENT_REASONING_TIMEOUT %q: %w", v, err)
		}
		c.ReasoningTimeout = d
	}
	if v, ok := os.LookupEnv("MATHAGENT_ARGUMENT_TYPE"); ok {
		c.ArgumentType = v
	}
	if v, ok := os.LookupEnv("MATHAGENT_ADDR"); ok {
		c.Addr = v
	}
	if v, ok := os.LookupEnv("MATHAGENT_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	return nil
}

func (c *Config) applyProviderDefaults() {
	switch c.Provider {
	case ProviderGroq:
		if c.Model == "" {
			c.Model = reasoning.DefaultModel
		}
		if c.BaseURL == "" {
			c.BaseURL = reasoning.DefaultBaseURL
		}
	case ProviderOpenAI:
		if c.Model == "" {
			c.Model = OpenAIDefaultModel
		}
		if c.BaseURL == "" {
			c.BaseURL = OpenAIBaseURL
		}
	case ProviderGemini:
		if c.Model == "" {
			c.Model = gemini.ChatModelName
		}
	}
}

// APIKeyEnv names the environment variable holding the provider's key.
func (c *Config) APIKeyEnv() string {
	switch c.Provider {
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return "GROQ_API_KEY"
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGroq, ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: set %s", ErrMissingAPIKey, c.APIKeyEnv())
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.ReasoningTimeout < 0 {
		return fmt.Errorf("reasoning_timeout cannot be negative, got %s", c.ReasoningTimeout)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism cannot be negative, got %d", c.Parallelism)
	}
	switch tools.ArgumentType(c.ArgumentType) {
	case tools.ArgumentString, tools.ArgumentNumber:
	default:
		return fmt.Errorf("unsupported argument_type %q", c.ArgumentType)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
