package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/olusolaa/mathagent/foundation/gemini"
	"github.com/olusolaa/mathagent/foundation/tools"
	"github.com/olusolaa/mathagent/internal/agent"
	"github.com/olusolaa/mathagent/internal/config"
	"github.com/olusolaa/mathagent/internal/reasoning"
	"github.com/olusolaa/mathagent/internal/server"
)

// ReasonerFactory builds the reasoning step for cfg (replaceable in tests).
type ReasonerFactory func(ctx context.Context, cfg *config.Config, registry *tools.Registry, logger *slog.Logger) (agent.Reasoner, error)

// DefaultReasonerFactory connects to the configured provider.
func DefaultReasonerFactory(ctx context.Context, cfg *config.Config, registry *tools.Registry, logger *slog.Logger) (agent.Reasoner, error) {
	opts := []reasoning.Option{
		reasoning.WithTemperature(cfg.Temperature),
		reasoning.WithLogger(logger),
	}
	if cfg.SystemPrompt != "" {
		opts = append(opts, reasoning.WithSystemPrompt(cfg.SystemPrompt))
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		chatModel, err := gemini.NewChatModel(ctx, gemini.Config{APIKey: cfg.APIKey, Model: cfg.Model})
		if err != nil {
			return nil, err
		}
		// gemini identifies calls and their results by function name
		opts = append(opts, reasoning.WithToolResultsByName())
		r, err := reasoning.NewChatModel(chatModel, registry, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create reasoner: %w", err)
		}
		return r, nil
	default:
		r, err := reasoning.NewOpenAI(reasoning.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}, registry, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create reasoner: %w", err)
		}
		return r, nil
	}
}

// Options carries the injectable dependencies of the CLI.
type Options struct {
	ReasonerFactory ReasonerFactory
	Stdin           io.Reader
	Stdout          io.Writer
	Stderr          io.Writer
}

func (o *Options) defaults() {
	if o.ReasonerFactory == nil {
		o.ReasonerFactory = DefaultReasonerFactory
	}
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

func newRootCmd(opts Options) *cobra.Command {
	opts.defaults()
	var configPath string

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		level, err := cfg.Level()
		if err != nil {
			return nil, nil, err
		}
		logger := slog.New(slog.NewTextHandler(opts.Stderr, &slog.HandlerOptions{Level: level}))
		return cfg, logger, nil
	}

	start := func(cmd *cobra.Command) (*app, error) {
		cfg, logger, err := load()
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return newApp(cmd.Context(), cfg, opts, logger)
	}

	root := &cobra.Command{
		Use:           "mathagent",
		Short:         "mathagent - arithmetic tool-routing agent",
		Long:          "An agent loop that lets a language model answer questions, calling plus, subtract, multiply and divide tools when it needs arithmetic.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := start(cmd)
			if err != nil {
				return err
			}
			return a.repl(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the scripted demo queries in one conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := start(cmd)
			if err != nil {
				return err
			}
			return a.demo(cmd.Context())
		},
	}

	var output string
	diagramCmd := &cobra.Command{
		Use:   "diagram",
		Short: "Export the agent graph as a Mermaid diagram",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := agent.Topology()
			if err != nil {
				return fmt.Errorf("failed to build agent graph: %w", err)
			}
			if output == "-" {
				_, err := fmt.Fprint(opts.Stdout, agent.Mermaid(g))
				return err
			}
			if output == "" {
				cfg, _, err := load()
				if err != nil {
					return err
				}
				output = cfg.DiagramPath
			}
			if err := agent.SaveMermaid(g, output); err != nil {
				return err
			}
			fmt.Fprintf(opts.Stdout, "📊 Graph diagram saved to %s\n", output)
			return nil
		},
	}
	diagramCmd.Flags().StringVarP(&output, "output", "o", "", "Output file (\"-\" for stdout)")

	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := start(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Addr
			}
			a.logger.Info("serving", "addr", addr, "provider", a.cfg.Provider, "model", a.cfg.Model)
			server.New(a.agent, addr, server.WithLogger(a.logger)).Spin()
			return nil
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")

	root.AddCommand(demoCmd, diagramCmd, serveCmd)
	return root
}

func main() {
	if err := newRootCmd(Options{}).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Application failed: %v\n", err)
		os.Exit(1)
	}
}
