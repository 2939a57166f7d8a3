package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/olusolaa/mathagent/foundation/conversation"
	"github.com/olusolaa/mathagent/foundation/tools"
	"github.com/olusolaa/mathagent/internal/agent"
	"github.com/olusolaa/mathagent/internal/config"
	"github.com/olusolaa/mathagent/internal/ui"
)

// demoQueries exercise every tool plus two questions that need none.
var demoQueries = []string{
	"What is 25 plus 17?",
	"Calculate 100 minus 45",
	"What is 8 multiplied by 7?",
	"Divide 144 by 12",
	"What is the capital of France?",
	"Explain what artificial intelligence is in one sentence",
}

type app struct {
	cfg    *config.Config
	agent  *agent.Agent
	ui     *ui.TerminalUI
	logger *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (*app, error) {
	registry, err := tools.NewRegistry(tools.WithArgumentType(tools.ArgumentType(cfg.ArgumentType)))
	if err != nil {
		return nil, fmt.Errorf("failed to create tool registry: %w", err)
	}

	reasoner, err := opts.ReasonerFactory(ctx, cfg, registry, logger)
	if err != nil {
		return nil, err
	}

	a, err := agent.New(reasoner, registry,
		agent.WithMaxIterations(cfg.MaxIterations),
		agent.WithReasoningTimeout(cfg.ReasoningTimeout),
		agent.WithParallelism(cfg.Parallelism),
		agent.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	return &app{
		cfg:    cfg,
		agent:  a,
		ui:     ui.New(opts.Stdin, opts.Stdout),
		logger: logger,
	}, nil
}

// repl runs the interactive loop. Conversation memory lasts until exit.
func (a *app) repl(ctx context.Context) error {
	a.ui.DisplayWelcome(string(a.cfg.Provider), a.cfg.Model)
	a.saveDiagram()

	var state *conversation.State
	for {
		input, ok := a.ui.GetUserInput()
		if !ok || ui.IsQuit(input) {
			a.ui.DisplayGoodbye()
			return nil
		}
		if input == "" {
			a.ui.DisplayWarning("Please enter a query.")
			continue
		}
		state = a.turn(ctx, input, state)
	}
}

// demo runs demoQueries in one shared conversation.
func (a *app) demo(ctx context.Context) error {
	a.ui.DisplayWelcome(string(a.cfg.Provider), a.cfg.Model)
	a.saveDiagram()

	var state *conversation.State
	for i, q := range demoQueries {
		a.ui.DisplayQuery(i+1, len(demoQueries), q)
		state = a.turn(ctx, q, state)
	}
	a.ui.DisplayInfo(fmt.Sprintf("Demo complete: %d messages in the conversation.", state.Len()))
	return nil
}

// turn runs one query and returns the state the conversation continues from.
// Errors are displayed; the conversation survives them.
func (a *app) turn(ctx context.Context, query string, state *conversation.State) *conversation.State {
	answer, next, err := a.agent.Run(ctx, query, state, agent.WithCallbacks(a.ui.Build()))
	if err != nil {
		a.ui.DisplayError(err)
		if errors.Is(err, agent.ErrLoopLimitExceeded) {
			return next
		}
		return state
	}
	a.ui.DisplayAnswer(answer)
	return next
}

func (a *app) saveDiagram() {
	if a.cfg.DiagramPath == "" {
		return
	}
	if err := agent.SaveMermaid(a.agent.Topology(), a.cfg.DiagramPath); err != nil {
		a.logger.Warn("could not save graph diagram", "path", a.cfg.DiagramPath, "error", err)
		return
	}
	a.ui.DisplayInfo("📊 Graph diagram saved to " + a.cfg.DiagramPath)
}
