// Package agent drives the reason / route / dispatch loop of one conversation
// turn as a compiled eino graph.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/compose"

	"github.com/olusolaa/mathagent/foundation/conversation"
	"github.com/olusolaa/mathagent/foundation/tools"
)

const (
	// DefaultMaxIterations bounds the number of tool cycles per turn.
	DefaultMaxIterations = 10
	// DefaultReasoningTimeout bounds a single reasoning call.
	DefaultReasoningTimeout = 60 * time.Second
)

// Reasoner is the external reasoning step. It receives the entire history in
// order and returns the next assistant message, which may request tools.
type Reasoner interface {
	Reason(ctx context.Context, history []conversation.Message) (conversation.Message, error)
}

// Agent owns the compiled loop graph. It holds no conversation state of its
// own; one Agent can serve many conversations as long as each conversation
// runs one turn at a time.
type Agent struct {
	reasoner         Reasoner
	dispatcher       *Dispatcher
	maxIterations    int
	reasoningTimeout time.Duration
	parallelism      int
	logger           *slog.Logger

	runnable compose.Runnable[*conversation.State, conversation.Message]
	topology Graph
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxIterations sets how many reason/dispatch cycles a turn may take.
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		a.maxIterations = n
	}
}

// WithReasoningTimeout sets the per-call reasoning timeout. Zero disables it.
func WithReasoningTimeout(d time.Duration) Option {
	return func(a *Agent) {
		a.reasoningTimeout = d
	}
}

// WithParallelism bounds concurrent tool evaluation within one dispatch.
func WithParallelism(n int) Option {
	return func(a *Agent) {
		a.parallelism = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = l
	}
}

// New creates an Agent from its two collaborators and compiles its graph.
func New(reasoner Reasoner, registry *tools.Registry, opts ...Option) (*Agent, error) {
	if reasoner == nil {
		return nil, errors.New("reasoner cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}

	a := &Agent{
		reasoner:         reasoner,
		maxIterations:    DefaultMaxIterations,
		reasoningTimeout: DefaultReasoningTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.maxIterations < 1 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", a.maxIterations)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}

	var err error
	if a.dispatcher, err = NewDispatcher(registry, a.parallelism, a.logger); err != nil {
		return nil, err
	}
	if a.runnable, a.topology, err = a.compile(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to compile agent graph: %w", err)
	}
	return a, nil
}

// Topology returns the shape of the compiled loop graph.
func (a *Agent) Topology() Graph {
	return a.topology
}

// RunOption configures a single Run.
type RunOption func(*runOptions)

type runOptions struct {
	handlers []callbacks.Handler
}

// WithCallbacks attaches eino callback handlers to one run. Besides the
// graph and node events, tool executions report as
// components.ComponentOfTool and reasoning calls as
// components.ComponentOfChatModel.
func WithCallbacks(handlers ...callbacks.Handler) RunOption {
	return func(o *runOptions) {
		o.handlers = append(o.handlers, handlers...)
	}
}

// loopState is the graph-local state of one turn.
type loopState struct {
	turn   *conversation.State
	cycles int
}

// maxStepSlack keeps the graph's own step limit clear of the cycle bound,
// which is enforced after each reasoning step.
const maxStepSlack = 4

func (a *Agent) compile(ctx context.Context) (compose.Runnable[*conversation.State, conversation.Message], Graph, error) {
	g := compose.NewGraph[*conversation.State, conversation.Message](
		compose.WithGenLocalState(func(context.Context) *loopState {
			return &loopState{}
		}))

	if err := g.AddLambdaNode(NodeReason, compose.InvokableLambda(a.reasonNode),
		compose.WithStatePreHandler(enterReason),
		compose.WithStatePostHandler(a.afterReason),
		compose.WithNodeName(NodeReason)); err != nil {
		return nil, Graph{}, err
	}
	if err := g.AddLambdaNode(NodeDispatch, compose.InvokableLambda(a.dispatchNode),
		compose.WithNodeName(NodeDispatch)); err != nil {
		return nil, Graph{}, err
	}

	if err := g.AddEdge(compose.START, NodeReason); err != nil {
		return nil, Graph{}, err
	}
	if err := g.AddBranch(NodeReason, compose.NewGraphBranch(routeBranch, map[string]bool{
		branchTargets[DispatchTools]: true,
		branchTargets[Terminate]:     true,
	})); err != nil {
		return nil, Graph{}, err
	}
	if err := g.AddEdge(NodeDispatch, NodeReason); err != nil {
		return nil, Graph{}, err
	}

	rec := &topologyRecorder{}
	r, err := g.Compile(ctx,
		compose.WithGraphName(GraphName),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(2*a.maxIterations+maxStepSlack),
		compose.WithGraphCompileCallbacks(rec),
	)
	if err != nil {
		return nil, Graph{}, err
	}
	return r, rec.graph, nil
}

// enterReason binds the turn to the graph state on the first entry.
func enterReason(_ context.Context, in *conversation.State, st *loopState) (*conversation.State, error) {
	if st.turn == nil {
		st.turn = in
	}
	return st.turn, nil
}

func (a *Agent) reasonNode(ctx context.Context, turn *conversation.State) (conversation.Message, error) {
	msg, err := a.reason(ctx, turn.Messages())
	if err != nil {
		return conversation.Message{}, &stepError{err: err}
	}
	return msg, nil
}

// afterReason enforces the cycle bound and appends the reasoning output. A
// tool request past the bound is dropped, so the turn never carries calls
// without results.
func (a *Agent) afterReason(_ context.Context, msg conversation.Message, st *loopState) (conversation.Message, error) {
	if routeMessage(msg) == DispatchTools && st.cycles >= a.maxIterations {
		a.logger.Warn("agent loop limit reached", "max_iterations", a.maxIterations, "messages", st.turn.Len())
		return msg, &stepError{err: fmt.Errorf("%w: still requesting tools after %d cycles", ErrLoopLimitExceeded, st.cycles)}
	}
	if err := st.turn.Append(msg); err != nil {
		return msg, &stepError{err: fmt.Errorf("%w: malformed reasoning output: %w", ErrReasoningUnavailable, err)}
	}
	return msg, nil
}

func routeBranch(ctx context.Context, _ conversation.Message) (string, error) {
	var next string
	err := compose.ProcessState(ctx, func(_ context.Context, st *loopState) error {
		next = branchTargets[Route(st.turn)]
		return nil
	})
	return next, err
}

func (a *Agent) dispatchNode(ctx context.Context, msg conversation.Message) (*conversation.State, error) {
	results, err := a.dispatcher.Dispatch(ctx, msg)
	if err != nil {
		return nil, &stepError{err: fmt.Errorf("%w: %w", ErrTurnCanceled, err)}
	}

	var turn *conversation.State
	err = compose.ProcessState(ctx, func(_ context.Context, st *loopState) error {
		if err := st.turn.Append(results...); err != nil {
			return fmt.Errorf("failed to append tool results: %w", err)
		}
		st.cycles++
		a.logger.Debug("tool cycle complete", "cycle", st.cycles, "calls", len(results))
		turn = st.turn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// Run executes one turn: it appends query to a copy of state and alternates
// reasoning and tool dispatch until the reasoning step answers without
// requesting tools.
//
// On success it returns the final answer and the updated state. When the
// reasoning step fails or the turn is canceled the original state is
// returned unchanged, so the turn can be retried. On ErrLoopLimitExceeded
// the returned state holds every message exchanged up to the limit. A nil
// state starts a new conversation.
func (a *Agent) Run(ctx context.Context, query string, state *conversation.State, opts ...RunOption) (string, *conversation.State, error) {
	ro := &runOptions{}
	for _, opt := range opts {
		opt(ro)
	}

	turn := state.Clone()
	if err := turn.Append(conversation.UserMessage(query)); err != nil {
		return "", state, fmt.Errorf("failed to append user message: %w", err)
	}

	var callOpts []compose.Option
	if len(ro.handlers) > 0 {
		callOpts = append(callOpts, compose.WithCallbacks(ro.handlers...))
	}

	final, err := a.runnable.Invoke(ctx, turn, callOpts...)
	if err != nil {
		err = a.classify(ctx, err)
		if errors.Is(err, ErrLoopLimitExceeded) {
			return "", turn, err
		}
		return "", state, err
	}

	a.logger.Info("turn complete", "messages", turn.Len())
	return final.Content, turn, nil
}

// classify strips the graph's wrapping from node errors and maps the rest
// onto the agent's errors.
func (a *Agent) classify(ctx context.Context, err error) error {
	var se *stepError
	switch {
	case errors.As(err, &se):
		return se.err
	case errors.Is(err, compose.ErrExceedMaxSteps):
		return fmt.Errorf("%w: %w", ErrLoopLimitExceeded, err)
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", ErrTurnCanceled, ctx.Err())
	default:
		a.logger.Error("agent graph failed", "error", err)
		return fmt.Errorf("agent graph failed: %w", err)
	}
}

func (a *Agent) reason(ctx context.Context, history []conversation.Message) (conversation.Message, error) {
	parent := ctx
	if a.reasoningTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.reasoningTimeout)
		defer cancel()
	}

	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      NodeReason,
		Type:      "Reasoner",
		Component: components.ComponentOfChatModel,
	})
	ctx = callbacks.OnStart(ctx, history)

	msg, err := a.reasoner.Reason(ctx, history)
	if err == nil && msg.Role == "" {
		msg.Role = conversation.RoleAssistant
	}
	if err == nil && msg.Role != conversation.RoleAssistant {
		err = fmt.Errorf("unexpected role %q", msg.Role)
	}
	if err != nil {
		callbacks.OnError(ctx, err)
		a.logger.Error("reasoning step failed", "error", err)
		switch {
		case errors.Is(parent.Err(), context.Canceled):
			return conversation.Message{}, fmt.Errorf("%w: %w", ErrTurnCanceled, err)
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			return conversation.Message{}, fmt.Errorf("%w: %w", ErrReasoningTimeout, err)
		}
		return conversation.Message{}, fmt.Errorf("%w: %w", ErrReasoningUnavailable, err)
	}

	callbacks.OnEnd(ctx, msg)
	return msg, nil
}
