package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/olusolaa/mathagent/foundation/conversation"
	"github.com/olusolaa/mathagent/foundation/tools"
)

// Dispatcher executes the tool calls of one assistant message through an
// eino ToolsNode. Tool callbacks reach the handlers carried by ctx.
type Dispatcher struct {
	node        *compose.ToolsNode
	parallelism int
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher over registry. parallelism bounds the
// number of calls evaluated at once; zero or less means no bound.
func NewDispatcher(registry *tools.Registry, parallelism int, logger *slog.Logger) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	return newDispatcher(registry.BaseTools(), parallelism, logger)
}

func newDispatcher(baseTools []tool.BaseTool, parallelism int, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	node, err := compose.NewToolNode(context.Background(), &compose.ToolsNodeConfig{
		Tools:               baseTools,
		UnknownToolsHandler: tools.UnknownTool,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tools node: %w", err)
	}
	return &Dispatcher{
		node:        node,
		parallelism: parallelism,
		logger:      logger,
	}, nil
}

// Dispatch runs every named tool call of msg and returns one tool-result
// message per call, in request order. Unknown tools and tool failures become
// error results; only context cancellation makes Dispatch fail.
func (d *Dispatcher) Dispatch(ctx context.Context, msg conversation.Message) ([]conversation.Message, error) {
	calls := make([]conversation.ToolCall, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		if call.Name != "" {
			calls = append(calls, call)
		}
	}

	results := make([]conversation.Message, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	if d.parallelism > 0 {
		g.SetLimit(d.parallelism)
	}
	for i, call := range calls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = d.execute(gctx, call)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// execute runs a single call. The ToolsNode sees a one-call message, so the
// errgroup alone decides how many calls run at once.
func (d *Dispatcher) execute(ctx context.Context, call conversation.ToolCall) conversation.Message {
	out, err := d.node.Invoke(ctx, &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID:   call.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      call.Name,
				Arguments: tools.EncodeArguments(call.Arguments),
			},
		}},
	})
	if err == nil && len(out) != 1 {
		err = fmt.Errorf("tools node returned %d results for one call", len(out))
	}

	var resp tools.ResultResponse
	if err == nil {
		resp, err = tools.DecodeResponse(out[0].Content)
	}
	if err == nil && resp.Error != "" {
		err = errors.New(resp.Error)
	}
	if err != nil {
		d.logger.Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "error", err)
		return conversation.ToolErrorMessage(call, err)
	}

	result := conversation.ToolResultMessage(call, *resp.Result)
	d.logger.Debug("tool call succeeded", "tool", call.Name, "call_id", call.ID, "result", result.Content)
	return result
}
