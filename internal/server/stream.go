package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/sse"

	"github.com/olusolaa/mathagent/foundation/conversation"
	"github.com/olusolaa/mathagent/foundation/tools"
	"github.com/olusolaa/mathagent/internal/agent"
)

// Event names sent on the stream endpoint.
const (
	EventReasoning = "reasoning"
	EventToolCall  = "tool_call"
	EventAnswer    = "answer"
	EventError     = "error"
)

type toolEvent struct {
	Tool      string            `json:"tool"`
	Arguments map[string]string `json:"arguments,omitempty"`
	Result    string            `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// sink receives one named event. It must be safe for concurrent use.
type sink func(event string, payload any)

type toolArgsKey struct{}

// eventHandler reports reasoning steps and finished tool calls to emit.
func eventHandler(emit sink) callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
			switch info.Component {
			case components.ComponentOfChatModel:
				emit(EventReasoning, map[string]string{"node": info.Name})
			case components.ComponentOfTool:
				if in := tool.ConvCallbackInput(input); in != nil {
					if args, err := tools.DecodeArguments(in.ArgumentsInJSON); err == nil {
						return context.WithValue(ctx, toolArgsKey{}, args)
					}
				}
			}
			return ctx
		}).
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			if info.Component != components.ComponentOfTool {
				return ctx
			}
			ev := toolEvent{Tool: info.Name, Arguments: argsFrom(ctx)}
			if out := tool.ConvCallbackOutput(output); out != nil {
				resp, err := tools.DecodeResponse(out.Response)
				switch {
				case err != nil:
					ev.Error = err.Error()
				case resp.Error != "":
					ev.Error = resp.Error
				default:
					ev.Result = conversation.FormatNumber(*resp.Result)
				}
			}
			emit(EventToolCall, ev)
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			if info.Component == components.ComponentOfTool {
				emit(EventToolCall, toolEvent{Tool: info.Name, Arguments: argsFrom(ctx), Error: err.Error()})
			}
			return ctx
		}).
		Build()
}

func argsFrom(ctx context.Context) map[string]string {
	args, _ := ctx.Value(toolArgsKey{}).(map[string]string)
	return args
}

// streamMessage runs a turn and streams its progress as server-sent events,
// ending with an answer or error event.
func (s *Server) streamMessage(ctx context.Context, c *app.RequestContext) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	query, ok := bindQuery(c)
	if !ok {
		return
	}

	c.SetStatusCode(consts.StatusOK)
	stream := sse.NewStream(c)

	var mu sync.Mutex
	emit := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.Error("failed to encode event", "event", event, "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if err := stream.Publish(&sse.Event{Event: event, Data: data}); err != nil {
			s.logger.Warn("failed to publish event", "event", event, "error", err)
		}
	}

	answer, _, err := s.runTurn(ctx, sess, query, agent.WithCallbacks(eventHandler(emit)))
	if err != nil {
		emit(EventError, map[string]any{"error": err.Error(), "status": statusFor(err)})
		return
	}
	emit(EventAnswer, map[string]string{"answer": answer})
}
