package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olusolaa/mathagent/foundation/conversation"
	"github.com/olusolaa/mathagent/foundation/tools"
)

// scriptedReasoner replays one step per call and records every history it saw.
type scriptedReasoner struct {
	mu        sync.Mutex
	steps     []func(history []conversation.Message) (conversation.Message, error)
	histories [][]conversation.Message
}

func (s *scriptedReasoner) Reason(ctx context.Context, history []conversation.Message) (conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories = append(s.histories, history)
	i := len(s.histories) - 1
	if i >= len(s.steps) {
		return conversation.Message{}, fmt.Errorf("unexpected reasoning call %d", i+1)
	}
	return s.steps[i](history)
}

func answer(text string) func([]conversation.Message) (conversation.Message, error) {
	return func([]conversation.Message) (conversation.Message, error) {
		return conversation.AssistantMessage(text), nil
	}
}

func request(calls ...conversation.ToolCall) func([]conversation.Message) (conversation.Message, error) {
	return func([]conversation.Message) (conversation.Message, error) {
		return conversation.AssistantMessage("", calls...), nil
	}
}

// loopingReasoner requests a tool on every call, forever.
type loopingReasoner struct {
	calls int
}

func (l *loopingReasoner) Reason(ctx context.Context, history []conversation.Message) (conversation.Message, error) {
	l.calls++
	return conversation.AssistantMessage("", conversation.ToolCall{
		ID:        fmt.Sprintf("call_%d", l.calls),
		Name:      "plus",
		Arguments: map[string]string{"a": "1", "b": "1"},
	}), nil
}

// blockingReasoner waits for the context to end.
type blockingReasoner struct{}

func (blockingReasoner) Reason(ctx context.Context, history []conversation.Message) (conversation.Message, error) {
	<-ctx.Done()
	return conversation.Message{}, ctx.Err()
}

type failingReasoner struct{ err error }

func (f failingReasoner) Reason(context.Context, []conversation.Message) (conversation.Message, error) {
	return conversation.Message{}, f.err
}

func newTestAgent(t *testing.T, r Reasoner, opts ...Option) *Agent {
	t.Helper()
	registry, err := tools.NewRegistry()
	require.NoError(t, err)
	a, err := New(r, registry, opts...)
	require.NoError(t, err)
	return a
}

func call(id, name, a, b string) conversation.ToolCall {
	return conversation.ToolCall{ID: id, Name: name, Arguments: map[string]string{"a": a, "b": b}}
}

func TestNewValidation(t *testing.T) {
	registry, err := tools.NewRegistry()
	require.NoError(t, err)

	_, err = New(nil, registry)
	assert.Error(t, err)

	_, err = New(&loopingReasoner{}, nil)
	assert.Error(t, err)

	_, err = New(&loopingReasoner{}, registry, WithMaxIterations(0))
	assert.Error(t, err)
}

func TestRunPlusScenario(t *testing.T) {
	r := &scriptedReasoner{steps: []func([]conversation.Message) (conversation.Message, error){
		request(call("call_1", "plus", "25", "17")),
		func(history []conversation.Message) (conversation.Message, error) {
			last := history[len(history)-1]
			if last.Role != conversation.RoleTool || last.Content != "42.0" {
				return conversation.Message{}, fmt.Errorf("unexpected last message %+v", last)
			}
			return conversation.AssistantMessage("25 plus 17 is 42."), nil
		},
	}}
	a := newTestAgent(t, r)

	got, state, err := a.Run(context.Background(), "What is 25 plus 17?", nil)
	require.NoError(t, err)
	assert.Contains(t, got, "42")

	msgs := state.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, "What is 25 plus 17?", msgs[0].Content)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	require.NotNil(t, msgs[2].Result)
	assert.Equal(t, 42.0, *msgs[2].Result)
	assert.Equal(t, Terminate, Route(state))
}

func TestRunDivideByZeroDoesNotAbort(t *testing.T) {
	r := &scriptedReasoner{steps: []func([]conversation.Message) (conversation.Message, error){
		request(call("d1", "divide", "10", "0")),
		func(history []conversation.Message) (conversation.Message, error) {
			last := history[len(history)-1]
			if !last.IsError() {
				return conversation.Message{}, errors.New("expected an error tool result")
			}
			return conversation.AssistantMessage("You cannot divide by zero."), nil
		},
	}}
	a := newTestAgent(t, r)

	got, state, err := a.Run(context.Background(), "Divide 10 by 0", nil)
	require.NoError(t, err)
	assert.Equal(t, "You cannot divide by zero.", got)

	msgs := state.Messages()
	require.Len(t, msgs, 4)
	assert.Nil(t, msgs[2].Result)
	assert.Contains(t, msgs[2].Error, "divide by zero")
	assert.True(t, strings.HasPrefix(msgs[2].Content, "Error:"))
}

func TestRunUnknownToolIsReportedToReasoner(t *testing.T) {
	r := &scriptedReasoner{steps: []func([]conversation.Message) (conversation.Message, error){
		request(call("m1", "modulo", "10", "3")),
		func(history []conversation.Message) (conversation.Message, error) {
			last := history[len(history)-1]
			if !strings.Contains(last.Error, tools.ErrUnknownTool.Error()) {
				return conversation.Message{}, fmt.Errorf("expected unknown tool error, got %q", last.Error)
			}
			return conversation.AssistantMessage("I can't do modulo."), nil
		},
	}}
	a := newTestAgent(t, r)

	got, _, err := a.Run(context.Background(), "10 mod 3", nil)
	require.NoError(t, err)
	assert.Equal(t, "I can't do modulo.", got)
}

func TestRunWithoutToolsAddsOneReasoningMessage(t *testing.T) {
	r := &scriptedReasoner{steps: []func([]conversation.Message) (conversation.Message, error){
		answer("Paris."),
	}}
	a := newTestAgent(t, r)

	before, err := conversation.NewState(
		conversation.UserMessage("hello"),
		conversation.AssistantMessage("hi there"),
	)
	require.NoError(t, err)

	got, after, err := a.Run(context.Background(), "What is the capital of France?", before)
	require.NoError(t, err)
	assert.Equal(t, "Paris.", got)

	// user message plus exactly one reasoning message
	assert.Equal(t, before.Len()+2, after.Len())
	last, _ := after.Last()
	assert.Equal(t, conversation.RoleAssistant, last.Role)
	assert.Equal(t, Terminate, Route(after))

	// the caller's state is not mutated
	assert.Equal(t, 2, before.Len())
}

func TestRunPassesFullHistoryEveryCall(t *testing.T) {
	r := &scriptedReasoner{steps: []func([]conversation.Message) (conversation.Message, error){
		request(call("c1", "multiply", "8", "7")),
		answer("56"),
		answer("Still 56."),
	}}
	a := newTestAgent(t, r)

	_, state, err := a.Run(context.Background(), "What is 8 multiplied by 7?", nil)
	require.NoError(t, err)
	_, state, err = a.Run(context.Background(), "And again?", state)
	require.NoError(t, err)

	require.Len(t, r.histories, 3)
	assert.Len(t, r.histories[0], 1)
	assert.Len(t, r.histories[1], 3)
	assert.Len(t, r.histories[2], 5)
	assert.Equal(t, "What is 8 multiplied by 7?", r.histories[2][0].Content)
	assert.Equal(t, 6, state.Len())
}

func TestRunLoopLimitExceeded(t *testing.T) {
	const bound = 3
	r := &loopingReasoner{}
	a := newTestAgent(t, r, WithMaxIterations(bound))

	_, state, err := a.Run(context.Background(), "loop forever", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLoopLimitExceeded))

	// user message plus bound complete reason/dispatch cycles
	require.Equal(t, 1+bound*2, state.Len())
	assert.Zero(t, state.Pending())
	assert.Equal(t, bound+1, r.calls)

	msgs := state.Messages()
	for i := 0; i < bound; i++ {
		assert.Equal(t, conversation.RoleAssistant, msgs[1+2*i].Role)
		assert.Equal(t, conversation.RoleTool, msgs[2+2*i].Role)
	}
}

func TestRunAnswersOnLastAllowedCycle(t *testing.T) {
	r := &scriptedReasoner{steps: []func([]conversation.Message) (conversation.Message, error){
		request(call("c1", "plus", "1", "1")),
		answer("2"),
	}}
	a := newTestAgent(t, r, WithMaxIterations(1))

	got, _, err := a.Run(context.Background(), "1+1", nil)
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestRunProviderFailureLeavesStateUntouched(t *testing.T) {
	before, err := conversation.NewState(conversation.UserMessage("earlier"), conversation.AssistantMessage("reply"))
	require.NoError(t, err)

	a := newTestAgent(t, failingReasoner{err: errors.New("503 service unavailable")})

	_, after, err := a.Run(context.Background(), "What is 1 plus 1?", before)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReasoningUnavailable))
	assert.Same(t, before, after)
	assert.Equal(t, 2, after.Len())
}

func TestRunProviderFailureAfterToolCycle(t *testing.T) {
	r := &scriptedReasoner{steps: []func([]conversation.Message) (conversation.Message, error){
		request(call("c1", "plus", "1", "1")),
		func([]conversation.Message) (conversation.Message, error) {
			return conversation.Message{}, errors.New("connection reset")
		},
	}}
	a := newTestAgent(t, r)

	_, after, err := a.Run(context.Background(), "1+1", nil)
	require.ErrorIs(t, err, ErrReasoningUnavailable)
	assert.Zero(t, after.Len())
}

func TestRunReasoningTimeout(t *testing.T) {
	a := newTestAgent(t, blockingReasoner{}, WithReasoningTimeout(20*time.Millisecond))

	start := time.Now()
	_, _, err := a.Run(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReasoningTimeout))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunRejectsNonAssistantOutput(t *testing.T) {
	r := &scriptedReasoner{steps: []func([]conversation.Message) (conversation.Message, error){
		func([]conversation.Message) (conversation.Message, error) {
			return conversation.UserMessage("not me"), nil
		},
	}}
	a := newTestAgent(t, r)

	_, _, err := a.Run(context.Background(), "hello", nil)
	assert.ErrorIs(t, err, ErrReasoningUnavailable)
}

func TestRunRejectsUnmatchedDuplicateCallIDs(t *testing.T) {
	r := &scriptedReasoner{steps: []func([]conversation.Message) (conversation.Message, error){
		request(call("same", "plus", "1", "1"), call("same", "plus", "2", "2")),
	}}
	a := newTestAgent(t, r)

	_, after, err := a.Run(context.Background(), "two sums", nil)
	require.ErrorIs(t, err, ErrReasoningUnavailable)
	assert.ErrorIs(t, err, conversation.ErrDuplicateToolCall)
	assert.Zero(t, after.Len())
}

func TestRunCallbacks(t *testing.T) {
	r := &scriptedReasoner{steps: []func([]conversation.Message) (conversation.Message, error){
		request(call("c1", "plus", "2", "3"), call("c2", "divide", "1", "0")),
		answer("5, and division by zero is undefined."),
	}}
	a := newTestAgent(t, r)

	var mu sync.Mutex
	events := map[string][]string{}
	record := func(kind string, info *callbacks.RunInfo) {
		// graph and lambda events are eino's own; only reasoning and tools matter here
		if info.Component != components.ComponentOfChatModel && info.Component != components.ComponentOfTool {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		events[kind] = append(events[kind], string(info.Component)+":"+info.Name)
	}
	var divideOutput string
	handler := callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
			record("start", info)
			return ctx
		}).
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			record("end", info)
			if info.Name == "divide" {
				if out := tool.ConvCallbackOutput(output); out != nil {
					mu.Lock()
					divideOutput = out.Response
					mu.Unlock()
				}
			}
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			record("error", info)
			return ctx
		}).
		Build()

	_, _, err := a.Run(context.Background(), "2+3 and 1/0", nil, WithCallbacks(handler))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"ChatModel:reason", "Tool:plus", "Tool:divide", "ChatModel:reason"}, events["start"])
	// a failing tool still completes; the failure is in its response
	assert.ElementsMatch(t, []string{"ChatModel:reason", "Tool:plus", "Tool:divide", "ChatModel:reason"}, events["end"])
	assert.Empty(t, events["error"])
	assert.JSONEq(t, `{"error":"cannot divide by zero"}`, divideOutput)
}

func TestRunOverflowIsReportedToReasoner(t *testing.T) {
	r := &scriptedReasoner{steps: []func([]conversation.Message) (conversation.Message, error){
		request(call("big", "multiply", "1e200", "1e200")),
		func(history []conversation.Message) (conversation.Message, error) {
			last := history[len(history)-1]
			if !last.IsError() {
				return conversation.Message{}, fmt.Errorf("expected an error tool result, got %+v", last)
			}
			return conversation.AssistantMessage("That product is too large."), nil
		},
	}}
	a := newTestAgent(t, r)

	got, state, err := a.Run(context.Background(), "1e200 times 1e200", nil)
	require.NoError(t, err)
	assert.Equal(t, "That product is too large.", got)

	msgs := state.Messages()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[2].Error, tools.ErrOutOfRange.Error())

	_, err = json.Marshal(state)
	assert.NoError(t, err)
}

func TestRunCanceledDuringDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &scriptedReasoner{steps: []func([]conversation.Message) (conversation.Message, error){
		func([]conversation.Message) (conversation.Message, error) {
			cancel()
			return conversation.AssistantMessage("", call("c1", "plus", "1", "1")), nil
		},
	}}
	a := newTestAgent(t, r)

	before, err := conversation.NewState(conversation.UserMessage("earlier"), conversation.AssistantMessage("reply"))
	require.NoError(t, err)

	_, after, err := a.Run(ctx, "1+1", before)
	require.ErrorIs(t, err, ErrTurnCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Same(t, before, after)
}

func TestRunCanceledDuringReasoning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	a := newTestAgent(t, blockingReasoner{})

	_, after, err := a.Run(ctx, "hello", nil)
	require.ErrorIs(t, err, ErrTurnCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrReasoningUnavailable))
	assert.Zero(t, after.Len())
}
