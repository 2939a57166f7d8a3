package tools

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	for _, name := range []string{"plus", "subtract", "multiply", "divide"} {
		tl, err := r.Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, tl.Name())
		assert.NotEmpty(t, tl.Description)
	}

	_, err = r.Lookup("modulo")
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = r.Lookup("")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistryRejectsUnsupportedArgumentType(t *testing.T) {
	_, err := NewRegistry(WithArgumentType("boolean"))
	require.Error(t, err)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "plus", KindPlus.String())
	assert.Equal(t, "divide", KindDivide.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())

	k, ok := ParseKind("multiply")
	require.True(t, ok)
	assert.Equal(t, KindMultiply, k)
}

func TestToolEvaluate(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	got, err := r.Get(KindDivide).Evaluate(map[string]string{"a": "10", "b": "4"})
	require.NoError(t, err)
	assert.Equal(t, 2.5, got)

	_, err = r.Get(KindPlus).Evaluate(map[string]string{"a": "1"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = r.Get(KindPlus).Evaluate(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestToolJSONSchema(t *testing.T) {
	tests := []struct {
		name    string
		argType ArgumentType
		want    string
	}{
		{name: "text arguments", argType: ArgumentString, want: "string"},
		{name: "numeric arguments", argType: ArgumentNumber, want: "number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(WithArgumentType(tt.argType))
			require.NoError(t, err)

			s := r.Get(KindSubtract).JSONSchema()
			assert.Equal(t, "object", s["type"])
			assert.Equal(t, []string{"a", "b"}, s["required"])

			props := s["properties"].(map[string]any)
			require.Len(t, props, 2)
			a := props["a"].(map[string]any)
			assert.Equal(t, tt.want, a["type"])
		})
	}
}

func TestBaseTools(t *testing.T) {
	ctx := context.Background()
	r, err := NewRegistry()
	require.NoError(t, err)

	baseTools := r.BaseTools()
	require.Len(t, baseTools, 4)

	names := make([]string, 0, len(baseTools))
	for _, bt := range baseTools {
		info, err := bt.Info(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, info.Desc)
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"plus", "subtract", "multiply", "divide"}, names)
}

func TestInvokableRun(t *testing.T) {
	ctx := context.Background()
	r, err := NewRegistry()
	require.NoError(t, err)

	tests := []struct {
		name string
		kind Kind
		args string
		want string
	}{
		{name: "text operands", kind: KindPlus, args: `{"a":"25","b":"17"}`, want: `{"result":42}`},
		{name: "numeric operands", kind: KindMultiply, args: `{"a":8,"b":7}`, want: `{"result":56}`},
		{name: "division by zero", kind: KindDivide, args: `{"a":"10","b":"0"}`, want: `{"error":"cannot divide by zero"}`},
		{name: "overflow", kind: KindMultiply, args: `{"a":"1e200","b":"1e200"}`, want: `{"error":"result out of range"}`},
		{name: "missing operand", kind: KindPlus, args: `{"a":"1"}`, want: `{"error":"invalid argument: missing argument \"b\""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inv tool.InvokableTool = r.Get(tt.kind).Invokable()
			out, err := inv.InvokableRun(ctx, tt.args)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, out)
		})
	}
}

func TestToolInfoArgumentType(t *testing.T) {
	r, err := NewRegistry(WithArgumentType(ArgumentNumber))
	require.NoError(t, err)

	info := r.Get(KindPlus).Info()
	assert.Equal(t, "plus", info.Name)
	assert.NotNil(t, info.ParamsOneOf)
	assert.Equal(t, ArgumentNumber, r.Get(KindPlus).ArgumentType)
}

func TestArgumentsEncoding(t *testing.T) {
	in := map[string]string{"a": "25", "b": "1e3"}
	got, err := DecodeArguments(EncodeArguments(in))
	require.NoError(t, err)
	assert.Equal(t, in, got)

	got, err = DecodeArguments(`{"a":8,"b":"7"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "8", "b": "7"}, got)

	assert.Equal(t, "{}", EncodeArguments(nil))

	_, err = DecodeArguments(`{"a":`)
	assert.Error(t, err)
}

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse(`{"result":42}`)
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 42.0, *resp.Result)

	resp, err = DecodeResponse(`{"error":"cannot divide by zero"}`)
	require.NoError(t, err)
	assert.Nil(t, resp.Result)
	assert.Equal(t, "cannot divide by zero", resp.Error)

	_, err = DecodeResponse(`{}`)
	assert.Error(t, err)
	_, err = DecodeResponse(`not json`)
	assert.Error(t, err)
}

func TestUnknownTool(t *testing.T) {
	out, err := UnknownTool(context.Background(), "modulo", `{"a":"1","b":"2"}`)
	require.NoError(t, err)

	resp, err := DecodeResponse(out)
	require.NoError(t, err)
	assert.Equal(t, `unknown tool: "modulo"`, resp.Error)
}
