package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

// Operand is a tool argument as sent by the model. It accepts a JSON string
// or a JSON number and keeps the text form.
type Operand string

func (o *Operand) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*o = Operand(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, data)
	}
	*o = Operand(n.String())
	return nil
}

// OperandsRequest represents arithmetic tool input. Absent operands stay nil.
type OperandsRequest struct {
	A *Operand `json:"a,omitempty"`
	B *Operand `json:"b,omitempty"`
}

// ResultResponse represents arithmetic tool output.
type ResultResponse struct {
	Result *float64 `json:"result,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// EncodeArguments renders text arguments as the JSON object a tool expects.
func EncodeArguments(args map[string]string) string {
	if args == nil {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// DecodeArguments is the inverse of EncodeArguments. Numeric values keep
// their literal form.
func DecodeArguments(argumentsInJSON string) (map[string]string, error) {
	var raw map[string]Operand
	if err := json.Unmarshal([]byte(argumentsInJSON), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode arguments: %w", err)
	}
	args := make(map[string]string, len(raw))
	for k, v := range raw {
		args[k] = string(v)
	}
	return args, nil
}

// DecodeResponse parses the output of an Invokable tool.
func DecodeResponse(response string) (ResultResponse, error) {
	var resp ResultResponse
	if err := json.Unmarshal([]byte(response), &resp); err != nil {
		return ResultResponse{}, fmt.Errorf("failed to decode tool response: %w", err)
	}
	if resp.Result == nil && resp.Error == "" {
		return ResultResponse{}, fmt.Errorf("empty tool response %q", response)
	}
	return resp, nil
}

func errorResponse(err error) string {
	data, _ := json.Marshal(ResultResponse{Error: err.Error()})
	return string(data)
}

// UnknownTool answers calls to names outside the registry with an error
// response, so the model hears about them like any other tool failure.
func UnknownTool(_ context.Context, name, _ string) (string, error) {
	return errorResponse(fmt.Errorf("%w: %q", ErrUnknownTool, name)), nil
}

// Info describes the tool for model binding.
func (t Tool) Info() *schema.ToolInfo {
	dataType := schema.String
	if t.ArgumentType == ArgumentNumber {
		dataType = schema.Number
	}
	params := make(map[string]*schema.ParameterInfo, len(t.Params))
	for _, p := range t.Params {
		params[p.Name] = &schema.ParameterInfo{
			Type:     dataType,
			Desc:     p.Description,
			Required: true,
		}
	}
	return &schema.ToolInfo{
		Name:        t.Name(),
		Desc:        t.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

// Invokable wraps the tool as an eino tool. Failures are reported in the
// response's Error field so the model can react to them.
func (t Tool) Invokable() tool.InvokableTool {
	return utils.NewTool(t.Info(), func(ctx context.Context, req *OperandsRequest) (*ResultResponse, error) {
		args := make(map[string]string, len(t.Params))
		if req.A != nil {
			args[t.Params[0].Name] = string(*req.A)
		}
		if req.B != nil {
			args[t.Params[1].Name] = string(*req.B)
		}
		v, err := t.Evaluate(args)
		if err != nil {
			return &ResultResponse{Error: err.Error()}, nil
		}
		return &ResultResponse{Result: &v}, nil
	})
}

// BaseTools returns the eino view of every registered tool.
func (r *Registry) BaseTools() []tool.BaseTool {
	out := make([]tool.BaseTool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Invokable())
	}
	return out
}
