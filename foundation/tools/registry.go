package tools

import (
	"fmt"
)

// Kind identifies one of the registered arithmetic tools.
type Kind int

const (
	KindPlus Kind = iota
	KindSubtract
	KindMultiply
	KindDivide
)

var kindNames = [...]string{
	KindPlus:     "plus",
	KindSubtract: "subtract",
	KindMultiply: "multiply",
	KindDivide:   "divide",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a tool name to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// ArgumentType is the wire type advertised for tool arguments. The tools
// accept both forms; this only changes what the model is asked to send.
type ArgumentType string

const (
	ArgumentString ArgumentType = "string"
	ArgumentNumber ArgumentType = "number"
)

// Param describes one named tool argument.
type Param struct {
	Name        string
	Description string
}

// Tool is a registered arithmetic tool with a fixed two-argument schema.
type Tool struct {
	Kind         Kind
	Description  string
	Params       [2]Param
	ArgumentType ArgumentType
	eval         func(a, b string) (float64, error)
}

// Name returns the identifier the model uses to request the tool.
func (t Tool) Name() string {
	return t.Kind.String()
}

// Evaluate runs the tool on text arguments keyed by parameter name.
func (t Tool) Evaluate(args map[string]string) (float64, error) {
	a, ok := args[t.Params[0].Name]
	if !ok {
		return 0, fmt.Errorf("%w: missing argument %q", ErrInvalidArgument, t.Params[0].Name)
	}
	b, ok := args[t.Params[1].Name]
	if !ok {
		return 0, fmt.Errorf("%w: missing argument %q", ErrInvalidArgument, t.Params[1].Name)
	}
	return t.eval(a, b)
}

// JSONSchema returns the argument schema as a JSON-schema object.
func (t Tool) JSONSchema() map[string]any {
	props := make(map[string]any, len(t.Params))
	required := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		props[p.Name] = map[string]any{
			"type":        string(t.ArgumentType),
			"description": p.Description,
		}
		required = append(required, p.Name)
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Registry is the static tool table. It is built once and read-only after.
type Registry struct {
	tools [len(kindNames)]Tool
}

type config struct {
	argType ArgumentType
}

// Option configures a Registry.
type Option func(*config)

// WithArgumentType sets the argument wire type advertised to the model.
func WithArgumentType(t ArgumentType) Option {
	return func(c *config) {
		c.argType = t
	}
}

// NewRegistry builds the table of the four arithmetic tools.
func NewRegistry(opts ...Option) (*Registry, error) {
	cfg := &config{argType: ArgumentString}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.argType != ArgumentString && cfg.argType != ArgumentNumber {
		return nil, fmt.Errorf("unsupported argument type %q", cfg.argType)
	}

	suffix := " (as string)"
	if cfg.argType == ArgumentNumber {
		suffix = ""
	}
	operands := func(first, second string) [2]Param {
		return [2]Param{
			{Name: "a", Description: first + suffix},
			{Name: "b", Description: second + suffix},
		}
	}

	r := &Registry{}
	r.tools[KindPlus] = Tool{
		Kind:        KindPlus,
		Description: "Add two numbers together. Returns the sum of a and b.",
		Params:      operands("First number", "Second number"),
		eval:        Plus,
	}
	r.tools[KindSubtract] = Tool{
		Kind:        KindSubtract,
		Description: "Subtract second number from first number. Returns the difference (a - b).",
		Params:      operands("First number", "Second number"),
		eval:        Subtract,
	}
	r.tools[KindMultiply] = Tool{
		Kind:        KindMultiply,
		Description: "Multiply two numbers together. Returns the product of a and b.",
		Params:      operands("First number", "Second number"),
		eval:        Multiply,
	}
	r.tools[KindDivide] = Tool{
		Kind:        KindDivide,
		Description: "Divide first number by second number. Returns the quotient (a / b). Fails if b is zero.",
		Params:      operands("First number (numerator)", "Second number (denominator)"),
		eval:        Divide,
	}
	for i := range r.tools {
		r.tools[i].ArgumentType = cfg.argType
	}
	return r, nil
}

// Lookup finds a tool by the name the model used.
func (r *Registry) Lookup(name string) (Tool, error) {
	k, ok := ParseKind(name)
	if !ok {
		return Tool{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return r.tools[k], nil
}

// Get returns the tool for k.
func (r *Registry) Get(k Kind) Tool {
	return r.tools[k]
}

// Tools returns every registered tool in Kind order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, len(r.tools))
	copy(out, r.tools[:])
	return out
}
