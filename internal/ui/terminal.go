// Package ui renders the math agent in a terminal.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"

	"github.com/olusolaa/mathagent/foundation/conversation"
	"github.com/olusolaa/mathagent/foundation/tools"
)

// TerminalUI handles all rendering and user interaction in the terminal.
// Build returns a callbacks.Handler that reports tool and reasoning events.
type TerminalUI struct {
	scanner *bufio.Scanner
	out     *syncWriter
	spinner *Spinner

	user      lipgloss.Style
	bot       lipgloss.Style
	tool      lipgloss.Style
	success   lipgloss.Style
	fail      lipgloss.Style
	warn      lipgloss.Style
	muted     lipgloss.Style
	highlight lipgloss.Style
}

// New creates a TerminalUI reading from in and writing to out.
func New(in io.Reader, out io.Writer) *TerminalUI {
	w := &syncWriter{w: out}
	r := lipgloss.NewRenderer(out)
	return &TerminalUI{
		scanner:   bufio.NewScanner(in),
		out:       w,
		spinner:   NewSpinner(w, 100*time.Millisecond),
		user:      r.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		bot:       r.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		tool:      r.NewStyle().Foreground(lipgloss.Color("35")),
		success:   r.NewStyle().Foreground(lipgloss.Color("42")),
		fail:      r.NewStyle().Foreground(lipgloss.Color("196")),
		warn:      r.NewStyle().Foreground(lipgloss.Color("220")),
		muted:     r.NewStyle().Foreground(lipgloss.Color("245")),
		highlight: r.NewStyle().Foreground(lipgloss.Color("141")).Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 2),
	}
}

func (t *TerminalUI) println(a ...any) {
	fmt.Fprintln(t.out, a...)
}

// DisplayWelcome prints the initial banner and instructions.
func (t *TerminalUI) DisplayWelcome(provider, model string) {
	t.println(t.highlight.Render("🧮 Math Agent - Tool Routing with Eino"))
	t.println(t.muted.Render(fmt.Sprintf("Model: %s (%s)", model, provider)))
	t.println(t.muted.Render("Tools: plus, subtract, multiply, divide | Type 'quit', 'exit' or '<QUIT>' to leave."))
	t.println(t.muted.Render(strings.Repeat("─", 62)))
}

// GetUserInput prompts the user and returns their input. ok is false once
// the input is exhausted.
func (t *TerminalUI) GetUserInput() (string, bool) {
	fmt.Fprintf(t.out, "\n%s ", t.user.Render("You:"))
	if !t.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(t.scanner.Text()), true
}

// IsQuit reports whether input asks to leave the session.
func IsQuit(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "quit", "exit", "<quit>":
		return true
	}
	return false
}

// DisplayQuery echoes a scripted query, as in demo mode.
func (t *TerminalUI) DisplayQuery(i, n int, query string) {
	t.println()
	t.println(t.muted.Render(fmt.Sprintf("[%d/%d]", i, n)), t.user.Render("You:"), query)
}

// DisplayAnswer prints the final answer of a turn.
func (t *TerminalUI) DisplayAnswer(answer string) {
	t.println(t.bot.Render("Bot:"), answer)
}

// DisplayWarning prints a non-fatal notice.
func (t *TerminalUI) DisplayWarning(msg string) {
	t.println(t.warn.Render("⚠️  " + msg))
}

// DisplayError prints a formatted error message.
func (t *TerminalUI) DisplayError(err error) {
	t.println(t.fail.Render("Error:"), err)
}

// DisplayInfo prints a muted status line.
func (t *TerminalUI) DisplayInfo(msg string) {
	t.println(t.muted.Render(msg))
}

// DisplayGoodbye prints the exit message.
func (t *TerminalUI) DisplayGoodbye() {
	t.println("\n👋 Goodbye!")
}

// OnStartFn is called when a component starts. Reasoning shows a spinner;
// tools are reported when they finish.
func (t *TerminalUI) OnStartFn(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	switch info.Component {
	case components.ComponentOfChatModel:
		t.spinner.Start(" 🤔 " + t.muted.Render("thinking"))
	case components.ComponentOfTool:
		if in := tool.ConvCallbackInput(input); in != nil {
			return context.WithValue(ctx, toolArgsKey{}, in.ArgumentsInJSON)
		}
	}
	return ctx
}

// OnEndFn is called when a component successfully finishes. Tool failures
// arrive here too, inside the tool's response.
func (t *TerminalUI) OnEndFn(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	switch info.Component {
	case components.ComponentOfChatModel:
		t.spinner.Stop()
	case components.ComponentOfTool:
		out := tool.ConvCallbackOutput(output)
		if out == nil {
			return ctx
		}
		resp, err := tools.DecodeResponse(out.Response)
		switch {
		case err != nil:
			t.toolLine(ctx, info.Name, t.fail.Render("✗"), t.muted.Render(err.Error()))
		case resp.Error != "":
			t.toolLine(ctx, info.Name, t.fail.Render("✗"), t.muted.Render(resp.Error))
		default:
			t.toolLine(ctx, info.Name, t.success.Render("✓"), conversation.FormatNumber(*resp.Result))
		}
	}
	return ctx
}

// OnErrorFn is called when a component errors out.
func (t *TerminalUI) OnErrorFn(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	switch info.Component {
	case components.ComponentOfChatModel:
		t.spinner.Stop()
	case components.ComponentOfTool:
		t.toolLine(ctx, info.Name, t.fail.Render("✗"), t.muted.Render(err.Error()))
	}
	return ctx
}

func (t *TerminalUI) toolLine(ctx context.Context, name, mark, detail string) {
	args, _ := ctx.Value(toolArgsKey{}).(string)
	t.println(fmt.Sprintf(" %s %s %s %s", getToolIcon(name), t.tool.Render(formatCall(name, args)), mark, detail))
}

// Build creates the callbacks.Handler from the UI methods.
func (t *TerminalUI) Build() callbacks.Handler {
	builder := callbacks.NewHandlerBuilder()
	builder.OnStartFn(t.OnStartFn)
	builder.OnEndFn(t.OnEndFn)
	builder.OnErrorFn(t.OnErrorFn)
	return builder.Build()
}

type toolArgsKey struct{}

func formatCall(name, argumentsInJSON string) string {
	args, err := tools.DecodeArguments(argumentsInJSON)
	if err != nil || len(args) == 0 {
		return name + "()"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+args[k])
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

func getToolIcon(toolName string) string {
	switch toolName {
	case "plus":
		return "➕"
	case "subtract":
		return "➖"
	case "multiply":
		return "✖️"
	case "divide":
		return "➗"
	default:
		return "🛠️"
	}
}

// syncWriter serialises writes from the spinner and the callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// --- Spinner ---

// Spinner provides a simple terminal spinner.
type Spinner struct {
	out      io.Writer
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewSpinner(out io.Writer, d time.Duration) *Spinner {
	return &Spinner{out: out, interval: d}
}

// Start shows message with an animated frame until Stop. Starting an active
// spinner does nothing.
func (s *Spinner) Start(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		frames := []rune(`⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏`)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(s.out, "\r%s %s ", message, string(frames[i%len(frames)]))
			select {
			case <-stop:
				fmt.Fprint(s.out, "\r\033[K")
				return
			case <-ticker.C:
			}
		}
	}(s.stop, s.done)
}

// Stop clears the spinner line and waits for the animation to end.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
}
