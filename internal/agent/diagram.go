package agent

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cloudwego/eino/compose"
)

// Names of the agent graph and its nodes.
const (
	GraphName    = "MathAgent"
	NodeStart    = compose.START
	NodeReason   = "reason"
	NodeDispatch = "dispatch"
	NodeEnd      = compose.END
)

// branchTargets maps each router decision to the node it leads to.
var branchTargets = map[Decision]string{
	DispatchTools: NodeDispatch,
	Terminate:     NodeEnd,
}

// Edge connects two graph nodes. Conditional edges are taken on the router's
// decision named by Label.
type Edge struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Label       string `json:"label,omitempty"`
	Conditional bool   `json:"conditional,omitempty"`
}

// Graph is the topology of a compiled agent graph.
type Graph struct {
	Name  string   `json:"name"`
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// Topology compiles the loop graph without running it and returns its
// shape: START -> reason -> {dispatch -> reason | END}.
func Topology() (Graph, error) {
	a := &Agent{maxIterations: DefaultMaxIterations, logger: slog.New(slog.DiscardHandler)}
	_, g, err := a.compile(context.Background())
	if err != nil {
		return Graph{}, fmt.Errorf("failed to compile agent graph: %w", err)
	}
	return g, nil
}

// topologyRecorder captures the graph shape when compilation finishes.
type topologyRecorder struct {
	graph Graph
}

func (r *topologyRecorder) OnFinish(_ context.Context, info *compose.GraphInfo) {
	r.graph = graphFromInfo(info)
}

// graphFromInfo walks the compiled graph breadth-first from START. Plain
// edges come before branches; END is always listed last.
func graphFromInfo(info *compose.GraphInfo) Graph {
	g := Graph{Name: info.Name}
	seen := map[string]bool{NodeStart: true}
	queue := []string{NodeStart}
	reachedEnd := false

	visit := func(to string) {
		if to == NodeEnd {
			reachedEnd = true
			return
		}
		if !seen[to] {
			seen[to] = true
			queue = append(queue, to)
		}
	}

	for len(queue) > 0 {
		from := queue[0]
		queue = queue[1:]
		g.Nodes = append(g.Nodes, from)

		targets := slices.Clone(info.Edges[from])
		slices.Sort(targets)
		for _, to := range targets {
			g.Edges = append(g.Edges, Edge{From: from, To: to})
			visit(to)
		}

		branches := info.Branches[from]
		for i := range branches {
			ends := slices.Sorted(maps.Keys(branches[i].GetEndNode()))
			for _, to := range ends {
				g.Edges = append(g.Edges, Edge{From: from, To: to, Label: branchLabel(to), Conditional: true})
				visit(to)
			}
		}
	}
	if reachedEnd {
		g.Nodes = append(g.Nodes, NodeEnd)
	}
	return g
}

func branchLabel(to string) string {
	for d, node := range branchTargets {
		if node == to {
			return d.String()
		}
	}
	return ""
}

// Mermaid renders g as a Mermaid flowchart. START and END are drawn as
// __start__ and __end__, since end is a Mermaid keyword.
func Mermaid(g Graph) string {
	var sb strings.Builder
	sb.WriteString("---\nconfig:\n  flowchart:\n    curve: linear\n---\n")
	sb.WriteString("graph TD;\n")
	for _, n := range g.Nodes {
		id := mermaidID(n)
		switch n {
		case NodeStart:
			fmt.Fprintf(&sb, "\t%s([<p>%s</p>]):::first\n", id, id)
		case NodeEnd:
			fmt.Fprintf(&sb, "\t%s([<p>%s</p>]):::last\n", id, id)
		default:
			fmt.Fprintf(&sb, "\t%s(%s)\n", id, n)
		}
	}
	for _, e := range g.Edges {
		from, to := mermaidID(e.From), mermaidID(e.To)
		switch {
		case e.Conditional && e.Label != "":
			fmt.Fprintf(&sb, "\t%s -. &nbsp;%s&nbsp; .-> %s;\n", from, e.Label, to)
		case e.Conditional:
			fmt.Fprintf(&sb, "\t%s -.-> %s;\n", from, to)
		default:
			fmt.Fprintf(&sb, "\t%s --> %s;\n", from, to)
		}
	}
	sb.WriteString("\tclassDef default fill:#f2f0ff,line-height:1.2\n")
	sb.WriteString("\tclassDef first fill-opacity:0\n")
	sb.WriteString("\tclassDef last fill:#bfb6fc\n")
	return sb.String()
}

func mermaidID(node string) string {
	switch node {
	case NodeStart, NodeEnd:
		return "__" + node + "__"
	}
	return node
}

// SaveMermaid writes the Mermaid rendering of g to path, creating parent
// directories as needed.
func SaveMermaid(g Graph, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(Mermaid(g)), 0644); err != nil {
		return fmt.Errorf("failed to write diagram to %s: %w", path, err)
	}
	return nil
}
