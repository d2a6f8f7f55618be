// Package workflow sequences the research pipeline as a small directed
// graph: named nodes over a shared state, linear edges, and at most one
// conditional branch per node. Retry cycles live inside the nodes
// themselves, so graph traversal is bounded by the node count.
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quantlab/services/agents"
	"quantlab/services/campaign"
	"quantlab/services/indicator"
	"quantlab/services/marketdata"
	"quantlab/services/signal"
)

// State is the blackboard the pipeline nodes read and write.
type State struct {
	Symbol    string
	AssetType string
	Start     time.Time
	End       time.Time

	Bars      []marketdata.Bar
	Frame     *indicator.Frame
	Outcome   *campaign.Outcome
	Signal    *signal.Signal
	Sentiment *agents.Sentiment

	Report     string
	ReportPath string
}

// NodeFunc runs one pipeline step against the shared state.
type NodeFunc func(ctx context.Context, s *State) error

// BranchFunc picks the next node after its host ran. Returning "" finishes
// the run.
type BranchFunc func(s *State) string

// Graph is a directed node graph with single successors.
type Graph struct {
	logger   *zap.Logger
	nodes    map[string]NodeFunc
	edges    map[string]string
	branches map[string]BranchFunc
	entry    string
}

// NewGraph accepts a nil logger.
func NewGraph(logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{
		logger:   logger,
		nodes:    make(map[string]NodeFunc),
		edges:    make(map[string]string),
		branches: make(map[string]BranchFunc),
	}
}

// AddNode registers fn under name.
func (g *Graph) AddNode(name string, fn NodeFunc) error {
	if name == "" {
		return fmt.Errorf("workflow: node name is empty")
	}
	if fn == nil {
		return fmt.Errorf("workflow: node %q has no function", name)
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("workflow: node %q already registered", name)
	}
	g.nodes[name] = fn
	return nil
}

// AddEdge makes to the unconditional successor of from. A node has at most
// one successor, edge or branch.
func (g *Graph) AddEdge(from, to string) error {
	if err := g.checkSuccessor(from); err != nil {
		return err
	}
	g.edges[from] = to
	return nil
}

// AddBranch makes fn pick from's successor at run time.
func (g *Graph) AddBranch(from string, fn BranchFunc) error {
	if fn == nil {
		return fmt.Errorf("workflow: branch at %q has no function", from)
	}
	if err := g.checkSuccessor(from); err != nil {
		return err
	}
	g.branches[from] = fn
	return nil
}

func (g *Graph) checkSuccessor(from string) error {
	if _, exists := g.edges[from]; exists {
		return fmt.Errorf("workflow: node %q already has a successor", from)
	}
	if _, exists := g.branches[from]; exists {
		return fmt.Errorf("workflow: node %q already has a successor", from)
	}
	return nil
}

// SetEntry names the node Run starts from.
func (g *Graph) SetEntry(name string) { g.entry = name }

// Validate checks the static shape: an entry that exists and edges whose
// endpoints are registered. Branch targets are only known at run time and
// are checked there.
func (g *Graph) Validate() error {
	if g.entry == "" {
		return fmt.Errorf("workflow: entry node not set")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("workflow: entry node %q not registered", g.entry)
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("workflow: edge from unknown node %q", from)
		}
		if _, ok := g.nodes[to]; !ok {
			return fmt.Errorf("workflow: edge from %q to unknown node %q", from, to)
		}
	}
	for from := range g.branches {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("workflow: branch at unknown node %q", from)
		}
	}
	return nil
}

// Run walks the graph from the entry until a node has no successor or a
// branch returns "". Node errors abort the walk wrapped with the node name.
// Visiting more nodes than exist means the graph loops, which is an error:
// retries belong inside nodes, not in edges.
func (g *Graph) Run(ctx context.Context, s *State) error {
	if err := g.Validate(); err != nil {
		return err
	}

	current := g.entry
	steps := 0
	for current != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		steps++
		if steps > len(g.nodes) {
			return fmt.Errorf("workflow: stopped at node %q after %d steps, graph has a cycle", current, steps-1)
		}

		g.logger.Info("workflow node started", zap.String("node", current), zap.Int("step", steps))
		if err := g.nodes[current](ctx, s); err != nil {
			return fmt.Errorf("workflow node %s: %w", current, err)
		}

		if branch, ok := g.branches[current]; ok {
			next := branch(s)
			if next == "" {
				return nil
			}
			if _, ok := g.nodes[next]; !ok {
				return fmt.Errorf("workflow: branch at %q chose unknown node %q", current, next)
			}
			current = next
			continue
		}
		current = g.edges[current]
	}
	return nil
}
