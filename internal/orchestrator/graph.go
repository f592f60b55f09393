package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/atende-labs/atendai/internal/domain"
)

// NodeKind identifies the role a node plays in the request graph.
type NodeKind string

const (
	NodeKindIntent    NodeKind = "intent-classification"
	NodeKindRetrieval NodeKind = "retrieval"
	NodeKindBridge    NodeKind = "bridge-execution"
	NodeKindAggregate NodeKind = "aggregation"
)

// NodeState is the lifecycle state of a node within one graph run.
type NodeState string

const (
	StatePending   NodeState = "pending"
	StateRunning   NodeState = "running"
	StateCompleted NodeState = "completed"
	StateFailed    NodeState = "failed"
	StateTimedOut  NodeState = "timed_out"
	StateSkipped   NodeState = "skipped"
)

// terminal reports whether the state counts as finished for dependency
// resolution. Skipped nodes are terminal: they satisfy downstream
// dependencies while contributing no value.
func (s NodeState) terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut, StateSkipped:
		return true
	}
	return false
}

// RequestContext carries the request-local data every node can read. It is
// populated once before the run starts and never mutated afterwards, so
// concurrent nodes may share it by reference.
type RequestContext struct {
	TenantID       string
	ConversationID string
	Message        string
	Metadata       map[string]string
	Config         *domain.TenantConfig
	Variables      map[string]interface{}
}

// NodeResult is the terminal outcome of one node. Err is recorded for
// logging only; downstream nodes and the aggregator consume Value, which
// holds the fallback when the node failed or timed out.
type NodeResult struct {
	NodeID string
	State  NodeState
	Value  interface{}
	Err    error
}

// NodeSpec declares one node of the request graph.
//
// Predicate, when set, is evaluated once all dependencies are terminal; a
// false result skips the node entirely. Fallback must be a pure, non-blocking
// function of the request context because it runs on the scheduler goroutine.
type NodeSpec struct {
	ID        string
	Kind      NodeKind
	DependsOn []string
	Predicate func(deps map[string]NodeResult) bool
	Timeout   time.Duration
	Run       func(ctx context.Context, reqCtx *RequestContext, deps map[string]NodeResult) (interface{}, error)
	Fallback  func(reqCtx *RequestContext) interface{}
}

// GraphSpec is the full node set for one request. The shape is fixed per
// request type; it is rebuilt per request so predicates can close over
// request data without synchronization.
type GraphSpec struct {
	Nodes []NodeSpec
}

// Validate checks the graph for duplicate ids, unknown dependencies,
// missing run functions and cycles. Run refuses graphs that fail this.
func (g *GraphSpec) Validate() error {
	byID := make(map[string]*NodeSpec, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			return fmt.Errorf("graph node at index %d has no id", i)
		}
		if _, ok := byID[n.ID]; ok {
			return fmt.Errorf("duplicate graph node id %q", n.ID)
		}
		if n.Run == nil {
			return fmt.Errorf("graph node %q has no run function", n.ID)
		}
		byID[n.ID] = n
	}

	for i := range g.Nodes {
		for _, dep := range g.Nodes[i].DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("graph node %q depends on unknown node %q", g.Nodes[i].ID, dep)
			}
		}
	}

	// cycle detection via iterative DFS with colors
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(g.Nodes))
	var visit func(id string) error
	visit = func(id string) error {
		colors[id] = gray
		for _, dep := range byID[id].DependsOn {
			switch colors[dep] {
			case gray:
				return fmt.Errorf("graph contains a dependency cycle through %q", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		colors[id] = black
		return nil
	}
	for i := range g.Nodes {
		if colors[g.Nodes[i].ID] == white {
			if err := visit(g.Nodes[i].ID); err != nil {
				return err
			}
		}
	}
	return nil
}
