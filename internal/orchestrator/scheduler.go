package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

const defaultAggregateGrace = 250 * time.Millisecond

// Scheduler runs request graphs. Eligible nodes are dispatched concurrently,
// each wrapped with its own timeout; errors and timeouts are absorbed at the
// node boundary and resolved to fallback values, so the aggregation node
// always observes a complete view of its dependencies.
type Scheduler struct {
	logger *log.Logger

	// aggregateGrace is the budget granted to the aggregation node after
	// the umbrella deadline has already fired.
	aggregateGrace time.Duration
}

// NewScheduler creates a graph scheduler.
func NewScheduler(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		logger:         logger,
		aggregateGrace: defaultAggregateGrace,
	}
}

type completion struct {
	id       string
	value    interface{}
	err      error
	timedOut bool
}

// Run executes the graph and returns the terminal result of every node,
// keyed by node id. The only error return is a graph validation failure;
// node-level errors are resolved into fallback values inside the results.
//
// When ctx expires mid-run, every non-terminal node is forced into its
// timed-out fallback state and aggregation still runs on a small grace
// budget, so the caller always receives a usable result set.
func (s *Scheduler) Run(ctx context.Context, reqCtx *RequestContext, spec *GraphSpec) (map[string]NodeResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	byID := make(map[string]NodeSpec, len(spec.Nodes))
	for _, n := range spec.Nodes {
		byID[n.ID] = n
	}

	results := make(map[string]NodeResult, len(spec.Nodes))
	running := make(map[string]bool, len(spec.Nodes))
	completions := make(chan completion, len(spec.Nodes))

	depsTerminal := func(n NodeSpec) bool {
		for _, dep := range n.DependsOn {
			if r, ok := results[dep]; !ok || !r.State.terminal() {
				return false
			}
		}
		return true
	}

	// depView builds the dependency snapshot a node receives. Skipped
	// dependencies are omitted: they contribute no value and no error.
	depView := func(n NodeSpec) map[string]NodeResult {
		view := make(map[string]NodeResult, len(n.DependsOn))
		for _, dep := range n.DependsOn {
			if r, ok := results[dep]; ok && r.State != StateSkipped {
				view[dep] = r
			}
		}
		return view
	}

	record := func(c completion) {
		n := byID[c.id]
		switch {
		case c.timedOut:
			s.logger.Printf("orchestrator: node %s timed out, using fallback", c.id)
			results[c.id] = NodeResult{NodeID: c.id, State: StateTimedOut, Value: s.fallbackValue(n, reqCtx), Err: c.err}
		case c.err != nil:
			s.logger.Printf("orchestrator: node %s failed, using fallback: %v", c.id, c.err)
			results[c.id] = NodeResult{NodeID: c.id, State: StateFailed, Value: s.fallbackValue(n, reqCtx), Err: c.err}
		default:
			results[c.id] = NodeResult{NodeID: c.id, State: StateCompleted, Value: c.value}
		}
	}

	for {
		if ctx.Err() != nil {
			s.forceRemaining(ctx, reqCtx, spec, results, depView)
			return results, nil
		}

		// Dispatch every node whose dependencies are terminal. Skipping a
		// node can unblock further nodes, so repeat until a fixpoint.
		for progress := true; progress; {
			progress = false
			for _, n := range spec.Nodes {
				if _, done := results[n.ID]; done {
					continue
				}
				if running[n.ID] || !depsTerminal(n) {
					continue
				}
				if n.Predicate != nil && !n.Predicate(depView(n)) {
					results[n.ID] = NodeResult{NodeID: n.ID, State: StateSkipped}
					progress = true
					continue
				}
				running[n.ID] = true
				go s.runNode(ctx, n, reqCtx, depView(n), completions)
				progress = true
			}
		}

		if len(results) == len(spec.Nodes) {
			return results, nil
		}
		if len(running) == 0 {
			return nil, fmt.Errorf("graph run stalled with %d of %d nodes terminal", len(results), len(spec.Nodes))
		}

		select {
		case c := <-completions:
			delete(running, c.id)
			record(c)
		case <-ctx.Done():
			s.forceRemaining(ctx, reqCtx, spec, results, depView)
			return results, nil
		}
	}
}

// runNode executes one node under its own timeout. The inner goroutine is
// abandoned on timeout; cancellation is cooperative via the node context.
func (s *Scheduler) runNode(ctx context.Context, n NodeSpec, reqCtx *RequestContext, deps map[string]NodeResult, completions chan<- completion) {
	nodeCtx := ctx
	cancel := func() {}
	if n.Timeout > 0 {
		nodeCtx, cancel = context.WithTimeout(ctx, n.Timeout)
	}
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := n.Run(nodeCtx, reqCtx, deps)
		done <- outcome{value: value, err: err}
	}()

	select {
	case o := <-done:
		timedOut := o.err != nil && errors.Is(o.err, context.DeadlineExceeded)
		completions <- completion{id: n.ID, value: o.value, err: o.err, timedOut: timedOut}
	case <-nodeCtx.Done():
		completions <- completion{id: n.ID, err: nodeCtx.Err(), timedOut: true}
	}
}

// forceRemaining handles umbrella-deadline expiry: every non-terminal
// non-aggregation node is marked timed out with its fallback value, and any
// pending aggregation node then runs synchronously on the grace budget so
// the request still produces a response.
func (s *Scheduler) forceRemaining(ctx context.Context, reqCtx *RequestContext, spec *GraphSpec, results map[string]NodeResult, depView func(NodeSpec) map[string]NodeResult) {
	for _, n := range spec.Nodes {
		if _, done := results[n.ID]; done || n.Kind == NodeKindAggregate {
			continue
		}
		s.logger.Printf("orchestrator: deadline reached, forcing node %s into fallback", n.ID)
		results[n.ID] = NodeResult{NodeID: n.ID, State: StateTimedOut, Value: s.fallbackValue(n, reqCtx), Err: ctx.Err()}
	}

	for _, n := range spec.Nodes {
		if _, done := results[n.ID]; done || n.Kind != NodeKindAggregate {
			continue
		}
		graceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.aggregateGrace)
		value, err := n.Run(graceCtx, reqCtx, depView(n))
		cancel()
		if err != nil {
			results[n.ID] = NodeResult{NodeID: n.ID, State: StateFailed, Value: s.fallbackValue(n, reqCtx), Err: err}
			continue
		}
		results[n.ID] = NodeResult{NodeID: n.ID, State: StateCompleted, Value: value}
	}
}

func (s *Scheduler) fallbackValue(n NodeSpec, reqCtx *RequestContext) interface{} {
	if n.Fallback == nil {
		return nil
	}
	return n.Fallback(reqCtx)
}
