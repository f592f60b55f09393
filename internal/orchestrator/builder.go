package orchestrator

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/atende-labs/atendai/internal/bridge"
	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/retrieval"
)

const (
	nodeIntent    = "intent"
	nodeAction    = "action"
	nodeAggregate = "aggregate"

	retrievalNodePrefix = "retrieve:"

	defaultRetrievalLimit   = 5
	defaultIntentTimeout    = 500 * time.Millisecond
	defaultRetrievalTimeout = 2 * time.Second
	defaultBridgeTimeout    = 3 * time.Second
)

// Searcher is the retrieval boundary the builder wires specialist nodes to.
type Searcher interface {
	Search(ctx context.Context, tenantID, collection, queryText string, filters retrieval.Filters, limit int) ([]*domain.KnowledgeItem, error)
}

// ActionExecutor is the bridge boundary for operational actions.
type ActionExecutor interface {
	Execute(ctx context.Context, tpl *domain.ActionTemplate, runtimeCtx map[string]interface{}, tenantID string) (*bridge.ActionResult, error)
}

// ActionOutcome is the bridge node's resolved value. It carries the clean
// failure modes as data so aggregation never handles errors: a nil Result
// with Missing set means the customer must supply more information first.
type ActionOutcome struct {
	Result  *bridge.ActionResult
	Missing []string
}

// BuilderConfig holds the per-node tuning for built graphs.
type BuilderConfig struct {
	RetrievalLimit   int
	IntentTimeout    time.Duration
	RetrievalTimeout time.Duration
	BridgeTimeout    time.Duration
}

// Builder constructs the fixed request graph: one intent node, one
// retrieval node per enabled collection gated on the intent, one bridge
// node for actionable intents, and one aggregation node over all of them.
// Graphs are rebuilt per request so node closures can capture request data
// without synchronization.
type Builder struct {
	classifier IntentClassifier
	searcher   Searcher
	executor   ActionExecutor
	cfg        BuilderConfig
}

// NewBuilder creates a graph builder over the given specialist boundaries.
func NewBuilder(classifier IntentClassifier, searcher Searcher, executor ActionExecutor, cfg BuilderConfig) *Builder {
	if cfg.RetrievalLimit <= 0 {
		cfg.RetrievalLimit = defaultRetrievalLimit
	}
	if cfg.IntentTimeout <= 0 {
		cfg.IntentTimeout = defaultIntentTimeout
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = defaultRetrievalTimeout
	}
	if cfg.BridgeTimeout <= 0 {
		cfg.BridgeTimeout = defaultBridgeTimeout
	}
	return &Builder{
		classifier: classifier,
		searcher:   searcher,
		executor:   executor,
		cfg:        cfg,
	}
}

// Build assembles the graph for one request using the tenant's enabled
// collections from reqCtx.Config.
func (b *Builder) Build(reqCtx *RequestContext) *GraphSpec {
	nodes := []NodeSpec{
		{
			ID:      nodeIntent,
			Kind:    NodeKindIntent,
			Timeout: b.cfg.IntentTimeout,
			Run: func(ctx context.Context, rc *RequestContext, _ map[string]NodeResult) (interface{}, error) {
				return b.classifier.Classify(ctx, rc.Message)
			},
			Fallback: func(*RequestContext) interface{} {
				return &Intent{Name: "general"}
			},
		},
	}

	var specialistIDs []string
	for _, collection := range reqCtx.Config.Collections {
		collection := collection
		id := retrievalNodePrefix + collection
		specialistIDs = append(specialistIDs, id)
		nodes = append(nodes, NodeSpec{
			ID:        id,
			Kind:      NodeKindRetrieval,
			DependsOn: []string{nodeIntent},
			Timeout:   b.cfg.RetrievalTimeout,
			Predicate: func(deps map[string]NodeResult) bool {
				return intentWantsCollection(intentFrom(deps), collection)
			},
			Run: func(ctx context.Context, rc *RequestContext, _ map[string]NodeResult) (interface{}, error) {
				items, err := b.searcher.Search(ctx, rc.TenantID, collection, rc.Message, retrieval.Filters{}, b.cfg.RetrievalLimit)
				if err != nil {
					if errors.Is(err, domain.ErrCollectionNotEnabled) {
						return []*domain.KnowledgeItem{}, nil
					}
					return nil, err
				}
				return items, nil
			},
			Fallback: func(*RequestContext) interface{} {
				return []*domain.KnowledgeItem{}
			},
		})
	}

	actionDeps := append([]string{nodeIntent}, specialistIDs...)
	nodes = append(nodes, NodeSpec{
		ID:        nodeAction,
		Kind:      NodeKindBridge,
		DependsOn: actionDeps,
		Timeout:   b.cfg.BridgeTimeout,
		Predicate: func(deps map[string]NodeResult) bool {
			return intentFrom(deps).Actionable
		},
		Run:      b.runAction,
		Fallback: func(*RequestContext) interface{} { return &ActionOutcome{} },
	})

	aggregateDeps := append(append([]string{nodeIntent}, specialistIDs...), nodeAction)
	nodes = append(nodes, NodeSpec{
		ID:        nodeAggregate,
		Kind:      NodeKindAggregate,
		DependsOn: aggregateDeps,
		Run: func(_ context.Context, rc *RequestContext, deps map[string]NodeResult) (interface{}, error) {
			return composeReply(rc, deps), nil
		},
		Fallback: func(rc *RequestContext) interface{} {
			return degradedReply(rc)
		},
	})

	return &GraphSpec{Nodes: nodes}
}

// runAction executes the best actionable knowledge item's template. The
// clean failure modes come back as data, not errors; only transport-level
// failures surface as node errors.
func (b *Builder) runAction(ctx context.Context, rc *RequestContext, deps map[string]NodeResult) (interface{}, error) {
	item := bestActionItem(deps)
	if item == nil {
		return &ActionOutcome{}, nil
	}

	result, err := b.executor.Execute(ctx, item.Action, rc.Variables, rc.TenantID)
	if err != nil {
		var missingErr *domain.MissingVariablesError
		if errors.As(err, &missingErr) {
			return &ActionOutcome{Missing: missingErr.Variables}, nil
		}
		if errors.Is(err, domain.ErrNotApplicable) {
			return &ActionOutcome{}, nil
		}
		return nil, err
	}
	return &ActionOutcome{Result: result}, nil
}

// intentFrom reads the intent node's resolved value out of a dependency
// view, tolerating fallback shapes.
func intentFrom(deps map[string]NodeResult) *Intent {
	if r, ok := deps[nodeIntent]; ok {
		if intent, ok := r.Value.(*Intent); ok && intent != nil {
			return intent
		}
	}
	return &Intent{Name: "general"}
}

// intentWantsCollection reports whether a retrieval node should run. An
// intent with no collection list consults everything.
func intentWantsCollection(intent *Intent, collection string) bool {
	if len(intent.Collections) == 0 {
		return true
	}
	for _, c := range intent.Collections {
		if c == collection {
			return true
		}
	}
	return false
}

// retrievedItems flattens every retrieval dependency into one list sorted
// by fused score descending, item id ascending.
func retrievedItems(deps map[string]NodeResult) []*domain.KnowledgeItem {
	var items []*domain.KnowledgeItem
	for id, r := range deps {
		if len(id) <= len(retrievalNodePrefix) || id[:len(retrievalNodePrefix)] != retrievalNodePrefix {
			continue
		}
		if list, ok := r.Value.([]*domain.KnowledgeItem); ok {
			items = append(items, list...)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// bestActionItem picks the highest-scored retrieved item carrying an
// action template.
func bestActionItem(deps map[string]NodeResult) *domain.KnowledgeItem {
	for _, item := range retrievedItems(deps) {
		if item.Action != nil {
			return item
		}
	}
	return nil
}
