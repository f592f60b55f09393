// Package retrieval implements the hybrid dense+sparse retrieval engine
// with score fusion and relational ground-truth validation.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/atende-labs/atendai/internal/cachestore"
	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultDenseWeight and DefaultSparseWeight are the fusion defaults.
	// They are configuration points but deployments rarely move them.
	DefaultDenseWeight  = 0.6
	DefaultSparseWeight = 0.4

	defaultResultTTL    = 5 * time.Minute
	defaultEmbeddingTTL = time.Hour

	embeddingKeyPrefix = "emb:"
	resultKeyPrefix    = "result:"
)

// Candidate is one scored hit from a single retrieval channel.
type Candidate struct {
	Item  *domain.KnowledgeItem
	Score float64
}

// Embedder produces a dense embedding for query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DenseIndex is the vector index boundary.
type DenseIndex interface {
	SearchDense(ctx context.Context, tenantID, collection string, vector []float32, limit int) ([]Candidate, error)
}

// SparseIndex is the keyword index boundary.
type SparseIndex interface {
	SearchSparse(ctx context.Context, tenantID, collection string, query SparseQuery, limit int) ([]Candidate, error)
}

// Validator is the relational ground-truth boundary: it returns the subset
// of ids that are currently valid/available, with their freshness
// timestamps.
type Validator interface {
	ValidateItems(ctx context.Context, tenantID string, ids []string, filters Filters) (map[string]time.Time, error)
}

// ConfigResolver yields the tenant's config snapshot; the engine uses it
// only to check collection enablement.
type ConfigResolver interface {
	Resolve(ctx context.Context, tenantID string) (*domain.TenantConfig, error)
}

// Filters narrows relational validation.
type Filters struct {
	RequireInStock bool `json:"require_in_stock,omitempty"`
}

// Engine executes hybrid searches: both channels queried independently,
// scores fused, survivors of relational validation ranked and truncated.
type Engine struct {
	embedder Embedder
	dense    DenseIndex
	sparse   SparseIndex
	valid    Validator
	tenants  ConfigResolver
	store    cachestore.Store

	denseWeight  float64
	sparseWeight float64
	resultTTL    time.Duration
	embeddingTTL time.Duration
	now          func() time.Time
}

// EngineConfig holds the settings for constructing an Engine.
type EngineConfig struct {
	DenseWeight  float64
	SparseWeight float64
	ResultTTL    time.Duration
	EmbeddingTTL time.Duration
}

// NewEngine creates a hybrid retrieval engine.
func NewEngine(
	embedder Embedder,
	dense DenseIndex,
	sparse SparseIndex,
	valid Validator,
	tenants ConfigResolver,
	store cachestore.Store,
	cfg EngineConfig,
) *Engine {
	e := &Engine{
		embedder:     embedder,
		dense:        dense,
		sparse:       sparse,
		valid:        valid,
		tenants:      tenants,
		store:        store,
		denseWeight:  cfg.DenseWeight,
		sparseWeight: cfg.SparseWeight,
		resultTTL:    cfg.ResultTTL,
		embeddingTTL: cfg.EmbeddingTTL,
		now:          time.Now,
	}
	if e.denseWeight <= 0 {
		e.denseWeight = DefaultDenseWeight
	}
	if e.sparseWeight <= 0 {
		e.sparseWeight = DefaultSparseWeight
	}
	if e.resultTTL <= 0 {
		e.resultTTL = defaultResultTTL
	}
	if e.embeddingTTL <= 0 {
		e.embeddingTTL = defaultEmbeddingTTL
	}
	return e
}

// Search returns the tenant's knowledge items ranked by fused score,
// truncated to limit.
func (e *Engine) Search(ctx context.Context, tenantID, collection, queryText string, filters Filters, limit int) ([]*domain.KnowledgeItem, error) {
	if limit <= 0 {
		limit = 10
	}

	ctx, span := telemetry.StartSpan(ctx, "Engine.Search", telemetry.SpanAttributes{
		TenantID:   tenantID,
		Collection: collection,
		Operation:  "search",
	})
	defer span.End()

	cfg, err := e.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !cfg.CollectionEnabled(collection) {
		return nil, domain.ErrCollectionNotEnabled
	}

	query := strings.TrimSpace(queryText)
	if query == "" {
		return []*domain.KnowledgeItem{}, nil
	}

	resultKey := e.resultKey(tenantID, collection, query, filters)
	if cached, ok := e.cachedResult(ctx, resultKey); ok {
		return cached, nil
	}

	candidateLimit := 2 * limit

	var denseHits, sparseHits []Candidate
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		vector, err := e.embedQuery(groupCtx, tenantID, query)
		if err != nil {
			return fmt.Errorf("dense channel: %w", err)
		}
		hits, err := e.dense.SearchDense(groupCtx, tenantID, collection, vector, candidateLimit)
		if err != nil {
			return fmt.Errorf("dense channel: %w", err)
		}
		denseHits = hits
		return nil
	})
	group.Go(func() error {
		sparseQuery := BuildSparseQuery(query)
		if sparseQuery.IsEmpty() {
			return nil
		}
		hits, err := e.sparse.SearchSparse(groupCtx, tenantID, collection, sparseQuery, candidateLimit)
		if err != nil {
			return fmt.Errorf("sparse channel: %w", err)
		}
		sparseHits = hits
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	fused := fuse(denseHits, sparseHits, e.denseWeight, e.sparseWeight)
	if len(fused) > candidateLimit {
		fused = fused[:candidateLimit]
	}
	if len(fused) == 0 {
		return []*domain.KnowledgeItem{}, nil
	}

	ids := make([]string, len(fused))
	for i, candidate := range fused {
		ids[i] = candidate.Item.ID
	}

	// Items failing the relational check are dropped entirely, not
	// down-ranked: ground truth beats relevance.
	freshness, err := e.valid.ValidateItems(ctx, tenantID, ids, filters)
	if err != nil {
		return nil, err
	}

	items := make([]*domain.KnowledgeItem, 0, len(fused))
	for _, candidate := range fused {
		updatedAt, ok := freshness[candidate.Item.ID]
		if !ok {
			continue
		}
		item := *candidate.Item
		item.Score = candidate.Score
		item.Freshness = updatedAt
		items = append(items, &item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if !items[i].Freshness.Equal(items[j].Freshness) {
			return items[i].Freshness.After(items[j].Freshness)
		}
		return items[i].ID < items[j].ID
	})
	if len(items) > limit {
		items = items[:limit]
	}

	e.cacheResult(ctx, resultKey, items)
	return items, nil
}

// InvalidateCollection drops every cached result for the tenant's
// collection. Called when the relational backend pushes a data change.
func (e *Engine) InvalidateCollection(ctx context.Context, tenantID, collection string) error {
	return e.store.DeletePrefix(ctx, resultKeyPrefix+tenantID+":"+collection+":")
}

// embedQuery computes or recalls the query embedding, cached by content
// hash so repeated queries skip the provider.
func (e *Engine) embedQuery(ctx context.Context, tenantID, query string) ([]float32, error) {
	key := embeddingKeyPrefix + tenantID + ":" + hashText(query)

	if raw, ok, err := e.store.Get(ctx, key); err == nil && ok {
		var vector []float32
		if err := json.Unmarshal(raw, &vector); err == nil {
			return vector, nil
		}
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(vector); err == nil {
		if err := e.store.Set(ctx, key, raw, e.embeddingTTL); err != nil {
			log.Printf("retrieval: failed to cache embedding: %v", err)
		}
	}
	return vector, nil
}

func (e *Engine) resultKey(tenantID, collection, query string, filters Filters) string {
	rawFilters, _ := json.Marshal(filters)
	return resultKeyPrefix + tenantID + ":" + collection + ":" + hashText(query+"|"+string(rawFilters))
}

func (e *Engine) cachedResult(ctx context.Context, key string) ([]*domain.KnowledgeItem, bool) {
	raw, ok, err := e.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var items []*domain.KnowledgeItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

func (e *Engine) cacheResult(ctx context.Context, key string, items []*domain.KnowledgeItem) {
	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := e.store.Set(ctx, key, raw, e.resultTTL); err != nil {
		log.Printf("retrieval: failed to cache result: %v", err)
	}
}

// fuse combines the two channels' scores per item id. An item present in
// only one channel contributes only that term; dual presence is rewarded.
func fuse(denseHits, sparseHits []Candidate, denseWeight, sparseWeight float64) []Candidate {
	type partial struct {
		item   *domain.KnowledgeItem
		dense  float64
		sparse float64
	}

	partials := make(map[string]*partial, len(denseHits)+len(sparseHits))
	order := make([]string, 0, len(denseHits)+len(sparseHits))

	add := func(hits []Candidate, dense bool) {
		for _, hit := range hits {
			if hit.Item == nil {
				continue
			}
			p, ok := partials[hit.Item.ID]
			if !ok {
				p = &partial{item: hit.Item}
				partials[hit.Item.ID] = p
				order = append(order, hit.Item.ID)
			}
			if dense {
				p.dense = hit.Score
			} else {
				p.sparse = hit.Score
			}
		}
	}
	add(denseHits, true)
	add(sparseHits, false)

	fused := make([]Candidate, 0, len(order))
	for _, id := range order {
		p := partials[id]
		fused = append(fused, Candidate{
			Item:  p.item,
			Score: denseWeight*p.dense + sparseWeight*p.sparse,
		})
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Item.ID < fused[j].Item.ID
	})
	return fused
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
