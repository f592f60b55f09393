//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/retrieval"
	"github.com/atende-labs/atendai/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEmbedding(seed float32) []float32 {
	vec := make([]float32, 1536)
	for i := range vec {
		vec[i] = seed
	}
	vec[0] = 1
	return vec
}

func seedItem(ctx context.Context, t *testing.T, repo *KnowledgeRepository, item *domain.KnowledgeItem, embedding []float32) {
	t.Helper()
	require.NoError(t, repo.Upsert(ctx, item, true, nil))
	if embedding != nil {
		require.NoError(t, repo.SetEmbedding(ctx, item.TenantID, item.ID, embedding))
	}
}

func TestKnowledgeRepository_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeRepository(pool)
	item := &domain.KnowledgeItem{
		ID:         uuid.NewString(),
		TenantID:   "t1",
		Collection: "policies",
		Content:    "Frete grátis para compras acima de R$ 199.",
		Action: &domain.ActionTemplate{
			ActionID:          "check-shipping",
			Endpoint:          "/shipping/quote",
			Method:            "POST",
			RequiredVariables: []string{"zipCode"},
			Payload:           []byte(`{"zip": "{{zipCode}}"}`),
		},
	}
	seedItem(ctx, t, repo, item, nil)

	got, err := repo.GetByID(ctx, "t1", item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Content, got.Content)
	require.NotNil(t, got.Action)
	assert.Equal(t, "check-shipping", got.Action.ActionID)

	_, err = repo.GetByID(ctx, "other-tenant", item.ID)
	assert.ErrorIs(t, err, domain.ErrKnowledgeNotFound, "lookups never cross tenants")
}

func TestKnowledgeRepository_SearchSparse(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeRepository(pool)
	seedItem(ctx, t, repo, &domain.KnowledgeItem{
		ID: "R1", TenantID: "t1", Collection: "policies",
		Content: "Frete grátis para compras acima de R$ 199.",
	}, nil)
	seedItem(ctx, t, repo, &domain.KnowledgeItem{
		ID: "R2", TenantID: "t1", Collection: "policies",
		Content: "Trocas em até 30 dias após a entrega.",
	}, nil)

	query := retrieval.BuildSparseQuery("tem frete grátis?")
	results, err := repo.SearchSparse(ctx, "t1", "policies", query, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "R1", results[0].Item.ID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestKnowledgeRepository_SearchDense(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeRepository(pool)
	seedItem(ctx, t, repo, &domain.KnowledgeItem{
		ID: "R1", TenantID: "t1", Collection: "policies", Content: "frete",
	}, testEmbedding(0.9))
	seedItem(ctx, t, repo, &domain.KnowledgeItem{
		ID: "R2", TenantID: "t1", Collection: "policies", Content: "trocas",
	}, testEmbedding(-0.9))

	results, err := repo.SearchDense(ctx, "t1", "policies", testEmbedding(0.9), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "R1", results[0].Item.ID, "nearest vector ranks first")
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestKnowledgeRepository_ValidateItems(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeRepository(pool)
	past := time.Now().Add(-48 * time.Hour)
	yesterday := time.Now().Add(-24 * time.Hour)
	outOfStock := false

	seedItem(ctx, t, repo, &domain.KnowledgeItem{ID: "valid", TenantID: "t1", Collection: "catalog", Content: "ok"}, nil)
	require.NoError(t, repo.Upsert(ctx, &domain.KnowledgeItem{
		ID: "expired", TenantID: "t1", Collection: "catalog", Content: "expired",
		ValidFrom: &past, ValidUntil: &yesterday,
	}, true, nil))
	require.NoError(t, repo.Upsert(ctx, &domain.KnowledgeItem{
		ID: "inactive", TenantID: "t1", Collection: "catalog", Content: "inactive",
	}, false, nil))
	require.NoError(t, repo.Upsert(ctx, &domain.KnowledgeItem{
		ID: "sold-out", TenantID: "t1", Collection: "catalog", Content: "sold out",
	}, true, &outOfStock))

	ids := []string{"valid", "expired", "inactive", "sold-out", "ghost"}

	valid, err := repo.ValidateItems(ctx, "t1", ids, retrieval.Filters{})
	require.NoError(t, err)
	assert.Contains(t, valid, "valid")
	assert.Contains(t, valid, "sold-out")
	assert.NotContains(t, valid, "expired")
	assert.NotContains(t, valid, "inactive")
	assert.NotContains(t, valid, "ghost")
	assert.False(t, valid["valid"].IsZero(), "freshness timestamp is returned")

	valid, err = repo.ValidateItems(ctx, "t1", ids, retrieval.Filters{RequireInStock: true})
	require.NoError(t, err)
	assert.Contains(t, valid, "valid", "items without stock tracking pass the stock filter")
	assert.NotContains(t, valid, "sold-out")
}
