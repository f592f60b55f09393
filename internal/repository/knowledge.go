package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/retrieval"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// KnowledgeRepository persists knowledge items and serves as both retrieval
// index boundaries: dense search runs over pgvector embeddings, sparse
// search over the Postgres full-text column, and relational validation over
// the items' availability columns.
type KnowledgeRepository struct {
	db dbtx
}

func NewKnowledgeRepository(pool *pgxpool.Pool) *KnowledgeRepository {
	return &KnowledgeRepository{db: pool}
}

func NewKnowledgeRepositoryWithTx(tx pgx.Tx) *KnowledgeRepository {
	return &KnowledgeRepository{db: tx}
}

const knowledgeColumns = `id, tenant_id, collection, content, processed_text, action, valid_from, valid_until, updated_at`

// Upsert inserts or replaces a knowledge item. The embedding is written
// separately via SetEmbedding.
func (r *KnowledgeRepository) Upsert(ctx context.Context, item *domain.KnowledgeItem, active bool, inStock *bool) error {
	if err := domain.ValidateKnowledgeItem(item); err != nil {
		return err
	}

	var action []byte
	if item.Action != nil {
		var err error
		action, err = json.Marshal(item.Action)
		if err != nil {
			return fmt.Errorf("failed to encode action template: %w", err)
		}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_items (id, tenant_id, collection, content, processed_text, action, active, in_stock, valid_from, valid_until, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		 ON CONFLICT (id) DO UPDATE SET
		   collection = EXCLUDED.collection,
		   content = EXCLUDED.content,
		   processed_text = EXCLUDED.processed_text,
		   action = EXCLUDED.action,
		   active = EXCLUDED.active,
		   in_stock = EXCLUDED.in_stock,
		   valid_from = EXCLUDED.valid_from,
		   valid_until = EXCLUDED.valid_until,
		   updated_at = now()`,
		item.ID, item.TenantID, item.Collection, item.Content, nullableString(item.ProcessedText), action, active, inStock, item.ValidFrom, item.ValidUntil,
	)
	return err
}

// SetEmbedding stores the dense vector for an item.
func (r *KnowledgeRepository) SetEmbedding(ctx context.Context, tenantID, id string, embedding []float32) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE knowledge_items SET embedding = $1, updated_at = now() WHERE tenant_id = $2 AND id = $3`,
		pgvector.NewVector(embedding), tenantID, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

func (r *KnowledgeRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.KnowledgeItem, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_items WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	item, err := scanKnowledgeItem(row, false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKnowledgeNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *KnowledgeRepository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM knowledge_items WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

// SearchDense queries the vector index. Scores follow the same distance
// mapping everywhere: 1 / (1 + cosine distance).
func (r *KnowledgeRepository) SearchDense(ctx context.Context, tenantID, collection string, vector []float32, limit int) ([]retrieval.Candidate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+knowledgeColumns+`, 1.0 / (1.0 + (embedding <=> $1)) AS score
		 FROM knowledge_items
		 WHERE tenant_id = $2 AND collection = $3 AND active AND embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		pgvector.NewVector(vector), tenantID, collection, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// SearchSparse queries the full-text index with an OR-joined term query.
func (r *KnowledgeRepository) SearchSparse(ctx context.Context, tenantID, collection string, query retrieval.SparseQuery, limit int) ([]retrieval.Candidate, error) {
	if query.IsEmpty() {
		return nil, nil
	}
	tsquery := strings.Join(query.OrderedTerms(), " | ")

	rows, err := r.db.Query(ctx,
		`SELECT `+knowledgeColumns+`, ts_rank(tsv, query) AS score
		 FROM knowledge_items, to_tsquery('portuguese', $1) AS query
		 WHERE tenant_id = $2 AND collection = $3 AND active AND tsv @@ query
		 ORDER BY score DESC, id ASC
		 LIMIT $4`,
		tsquery, tenantID, collection, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// ValidateItems returns the subset of ids that are active, inside their
// validity window and, when required, in stock. Items that do not track
// stock pass the stock filter.
func (r *KnowledgeRepository) ValidateItems(ctx context.Context, tenantID string, ids []string, filters retrieval.Filters) (map[string]time.Time, error) {
	if len(ids) == 0 {
		return map[string]time.Time{}, nil
	}

	query := `SELECT id, updated_at FROM knowledge_items
		 WHERE tenant_id = $1 AND id = ANY($2) AND active
		   AND (valid_from IS NULL OR valid_from <= now())
		   AND (valid_until IS NULL OR valid_until >= now())`
	if filters.RequireInStock {
		query += ` AND (in_stock IS NULL OR in_stock)`
	}

	rows, err := r.db.Query(ctx, query, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	valid := make(map[string]time.Time, len(ids))
	for rows.Next() {
		var id string
		var updatedAt time.Time
		if err := rows.Scan(&id, &updatedAt); err != nil {
			return nil, err
		}
		valid[id] = updatedAt
	}
	return valid, rows.Err()
}

func scanCandidates(rows pgx.Rows) ([]retrieval.Candidate, error) {
	var results []retrieval.Candidate
	for rows.Next() {
		item, score, err := scanKnowledgeItemWithScore(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, retrieval.Candidate{Item: item, Score: score})
	}
	return results, rows.Err()
}

func scanKnowledgeItemWithScore(row pgx.Row) (*domain.KnowledgeItem, float64, error) {
	var item domain.KnowledgeItem
	var processed *string
	var action []byte
	var score float64
	if err := row.Scan(&item.ID, &item.TenantID, &item.Collection, &item.Content, &processed, &action, &item.ValidFrom, &item.ValidUntil, &item.Freshness, &score); err != nil {
		return nil, 0, err
	}
	if err := decodeKnowledgeExtras(&item, processed, action); err != nil {
		return nil, 0, err
	}
	return &item, score, nil
}

func scanKnowledgeItem(row pgx.Row, withScore bool) (*domain.KnowledgeItem, error) {
	if withScore {
		item, score, err := scanKnowledgeItemWithScore(row)
		if err != nil {
			return nil, err
		}
		item.Score = score
		return item, nil
	}

	var item domain.KnowledgeItem
	var processed *string
	var action []byte
	if err := row.Scan(&item.ID, &item.TenantID, &item.Collection, &item.Content, &processed, &action, &item.ValidFrom, &item.ValidUntil, &item.Freshness); err != nil {
		return nil, err
	}
	if err := decodeKnowledgeExtras(&item, processed, action); err != nil {
		return nil, err
	}
	return &item, nil
}

func decodeKnowledgeExtras(item *domain.KnowledgeItem, processed *string, action []byte) error {
	if processed != nil {
		item.ProcessedText = *processed
	}
	if len(action) > 0 {
		var tpl domain.ActionTemplate
		if err := json.Unmarshal(action, &tpl); err != nil {
			return fmt.Errorf("failed to decode action template for item %s: %w", item.ID, err)
		}
		item.Action = &tpl
	}
	return nil
}
