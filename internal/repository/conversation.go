package repository

import (
	"context"
	"time"

	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConversationRepository persists conversation turns. Turns are append-only;
// the archiver flips them to archived after exporting a transcript.
type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

func NewConversationRepositoryWithTx(tx pgx.Tx) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

func (r *ConversationRepository) AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error {
	if err := domain.ValidateConversationTurn(turn); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO conversation_turns (id, tenant_id, conversation_id, role, content, archived, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		turn.ID, turn.TenantID, turn.ConversationID, turn.Role, turn.Content, turn.CreatedAt,
	)
	return err
}

// ListTurns pages through a conversation's history, oldest first.
func (r *ConversationRepository) ListTurns(ctx context.Context, tenantID, conversationID string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.ConversationTurn], error) {
	if limit <= 0 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, tenant_id, conversation_id, role, content, archived, created_at
			 FROM conversation_turns
			 WHERE tenant_id = $1 AND conversation_id = $2 AND (created_at, id) > ($3, $4)
			 ORDER BY created_at ASC, id ASC
			 LIMIT $5`,
			tenantID, conversationID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, tenant_id, conversation_id, role, content, archived, created_at
			 FROM conversation_turns
			 WHERE tenant_id = $1 AND conversation_id = $2
			 ORDER BY created_at ASC, id ASC
			 LIMIT $3`,
			tenantID, conversationID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns, err := scanTurnRows(rows)
	if err != nil {
		return nil, err
	}

	result := &pagination.PageResult[*domain.ConversationTurn]{Items: turns}
	if len(turns) > limit {
		result.Items = turns[:limit]
		result.HasMore = true
		last := result.Items[limit-1]
		result.Cursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}
	return result, nil
}

// ConversationKey identifies one conversation for archiving.
type ConversationKey struct {
	TenantID       string
	ConversationID string
}

// ListArchivable returns conversations whose newest unarchived turn is
// older than the cutoff.
func (r *ConversationRepository) ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]ConversationKey, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT tenant_id, conversation_id
		 FROM conversation_turns
		 WHERE archived = FALSE
		 GROUP BY tenant_id, conversation_id
		 HAVING max(created_at) < $1
		 ORDER BY tenant_id, conversation_id
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []ConversationKey
	for rows.Next() {
		var key ConversationKey
		if err := rows.Scan(&key.TenantID, &key.ConversationID); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ListAllTurns returns a conversation's full history, oldest first.
func (r *ConversationRepository) ListAllTurns(ctx context.Context, tenantID, conversationID string) ([]*domain.ConversationTurn, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, tenant_id, conversation_id, role, content, archived, created_at
		 FROM conversation_turns
		 WHERE tenant_id = $1 AND conversation_id = $2
		 ORDER BY created_at ASC, id ASC`,
		tenantID, conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurnRows(rows)
}

// MarkArchived flags every turn of a conversation as archived.
func (r *ConversationRepository) MarkArchived(ctx context.Context, tenantID, conversationID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE conversation_turns SET archived = TRUE WHERE tenant_id = $1 AND conversation_id = $2`,
		tenantID, conversationID,
	)
	return err
}

func scanTurnRows(rows pgx.Rows) ([]*domain.ConversationTurn, error) {
	var turns []*domain.ConversationTurn
	for rows.Next() {
		var turn domain.ConversationTurn
		if err := rows.Scan(&turn.ID, &turn.TenantID, &turn.ConversationID, &turn.Role, &turn.Content, &turn.Archived, &turn.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, &turn)
	}
	return turns, rows.Err()
}
