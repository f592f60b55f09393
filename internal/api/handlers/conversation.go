package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/atende-labs/atendai/internal/api"
	"github.com/atende-labs/atendai/internal/api/middleware"
	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/pagination"
	"github.com/go-chi/chi/v5"
)

// HistoryLister pages through a conversation's turns.
type HistoryLister interface {
	ListTurns(ctx context.Context, tenantID, conversationID string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.ConversationTurn], error)
}

// ConversationHandler serves conversation history to operators.
type ConversationHandler struct {
	history HistoryLister
}

func NewConversationHandler(history HistoryLister) *ConversationHandler {
	return &ConversationHandler{history: history}
}

type turnResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *ConversationHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		tenantID = middleware.GetTenantID(r.Context())
	}
	if tenantID == "" {
		api.Error(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	if !middleware.TenantAllowed(r.Context(), tenantID) {
		api.Error(w, http.StatusForbidden, "api key not valid for tenant")
		return
	}

	var cursor *pagination.Cursor
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		decoded, err := pagination.DecodeCursor(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		cursor = decoded
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	page, err := h.history.ListTurns(r.Context(), tenantID, conversationID, cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	turns := make([]turnResponse, 0, len(page.Items))
	for _, turn := range page.Items {
		turns = append(turns, turnResponse{
			ID:        turn.ID,
			Role:      string(turn.Role),
			Content:   turn.Content,
			CreatedAt: turn.CreatedAt,
		})
	}

	api.Success(w, http.StatusOK, pagination.PageResult[turnResponse]{
		Items:   turns,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}
