package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atende-labs/atendai/internal/api"
	"github.com/atende-labs/atendai/internal/api/middleware"
	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/orchestrator"
)

// Orchestrator is the message-processing boundary.
type Orchestrator interface {
	HandleMessage(ctx context.Context, msg *domain.InboundMessage) (*orchestrator.Reply, error)
}

// MessageHandler receives inbound customer messages from channel adapters.
type MessageHandler struct {
	orch Orchestrator
}

func NewMessageHandler(orch Orchestrator) *MessageHandler {
	return &MessageHandler{orch: orch}
}

type createMessageRequest struct {
	TenantID       string            `json:"tenant_id"`
	ConversationID string            `json:"conversation_id"`
	Text           string            `json:"text"`
	SourceMetadata map[string]string `json:"source_metadata,omitempty"`
}

func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !middleware.TenantAllowed(r.Context(), req.TenantID) {
		api.Error(w, http.StatusForbidden, "api key not valid for tenant")
		return
	}

	reply, err := h.orch.HandleMessage(r.Context(), &domain.InboundMessage{
		TenantID:       req.TenantID,
		ConversationID: req.ConversationID,
		Text:           req.Text,
		SourceMetadata: req.SourceMetadata,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, reply)
}
