package domain

import (
	"fmt"
	"time"
)

// TurnRole identifies who produced a conversation turn
type TurnRole string

const (
	TurnRoleCustomer  TurnRole = "customer"
	TurnRoleAssistant TurnRole = "assistant"
)

// ConversationTurn is one message in a conversation's history. Turns are
// append-only; the aggregator writes one customer turn and one assistant
// turn per orchestrated request.
type ConversationTurn struct {
	ID             string
	TenantID       string
	ConversationID string
	Role           TurnRole
	Content        string
	CreatedAt      time.Time
	Archived       bool
}

// NewConversationTurn creates a new ConversationTurn instance
func NewConversationTurn(id, tenantID, conversationID string, role TurnRole, content string, createdAt time.Time) *ConversationTurn {
	return &ConversationTurn{
		ID:             id,
		TenantID:       tenantID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      createdAt,
	}
}

// ValidateConversationTurn validates a ConversationTurn instance
func ValidateConversationTurn(t *ConversationTurn) error {
	if t == nil {
		return fmt.Errorf("conversation turn cannot be nil")
	}

	if t.ID == "" {
		return fmt.Errorf("conversation turn ID is required")
	}

	if t.TenantID == "" {
		return fmt.Errorf("conversation turn TenantID is required")
	}

	if t.ConversationID == "" {
		return fmt.Errorf("conversation turn ConversationID is required")
	}

	if !isValidTurnRole(t.Role) {
		return fmt.Errorf("conversation turn Role is invalid: %s", t.Role)
	}

	return nil
}

func isValidTurnRole(r TurnRole) bool {
	switch r {
	case TurnRoleCustomer, TurnRoleAssistant:
		return true
	}
	return false
}
