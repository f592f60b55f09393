package domain

import "fmt"

// InboundMessage is what a channel adapter delivers to the orchestrator's
// entry point.
type InboundMessage struct {
	TenantID       string            `json:"tenant_id"`
	ConversationID string            `json:"conversation_id"`
	Text           string            `json:"text"`
	SourceMetadata map[string]string `json:"source_metadata,omitempty"`
}

// ValidateInboundMessage validates an InboundMessage instance
func ValidateInboundMessage(m *InboundMessage) error {
	if m == nil {
		return fmt.Errorf("inbound message cannot be nil")
	}

	if m.TenantID == "" {
		return fmt.Errorf("inbound message TenantID is required")
	}

	if m.ConversationID == "" {
		return fmt.Errorf("inbound message ConversationID is required")
	}

	if m.Text == "" {
		return fmt.Errorf("inbound message Text is required")
	}

	return nil
}
