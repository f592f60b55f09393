package domain

import (
	"fmt"
	"time"
)

// KnowledgeItem is a unit returned by the retrieval engine. Every item
// belongs to exactly one tenant; queries never cross tenants.
type KnowledgeItem struct {
	ID            string
	TenantID      string
	Collection    string
	Content       string
	ProcessedText string
	Action        *ActionTemplate
	ValidFrom     *time.Time
	ValidUntil    *time.Time

	// Score is the fused relevance score assigned at query time. It is
	// never persisted.
	Score float64

	// Freshness is the relational backend's own update timestamp, used as
	// a tie-break when fused scores are equal.
	Freshness time.Time
}

// ValidNow reports whether the item's temporal validity window, if any,
// covers the given instant.
func (k *KnowledgeItem) ValidNow(now time.Time) bool {
	if k.ValidFrom != nil && now.Before(*k.ValidFrom) {
		return false
	}
	if k.ValidUntil != nil && now.After(*k.ValidUntil) {
		return false
	}
	return true
}

// ValidateKnowledgeItem validates a KnowledgeItem instance
func ValidateKnowledgeItem(k *KnowledgeItem) error {
	if k == nil {
		return fmt.Errorf("knowledge item cannot be nil")
	}

	if k.ID == "" {
		return fmt.Errorf("knowledge item ID is required")
	}

	if k.TenantID == "" {
		return fmt.Errorf("knowledge item TenantID is required")
	}

	if k.Collection == "" {
		return fmt.Errorf("knowledge item Collection is required")
	}

	if k.Content == "" {
		return fmt.Errorf("knowledge item Content is required")
	}

	if k.ValidFrom != nil && k.ValidUntil != nil && k.ValidUntil.Before(*k.ValidFrom) {
		return fmt.Errorf("knowledge item validity window ends before it starts")
	}

	return nil
}
