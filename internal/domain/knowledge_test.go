package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnowledgeItemValidNow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name  string
		from  *time.Time
		until *time.Time
		want  bool
	}{
		{"NoWindow", nil, nil, true},
		{"InsideWindow", &past, &future, true},
		{"BeforeStart", &future, nil, false},
		{"AfterEnd", nil, &past, false},
		{"OpenStart", nil, &future, true},
		{"OpenEnd", &past, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &KnowledgeItem{ID: "r1", TenantID: "t1", Collection: "shipping-rules", Content: "x", ValidFrom: tt.from, ValidUntil: tt.until}
			assert.Equal(t, tt.want, item.ValidNow(now))
		})
	}
}

func TestValidateKnowledgeItem(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	valid := func() *KnowledgeItem {
		return &KnowledgeItem{
			ID:         "r1",
			TenantID:   "t1",
			Collection: "shipping-rules",
			Content:    "Frete grátis acima de R$ 199",
		}
	}

	tests := []struct {
		name    string
		modify  func(*KnowledgeItem)
		wantErr string
	}{
		{"Valid", func(k *KnowledgeItem) {}, ""},
		{"MissingID", func(k *KnowledgeItem) { k.ID = "" }, "ID is required"},
		{"MissingTenantID", func(k *KnowledgeItem) { k.TenantID = "" }, "TenantID is required"},
		{"MissingCollection", func(k *KnowledgeItem) { k.Collection = "" }, "Collection is required"},
		{"MissingContent", func(k *KnowledgeItem) { k.Content = "" }, "Content is required"},
		{"InvertedWindow", func(k *KnowledgeItem) { k.ValidFrom = &now; k.ValidUntil = &earlier }, "ends before it starts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := valid()
			tt.modify(item)
			err := ValidateKnowledgeItem(item)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateInboundMessage(t *testing.T) {
	valid := func() *InboundMessage {
		return &InboundMessage{TenantID: "t1", ConversationID: "c1", Text: "oi"}
	}

	tests := []struct {
		name    string
		modify  func(*InboundMessage)
		wantErr string
	}{
		{"Valid", func(m *InboundMessage) {}, ""},
		{"MissingTenantID", func(m *InboundMessage) { m.TenantID = "" }, "TenantID is required"},
		{"MissingConversationID", func(m *InboundMessage) { m.ConversationID = "" }, "ConversationID is required"},
		{"MissingText", func(m *InboundMessage) { m.Text = "" }, "Text is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := valid()
			tt.modify(msg)
			err := ValidateInboundMessage(msg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
