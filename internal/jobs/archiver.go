package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/repository"
	"github.com/atende-labs/atendai/internal/telemetry"
)

const (
	// archiveBatchLimit caps how many conversations a single pass archives
	archiveBatchLimit = 50

	// uploadMaxRetries is the maximum number of upload attempts per transcript
	uploadMaxRetries = 3

	transcriptContentType = "application/x-ndjson"
)

// ArchiveStore defines the interface for conversation archival persistence
type ArchiveStore interface {
	// ListArchivable returns conversations whose last turn is older than cutoff
	ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]repository.ConversationKey, error)

	// ListAllTurns returns every turn of a conversation in chronological order
	ListAllTurns(ctx context.Context, tenantID, conversationID string) ([]*domain.ConversationTurn, error)

	// MarkArchived flags all turns of a conversation as archived
	MarkArchived(ctx context.Context, tenantID, conversationID string) error
}

// TranscriptUploader defines the interface for transcript object storage
type TranscriptUploader interface {
	PutObject(ctx context.Context, key string, contentType string, body []byte) error
}

// Archiver moves cold conversations out of Postgres into object storage
type Archiver struct {
	store    ArchiveStore
	uploader TranscriptUploader
	maxAge   time.Duration
	now      func() time.Time
}

// NewArchiver creates a new Archiver instance
func NewArchiver(store ArchiveStore, uploader TranscriptUploader, maxAge time.Duration) *Archiver {
	return &Archiver{
		store:    store,
		uploader: uploader,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// ProcessJobs implements the JobProcessor interface
func (a *Archiver) ProcessJobs(ctx context.Context) error {
	ctx, span := telemetry.StartTransaction(ctx, "Archiver.ProcessJobs", "jobs")
	defer span.End()

	cutoff := a.now().Add(-a.maxAge)

	keys, err := a.store.ListArchivable(ctx, cutoff, archiveBatchLimit)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to list archivable conversations: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	log.Printf("Archiving %d cold conversations", len(keys))

	for _, key := range keys {
		if err := a.archiveConversation(ctx, key); err != nil {
			log.Printf("Error archiving conversation %s/%s: %v", key.TenantID, key.ConversationID, err)
			telemetry.CaptureError(ctx, err)
		}
	}

	return nil
}

func (a *Archiver) archiveConversation(ctx context.Context, key repository.ConversationKey) error {
	turns, err := a.store.ListAllTurns(ctx, key.TenantID, key.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load turns: %w", err)
	}
	if len(turns) == 0 {
		return nil
	}

	transcript, err := encodeTranscript(turns)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	objectKey := TranscriptKey(key.TenantID, key.ConversationID)

	upload := func() error {
		return a.uploader.PutObject(ctx, objectKey, transcriptContentType, transcript)
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uploadMaxRetries)
	if err := backoff.Retry(upload, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("failed to upload transcript %s: %w", objectKey, err)
	}

	// Only flag turns after the transcript is durably stored. A crash
	// between upload and this call re-uploads the same object, which is
	// harmless because the key is stable.
	if err := a.store.MarkArchived(ctx, key.TenantID, key.ConversationID); err != nil {
		return fmt.Errorf("failed to mark conversation archived: %w", err)
	}

	log.Printf("Archived conversation %s/%s (%d turns) to %s", key.TenantID, key.ConversationID, len(turns), objectKey)
	return nil
}

// TranscriptKey returns the object storage key for a conversation transcript
func TranscriptKey(tenantID, conversationID string) string {
	return fmt.Sprintf("transcripts/%s/%s.jsonl", tenantID, conversationID)
}

// transcriptLine is one JSONL record of an archived transcript
type transcriptLine struct {
	TurnID         string    `json:"turn_id"`
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

func encodeTranscript(turns []*domain.ConversationTurn) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, turn := range turns {
		line := transcriptLine{
			TurnID:         turn.ID,
			TenantID:       turn.TenantID,
			ConversationID: turn.ConversationID,
			Role:           string(turn.Role),
			Content:        turn.Content,
			CreatedAt:      turn.CreatedAt,
		}
		if err := enc.Encode(line); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
