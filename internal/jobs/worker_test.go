package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/repository"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockArchiveStore is a mock implementation of ArchiveStore
type MockArchiveStore struct {
	mock.Mock
}

func (m *MockArchiveStore) ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]repository.ConversationKey, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.ConversationKey), args.Error(1)
}

func (m *MockArchiveStore) ListAllTurns(ctx context.Context, tenantID, conversationID string) ([]*domain.ConversationTurn, error) {
	args := m.Called(ctx, tenantID, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ConversationTurn), args.Error(1)
}

func (m *MockArchiveStore) MarkArchived(ctx context.Context, tenantID, conversationID string) error {
	args := m.Called(ctx, tenantID, conversationID)
	return args.Error(0)
}

// MockTranscriptUploader is a mock implementation of TranscriptUploader
type MockTranscriptUploader struct {
	mock.Mock
}

func (m *MockTranscriptUploader) PutObject(ctx context.Context, key string, contentType string, body []byte) error {
	args := m.Called(ctx, key, contentType, body)
	return args.Error(0)
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker in goroutine
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	// Let it run for a bit
	time.Sleep(250 * time.Millisecond)

	// Stop worker
	worker.Stop()
	wg.Wait()

	// Verify ProcessJobs was called at least once
	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	// Start worker in goroutine
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	// Let it run for a bit
	time.Sleep(150 * time.Millisecond)

	// Cancel context
	cancel()
	wg.Wait()

	// Verify ProcessJobs was called
	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func archiverTurns() []*domain.ConversationTurn {
	return []*domain.ConversationTurn{
		{
			ID:             "turn-1",
			TenantID:       "acme",
			ConversationID: "conv-1",
			Role:           domain.TurnRoleCustomer,
			Content:        "Meu pedido já saiu para entrega?",
			CreatedAt:      time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:             "turn-2",
			TenantID:       "acme",
			ConversationID: "conv-1",
			Role:           domain.TurnRoleAssistant,
			Content:        "Sim, chega em dois dias úteis.",
			CreatedAt:      time.Date(2026, 8, 1, 10, 0, 5, 0, time.UTC),
		},
	}
}

// TestArchiver_ProcessJobs_NothingToArchive tests when no conversation is cold enough
func TestArchiver_ProcessJobs_NothingToArchive(t *testing.T) {
	mockStore := new(MockArchiveStore)
	mockUploader := new(MockTranscriptUploader)

	mockStore.On("ListArchivable", mock.Anything, mock.Anything, archiveBatchLimit).
		Return([]repository.ConversationKey{}, nil)

	archiver := NewArchiver(mockStore, mockUploader, 48*time.Hour)
	err := archiver.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockStore.AssertExpectations(t)
	mockUploader.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestArchiver_ProcessJobs_UploadsTranscriptThenMarks tests the happy path
func TestArchiver_ProcessJobs_UploadsTranscriptThenMarks(t *testing.T) {
	mockStore := new(MockArchiveStore)
	mockUploader := new(MockTranscriptUploader)

	key := repository.ConversationKey{TenantID: "acme", ConversationID: "conv-1"}
	mockStore.On("ListArchivable", mock.Anything, mock.Anything, archiveBatchLimit).
		Return([]repository.ConversationKey{key}, nil)
	mockStore.On("ListAllTurns", mock.Anything, "acme", "conv-1").
		Return(archiverTurns(), nil)
	mockStore.On("MarkArchived", mock.Anything, "acme", "conv-1").Return(nil)

	var uploaded []byte
	mockUploader.On("PutObject", mock.Anything, "transcripts/acme/conv-1.jsonl", transcriptContentType, mock.Anything).
		Run(func(args mock.Arguments) {
			uploaded = args.Get(3).([]byte)
		}).
		Return(nil)

	archiver := NewArchiver(mockStore, mockUploader, 48*time.Hour)
	err := archiver.ProcessJobs(context.Background())

	require.NoError(t, err)
	mockStore.AssertExpectations(t)
	mockUploader.AssertExpectations(t)

	lines := strings.Split(strings.TrimSpace(string(uploaded)), "\n")
	require.Len(t, lines, 2)

	var first transcriptLine
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "turn-1", first.TurnID)
	assert.Equal(t, "customer", first.Role)
	assert.Equal(t, "Meu pedido já saiu para entrega?", first.Content)
}

// TestArchiver_ProcessJobs_CutoffRespectsMaxAge tests the cutoff passed to the store
func TestArchiver_ProcessJobs_CutoffRespectsMaxAge(t *testing.T) {
	mockStore := new(MockArchiveStore)
	mockUploader := new(MockTranscriptUploader)

	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	want := now.Add(-48 * time.Hour)

	mockStore.On("ListArchivable", mock.Anything, want, archiveBatchLimit).
		Return([]repository.ConversationKey{}, nil)

	archiver := NewArchiver(mockStore, mockUploader, 48*time.Hour)
	archiver.now = func() time.Time { return now }

	err := archiver.ProcessJobs(context.Background())
	assert.NoError(t, err)
	mockStore.AssertExpectations(t)
}

// TestArchiver_ProcessJobs_UploadFailureKeepsTurns tests that turns stay live when upload fails
func TestArchiver_ProcessJobs_UploadFailureKeepsTurns(t *testing.T) {
	mockStore := new(MockArchiveStore)
	mockUploader := new(MockTranscriptUploader)

	key := repository.ConversationKey{TenantID: "acme", ConversationID: "conv-1"}
	mockStore.On("ListArchivable", mock.Anything, mock.Anything, archiveBatchLimit).
		Return([]repository.ConversationKey{key}, nil)
	mockStore.On("ListAllTurns", mock.Anything, "acme", "conv-1").
		Return(archiverTurns(), nil)

	mockUploader.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("storage unavailable"))

	archiver := NewArchiver(mockStore, mockUploader, 48*time.Hour)
	err := archiver.ProcessJobs(context.Background())

	// The pass itself succeeds; the conversation is retried on the next tick.
	assert.NoError(t, err)
	mockStore.AssertNotCalled(t, "MarkArchived", mock.Anything, mock.Anything, mock.Anything)
}

// TestArchiver_ProcessJobs_ContinuesAfterFailure tests that one bad conversation does not block the batch
func TestArchiver_ProcessJobs_ContinuesAfterFailure(t *testing.T) {
	mockStore := new(MockArchiveStore)
	mockUploader := new(MockTranscriptUploader)

	keys := []repository.ConversationKey{
		{TenantID: "acme", ConversationID: "conv-1"},
		{TenantID: "acme", ConversationID: "conv-2"},
	}
	mockStore.On("ListArchivable", mock.Anything, mock.Anything, archiveBatchLimit).
		Return(keys, nil)
	mockStore.On("ListAllTurns", mock.Anything, "acme", "conv-1").
		Return(nil, errors.New("database error"))
	mockStore.On("ListAllTurns", mock.Anything, "acme", "conv-2").
		Return(archiverTurns(), nil)
	mockStore.On("MarkArchived", mock.Anything, "acme", "conv-2").Return(nil)

	mockUploader.On("PutObject", mock.Anything, "transcripts/acme/conv-2.jsonl", transcriptContentType, mock.Anything).
		Return(nil)

	archiver := NewArchiver(mockStore, mockUploader, 48*time.Hour)
	err := archiver.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockStore.AssertExpectations(t)
	mockUploader.AssertExpectations(t)
}

// TestArchiver_ProcessJobs_ListError tests store error handling
func TestArchiver_ProcessJobs_ListError(t *testing.T) {
	mockStore := new(MockArchiveStore)
	mockUploader := new(MockTranscriptUploader)

	mockStore.On("ListArchivable", mock.Anything, mock.Anything, archiveBatchLimit).
		Return(nil, errors.New("database error"))

	archiver := NewArchiver(mockStore, mockUploader, 48*time.Hour)
	err := archiver.ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list archivable conversations")
	mockStore.AssertExpectations(t)
}
