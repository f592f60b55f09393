package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atende-labs/atendai/internal/api/middleware"
	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/orchestrator"
	"github.com/atende-labs/atendai/internal/pagination"
)

type stubOrchestrator struct {
	reply *orchestrator.Reply
	err   error
	msgs  []*domain.InboundMessage
}

func (s *stubOrchestrator) HandleMessage(_ context.Context, msg *domain.InboundMessage) (*orchestrator.Reply, error) {
	s.msgs = append(s.msgs, msg)
	if s.err != nil {
		return nil, s.err
	}
	return s.reply, nil
}

type stubConfigInvalidator struct {
	applied bool
	err     error
	calls   int
}

func (s *stubConfigInvalidator) Invalidate(_ context.Context, _ string, _ int64) (bool, error) {
	s.calls++
	return s.applied, s.err
}

type stubCollectionInvalidator struct {
	err   error
	calls int
}

func (s *stubCollectionInvalidator) InvalidateCollection(_ context.Context, _, _ string) error {
	s.calls++
	return s.err
}

type stubHistoryLister struct {
	page   *pagination.PageResult[*domain.ConversationTurn]
	err    error
	limit  int
	cursor *pagination.Cursor
}

func (s *stubHistoryLister) ListTurns(_ context.Context, _, _ string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.ConversationTurn], error) {
	s.cursor = cursor
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

// allTenants attaches a wildcard tenant grant, as the dev middleware does.
func allTenants(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.AllowedTenantsKey, []string{"*"})
	return r.WithContext(ctx)
}

func TestMessageHandler_InvalidBody(t *testing.T) {
	orch := &stubOrchestrator{}
	handler := NewMessageHandler(orch)

	req := allTenants(httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader("{not json")))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, orch.msgs)
}

func TestMessageHandler_ValidationErrorMapsTo400(t *testing.T) {
	orch := &stubOrchestrator{err: domain.NewDomainError(domain.ErrCodeValidation, "text is required")}
	handler := NewMessageHandler(orch)

	body := `{"tenant_id":"acme","conversation_id":"conv-1","text":""}`
	req := allTenants(httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "text is required")
}

func TestMessageHandler_PassesSourceMetadata(t *testing.T) {
	orch := &stubOrchestrator{reply: &orchestrator.Reply{ConversationID: "conv-1", Text: "Oi!"}}
	handler := NewMessageHandler(orch)

	body := `{"tenant_id":"acme","conversation_id":"conv-1","text":"oi","source_metadata":{"customerId":"c-9"}}`
	req := allTenants(httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, orch.msgs, 1)
	assert.Equal(t, "c-9", orch.msgs[0].SourceMetadata["customerId"])
}

func TestInvalidationHandler_ConfigRejectsNonPositiveVersion(t *testing.T) {
	configs := &stubConfigInvalidator{}
	handler := NewInvalidationHandler(configs, &stubCollectionInvalidator{})

	body := `{"tenant_id":"acme","new_version":0}`
	req := allTenants(httptest.NewRequest(http.MethodPost, "/invalidations/config", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	handler.Config(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, configs.calls)
}

func TestInvalidationHandler_ConfigReportsStaleEvent(t *testing.T) {
	configs := &stubConfigInvalidator{applied: false}
	handler := NewInvalidationHandler(configs, &stubCollectionInvalidator{})

	body := `{"tenant_id":"acme","new_version":3}`
	req := allTenants(httptest.NewRequest(http.MethodPost, "/invalidations/config", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	handler.Config(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"applied":false`)
	assert.Equal(t, 1, configs.calls)
}

func TestInvalidationHandler_CollectionRequiresName(t *testing.T) {
	collections := &stubCollectionInvalidator{}
	handler := NewInvalidationHandler(&stubConfigInvalidator{}, collections)

	body := `{"tenant_id":"acme","collection":""}`
	req := allTenants(httptest.NewRequest(http.MethodPost, "/invalidations/collections", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	handler.Collection(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, collections.calls)
}

func historyRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "conv-1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	return allTenants(req)
}

func TestConversationHandler_RequiresTenant(t *testing.T) {
	handler := NewConversationHandler(&stubHistoryLister{})

	rec := httptest.NewRecorder()
	handler.GetHistory(rec, historyRequest("/conversations/conv-1/history"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant_id is required")
}

func TestConversationHandler_RejectsBadCursor(t *testing.T) {
	handler := NewConversationHandler(&stubHistoryLister{})

	rec := httptest.NewRecorder()
	handler.GetHistory(rec, historyRequest("/conversations/conv-1/history?tenant_id=acme&cursor=not-base64!"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid cursor")
}

func TestConversationHandler_RejectsBadLimit(t *testing.T) {
	handler := NewConversationHandler(&stubHistoryLister{})

	for _, limit := range []string{"0", "-5", "201", "abc"} {
		rec := httptest.NewRecorder()
		handler.GetHistory(rec, historyRequest("/conversations/conv-1/history?tenant_id=acme&limit="+limit))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestConversationHandler_ForwardsCursorAndLimit(t *testing.T) {
	lister := &stubHistoryLister{
		page: &pagination.PageResult[*domain.ConversationTurn]{
			Items: []*domain.ConversationTurn{
				{ID: "turn-3", Role: domain.TurnRoleAssistant, Content: "Claro!", CreatedAt: time.Now()},
			},
			Cursor:  "next",
			HasMore: true,
		},
	}
	handler := NewConversationHandler(lister)

	cursor := pagination.EncodeCursor("turn-2", time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	rec := httptest.NewRecorder()
	handler.GetHistory(rec, historyRequest("/conversations/conv-1/history?tenant_id=acme&limit=2&cursor="+cursor))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, lister.limit)
	require.NotNil(t, lister.cursor)
	assert.Equal(t, "turn-2", lister.cursor.LastID)
	assert.Contains(t, rec.Body.String(), `"has_more":true`)
}
