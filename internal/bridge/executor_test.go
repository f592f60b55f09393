package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/atende-labs/atendai/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	mu       sync.Mutex
	calls    int
	lastCall struct {
		endpoint string
		method   string
		payload  []byte
		tenantID string
	}
	response []byte
	err      error
}

func (f *fakeInvoker) Invoke(ctx context.Context, endpoint, method string, payload []byte, tenantID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastCall.endpoint = endpoint
	f.lastCall.method = method
	f.lastCall.payload = payload
	f.lastCall.tenantID = tenantID
	return f.response, f.err
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func lookupTemplate() *domain.ActionTemplate {
	return &domain.ActionTemplate{
		ActionID:          "lookup-order",
		Endpoint:          "/orders/status",
		Method:            "POST",
		RequiredVariables: []string{"customerId"},
		Payload:           json.RawMessage(`{"customer_id": "{{customerId}}"}`),
	}
}

func TestExecutorSuccess(t *testing.T) {
	invoker := &fakeInvoker{response: []byte(`{"status": "shipped"}`)}
	executor := NewExecutor(invoker, ExecutorConfig{})

	result, err := executor.Execute(context.Background(), lookupTemplate(), map[string]interface{}{"customerId": "c42"}, "org-1")
	require.NoError(t, err)

	assert.Equal(t, "lookup-order", result.ActionID)
	assert.JSONEq(t, `{"customer_id": "c42"}`, string(result.Rendered))
	assert.JSONEq(t, `{"status": "shipped"}`, string(result.Response))

	assert.Equal(t, 1, invoker.callCount())
	assert.Equal(t, "/orders/status", invoker.lastCall.endpoint)
	assert.Equal(t, "org-1", invoker.lastCall.tenantID)
}

func TestExecutorMissingVariablesSkipsBackend(t *testing.T) {
	invoker := &fakeInvoker{}
	executor := NewExecutor(invoker, ExecutorConfig{})

	_, err := executor.Execute(context.Background(), lookupTemplate(), map[string]interface{}{}, "org-1")
	require.Error(t, err)

	var missingErr *domain.MissingVariablesError
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, []string{"customerId"}, missingErr.Variables)

	assert.Equal(t, 0, invoker.callCount(), "missing variables must not reach the backend")
}

func TestExecutorConditionNotApplicable(t *testing.T) {
	invoker := &fakeInvoker{}
	executor := NewExecutor(invoker, ExecutorConfig{})

	tpl := lookupTemplate()
	tpl.Condition = &domain.Condition{Field: "channel", Operator: domain.OperatorEq, Value: "whatsapp"}

	_, err := executor.Execute(context.Background(), tpl, map[string]interface{}{
		"customerId": "c42",
		"channel":    "email",
	}, "org-1")

	assert.ErrorIs(t, err, domain.ErrNotApplicable)
	assert.Equal(t, 0, invoker.callCount())
}

func TestExecutorInvalidTemplate(t *testing.T) {
	invoker := &fakeInvoker{}
	executor := NewExecutor(invoker, ExecutorConfig{})

	tpl := lookupTemplate()
	tpl.RequiredVariables = nil

	_, err := executor.Execute(context.Background(), tpl, map[string]interface{}{"customerId": "c42"}, "org-1")
	require.Error(t, err)
	assert.Equal(t, 0, invoker.callCount())
}

func TestExecutorBackendFailure(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("connection refused")}
	executor := NewExecutor(invoker, ExecutorConfig{})

	_, err := executor.Execute(context.Background(), lookupTemplate(), map[string]interface{}{"customerId": "c42"}, "org-1")
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeExecutionFailed, domainErr.Code)
}

func TestExecutorBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("connection refused")}
	executor := NewExecutor(invoker, ExecutorConfig{})

	runtimeCtx := map[string]interface{}{"customerId": "c42"}
	for i := 0; i < 5; i++ {
		_, err := executor.Execute(context.Background(), lookupTemplate(), runtimeCtx, "org-1")
		require.Error(t, err)
	}
	assert.Equal(t, 5, invoker.callCount())

	// breaker is open now, calls fail fast without reaching the invoker
	_, err := executor.Execute(context.Background(), lookupTemplate(), runtimeCtx, "org-1")
	require.Error(t, err)
	assert.Equal(t, 5, invoker.callCount())
}

func TestHTTPInvoker(t *testing.T) {
	var gotTenant, gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = r.Header.Get("X-Tenant-ID")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	invoker := NewHTTPInvoker(server.URL, nil)
	response, err := invoker.Invoke(context.Background(), "/orders", http.MethodPost, []byte(`{"customer_id": "c42"}`), "org-1")
	require.NoError(t, err)

	assert.JSONEq(t, `{"ok": true}`, string(response))
	assert.Equal(t, "org-1", gotTenant)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"customer_id": "c42"}`, string(gotBody))
}

func TestHTTPInvokerNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	invoker := NewHTTPInvoker(server.URL, nil)
	_, err := invoker.Invoke(context.Background(), "/orders", http.MethodPost, []byte(`{}`), "org-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
