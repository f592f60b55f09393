package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atende-labs/atendai/internal/domain"
	"github.com/atende-labs/atendai/internal/telemetry"
	"github.com/sony/gobreaker"
)

const defaultInvokeTimeout = 2 * time.Second

// BackendInvoker is the operational backend boundary.
type BackendInvoker interface {
	Invoke(ctx context.Context, endpoint, method string, payload []byte, tenantID string) ([]byte, error)
}

// ActionResult is the outcome of a successful bridge execution, tagged
// with the template's action identifier for observability.
type ActionResult struct {
	ActionID string          `json:"action_id"`
	Rendered json.RawMessage `json:"rendered"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Executor validates, renders and executes action templates. Backend calls
// go through a circuit breaker so a struggling ERP does not absorb every
// request's timeout budget.
type Executor struct {
	invoker BackendInvoker
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// ExecutorConfig holds the settings for constructing an Executor.
type ExecutorConfig struct {
	InvokeTimeout time.Duration
}

// NewExecutor creates a bridge executor over the given backend invoker.
func NewExecutor(invoker BackendInvoker, cfg ExecutorConfig) *Executor {
	timeout := cfg.InvokeTimeout
	if timeout <= 0 {
		timeout = defaultInvokeTimeout
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "operational-backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Executor{
		invoker: invoker,
		breaker: breaker,
		timeout: timeout,
	}
}

// Execute runs the full bridge pipeline for one template. The clean
// failure paths (missing variables, inapplicable condition) return before
// any network activity.
func (e *Executor) Execute(ctx context.Context, tpl *domain.ActionTemplate, runtimeCtx map[string]interface{}, tenantID string) (*ActionResult, error) {
	if err := ValidateTemplate(tpl); err != nil {
		return nil, err
	}

	if missing := MissingVariables(tpl, runtimeCtx); len(missing) > 0 {
		return nil, domain.NewMissingVariablesError(missing)
	}

	if !EvaluateCondition(tpl.Condition, runtimeCtx) {
		return nil, domain.ErrNotApplicable
	}

	rendered, err := Render(tpl, runtimeCtx)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "failed to render action payload", err)
	}

	ctx, span := telemetry.StartSpan(ctx, "Executor.Execute", telemetry.SpanAttributes{
		TenantID:  tenantID,
		Operation: tpl.ActionID,
	})
	defer span.End()

	invokeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	telemetry.AddBreadcrumb(ctx, "backend", fmt.Sprintf("%s %s", tpl.Method, tpl.Endpoint))
	response, err := e.breaker.Execute(func() (interface{}, error) {
		return e.invoker.Invoke(invokeCtx, tpl.Endpoint, tpl.Method, rendered, tenantID)
	})
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExecutionFailed, "operational backend execution failed", err)
	}

	return &ActionResult{
		ActionID: tpl.ActionID,
		Rendered: rendered,
		Response: response.([]byte),
	}, nil
}

// HTTPInvoker invokes the operational backend over HTTP, scoping every
// call to a tenant.
type HTTPInvoker struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPInvoker creates an invoker rooted at the backend's base URL.
func NewHTTPInvoker(baseURL string, httpClient *http.Client) *HTTPInvoker {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPInvoker{baseURL: baseURL, httpClient: httpClient}
}

// Invoke performs one backend call. Non-2xx responses are errors.
func (i *HTTPInvoker) Invoke(ctx context.Context, endpoint, method string, payload []byte, tenantID string) ([]byte, error) {
	var body io.Reader
	if method != http.MethodGet && len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, i.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("backend returned %s", resp.Status)
	}
	return responseBody, nil
}
