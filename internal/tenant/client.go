// Package tenant resolves per-tenant configuration from the remote config
// service and caches it with TTL refresh and event-driven invalidation.
package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atende-labs/atendai/internal/domain"
	"github.com/cenkalti/backoff/v4"
)

const (
	defaultFetchTimeout = 3 * time.Second
	defaultMaxRetries   = 3
)

// Fetcher retrieves a tenant's configuration bundle from its source of
// truth. The cache depends on this interface so tests can count calls.
type Fetcher interface {
	FetchConfig(ctx context.Context, tenantID string) (*domain.TenantConfig, error)
}

// Client fetches tenant configuration over HTTP from the config service.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	fetchTimeout time.Duration
	maxRetries   uint64
}

// ClientConfig holds the settings for constructing a Client.
type ClientConfig struct {
	BaseURL      string
	FetchTimeout time.Duration
	MaxRetries   int
	HTTPClient   *http.Client
}

// NewClient creates a config service client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	if cfg.MaxRetries == 0 {
		retries = defaultMaxRetries
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		httpClient:   httpClient,
		fetchTimeout: timeout,
		maxRetries:   uint64(retries),
	}
}

// FetchConfig fetches the tenant's config, retrying transient failures with
// bounded exponential backoff. Client errors from the config service are not
// retried.
func (c *Client) FetchConfig(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	if tenantID == "" {
		return nil, backoff.Permanent(fmt.Errorf("tenant id cannot be empty"))
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = time.Second

	var cfg *domain.TenantConfig
	operation := func() error {
		fetched, err := c.fetchOnce(ctx, tenantID)
		if err != nil {
			return err
		}
		cfg = fetched
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Client) fetchOnce(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/tenants/%s/config", c.baseURL, tenantID)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(domain.ErrTenantNotFound)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, backoff.Permanent(fmt.Errorf("config service rejected request: %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("config service returned %s", resp.Status)
	}

	var cfg domain.TenantConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode tenant config: %w", err))
	}
	if etag := resp.Header.Get("ETag"); etag != "" && cfg.ETag == "" {
		cfg.ETag = etag
	}
	cfg.FetchedAt = time.Now().UTC()

	if err := domain.ValidateTenantConfig(&cfg); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("config service returned invalid config: %w", err))
	}
	if cfg.TenantID != tenantID {
		return nil, backoff.Permanent(fmt.Errorf("config service returned config for tenant %s, wanted %s", cfg.TenantID, tenantID))
	}

	return &cfg, nil
}
