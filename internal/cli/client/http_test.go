package client

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient_GetSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/health", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"status":"ok"}}`))
	}))
	defer server.Close()

	api, err := NewAPIClientWithConfig("test-key", server.URL)
	require.NoError(t, err)

	resp, err := api.Get("/health")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Data))
}

func TestAPIClient_PostSendsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"data":{"conversation_id":"conv-1","text":"Oi!"}}`))
	}))
	defer server.Close()

	api, err := NewAPIClientWithConfig("test-key", server.URL)
	require.NoError(t, err)

	resp, err := api.Post("/messages", map[string]string{"tenant_id": "acme", "text": "oi"})
	require.NoError(t, err)
	assert.Contains(t, string(resp.Data), "conv-1")
}

func TestAPIClient_ErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"api key not valid for tenant"}`))
	}))
	defer server.Close()

	api, err := NewAPIClientWithConfig("test-key", server.URL)
	require.NoError(t, err)

	_, err = api.Post("/messages", map[string]string{"tenant_id": "other"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "api key not valid for tenant", apiErr.Message)
}

func TestAPIClient_NonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	api, err := NewAPIClientWithConfig("test-key", server.URL)
	require.NoError(t, err)

	_, err = api.Get("/health")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}
