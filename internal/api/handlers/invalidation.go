package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atende-labs/atendai/internal/api"
	"github.com/atende-labs/atendai/internal/api/middleware"
	"github.com/atende-labs/atendai/internal/domain"
)

// ConfigInvalidator applies tenant-config invalidation events.
type ConfigInvalidator interface {
	Invalidate(ctx context.Context, tenantID string, newVersion int64) (bool, error)
}

// CollectionInvalidator drops cached retrieval results for a collection.
type CollectionInvalidator interface {
	InvalidateCollection(ctx context.Context, tenantID, collection string) error
}

// InvalidationHandler receives out-of-band cache invalidation events: config
// version bumps from the configuration service and data-change pushes from
// the relational backend.
type InvalidationHandler struct {
	configs     ConfigInvalidator
	collections CollectionInvalidator
}

func NewInvalidationHandler(configs ConfigInvalidator, collections CollectionInvalidator) *InvalidationHandler {
	return &InvalidationHandler{configs: configs, collections: collections}
}

type configInvalidationRequest struct {
	TenantID   string `json:"tenant_id"`
	NewVersion int64  `json:"new_version"`
}

func (h *InvalidationHandler) Config(w http.ResponseWriter, r *http.Request) {
	var req configInvalidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" || req.NewVersion <= 0 {
		api.HandleError(w, domain.ErrInvalidInvalidation)
		return
	}

	if !middleware.TenantAllowed(r.Context(), req.TenantID) {
		api.Error(w, http.StatusForbidden, "api key not valid for tenant")
		return
	}

	applied, err := h.configs.Invalidate(r.Context(), req.TenantID, req.NewVersion)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]bool{"applied": applied})
}

type collectionInvalidationRequest struct {
	TenantID   string `json:"tenant_id"`
	Collection string `json:"collection"`
}

func (h *InvalidationHandler) Collection(w http.ResponseWriter, r *http.Request) {
	var req collectionInvalidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" || req.Collection == "" {
		api.HandleError(w, domain.ErrInvalidInvalidation)
		return
	}

	if !middleware.TenantAllowed(r.Context(), req.TenantID) {
		api.Error(w, http.StatusForbidden, "api key not valid for tenant")
		return
	}

	if err := h.collections.InvalidateCollection(r.Context(), req.TenantID, req.Collection); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]bool{"invalidated": true})
}
