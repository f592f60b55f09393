package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/atende-labs/atendai/internal/api"
)

type contextKey string

const (
	TenantIDKey       contextKey = "tenant_id"
	AllowedTenantsKey contextKey = "allowed_tenants"
)

// AuthValidator maps an API key to the tenant ids it may act for. A single
// "*" entry grants every tenant.
type AuthValidator interface {
	AllowedTenants(ctx context.Context, token string) ([]string, error)
}

// APIKeyAuth authenticates the bearer token and records the allowed tenant
// set; handlers check the request's tenant against it via TenantAllowed.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			tenants, err := validator.AllowedTenants(r.Context(), token)
			if err != nil || len(tenants) == 0 {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), AllowedTenantsKey, tenants)
			if len(tenants) == 1 && tenants[0] != "*" {
				ctx = context.WithValue(ctx, TenantIDKey, tenants[0])
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenantID returns the tenant ID from context, when the key is bound to
// exactly one tenant.
func GetTenantID(ctx context.Context) string {
	tenantID, _ := ctx.Value(TenantIDKey).(string)
	return tenantID
}

// TenantAllowed reports whether the authenticated key may act for the
// given tenant.
func TenantAllowed(ctx context.Context, tenantID string) bool {
	tenants, _ := ctx.Value(AllowedTenantsKey).([]string)
	for _, t := range tenants {
		if t == "*" || t == tenantID {
			return true
		}
	}
	return false
}

// AllowAllTenants grants every tenant without authentication. Local
// development only.
func AllowAllTenants(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), AllowedTenantsKey, []string{"*"})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StaticKeyRing is an AuthValidator over a fixed key-to-tenants table,
// parsed from "token=tenantA;tenantB,token2=*" notation.
type StaticKeyRing struct {
	keys map[string][]string
}

func NewStaticKeyRing(spec string) *StaticKeyRing {
	keys := make(map[string][]string)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, tenantList, ok := strings.Cut(entry, "=")
		if !ok || token == "" {
			continue
		}
		var tenants []string
		for _, tenant := range strings.Split(tenantList, ";") {
			if tenant = strings.TrimSpace(tenant); tenant != "" {
				tenants = append(tenants, tenant)
			}
		}
		if len(tenants) > 0 {
			keys[token] = tenants
		}
	}
	return &StaticKeyRing{keys: keys}
}

func (k *StaticKeyRing) AllowedTenants(_ context.Context, token string) ([]string, error) {
	tenants, ok := k.keys[token]
	if !ok {
		return nil, nil
	}
	return tenants, nil
}

// Len reports how many keys the ring holds.
func (k *StaticKeyRing) Len() int {
	return len(k.keys)
}
