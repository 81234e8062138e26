package shared

import (
	"context"
	"net/http"
	"strconv"
)

type tenantContextKey struct{}

type actorContextKey struct{}

// ContextWithTenant stores the tenant id in context.
func ContextWithTenant(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the tenant id from context.
func TenantFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(tenantContextKey{}).(int64)
	return id, ok && id > 0
}

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user id, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}

// TenantHeader and ActorHeader are injected by the platform gateway after
// authentication, which sits outside this service.
const (
	TenantHeader = "X-Tenant-ID"
	ActorHeader  = "X-Actor-ID"
)

// ScopeMiddleware resolves tenant and actor ids from gateway headers into
// the request context.
func ScopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id, err := strconv.ParseInt(r.Header.Get(TenantHeader), 10, 64); err == nil && id > 0 {
			ctx = ContextWithTenant(ctx, id)
		}
		if id, err := strconv.ParseInt(r.Header.Get(ActorHeader), 10, 64); err == nil && id > 0 {
			ctx = ContextWithActor(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
