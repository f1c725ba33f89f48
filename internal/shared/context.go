package shared

import "context"

// Tenant carries the authenticated shop scope for a request. Core operations
// receive it explicitly through context rather than ambient globals.
type Tenant struct {
	ShopID   int64
	ShopName string
	Currency string
	UserID   int64
}

type tenantContextKey struct{}

// ContextWithTenant stores the tenant in context.
func ContextWithTenant(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// TenantFromContext extracts the tenant from context, nil when absent.
func TenantFromContext(ctx context.Context) *Tenant {
	t, _ := ctx.Value(tenantContextKey{}).(*Tenant)
	return t
}

// ShopIDFromContext returns the shop id or 0 when no tenant is attached.
func ShopIDFromContext(ctx context.Context) int64 {
	if t := TenantFromContext(ctx); t != nil {
		return t.ShopID
	}
	return 0
}
