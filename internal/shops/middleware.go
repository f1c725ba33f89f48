package shops

import (
	"log/slog"
	"net/http"

	"github.com/tokoku-erp/tokoku-erp/internal/platform/httpx"
	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// TenantMiddleware authenticates X-Api-Key and attaches the resolved tenant
// to the request context. Requests without a valid key never reach the
// business handlers.
func TenantMiddleware(logger *slog.Logger, service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-Api-Key")
			if apiKey == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing X-Api-Key header")
				return
			}
			tenant, err := service.Authenticate(r.Context(), apiKey)
			if err != nil {
				logger.Warn("tenant authentication failed", slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			ctx := shared.ContextWithTenant(r.Context(), &tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
