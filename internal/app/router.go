package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tokoku-erp/tokoku-erp/internal/billing"
	"github.com/tokoku-erp/tokoku-erp/internal/catalog"
	"github.com/tokoku-erp/tokoku-erp/internal/expenses"
	"github.com/tokoku-erp/tokoku-erp/internal/inventory"
	"github.com/tokoku-erp/tokoku-erp/internal/observability"
	"github.com/tokoku-erp/tokoku-erp/internal/payroll"
	"github.com/tokoku-erp/tokoku-erp/internal/shops"
	"github.com/tokoku-erp/tokoku-erp/internal/suppliers"
	"github.com/tokoku-erp/tokoku-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	ShopsService     *shops.Service
	ShopsHandler     *shops.Handler
	InventoryHandler *inventory.Handler
	BillingHandler   *billing.Handler
	CatalogHandler   *catalog.Handler
	SuppliersHandler *suppliers.Handler
	PayrollHandler   *payroll.Handler
	ExpensesHandler  *expenses.Handler
	JobsHandler      *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Tokoku defaults. Business routes
// live under /api/v1 and require a tenant API key; shop lifecycle lives under
// /admin and requires the operator token.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(shops.AdminMiddleware(params.Config.AdminToken))
		params.ShopsHandler.MountRoutes(r)
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(shops.TenantMiddleware(params.Logger, params.ShopsService))
		params.InventoryHandler.MountRoutes(r)
		params.BillingHandler.MountRoutes(r)
		params.CatalogHandler.MountRoutes(r)
		params.SuppliersHandler.MountRoutes(r)
		params.PayrollHandler.MountRoutes(r)
		params.ExpensesHandler.MountRoutes(r)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
