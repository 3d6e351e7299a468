package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/magneq-erp/magneq-erp/internal/catalog"
	"github.com/magneq-erp/magneq-erp/internal/ledger"
	"github.com/magneq-erp/magneq-erp/internal/procurement"
	"github.com/magneq-erp/magneq-erp/internal/production"
	"github.com/magneq-erp/magneq-erp/internal/sales"
	"github.com/magneq-erp/magneq-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	CatalogHandler     *catalog.Handler
	LedgerHandler      *ledger.Handler
	SalesHandler       *sales.Handler
	ProductionHandler  *production.Handler
	ProcurementHandler *procurement.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with Magneq defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/finished-goods", params.CatalogHandler.MountRoutes)
	r.Route("/materials", params.LedgerHandler.MountRoutes)
	r.Route("/sales-orders", params.SalesHandler.MountRoutes)
	r.Route("/production-orders", params.ProductionHandler.MountRoutes)
	r.Route("/purchase-orders", params.ProcurementHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
