package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/partsledger/partsledger/internal/balance"
	"github.com/partsledger/partsledger/internal/inventory"
	"github.com/partsledger/partsledger/internal/observability"
	"github.com/partsledger/partsledger/internal/payments"
	"github.com/partsledger/partsledger/internal/platform/httpx"
	"github.com/partsledger/partsledger/internal/sales"
	"github.com/partsledger/partsledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	InventoryHandler *inventory.Handler
	SalesHandler     *sales.Handler
	PaymentsHandler  *payments.Handler
	BalanceHandler   *balance.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewHandlers builds the API handlers for services.
func NewHandlers(logger *slog.Logger, svc *Services) RouterParams {
	return RouterParams{
		Logger:           logger,
		InventoryHandler: inventory.NewHandler(logger, svc.Inventory),
		SalesHandler:     sales.NewHandler(logger, svc.Sales),
		PaymentsHandler:  payments.NewHandler(logger, svc.Payments),
		BalanceHandler:   balance.NewHandler(logger, svc.Balances),
	}
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if params.InventoryHandler != nil {
			params.InventoryHandler.MountRoutes(r)
		}
		if params.SalesHandler != nil {
			params.SalesHandler.MountRoutes(r)
		}
		if params.PaymentsHandler != nil {
			params.PaymentsHandler.MountRoutes(r)
		}
		if params.BalanceHandler != nil {
			params.BalanceHandler.MountRoutes(r)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})

	return r
}
