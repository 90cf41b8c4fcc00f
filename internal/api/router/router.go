// Package router assembles the billing API's route table.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bridgesphysio/clinic-portal/internal/http/handlers"
	httpmiddleware "github.com/bridgesphysio/clinic-portal/internal/http/middleware"
	"github.com/bridgesphysio/clinic-portal/internal/observability/metrics"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Metrics            *metrics.BillingMetrics
	Appointments       *handlers.AppointmentsHandler
	Invoices           *handlers.InvoicesHandler
	Imports            *handlers.ImportsHandler
	ProfitLoss         *handlers.ProfitLossHandler
	Health             *handlers.HealthHandler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string
}

// New creates a chi router with all billing routes configured. Everything
// under /api/v1 requires the staff JWT; health and metrics are public.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger, cfg.Metrics))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.Check)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

		if cfg.Appointments != nil {
			api.Post("/appointments/{id}/outcome", cfg.Appointments.RecordOutcome)
		}

		if cfg.Invoices != nil {
			api.Route("/invoices", func(r chi.Router) {
				r.Post("/", cfg.Invoices.Create)
				r.Route("/{number}", func(r chi.Router) {
					r.Get("/", cfg.Invoices.Get)
					r.Post("/void", cfg.Invoices.Void)
					r.Post("/payments", cfg.Invoices.ApplyPayment)
					r.Get("/payments", cfg.Invoices.ListPayments)
					r.Post("/email", cfg.Invoices.SendEmail)
					r.Get("/pdf", cfg.Invoices.PDF)
				})
			})
		}

		if cfg.Imports != nil {
			api.Post("/imports/ledger", cfg.Imports.RunLedgerImport)
		}

		if cfg.ProfitLoss != nil {
			api.Route("/profit-loss", func(r chi.Router) {
				r.Get("/", cfg.ProfitLoss.Report)
				r.Get("/export", cfg.ProfitLoss.Export)
				r.Post("/expenses", cfg.ProfitLoss.CreateExpense)
				r.Put("/expenses/{id}", cfg.ProfitLoss.UpdateExpense)
				r.Delete("/expenses/{id}", cfg.ProfitLoss.DeleteExpense)
			})
		}
	})

	return r
}
