package http

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/repair-service/internal/actor"
	"github.com/spec-kit/repair-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health          *handlers.HealthHandler
	Tickets         *handlers.TicketsHandler
	SpareParts      *handlers.SparePartsHandler
	Loaners         *handlers.LoanersHandler
	Correspondence  *handlers.CorrespondenceHandler
	Reconciliation  *handlers.ReconciliationHandler
	ActorMiddleware *actor.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1", cfg.ActorMiddleware.Handle)

	tickets := api.Group("/tickets")
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/stats", cfg.Tickets.Stats)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/diagnosis/start", cfg.Tickets.StartDiagnosis)
	tickets.Post("/:id/diagnosis/complete", cfg.Tickets.CompleteDiagnosis)
	tickets.Post("/:id/reserve", cfg.Tickets.ReserveComponent)
	tickets.Post("/:id/repair/start", cfg.Tickets.StartRepair)
	tickets.Post("/:id/replacement", cfg.Tickets.RecordReplacement)
	tickets.Post("/:id/vendor/send", cfg.Tickets.SendToVendor)
	tickets.Post("/:id/vendor/return", cfg.Tickets.ReturnFromVendor)
	tickets.Post("/:id/loaner/issue", cfg.Tickets.IssueLoaner)
	tickets.Post("/:id/loaner/return", cfg.Tickets.ReturnLoaner)
	tickets.Post("/:id/resolve", cfg.Tickets.ResolveTicket)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)
	tickets.Post("/:id/attachments", cfg.Tickets.AddAttachment)

	parts := api.Group("/parts")
	parts.Post("", cfg.SpareParts.CreatePart)
	parts.Get("", cfg.SpareParts.ListParts)
	parts.Get("/:id", cfg.SpareParts.GetPart)
	parts.Get("/:id/history", cfg.SpareParts.GetHistory)
	parts.Post("/:id/reserve", cfg.SpareParts.ReservePart)
	parts.Post("/:id/release", cfg.SpareParts.ReleasePart)
	parts.Post("/:id/install", cfg.SpareParts.InstallPart)
	parts.Post("/:id/remove", cfg.SpareParts.RemovePart)
	parts.Post("/:id/vendor/send", cfg.SpareParts.SendPartToVendor)
	parts.Post("/:id/vendor/return", cfg.SpareParts.ReturnPartFromVendor)
	parts.Post("/:id/scrap", cfg.SpareParts.ScrapPart)
	parts.Post("/:id/tested", cfg.SpareParts.MarkTested)

	loaners := api.Group("/loaners")
	loaners.Post("", cfg.Loaners.EnrollLoaner)
	loaners.Get("", cfg.Loaners.ListLoaners)
	loaners.Get("/:id", cfg.Loaners.GetLoaner)
	loaners.Post("/:id/maintenance", cfg.Loaners.SetMaintenance)
	loaners.Post("/:id/retire", cfg.Loaners.RetireLoaner)

	correspondence := api.Group("/correspondence")
	correspondence.Post("", cfg.Correspondence.CreateCorrespondence)
	correspondence.Get("/:id", cfg.Correspondence.GetCorrespondence)
	correspondence.Post("/:id/report", cfg.Correspondence.RecordVendorReport)
	correspondence.Post("/:id/close", cfg.Correspondence.CloseCorrespondence)

	units := api.Group("/units")
	units.Get("/:id/reconciliation", cfg.Reconciliation.Preview)
	units.Post("/:id/reconciliation", cfg.Reconciliation.Apply)
}
