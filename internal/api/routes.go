package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts the FX core surface.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	fx := app.Group("/api/v1/fx")

	// Routing
	fx.Post("/routing/recommend", h.RecommendHandler)
	fx.Get("/routing/treasury-rates", h.TreasuryRatesHandler)
	fx.Get("/routing/providers", h.ProvidersHandler)

	// Multi-rail
	fx.Post("/multi-rail/route", h.MultiRailHandler)
	fx.Get("/multi-rail/cbdc", h.CBDCRegistryHandler)
	fx.Get("/multi-rail/stablecoins", h.StablecoinRegistryHandler)

	// Pricing
	fx.Post("/pricing/quote", h.QuoteHandler)
	fx.Get("/pricing/segments", h.SegmentsHandler)
	fx.Get("/pricing/tiers", h.TiersHandler)

	// Deals. best-rate registers before :id so it is not shadowed.
	fx.Get("/deals/best-rate", h.BestRateHandler)
	fx.Get("/deals", h.ListDealsHandler)
	fx.Post("/deals", h.CreateDealHandler)
	fx.Get("/deals/:id", h.GetDealHandler)
	fx.Put("/deals/:id", h.UpdateDealHandler)
	fx.Post("/deals/:id/submit", h.SubmitDealHandler)
	fx.Post("/deals/:id/approve", h.ApproveDealHandler)
	fx.Post("/deals/:id/reject", h.RejectDealHandler)
	fx.Post("/deals/:id/cancel", h.CancelDealHandler)
	fx.Post("/deals/:id/utilize", h.UtilizeDealHandler)
	fx.Get("/deals/:id/audit", h.DealAuditHandler)
	fx.Get("/deals/:id/utilizations", h.DealUtilizationsHandler)

	// Rules
	fx.Get("/rules", h.ListRulesHandler)
	fx.Post("/rules", h.CreateRuleHandler)
	fx.Delete("/rules/:id", h.DeleteRuleHandler)
	fx.Post("/rules/:id/toggle", h.ToggleRuleHandler)
	fx.Get("/rules/audit", h.RuleAuditHandler)

	// Admin
	fx.Post("/admin/reload", h.ReloadHandler)
}
