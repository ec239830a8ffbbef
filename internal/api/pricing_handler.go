package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fx-router/internal/pricing"
	"github.com/Checker-Finance/fx-router/pkg/model"
)

// QuoteHandler serves POST /pricing/quote.
func (h *Handler) QuoteHandler(c *fiber.Ctx) error {
	var req QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	side, err := model.ParseSide(req.Direction)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	quote, err := h.Pricing.Quote(c.Context(), pricing.Request{
		SourceCurrency: req.SourceCurrency,
		TargetCurrency: req.TargetCurrency,
		Amount:         req.Amount,
		CustomerID:     req.CustomerID,
		Segment:        req.Segment,
		Direction:      side,
	})
	if err != nil {
		h.Logger.Warn("api.quote_failed",
			zap.String("segment", req.Segment),
			zap.Error(err))
		return respondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(quote)
}

// SegmentsHandler serves GET /pricing/segments.
func (h *Handler) SegmentsHandler(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"segments": h.Registry.Snapshot().SegmentList(),
	})
}

// TiersHandler serves GET /pricing/tiers: customer tiers and amount tiers.
func (h *Handler) TiersHandler(c *fiber.Ctx) error {
	snap := h.Registry.Snapshot()
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"customer_tiers": snap.TierList(),
		"amount_tiers":   snap.AmountTiers,
	})
}
