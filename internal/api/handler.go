package api

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fx-router/internal/deals"
	"github.com/Checker-Finance/fx-router/internal/multirail"
	"github.com/Checker-Finance/fx-router/internal/pricing"
	"github.com/Checker-Finance/fx-router/internal/rates"
	"github.com/Checker-Finance/fx-router/internal/refdata"
	"github.com/Checker-Finance/fx-router/internal/routing"
	"github.com/Checker-Finance/fx-router/internal/rules"
	"github.com/Checker-Finance/fx-router/pkg/model"
)

// Handler carries the wired core services for the HTTP surface.
type Handler struct {
	Logger    *zap.Logger
	Registry  *refdata.Registry
	Rates     *rates.Cached
	RateList  rates.Lister
	Routing   *routing.Engine
	MultiRail *multirail.Router
	Pricing   *pricing.Engine
	Deals     *deals.Store
	Rules     *rules.Engine
}

// RecommendHandler serves POST /routing/recommend.
func (h *Handler) RecommendHandler(c *fiber.Ctx) error {
	var req RecommendRequest
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

	pair := model.PairKey(req.SourceCurrency, req.TargetCurrency)
	res, err := h.Rates.Fetch(c.Context(), pair)
	if err != nil {
		return respondError(c, err)
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}

	resp, err := h.Routing.Recommend(routing.Request{
		SourceCurrency: req.SourceCurrency,
		TargetCurrency: req.TargetCurrency,
		Amount:         req.Amount,
		Side:           side,
		Objective:      model.Objective(req.Objective),
		CustomerID:     req.CustomerID,
		Tier:           req.CustomerTier,
		Segment:        req.Segment,
		Timestamp:      ts,
	}, res)
	if err != nil {
		h.Logger.Warn("api.recommend_failed", zap.String("pair", pair), zap.Error(err))
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// TreasuryRatesHandler serves GET /routing/treasury-rates.
func (h *Handler) TreasuryRatesHandler(c *fiber.Ctx) error {
	list, err := h.RateList.List(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"rates":     list,
		"timestamp": time.Now().UTC(),
	})
}

// ProvidersHandler serves GET /routing/providers.
func (h *Handler) ProvidersHandler(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"providers": h.Registry.Snapshot().ProviderList(),
	})
}

// MultiRailHandler serves POST /multi-rail/route.
func (h *Handler) MultiRailHandler(c *fiber.Ctx) error {
	var req MultiRailRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	resp, err := h.MultiRail.Route(c.Context(), multirail.Request{
		SourceCurrency:   req.SourceCurrency,
		TargetCurrency:   req.TargetCurrency,
		Amount:           req.Amount,
		Objective:        model.Objective(req.Objective),
		FilterRegulated:  req.FilterRegulated,
		PreferredNetwork: req.PreferredNetwork,
		MaxSlippageBps:   req.MaxSlippageBps,
	})
	if err != nil {
		h.Logger.Warn("api.multirail_failed",
			zap.String("source", req.SourceCurrency),
			zap.String("target", req.TargetCurrency),
			zap.Error(err))
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// CBDCRegistryHandler serves GET /multi-rail/cbdc.
func (h *Handler) CBDCRegistryHandler(c *fiber.Ctx) error {
	snap := h.Registry.Snapshot()
	out := make([]refdata.CBDC, 0, len(snap.CBDCs))
	for _, entry := range snap.CBDCs {
		out = append(out, entry)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"cbdc": out})
}

// StablecoinRegistryHandler serves GET /multi-rail/stablecoins.
func (h *Handler) StablecoinRegistryHandler(c *fiber.Ctx) error {
	snap := h.Registry.Snapshot()
	out := make([]refdata.Stablecoin, 0, len(snap.Stablecoins))
	for _, entry := range snap.Stablecoins {
		out = append(out, entry)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"stablecoins": out})
}

// ReloadHandler serves POST /admin/reload: reference tables and rules.
func (h *Handler) ReloadHandler(c *fiber.Ctx) error {
	if err := h.Registry.Reload(); err != nil {
		return respondError(c, err)
	}
	if err := h.Rules.Reload(); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "reloaded"})
}
