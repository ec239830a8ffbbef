package api

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fx-router/internal/deals"
	"github.com/Checker-Finance/fx-router/internal/routing"
	"github.com/Checker-Finance/fx-router/pkg/model"
)

// CreateDealHandler serves POST /deals.
func (h *Handler) CreateDealHandler(c *fiber.Ctx) error {
	var req deals.CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	deal, err := h.Deals.Create(c.Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(deal)
}

// ListDealsHandler serves GET /deals.
func (h *Handler) ListDealsHandler(c *fiber.Ctx) error {
	filter := deals.ListFilter{
		Status:   deals.Status(strings.ToUpper(c.Query("status"))),
		Pair:     c.Query("pair"),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 20),
	}
	list, total, err := h.Deals.List(c.Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"deals": list,
		"total": total,
		"page":  filter.Page,
	})
}

// GetDealHandler serves GET /deals/:id.
func (h *Handler) GetDealHandler(c *fiber.Ctx) error {
	deal, err := h.Deals.Get(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(deal)
}

// UpdateDealHandler serves PUT /deals/:id (DRAFT only).
func (h *Handler) UpdateDealHandler(c *fiber.Ctx) error {
	var req deals.UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	deal, err := h.Deals.Update(c.Context(), c.Params("id"), req, c.Query("actor", "UNKNOWN"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(deal)
}

func (h *Handler) dealTransition(c *fiber.Ctx, fn func(dealID string, req ActorRequest) (*deals.Deal, error)) error {
	var req ActorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	deal, err := fn(c.Params("id"), req)
	if err != nil {
		h.Logger.Warn("api.deal_transition_failed",
			zap.String("deal_id", c.Params("id")),
			zap.Error(err))
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(deal)
}

// SubmitDealHandler serves POST /deals/:id/submit.
func (h *Handler) SubmitDealHandler(c *fiber.Ctx) error {
	return h.dealTransition(c, func(id string, req ActorRequest) (*deals.Deal, error) {
		return h.Deals.Submit(c.Context(), id, req.Actor)
	})
}

// ApproveDealHandler serves POST /deals/:id/approve.
func (h *Handler) ApproveDealHandler(c *fiber.Ctx) error {
	return h.dealTransition(c, func(id string, req ActorRequest) (*deals.Deal, error) {
		return h.Deals.Approve(c.Context(), id, req.Actor)
	})
}

// RejectDealHandler serves POST /deals/:id/reject.
func (h *Handler) RejectDealHandler(c *fiber.Ctx) error {
	return h.dealTransition(c, func(id string, req ActorRequest) (*deals.Deal, error) {
		return h.Deals.Reject(c.Context(), id, req.Actor, req.Reason)
	})
}

// CancelDealHandler serves POST /deals/:id/cancel.
func (h *Handler) CancelDealHandler(c *fiber.Ctx) error {
	return h.dealTransition(c, func(id string, req ActorRequest) (*deals.Deal, error) {
		return h.Deals.Cancel(c.Context(), id, req.Actor, req.Reason)
	})
}

// UtilizeDealHandler serves POST /deals/:id/utilize.
func (h *Handler) UtilizeDealHandler(c *fiber.Ctx) error {
	var req deals.UtilizeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	util, err := h.Deals.Utilize(c.Context(), c.Params("id"), req)
	if err != nil {
		h.Logger.Warn("api.deal_utilize_failed",
			zap.String("deal_id", c.Params("id")),
			zap.Error(err))
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(util)
}

// DealAuditHandler serves GET /deals/:id/audit.
func (h *Handler) DealAuditHandler(c *fiber.Ctx) error {
	deal, err := h.Deals.Get(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"deal_id": deal.DealID,
		"audit":   deal.Audit,
	})
}

// DealUtilizationsHandler serves GET /deals/:id/utilizations.
func (h *Handler) DealUtilizationsHandler(c *fiber.Ctx) error {
	deal, err := h.Deals.Get(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"deal_id":      deal.DealID,
		"utilizations": deal.Utilizations,
	})
}

// BestRateHandler serves GET /deals/best-rate: arbitration between the
// best active deal and the adjusted treasury rate.
func (h *Handler) BestRateHandler(c *fiber.Ctx) error {
	amount, err := decimal.NewFromString(c.Query("amount", "0"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "amount must be a number"})
	}
	q := BestRateQuery{
		Pair:         c.Query("pair"),
		Side:         c.Query("side"),
		Amount:       amount,
		CustomerTier: c.Query("customer_tier"),
	}
	if err := q.Validate(); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	side, err := model.ParseSide(q.Side)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	res, err := h.Rates.Fetch(c.Context(), strings.ToUpper(q.Pair))
	if err != nil {
		return respondError(c, err)
	}

	snap := h.Registry.Snapshot()
	tier, tierKnown := snap.Tiers[q.CustomerTier]
	treasury := routing.AdjustedTreasuryRate(res.Rate, side, tier, tierKnown)

	result, err := h.Deals.BestRate(c.Context(), q.Pair, side, q.Amount, q.CustomerTier, treasury)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(result)
}
