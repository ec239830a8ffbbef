package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/Checker-Finance/fx-router/internal/deals"
	"github.com/Checker-Finance/fx-router/internal/multirail"
	"github.com/Checker-Finance/fx-router/internal/pricing"
	"github.com/Checker-Finance/fx-router/internal/rates"
	"github.com/Checker-Finance/fx-router/internal/refdata"
	"github.com/Checker-Finance/fx-router/internal/routing"
	"github.com/Checker-Finance/fx-router/internal/rules"
)

// respondError maps domain errors onto the HTTP error taxonomy.
func respondError(c *fiber.Ctx, err error) error {
	var noProvider *routing.NoEligibleProviderError
	if errors.As(err, &noProvider) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":      "no eligible provider",
			"pair":       noProvider.Pair,
			"exclusions": noProvider.Exclusions,
		})
	}

	var stateConflict *deals.StateConflictError
	if errors.As(err, &stateConflict) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":         err.Error(),
			"deal_id":       stateConflict.DealID,
			"current_state": stateConflict.Current,
		})
	}

	switch {
	case errors.Is(err, rates.ErrRateUnavailable):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
			"hint":  "no rate in snapshot or cache; retry shortly",
		})
	case errors.Is(err, deals.ErrInsufficientBalance):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, deals.ErrNotFound), errors.Is(err, refdata.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, deals.ErrValidation),
		errors.Is(err, pricing.ErrUnknownSegment),
		errors.Is(err, rules.ErrInvalidRule):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, refdata.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, multirail.ErrNoRoute):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, deals.ErrPersistence):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "durable write failed; state unchanged"})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
