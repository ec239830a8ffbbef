package api

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Checker-Finance/fx-router/internal/rules"
)

// ListRulesHandler serves GET /rules.
func (h *Handler) ListRulesHandler(c *fiber.Ctx) error {
	ruleType := rules.RuleType(strings.ToUpper(c.Query("type")))
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"rules": h.Rules.List(ruleType),
	})
}

// CreateRuleHandler serves POST /rules.
func (h *Handler) CreateRuleHandler(c *fiber.Ctx) error {
	var rule rules.Rule
	if err := c.BodyParser(&rule); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := h.Rules.Add(rule); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(rule)
}

// DeleteRuleHandler serves DELETE /rules/:id.
func (h *Handler) DeleteRuleHandler(c *fiber.Ctx) error {
	if err := h.Rules.Delete(c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"deleted": c.Params("id")})
}

// ToggleRuleHandler serves POST /rules/:id/toggle.
func (h *Handler) ToggleRuleHandler(c *fiber.Ctx) error {
	enabled, err := h.Rules.Toggle(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"rule_id": c.Params("id"),
		"enabled": enabled,
	})
}

// RuleAuditHandler serves GET /rules/audit.
func (h *Handler) RuleAuditHandler(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"audit": h.Rules.AuditTrail(c.QueryInt("limit", 100)),
	})
}
