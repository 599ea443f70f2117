package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repair-service/internal/actor"
	"github.com/spec-kit/repair-service/internal/api/dto"
	"github.com/spec-kit/repair-service/internal/service"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// ReconciliationHandler exposes inventory reconciliation per unit.
type ReconciliationHandler struct {
	service *service.ReconciliationService
}

// NewReconciliationHandler constructs handler.
func NewReconciliationHandler(reconciliationService *service.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{service: reconciliationService}
}

// Preview GET /units/:id/reconciliation.
func (h *ReconciliationHandler) Preview(c *fiber.Ctx) error {
	useCache := c.QueryBool("use_cache", true)
	report, err := h.service.Preview(c.Context(), c.Params("id"), useCache)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Apply POST /units/:id/reconciliation.
func (h *ReconciliationHandler) Apply(c *fiber.Ctx) error {
	var req dto.ApplyReconciliationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	report, err := h.service.Apply(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), service.ApplyInput{
		Strategy:    req.Strategy,
		PreserveIDs: req.PreserveIDs,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}
