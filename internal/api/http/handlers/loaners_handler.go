package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repair-service/internal/api/dto"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/service"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// LoanersHandler exposes the loaner pool.
type LoanersHandler struct {
	service *service.LoanerService
}

// NewLoanersHandler constructs handler.
func NewLoanersHandler(loanerService *service.LoanerService) *LoanersHandler {
	return &LoanersHandler{service: loanerService}
}

// EnrollLoaner POST /loaners.
func (h *LoanersHandler) EnrollLoaner(c *fiber.Ctx) error {
	var req dto.EnrollLoanerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	loaner, err := h.service.Enroll(c.Context(), req.UnitID, req.Notes)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": loanerSummary(loaner)})
}

// ListLoaners GET /loaners.
func (h *LoanersHandler) ListLoaners(c *fiber.Ctx) error {
	var statuses []domain.LoanerStatus
	for _, raw := range splitQuery(c.Query("status")) {
		statuses = append(statuses, domain.LoanerStatus(raw))
	}
	loaners, err := h.service.List(c.Context(), statuses, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	items := make([]dto.LoanerSummary, 0, len(loaners))
	for i := range loaners {
		items = append(items, loanerSummary(&loaners[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetLoaner GET /loaners/:id.
func (h *LoanersHandler) GetLoaner(c *fiber.Ctx) error {
	loaner, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": loanerSummary(loaner)})
}

// SetMaintenance POST /loaners/:id/maintenance.
func (h *LoanersHandler) SetMaintenance(c *fiber.Ctx) error {
	var req dto.LoanerMaintenanceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	loaner, err := h.service.SetMaintenance(c.Context(), c.Params("id"), req.InMaintenance, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": loanerSummary(loaner)})
}

// RetireLoaner POST /loaners/:id/retire.
func (h *LoanersHandler) RetireLoaner(c *fiber.Ctx) error {
	var req dto.RetireLoanerRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	loaner, err := h.service.Retire(c.Context(), c.Params("id"), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": loanerSummary(loaner)})
}

func loanerSummary(loaner *domain.LoanerUnit) dto.LoanerSummary {
	return dto.LoanerSummary{
		ID:              loaner.ID,
		UnitID:          loaner.UnitID,
		Status:          loaner.Status,
		CurrentTicketID: loaner.CurrentTicketID,
		UsageCount:      loaner.UsageCount,
		Notes:           loaner.Notes,
		CreatedAt:       loaner.CreatedAt,
		UpdatedAt:       loaner.UpdatedAt,
	}
}
