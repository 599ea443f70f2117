package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repair-service/internal/actor"
	"github.com/spec-kit/repair-service/internal/api/dto"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/service"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// CorrespondenceHandler exposes vendor exchange tracking.
type CorrespondenceHandler struct {
	service *service.CorrespondenceService
}

// NewCorrespondenceHandler constructs handler.
func NewCorrespondenceHandler(correspondenceService *service.CorrespondenceService) *CorrespondenceHandler {
	return &CorrespondenceHandler{service: correspondenceService}
}

// CreateCorrespondence POST /correspondence.
func (h *CorrespondenceHandler) CreateCorrespondence(c *fiber.Ctx) error {
	var req dto.CreateCorrespondenceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	corr, err := h.service.Create(c.Context(), actor.FromContext(c).ActorRef(), service.CorrespondenceCreateInput{
		ExternalRef:      req.ExternalRef,
		TicketID:         req.TicketID,
		RequestType:      req.RequestType,
		ComponentType:    req.ComponentType,
		SentSerial:       req.SentSerial,
		SentVendorSerial: req.SentVendorSerial,
		SentAt:           req.SentAt,
		Notes:            req.Notes,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": correspondenceSummary(corr)})
}

// GetCorrespondence GET /correspondence/:id.
func (h *CorrespondenceHandler) GetCorrespondence(c *fiber.Ctx) error {
	corr, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": correspondenceSummary(corr)})
}

// RecordVendorReport POST /correspondence/:id/report.
func (h *CorrespondenceHandler) RecordVendorReport(c *fiber.Ctx) error {
	var req dto.VendorReportRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	corr, err := h.service.RecordVendorReport(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), service.CorrespondenceUpdateInput{
		RawStatus:            req.Status,
		ReceivedSerial:       req.ReceivedSerial,
		ReceivedVendorSerial: req.ReceivedVendorSerial,
		VendorResponse:       req.VendorResponse,
		Notes:                req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": correspondenceSummary(corr)})
}

// CloseCorrespondence POST /correspondence/:id/close.
func (h *CorrespondenceHandler) CloseCorrespondence(c *fiber.Ctx) error {
	var req dto.CloseCorrespondenceRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	corr, err := h.service.Close(c.Context(), c.Params("id"), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": correspondenceSummary(corr)})
}

func correspondenceSummary(corr *domain.VendorCorrespondence) dto.CorrespondenceSummary {
	return dto.CorrespondenceSummary{
		ID:                   corr.ID,
		ExternalRef:          corr.ExternalRef,
		TicketID:             corr.TicketID,
		RequestType:          corr.RequestType,
		Status:               corr.Status,
		ComponentType:        corr.ComponentType,
		SentSerial:           corr.SentSerial,
		SentVendorSerial:     corr.SentVendorSerial,
		ReceivedSerial:       corr.ReceivedSerial,
		ReceivedVendorSerial: corr.ReceivedVendorSerial,
		SentAt:               corr.SentAt,
		ReceivedAt:           corr.ReceivedAt,
		VendorResponse:       corr.VendorResponse,
		Notes:                corr.Notes,
		CreatedAt:            corr.CreatedAt,
		UpdatedAt:            corr.UpdatedAt,
	}
}
