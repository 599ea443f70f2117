package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repair-service/internal/actor"
	"github.com/spec-kit/repair-service/internal/api/dto"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/repository"
	"github.com/spec-kit/repair-service/internal/service"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// SparePartsHandler exposes allocator endpoints for stocked parts.
type SparePartsHandler struct {
	service *service.AllocationService
}

// NewSparePartsHandler constructs handler.
func NewSparePartsHandler(allocationService *service.AllocationService) *SparePartsHandler {
	return &SparePartsHandler{service: allocationService}
}

// CreatePart POST /parts.
func (h *SparePartsHandler) CreatePart(c *fiber.Ctx) error {
	var req dto.CreatePartRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	part, err := h.service.CreatePart(c.Context(), actor.FromContext(c).ActorRef(), service.PartCreateInput{
		PartType:       req.PartType,
		Manufacturer:   req.Manufacturer,
		Model:          req.Model,
		Serial:         req.Serial,
		VendorSerial:   req.VendorSerial,
		Condition:      req.Condition,
		WarrantyExpiry: req.WarrantyExpiry,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": sparePartSummary(part)})
}

// ListParts GET /parts.
func (h *SparePartsHandler) ListParts(c *fiber.Ctx) error {
	filter := repository.SparePartFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if partType := c.Query("part_type"); partType != "" {
		filter.PartType = &partType
	}
	for _, raw := range splitQuery(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.SparePartStatus(raw))
	}
	if raw := c.Query("condition"); raw != "" {
		condition := domain.PartCondition(strings.ToUpper(raw))
		filter.Condition = &condition
	}
	if hostUnitID := c.Query("host_unit_id"); hostUnitID != "" {
		filter.HostUnitID = &hostUnitID
	}
	if raw := c.Query("warranty_before"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.WarrantyBefore = &parsed
		}
	}

	parts, err := h.service.ListParts(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.SparePartSummary, 0, len(parts))
	for i := range parts {
		items = append(items, sparePartSummary(&parts[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetPart GET /parts/:id.
func (h *SparePartsHandler) GetPart(c *fiber.Ctx) error {
	part, err := h.service.GetPart(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sparePartSummary(part)})
}

// GetHistory GET /parts/:id/history.
func (h *SparePartsHandler) GetHistory(c *fiber.Ctx) error {
	entries, err := h.service.ListHistory(c.Context(), c.Params("id"), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	items := make([]dto.PartHistoryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, partHistoryResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ReservePart POST /parts/:id/reserve.
func (h *SparePartsHandler) ReservePart(c *fiber.Ctx) error {
	var req dto.ReservePartRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.TicketID) == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	part, err := h.service.Reserve(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.TicketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sparePartSummary(part)})
}

// ReleasePart POST /parts/:id/release.
func (h *SparePartsHandler) ReleasePart(c *fiber.Ctx) error {
	var req dto.ReleasePartRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	part, err := h.service.Release(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sparePartSummary(part)})
}

// InstallPart POST /parts/:id/install.
func (h *SparePartsHandler) InstallPart(c *fiber.Ctx) error {
	var req dto.InstallPartRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	part, err := h.service.InstallToUnit(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.UnitID, req.TicketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sparePartSummary(part)})
}

// RemovePart POST /parts/:id/remove.
func (h *SparePartsHandler) RemovePart(c *fiber.Ctx) error {
	var req dto.RemovePartRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	part, err := h.service.RemoveFromUnit(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.Reason, req.NewStatus, req.TicketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sparePartSummary(part)})
}

// SendPartToVendor POST /parts/:id/vendor/send.
func (h *SparePartsHandler) SendPartToVendor(c *fiber.Ctx) error {
	var req dto.SendPartToVendorRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.CorrespondenceID) == "" {
		return apperrors.NewValidationError("correspondence_id required", nil)
	}
	part, err := h.service.SendToVendorRepair(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.CorrespondenceID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sparePartSummary(part)})
}

// ReturnPartFromVendor POST /parts/:id/vendor/return.
func (h *SparePartsHandler) ReturnPartFromVendor(c *fiber.Ctx) error {
	var req dto.PartVendorReturnRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Condition == "" {
		return apperrors.NewValidationError("condition required", nil)
	}
	part, err := h.service.ReturnFromVendorRepair(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.Condition)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sparePartSummary(part)})
}

// ScrapPart POST /parts/:id/scrap.
func (h *SparePartsHandler) ScrapPart(c *fiber.Ctx) error {
	var req dto.ScrapPartRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	part, err := h.service.Scrap(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sparePartSummary(part)})
}

// MarkTested POST /parts/:id/tested.
func (h *SparePartsHandler) MarkTested(c *fiber.Ctx) error {
	var req dto.MarkTestedRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	part, err := h.service.MarkTested(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.Passed, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sparePartSummary(part)})
}

func sparePartSummary(part *domain.SparePart) dto.SparePartSummary {
	return dto.SparePartSummary{
		ID:               part.ID,
		PartType:         part.PartType,
		Manufacturer:     part.Manufacturer,
		Model:            part.Model,
		Serial:           part.Serial,
		VendorSerial:     part.VendorSerial,
		Status:           part.Status,
		Condition:        part.Condition,
		HostUnitID:       part.HostUnitID,
		ReservedTicketID: part.ReservedTicketID,
		CorrespondenceID: part.CorrespondenceID,
		WarrantyExpiry:   part.WarrantyExpiry,
		CreatedAt:        part.CreatedAt,
		UpdatedAt:        part.UpdatedAt,
	}
}

func partHistoryResponse(entry *domain.PartHistory) dto.PartHistoryResponse {
	return dto.PartHistoryResponse{
		ID:           entry.ID,
		SparePartID:  entry.SparePartID,
		Action:       entry.Action,
		BeforeStatus: entry.BeforeStatus,
		AfterStatus:  entry.AfterStatus,
		TicketID:     entry.TicketID,
		ActorID:      entry.ActorID,
		Notes:        entry.Notes,
		CreatedAt:    entry.CreatedAt,
	}
}
