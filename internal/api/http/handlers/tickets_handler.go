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

// TicketsHandler exposes the defect ticket lifecycle.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.TicketCreateInput{
		UnitID:             req.UnitID,
		ProblemDescription: req.ProblemDescription,
		PartType:           req.PartType,
		Priority:           req.Priority,
		DetectedAt:         req.DetectedAt,
		DiagnosticianID:    req.DiagnosticianID,
		PreviousTicketID:   req.PreviousTicketID,
	}
	ticket, err := h.service.Create(c.Context(), actor.FromContext(c).ActorRef(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := parseTicketQuery(c)
	tickets, err := h.service.List(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	detail, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// StartDiagnosis POST /tickets/:id/diagnosis/start.
func (h *TicketsHandler) StartDiagnosis(c *fiber.Ctx) error {
	var req dto.StartDiagnosisRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.StartDiagnosis(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.DiagnosticianID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// CompleteDiagnosis POST /tickets/:id/diagnosis/complete.
func (h *TicketsHandler) CompleteDiagnosis(c *fiber.Ctx) error {
	var req dto.CompleteDiagnosisRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.CompleteDiagnosis(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), service.DiagnosisFindings{
		PartType:              req.PartType,
		DefectiveSerial:       req.DefectiveSerial,
		DefectiveVendorSerial: req.DefectiveVendorSerial,
		Notes:                 req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ReserveComponent POST /tickets/:id/reserve.
func (h *TicketsHandler) ReserveComponent(c *fiber.Ctx) error {
	var req dto.ReserveComponentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.SparePartID) == "" {
		return apperrors.NewValidationError("spare_part_id required", nil)
	}
	ticket, err := h.service.ReserveComponent(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.SparePartID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// StartRepair POST /tickets/:id/repair/start.
func (h *TicketsHandler) StartRepair(c *fiber.Ctx) error {
	ticket, err := h.service.StartRepair(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// RecordReplacement POST /tickets/:id/replacement.
func (h *TicketsHandler) RecordReplacement(c *fiber.Ctx) error {
	var req dto.RecordReplacementRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.RecordReplacement(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.Serial, req.VendorSerial)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// SendToVendor POST /tickets/:id/vendor/send.
func (h *TicketsHandler) SendToVendor(c *fiber.Ctx) error {
	var req dto.SendToVendorRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, corr, err := h.service.SendToVendor(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), service.VendorDispatchInput{
		ExternalRef:      req.ExternalRef,
		SentSerial:       req.SentSerial,
		SentVendorSerial: req.SentVendorSerial,
		Notes:            req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"ticket":         ticketSummary(ticket),
		"correspondence": correspondenceSummary(corr),
	}})
}

// ReturnFromVendor POST /tickets/:id/vendor/return.
func (h *TicketsHandler) ReturnFromVendor(c *fiber.Ctx) error {
	var req dto.ReturnFromVendorRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.ReturnFromVendor(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), service.VendorReturnInput{
		CorrespondenceID:     req.CorrespondenceID,
		ReceivedSerial:       req.ReceivedSerial,
		ReceivedVendorSerial: req.ReceivedVendorSerial,
		VendorResponse:       req.VendorResponse,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// IssueLoaner POST /tickets/:id/loaner/issue.
func (h *TicketsHandler) IssueLoaner(c *fiber.Ctx) error {
	var req dto.IssueLoanerRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, loaner, err := h.service.IssueLoaner(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.LoanerUnitID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"ticket": ticketSummary(ticket),
		"loaner": loanerSummary(loaner),
	}})
}

// ReturnLoaner POST /tickets/:id/loaner/return.
func (h *TicketsHandler) ReturnLoaner(c *fiber.Ctx) error {
	ticket, err := h.service.ReturnLoaner(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ResolveTicket POST /tickets/:id/resolve.
func (h *TicketsHandler) ResolveTicket(c *fiber.Ctx) error {
	var req dto.ResolveTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Resolve(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.Resolution)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	ticket, err := h.service.Close(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// AddAttachment POST /tickets/:id/attachments.
func (h *TicketsHandler) AddAttachment(c *fiber.Ctx) error {
	var req dto.AddAttachmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	attachment, err := h.service.AddAttachment(c.Context(), actor.FromContext(c).ActorRef(), c.Params("id"), req.StorageKey, req.FileName, req.SizeBytes)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": attachmentResponse(attachment)})
}

// Stats GET /tickets/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketStatsResponse{
		CountsByStatus:   stats.CountsByStatus,
		CountsByPartType: stats.CountsByPartType,
		RepeatedCount:    stats.RepeatedCount,
		BreachedCount:    stats.BreachedCount,
		AvgRepairMinutes: stats.AvgRepairMinutes,
	}})
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{
		Limit:        c.QueryInt("limit", 20),
		Offset:       c.QueryInt("offset", 0),
		BreachedOnly: c.QueryBool("breached_only", false),
		RepeatedOnly: c.QueryBool("repeated_only", false),
		OpenOnly:     c.QueryBool("open_only", false),
	}
	if unitID := c.Query("unit_id"); unitID != "" {
		filter.UnitID = &unitID
	}
	if partType := c.Query("part_type"); partType != "" {
		filter.PartType = &partType
	}
	if diag := c.Query("diagnostician_id"); diag != "" {
		filter.DiagnosticianID = &diag
	}
	for _, raw := range splitQuery(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(raw))
	}
	for _, raw := range splitQuery(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(raw))
	}
	if from := c.Query("detected_from"); from != "" {
		if parsed, err := time.Parse(time.RFC3339, from); err == nil {
			filter.DetectedFrom = &parsed
		}
	}
	if to := c.Query("detected_to"); to != "" {
		if parsed, err := time.Parse(time.RFC3339, to); err == nil {
			filter.DetectedTo = &parsed
		}
	}
	return filter
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.ToUpper(strings.TrimSpace(part)); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func ticketSummary(ticket *domain.DefectTicket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:          ticket.ID,
		UnitID:      ticket.UnitID,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		PartType:    ticket.PartType,
		DetectedAt:  ticket.DetectedAt,
		SLADeadline: ticket.SLADeadline,
		SLABreached: ticket.SLABreached(time.Now()),
		IsRepeated:  ticket.IsRepeated,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	ticket := detail.Ticket
	resp := dto.TicketDetailResponse{
		ID:                      ticket.ID,
		UnitID:                  ticket.UnitID,
		Status:                  ticket.Status,
		Priority:                ticket.Priority,
		ProblemDescription:      ticket.ProblemDescription,
		PartType:                ticket.PartType,
		DefectiveSerial:         ticket.DefectiveSerial,
		DefectiveVendorSerial:   ticket.DefectiveVendorSerial,
		ReplacementSerial:       ticket.ReplacementSerial,
		ReplacementVendorSerial: ticket.ReplacementVendorSerial,
		DiagnosticianID:         ticket.DiagnosticianID,
		ResolverID:              ticket.ResolverID,
		DetectedAt:              ticket.DetectedAt,
		SLADeadline:             ticket.SLADeadline,
		SLABreached:             ticket.SLABreached(time.Now()),
		DiagnosisStarted:        ticket.DiagnosisStarted,
		DiagnosisEnded:          ticket.DiagnosisEnded,
		RepairStarted:           ticket.RepairStarted,
		RepairEnded:             ticket.RepairEnded,
		ResolvedAt:              ticket.ResolvedAt,
		DowntimeMinutes:         ticket.DowntimeMinutes,
		IsRepeated:              ticket.IsRepeated,
		PreviousTicketID:        ticket.PreviousTicketID,
		LoanerUnitID:            ticket.LoanerUnitID,
		VendorSent:              ticket.VendorSent,
		VendorReceived:          ticket.VendorReceived,
		Resolution:              ticket.Resolution,
		CreatedAt:               ticket.CreatedAt,
		UpdatedAt:               ticket.UpdatedAt,
		ClosedAt:                ticket.ClosedAt,
		ReservedParts:           make([]dto.SparePartSummary, 0, len(detail.ReservedParts)),
		Correspondence:          make([]dto.CorrespondenceSummary, 0, len(detail.Correspondence)),
		Attachments:             make([]dto.AttachmentResponse, 0, len(detail.Attachments)),
	}
	for i := range detail.ReservedParts {
		resp.ReservedParts = append(resp.ReservedParts, sparePartSummary(&detail.ReservedParts[i]))
	}
	if detail.Loaner != nil {
		loaner := loanerSummary(detail.Loaner)
		resp.Loaner = &loaner
	}
	for i := range detail.Correspondence {
		resp.Correspondence = append(resp.Correspondence, correspondenceSummary(&detail.Correspondence[i]))
	}
	for i := range detail.Attachments {
		resp.Attachments = append(resp.Attachments, attachmentResponse(&detail.Attachments[i]))
	}
	return resp
}

func attachmentResponse(attachment *domain.AttachmentReference) dto.AttachmentResponse {
	return dto.AttachmentResponse{
		ID:         attachment.ID,
		TicketID:   attachment.TicketID,
		StorageKey: attachment.StorageKey,
		FileName:   attachment.FileName,
		SizeBytes:  attachment.SizeBytes,
		UploaderID: attachment.UploaderID,
		CreatedAt:  attachment.CreatedAt,
	}
}
