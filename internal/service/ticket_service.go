package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/observability"
	"github.com/spec-kit/repair-service/internal/registry"
	"github.com/spec-kit/repair-service/internal/repository"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// allowedTransitions defines which statuses each operation may start
// from. An operation invoked from any other status is rejected without
// changing the ticket.
var allowedTransitions = map[string][]domain.TicketStatus{
	"start_diagnosis":    {domain.TicketStatusNew},
	"complete_diagnosis": {domain.TicketStatusDiagnosing},
	"reserve_component":  {domain.TicketStatusDiagnosing, domain.TicketStatusWaitingParts},
	"start_repair":       {domain.TicketStatusWaitingParts, domain.TicketStatusRepairing},
	"replace_component":  {domain.TicketStatusRepairing},
	"send_to_vendor":     {domain.TicketStatusRepairing},
	"return_from_vendor": {domain.TicketStatusSentToVendor},
	"resolve":            {domain.TicketStatusRepairing, domain.TicketStatusReturned},
	"close":              {domain.TicketStatusResolved},
}

// loanerEligibleStatuses are the open statuses during which a loaner
// may be attached to a ticket.
var loanerEligibleStatuses = map[domain.TicketStatus]bool{
	domain.TicketStatusDiagnosing:   true,
	domain.TicketStatusWaitingParts: true,
	domain.TicketStatusRepairing:    true,
	domain.TicketStatusSentToVendor: true,
	domain.TicketStatusReturned:     true,
}

// TicketService drives the defect ticket state machine and coordinates
// the allocator, loaner pool and vendor desk around it.
type TicketService struct {
	tickets        repository.TicketRepository
	policies       repository.SlaPolicyRepository
	attachments    repository.AttachmentRepository
	allocator      *AllocationService
	loaners        *LoanerService
	correspondence *CorrespondenceService
	unitRegistry   registry.UnitRegistry
	dispatcher     events.Dispatcher
}

// TicketDependencies bundles collaborators for the ticket engine.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	PolicyRepo     repository.SlaPolicyRepository
	AttachmentRepo repository.AttachmentRepository
	Allocator      *AllocationService
	Loaners        *LoanerService
	Correspondence *CorrespondenceService
	UnitRegistry   registry.UnitRegistry
	Dispatcher     events.Dispatcher
}

// TicketCreateInput describes a newly detected fault.
type TicketCreateInput struct {
	UnitID             string
	ProblemDescription string
	PartType           string
	Priority           domain.TicketPriority
	DetectedAt         *time.Time
	DiagnosticianID    *string
	// Set when the same fault recurred after an earlier repair. The
	// referenced ticket must be resolved or closed and belong to the
	// same unit; the new ticket then opens directly in DIAGNOSING with
	// the earlier findings carried over.
	PreviousTicketID *string
}

// DiagnosisFindings captures what diagnosis established.
type DiagnosisFindings struct {
	PartType              *string
	DefectiveSerial       *string
	DefectiveVendorSerial *string
	Notes                 string
}

// VendorDispatchInput describes sending the defective component out.
type VendorDispatchInput struct {
	ExternalRef      string
	SentSerial       *string
	SentVendorSerial *string
	Notes            string
}

// VendorReturnInput describes what came back from the vendor.
type VendorReturnInput struct {
	CorrespondenceID     *string
	ReceivedSerial       *string
	ReceivedVendorSerial *string
	VendorResponse       string
}

// TicketDetail is a ticket with its related records resolved.
type TicketDetail struct {
	Ticket         *domain.DefectTicket
	ReservedParts  []domain.SparePart
	Loaner         *domain.LoanerUnit
	Correspondence []domain.VendorCorrespondence
	Attachments    []domain.AttachmentReference
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:        deps.TicketRepo,
		policies:       deps.PolicyRepo,
		attachments:    deps.AttachmentRepo,
		allocator:      deps.Allocator,
		loaners:        deps.Loaners,
		correspondence: deps.Correspondence,
		unitRegistry:   deps.UnitRegistry,
		dispatcher:     deps.Dispatcher,
	}
}

// Create opens a defect ticket. The SLA deadline is computed once from
// the matching policy and stored; breach is always derived later, never
// stored.
func (s *TicketService) Create(ctx context.Context, actorID *string, input TicketCreateInput) (*domain.DefectTicket, error) {
	if strings.TrimSpace(input.UnitID) == "" {
		return nil, apperrors.NewValidationError("unit_id required", nil)
	}
	if strings.TrimSpace(input.ProblemDescription) == "" {
		return nil, apperrors.NewValidationError("problem_description required", nil)
	}
	if strings.TrimSpace(input.PartType) == "" {
		return nil, apperrors.NewValidationError("part_type required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	switch priority {
	case domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh, domain.TicketPriorityUrgent:
	default:
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	if s.unitRegistry != nil {
		if _, err := s.unitRegistry.GetUnit(ctx, input.UnitID); err != nil {
			return nil, err
		}
	}

	detectedAt := time.Now()
	if input.DetectedAt != nil {
		detectedAt = *input.DetectedAt
	}

	policy, err := s.policies.Lookup(ctx, input.PartType, priority)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("sla policy",
				map[string]any{"part_type": input.PartType, "priority": priority})
		}
		return nil, apperrors.MapError(err)
	}

	ticket := &domain.DefectTicket{
		UnitID:             strings.TrimSpace(input.UnitID),
		DetectedAt:         detectedAt,
		Status:             domain.TicketStatusNew,
		Priority:           priority,
		ProblemDescription: input.ProblemDescription,
		PartType:           strings.TrimSpace(input.PartType),
		DiagnosticianID:    input.DiagnosticianID,
		SLADeadline:        policy.DeadlineFrom(detectedAt),
	}

	if input.PreviousTicketID != nil {
		if err := s.applyRecurrence(ctx, ticket, *input.PreviousTicketID); err != nil {
			return nil, err
		}
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.EventTicketCreated, actorID, ticket.ID, events.TicketCreatedPayload{
		UnitID:      ticket.UnitID,
		PartType:    ticket.PartType,
		Priority:    ticket.Priority,
		IsRepeated:  ticket.IsRepeated,
		SLADeadline: ticket.SLADeadline,
	})
	return ticket, nil
}

// applyRecurrence validates the back-reference and pre-populates the
// new ticket from the earlier one, skipping the NEW stage.
func (s *TicketService) applyRecurrence(ctx context.Context, ticket *domain.DefectTicket, previousID string) error {
	previous, err := s.getTicket(ctx, previousID)
	if err != nil {
		return err
	}
	if previous.IsOpen() {
		return apperrors.NewPreconditionFailed("previous ticket is still open",
			map[string]any{"previous_ticket_id": previousID, "status": previous.Status})
	}
	if previous.UnitID != ticket.UnitID {
		return apperrors.NewPreconditionFailed("previous ticket belongs to a different unit",
			map[string]any{"previous_ticket_id": previousID})
	}

	now := time.Now()
	ticket.IsRepeated = true
	ticket.PreviousTicketID = &previousID
	ticket.Status = domain.TicketStatusDiagnosing
	ticket.DiagnosisStarted = &now
	// The part that failed again is the one installed last time.
	if ticket.DefectiveSerial == nil {
		ticket.DefectiveSerial = previous.ReplacementSerial
	}
	if ticket.DefectiveVendorSerial == nil {
		ticket.DefectiveVendorSerial = previous.ReplacementVendorSerial
	}
	if ticket.DiagnosticianID == nil {
		ticket.DiagnosticianID = previous.DiagnosticianID
	}
	return nil
}

// StartDiagnosis moves a fresh ticket into diagnosis.
func (s *TicketService) StartDiagnosis(ctx context.Context, actorID *string, ticketID string, diagnosticianID string) (*domain.DefectTicket, error) {
	ticket, err := s.guardedTicket(ctx, ticketID, "start_diagnosis")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	previous := ticket.Status
	ticket.Status = domain.TicketStatusDiagnosing
	ticket.DiagnosisStarted = &now
	if diagnosticianID != "" {
		ticket.DiagnosticianID = &diagnosticianID
	} else if actorID != nil {
		ticket.DiagnosticianID = actorID
	}
	return s.saveTransition(ctx, actorID, ticket, previous, "diagnosis started")
}

// CompleteDiagnosis records findings and moves the ticket to waiting
// for parts.
func (s *TicketService) CompleteDiagnosis(ctx context.Context, actorID *string, ticketID string, findings DiagnosisFindings) (*domain.DefectTicket, error) {
	ticket, err := s.guardedTicket(ctx, ticketID, "complete_diagnosis")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	previous := ticket.Status
	ticket.Status = domain.TicketStatusWaitingParts
	ticket.DiagnosisEnded = &now
	if findings.PartType != nil && *findings.PartType != "" {
		ticket.PartType = *findings.PartType
	}
	if findings.DefectiveSerial != nil {
		ticket.DefectiveSerial = findings.DefectiveSerial
	}
	if findings.DefectiveVendorSerial != nil {
		ticket.DefectiveVendorSerial = findings.DefectiveVendorSerial
	}
	return s.saveTransition(ctx, actorID, ticket, previous, findings.Notes)
}

// ReserveComponent claims a spare part for the ticket and moves it to
// REPAIRING. The part reservation is the contended step; if the ticket
// update fails afterwards the reservation is rolled back.
func (s *TicketService) ReserveComponent(ctx context.Context, actorID *string, ticketID, sparePartID string) (*domain.DefectTicket, error) {
	ticket, err := s.guardedTicket(ctx, ticketID, "reserve_component")
	if err != nil {
		return nil, err
	}

	part, err := s.allocator.Reserve(ctx, actorID, sparePartID, ticketID)
	if err != nil {
		return nil, err
	}
	if part.PartType != ticket.PartType {
		_, _ = s.allocator.Release(ctx, actorID, sparePartID, "part type mismatch")
		return nil, apperrors.NewPreconditionFailed("spare part type does not match the ticket",
			map[string]any{"ticket_part_type": ticket.PartType, "spare_part_type": part.PartType})
	}

	previous := ticket.Status
	ticket.Status = domain.TicketStatusRepairing
	if ticket.RepairStarted == nil {
		now := time.Now()
		ticket.RepairStarted = &now
	}
	updated, err := s.saveTransition(ctx, actorID, ticket, previous, "component reserved")
	if err != nil {
		_, _ = s.allocator.Release(ctx, actorID, sparePartID, "ticket update failed")
		return nil, err
	}
	return updated, nil
}

// StartRepair marks hands-on repair work as started for tickets that
// went to WAITING_PARTS without an allocator reservation.
func (s *TicketService) StartRepair(ctx context.Context, actorID *string, ticketID string) (*domain.DefectTicket, error) {
	ticket, err := s.guardedTicket(ctx, ticketID, "start_repair")
	if err != nil {
		return nil, err
	}
	previous := ticket.Status
	ticket.Status = domain.TicketStatusRepairing
	if ticket.RepairStarted == nil {
		now := time.Now()
		ticket.RepairStarted = &now
	}
	return s.saveTransition(ctx, actorID, ticket, previous, "repair started")
}

// RecordReplacement stores which physical part went into the unit. The
// ticket stays in REPAIRING.
func (s *TicketService) RecordReplacement(ctx context.Context, actorID *string, ticketID string, serial, vendorSerial *string) (*domain.DefectTicket, error) {
	ticket, err := s.guardedTicket(ctx, ticketID, "replace_component")
	if err != nil {
		return nil, err
	}
	if serial == nil && vendorSerial == nil {
		return nil, apperrors.NewValidationError("replacement serial required", nil)
	}
	if serial != nil {
		ticket.ReplacementSerial = serial
	}
	if vendorSerial != nil {
		ticket.ReplacementVendorSerial = vendorSerial
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// SendToVendor dispatches the defective component to the external
// repair desk and opens the matching correspondence.
func (s *TicketService) SendToVendor(ctx context.Context, actorID *string, ticketID string, input VendorDispatchInput) (*domain.DefectTicket, *domain.VendorCorrespondence, error) {
	ticket, err := s.guardedTicket(ctx, ticketID, "send_to_vendor")
	if err != nil {
		return nil, nil, err
	}

	sentSerial := input.SentSerial
	if sentSerial == nil {
		sentSerial = ticket.DefectiveSerial
	}
	sentVendorSerial := input.SentVendorSerial
	if sentVendorSerial == nil {
		sentVendorSerial = ticket.DefectiveVendorSerial
	}
	corr, err := s.correspondence.createRecord(ctx, CorrespondenceCreateInput{
		ExternalRef:      input.ExternalRef,
		TicketID:         &ticket.ID,
		RequestType:      "REPAIR",
		ComponentType:    ticket.PartType,
		SentSerial:       sentSerial,
		SentVendorSerial: sentVendorSerial,
		Notes:            input.Notes,
	})
	if err != nil {
		return nil, nil, err
	}

	previous := ticket.Status
	ticket.Status = domain.TicketStatusSentToVendor
	ticket.VendorSent = true
	updated, err := s.saveTransition(ctx, actorID, ticket, previous, "sent to vendor "+corr.ExternalRef)
	if err != nil {
		return nil, nil, err
	}
	s.correspondence.publishVendorEvent(ctx, events.EventVendorDispatched, actorID, corr)
	return updated, corr, nil
}

// ReturnFromVendor records the component coming back. The received
// serials become the ticket's replacement serials; vendors commonly
// send a different physical part than the one sent in.
func (s *TicketService) ReturnFromVendor(ctx context.Context, actorID *string, ticketID string, input VendorReturnInput) (*domain.DefectTicket, error) {
	ticket, err := s.guardedTicket(ctx, ticketID, "return_from_vendor")
	if err != nil {
		return nil, err
	}

	if input.CorrespondenceID != nil {
		_, err := s.correspondence.RecordVendorReport(ctx, actorID, *input.CorrespondenceID, CorrespondenceUpdateInput{
			RawStatus:            string(domain.CorrespondenceReceived),
			ReceivedSerial:       input.ReceivedSerial,
			ReceivedVendorSerial: input.ReceivedVendorSerial,
			VendorResponse:       input.VendorResponse,
		})
		if err != nil {
			return nil, err
		}
	}

	previous := ticket.Status
	ticket.Status = domain.TicketStatusReturned
	ticket.VendorReceived = true
	if input.ReceivedSerial != nil {
		ticket.ReplacementSerial = input.ReceivedSerial
	}
	if input.ReceivedVendorSerial != nil {
		ticket.ReplacementVendorSerial = input.ReceivedVendorSerial
	}
	return s.saveTransition(ctx, actorID, ticket, previous, "returned from vendor")
}

// IssueLoaner hands a substitute unit out for the duration of the
// repair. At most one loaner per ticket.
func (s *TicketService) IssueLoaner(ctx context.Context, actorID *string, ticketID string, loanerID *string) (*domain.DefectTicket, *domain.LoanerUnit, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if !loanerEligibleStatuses[ticket.Status] {
		observability.InvalidTransitionsTotal.Inc()
		return nil, nil, apperrors.NewInvalidTransition(string(ticket.Status), "issue_loaner", ticketDetails(ticketID))
	}
	if ticket.LoanerUnitID != nil {
		return nil, nil, apperrors.NewPreconditionFailed("ticket already has a loaner",
			map[string]any{"ticket_id": ticketID, "loaner_unit_id": *ticket.LoanerUnitID})
	}

	loaner, err := s.loaners.Issue(ctx, actorID, loanerID, ticketID)
	if err != nil {
		return nil, nil, err
	}
	ticket.LoanerUnitID = &loaner.ID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		_, _ = s.loaners.Return(ctx, actorID, loaner.ID, ticketID)
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, loaner, nil
}

// ReturnLoaner takes the ticket's loaner back into the pool.
func (s *TicketService) ReturnLoaner(ctx context.Context, actorID *string, ticketID string) (*domain.DefectTicket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.LoanerUnitID == nil {
		return nil, apperrors.NewPreconditionFailed("ticket has no loaner", ticketDetails(ticketID))
	}
	if _, err := s.loaners.Return(ctx, actorID, *ticket.LoanerUnitID, ticketID); err != nil {
		return nil, err
	}
	ticket.LoanerUnitID = nil
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// Resolve finishes the repair. Preconditions: no spare part still
// reserved for the ticket and no loaner outstanding. Downtime is the
// span from detection to repair end, in whole minutes.
func (s *TicketService) Resolve(ctx context.Context, actorID *string, ticketID, resolution string) (*domain.DefectTicket, error) {
	ticket, err := s.guardedTicket(ctx, ticketID, "resolve")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resolution) == "" {
		return nil, apperrors.NewValidationError("resolution required", nil)
	}
	if ticket.LoanerUnitID != nil {
		return nil, apperrors.NewPreconditionFailed("loaner must be returned before resolving",
			map[string]any{"ticket_id": ticketID, "loaner_unit_id": *ticket.LoanerUnitID})
	}
	reserved, err := s.allocator.ReservedByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if len(reserved) > 0 {
		return nil, apperrors.NewPreconditionFailed("reserved spare parts must be installed or released before resolving",
			map[string]any{"ticket_id": ticketID, "reserved_count": len(reserved)})
	}

	now := time.Now()
	previous := ticket.Status
	ticket.Status = domain.TicketStatusResolved
	ticket.Resolution = resolution
	ticket.ResolvedAt = &now
	ticket.ResolverID = actorID
	if ticket.RepairEnded == nil {
		ticket.RepairEnded = &now
	}
	downtime := int64(ticket.RepairEnded.Sub(ticket.DetectedAt) / time.Minute)
	ticket.DowntimeMinutes = &downtime
	return s.saveTransition(ctx, actorID, ticket, previous, resolution)
}

// Close archives a resolved ticket. Terminal.
func (s *TicketService) Close(ctx context.Context, actorID *string, ticketID string) (*domain.DefectTicket, error) {
	ticket, err := s.guardedTicket(ctx, ticketID, "close")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	previous := ticket.Status
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &now
	return s.saveTransition(ctx, actorID, ticket, previous, "closed")
}

// Get returns a ticket with its related records.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*TicketDetail, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	detail := &TicketDetail{Ticket: ticket}

	if detail.ReservedParts, err = s.allocator.ReservedByTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	if detail.Loaner, err = s.loaners.FindByTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	if detail.Correspondence, err = s.correspondence.ListByTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	if detail.Attachments, err = s.attachments.ListByTicket(ctx, ticketID); err != nil {
		return nil, apperrors.MapError(err)
	}
	return detail, nil
}

// List returns tickets matching the filter.
func (s *TicketService) List(ctx context.Context, filter repository.TicketFilter) ([]domain.DefectTicket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// Stats aggregates counters across all tickets.
func (s *TicketService) Stats(ctx context.Context) (*repository.TicketStats, error) {
	stats, err := s.tickets.Stats(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return stats, nil
}

// AddAttachment links an externally stored file to a ticket.
func (s *TicketService) AddAttachment(ctx context.Context, actorID *string, ticketID, storageKey, fileName string, sizeBytes int64) (*domain.AttachmentReference, error) {
	if strings.TrimSpace(storageKey) == "" || strings.TrimSpace(fileName) == "" {
		return nil, apperrors.NewValidationError("storage_key and file_name required", nil)
	}
	if _, err := s.getTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	attachment := &domain.AttachmentReference{
		TicketID:   ticketID,
		StorageKey: storageKey,
		FileName:   fileName,
		SizeBytes:  sizeBytes,
		UploaderID: actorID,
	}
	if err := s.attachments.Create(ctx, attachment); err != nil {
		return nil, apperrors.MapError(err)
	}
	return attachment, nil
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.DefectTicket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("defect ticket", ticketDetails(ticketID))
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// guardedTicket loads a ticket and checks the operation against the
// transition table.
func (s *TicketService) guardedTicket(ctx context.Context, ticketID, op string) (*domain.DefectTicket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	for _, status := range allowedTransitions[op] {
		if ticket.Status == status {
			return ticket, nil
		}
	}
	observability.InvalidTransitionsTotal.Inc()
	return nil, apperrors.NewInvalidTransition(string(ticket.Status), op, ticketDetails(ticketID))
}

func (s *TicketService) saveTransition(ctx context.Context, actorID *string, ticket *domain.DefectTicket, previous domain.TicketStatus, comment string) (*domain.DefectTicket, error) {
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if previous != ticket.Status {
		s.publishEvent(ctx, events.EventTicketStatusChanged, actorID, ticket.ID, events.TicketStatusChangedPayload{
			OldStatus: previous,
			NewStatus: ticket.Status,
			Comment:   comment,
		})
	}
	return ticket, nil
}

func (s *TicketService) publishEvent(ctx context.Context, eventType events.EventType, actorID *string, ticketID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	if actorID != nil {
		event.Actor = events.Actor{ID: *actorID}
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func ticketDetails(ticketID string) map[string]any {
	return map[string]any{"ticket_id": ticketID}
}
