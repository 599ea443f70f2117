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
	"github.com/spec-kit/repair-service/internal/repository"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// AllocationService owns the lifecycle of individual spare parts held
// in stock. Every completed state change appends a history record in
// the same transaction; failed operations append nothing.
type AllocationService struct {
	parts      repository.SparePartRepository
	history    repository.PartHistoryRepository
	dispatcher events.Dispatcher
}

// AllocationDependencies bundles repositories for the allocator.
type AllocationDependencies struct {
	PartRepo    repository.SparePartRepository
	HistoryRepo repository.PartHistoryRepository
	Dispatcher  events.Dispatcher
}

// PartCreateInput describes stock intake payload.
type PartCreateInput struct {
	PartType       string
	Manufacturer   string
	Model          string
	Serial         string
	VendorSerial   *string
	Condition      domain.PartCondition
	WarrantyExpiry *time.Time
	Metadata       map[string]any
}

// NewAllocationService constructs the service.
func NewAllocationService(deps AllocationDependencies) *AllocationService {
	return &AllocationService{
		parts:      deps.PartRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
	}
}

// CreatePart enters a new spare part into stock.
func (s *AllocationService) CreatePart(ctx context.Context, actorID *string, input PartCreateInput) (*domain.SparePart, error) {
	if strings.TrimSpace(input.PartType) == "" || strings.TrimSpace(input.Serial) == "" {
		return nil, apperrors.NewValidationError("part_type and serial required", nil)
	}
	condition := input.Condition
	if condition == "" {
		condition = domain.ConditionNew
	}
	part := &domain.SparePart{
		PartType:       strings.TrimSpace(input.PartType),
		Manufacturer:   input.Manufacturer,
		Model:          input.Model,
		Serial:         strings.TrimSpace(input.Serial),
		VendorSerial:   input.VendorSerial,
		Status:         domain.PartStatusAvailable,
		Condition:      condition,
		WarrantyExpiry: input.WarrantyExpiry,
		Metadata:       input.Metadata,
	}
	entry := &domain.PartHistory{
		Action:       domain.PartActionCreated,
		BeforeStatus: domain.PartStatusAvailable,
		AfterStatus:  domain.PartStatusAvailable,
		ActorID:      actorID,
		Notes:        "entered into stock",
	}
	if err := s.parts.Create(ctx, part, entry); err != nil {
		return nil, apperrors.MapError(err)
	}
	return part, nil
}

// Reserve claims an AVAILABLE part for a ticket. The status guard is
// evaluated at commit time, so of two racing calls exactly one wins
// and the other observes AlreadyReserved.
func (s *AllocationService) Reserve(ctx context.Context, actorID *string, partID, ticketID string) (*domain.SparePart, error) {
	entry := &domain.PartHistory{
		SparePartID:  partID,
		Action:       domain.PartActionReserved,
		BeforeStatus: domain.PartStatusAvailable,
		AfterStatus:  domain.PartStatusReserved,
		TicketID:     &ticketID,
		ActorID:      actorID,
	}
	if err := s.parts.Reserve(ctx, partID, ticketID, entry); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			observability.ReservationConflictsTotal.Inc()
			return nil, apperrors.NewAlreadyReserved(partID)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("spare part", map[string]any{"spare_part_id": partID})
		}
		return nil, apperrors.MapError(err)
	}

	part, err := s.parts.GetByID(ctx, partID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishAllocationEvent(ctx, events.EventPartReserved, actorID, ticketID, part)
	return part, nil
}

// Release returns a RESERVED part to stock.
func (s *AllocationService) Release(ctx context.Context, actorID *string, partID, notes string) (*domain.SparePart, error) {
	part, err := s.getPart(ctx, partID)
	if err != nil {
		return nil, err
	}
	if part.Status != domain.PartStatusReserved {
		return nil, apperrors.NewInvalidTransition(string(part.Status), "release", partDetails(partID))
	}
	ticketID := part.ReservedTicketID
	before := part.Status
	part.Status = domain.PartStatusAvailable
	part.ReservedTicketID = nil

	entry := s.historyEntry(part, domain.PartActionReleased, before, actorID, notes)
	entry.TicketID = ticketID
	if err := s.transition(ctx, part, []domain.SparePartStatus{domain.PartStatusReserved}, entry, "release"); err != nil {
		return nil, err
	}
	s.publishAllocationEvent(ctx, events.EventPartReleased, actorID, deref(ticketID), part)
	return part, nil
}

// InstallToUnit mounts a part into a unit.
func (s *AllocationService) InstallToUnit(ctx context.Context, actorID *string, partID, unitID string, ticketID *string) (*domain.SparePart, error) {
	if strings.TrimSpace(unitID) == "" {
		return nil, apperrors.NewValidationError("unit_id required", nil)
	}
	part, err := s.getPart(ctx, partID)
	if err != nil {
		return nil, err
	}
	if part.Status != domain.PartStatusReserved && part.Status != domain.PartStatusAvailable {
		return nil, apperrors.NewInvalidTransition(string(part.Status), "install", partDetails(partID))
	}
	before := part.Status
	part.Status = domain.PartStatusInUse
	part.HostUnitID = &unitID
	part.ReservedTicketID = nil

	entry := s.historyEntry(part, domain.PartActionInstalled, before, actorID, "installed to unit "+unitID)
	entry.TicketID = ticketID
	expected := []domain.SparePartStatus{domain.PartStatusReserved, domain.PartStatusAvailable}
	if err := s.transition(ctx, part, expected, entry, "install"); err != nil {
		return nil, err
	}
	s.publishAllocationEvent(ctx, events.EventPartInstalled, actorID, deref(ticketID), part)
	return part, nil
}

// RemoveFromUnit unmounts an IN_USE part. The new status is supplied
// by the caller: AVAILABLE, DEFECTIVE or IN_REPAIR.
func (s *AllocationService) RemoveFromUnit(ctx context.Context, actorID *string, partID, reason string, newStatus domain.SparePartStatus, ticketID *string) (*domain.SparePart, error) {
	switch newStatus {
	case domain.PartStatusAvailable, domain.PartStatusDefective, domain.PartStatusInRepair:
	default:
		return nil, apperrors.NewValidationError("new status must be AVAILABLE, DEFECTIVE or IN_REPAIR", nil)
	}
	part, err := s.getPart(ctx, partID)
	if err != nil {
		return nil, err
	}
	if part.Status != domain.PartStatusInUse {
		return nil, apperrors.NewInvalidTransition(string(part.Status), "remove", partDetails(partID))
	}
	before := part.Status
	part.Status = newStatus
	part.HostUnitID = nil

	entry := s.historyEntry(part, domain.PartActionRemoved, before, actorID, reason)
	entry.TicketID = ticketID
	return part, s.transition(ctx, part, []domain.SparePartStatus{domain.PartStatusInUse}, entry, "remove")
}

// SendToVendorRepair hands a DEFECTIVE or IN_REPAIR part to the vendor
// repair desk, keeping a back-reference to the correspondence.
func (s *AllocationService) SendToVendorRepair(ctx context.Context, actorID *string, partID, correspondenceID string) (*domain.SparePart, error) {
	part, err := s.getPart(ctx, partID)
	if err != nil {
		return nil, err
	}
	if part.Status != domain.PartStatusDefective && part.Status != domain.PartStatusInRepair {
		return nil, apperrors.NewInvalidTransition(string(part.Status), "send_to_vendor", partDetails(partID))
	}
	before := part.Status
	part.Status = domain.PartStatusInRepair
	part.CorrespondenceID = &correspondenceID

	entry := s.historyEntry(part, domain.PartActionSentToVendor, before, actorID, "dispatched for vendor repair")
	expected := []domain.SparePartStatus{domain.PartStatusDefective, domain.PartStatusInRepair}
	return part, s.transition(ctx, part, expected, entry, "send_to_vendor")
}

// ReturnFromVendorRepair takes a part back from the vendor. Condition
// decides whether it returns to stock or gets scrapped.
func (s *AllocationService) ReturnFromVendorRepair(ctx context.Context, actorID *string, partID string, condition domain.PartCondition) (*domain.SparePart, error) {
	part, err := s.getPart(ctx, partID)
	if err != nil {
		return nil, err
	}
	if part.Status != domain.PartStatusInRepair {
		return nil, apperrors.NewInvalidTransition(string(part.Status), "vendor_return", partDetails(partID))
	}
	before := part.Status
	part.Condition = condition
	part.CorrespondenceID = nil
	if condition == domain.ConditionUnusable {
		part.Status = domain.PartStatusScrapped
	} else {
		part.Status = domain.PartStatusAvailable
	}

	entry := s.historyEntry(part, domain.PartActionVendorReturned, before, actorID, "returned from vendor in condition "+string(condition))
	return part, s.transition(ctx, part, []domain.SparePartStatus{domain.PartStatusInRepair}, entry, "vendor_return")
}

// Scrap retires a part permanently. Valid from any state except IN_USE.
func (s *AllocationService) Scrap(ctx context.Context, actorID *string, partID, reason string) (*domain.SparePart, error) {
	part, err := s.getPart(ctx, partID)
	if err != nil {
		return nil, err
	}
	if part.Status == domain.PartStatusInUse {
		return nil, apperrors.NewInvalidTransition(string(part.Status), "scrap", partDetails(partID))
	}
	before := part.Status
	part.Status = domain.PartStatusScrapped
	part.Condition = domain.ConditionUnusable
	part.ReservedTicketID = nil
	part.CorrespondenceID = nil

	entry := s.historyEntry(part, domain.PartActionScrapped, before, actorID, reason)
	expected := []domain.SparePartStatus{
		domain.PartStatusAvailable,
		domain.PartStatusReserved,
		domain.PartStatusInRepair,
		domain.PartStatusDefective,
		domain.PartStatusScrapped,
		domain.PartStatusReturned,
	}
	return part, s.transition(ctx, part, expected, entry, "scrap")
}

// MarkTested records a test outcome without changing allocation state.
func (s *AllocationService) MarkTested(ctx context.Context, actorID *string, partID string, passed bool, notes string) (*domain.SparePart, error) {
	part, err := s.getPart(ctx, partID)
	if err != nil {
		return nil, err
	}
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	if notes != "" {
		outcome = outcome + ": " + notes
	}
	entry := s.historyEntry(part, domain.PartActionTested, part.Status, actorID, "test "+outcome)
	return part, s.transition(ctx, part, []domain.SparePartStatus{part.Status}, entry, "mark_tested")
}

// GetPart fetches one part.
func (s *AllocationService) GetPart(ctx context.Context, partID string) (*domain.SparePart, error) {
	return s.getPart(ctx, partID)
}

// ListParts returns filtered stock.
func (s *AllocationService) ListParts(ctx context.Context, filter repository.SparePartFilter) ([]domain.SparePart, error) {
	parts, err := s.parts.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return parts, nil
}

// ListHistory returns the audit trail for one part.
func (s *AllocationService) ListHistory(ctx context.Context, partID string, limit, offset int) ([]domain.PartHistory, error) {
	if _, err := s.getPart(ctx, partID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByPart(ctx, partID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// ReservedByTicket lists parts still reserved for a ticket.
func (s *AllocationService) ReservedByTicket(ctx context.Context, ticketID string) ([]domain.SparePart, error) {
	parts, err := s.parts.ListReservedByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return parts, nil
}

func (s *AllocationService) getPart(ctx context.Context, partID string) (*domain.SparePart, error) {
	part, err := s.parts.GetByID(ctx, partID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("spare part", map[string]any{"spare_part_id": partID})
		}
		return nil, apperrors.MapError(err)
	}
	return part, nil
}

func (s *AllocationService) transition(ctx context.Context, part *domain.SparePart, expected []domain.SparePartStatus, entry *domain.PartHistory, op string) error {
	if err := s.parts.Transition(ctx, part, expected, entry); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			// Lost a race between read and commit; report the guard failure.
			return apperrors.NewInvalidTransition(string(entry.BeforeStatus), op, partDetails(part.ID))
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("spare part", map[string]any{"spare_part_id": part.ID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

func (s *AllocationService) historyEntry(part *domain.SparePart, action domain.PartAction, before domain.SparePartStatus, actorID *string, notes string) *domain.PartHistory {
	return &domain.PartHistory{
		SparePartID:  part.ID,
		Action:       action,
		BeforeStatus: before,
		AfterStatus:  part.Status,
		ActorID:      actorID,
		Notes:        notes,
	}
}

func (s *AllocationService) publishAllocationEvent(ctx context.Context, eventType events.EventType, actorID *string, ticketID string, part *domain.SparePart) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Timestamp: time.Now(),
		Payload: events.PartAllocationPayload{
			SparePartID: part.ID,
			Serial:      part.Serial,
			NewStatus:   part.Status,
			HostUnitID:  part.HostUnitID,
		},
	}
	if actorID != nil {
		event.Actor = events.Actor{ID: *actorID}
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func partDetails(partID string) map[string]any {
	return map[string]any{"spare_part_id": partID}
}

func deref(val *string) string {
	if val == nil {
		return ""
	}
	return *val
}
