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
	"github.com/spec-kit/repair-service/internal/repository"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// CorrespondenceService tracks exchanges with the external vendor
// repair desk. Exchanges may stand alone (warranty claims, stock
// returns) or be linked to a defect ticket.
type CorrespondenceService struct {
	correspondence repository.CorrespondenceRepository
	tickets        repository.TicketRepository
	dispatcher     events.Dispatcher
}

// CorrespondenceDependencies bundles repositories for vendor tracking.
type CorrespondenceDependencies struct {
	CorrespondenceRepo repository.CorrespondenceRepository
	TicketRepo         repository.TicketRepository
	Dispatcher         events.Dispatcher
}

// CorrespondenceCreateInput describes an outbound vendor dispatch.
type CorrespondenceCreateInput struct {
	ExternalRef      string
	TicketID         *string
	RequestType      string
	ComponentType    string
	SentSerial       *string
	SentVendorSerial *string
	SentAt           *time.Time
	Notes            string
}

// CorrespondenceUpdateInput carries a vendor-side status report.
type CorrespondenceUpdateInput struct {
	RawStatus            string
	ReceivedSerial       *string
	ReceivedVendorSerial *string
	VendorResponse       string
	Notes                *string
}

// NewCorrespondenceService constructs the service.
func NewCorrespondenceService(deps CorrespondenceDependencies) *CorrespondenceService {
	return &CorrespondenceService{
		correspondence: deps.CorrespondenceRepo,
		tickets:        deps.TicketRepo,
		dispatcher:     deps.Dispatcher,
	}
}

// Create opens a vendor exchange. When the exchange is linked to a
// ticket, the ticket's vendor dispatch flag is set as well.
func (s *CorrespondenceService) Create(ctx context.Context, actorID *string, input CorrespondenceCreateInput) (*domain.VendorCorrespondence, error) {
	corr, err := s.createRecord(ctx, input)
	if err != nil {
		return nil, err
	}

	if input.TicketID != nil {
		ticket, err := s.tickets.GetByID(ctx, *input.TicketID)
		if err == nil && !ticket.VendorSent {
			ticket.VendorSent = true
			_ = s.tickets.Update(ctx, ticket)
		}
	}

	s.publishVendorEvent(ctx, events.EventVendorDispatched, actorID, corr)
	return corr, nil
}

// createRecord inserts the correspondence row without touching any
// linked ticket. The ticket service uses it while it holds the ticket
// itself.
func (s *CorrespondenceService) createRecord(ctx context.Context, input CorrespondenceCreateInput) (*domain.VendorCorrespondence, error) {
	if strings.TrimSpace(input.ExternalRef) == "" {
		return nil, apperrors.NewValidationError("external_ref required", nil)
	}
	if strings.TrimSpace(input.ComponentType) == "" {
		return nil, apperrors.NewValidationError("component_type required", nil)
	}
	sentAt := time.Now()
	if input.SentAt != nil {
		sentAt = *input.SentAt
	}
	requestType := input.RequestType
	if requestType == "" {
		requestType = "REPAIR"
	}
	corr := &domain.VendorCorrespondence{
		ExternalRef:      strings.TrimSpace(input.ExternalRef),
		TicketID:         input.TicketID,
		RequestType:      requestType,
		Status:           domain.CorrespondenceSent,
		ComponentType:    strings.TrimSpace(input.ComponentType),
		SentSerial:       input.SentSerial,
		SentVendorSerial: input.SentVendorSerial,
		SentAt:           sentAt,
		Notes:            input.Notes,
	}
	if err := s.correspondence.Create(ctx, corr); err != nil {
		return nil, apperrors.MapError(err)
	}
	return corr, nil
}

// RecordVendorReport applies a vendor status report to an exchange.
// Unknown status text is kept as UNRECOGNIZED rather than rejected so
// the exchange history stays complete.
func (s *CorrespondenceService) RecordVendorReport(ctx context.Context, actorID *string, corrID string, input CorrespondenceUpdateInput) (*domain.VendorCorrespondence, error) {
	corr, err := s.getCorrespondence(ctx, corrID)
	if err != nil {
		return nil, err
	}
	if corr.Status == domain.CorrespondenceClosed {
		return nil, apperrors.NewInvalidTransition(string(corr.Status), "record_vendor_report",
			map[string]any{"correspondence_id": corrID})
	}

	status := domain.ParseCorrespondenceStatus(input.RawStatus)
	corr.Status = status
	if input.ReceivedSerial != nil {
		corr.ReceivedSerial = input.ReceivedSerial
	}
	if input.ReceivedVendorSerial != nil {
		corr.ReceivedVendorSerial = input.ReceivedVendorSerial
	}
	if input.VendorResponse != "" {
		corr.VendorResponse = input.VendorResponse
	}
	if input.Notes != nil {
		corr.Notes = *input.Notes
	}
	if status == domain.CorrespondenceReceived && corr.ReceivedAt == nil {
		now := time.Now()
		corr.ReceivedAt = &now
	}

	if err := s.correspondence.Update(ctx, corr); err != nil {
		return nil, apperrors.MapError(err)
	}
	if status == domain.CorrespondenceReceived {
		s.propagateReceivedSerials(ctx, corr)
		s.publishVendorEvent(ctx, events.EventVendorReceived, actorID, corr)
	}
	return corr, nil
}

// propagateReceivedSerials copies the serials that came back from the
// vendor onto the linked ticket. Vendors commonly return a different
// physical part than the one sent in, so the received serials become
// the ticket's replacement serials. Best effort; the correspondence
// record is the source of truth either way.
func (s *CorrespondenceService) propagateReceivedSerials(ctx context.Context, corr *domain.VendorCorrespondence) {
	if corr.TicketID == nil {
		return
	}
	ticket, err := s.tickets.GetByID(ctx, *corr.TicketID)
	if err != nil {
		return
	}
	if corr.ReceivedSerial != nil {
		ticket.ReplacementSerial = corr.ReceivedSerial
	}
	if corr.ReceivedVendorSerial != nil {
		ticket.ReplacementVendorSerial = corr.ReceivedVendorSerial
	}
	ticket.VendorReceived = true
	_ = s.tickets.Update(ctx, ticket)
}

// Close finishes an exchange after bookkeeping is done.
func (s *CorrespondenceService) Close(ctx context.Context, corrID, notes string) (*domain.VendorCorrespondence, error) {
	corr, err := s.getCorrespondence(ctx, corrID)
	if err != nil {
		return nil, err
	}
	if corr.Status == domain.CorrespondenceClosed {
		return corr, nil
	}
	corr.Status = domain.CorrespondenceClosed
	if notes != "" {
		corr.Notes = notes
	}
	if err := s.correspondence.Update(ctx, corr); err != nil {
		return nil, apperrors.MapError(err)
	}
	return corr, nil
}

// Get fetches one exchange.
func (s *CorrespondenceService) Get(ctx context.Context, corrID string) (*domain.VendorCorrespondence, error) {
	return s.getCorrespondence(ctx, corrID)
}

// ListByTicket returns the exchanges linked to a ticket, oldest first.
func (s *CorrespondenceService) ListByTicket(ctx context.Context, ticketID string) ([]domain.VendorCorrespondence, error) {
	result, err := s.correspondence.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

func (s *CorrespondenceService) getCorrespondence(ctx context.Context, corrID string) (*domain.VendorCorrespondence, error) {
	corr, err := s.correspondence.GetByID(ctx, corrID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("vendor correspondence", map[string]any{"correspondence_id": corrID})
		}
		return nil, apperrors.MapError(err)
	}
	return corr, nil
}

func (s *CorrespondenceService) publishVendorEvent(ctx context.Context, eventType events.EventType, actorID *string, corr *domain.VendorCorrespondence) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Payload: events.VendorPayload{
			CorrespondenceID: corr.ID,
			Status:           corr.Status,
		},
	}
	if corr.TicketID != nil {
		event.TicketID = *corr.TicketID
	}
	if actorID != nil {
		event.Actor = events.Actor{ID: *actorID}
	}
	_ = s.dispatcher.Publish(ctx, event)
}
