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

// LoanerService manages the pool of substitute units handed out while
// a defective unit is under repair.
type LoanerService struct {
	loaners    repository.LoanerRepository
	dispatcher events.Dispatcher
}

// LoanerDependencies bundles repositories for the loaner pool.
type LoanerDependencies struct {
	LoanerRepo repository.LoanerRepository
	Dispatcher events.Dispatcher
}

// NewLoanerService constructs the service.
func NewLoanerService(deps LoanerDependencies) *LoanerService {
	return &LoanerService{loaners: deps.LoanerRepo, dispatcher: deps.Dispatcher}
}

// Enroll adds a unit to the loaner pool.
func (s *LoanerService) Enroll(ctx context.Context, unitID, notes string) (*domain.LoanerUnit, error) {
	if strings.TrimSpace(unitID) == "" {
		return nil, apperrors.NewValidationError("unit_id required", nil)
	}
	loaner := &domain.LoanerUnit{
		UnitID: strings.TrimSpace(unitID),
		Status: domain.LoanerStatusAvailable,
		Notes:  notes,
	}
	if err := s.loaners.Create(ctx, loaner); err != nil {
		return nil, apperrors.MapError(err)
	}
	return loaner, nil
}

// Issue hands a loaner out for a ticket. When no loaner is named, the
// least-used AVAILABLE unit is picked. Two racing calls for the same
// loaner resolve to one winner; the loser sees AlreadyIssued.
func (s *LoanerService) Issue(ctx context.Context, actorID *string, loanerID *string, ticketID string) (*domain.LoanerUnit, error) {
	id, err := s.resolveLoanerID(ctx, loanerID)
	if err != nil {
		return nil, err
	}
	if err := s.loaners.Issue(ctx, id, ticketID); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			observability.ReservationConflictsTotal.Inc()
			return nil, apperrors.NewAlreadyIssued(id)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("loaner unit", map[string]any{"loaner_unit_id": id})
		}
		return nil, apperrors.MapError(err)
	}

	loaner, err := s.getLoaner(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishLoanerEvent(ctx, events.EventLoanerIssued, actorID, ticketID, loaner)
	return loaner, nil
}

// Return takes a loaner back from a ticket and makes it available again.
func (s *LoanerService) Return(ctx context.Context, actorID *string, loanerID, ticketID string) (*domain.LoanerUnit, error) {
	loaner, err := s.getLoaner(ctx, loanerID)
	if err != nil {
		return nil, err
	}
	if loaner.CurrentTicketID == nil || *loaner.CurrentTicketID != ticketID {
		return nil, apperrors.NewPreconditionFailed("loaner is not issued to this ticket",
			map[string]any{"loaner_unit_id": loanerID, "ticket_id": ticketID})
	}
	if err := s.loaners.Return(ctx, loanerID); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, apperrors.NewInvalidTransition(string(loaner.Status), "return",
				map[string]any{"loaner_unit_id": loanerID})
		}
		return nil, apperrors.MapError(err)
	}

	loaner, err = s.getLoaner(ctx, loanerID)
	if err != nil {
		return nil, err
	}
	s.publishLoanerEvent(ctx, events.EventLoanerReturned, actorID, ticketID, loaner)
	return loaner, nil
}

// SetMaintenance moves an AVAILABLE loaner into maintenance, or back.
func (s *LoanerService) SetMaintenance(ctx context.Context, loanerID string, inMaintenance bool, notes string) (*domain.LoanerUnit, error) {
	target := domain.LoanerStatusMaintenance
	expected := []domain.LoanerStatus{domain.LoanerStatusAvailable}
	if !inMaintenance {
		target = domain.LoanerStatusAvailable
		expected = []domain.LoanerStatus{domain.LoanerStatusMaintenance}
	}
	return s.setStatus(ctx, loanerID, target, notes, expected)
}

// Retire removes a loaner from circulation permanently. An IN_USE
// loaner must be returned first.
func (s *LoanerService) Retire(ctx context.Context, loanerID, notes string) (*domain.LoanerUnit, error) {
	expected := []domain.LoanerStatus{domain.LoanerStatusAvailable, domain.LoanerStatusMaintenance}
	return s.setStatus(ctx, loanerID, domain.LoanerStatusRetired, notes, expected)
}

// Get fetches one loaner unit.
func (s *LoanerService) Get(ctx context.Context, loanerID string) (*domain.LoanerUnit, error) {
	return s.getLoaner(ctx, loanerID)
}

// List returns pool units, optionally filtered by status.
func (s *LoanerService) List(ctx context.Context, statuses []domain.LoanerStatus, limit, offset int) ([]domain.LoanerUnit, error) {
	loaners, err := s.loaners.List(ctx, statuses, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return loaners, nil
}

// FindByTicket returns the loaner currently issued to a ticket, or nil.
func (s *LoanerService) FindByTicket(ctx context.Context, ticketID string) (*domain.LoanerUnit, error) {
	loaner, err := s.loaners.FindByTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	return loaner, nil
}

func (s *LoanerService) resolveLoanerID(ctx context.Context, loanerID *string) (string, error) {
	if loanerID != nil && *loanerID != "" {
		return *loanerID, nil
	}
	available, err := s.loaners.List(ctx, []domain.LoanerStatus{domain.LoanerStatusAvailable}, 1, 0)
	if err != nil {
		return "", apperrors.MapError(err)
	}
	if len(available) == 0 {
		return "", apperrors.NewPreconditionFailed("no loaner units available", nil)
	}
	return available[0].ID, nil
}

func (s *LoanerService) setStatus(ctx context.Context, loanerID string, status domain.LoanerStatus, notes string, expected []domain.LoanerStatus) (*domain.LoanerUnit, error) {
	loaner, err := s.getLoaner(ctx, loanerID)
	if err != nil {
		return nil, err
	}
	if err := s.loaners.SetStatus(ctx, loanerID, status, notes, expected); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, apperrors.NewInvalidTransition(string(loaner.Status), string(status),
				map[string]any{"loaner_unit_id": loanerID})
		}
		return nil, apperrors.MapError(err)
	}
	return s.getLoaner(ctx, loanerID)
}

func (s *LoanerService) getLoaner(ctx context.Context, loanerID string) (*domain.LoanerUnit, error) {
	loaner, err := s.loaners.GetByID(ctx, loanerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("loaner unit", map[string]any{"loaner_unit_id": loanerID})
		}
		return nil, apperrors.MapError(err)
	}
	return loaner, nil
}

func (s *LoanerService) publishLoanerEvent(ctx context.Context, eventType events.EventType, actorID *string, ticketID string, loaner *domain.LoanerUnit) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Timestamp: time.Now(),
		Payload: events.LoanerPayload{
			LoanerUnitID: loaner.ID,
			UsageCount:   loaner.UsageCount,
		},
	}
	if actorID != nil {
		event.Actor = events.Actor{ID: *actorID}
	}
	_ = s.dispatcher.Publish(ctx, event)
}
