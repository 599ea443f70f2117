package worker

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/repository"
)

type stubTicketRepo struct {
	tickets []domain.DefectTicket
}

func (r *stubTicketRepo) Create(context.Context, *domain.DefectTicket) error { return nil }
func (r *stubTicketRepo) Update(context.Context, *domain.DefectTicket) error { return nil }
func (r *stubTicketRepo) GetByID(context.Context, string) (*domain.DefectTicket, error) {
	return nil, pgx.ErrNoRows
}
func (r *stubTicketRepo) Stats(context.Context) (*repository.TicketStats, error) { return nil, nil }

func (r *stubTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.DefectTicket, error) {
	var open []domain.DefectTicket
	for _, ticket := range r.tickets {
		if filter.OpenOnly && !ticket.IsOpen() {
			continue
		}
		open = append(open, ticket)
	}
	return open, nil
}

type stubPolicyRepo struct {
	policy domain.SlaPolicy
}

func (r *stubPolicyRepo) Lookup(context.Context, string, domain.TicketPriority) (*domain.SlaPolicy, error) {
	policy := r.policy
	return &policy, nil
}
func (r *stubPolicyRepo) List(context.Context) ([]domain.SlaPolicy, error) { return nil, nil }

func collectEscalations(dispatcher events.Dispatcher) *[]events.Event {
	var collected []events.Event
	dispatcher.Subscribe(events.EventSLAEscalated, func(_ context.Context, event events.Event) error {
		collected = append(collected, event)
		return nil
	})
	return &collected
}

func TestScanEscalatesPastEscalationPoint(t *testing.T) {
	now := time.Now()
	tickets := &stubTicketRepo{tickets: []domain.DefectTicket{
		{
			ID:          "t-late",
			UnitID:      "unit-1",
			Status:      domain.TicketStatusRepairing,
			Priority:    domain.TicketPriorityHigh,
			PartType:    "DIMM",
			DetectedAt:  now.Add(-50 * time.Hour),
			SLADeadline: now.Add(22 * time.Hour),
		},
		{
			ID:          "t-fresh",
			UnitID:      "unit-2",
			Status:      domain.TicketStatusDiagnosing,
			Priority:    domain.TicketPriorityHigh,
			PartType:    "DIMM",
			DetectedAt:  now.Add(-1 * time.Hour),
			SLADeadline: now.Add(71 * time.Hour),
		},
	}}
	policies := &stubPolicyRepo{policy: domain.SlaPolicy{
		PartType: "*", Priority: domain.TicketPriorityHigh,
		MaxTotalHours: 72, EscalationAfterHours: 48,
	}}
	dispatcher := events.NewInMemoryDispatcher()
	collected := collectEscalations(dispatcher)

	w := NewEscalationWorker(tickets, policies, dispatcher, zap.NewNop(), time.Minute)
	w.scan(context.Background())

	require.Len(t, *collected, 1)
	event := (*collected)[0]
	assert.Equal(t, "t-late", event.TicketID)
	payload, ok := event.Payload.(events.SLAEscalatedPayload)
	require.True(t, ok)
	assert.False(t, payload.Breached)
}

func TestScanRaisesEachStageOnce(t *testing.T) {
	now := time.Now()
	tickets := &stubTicketRepo{tickets: []domain.DefectTicket{
		{
			ID:          "t-1",
			UnitID:      "unit-1",
			Status:      domain.TicketStatusRepairing,
			Priority:    domain.TicketPriorityHigh,
			PartType:    "DIMM",
			DetectedAt:  now.Add(-50 * time.Hour),
			SLADeadline: now.Add(22 * time.Hour),
		},
	}}
	policies := &stubPolicyRepo{policy: domain.SlaPolicy{
		MaxTotalHours: 72, EscalationAfterHours: 48,
	}}
	dispatcher := events.NewInMemoryDispatcher()
	collected := collectEscalations(dispatcher)

	w := NewEscalationWorker(tickets, policies, dispatcher, zap.NewNop(), time.Minute)
	w.scan(context.Background())
	w.scan(context.Background())
	require.Len(t, *collected, 1)

	// Crossing the deadline is a new stage and fires once more.
	tickets.tickets[0].SLADeadline = now.Add(-time.Hour)
	w.scan(context.Background())
	w.scan(context.Background())
	require.Len(t, *collected, 2)
	payload, ok := (*collected)[1].Payload.(events.SLAEscalatedPayload)
	require.True(t, ok)
	assert.True(t, payload.Breached)
}

func TestScanSkipsResolvedTickets(t *testing.T) {
	now := time.Now()
	resolved := now.Add(-time.Hour)
	tickets := &stubTicketRepo{tickets: []domain.DefectTicket{
		{
			ID:          "t-done",
			Status:      domain.TicketStatusResolved,
			Priority:    domain.TicketPriorityHigh,
			PartType:    "DIMM",
			DetectedAt:  now.Add(-200 * time.Hour),
			SLADeadline: now.Add(-100 * time.Hour),
			ResolvedAt:  &resolved,
		},
	}}
	policies := &stubPolicyRepo{policy: domain.SlaPolicy{MaxTotalHours: 72, EscalationAfterHours: 48}}
	dispatcher := events.NewInMemoryDispatcher()
	collected := collectEscalations(dispatcher)

	w := NewEscalationWorker(tickets, policies, dispatcher, zap.NewNop(), time.Minute)
	w.scan(context.Background())
	assert.Empty(t, *collected)
}
