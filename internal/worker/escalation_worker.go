package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/observability"
	"github.com/spec-kit/repair-service/internal/repository"
)

// EscalationWorker periodically scans open tickets against their SLA
// policies and publishes an escalation event for each ticket past its
// escalation point or deadline. Breach itself is never written to the
// ticket; only the event is emitted.
type EscalationWorker struct {
	tickets    repository.TicketRepository
	policies   repository.SlaPolicyRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	interval   time.Duration

	// Event IDs already raised this process lifetime, keyed by ticket,
	// so a ticket is escalated once per stage rather than every scan.
	raised map[string]bool
}

// NewEscalationWorker constructs the worker.
func NewEscalationWorker(
	tickets repository.TicketRepository,
	policies repository.SlaPolicyRepository,
	dispatcher events.Dispatcher,
	logger *zap.Logger,
	interval time.Duration,
) *EscalationWorker {
	return &EscalationWorker{
		tickets:    tickets,
		policies:   policies,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
		raised:     make(map[string]bool),
	}
}

// Run blocks until the context is canceled, scanning on each tick.
func (w *EscalationWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info("sla escalation worker disabled")
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("sla escalation worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sla escalation worker stopped")
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *EscalationWorker) scan(ctx context.Context) {
	now := time.Now()
	offset := 0
	const pageSize = 200
	for {
		page, err := w.tickets.ListWithFilter(ctx, repository.TicketFilter{
			OpenOnly: true,
			Limit:    pageSize,
			Offset:   offset,
		})
		if err != nil {
			w.logger.Error("sla scan failed", zap.Error(err))
			return
		}
		for i := range page {
			w.check(ctx, &page[i], now)
		}
		if len(page) < pageSize {
			return
		}
		offset += pageSize
	}
}

func (w *EscalationWorker) check(ctx context.Context, ticket *domain.DefectTicket, now time.Time) {
	breached := ticket.SLABreached(now)
	escalate := breached
	if !escalate {
		policy, err := w.policies.Lookup(ctx, ticket.PartType, ticket.Priority)
		if err != nil {
			return
		}
		escalate = now.After(policy.EscalationFrom(ticket.DetectedAt))
	}
	if !escalate {
		return
	}

	key := ticket.ID
	if breached {
		key = ticket.ID + ":breached"
	}
	if w.raised[key] {
		return
	}
	w.raised[key] = true

	observability.SLAEscalationsTotal.Inc()
	w.logger.Warn("sla escalation",
		zap.String("ticket_id", ticket.ID),
		zap.String("unit_id", ticket.UnitID),
		zap.Time("sla_deadline", ticket.SLADeadline),
		zap.Bool("breached", breached),
	)
	_ = w.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSLAEscalated,
		TicketID:  ticket.ID,
		Timestamp: now,
		Payload: events.SLAEscalatedPayload{
			UnitID:      ticket.UnitID,
			SLADeadline: ticket.SLADeadline,
			Breached:    breached,
		},
	})
}
