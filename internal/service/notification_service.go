package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/events"
)

// NotificationService forwards domain events to the operations channel.
// Currently that channel is the structured log; the subscription point
// is where a pager or chat hook would attach.
type NotificationService struct {
	logger *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(logger *zap.Logger) *NotificationService {
	return &NotificationService{logger: logger}
}

// Register subscribes to every event type the services publish.
func (s *NotificationService) Register(dispatcher events.Dispatcher) {
	types := []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventPartReserved,
		events.EventPartReleased,
		events.EventPartInstalled,
		events.EventLoanerIssued,
		events.EventLoanerReturned,
		events.EventVendorDispatched,
		events.EventVendorReceived,
		events.EventSLAEscalated,
		events.EventReconciliationCompleted,
	}
	for _, eventType := range types {
		dispatcher.Subscribe(eventType, s.handle)
	}
}

func (s *NotificationService) handle(_ context.Context, event events.Event) error {
	s.logger.Info("domain event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_id", event.Actor.ID),
		zap.Any("payload", event.Payload),
	)
	return nil
}
