package events

import (
	"time"

	"github.com/spec-kit/repair-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated           EventType = "ticket_created"
	EventTicketStatusChanged     EventType = "ticket_status_changed"
	EventPartReserved            EventType = "part_reserved"
	EventPartReleased            EventType = "part_released"
	EventPartInstalled           EventType = "part_installed"
	EventLoanerIssued            EventType = "loaner_issued"
	EventLoanerReturned          EventType = "loaner_returned"
	EventVendorDispatched        EventType = "vendor_dispatched"
	EventVendorReceived          EventType = "vendor_received"
	EventSLAEscalated            EventType = "sla_escalated"
	EventReconciliationCompleted EventType = "reconciliation_completed"
)

// Actor identifies who triggered an event, when known.
type Actor struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	UnitID      string                `json:"unit_id"`
	PartType    string                `json:"part_type"`
	Priority    domain.TicketPriority `json:"priority"`
	IsRepeated  bool                  `json:"is_repeated"`
	SLADeadline time.Time             `json:"sla_deadline"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// PartAllocationPayload covers reserve/release/install events.
type PartAllocationPayload struct {
	SparePartID string                 `json:"spare_part_id"`
	Serial      string                 `json:"serial"`
	NewStatus   domain.SparePartStatus `json:"new_status"`
	HostUnitID  *string                `json:"host_unit_id,omitempty"`
}

// LoanerPayload covers loaner issue/return events.
type LoanerPayload struct {
	LoanerUnitID string `json:"loaner_unit_id"`
	UsageCount   int    `json:"usage_count"`
}

// VendorPayload covers correspondence dispatch/receive events.
type VendorPayload struct {
	CorrespondenceID string                      `json:"correspondence_id"`
	Status           domain.CorrespondenceStatus `json:"status"`
}

// SLAEscalatedPayload payload.
type SLAEscalatedPayload struct {
	UnitID      string    `json:"unit_id"`
	SLADeadline time.Time `json:"sla_deadline"`
	Breached    bool      `json:"breached"`
}

// ReconciliationCompletedPayload payload.
type ReconciliationCompletedPayload struct {
	UnitID     string               `json:"unit_id"`
	Strategy   domain.MergeStrategy `json:"strategy,omitempty"`
	Matched    int                  `json:"matched"`
	Mismatched int                  `json:"mismatched"`
	Missing    int                  `json:"missing_from_live"`
	NewInLive  int                  `json:"new_in_live"`
	Applied    bool                 `json:"applied"`
}
