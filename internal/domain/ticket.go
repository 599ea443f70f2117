package domain

import "time"

// TicketStatus enumerates lifecycle states for defect tickets.
type TicketStatus string

const (
	TicketStatusNew          TicketStatus = "NEW"
	TicketStatusDiagnosing   TicketStatus = "DIAGNOSING"
	TicketStatusWaitingParts TicketStatus = "WAITING_PARTS"
	TicketStatusRepairing    TicketStatus = "REPAIRING"
	TicketStatusSentToVendor TicketStatus = "SENT_TO_VENDOR"
	TicketStatusReturned     TicketStatus = "RETURNED"
	TicketStatusResolved     TicketStatus = "RESOLVED"
	TicketStatusClosed       TicketStatus = "CLOSED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// DefectTicket is the aggregate tracking one detected hardware fault
// from detection through repair and closure.
type DefectTicket struct {
	ID                 string
	UnitID             string
	DetectedAt         time.Time
	Status             TicketStatus
	Priority           TicketPriority
	ProblemDescription string
	PartType           string

	// Vendor-issued and manufacturer-issued serials are distinct and both kept.
	DefectiveSerial         *string
	DefectiveVendorSerial   *string
	ReplacementSerial       *string
	ReplacementVendorSerial *string

	DiagnosticianID *string
	ResolverID      *string

	SLADeadline      time.Time
	DiagnosisStarted *time.Time
	DiagnosisEnded   *time.Time
	RepairStarted    *time.Time
	RepairEnded      *time.Time
	ResolvedAt       *time.Time
	DowntimeMinutes  *int64

	IsRepeated       bool
	PreviousTicketID *string

	LoanerUnitID *string

	VendorSent     bool
	VendorReceived bool

	Resolution string

	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// IsTerminal reports whether no further transitions are possible.
func (t *DefectTicket) IsTerminal() bool {
	return t.Status == TicketStatusClosed
}

// IsOpen reports whether the ticket is still in the repair pipeline.
func (t *DefectTicket) IsOpen() bool {
	return t.Status != TicketStatusResolved && t.Status != TicketStatusClosed
}

// SLABreached derives breach at read time: open tickets are compared
// against now, resolved tickets against their resolution time. The
// result is never stored.
func (t *DefectTicket) SLABreached(now time.Time) bool {
	if t.ResolvedAt != nil {
		return t.ResolvedAt.After(t.SLADeadline)
	}
	return now.After(t.SLADeadline)
}
