package domain

import "time"

// SlaPolicy maps (part type, priority) to repair time limits. Reference
// data, read-only from the engine's perspective.
type SlaPolicy struct {
	ID                   string
	PartType             string
	Priority             TicketPriority
	MaxDiagnosisHours    int
	MaxRepairHours       int
	MaxTotalHours        int
	EscalationAfterHours int
}

// DeadlineFrom computes the SLA deadline for a ticket detected at the
// given time. Computed once at creation and stored on the ticket.
func (p SlaPolicy) DeadlineFrom(detectedAt time.Time) time.Time {
	return detectedAt.Add(time.Duration(p.MaxTotalHours) * time.Hour)
}

// EscalationFrom computes the point past which an open ticket should be
// escalated.
func (p SlaPolicy) EscalationFrom(detectedAt time.Time) time.Time {
	return detectedAt.Add(time.Duration(p.EscalationAfterHours) * time.Hour)
}
