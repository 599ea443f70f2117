package domain

import "time"

// LoanerStatus enumerates states for pool units.
type LoanerStatus string

const (
	LoanerStatusAvailable   LoanerStatus = "AVAILABLE"
	LoanerStatusInUse       LoanerStatus = "IN_USE"
	LoanerStatusMaintenance LoanerStatus = "MAINTENANCE"
	LoanerStatusRetired     LoanerStatus = "RETIRED"
)

// LoanerUnit is a whole substitute unit enrolled in the reserve pool.
// CurrentTicketID is non-nil iff Status == IN_USE.
type LoanerUnit struct {
	ID              string
	UnitID          string
	Status          LoanerStatus
	CurrentTicketID *string
	UsageCount      int
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
