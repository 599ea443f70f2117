package dto

import (
	"time"

	"github.com/spec-kit/repair-service/internal/domain"
)

// EnrollLoanerRequest payload.
type EnrollLoanerRequest struct {
	UnitID string `json:"unit_id"`
	Notes  string `json:"notes"`
}

// LoanerMaintenanceRequest payload.
type LoanerMaintenanceRequest struct {
	InMaintenance bool   `json:"in_maintenance"`
	Notes         string `json:"notes"`
}

// RetireLoanerRequest payload.
type RetireLoanerRequest struct {
	Notes string `json:"notes"`
}

// LoanerSummary response.
type LoanerSummary struct {
	ID              string              `json:"id"`
	UnitID          string              `json:"unit_id"`
	Status          domain.LoanerStatus `json:"status"`
	CurrentTicketID *string             `json:"current_ticket_id"`
	UsageCount      int                 `json:"usage_count"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}
