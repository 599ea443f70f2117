package dto

import (
	"time"

	"github.com/spec-kit/repair-service/internal/domain"
)

// CreatePartRequest payload for stock intake.
type CreatePartRequest struct {
	PartType       string               `json:"part_type"`
	Manufacturer   string               `json:"manufacturer"`
	Model          string               `json:"model"`
	Serial         string               `json:"serial"`
	VendorSerial   *string              `json:"vendor_serial"`
	Condition      domain.PartCondition `json:"condition"`
	WarrantyExpiry *time.Time           `json:"warranty_expiry"`
	Metadata       map[string]any       `json:"metadata"`
}

// ReservePartRequest payload.
type ReservePartRequest struct {
	TicketID string `json:"ticket_id"`
}

// ReleasePartRequest payload.
type ReleasePartRequest struct {
	Notes string `json:"notes"`
}

// InstallPartRequest payload.
type InstallPartRequest struct {
	UnitID   string  `json:"unit_id"`
	TicketID *string `json:"ticket_id"`
}

// RemovePartRequest payload.
type RemovePartRequest struct {
	Reason    string                 `json:"reason"`
	NewStatus domain.SparePartStatus `json:"new_status"`
	TicketID  *string                `json:"ticket_id"`
}

// SendPartToVendorRequest payload.
type SendPartToVendorRequest struct {
	CorrespondenceID string `json:"correspondence_id"`
}

// PartVendorReturnRequest payload.
type PartVendorReturnRequest struct {
	Condition domain.PartCondition `json:"condition"`
}

// ScrapPartRequest payload.
type ScrapPartRequest struct {
	Reason string `json:"reason"`
}

// MarkTestedRequest payload.
type MarkTestedRequest struct {
	Passed bool   `json:"passed"`
	Notes  string `json:"notes"`
}

// SparePartSummary response.
type SparePartSummary struct {
	ID               string                 `json:"id"`
	PartType         string                 `json:"part_type"`
	Manufacturer     string                 `json:"manufacturer"`
	Model            string                 `json:"model"`
	Serial           string                 `json:"serial"`
	VendorSerial     *string                `json:"vendor_serial"`
	Status           domain.SparePartStatus `json:"status"`
	Condition        domain.PartCondition   `json:"condition"`
	HostUnitID       *string                `json:"host_unit_id"`
	ReservedTicketID *string                `json:"reserved_ticket_id"`
	CorrespondenceID *string                `json:"correspondence_id"`
	WarrantyExpiry   *time.Time             `json:"warranty_expiry"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// PartHistoryResponse response.
type PartHistoryResponse struct {
	ID           string                 `json:"id"`
	SparePartID  string                 `json:"spare_part_id"`
	Action       domain.PartAction      `json:"action"`
	BeforeStatus domain.SparePartStatus `json:"before_status"`
	AfterStatus  domain.SparePartStatus `json:"after_status"`
	TicketID     *string                `json:"ticket_id"`
	ActorID      *string                `json:"actor_id"`
	Notes        string                 `json:"notes,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
