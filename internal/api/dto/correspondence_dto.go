package dto

import (
	"time"

	"github.com/spec-kit/repair-service/internal/domain"
)

// CreateCorrespondenceRequest payload for a standalone vendor exchange.
type CreateCorrespondenceRequest struct {
	ExternalRef      string     `json:"external_ref"`
	TicketID         *string    `json:"ticket_id"`
	RequestType      string     `json:"request_type"`
	ComponentType    string     `json:"component_type"`
	SentSerial       *string    `json:"sent_serial"`
	SentVendorSerial *string    `json:"sent_vendor_serial"`
	SentAt           *time.Time `json:"sent_at"`
	Notes            string     `json:"notes"`
}

// VendorReportRequest carries a vendor-side status update. Status text
// is free-form; unrecognized values are kept as UNRECOGNIZED.
type VendorReportRequest struct {
	Status               string  `json:"status"`
	ReceivedSerial       *string `json:"received_serial"`
	ReceivedVendorSerial *string `json:"received_vendor_serial"`
	VendorResponse       string  `json:"vendor_response"`
	Notes                *string `json:"notes"`
}

// CloseCorrespondenceRequest payload.
type CloseCorrespondenceRequest struct {
	Notes string `json:"notes"`
}

// CorrespondenceSummary response.
type CorrespondenceSummary struct {
	ID            string                      `json:"id"`
	ExternalRef   string                      `json:"external_ref"`
	TicketID      *string                     `json:"ticket_id"`
	RequestType   string                      `json:"request_type"`
	Status        domain.CorrespondenceStatus `json:"status"`
	ComponentType string                      `json:"component_type"`

	SentSerial           *string `json:"sent_serial"`
	SentVendorSerial     *string `json:"sent_vendor_serial"`
	ReceivedSerial       *string `json:"received_serial"`
	ReceivedVendorSerial *string `json:"received_vendor_serial"`

	SentAt     time.Time  `json:"sent_at"`
	ReceivedAt *time.Time `json:"received_at"`

	VendorResponse string    `json:"vendor_response,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
