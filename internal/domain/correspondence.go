package domain

import (
	"strings"
	"time"
)

// CorrespondenceStatus enumerates states of a vendor exchange. Vendor
// status reports arrive as free text from outside the system; anything
// not recognized is normalized to UNRECOGNIZED at the boundary.
type CorrespondenceStatus string

const (
	CorrespondenceSent         CorrespondenceStatus = "SENT"
	CorrespondenceInProgress   CorrespondenceStatus = "IN_PROGRESS"
	CorrespondenceCompleted    CorrespondenceStatus = "COMPLETED"
	CorrespondenceReceived     CorrespondenceStatus = "RECEIVED"
	CorrespondenceClosed       CorrespondenceStatus = "CLOSED"
	CorrespondenceUnrecognized CorrespondenceStatus = "UNRECOGNIZED"
)

// ParseCorrespondenceStatus maps untrusted vendor status text onto the
// closed enumeration.
func ParseCorrespondenceStatus(raw string) CorrespondenceStatus {
	switch CorrespondenceStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case CorrespondenceSent:
		return CorrespondenceSent
	case CorrespondenceInProgress:
		return CorrespondenceInProgress
	case CorrespondenceCompleted:
		return CorrespondenceCompleted
	case CorrespondenceReceived:
		return CorrespondenceReceived
	case CorrespondenceClosed:
		return CorrespondenceClosed
	default:
		return CorrespondenceUnrecognized
	}
}

// VendorCorrespondence records one outbound/inbound exchange with the
// external repair desk, tied to zero or one defect ticket.
type VendorCorrespondence struct {
	ID            string
	ExternalRef   string
	TicketID      *string
	RequestType   string
	Status        CorrespondenceStatus
	ComponentType string

	SentSerial           *string
	SentVendorSerial     *string
	ReceivedSerial       *string
	ReceivedVendorSerial *string

	SentAt     time.Time
	ReceivedAt *time.Time

	VendorResponse string
	Notes          string

	CreatedAt time.Time
	UpdatedAt time.Time
}
