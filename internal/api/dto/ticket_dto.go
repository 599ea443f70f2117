package dto

import (
	"time"

	"github.com/spec-kit/repair-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	UnitID             string                `json:"unit_id"`
	ProblemDescription string                `json:"problem_description"`
	PartType           string                `json:"part_type"`
	Priority           domain.TicketPriority `json:"priority"`
	DetectedAt         *time.Time            `json:"detected_at"`
	DiagnosticianID    *string               `json:"diagnostician_id"`
	PreviousTicketID   *string               `json:"previous_ticket_id"`
}

// StartDiagnosisRequest payload.
type StartDiagnosisRequest struct {
	DiagnosticianID string `json:"diagnostician_id"`
}

// CompleteDiagnosisRequest payload.
type CompleteDiagnosisRequest struct {
	PartType              *string `json:"part_type"`
	DefectiveSerial       *string `json:"defective_serial"`
	DefectiveVendorSerial *string `json:"defective_vendor_serial"`
	Notes                 string  `json:"notes"`
}

// ReserveComponentRequest payload.
type ReserveComponentRequest struct {
	SparePartID string `json:"spare_part_id"`
}

// RecordReplacementRequest payload.
type RecordReplacementRequest struct {
	Serial       *string `json:"serial"`
	VendorSerial *string `json:"vendor_serial"`
}

// SendToVendorRequest payload.
type SendToVendorRequest struct {
	ExternalRef      string  `json:"external_ref"`
	SentSerial       *string `json:"sent_serial"`
	SentVendorSerial *string `json:"sent_vendor_serial"`
	Notes            string  `json:"notes"`
}

// ReturnFromVendorRequest payload.
type ReturnFromVendorRequest struct {
	CorrespondenceID     *string `json:"correspondence_id"`
	ReceivedSerial       *string `json:"received_serial"`
	ReceivedVendorSerial *string `json:"received_vendor_serial"`
	VendorResponse       string  `json:"vendor_response"`
}

// IssueLoanerRequest payload.
type IssueLoanerRequest struct {
	LoanerUnitID *string `json:"loaner_unit_id"`
}

// ResolveTicketRequest payload.
type ResolveTicketRequest struct {
	Resolution string `json:"resolution"`
}

// AddAttachmentRequest payload.
type AddAttachmentRequest struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	SizeBytes  int64  `json:"size_bytes"`
}

// TicketSummary response.
type TicketSummary struct {
	ID          string                `json:"id"`
	UnitID      string                `json:"unit_id"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	PartType    string                `json:"part_type"`
	DetectedAt  time.Time             `json:"detected_at"`
	SLADeadline time.Time             `json:"sla_deadline"`
	SLABreached bool                  `json:"sla_breached"`
	IsRepeated  bool                  `json:"is_repeated"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info with related records.
type TicketDetailResponse struct {
	ID                 string                `json:"id"`
	UnitID             string                `json:"unit_id"`
	Status             domain.TicketStatus   `json:"status"`
	Priority           domain.TicketPriority `json:"priority"`
	ProblemDescription string                `json:"problem_description"`
	PartType           string                `json:"part_type"`

	DefectiveSerial         *string `json:"defective_serial"`
	DefectiveVendorSerial   *string `json:"defective_vendor_serial"`
	ReplacementSerial       *string `json:"replacement_serial"`
	ReplacementVendorSerial *string `json:"replacement_vendor_serial"`

	DiagnosticianID *string `json:"diagnostician_id"`
	ResolverID      *string `json:"resolver_id"`

	DetectedAt       time.Time  `json:"detected_at"`
	SLADeadline      time.Time  `json:"sla_deadline"`
	SLABreached      bool       `json:"sla_breached"`
	DiagnosisStarted *time.Time `json:"diagnosis_started_at"`
	DiagnosisEnded   *time.Time `json:"diagnosis_ended_at"`
	RepairStarted    *time.Time `json:"repair_started_at"`
	RepairEnded      *time.Time `json:"repair_ended_at"`
	ResolvedAt       *time.Time `json:"resolved_at"`
	DowntimeMinutes  *int64     `json:"downtime_minutes"`

	IsRepeated       bool    `json:"is_repeated"`
	PreviousTicketID *string `json:"previous_ticket_id"`
	LoanerUnitID     *string `json:"loaner_unit_id"`

	VendorSent     bool   `json:"vendor_sent"`
	VendorReceived bool   `json:"vendor_received"`
	Resolution     string `json:"resolution,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at"`

	ReservedParts  []SparePartSummary      `json:"reserved_parts"`
	Loaner         *LoanerSummary          `json:"loaner,omitempty"`
	Correspondence []CorrespondenceSummary `json:"correspondence"`
	Attachments    []AttachmentResponse    `json:"attachments"`
}

// AttachmentResponse response.
type AttachmentResponse struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	StorageKey string    `json:"storage_key"`
	FileName   string    `json:"file_name"`
	SizeBytes  int64     `json:"size_bytes"`
	UploaderID *string   `json:"uploader_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TicketStatsResponse aggregates fleet repair counters.
type TicketStatsResponse struct {
	CountsByStatus   map[domain.TicketStatus]int64 `json:"counts_by_status"`
	CountsByPartType map[string]int64              `json:"counts_by_part_type"`
	RepeatedCount    int64                         `json:"repeated_count"`
	BreachedCount    int64                         `json:"breached_count"`
	AvgRepairMinutes *float64                      `json:"avg_repair_minutes"`
}
