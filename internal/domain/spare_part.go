package domain

import "time"

// SparePartStatus enumerates allocation states for stocked parts.
type SparePartStatus string

const (
	PartStatusAvailable SparePartStatus = "AVAILABLE"
	PartStatusReserved  SparePartStatus = "RESERVED"
	PartStatusInUse     SparePartStatus = "IN_USE"
	PartStatusInRepair  SparePartStatus = "IN_REPAIR"
	PartStatusDefective SparePartStatus = "DEFECTIVE"
	PartStatusScrapped  SparePartStatus = "SCRAPPED"
	PartStatusReturned  SparePartStatus = "RETURNED"
)

// PartCondition describes physical condition independent of allocation.
type PartCondition string

const (
	ConditionNew      PartCondition = "NEW"
	ConditionGood     PartCondition = "GOOD"
	ConditionDegraded PartCondition = "DEGRADED"
	ConditionUnusable PartCondition = "UNUSABLE"
)

// SparePart is one physical spare unit of a cataloged part type.
//
// Invariants: ReservedTicketID is non-nil iff Status == RESERVED;
// HostUnitID is non-nil iff Status == IN_USE; at most one of the two
// references is non-nil at a time.
type SparePart struct {
	ID           string
	PartType     string
	Manufacturer string
	Model        string
	Serial       string
	VendorSerial *string
	Status       SparePartStatus
	Condition    PartCondition

	HostUnitID       *string
	ReservedTicketID *string

	// Set while a part is at the vendor for repair.
	CorrespondenceID *string

	WarrantyExpiry *time.Time
	Metadata       map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PartAction captures what an allocator operation did.
type PartAction string

const (
	PartActionCreated        PartAction = "CREATED"
	PartActionReserved       PartAction = "RESERVED"
	PartActionReleased       PartAction = "RELEASED"
	PartActionInstalled      PartAction = "INSTALLED"
	PartActionRemoved        PartAction = "REMOVED"
	PartActionSentToVendor   PartAction = "SENT_TO_VENDOR"
	PartActionVendorReturned PartAction = "VENDOR_RETURNED"
	PartActionScrapped       PartAction = "SCRAPPED"
	PartActionTested         PartAction = "TESTED"
)

// PartHistory is an immutable audit record for one completed allocator
// operation. It is the only audit mechanism for spare parts; failed
// operations do not produce entries.
type PartHistory struct {
	ID           string
	SparePartID  string
	Action       PartAction
	BeforeStatus SparePartStatus
	AfterStatus  SparePartStatus
	TicketID     *string
	ActorID      *string
	Notes        string
	CreatedAt    time.Time
}
