package domain

import "time"

// ComponentSource records how an installed-component row entered the
// database. Informational only; reconciliation reports it but does not
// branch on it.
type ComponentSource string

const (
	SourceManual      ComponentSource = "MANUAL"
	SourceReplacement ComponentSource = "REPLACEMENT"
	SourceVendorData  ComponentSource = "VENDOR_DATA"
	SourceLiveReadout ComponentSource = "LIVE_READOUT"
)

// InstalledComponent is the database's record of one component mounted
// in a unit, keyed by serial within the unit.
type InstalledComponent struct {
	ID       string
	UnitID   string
	Serial   string
	PartType string
	Model    string
	Firmware string
	Status   string
	Slot     string
	Source   ComponentSource

	// Set by a merge reconciliation when the component was absent from
	// a live read-out; a human decides whether it was really removed.
	NeedsReview  bool
	ReviewReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SnapshotComponent is one component as reported by the unit's own
// management interface.
type SnapshotComponent struct {
	Serial   string `json:"serial"`
	PartType string `json:"part_type"`
	Model    string `json:"model"`
	Firmware string `json:"firmware"`
	Status   string `json:"status"`
	Slot     string `json:"slot"`
}

// InventorySnapshot is a transient point-in-time read-out of a unit's
// installed components. Never persisted as-is.
type InventorySnapshot struct {
	UnitID     string              `json:"unit_id"`
	Address    string              `json:"address"`
	TakenAt    time.Time           `json:"taken_at"`
	Components []SnapshotComponent `json:"components"`
}
