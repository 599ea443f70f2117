package domain

// MergeStrategy selects how a reconciliation run writes back. Mutually
// exclusive per invocation.
type MergeStrategy string

const (
	// StrategyForce replaces the unit's records with the live read-out,
	// keeping only records the caller asked to preserve. Idempotent.
	StrategyForce MergeStrategy = "FORCE"
	// StrategyMerge applies targeted field updates and inserts; records
	// missing from the live read-out are flagged, never deleted.
	StrategyMerge MergeStrategy = "MERGE"
)

// FieldDiff is one divergent field between the database record and the
// live read-out.
type FieldDiff struct {
	Field     string `json:"field"`
	DBValue   string `json:"db_value"`
	LiveValue string `json:"live_value"`
}

// MismatchedComponent pairs a database record with its live counterpart
// and the fields that differ.
type MismatchedComponent struct {
	Component InstalledComponent `json:"component"`
	Live      SnapshotComponent  `json:"live"`
	Diffs     []FieldDiff        `json:"diffs"`
}

// MissingComponent is a database record whose serial was absent from
// the live read-out.
type MissingComponent struct {
	Component InstalledComponent `json:"component"`
	// True when the record was entered manually or through a
	// replacement, as opposed to vendor-sourced data.
	ManualProvenance bool `json:"manual_provenance"`
}

// ReconciliationReport is the three-way classification of a unit's
// recorded inventory against a live snapshot. Every serial present in
// either set appears in exactly one bucket.
type ReconciliationReport struct {
	UnitID     string                `json:"unit_id"`
	Matched    []InstalledComponent  `json:"matched"`
	Mismatched []MismatchedComponent `json:"mismatched"`
	Missing    []MissingComponent    `json:"missing_from_live"`
	NewInLive  []SnapshotComponent   `json:"new_in_live"`
}
