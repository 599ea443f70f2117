package dto

import (
	"time"

	"github.com/spec-kit/repair-service/internal/domain"
)

// ApplyReconciliationRequest payload.
type ApplyReconciliationRequest struct {
	Strategy    domain.MergeStrategy `json:"strategy"`
	PreserveIDs []string             `json:"preserve_ids"`
}

// InstalledComponentResponse response.
type InstalledComponentResponse struct {
	ID           string                 `json:"id"`
	UnitID       string                 `json:"unit_id"`
	Serial       string                 `json:"serial"`
	PartType     string                 `json:"part_type"`
	Model        string                 `json:"model"`
	Firmware     string                 `json:"firmware"`
	Status       string                 `json:"status"`
	Slot         string                 `json:"slot"`
	Source       domain.ComponentSource `json:"source"`
	NeedsReview  bool                   `json:"needs_review"`
	ReviewReason string                 `json:"review_reason,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}
