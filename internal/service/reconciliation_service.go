package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/bmc"
	"github.com/spec-kit/repair-service/internal/cache"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/locker"
	"github.com/spec-kit/repair-service/internal/observability"
	"github.com/spec-kit/repair-service/internal/registry"
	"github.com/spec-kit/repair-service/internal/repository"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// ReconciliationService compares a unit's recorded inventory against a
// live read-out and optionally writes the difference back. At most one
// run per unit at a time.
type ReconciliationService struct {
	components   repository.ComponentRepository
	reader       bmc.ComponentReader
	unitRegistry registry.UnitRegistry
	snapshots    cache.SnapshotCache
	locks        locker.UnitLocker
	dispatcher   events.Dispatcher
	logger       *zap.Logger
}

// ReconciliationDependencies bundles collaborators for reconciliation.
type ReconciliationDependencies struct {
	ComponentRepo repository.ComponentRepository
	Reader        bmc.ComponentReader
	UnitRegistry  registry.UnitRegistry
	SnapshotCache cache.SnapshotCache
	UnitLocker    locker.UnitLocker
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
}

// ApplyInput selects how a reconciliation run writes back.
type ApplyInput struct {
	Strategy domain.MergeStrategy
	// Force only: record IDs kept even though the live read-out does not
	// report them. Defaults to records with manual or replacement
	// provenance when nil.
	PreserveIDs []string
}

// NewReconciliationService constructs the service.
func NewReconciliationService(deps ReconciliationDependencies) *ReconciliationService {
	return &ReconciliationService{
		components:   deps.ComponentRepo,
		reader:       deps.Reader,
		unitRegistry: deps.UnitRegistry,
		snapshots:    deps.SnapshotCache,
		locks:        deps.UnitLocker,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
	}
}

// Preview classifies without writing anything. A recent cached
// snapshot is reused when allowed, so operators can inspect drift
// without hammering the management interface.
func (s *ReconciliationService) Preview(ctx context.Context, unitID string, useCache bool) (*domain.ReconciliationReport, error) {
	snapshot, err := s.obtainSnapshot(ctx, unitID, useCache)
	if err != nil {
		return nil, err
	}
	recorded, err := s.components.ListByUnit(ctx, unitID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	report := Classify(unitID, recorded, snapshot.Components)
	observability.ReconciliationRunsTotal.WithLabelValues("preview").Inc()
	return report, nil
}

// Apply runs a reconciliation and writes the result back using the
// chosen strategy. The live read-out is always fresh; a failed read
// aborts before any write. Concurrent runs for the same unit are
// rejected.
func (s *ReconciliationService) Apply(ctx context.Context, actorID *string, unitID string, input ApplyInput) (*domain.ReconciliationReport, error) {
	if input.Strategy != domain.StrategyForce && input.Strategy != domain.StrategyMerge {
		return nil, apperrors.NewValidationError("strategy must be FORCE or MERGE",
			map[string]any{"strategy": input.Strategy})
	}

	acquired, err := s.locks.TryLock(ctx, unitID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !acquired {
		return nil, apperrors.NewReconciliationInProgress(unitID)
	}
	defer func() {
		if err := s.locks.Unlock(ctx, unitID); err != nil {
			s.logger.Warn("reconciliation unlock failed", zap.String("unit_id", unitID), zap.Error(err))
		}
	}()

	snapshot, err := s.readFresh(ctx, unitID)
	if err != nil {
		observability.ReconciliationRunsTotal.WithLabelValues("read_failed").Inc()
		return nil, err
	}
	recorded, err := s.components.ListByUnit(ctx, unitID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	report := Classify(unitID, recorded, snapshot.Components)

	switch input.Strategy {
	case domain.StrategyForce:
		err = s.applyForce(ctx, unitID, report, input.PreserveIDs, snapshot.Components)
	case domain.StrategyMerge:
		err = s.applyMerge(ctx, unitID, report)
	}
	if err != nil {
		observability.ReconciliationRunsTotal.WithLabelValues("write_failed").Inc()
		return nil, apperrors.MapError(err)
	}

	s.snapshots.Invalidate(ctx, unitID)
	observability.ReconciliationRunsTotal.WithLabelValues("applied").Inc()
	s.publishCompleted(ctx, actorID, unitID, input.Strategy, report)
	s.logger.Info("reconciliation applied",
		zap.String("unit_id", unitID),
		zap.String("strategy", string(input.Strategy)),
		zap.Int("matched", len(report.Matched)),
		zap.Int("mismatched", len(report.Mismatched)),
		zap.Int("missing", len(report.Missing)),
		zap.Int("new_in_live", len(report.NewInLive)),
	)
	return report, nil
}

// applyForce rebuilds the unit's records from the live snapshot. Live
// serials already covered by a preserved record are skipped so a rerun
// cannot duplicate them.
func (s *ReconciliationService) applyForce(ctx context.Context, unitID string, report *domain.ReconciliationReport, preserveIDs []string, live []domain.SnapshotComponent) error {
	if preserveIDs == nil {
		for _, missing := range report.Missing {
			if missing.ManualProvenance {
				preserveIDs = append(preserveIDs, missing.Component.ID)
			}
		}
	}
	preserved := make(map[string]bool, len(preserveIDs))
	for _, id := range preserveIDs {
		preserved[id] = true
	}
	preservedSerials := make(map[string]bool)
	for _, missing := range report.Missing {
		if preserved[missing.Component.ID] {
			preservedSerials[missing.Component.Serial] = true
		}
	}
	for _, comp := range report.Matched {
		if preserved[comp.ID] {
			preservedSerials[comp.Serial] = true
		}
	}
	for _, mismatch := range report.Mismatched {
		if preserved[mismatch.Component.ID] {
			preservedSerials[mismatch.Component.Serial] = true
		}
	}

	if preserveIDs == nil {
		preserveIDs = []string{}
	}
	fresh := make([]domain.InstalledComponent, 0, len(live))
	for _, comp := range live {
		if preservedSerials[comp.Serial] {
			continue
		}
		fresh = append(fresh, liveToRecord(unitID, comp))
	}
	return s.components.ForceReplace(ctx, unitID, preserveIDs, fresh)
}

// applyMerge converts the classification into a targeted write set:
// field updates for mismatches, inserts for new-in-live, review flags
// for missing-from-live. Nothing is deleted.
func (s *ReconciliationService) applyMerge(ctx context.Context, unitID string, report *domain.ReconciliationReport) error {
	plan := repository.ComponentMergePlan{}

	for _, mismatch := range report.Mismatched {
		updated := mismatch.Component
		updated.Model = mismatch.Live.Model
		updated.Firmware = mismatch.Live.Firmware
		updated.Status = mismatch.Live.Status
		updated.Slot = mismatch.Live.Slot
		plan.Updates = append(plan.Updates, updated)
	}
	for _, comp := range report.NewInLive {
		plan.Inserts = append(plan.Inserts, liveToRecord(unitID, comp))
	}
	for _, missing := range report.Missing {
		flagged := missing.Component
		flagged.NeedsReview = true
		flagged.ReviewReason = "absent from live read-out"
		plan.Reviews = append(plan.Reviews, flagged)
	}
	return s.components.ApplyMerge(ctx, unitID, plan)
}

// Classify buckets every serial present in either set. A database
// record with an empty serial can never match a live component and
// lands in the missing bucket.
func Classify(unitID string, recorded []domain.InstalledComponent, live []domain.SnapshotComponent) *domain.ReconciliationReport {
	report := &domain.ReconciliationReport{UnitID: unitID}

	liveBySerial := make(map[string]domain.SnapshotComponent, len(live))
	for _, comp := range live {
		liveBySerial[comp.Serial] = comp
	}
	recordedSerials := make(map[string]bool, len(recorded))

	for _, comp := range recorded {
		if comp.Serial != "" {
			recordedSerials[comp.Serial] = true
		}
		liveComp, found := liveBySerial[comp.Serial]
		if comp.Serial == "" || !found {
			report.Missing = append(report.Missing, domain.MissingComponent{
				Component:        comp,
				ManualProvenance: comp.Source == domain.SourceManual || comp.Source == domain.SourceReplacement,
			})
			continue
		}
		diffs := compareFields(comp, liveComp)
		if len(diffs) == 0 {
			report.Matched = append(report.Matched, comp)
		} else {
			report.Mismatched = append(report.Mismatched, domain.MismatchedComponent{
				Component: comp,
				Live:      liveComp,
				Diffs:     diffs,
			})
		}
	}

	for _, comp := range live {
		if !recordedSerials[comp.Serial] {
			report.NewInLive = append(report.NewInLive, comp)
		}
	}
	return report
}

func compareFields(recorded domain.InstalledComponent, live domain.SnapshotComponent) []domain.FieldDiff {
	var diffs []domain.FieldDiff
	check := func(field, dbValue, liveValue string) {
		if dbValue != liveValue {
			diffs = append(diffs, domain.FieldDiff{Field: field, DBValue: dbValue, LiveValue: liveValue})
		}
	}
	check("model", recorded.Model, live.Model)
	check("firmware", recorded.Firmware, live.Firmware)
	check("status", recorded.Status, live.Status)
	check("slot", recorded.Slot, live.Slot)
	return diffs
}

func liveToRecord(unitID string, comp domain.SnapshotComponent) domain.InstalledComponent {
	return domain.InstalledComponent{
		UnitID:   unitID,
		Serial:   comp.Serial,
		PartType: comp.PartType,
		Model:    comp.Model,
		Firmware: comp.Firmware,
		Status:   comp.Status,
		Slot:     comp.Slot,
		Source:   domain.SourceLiveReadout,
	}
}

func (s *ReconciliationService) obtainSnapshot(ctx context.Context, unitID string, useCache bool) (*domain.InventorySnapshot, error) {
	if useCache {
		if snapshot, hit := s.snapshots.Get(ctx, unitID); hit {
			return snapshot, nil
		}
	}
	return s.readFresh(ctx, unitID)
}

func (s *ReconciliationService) readFresh(ctx context.Context, unitID string) (*domain.InventorySnapshot, error) {
	unit, err := s.unitRegistry.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.reader.ReadComponents(ctx, unit.MgmtAddress)
	if err != nil {
		return nil, err
	}
	snapshot.UnitID = unitID
	s.snapshots.Set(ctx, unitID, snapshot)
	return snapshot, nil
}

func (s *ReconciliationService) publishCompleted(ctx context.Context, actorID *string, unitID string, strategy domain.MergeStrategy, report *domain.ReconciliationReport) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventReconciliationCompleted,
		Timestamp: time.Now(),
		Payload: events.ReconciliationCompletedPayload{
			UnitID:     unitID,
			Strategy:   strategy,
			Matched:    len(report.Matched),
			Mismatched: len(report.Mismatched),
			Missing:    len(report.Missing),
			NewInLive:  len(report.NewInLive),
			Applied:    true,
		},
	}
	if actorID != nil {
		event.Actor = events.Actor{ID: *actorID}
	}
	_ = s.dispatcher.Publish(ctx, event)
}
