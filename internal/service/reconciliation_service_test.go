package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/cache"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/locker"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

type reconciliationFixture struct {
	components *fakeComponentRepo
	reader     *fakeReader
	locks      locker.UnitLocker
	service    *ReconciliationService
}

func newReconciliationFixture() *reconciliationFixture {
	components := newFakeComponentRepo()
	reader := newFakeReader()
	locks := locker.NewMemoryUnitLocker()
	svc := NewReconciliationService(ReconciliationDependencies{
		ComponentRepo: components,
		Reader:        reader,
		UnitRegistry:  newFakeRegistry(domain.Unit{ID: "unit-1", MgmtAddress: "10.0.0.1"}),
		SnapshotCache: cache.NewMemorySnapshotCache(16, time.Minute),
		UnitLocker:    locks,
		Dispatcher:    events.NewInMemoryDispatcher(),
		Logger:        zap.NewNop(),
	})
	return &reconciliationFixture{components: components, reader: reader, locks: locks, service: svc}
}

func liveComp(serial, model, firmware, status, slot string) domain.SnapshotComponent {
	return domain.SnapshotComponent{
		Serial:   serial,
		PartType: "DIMM",
		Model:    model,
		Firmware: firmware,
		Status:   status,
		Slot:     slot,
	}
}

func dbComp(serial, model, firmware, status, slot string, source domain.ComponentSource) domain.InstalledComponent {
	return domain.InstalledComponent{
		Serial:   serial,
		PartType: "DIMM",
		Model:    model,
		Firmware: firmware,
		Status:   status,
		Slot:     slot,
		Source:   source,
	}
}

func TestClassifyBuckets(t *testing.T) {
	recorded := []domain.InstalledComponent{
		dbComp("SN-A", "M1", "1.0", "OK", "slot-1", domain.SourceLiveReadout),
		dbComp("SN-B", "M1", "1.0", "OK", "slot-2", domain.SourceLiveReadout),
		dbComp("SN-C", "M2", "2.0", "OK", "slot-3", domain.SourceManual),
		dbComp("SN-D", "M2", "2.0", "OK", "slot-4", domain.SourceVendorData),
	}
	live := []domain.SnapshotComponent{
		liveComp("SN-A", "M1", "1.0", "OK", "slot-1"),
		liveComp("SN-B", "M1", "1.1", "DEGRADED", "slot-2"),
		liveComp("SN-E", "M3", "3.0", "OK", "slot-5"),
	}

	report := Classify("unit-1", recorded, live)

	require.Len(t, report.Matched, 1)
	assert.Equal(t, "SN-A", report.Matched[0].Serial)

	require.Len(t, report.Mismatched, 1)
	assert.Equal(t, "SN-B", report.Mismatched[0].Component.Serial)
	fields := make([]string, 0, len(report.Mismatched[0].Diffs))
	for _, diff := range report.Mismatched[0].Diffs {
		fields = append(fields, diff.Field)
	}
	assert.ElementsMatch(t, []string{"firmware", "status"}, fields)

	require.Len(t, report.Missing, 2)
	bySerial := map[string]domain.MissingComponent{}
	for _, missing := range report.Missing {
		bySerial[missing.Component.Serial] = missing
	}
	assert.True(t, bySerial["SN-C"].ManualProvenance)
	assert.False(t, bySerial["SN-D"].ManualProvenance)

	require.Len(t, report.NewInLive, 1)
	assert.Equal(t, "SN-E", report.NewInLive[0].Serial)
}

func TestClassifyEmptySerialNeverMatches(t *testing.T) {
	recorded := []domain.InstalledComponent{
		dbComp("", "M1", "1.0", "OK", "slot-1", domain.SourceManual),
	}
	live := []domain.SnapshotComponent{
		liveComp("SN-A", "M1", "1.0", "OK", "slot-1"),
	}

	report := Classify("unit-1", recorded, live)

	require.Len(t, report.Missing, 1)
	assert.True(t, report.Missing[0].ManualProvenance)
	assert.Len(t, report.NewInLive, 1)
	assert.Empty(t, report.Matched)
}

func TestApplyForcePreservesManualRecordsAndIsRepeatable(t *testing.T) {
	fixture := newReconciliationFixture()
	ctx := context.Background()

	fixture.components.seed("unit-1",
		dbComp("SN-A", "M1", "0.9", "OK", "slot-1", domain.SourceLiveReadout),
		dbComp("SN-MANUAL", "M9", "1.0", "OK", "slot-9", domain.SourceManual),
	)
	fixture.reader.snapshots["10.0.0.1"] = &domain.InventorySnapshot{
		Address: "10.0.0.1",
		Components: []domain.SnapshotComponent{
			liveComp("SN-A", "M1", "1.0", "OK", "slot-1"),
			liveComp("SN-NEW", "M2", "2.0", "OK", "slot-2"),
		},
	}

	report, err := fixture.service.Apply(ctx, strPtr("op-1"), "unit-1", ApplyInput{Strategy: domain.StrategyForce})
	require.NoError(t, err)
	assert.Len(t, report.Mismatched, 1)
	assert.Len(t, report.Missing, 1)

	first, err := fixture.components.ListByUnit(ctx, "unit-1")
	require.NoError(t, err)
	serials := componentSerials(first)
	assert.ElementsMatch(t, []string{"SN-MANUAL", "SN-A", "SN-NEW"}, serials)

	// A second identical run must not duplicate anything.
	_, err = fixture.service.Apply(ctx, strPtr("op-1"), "unit-1", ApplyInput{Strategy: domain.StrategyForce})
	require.NoError(t, err)
	second, err := fixture.components.ListByUnit(ctx, "unit-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, serials, componentSerials(second))
}

func TestApplyMergeUpdatesInsertsAndFlags(t *testing.T) {
	fixture := newReconciliationFixture()
	ctx := context.Background()

	fixture.components.seed("unit-1",
		dbComp("SN-A", "M1", "0.9", "OK", "slot-1", domain.SourceLiveReadout),
		dbComp("SN-GONE", "M2", "2.0", "OK", "slot-2", domain.SourceVendorData),
	)
	fixture.reader.snapshots["10.0.0.1"] = &domain.InventorySnapshot{
		Address: "10.0.0.1",
		Components: []domain.SnapshotComponent{
			liveComp("SN-A", "M1", "1.0", "OK", "slot-1"),
			liveComp("SN-NEW", "M3", "3.0", "OK", "slot-3"),
		},
	}

	_, err := fixture.service.Apply(ctx, nil, "unit-1", ApplyInput{Strategy: domain.StrategyMerge})
	require.NoError(t, err)

	components, err := fixture.components.ListByUnit(ctx, "unit-1")
	require.NoError(t, err)
	require.Len(t, components, 3)

	bySerial := map[string]domain.InstalledComponent{}
	for _, comp := range components {
		bySerial[comp.Serial] = comp
	}
	assert.Equal(t, "1.0", bySerial["SN-A"].Firmware)
	assert.False(t, bySerial["SN-A"].NeedsReview)
	assert.True(t, bySerial["SN-GONE"].NeedsReview)
	assert.Equal(t, "absent from live read-out", bySerial["SN-GONE"].ReviewReason)
	assert.Equal(t, domain.SourceLiveReadout, bySerial["SN-NEW"].Source)
}

func TestApplyAbortsWhenReadFails(t *testing.T) {
	fixture := newReconciliationFixture()
	ctx := context.Background()

	fixture.components.seed("unit-1",
		dbComp("SN-A", "M1", "1.0", "OK", "slot-1", domain.SourceLiveReadout),
	)
	fixture.reader.err = assert.AnError

	_, err := fixture.service.Apply(ctx, nil, "unit-1", ApplyInput{Strategy: domain.StrategyForce})
	require.Error(t, err)

	// Nothing was written.
	components, listErr := fixture.components.ListByUnit(ctx, "unit-1")
	require.NoError(t, listErr)
	require.Len(t, components, 1)
	assert.Equal(t, "SN-A", components[0].Serial)

	// And the lock was released.
	acquired, lockErr := fixture.locks.TryLock(ctx, "unit-1")
	require.NoError(t, lockErr)
	assert.True(t, acquired)
}

func TestApplyRejectsConcurrentRun(t *testing.T) {
	fixture := newReconciliationFixture()
	ctx := context.Background()

	acquired, err := fixture.locks.TryLock(ctx, "unit-1")
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = fixture.service.Apply(ctx, nil, "unit-1", ApplyInput{Strategy: domain.StrategyForce})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeReconciliationInProgress))
}

func TestApplyRejectsUnknownStrategy(t *testing.T) {
	fixture := newReconciliationFixture()

	_, err := fixture.service.Apply(context.Background(), nil, "unit-1", ApplyInput{Strategy: "OVERWRITE"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))
}

func TestPreviewReusesCachedSnapshot(t *testing.T) {
	fixture := newReconciliationFixture()
	ctx := context.Background()

	fixture.reader.snapshots["10.0.0.1"] = &domain.InventorySnapshot{
		Address: "10.0.0.1",
		Components: []domain.SnapshotComponent{
			liveComp("SN-A", "M1", "1.0", "OK", "slot-1"),
		},
	}

	_, err := fixture.service.Preview(ctx, "unit-1", true)
	require.NoError(t, err)
	_, err = fixture.service.Preview(ctx, "unit-1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, fixture.reader.reads)

	_, err = fixture.service.Preview(ctx, "unit-1", false)
	require.NoError(t, err)
	assert.Equal(t, 2, fixture.reader.reads)
}

func componentSerials(components []domain.InstalledComponent) []string {
	serials := make([]string, 0, len(components))
	for _, comp := range components {
		serials = append(serials, comp.Serial)
	}
	return serials
}
