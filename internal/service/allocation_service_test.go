package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

func newAllocationFixture() (*AllocationService, *fakePartRepo) {
	parts := newFakePartRepo()
	svc := NewAllocationService(AllocationDependencies{
		PartRepo:    parts,
		HistoryRepo: parts,
		Dispatcher:  events.NewInMemoryDispatcher(),
	})
	return svc, parts
}

func createAvailablePart(t *testing.T, svc *AllocationService, serial string) *domain.SparePart {
	t.Helper()
	part, err := svc.CreatePart(context.Background(), strPtr("storekeeper"), PartCreateInput{
		PartType: "DIMM",
		Serial:   serial,
	})
	require.NoError(t, err)
	require.Equal(t, domain.PartStatusAvailable, part.Status)
	return part
}

func TestReserveIsExclusive(t *testing.T) {
	svc, _ := newAllocationFixture()
	part := createAvailablePart(t, svc, "SN-0001")

	const racers = 16
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Reserve(context.Background(), nil, part.ID, fmt.Sprintf("ticket-%d", i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyReserved), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, winners)
}

func TestReserveUnknownPart(t *testing.T) {
	svc, _ := newAllocationFixture()

	_, err := svc.Reserve(context.Background(), nil, "no-such-part", "ticket-1")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestReleaseRequiresReservation(t *testing.T) {
	svc, _ := newAllocationFixture()
	part := createAvailablePart(t, svc, "SN-0002")

	_, err := svc.Release(context.Background(), nil, part.ID, "oops")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))

	_, err = svc.Reserve(context.Background(), nil, part.ID, "ticket-1")
	require.NoError(t, err)
	released, err := svc.Release(context.Background(), nil, part.ID, "repair cancelled")
	require.NoError(t, err)
	assert.Equal(t, domain.PartStatusAvailable, released.Status)
	assert.Nil(t, released.ReservedTicketID)
}

func TestInstallClearsReservation(t *testing.T) {
	svc, _ := newAllocationFixture()
	part := createAvailablePart(t, svc, "SN-0003")

	_, err := svc.Reserve(context.Background(), nil, part.ID, "ticket-1")
	require.NoError(t, err)

	ticketID := "ticket-1"
	installed, err := svc.InstallToUnit(context.Background(), nil, part.ID, "unit-9", &ticketID)
	require.NoError(t, err)
	assert.Equal(t, domain.PartStatusInUse, installed.Status)
	assert.Nil(t, installed.ReservedTicketID)
	require.NotNil(t, installed.HostUnitID)
	assert.Equal(t, "unit-9", *installed.HostUnitID)
}

func TestScrapRejectedWhileInstalled(t *testing.T) {
	svc, _ := newAllocationFixture()
	part := createAvailablePart(t, svc, "SN-0004")

	_, err := svc.InstallToUnit(context.Background(), nil, part.ID, "unit-9", nil)
	require.NoError(t, err)

	_, err = svc.Scrap(context.Background(), nil, part.ID, "rusty")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))

	removed, err := svc.RemoveFromUnit(context.Background(), nil, part.ID, "pulled during decommission", domain.PartStatusDefective, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PartStatusDefective, removed.Status)
	assert.Nil(t, removed.HostUnitID)

	scrapped, err := svc.Scrap(context.Background(), nil, part.ID, "beyond repair")
	require.NoError(t, err)
	assert.Equal(t, domain.PartStatusScrapped, scrapped.Status)
	assert.Equal(t, domain.ConditionUnusable, scrapped.Condition)
}

func TestVendorRepairRoundTrip(t *testing.T) {
	svc, _ := newAllocationFixture()
	ctx := context.Background()
	part := createAvailablePart(t, svc, "SN-0005")

	_, err := svc.InstallToUnit(ctx, nil, part.ID, "unit-9", nil)
	require.NoError(t, err)
	_, err = svc.RemoveFromUnit(ctx, nil, part.ID, "failed self test", domain.PartStatusDefective, nil)
	require.NoError(t, err)

	sent, err := svc.SendToVendorRepair(ctx, nil, part.ID, "corr-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PartStatusInRepair, sent.Status)
	require.NotNil(t, sent.CorrespondenceID)
	assert.Equal(t, "corr-1", *sent.CorrespondenceID)

	back, err := svc.ReturnFromVendorRepair(ctx, nil, part.ID, domain.ConditionGood)
	require.NoError(t, err)
	assert.Equal(t, domain.PartStatusAvailable, back.Status)
	assert.Nil(t, back.CorrespondenceID)
}

func TestVendorReturnUnusableScraps(t *testing.T) {
	svc, _ := newAllocationFixture()
	ctx := context.Background()
	part := createAvailablePart(t, svc, "SN-0006")

	_, err := svc.InstallToUnit(ctx, nil, part.ID, "unit-9", nil)
	require.NoError(t, err)
	_, err = svc.RemoveFromUnit(ctx, nil, part.ID, "dead", domain.PartStatusDefective, nil)
	require.NoError(t, err)
	_, err = svc.SendToVendorRepair(ctx, nil, part.ID, "corr-2")
	require.NoError(t, err)

	back, err := svc.ReturnFromVendorRepair(ctx, nil, part.ID, domain.ConditionUnusable)
	require.NoError(t, err)
	assert.Equal(t, domain.PartStatusScrapped, back.Status)
	assert.Equal(t, domain.ConditionUnusable, back.Condition)
}

func TestMarkTestedKeepsStatus(t *testing.T) {
	svc, _ := newAllocationFixture()
	part := createAvailablePart(t, svc, "SN-0007")

	tested, err := svc.MarkTested(context.Background(), strPtr("tech-2"), part.ID, true, "burn-in passed")
	require.NoError(t, err)
	assert.Equal(t, domain.PartStatusAvailable, tested.Status)
}

func TestHistoryRecordsCompletedOperationsOnly(t *testing.T) {
	svc, _ := newAllocationFixture()
	ctx := context.Background()
	part := createAvailablePart(t, svc, "SN-0008")

	_, err := svc.Reserve(ctx, strPtr("tech-1"), part.ID, "ticket-1")
	require.NoError(t, err)
	// Rejected: already reserved, must not produce an entry.
	_, err = svc.Reserve(ctx, strPtr("tech-2"), part.ID, "ticket-2")
	require.Error(t, err)
	_, err = svc.Release(ctx, strPtr("tech-1"), part.ID, "wrong part pulled")
	require.NoError(t, err)

	history, err := svc.ListHistory(ctx, part.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)

	actions := make([]domain.PartAction, 0, len(history))
	for _, entry := range history {
		actions = append(actions, entry.Action)
	}
	assert.ElementsMatch(t, []domain.PartAction{
		domain.PartActionCreated,
		domain.PartActionReserved,
		domain.PartActionReleased,
	}, actions)
}

func TestReservedByTicket(t *testing.T) {
	svc, _ := newAllocationFixture()
	ctx := context.Background()
	first := createAvailablePart(t, svc, "SN-0009")
	second := createAvailablePart(t, svc, "SN-0010")

	_, err := svc.Reserve(ctx, nil, first.ID, "ticket-1")
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, nil, second.ID, "ticket-2")
	require.NoError(t, err)

	reserved, err := svc.ReservedByTicket(ctx, "ticket-1")
	require.NoError(t, err)
	require.Len(t, reserved, 1)
	assert.Equal(t, first.ID, reserved[0].ID)
}
