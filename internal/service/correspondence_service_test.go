package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

func newCorrespondenceFixture() (*CorrespondenceService, *fakeCorrespondenceRepo, *fakeTicketRepo) {
	corr := newFakeCorrespondenceRepo()
	tickets := newFakeTicketRepo()
	svc := NewCorrespondenceService(CorrespondenceDependencies{
		CorrespondenceRepo: corr,
		TicketRepo:         tickets,
		Dispatcher:         events.NewInMemoryDispatcher(),
	})
	return svc, corr, tickets
}

func TestCreateStandaloneExchange(t *testing.T) {
	svc, _, _ := newCorrespondenceFixture()

	corr, err := svc.Create(context.Background(), strPtr("clerk-1"), CorrespondenceCreateInput{
		ExternalRef:   "RMA-1001",
		ComponentType: "PSU",
		RequestType:   "WARRANTY",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CorrespondenceSent, corr.Status)
	assert.Equal(t, "WARRANTY", corr.RequestType)
	assert.Nil(t, corr.TicketID)
	assert.False(t, corr.SentAt.IsZero())
}

func TestCreateLinkedExchangeFlagsTicket(t *testing.T) {
	svc, _, tickets := newCorrespondenceFixture()
	ctx := context.Background()

	ticket := &domain.DefectTicket{
		UnitID:             "unit-1",
		Status:             domain.TicketStatusRepairing,
		Priority:           domain.TicketPriorityMedium,
		ProblemDescription: "psu hum",
		PartType:           "PSU",
	}
	require.NoError(t, tickets.Create(ctx, ticket))

	_, err := svc.Create(ctx, nil, CorrespondenceCreateInput{
		ExternalRef:   "RMA-1002",
		TicketID:      &ticket.ID,
		ComponentType: "PSU",
	})
	require.NoError(t, err)

	updated, err := tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, updated.VendorSent)
}

func TestCreateRequiresExternalRef(t *testing.T) {
	svc, _, _ := newCorrespondenceFixture()

	_, err := svc.Create(context.Background(), nil, CorrespondenceCreateInput{ComponentType: "PSU"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))
}

func TestRecordVendorReportKeepsUnknownStatus(t *testing.T) {
	svc, _, _ := newCorrespondenceFixture()
	ctx := context.Background()

	corr, err := svc.Create(ctx, nil, CorrespondenceCreateInput{
		ExternalRef:   "RMA-1003",
		ComponentType: "DIMM",
	})
	require.NoError(t, err)

	updated, err := svc.RecordVendorReport(ctx, nil, corr.ID, CorrespondenceUpdateInput{
		RawStatus:      "shipment pending carrier pickup",
		VendorResponse: "queued",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CorrespondenceUnrecognized, updated.Status)
	assert.Equal(t, "queued", updated.VendorResponse)
	assert.Nil(t, updated.ReceivedAt)
}

func TestRecordVendorReportReceivedStampsOnce(t *testing.T) {
	svc, _, _ := newCorrespondenceFixture()
	ctx := context.Background()

	corr, err := svc.Create(ctx, nil, CorrespondenceCreateInput{
		ExternalRef:   "RMA-1004",
		ComponentType: "DIMM",
	})
	require.NoError(t, err)

	serial := "SN-REPAIRED"
	updated, err := svc.RecordVendorReport(ctx, nil, corr.ID, CorrespondenceUpdateInput{
		RawStatus:      "received",
		ReceivedSerial: &serial,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CorrespondenceReceived, updated.Status)
	require.NotNil(t, updated.ReceivedAt)
	first := *updated.ReceivedAt

	updated, err = svc.RecordVendorReport(ctx, nil, corr.ID, CorrespondenceUpdateInput{RawStatus: "RECEIVED"})
	require.NoError(t, err)
	require.NotNil(t, updated.ReceivedAt)
	assert.Equal(t, first, *updated.ReceivedAt)
}

func TestReceivedReportPropagatesSerialsToTicket(t *testing.T) {
	svc, _, tickets := newCorrespondenceFixture()
	ctx := context.Background()

	ticket := &domain.DefectTicket{
		UnitID:             "unit-1",
		Status:             domain.TicketStatusSentToVendor,
		Priority:           domain.TicketPriorityMedium,
		ProblemDescription: "bad DIMM",
		PartType:           "DIMM",
	}
	require.NoError(t, tickets.Create(ctx, ticket))

	corr, err := svc.Create(ctx, nil, CorrespondenceCreateInput{
		ExternalRef:   "RMA-1006",
		TicketID:      &ticket.ID,
		ComponentType: "DIMM",
	})
	require.NoError(t, err)

	serial := "SN-SWAPPED"
	vendorSerial := "VS-SWAPPED"
	_, err = svc.RecordVendorReport(ctx, nil, corr.ID, CorrespondenceUpdateInput{
		RawStatus:            "received",
		ReceivedSerial:       &serial,
		ReceivedVendorSerial: &vendorSerial,
	})
	require.NoError(t, err)

	updated, err := tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, updated.VendorReceived)
	require.NotNil(t, updated.ReplacementSerial)
	assert.Equal(t, serial, *updated.ReplacementSerial)
	require.NotNil(t, updated.ReplacementVendorSerial)
	assert.Equal(t, vendorSerial, *updated.ReplacementVendorSerial)
}

func TestClosedExchangeRejectsReports(t *testing.T) {
	svc, _, _ := newCorrespondenceFixture()
	ctx := context.Background()

	corr, err := svc.Create(ctx, nil, CorrespondenceCreateInput{
		ExternalRef:   "RMA-1005",
		ComponentType: "DIMM",
	})
	require.NoError(t, err)

	closed, err := svc.Close(ctx, corr.ID, "settled")
	require.NoError(t, err)
	assert.Equal(t, domain.CorrespondenceClosed, closed.Status)

	// Closing again is a no-op.
	again, err := svc.Close(ctx, corr.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.CorrespondenceClosed, again.Status)

	_, err = svc.RecordVendorReport(ctx, nil, corr.ID, CorrespondenceUpdateInput{RawStatus: "in_progress"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))
}

func TestListByTicket(t *testing.T) {
	svc, _, tickets := newCorrespondenceFixture()
	ctx := context.Background()

	ticket := &domain.DefectTicket{
		UnitID:             "unit-1",
		Status:             domain.TicketStatusRepairing,
		Priority:           domain.TicketPriorityMedium,
		ProblemDescription: "flaky link",
		PartType:           "NIC",
	}
	require.NoError(t, tickets.Create(ctx, ticket))

	for _, ref := range []string{"RMA-1", "RMA-2"} {
		_, err := svc.Create(ctx, nil, CorrespondenceCreateInput{
			ExternalRef:   ref,
			TicketID:      &ticket.ID,
			ComponentType: "NIC",
		})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, nil, CorrespondenceCreateInput{
		ExternalRef:   "RMA-3",
		ComponentType: "NIC",
	})
	require.NoError(t, err)

	linked, err := svc.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, linked, 2)
}
