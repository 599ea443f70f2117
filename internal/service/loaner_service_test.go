package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

func newLoanerFixture() (*LoanerService, *fakeLoanerRepo) {
	loaners := newFakeLoanerRepo()
	svc := NewLoanerService(LoanerDependencies{
		LoanerRepo: loaners,
		Dispatcher: events.NewInMemoryDispatcher(),
	})
	return svc, loaners
}

func TestIssuePicksAvailableUnit(t *testing.T) {
	svc, _ := newLoanerFixture()
	ctx := context.Background()

	enrolled, err := svc.Enroll(ctx, "loaner-unit-1", "pool seed")
	require.NoError(t, err)

	issued, err := svc.Issue(ctx, strPtr("tech-1"), nil, "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, enrolled.ID, issued.ID)
	assert.Equal(t, domain.LoanerStatusInUse, issued.Status)
	require.NotNil(t, issued.CurrentTicketID)
	assert.Equal(t, "ticket-1", *issued.CurrentTicketID)
	assert.Equal(t, 1, issued.UsageCount)
}

func TestIssueEmptyPool(t *testing.T) {
	svc, _ := newLoanerFixture()

	_, err := svc.Issue(context.Background(), nil, nil, "ticket-1")
	assert.True(t, apperrors.IsCode(err, apperrors.CodePreconditionFailed))
}

func TestIssueIsExclusive(t *testing.T) {
	svc, _ := newLoanerFixture()
	ctx := context.Background()

	loaner, err := svc.Enroll(ctx, "loaner-unit-1", "")
	require.NoError(t, err)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Issue(ctx, nil, &loaner.ID, "ticket-1")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyIssued), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, winners)
}

func TestReturnRequiresMatchingTicket(t *testing.T) {
	svc, _ := newLoanerFixture()
	ctx := context.Background()

	loaner, err := svc.Enroll(ctx, "loaner-unit-1", "")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, nil, &loaner.ID, "ticket-1")
	require.NoError(t, err)

	_, err = svc.Return(ctx, nil, loaner.ID, "ticket-other")
	assert.True(t, apperrors.IsCode(err, apperrors.CodePreconditionFailed))

	returned, err := svc.Return(ctx, nil, loaner.ID, "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LoanerStatusAvailable, returned.Status)
	assert.Nil(t, returned.CurrentTicketID)
}

func TestUsageCountAccumulates(t *testing.T) {
	svc, _ := newLoanerFixture()
	ctx := context.Background()

	loaner, err := svc.Enroll(ctx, "loaner-unit-1", "")
	require.NoError(t, err)

	for i, ticketID := range []string{"ticket-1", "ticket-2", "ticket-3"} {
		issued, err := svc.Issue(ctx, nil, &loaner.ID, ticketID)
		require.NoError(t, err)
		assert.Equal(t, i+1, issued.UsageCount)
		_, err = svc.Return(ctx, nil, loaner.ID, ticketID)
		require.NoError(t, err)
	}
}

func TestMaintenanceCycle(t *testing.T) {
	svc, _ := newLoanerFixture()
	ctx := context.Background()

	loaner, err := svc.Enroll(ctx, "loaner-unit-1", "")
	require.NoError(t, err)

	down, err := svc.SetMaintenance(ctx, loaner.ID, true, "firmware update")
	require.NoError(t, err)
	assert.Equal(t, domain.LoanerStatusMaintenance, down.Status)

	// Not issuable while in maintenance.
	_, err = svc.Issue(ctx, nil, &loaner.ID, "ticket-1")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyIssued))

	up, err := svc.SetMaintenance(ctx, loaner.ID, false, "done")
	require.NoError(t, err)
	assert.Equal(t, domain.LoanerStatusAvailable, up.Status)
}

func TestRetireRejectedWhileIssued(t *testing.T) {
	svc, _ := newLoanerFixture()
	ctx := context.Background()

	loaner, err := svc.Enroll(ctx, "loaner-unit-1", "")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, nil, &loaner.ID, "ticket-1")
	require.NoError(t, err)

	_, err = svc.Retire(ctx, loaner.ID, "end of life")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))

	_, err = svc.Return(ctx, nil, loaner.ID, "ticket-1")
	require.NoError(t, err)
	retired, err := svc.Retire(ctx, loaner.ID, "end of life")
	require.NoError(t, err)
	assert.Equal(t, domain.LoanerStatusRetired, retired.Status)
}

func TestFindByTicketReturnsNilWhenAbsent(t *testing.T) {
	svc, _ := newLoanerFixture()

	loaner, err := svc.FindByTicket(context.Background(), "ticket-unknown")
	require.NoError(t, err)
	assert.Nil(t, loaner)
}
