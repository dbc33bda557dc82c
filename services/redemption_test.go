package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moodlync/EmotionalSync-sub008/models"
)

// fakeSettlement returns a scripted outcome and records what it was asked.
type fakeSettlement struct {
	status SettlementStatus
	err    error
	calls  []SettlementRequest
}

func (f *fakeSettlement) Settle(_ context.Context, req SettlementRequest) (SettlementStatus, error) {
	f.calls = append(f.calls, req)
	return f.status, f.err
}

func newRedemptionFixture(t *testing.T, settle Settlement) (*RedemptionService, *Ledger) {
	t.Helper()
	db := newTestDB(t)
	ledger, _ := newTestLedger(t, db)
	transfers := NewTransferService(db, ledger)
	svc := NewRedemptionService(db, ledger, transfers, settle, RedemptionConfig{})
	return svc, ledger
}

func TestRedeemBelowMinimumRejected(t *testing.T) {
	svc, ledger := newRedemptionFixture(t, &fakeSettlement{status: SettlementConfirmed})
	credit(t, ledger, 1, 20000)

	_, err := svc.Redeem(context.Background(), 1, 9999, models.RedemptionMethodCash, 0)
	require.ErrorIs(t, err, ErrBelowMinimum)

	balance, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(20000), balance)
}

func TestCashRedemptionDebitsAndCompletes(t *testing.T) {
	settle := &fakeSettlement{status: SettlementConfirmed}
	svc, ledger := newRedemptionFixture(t, settle)
	credit(t, ledger, 1, 20000)

	req, err := svc.Redeem(context.Background(), 1, 10000, models.RedemptionMethodCash, 0)
	require.NoError(t, err)
	require.Equal(t, models.RedemptionStatusCompleted, req.Status)
	require.NotNil(t, req.CompletedAt)
	require.InEpsilon(t, 0.0010, req.ConversionRateAtRequest, 1e-9)

	require.Len(t, settle.calls, 1)
	require.Equal(t, int64(10000), settle.calls[0].Amount)

	balance, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(10000), balance)
	require.Equal(t, balance, logSum(t, svc.db, 1))
}

func TestFailedSettlementIsReversed(t *testing.T) {
	settle := &fakeSettlement{status: SettlementFailed, err: errors.New("provider down")}
	svc, ledger := newRedemptionFixture(t, settle)
	credit(t, ledger, 1, 20000)

	req, err := svc.Redeem(context.Background(), 1, 10000, models.RedemptionMethodCash, 0)
	require.ErrorIs(t, err, ErrSettlementFailed)
	require.Equal(t, models.RedemptionStatusRejected, req.Status)

	// Debit and compensating credit both appear in the log; net zero.
	balance, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(20000), balance)
	require.Equal(t, int64(3), entryCount(t, svc.db, 1))
	require.Equal(t, balance, logSum(t, svc.db, 1))
}

func TestInsufficientBalanceForRedemption(t *testing.T) {
	svc, ledger := newRedemptionFixture(t, &fakeSettlement{status: SettlementConfirmed})
	credit(t, ledger, 1, 5000)

	_, err := svc.Redeem(context.Background(), 1, 10000, models.RedemptionMethodCash, 0)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	balance, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(5000), balance)
}

func TestPremiumRedemptionRequiresExactTier(t *testing.T) {
	svc, ledger := newRedemptionFixture(t, &fakeSettlement{status: SettlementConfirmed})
	credit(t, ledger, 1, 10000)

	_, err := svc.Redeem(context.Background(), 1, 2000, models.RedemptionMethodPremiumDays, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	req, err := svc.Redeem(context.Background(), 1, 2500, models.RedemptionMethodPremiumDays, 0)
	require.NoError(t, err)
	require.Equal(t, models.RedemptionStatusCompleted, req.Status)

	var account models.Account
	require.NoError(t, svc.db.First(&account, 1).Error)
	require.True(t, account.IsPremium)
	require.NotNil(t, account.PremiumUntil)

	firstUntil := *account.PremiumUntil

	// A second grant stacks onto the unexpired window.
	_, err = svc.Redeem(context.Background(), 1, 1500, models.RedemptionMethodPremiumDays, 0)
	require.NoError(t, err)
	require.NoError(t, svc.db.First(&account, 1).Error)
	require.True(t, account.PremiumUntil.After(firstUntil))

	balance, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(6000), balance)
}

func TestPendingRedemptionCancelAndConfirm(t *testing.T) {
	settle := &fakeSettlement{status: SettlementPending}
	svc, ledger := newRedemptionFixture(t, settle)
	credit(t, ledger, 1, 40000)

	pending, err := svc.Redeem(context.Background(), 1, 10000, models.RedemptionMethodCharity, 0)
	require.NoError(t, err)
	require.Equal(t, models.RedemptionStatusPending, pending.Status)

	// Cancel refunds via a compensating credit.
	cancelled, err := svc.Cancel(context.Background(), 1, pending.ID)
	require.NoError(t, err)
	require.Equal(t, models.RedemptionStatusRejected, cancelled.Status)

	balance, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(40000), balance)

	// Cancelling again is final.
	_, err = svc.Cancel(context.Background(), 1, pending.ID)
	require.ErrorIs(t, err, ErrNotCancellable)

	// A second pending request confirmed by the admin completes.
	second, err := svc.Redeem(context.Background(), 1, 10000, models.RedemptionMethodCharity, 0)
	require.NoError(t, err)
	confirmed, err := svc.Confirm(context.Background(), second.ID)
	require.NoError(t, err)
	require.Equal(t, models.RedemptionStatusCompleted, confirmed.Status)

	balance, err = ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(30000), balance)
	require.Equal(t, balance, logSum(t, svc.db, 1))
}

func TestRedemptionFinalizationIsExclusive(t *testing.T) {
	settle := &fakeSettlement{status: SettlementPending}
	svc, ledger := newRedemptionFixture(t, settle)
	credit(t, ledger, 1, 40000)

	pending, err := svc.Redeem(context.Background(), 1, 10000, models.RedemptionMethodCash, 0)
	require.NoError(t, err)

	// Two callers each read the row while it is still pending.
	var forCancel, forConfirm models.RedemptionRequest
	require.NoError(t, svc.db.First(&forCancel, pending.ID).Error)
	require.NoError(t, svc.db.First(&forConfirm, pending.ID).Error)

	won, err := svc.reverse(context.Background(), &forCancel)
	require.NoError(t, err)
	require.True(t, won)

	// The late confirm loses the transition and must not flip the status.
	won, err = svc.complete(context.Background(), &forConfirm)
	require.NoError(t, err)
	require.False(t, won)

	var final models.RedemptionRequest
	require.NoError(t, svc.db.First(&final, pending.ID).Error)
	require.Equal(t, models.RedemptionStatusRejected, final.Status)

	balance, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(40000), balance)
	require.Equal(t, balance, logSum(t, svc.db, 1))
}

func TestConfirmAndCancelAreMutuallyFinal(t *testing.T) {
	settle := &fakeSettlement{status: SettlementPending}
	svc, ledger := newRedemptionFixture(t, settle)
	credit(t, ledger, 1, 40000)

	// Cancel first: the later confirm must not mark the refunded request
	// completed.
	first, err := svc.Redeem(context.Background(), 1, 10000, models.RedemptionMethodCash, 0)
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), 1, first.ID)
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), first.ID)
	require.ErrorIs(t, err, ErrNotCancellable)

	balance, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(40000), balance, "refund kept, payout not recorded")

	// Confirm first: the later cancel must not apply a refund on top of a
	// final payout.
	second, err := svc.Redeem(context.Background(), 1, 10000, models.RedemptionMethodCash, 0)
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), second.ID)
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), 1, second.ID)
	require.ErrorIs(t, err, ErrNotCancellable)

	balance, err = ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(30000), balance, "no refund after a final payout")
	require.Equal(t, balance, logSum(t, svc.db, 1))

	var final models.RedemptionRequest
	require.NoError(t, svc.db.First(&final, second.ID).Error)
	require.Equal(t, models.RedemptionStatusCompleted, final.Status)
}

func TestCancelRequiresOwnership(t *testing.T) {
	settle := &fakeSettlement{status: SettlementPending}
	svc, ledger := newRedemptionFixture(t, settle)
	credit(t, ledger, 1, 20000)

	pending, err := svc.Redeem(context.Background(), 1, 10000, models.RedemptionMethodCash, 0)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), 2, pending.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPeerTransferRedemptionDelegates(t *testing.T) {
	svc, ledger := newRedemptionFixture(t, &fakeSettlement{status: SettlementConfirmed})
	credit(t, ledger, 1, 100)
	credit(t, ledger, 2, 0)
	acceptedLink(t, svc.db, 1, 2)

	req, err := svc.Redeem(context.Background(), 1, 25, models.RedemptionMethodPeerTransfer, 2)
	require.NoError(t, err)
	require.Equal(t, models.RedemptionStatusCompleted, req.Status)

	b1, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	b2, err := ledger.Balance(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, int64(75), b1)
	require.Equal(t, int64(25), b2)

	// Without a recipient the method is rejected.
	_, err = svc.Redeem(context.Background(), 1, 25, models.RedemptionMethodPeerTransfer, 0)
	require.ErrorIs(t, err, ErrIneligibleRecipient)
}
