package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moodlync/EmotionalSync-sub008/models"
)

func TestApplyCreatesAccountAndEntry(t *testing.T) {
	db := newTestDB(t)
	ledger, _ := newTestLedger(t, db)

	res, err := ledger.Apply(context.Background(), ApplyInput{
		UserID:       1,
		ActivityType: models.ActivityJournalEntry,
		DeltaMilli:   500,
		Description:  "first entry",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Delta) // 0.5 rounds half-up to 1
	require.Equal(t, int64(1), res.Balance)
	require.NotZero(t, res.EntryID)

	balance, sum, ok, err := ledger.VerifyAccount(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, balance, sum)
}

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		milli int64
		want  int64
	}{
		{0, 0},
		{250, 0},
		{499, 0},
		{500, 1},
		{750, 1},
		{1250, 1},
		{1500, 2},
		{1750, 2},
		{-250, 0},
		{-500, 0}, // half rounds toward positive infinity
		{-501, -1},
		{-1500, -1},
		{-2000, -2},
	}
	for _, c := range cases {
		require.Equal(t, c.want, roundTokens(c.milli), "milli=%d", c.milli)
	}
}

func TestDebitRejectedWhenInsufficient(t *testing.T) {
	db := newTestDB(t)
	ledger, _ := newTestLedger(t, db)
	credit(t, ledger, 1, 5)

	res, err := ledger.Apply(context.Background(), ApplyInput{
		UserID:       1,
		ActivityType: models.ActivityRedemption,
		DeltaMilli:   -6000,
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.NotNil(t, res)
	require.Equal(t, int64(5), res.Balance)
	// Only the seed entry exists.
	require.Equal(t, int64(1), entryCount(t, db, 1))
}

func TestDedupeKeyIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ledger, _ := newTestLedger(t, db)

	in := ApplyInput{
		UserID:       1,
		ActivityType: models.ActivityBadgeEarned,
		DeltaMilli:   500,
		DedupeKey:    "1|badge_earned|badge:42",
	}
	first, err := ledger.Apply(context.Background(), in)
	require.NoError(t, err)

	second, err := ledger.Apply(context.Background(), in)
	require.ErrorIs(t, err, ErrDuplicateActivity)
	require.True(t, second.Duplicate)
	require.Equal(t, first.EntryID, second.EntryID)
	require.Equal(t, first.Delta, second.Delta)
	require.Equal(t, first.Balance, second.Balance)
	require.Equal(t, int64(1), entryCount(t, db, 1))
}

func TestApplyPairedIsAtomic(t *testing.T) {
	db := newTestDB(t)
	ledger, _ := newTestLedger(t, db)
	credit(t, ledger, 1, 10)

	// Debit exceeds the sender's balance: neither side may apply.
	_, _, err := ledger.ApplyPaired(context.Background(),
		ApplyInput{UserID: 1, ActivityType: models.ActivityTransferOut, DeltaMilli: -20_000},
		ApplyInput{UserID: 2, ActivityType: models.ActivityTransferIn, DeltaMilli: 20_000},
	)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	b1, err := ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(10), b1)
	require.Equal(t, int64(0), entryCount(t, db, 2))
	require.Equal(t, logSum(t, db, 1), b1)
}

func TestConcurrentDebitsNeverGoNegative(t *testing.T) {
	db := newTestDB(t)
	ledger, _ := newTestLedger(t, db)
	credit(t, ledger, 1, 5)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ledger.Apply(context.Background(), ApplyInput{
				UserID:       1,
				ActivityType: models.ActivityRedemption,
				DeltaMilli:   -1000,
			})
		}()
	}
	wg.Wait()

	balance, sum, ok, err := ledger.VerifyAccount(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0), balance)
	require.Equal(t, balance, sum)
}

func TestOppositeTransfersDoNotDeadlock(t *testing.T) {
	db := newTestDB(t)
	ledger, _ := newTestLedger(t, db)
	credit(t, ledger, 1, 50)
	credit(t, ledger, 2, 50)

	done := make(chan error, 2)
	pair := func(from, to uint) {
		_, _, err := ledger.ApplyPaired(context.Background(),
			ApplyInput{UserID: from, ActivityType: models.ActivityTransferOut, DeltaMilli: -10_000},
			ApplyInput{UserID: to, ActivityType: models.ActivityTransferIn, DeltaMilli: 10_000},
		)
		done <- err
	}
	go pair(1, 2)
	go pair(2, 1)

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("paired applies deadlocked")
		}
	}

	b1, _ := ledger.Balance(context.Background(), 1)
	b2, _ := ledger.Balance(context.Background(), 2)
	require.Equal(t, int64(50), b1)
	require.Equal(t, int64(50), b2)
}

func TestApplyTimesOutWhenAccountLockHeld(t *testing.T) {
	db := newTestDB(t)
	gate := NewRestoreGate()
	ledger := NewLedger(db, gate, 50*time.Millisecond)

	// Hold the account's serialization slot so Apply cannot acquire it.
	require.NoError(t, ledger.locks.acquire(context.Background(), 1))
	defer ledger.locks.release(1)

	_, err := ledger.Apply(context.Background(), ApplyInput{
		UserID:       1,
		ActivityType: models.ActivityEmotionUpdate,
		DeltaMilli:   250,
	})
	require.ErrorIs(t, err, ErrLockTimeout)
}

func TestApplyRejectedWhileRestoreHoldsGate(t *testing.T) {
	db := newTestDB(t)
	ledger, gate := newTestLedger(t, db)

	gate.beginRestore()
	_, err := ledger.Apply(context.Background(), ApplyInput{
		UserID:       1,
		ActivityType: models.ActivityEmotionUpdate,
		DeltaMilli:   250,
	})
	gate.endRestore()
	require.ErrorIs(t, err, ErrRestoreInProgress)

	// Normal operation resumes once the gate is released.
	_, err = ledger.Apply(context.Background(), ApplyInput{
		UserID:       1,
		ActivityType: models.ActivityEmotionUpdate,
		DeltaMilli:   250,
	})
	require.NoError(t, err)
}

func TestFrozenAccountRejectsMutation(t *testing.T) {
	db := newTestDB(t)
	ledger, _ := newTestLedger(t, db)
	credit(t, ledger, 1, 5)

	require.NoError(t, db.Delete(&models.Account{}, 1).Error) // soft delete freezes

	_, err := ledger.Apply(context.Background(), ApplyInput{
		UserID:       1,
		ActivityType: models.ActivityEmotionUpdate,
		DeltaMilli:   250,
	})
	require.ErrorIs(t, err, ErrAccountFrozen)
	// History is preserved for audit.
	require.Equal(t, int64(1), entryCount(t, db, 1))
}
