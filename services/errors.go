package services

import "errors"

// Ledger error taxonomy. Controllers map these onto HTTP responses; everything
// else in the service layer compares with errors.Is.
var (
	// ErrInsufficientBalance rejects any debit that would drive a balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicateActivity marks a capped reward that was already applied for its
	// period. Callers treat it as an idempotent success, not a failure.
	ErrDuplicateActivity = errors.New("activity already applied")
	// ErrBelowMinimum rejects a redemption under its method's minimum threshold.
	ErrBelowMinimum = errors.New("amount below redemption minimum")
	// ErrIneligibleRecipient rejects a transfer without an accepted,
	// transfer-enabled family link.
	ErrIneligibleRecipient = errors.New("recipient not eligible for transfer")
	// ErrSettlementFailed is returned when the external settlement capability
	// reports failure; the debit has already been reversed when callers see it.
	ErrSettlementFailed = errors.New("settlement failed")
	// ErrRestoreInProgress rejects balance mutations while an exclusive restore
	// holds the ledger.
	ErrRestoreInProgress = errors.New("restore in progress")
	// ErrSnapshotCorrupt marks a restore source that failed its integrity check.
	ErrSnapshotCorrupt = errors.New("snapshot failed integrity check")
	// ErrLockTimeout is returned when per-account serialization could not be
	// acquired within the caller's deadline. Retryable.
	ErrLockTimeout = errors.New("timed out waiting for account lock")

	// ErrAccountFrozen rejects mutations on soft-deleted accounts; history is
	// preserved for audit.
	ErrAccountFrozen = errors.New("account is frozen")
	// ErrInvalidAmount rejects non-positive or otherwise malformed amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrUnknownActivity rejects activity types outside the rate table.
	ErrUnknownActivity = errors.New("unknown activity type")
	// ErrNotFound is a generic lookup miss for records owned by this package.
	ErrNotFound = errors.New("record not found")
	// ErrNotCancellable rejects cancellation of a redemption that already settled.
	ErrNotCancellable = errors.New("redemption is no longer cancellable")
)
