package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/moodlync/EmotionalSync-sub008/models"
	"github.com/moodlync/EmotionalSync-sub008/utils"
)

// Ledger is the transactional core of the rewards engine. It is the only
// component allowed to mutate token balances; every mutation appends exactly
// one activity log row inside the same database transaction that updates the
// balance, so the two are never observable apart.
type Ledger struct {
	db       *gorm.DB
	locks    *accountLocks
	gate     *restoreGate
	lockWait time.Duration
}

// NewLedger creates a ledger engine over db. gate serializes normal operation
// against exclusive restores and is shared with the snapshot gateway.
func NewLedger(db *gorm.DB, gate *restoreGate, lockWait time.Duration) *Ledger {
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	return &Ledger{
		db:       db,
		locks:    newAccountLocks(),
		gate:     gate,
		lockWait: lockWait,
	}
}

// ApplyInput describes one requested balance mutation. DeltaMilli is expressed
// in milli-tokens; the engine rounds half-up to whole tokens before applying,
// which keeps fractional rate-table rewards reproducible.
type ApplyInput struct {
	UserID       uint
	ActivityType models.ActivityType
	DeltaMilli   int64
	Description  string
	DedupeKey    string // empty for uncapped activities
}

// ApplyResult reports the outcome of an Apply. On ErrDuplicateActivity it
// carries the pre-existing entry so callers can report an idempotent success,
// and on ErrInsufficientBalance it carries the current authoritative balance.
type ApplyResult struct {
	EntryID   uint64 `json:"entry_id"`
	Delta     int64  `json:"delta"`
	Balance   int64  `json:"balance"`
	Duplicate bool   `json:"duplicate"`
}

// Apply atomically appends an activity log entry and moves the account
// balance by the rounded delta. Concurrent applies for the same account are
// serialized; applies for different accounts proceed independently. Optional
// then funcs run inside the same transaction after a successful apply, still
// under the account serialization, so callers can commit dependent rows
// atomically with the balance move. They do not run for duplicates or
// rejected debits.
func (l *Ledger) Apply(ctx context.Context, in ApplyInput, then ...func(tx *gorm.DB) error) (*ApplyResult, error) {
	if !in.ActivityType.Valid() {
		return nil, ErrUnknownActivity
	}
	if !l.gate.beginRead() {
		return nil, ErrRestoreInProgress
	}
	defer l.gate.endRead()

	if err := l.lockAccounts(ctx, in.UserID); err != nil {
		return nil, err
	}
	defer l.locks.release(in.UserID)

	var res *ApplyResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		if res, txErr = applyOne(tx, in); txErr != nil {
			return txErr
		}
		for _, fn := range then {
			if txErr := fn(tx); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrDuplicateActivity) && !errors.Is(err, ErrInsufficientBalance) {
		return nil, err
	}
	utils.InvalidateBalance(in.UserID)
	return res, err
}

// ApplyPaired applies a debit and a credit as one atomic unit; if either side
// would fail, neither is applied. Both accounts' serialization is acquired in
// ascending user id order so opposite-direction pairs cannot deadlock.
// Optional then funcs run inside the same transaction after both applies.
func (l *Ledger) ApplyPaired(ctx context.Context, debit, credit ApplyInput, then ...func(tx *gorm.DB) error) (*ApplyResult, *ApplyResult, error) {
	if debit.DeltaMilli >= 0 || credit.DeltaMilli <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if !debit.ActivityType.Valid() || !credit.ActivityType.Valid() {
		return nil, nil, ErrUnknownActivity
	}
	if !l.gate.beginRead() {
		return nil, nil, ErrRestoreInProgress
	}
	defer l.gate.endRead()

	if err := l.lockAccounts(ctx, debit.UserID, credit.UserID); err != nil {
		return nil, nil, err
	}
	defer l.locks.release(debit.UserID, credit.UserID)

	var dRes, cRes *ApplyResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		if dRes, txErr = applyOne(tx, debit); txErr != nil {
			return txErr
		}
		if cRes, txErr = applyOne(tx, credit); txErr != nil {
			return txErr
		}
		for _, fn := range then {
			if txErr := fn(tx); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		// The transaction rolled back; neither side is applied.
		return nil, nil, err
	}
	utils.InvalidateBalance(debit.UserID)
	utils.InvalidateBalance(credit.UserID)
	return dRes, cRes, nil
}

// Balance returns the current token balance, creating no account. Unknown
// users report zero, matching an account that has never earned.
func (l *Ledger) Balance(ctx context.Context, userID uint) (int64, error) {
	if b, ok := utils.CachedBalance(userID); ok {
		return b, nil
	}
	var account models.Account
	err := l.db.WithContext(ctx).First(&account, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	utils.CacheBalance(userID, account.TokenBalance)
	return account.TokenBalance, nil
}

// History lists the account's activity log, newest first.
func (l *Ledger) History(ctx context.Context, userID uint, page, pageSize int) ([]models.ActivityLogEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	var entries []models.ActivityLogEntry
	var total int64
	q := l.db.WithContext(ctx).Model(&models.ActivityLogEntry{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&entries).Error
	return entries, total, err
}

// VerifyAccount re-sums the activity log and compares it to the stored
// balance. Used by the admin audit endpoint.
func (l *Ledger) VerifyAccount(ctx context.Context, userID uint) (balance int64, logSum int64, ok bool, err error) {
	var account models.Account
	if err = l.db.WithContext(ctx).Unscoped().First(&account, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrNotFound
		}
		return
	}
	err = l.db.WithContext(ctx).Model(&models.ActivityLogEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(delta),0)").Scan(&logSum).Error
	if err != nil {
		return
	}
	balance = account.TokenBalance
	ok = balance == logSum
	return
}

// lockAccounts acquires the per-account serialization for every id, in
// ascending order, within the configured wait bound.
func (l *Ledger) lockAccounts(ctx context.Context, ids ...uint) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.lockWait)
	defer cancel()
	return l.locks.acquire(waitCtx, ids...)
}

// applyOne runs the shared insert-entry-and-move-balance step inside an open
// transaction. Callers must already hold the account serialization.
func applyOne(tx *gorm.DB, in ApplyInput) (*ApplyResult, error) {
	delta := roundTokens(in.DeltaMilli)

	var account models.Account
	err := lockForUpdate(tx).Unscoped().First(&account, in.UserID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// First qualifying action creates the account.
		account = models.Account{UserID: in.UserID}
		if err := tx.Create(&account).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case account.DeletedAt.Valid:
		return nil, ErrAccountFrozen
	}

	if in.DedupeKey != "" {
		var existing models.ActivityLogEntry
		err := tx.Where("dedupe_key = ?", in.DedupeKey).First(&existing).Error
		if err == nil {
			return &ApplyResult{
				EntryID:   existing.ID,
				Delta:     existing.Delta,
				Balance:   account.TokenBalance,
				Duplicate: true,
			}, ErrDuplicateActivity
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if delta < 0 && account.TokenBalance+delta < 0 {
		return &ApplyResult{Balance: account.TokenBalance}, ErrInsufficientBalance
	}

	entry := models.ActivityLogEntry{
		UserID:       in.UserID,
		ActivityType: in.ActivityType,
		Delta:        delta,
		Description:  in.Description,
		OccurredAt:   time.Now(),
	}
	if in.DedupeKey != "" {
		key := in.DedupeKey
		entry.DedupeKey = &key
	}
	if err := tx.Create(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race on the dedupe key; surface as duplicate.
			return &ApplyResult{Balance: account.TokenBalance, Duplicate: true}, ErrDuplicateActivity
		}
		return nil, err
	}

	account.TokenBalance += delta
	if err := tx.Model(&models.Account{}).Where("user_id = ?", in.UserID).
		Update("token_balance", account.TokenBalance).Error; err != nil {
		return nil, err
	}

	return &ApplyResult{EntryID: entry.ID, Delta: delta, Balance: account.TokenBalance}, nil
}

// roundTokens rounds a milli-token amount half-up (toward positive infinity
// on the .5 boundary) to whole tokens. Applied exactly once, here, so ledger
// totals never drift from inconsistent fractional handling.
func roundTokens(milli int64) int64 {
	if milli >= 0 {
		return (milli + 500) / 1000
	}
	return -((-milli + 499) / 1000)
}

// lockForUpdate adds a SELECT ... FOR UPDATE clause on engines that support
// it. SQLite (used by tests) serializes writers itself.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "mysql" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// accountLocks serializes balance mutations per account. Each account gets a
// one-slot channel so acquisition can honor context deadlines.
type accountLocks struct {
	mu sync.Mutex
	m  map[uint]chan struct{}
}

func newAccountLocks() *accountLocks {
	return &accountLocks{m: make(map[uint]chan struct{})}
}

func (l *accountLocks) slot(id uint) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.m[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.m[id] = ch
	}
	return ch
}

// acquire takes every lock in ascending id order. On timeout it releases
// whatever it already holds and reports ErrLockTimeout.
func (l *accountLocks) acquire(ctx context.Context, ids ...uint) error {
	ordered := sortedUnique(ids)
	held := make([]uint, 0, len(ordered))
	for _, id := range ordered {
		select {
		case l.slot(id) <- struct{}{}:
			held = append(held, id)
		case <-ctx.Done():
			l.release(held...)
			return ErrLockTimeout
		}
	}
	return nil
}

func (l *accountLocks) release(ids ...uint) {
	for _, id := range sortedUnique(ids) {
		<-l.slot(id)
	}
}

func sortedUnique(ids []uint) []uint {
	out := make([]uint, 0, len(ids))
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// restoreGate lets many ledger operations run concurrently while giving the
// snapshot gateway an exclusive window for Restore. Readers never wait: when a
// restore holds or is waiting for the gate, they fail fast so callers can
// surface ErrRestoreInProgress instead of blocking.
type restoreGate struct {
	mu sync.RWMutex
}

// NewRestoreGate creates the gate shared by the ledger and snapshot gateway.
func NewRestoreGate() *restoreGate {
	return &restoreGate{}
}

func (g *restoreGate) beginRead() bool { return g.mu.TryRLock() }
func (g *restoreGate) endRead()        { g.mu.RUnlock() }
func (g *restoreGate) beginRestore()   { g.mu.Lock() }
func (g *restoreGate) endRestore()     { g.mu.Unlock() }
