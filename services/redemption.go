package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/moodlync/EmotionalSync-sub008/models"
	"github.com/moodlync/EmotionalSync-sub008/utils"
)

// premiumTiers maps exact redemption amounts to days of premium access.
var premiumTiers = map[int64]int{
	1500: 7,
	2500: 14,
	4000: 21,
	7000: 28,
}

// RedemptionConfig carries the admin-configured conversion economics.
type RedemptionConfig struct {
	// CashRatePerToken is the payout rate in currency units per token,
	// snapshotted onto each request at creation time.
	CashRatePerToken float64
	CashMinTokens    int64
	CharityMinTokens int64
}

// RedemptionService gates conversion of tokens into cash, charity donations,
// premium access or peer transfers.
type RedemptionService struct {
	db         *gorm.DB
	ledger     *Ledger
	transfers  *TransferService
	settlement Settlement
	cfg        RedemptionConfig
}

// NewRedemptionService creates a redemption service.
func NewRedemptionService(db *gorm.DB, ledger *Ledger, transfers *TransferService, settlement Settlement, cfg RedemptionConfig) *RedemptionService {
	if cfg.CashRatePerToken <= 0 {
		cfg.CashRatePerToken = 0.0010
	}
	if cfg.CashMinTokens <= 0 {
		cfg.CashMinTokens = 10000
	}
	if cfg.CharityMinTokens <= 0 {
		cfg.CharityMinTokens = cfg.CashMinTokens
	}
	return &RedemptionService{db: db, ledger: ledger, transfers: transfers, settlement: settlement, cfg: cfg}
}

// MinimumFor returns the minimum redeemable amount for a method.
func (s *RedemptionService) MinimumFor(method string) (int64, error) {
	switch method {
	case models.RedemptionMethodCash:
		return s.cfg.CashMinTokens, nil
	case models.RedemptionMethodCharity:
		return s.cfg.CharityMinTokens, nil
	case models.RedemptionMethodPremiumDays:
		min := int64(0)
		for amount := range premiumTiers {
			if min == 0 || amount < min {
				min = amount
			}
		}
		return min, nil
	case models.RedemptionMethodPeerTransfer:
		return 1, nil
	}
	return 0, fmt.Errorf("unknown redemption method %q", method)
}

// Redeem validates thresholds, debits the ledger, and hands off to the
// settlement capability. The debit happens first; a failed or cancelled
// settlement is compensated by a logged reversal credit so the audit trail
// shows both sides.
func (s *RedemptionService) Redeem(ctx context.Context, userID uint, amount int64, method string, recipientID uint) (*models.RedemptionRequest, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	min, err := s.MinimumFor(method)
	if err != nil {
		return nil, err
	}
	if amount < min {
		return nil, ErrBelowMinimum
	}
	if method == models.RedemptionMethodPremiumDays {
		if _, ok := premiumTiers[amount]; !ok {
			return nil, ErrInvalidAmount
		}
	}
	if method == models.RedemptionMethodPeerTransfer {
		return s.redeemAsTransfer(ctx, userID, amount, recipientID)
	}

	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, ErrInsufficientBalance
	}

	rate := 0.0
	if method == models.RedemptionMethodCash || method == models.RedemptionMethodCharity {
		rate = s.cfg.CashRatePerToken
	}

	req := models.RedemptionRequest{
		UserID:                  userID,
		Amount:                  amount,
		Method:                  method,
		Status:                  models.RedemptionStatusPending,
		ConversionRateAtRequest: rate,
		RequestedAt:             time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, err
	}

	res, err := s.ledger.Apply(ctx, ApplyInput{
		UserID:       userID,
		ActivityType: models.ActivityRedemption,
		DeltaMilli:   -amount * 1000,
		Description:  fmt.Sprintf("redemption (%s) request %d", method, req.ID),
		DedupeKey:    fmt.Sprintf("redemption|%d", req.ID),
	})
	if err != nil && !errors.Is(err, ErrDuplicateActivity) {
		if _, ferr := s.finalize(ctx, &req, models.RedemptionStatusRejected, nil); ferr != nil {
			utils.Sugar.Errorf("failed to mark redemption %d rejected: %v", req.ID, ferr)
		}
		if errors.Is(err, ErrInsufficientBalance) && res != nil {
			return &req, err
		}
		return &req, err
	}

	switch method {
	case models.RedemptionMethodPremiumDays:
		if err := s.grantPremium(ctx, userID, premiumTiers[amount]); err != nil {
			if _, rerr := s.reverse(ctx, &req); rerr != nil {
				return &req, rerr
			}
			return &req, err
		}
		if _, err := s.complete(ctx, &req); err != nil {
			utils.Sugar.Errorf("failed to mark redemption %d completed: %v", req.ID, err)
		}
		return &req, nil
	default:
		status, settleErr := s.settlement.Settle(ctx, SettlementRequest{
			UserID:         userID,
			Amount:         amount,
			Method:         method,
			ConversionRate: rate,
			Reference:      fmt.Sprintf("redemption-%d", req.ID),
		})
		switch status {
		case SettlementConfirmed:
			if _, err := s.complete(ctx, &req); err != nil {
				utils.Sugar.Errorf("failed to mark redemption %d completed: %v", req.ID, err)
			}
			return &req, nil
		case SettlementPending:
			// Stays pending until Confirm or Cancel finalizes it.
			return &req, nil
		default:
			if settleErr != nil {
				utils.Sugar.Warnf("settlement failed for redemption %d: %v", req.ID, settleErr)
			}
			if _, rerr := s.reverse(ctx, &req); rerr != nil {
				return &req, rerr
			}
			return &req, ErrSettlementFailed
		}
	}
}

// Confirm finalizes a pending redemption after asynchronous settlement
// confirms. Finalization is exclusive: if a cancel already won, Confirm
// reports ErrNotCancellable instead of overwriting the refund.
func (s *RedemptionService) Confirm(ctx context.Context, requestID uint) (*models.RedemptionRequest, error) {
	var req models.RedemptionRequest
	err := s.db.WithContext(ctx).First(&req, requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	won, err := s.complete(ctx, &req)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrNotCancellable
	}
	return &req, nil
}

// Cancel reverses a pending redemption on the caller's request, using the
// same compensating-credit path as a settlement failure. If the redemption
// was already finalized, no refund is applied.
func (s *RedemptionService) Cancel(ctx context.Context, userID, requestID uint) (*models.RedemptionRequest, error) {
	var req models.RedemptionRequest
	err := s.db.WithContext(ctx).First(&req, requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, ErrNotFound
	}
	won, err := s.reverse(ctx, &req)
	if err != nil {
		return &req, err
	}
	if !won {
		return nil, ErrNotCancellable
	}
	return &req, nil
}

// List returns the user's redemption requests, newest first.
func (s *RedemptionService) List(ctx context.Context, userID uint, page, pageSize int) ([]models.RedemptionRequest, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	var reqs []models.RedemptionRequest
	var total int64
	q := s.db.WithContext(ctx).Model(&models.RedemptionRequest{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&reqs).Error
	return reqs, total, err
}

// redeemAsTransfer delegates the peer_transfer method to the transfer
// service; the transfer_out entry is the redemption's debit.
func (s *RedemptionService) redeemAsTransfer(ctx context.Context, userID uint, amount int64, recipientID uint) (*models.RedemptionRequest, error) {
	if recipientID == 0 {
		return nil, ErrIneligibleRecipient
	}
	if _, err := s.transfers.Transfer(ctx, userID, recipientID, amount, "token redemption transfer"); err != nil {
		return nil, err
	}
	req := models.RedemptionRequest{
		UserID:                  userID,
		Amount:                  amount,
		Method:                  models.RedemptionMethodPeerTransfer,
		Status:                  models.RedemptionStatusCompleted,
		ConversionRateAtRequest: 1,
		RequestedAt:             time.Now(),
	}
	now := time.Now()
	req.CompletedAt = &now
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// finalize conditionally moves a request out of pending. The WHERE on the
// current status makes the transition a compare-and-set: exactly one caller
// wins, and once a request leaves pending its status never changes again.
func (s *RedemptionService) finalize(ctx context.Context, req *models.RedemptionRequest, status string, completedAt *time.Time) (bool, error) {
	updates := map[string]interface{}{"status": status}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}
	res := s.db.WithContext(ctx).Model(&models.RedemptionRequest{}).
		Where("id = ? AND status = ?", req.ID, models.RedemptionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	req.Status = status
	req.CompletedAt = completedAt
	return true, nil
}

func (s *RedemptionService) complete(ctx context.Context, req *models.RedemptionRequest) (bool, error) {
	now := time.Now()
	return s.finalize(ctx, req, models.RedemptionStatusCompleted, &now)
}

// reverse finalizes a pending request as rejected and, only after winning
// that transition, applies the compensating credit. Losing means another
// caller already finalized the request, so no refund is owed.
func (s *RedemptionService) reverse(ctx context.Context, req *models.RedemptionRequest) (bool, error) {
	won, err := s.finalize(ctx, req, models.RedemptionStatusRejected, nil)
	if err != nil || !won {
		return won, err
	}
	_, err = s.ledger.Apply(ctx, ApplyInput{
		UserID:       req.UserID,
		ActivityType: models.ActivityRedemption,
		DeltaMilli:   req.Amount * 1000,
		Description:  fmt.Sprintf("redemption reversal, request %d", req.ID),
		DedupeKey:    fmt.Sprintf("redemption-reversal|%d", req.ID),
	})
	if err != nil && !errors.Is(err, ErrDuplicateActivity) {
		utils.Sugar.Errorf("compensating credit failed for redemption %d: %v", req.ID, err)
		return true, err
	}
	return true, nil
}

// grantPremium extends the premium window by days, stacking on an existing
// unexpired grant.
func (s *RedemptionService) grantPremium(ctx context.Context, userID uint, days int) error {
	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, userID).Error; err != nil {
		return err
	}
	from := time.Now()
	if account.PremiumUntil != nil && account.PremiumUntil.After(from) {
		from = *account.PremiumUntil
	}
	until := from.AddDate(0, 0, days)
	return s.db.WithContext(ctx).Model(&models.Account{}).Where("user_id = ?", userID).
		Updates(map[string]interface{}{"is_premium": true, "premium_until": until}).Error
}
