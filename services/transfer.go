package services

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/moodlync/EmotionalSync-sub008/models"
	"github.com/moodlync/EmotionalSync-sub008/utils"
)

// transferNotesMaxLen bounds the free-text notes persisted with a transfer.
const transferNotesMaxLen = 255

// TransferService validates peer-to-peer transfers between linked accounts
// and submits paired debit/credit operations to the ledger.
type TransferService struct {
	db     *gorm.DB
	ledger *Ledger
}

// NewTransferService creates a transfer service.
func NewTransferService(db *gorm.DB, ledger *Ledger) *TransferService {
	return &TransferService{db: db, ledger: ledger}
}

// Transfer moves whole tokens from sender to recipient. Preconditions are
// checked in order and the first failure wins. The completed audit record is
// written in the same transaction as the paired apply, so the two ledger
// entries and the record commit or roll back together. When the paired apply
// fails (for example a concurrent spend emptied the balance), the record is
// still persisted with status rejected and no balance changes.
func (s *TransferService) Transfer(ctx context.Context, senderID, recipientID uint, amount int64, notes string) (*models.TransferRecord, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if senderID == recipientID {
		return nil, ErrIneligibleRecipient
	}
	linked, err := s.linkAllowsTransfer(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}
	if !linked {
		return nil, ErrIneligibleRecipient
	}

	notes = truncate(utils.Sanitize(notes), transferNotesMaxLen)

	record := models.TransferRecord{
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      amount,
		Notes:       notes,
	}

	record.Status = models.TransferStatusCompleted
	_, _, applyErr := s.ledger.ApplyPaired(ctx,
		ApplyInput{
			UserID:       senderID,
			ActivityType: models.ActivityTransferOut,
			DeltaMilli:   -amount * 1000,
			Description:  fmt.Sprintf("transfer to user %d", recipientID),
		},
		ApplyInput{
			UserID:       recipientID,
			ActivityType: models.ActivityTransferIn,
			DeltaMilli:   amount * 1000,
			Description:  fmt.Sprintf("transfer from user %d", senderID),
		},
		func(tx *gorm.DB) error {
			return tx.Create(&record).Error
		},
	)
	if applyErr != nil {
		record.ID = 0
		record.Status = models.TransferStatusRejected
		if dbErr := s.db.WithContext(ctx).Create(&record).Error; dbErr != nil {
			utils.Sugar.Errorf("failed to persist rejected transfer %d->%d: %v", senderID, recipientID, dbErr)
		}
		return &record, applyErr
	}
	return &record, nil
}

// History lists transfers where the user was sender or recipient, newest first.
func (s *TransferService) History(ctx context.Context, userID uint, page, pageSize int) ([]models.TransferRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	var records []models.TransferRecord
	var total int64
	q := s.db.WithContext(ctx).Model(&models.TransferRecord{}).
		Where("sender_id = ? OR recipient_id = ?", userID, userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&records).Error
	return records, total, err
}

// linkAllowsTransfer reports whether an accepted, transfer-enabled family
// link exists between the two users in either direction.
func (s *TransferService) linkAllowsTransfer(ctx context.Context, senderID, recipientID uint) (bool, error) {
	var link models.FamilyLink
	err := s.db.WithContext(ctx).
		Where("((user_id = ? AND related_user_id = ?) OR (user_id = ? AND related_user_id = ?)) AND status = ? AND transfer_enabled = ?",
			senderID, recipientID, recipientID, senderID, models.LinkStatusAccepted, true).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RequestLink creates a pending family link from userID to relatedID.
func (s *TransferService) RequestLink(ctx context.Context, userID, relatedID uint) (*models.FamilyLink, error) {
	if userID == relatedID {
		return nil, ErrIneligibleRecipient
	}
	link := models.FamilyLink{
		UserID:        userID,
		RelatedUserID: relatedID,
		Status:        models.LinkStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateActivity
		}
		return nil, err
	}
	return &link, nil
}

// RespondLink lets the related user accept or reject a pending link.
func (s *TransferService) RespondLink(ctx context.Context, linkID, responderID uint, accept bool) (*models.FamilyLink, error) {
	var link models.FamilyLink
	err := s.db.WithContext(ctx).First(&link, linkID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if link.RelatedUserID != responderID || link.Status != models.LinkStatusPending {
		return nil, ErrIneligibleRecipient
	}
	link.Status = models.LinkStatusRejected
	if accept {
		link.Status = models.LinkStatusAccepted
	}
	if err := s.db.WithContext(ctx).Save(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// SetTransferEnabled toggles transfers over an accepted link. Either side of
// the link may toggle it.
func (s *TransferService) SetTransferEnabled(ctx context.Context, linkID, userID uint, enabled bool) (*models.FamilyLink, error) {
	var link models.FamilyLink
	err := s.db.WithContext(ctx).First(&link, linkID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if link.UserID != userID && link.RelatedUserID != userID {
		return nil, ErrIneligibleRecipient
	}
	if link.Status != models.LinkStatusAccepted {
		return nil, ErrIneligibleRecipient
	}
	link.TransferEnabled = enabled
	if err := s.db.WithContext(ctx).Save(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// Links lists the user's family links in both directions.
func (s *TransferService) Links(ctx context.Context, userID uint) ([]models.FamilyLink, error) {
	var links []models.FamilyLink
	err := s.db.WithContext(ctx).
		Where("user_id = ? OR related_user_id = ?", userID, userID).
		Order("id").Find(&links).Error
	return links, err
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
