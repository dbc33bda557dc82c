package models

import (
	"time"

	"gorm.io/gorm"
)

// Account holds the ledger-relevant state for one user. The token balance is
// owned exclusively by the ledger engine; no other code updates it.
type Account struct {
	UserID          uint           `gorm:"primaryKey" json:"user_id"`
	TokenBalance    int64          `gorm:"not null;default:0" json:"token_balance"`
	CurrentStreak   int            `gorm:"default:0" json:"current_streak"`
	LongestStreak   int            `gorm:"default:0" json:"longest_streak"`
	LastCheckInDate *time.Time     `json:"last_check_in_date"`
	IsPremium       bool           `gorm:"default:false" json:"is_premium"`
	PremiumUntil    *time.Time     `json:"premium_until"`
	IsProtected     bool           `gorm:"default:false" json:"is_protected"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (a *Account) BeforeUpdate(tx *gorm.DB) error {
	a.UpdatedAt = time.Now()
	return nil
}
