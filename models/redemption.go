package models

import "time"

// Redemption methods.
const (
	RedemptionMethodCash         = "cash"
	RedemptionMethodCharity      = "charity"
	RedemptionMethodPremiumDays  = "premium_access_days"
	RedemptionMethodPeerTransfer = "peer_transfer"
)

// Redemption lifecycle states.
const (
	RedemptionStatusPending   = "pending"
	RedemptionStatusApproved  = "approved"
	RedemptionStatusRejected  = "rejected"
	RedemptionStatusCompleted = "completed"
)

// RedemptionRequest records one attempt to convert tokens into external value.
// The conversion rate is snapshotted at creation so later rate changes cannot
// alter a pending payout.
type RedemptionRequest struct {
	ID                      uint       `gorm:"primaryKey" json:"id"`
	UserID                  uint       `gorm:"index;not null" json:"user_id"`
	Amount                  int64      `gorm:"not null" json:"amount"`
	Method                  string     `gorm:"size:32;index;not null" json:"method"`
	Status                  string     `gorm:"size:16;index;not null" json:"status"`
	ConversionRateAtRequest float64    `gorm:"not null" json:"conversion_rate_at_request"`
	SettlementRef           string     `gorm:"size:64" json:"settlement_ref"`
	RequestedAt             time.Time  `gorm:"not null" json:"requested_at"`
	CompletedAt             *time.Time `json:"completed_at"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}
