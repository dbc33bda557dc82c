package models

import "time"

// Family link lifecycle states.
const (
	LinkStatusPending  = "pending"
	LinkStatusAccepted = "accepted"
	LinkStatusRejected = "rejected"
)

// FamilyLink connects two accounts for peer-to-peer transfers. A link is
// directional: UserID requested it, RelatedUserID accepted or rejected it.
// Transfers in either direction require an accepted link with transfers enabled.
type FamilyLink struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"index:idx_family_pair,unique;not null" json:"user_id"`
	RelatedUserID   uint      `gorm:"index:idx_family_pair,unique;not null" json:"related_user_id"`
	Status          string    `gorm:"size:16;default:pending" json:"status"`
	TransferEnabled bool      `gorm:"default:false" json:"transfer_enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
