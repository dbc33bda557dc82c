package models

import "time"

// Transfer outcomes.
const (
	TransferStatusCompleted = "completed"
	TransferStatusRejected  = "rejected"
)

// TransferRecord captures one peer-to-peer transfer attempt. A completed
// record corresponds to exactly two activity log rows netting to zero.
type TransferRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SenderID    uint      `gorm:"index;not null" json:"sender_id"`
	RecipientID uint      `gorm:"index;not null" json:"recipient_id"`
	Amount      int64     `gorm:"not null" json:"amount"`
	Notes       string    `gorm:"size:255" json:"notes"`
	Status      string    `gorm:"size:16;index;not null" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
