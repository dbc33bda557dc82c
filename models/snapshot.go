package models

import "time"

// Snapshot lifecycle states.
const (
	SnapshotStatusInProgress = "in_progress"
	SnapshotStatusCompleted  = "completed"
	SnapshotStatusFailed     = "failed"
)

// SnapshotMetadata describes one exported ledger snapshot. Rows are immutable
// once the status reaches completed.
type SnapshotMetadata struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Description   string    `gorm:"size:255" json:"description"`
	ComponentList string    `gorm:"size:255" json:"component_list"`
	SizeBytes     int64     `json:"size_bytes"`
	Checksum      string    `gorm:"size:64" json:"checksum"`
	Status        string    `gorm:"size:16;index;not null" json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
