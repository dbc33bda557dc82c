package models

import "time"

// Cap policies for reward rates.
const (
	CapNone  = "none"      // unlimited
	CapDaily = "daily"     // once per calendar day
	CapByRef = "reference" // once per external reference (badge, level, challenge...)
)

// ActivityRate is one admin-tunable reward rate. Rewards are stored in
// milli-tokens so fractional rates like 0.25 survive without floats; the
// ledger engine rounds to whole tokens at apply time.
type ActivityRate struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	ActivityType ActivityType `gorm:"size:32;index:idx_rate_type_tier,unique;not null" json:"activity_type"`
	Tier         string       `gorm:"size:32;index:idx_rate_type_tier,unique;default:''" json:"tier"`
	RewardMilli  int64        `gorm:"not null" json:"reward_milli"`
	CapPolicy    string       `gorm:"size:16;not null" json:"cap_policy"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
