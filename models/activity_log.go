package models

import "time"

// ActivityType enumerates every ledger-visible activity.
type ActivityType string

const (
	ActivityJournalEntry             ActivityType = "journal_entry"
	ActivityEmotionUpdate            ActivityType = "emotion_update"
	ActivityChatParticipation        ActivityType = "chat_participation"
	ActivityDailyLogin               ActivityType = "daily_login"
	ActivityBadgeEarned              ActivityType = "badge_earned"
	ActivityLevelUp                  ActivityType = "level_up"
	ActivityChallengeCompleted       ActivityType = "challenge_completed"
	ActivityChallengeOthersCompleted ActivityType = "challenge_others_completed"
	ActivityReferralBounty           ActivityType = "referral_bounty"
	ActivityStreakBonus              ActivityType = "streak_bonus"
	ActivityTransferIn               ActivityType = "transfer_in"
	ActivityTransferOut              ActivityType = "transfer_out"
	ActivityRedemption               ActivityType = "redemption"
)

// Valid reports whether t is one of the known activity types.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityJournalEntry, ActivityEmotionUpdate, ActivityChatParticipation,
		ActivityDailyLogin, ActivityBadgeEarned, ActivityLevelUp,
		ActivityChallengeCompleted, ActivityChallengeOthersCompleted,
		ActivityReferralBounty, ActivityStreakBonus,
		ActivityTransferIn, ActivityTransferOut, ActivityRedemption:
		return true
	}
	return false
}

// ActivityLogEntry is one append-only row per applied balance mutation.
// The sum of Delta over a user's rows always equals the account balance.
type ActivityLogEntry struct {
	ID           uint64       `gorm:"primaryKey" json:"id"`
	UserID       uint         `gorm:"index;not null" json:"user_id"`
	ActivityType ActivityType `gorm:"size:32;index;not null" json:"activity_type"`
	Delta        int64        `gorm:"not null" json:"delta"`
	Description  string       `gorm:"size:255" json:"description"`
	OccurredAt   time.Time    `gorm:"index;not null" json:"occurred_at"`
	// DedupeKey enforces at-most-once application of capped rewards.
	// NULL when the activity is uncapped.
	DedupeKey *string   `gorm:"size:191;uniqueIndex" json:"dedupe_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
