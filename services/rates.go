package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/moodlync/EmotionalSync-sub008/models"
)

// Rate is the in-memory view of one reward rate.
type Rate struct {
	ActivityType models.ActivityType `json:"activity_type"`
	Tier         string              `json:"tier"`
	RewardMilli  int64               `json:"reward_milli"`
	CapPolicy    string              `json:"cap_policy"`
}

// RateTable serves reward lookups from memory and persists admin changes to
// the activity_rates table. Reads are lock-free for in-flight applies: an
// Apply uses the value read at call start even if an admin reloads mid-flight.
type RateTable struct {
	db *gorm.DB

	mu    sync.RWMutex
	rates map[string]Rate
}

// NewRateTable seeds missing default rates and loads the table into memory.
func NewRateTable(db *gorm.DB) (*RateTable, error) {
	t := &RateTable{db: db, rates: map[string]Rate{}}
	if err := t.seedDefaults(); err != nil {
		return nil, err
	}
	if err := t.Reload(context.Background()); err != nil {
		return nil, err
	}
	return t, nil
}

// defaultRates carries the shipped reward schedule. Admin edits override rows
// in the database; seeding never overwrites an existing row.
var defaultRates = []models.ActivityRate{
	{ActivityType: models.ActivityDailyLogin, RewardMilli: 250, CapPolicy: models.CapDaily},
	{ActivityType: models.ActivityJournalEntry, RewardMilli: 500, CapPolicy: models.CapDaily},
	{ActivityType: models.ActivityEmotionUpdate, RewardMilli: 250, CapPolicy: models.CapNone},
	{ActivityType: models.ActivityChatParticipation, RewardMilli: 250, CapPolicy: models.CapNone},
	{ActivityType: models.ActivityChatParticipation, Tier: "active", RewardMilli: 500, CapPolicy: models.CapNone},
	{ActivityType: models.ActivityBadgeEarned, RewardMilli: 500, CapPolicy: models.CapByRef},
	{ActivityType: models.ActivityLevelUp, RewardMilli: 1250, CapPolicy: models.CapByRef},
	{ActivityType: models.ActivityChallengeCompleted, Tier: "easy", RewardMilli: 500, CapPolicy: models.CapByRef},
	{ActivityType: models.ActivityChallengeCompleted, Tier: "moderate", RewardMilli: 1000, CapPolicy: models.CapByRef},
	{ActivityType: models.ActivityChallengeCompleted, Tier: "hard", RewardMilli: 1250, CapPolicy: models.CapByRef},
	{ActivityType: models.ActivityChallengeCompleted, Tier: "extreme", RewardMilli: 1750, CapPolicy: models.CapByRef},
	{ActivityType: models.ActivityChallengeOthersCompleted, RewardMilli: 500, CapPolicy: models.CapByRef},
	{ActivityType: models.ActivityChallengeOthersCompleted, Tier: "major", RewardMilli: 1000, CapPolicy: models.CapByRef},
	{ActivityType: models.ActivityReferralBounty, Tier: "5", RewardMilli: 300_000, CapPolicy: models.CapByRef},
	{ActivityType: models.ActivityReferralBounty, Tier: "10", RewardMilli: 500_000, CapPolicy: models.CapByRef},
	{ActivityType: models.ActivityReferralBounty, Tier: "25", RewardMilli: 750_000, CapPolicy: models.CapByRef},
	{ActivityType: models.ActivityReferralBounty, Tier: "50", RewardMilli: 1_000_000, CapPolicy: models.CapByRef},
	{ActivityType: models.ActivityStreakBonus, RewardMilli: 750, CapPolicy: models.CapDaily},
}

func (t *RateTable) seedDefaults() error {
	for _, r := range defaultRates {
		row := r
		err := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
		if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return nil
}

// Reload replaces the in-memory table from the database. Safe to call while
// applies are running.
func (t *RateTable) Reload(ctx context.Context) error {
	var rows []models.ActivityRate
	if err := t.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return err
	}
	next := make(map[string]Rate, len(rows))
	for _, r := range rows {
		next[rateKey(r.ActivityType, r.Tier)] = Rate{
			ActivityType: r.ActivityType,
			Tier:         r.Tier,
			RewardMilli:  r.RewardMilli,
			CapPolicy:    r.CapPolicy,
		}
	}
	t.mu.Lock()
	t.rates = next
	t.mu.Unlock()
	return nil
}

// Resolve returns the rate for an activity and tier. Tiered activities fall
// back to their untiered row when the tier has no dedicated rate.
func (t *RateTable) Resolve(activity models.ActivityType, tier string) (Rate, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.rates[rateKey(activity, tier)]; ok {
		return r, nil
	}
	if tier != "" {
		if r, ok := t.rates[rateKey(activity, "")]; ok {
			return r, nil
		}
	}
	return Rate{}, ErrUnknownActivity
}

// List returns every rate currently in memory.
func (t *RateTable) List() []Rate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Rate, 0, len(t.rates))
	for _, r := range t.rates {
		out = append(out, r)
	}
	return out
}

// Update writes an admin rate change and reloads the in-memory table.
func (t *RateTable) Update(ctx context.Context, activity models.ActivityType, tier string, rewardMilli int64, capPolicy string) error {
	if !activity.Valid() {
		return ErrUnknownActivity
	}
	if rewardMilli < 0 {
		return ErrInvalidAmount
	}
	switch capPolicy {
	case models.CapNone, models.CapDaily, models.CapByRef:
	default:
		return fmt.Errorf("unknown cap policy %q", capPolicy)
	}
	row := models.ActivityRate{
		ActivityType: activity,
		Tier:         tier,
		RewardMilli:  rewardMilli,
		CapPolicy:    capPolicy,
	}
	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "activity_type"}, {Name: "tier"}},
		DoUpdates: clause.AssignmentColumns([]string{"reward_milli", "cap_policy", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return err
	}
	return t.Reload(ctx)
}

// DedupeKey builds the uniqueness key for a capped reward. Daily-capped
// activities key on the calendar date; reference-capped ones key on the
// supplied reference (badge id, level, challenge instance, completer id,
// milestone). Uncapped activities return "".
func (t *RateTable) DedupeKey(userID uint, rate Rate, ref string, day time.Time) (string, error) {
	switch rate.CapPolicy {
	case models.CapNone:
		return "", nil
	case models.CapDaily:
		return DailyDedupeKey(userID, rate.ActivityType, day), nil
	case models.CapByRef:
		if ref == "" {
			return "", fmt.Errorf("%w: %s requires a reference id", ErrInvalidAmount, rate.ActivityType)
		}
		return fmt.Sprintf("%d|%s|%s", userID, rate.ActivityType, ref), nil
	}
	return "", fmt.Errorf("unknown cap policy %q", rate.CapPolicy)
}

// DailyDedupeKey is the userId|activity|date key used for once-per-day caps.
func DailyDedupeKey(userID uint, activity models.ActivityType, day time.Time) string {
	return fmt.Sprintf("%d|%s|%s", userID, activity, day.Format("2006-01-02"))
}

func rateKey(activity models.ActivityType, tier string) string {
	return string(activity) + "|" + tier
}
