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

// streakBonusFrom is the first streak day that earns a daily streak bonus.
const streakBonusFrom = 7

// StreakEvaluator advances the per-account check-in streak and emits credit
// requests into the ledger. It never touches balances directly.
type StreakEvaluator struct {
	db     *gorm.DB
	ledger *Ledger
	rates  *RateTable
}

// NewStreakEvaluator creates a streak evaluator.
func NewStreakEvaluator(db *gorm.DB, ledger *Ledger, rates *RateTable) *StreakEvaluator {
	return &StreakEvaluator{db: db, ledger: ledger, rates: rates}
}

// CheckInResult reports the streak state after a check-in together with the
// credits that were applied.
type CheckInResult struct {
	CurrentStreak int          `json:"current_streak"`
	LongestStreak int          `json:"longest_streak"`
	AlreadyDone   bool         `json:"already_checked_in"`
	Login         *ApplyResult `json:"login,omitempty"`
	Bonus         *ApplyResult `json:"bonus,omitempty"`
}

// CheckIn processes a daily check-in for day. The daily_login credit's dedupe
// key makes the whole operation idempotent per calendar day: the ledger apply
// decides the winner when check-ins race, and the winner advances the streak
// counters in the same transaction as the credit, so a losing check-in always
// reads fully-committed counters.
func (s *StreakEvaluator) CheckIn(ctx context.Context, userID uint, day time.Time) (*CheckInResult, error) {
	rate, err := s.rates.Resolve(models.ActivityDailyLogin, "")
	if err != nil {
		return nil, err
	}

	var streak, longest int
	login, err := s.ledger.Apply(ctx, ApplyInput{
		UserID:       userID,
		ActivityType: models.ActivityDailyLogin,
		DeltaMilli:   rate.RewardMilli,
		Description:  "daily check-in",
		DedupeKey:    DailyDedupeKey(userID, models.ActivityDailyLogin, day),
	}, func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.First(&account, userID).Error; err != nil {
			return err
		}
		streak = 1
		if account.LastCheckInDate != nil && isYesterday(*account.LastCheckInDate, day) {
			streak = account.CurrentStreak + 1
		}
		longest = account.LongestStreak
		if streak > longest {
			longest = streak
		}
		return tx.Model(&models.Account{}).Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"current_streak":     streak,
				"longest_streak":     longest,
				"last_check_in_date": dateOnly(day),
			}).Error
	})
	if errors.Is(err, ErrDuplicateActivity) {
		var account models.Account
		if dbErr := s.db.WithContext(ctx).First(&account, userID).Error; dbErr != nil {
			return nil, dbErr
		}
		return &CheckInResult{
			CurrentStreak: account.CurrentStreak,
			LongestStreak: account.LongestStreak,
			AlreadyDone:   true,
			Login:         login,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	res := &CheckInResult{CurrentStreak: streak, LongestStreak: longest, Login: login}

	if streak >= streakBonusFrom {
		bonusRate, err := s.rates.Resolve(models.ActivityStreakBonus, "")
		if err != nil {
			return nil, err
		}
		bonus, err := s.ledger.Apply(ctx, ApplyInput{
			UserID:       userID,
			ActivityType: models.ActivityStreakBonus,
			DeltaMilli:   bonusRate.RewardMilli,
			Description:  fmt.Sprintf("streak bonus, day %d", streak),
			DedupeKey:    DailyDedupeKey(userID, models.ActivityStreakBonus, day),
		})
		if err != nil && !errors.Is(err, ErrDuplicateActivity) {
			utils.Sugar.Warnf("streak bonus apply failed user=%d day=%s: %v", userID, day.Format("2006-01-02"), err)
		} else {
			res.Bonus = bonus
		}
	}

	return res, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isYesterday(last, today time.Time) bool {
	y := dateOnly(today).AddDate(0, 0, -1)
	return last.Year() == y.Year() && last.YearDay() == y.YearDay()
}
