package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moodlync/EmotionalSync-sub008/models"
	"github.com/moodlync/EmotionalSync-sub008/services"
	"github.com/moodlync/EmotionalSync-sub008/utils"
)

// LedgerController exposes earning, balance and history endpoints.
type LedgerController struct {
	ledger  *services.Ledger
	rates   *services.RateTable
	streaks *services.StreakEvaluator
}

// NewLedgerController creates a new controller instance.
func NewLedgerController(ledger *services.Ledger, rates *services.RateTable, streaks *services.StreakEvaluator) *LedgerController {
	return &LedgerController{ledger: ledger, rates: rates, streaks: streaks}
}

// Earn credits the caller for a qualifying activity. daily_login routes
// through the streak evaluator; everything else is a rate lookup plus a
// ledger apply. Capped duplicates come back as an idempotent success.
func (l *LedgerController) Earn(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		ActivityType string `json:"activity_type" binding:"required"`
		Tier         string `json:"tier"`
		Reference    string `json:"reference"`
		Description  string `json:"description"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	activity := models.ActivityType(req.ActivityType)
	if !activity.Valid() {
		utils.Error(ctx, http.StatusBadRequest, 40041, "unknown activity type")
		return
	}

	if activity == models.ActivityDailyLogin {
		res, err := l.streaks.CheckIn(ctx.Request.Context(), userID, time.Now())
		if err != nil {
			serviceError(ctx, err, nil)
			return
		}
		utils.Success(ctx, res)
		return
	}

	rate, err := l.rates.Resolve(activity, req.Tier)
	if err != nil {
		serviceError(ctx, err, nil)
		return
	}
	key, err := l.rates.DedupeKey(userID, rate, req.Reference, time.Now())
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40022, "activity requires a reference id")
		return
	}

	description := utils.Sanitize(req.Description)
	if description == "" {
		description = string(activity)
	}

	res, err := l.ledger.Apply(ctx.Request.Context(), services.ApplyInput{
		UserID:       userID,
		ActivityType: activity,
		DeltaMilli:   rate.RewardMilli,
		Description:  description,
		DedupeKey:    key,
	})
	if errors.Is(err, services.ErrDuplicateActivity) {
		// Already earned for this period; report the original outcome.
		utils.Success(ctx, res)
		return
	}
	if err != nil {
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, res)
}

// Balance returns the caller's current token balance.
func (l *LedgerController) Balance(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	balance, err := l.ledger.Balance(ctx.Request.Context(), userID)
	if err != nil {
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{"balance": balance})
}

// History returns the caller's activity log, newest first.
func (l *LedgerController) History(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	entries, total, err := l.ledger.History(ctx.Request.Context(), userID, page, pageSize)
	if err != nil {
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{
		"entries":   entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Rates lists the current reward schedule.
func (l *LedgerController) Rates(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"rates": l.rates.List()})
}

// VerifyAccount is the admin audit endpoint: re-sums an account's log and
// compares it to the stored balance.
func (l *LedgerController) VerifyAccount(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid account id")
		return
	}
	balance, logSum, ok, err := l.ledger.VerifyAccount(ctx.Request.Context(), uint(id))
	if err != nil {
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{
		"balance":    balance,
		"log_sum":    logSum,
		"consistent": ok,
	})
}
