package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/moodlync/EmotionalSync-sub008/services"
	"github.com/moodlync/EmotionalSync-sub008/utils"
)

// RedemptionController handles token redemption endpoints.
type RedemptionController struct {
	redemptions *services.RedemptionService
	ledger      *services.Ledger
}

// NewRedemptionController creates a new controller instance.
func NewRedemptionController(redemptions *services.RedemptionService, ledger *services.Ledger) *RedemptionController {
	return &RedemptionController{redemptions: redemptions, ledger: ledger}
}

// Redeem converts tokens into cash, a charity donation, premium access days
// or a peer transfer.
func (r *RedemptionController) Redeem(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Amount      int64  `json:"amount" binding:"required,gt=0"`
		Method      string `json:"method" binding:"required"`
		RecipientID uint   `json:"recipient_id"` // peer_transfer only
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	request, err := r.redemptions.Redeem(ctx.Request.Context(), userID, req.Amount, req.Method, req.RecipientID)
	if err != nil {
		if errors.Is(err, services.ErrInsufficientBalance) ||
			errors.Is(err, services.ErrBelowMinimum) ||
			errors.Is(err, services.ErrSettlementFailed) {
			balance, balErr := r.ledger.Balance(ctx.Request.Context(), userID)
			if balErr == nil {
				serviceError(ctx, err, &balance)
				return
			}
		}
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{"redemption": request})
}

// Cancel reverses a still-pending redemption.
func (r *RedemptionController) Cancel(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid redemption id")
		return
	}
	request, svcErr := r.redemptions.Cancel(ctx.Request.Context(), userID, uint(id))
	if svcErr != nil {
		serviceError(ctx, svcErr, nil)
		return
	}
	utils.Success(ctx, gin.H{"redemption": request})
}

// List returns the caller's redemption requests.
func (r *RedemptionController) List(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	requests, total, err := r.redemptions.List(ctx.Request.Context(), userID, page, pageSize)
	if err != nil {
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{
		"redemptions": requests,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
	})
}

// Confirm finalizes a pending redemption once settlement confirms. Admin
// only: driven by the payout gateway's callback processing.
func (r *RedemptionController) Confirm(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid redemption id")
		return
	}
	request, svcErr := r.redemptions.Confirm(ctx.Request.Context(), uint(id))
	if svcErr != nil {
		serviceError(ctx, svcErr, nil)
		return
	}
	utils.Success(ctx, gin.H{"redemption": request})
}
