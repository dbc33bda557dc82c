package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/moodlync/EmotionalSync-sub008/services"
	"github.com/moodlync/EmotionalSync-sub008/utils"
)

// TransferController handles peer-to-peer transfer and family link endpoints.
type TransferController struct {
	transfers *services.TransferService
	ledger    *services.Ledger
}

// NewTransferController creates a new controller instance.
func NewTransferController(transfers *services.TransferService, ledger *services.Ledger) *TransferController {
	return &TransferController{transfers: transfers, ledger: ledger}
}

// Transfer moves tokens from the caller to a linked account.
func (t *TransferController) Transfer(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		RecipientID uint   `json:"recipient_id" binding:"required"`
		Amount      int64  `json:"amount" binding:"required,gt=0"`
		Notes       string `json:"notes"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	record, err := t.transfers.Transfer(ctx.Request.Context(), userID, req.RecipientID, req.Amount, req.Notes)
	if err != nil {
		if errors.Is(err, services.ErrInsufficientBalance) {
			balance, balErr := t.ledger.Balance(ctx.Request.Context(), userID)
			if balErr == nil {
				serviceError(ctx, err, &balance)
				return
			}
		}
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{"transfer": record})
}

// History lists transfers involving the caller.
func (t *TransferController) History(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	records, total, err := t.transfers.History(ctx.Request.Context(), userID, page, pageSize)
	if err != nil {
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{
		"transfers": records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// RequestLink creates a pending family link from the caller to another user.
func (t *TransferController) RequestLink(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req struct {
		RelatedUserID uint `json:"related_user_id" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	link, err := t.transfers.RequestLink(ctx.Request.Context(), userID, req.RelatedUserID)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateActivity) {
			utils.Error(ctx, http.StatusConflict, 40941, "link already exists")
			return
		}
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{"link": link})
}

// RespondLink accepts or rejects a pending link addressed to the caller.
func (t *TransferController) RespondLink(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	linkID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid link id")
		return
	}
	var req struct {
		Accept bool `json:"accept"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	link, err := t.transfers.RespondLink(ctx.Request.Context(), uint(linkID), userID, req.Accept)
	if err != nil {
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{"link": link})
}

// SetLinkTransfer toggles transfers over an accepted link.
func (t *TransferController) SetLinkTransfer(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	linkID, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid link id")
		return
	}
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	link, err := t.transfers.SetTransferEnabled(ctx.Request.Context(), uint(linkID), userID, *req.Enabled)
	if err != nil {
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{"link": link})
}

// Links lists the caller's family links.
func (t *TransferController) Links(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	links, err := t.transfers.Links(ctx.Request.Context(), userID)
	if err != nil {
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{"links": links})
}
