package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/moodlync/EmotionalSync-sub008/middleware"
	"github.com/moodlync/EmotionalSync-sub008/services"
	"github.com/moodlync/EmotionalSync-sub008/utils"
)

// getUserID extracts the authenticated user id set by the auth middleware.
func getUserID(ctx *gin.Context) (uint, bool) {
	v, ok := ctx.Get(middleware.ContextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size < 1 || size > 100 {
		size = 20
	}
	return page, size
}

// serviceError maps ledger taxonomy errors onto the uniform JSON envelope.
// Balance-affecting failures carry the current balance in data so clients
// never have to guess whether a mutation partially applied.
func serviceError(ctx *gin.Context, err error, balance *int64) {
	var data interface{}
	if balance != nil {
		data = gin.H{"balance": *balance}
	}
	switch {
	case errors.Is(err, services.ErrInsufficientBalance):
		utils.Respond(ctx, http.StatusBadRequest, 40044, "insufficient balance", data)
	case errors.Is(err, services.ErrBelowMinimum):
		utils.Respond(ctx, http.StatusBadRequest, 40042, "amount below redemption minimum", data)
	case errors.Is(err, services.ErrIneligibleRecipient):
		utils.Error(ctx, http.StatusBadRequest, 40043, "recipient not eligible")
	case errors.Is(err, services.ErrInvalidAmount):
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid amount")
	case errors.Is(err, services.ErrUnknownActivity):
		utils.Error(ctx, http.StatusBadRequest, 40041, "unknown activity type")
	case errors.Is(err, services.ErrAccountFrozen):
		utils.Error(ctx, http.StatusForbidden, 40045, "account is frozen")
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40440, "record not found")
	case errors.Is(err, services.ErrNotCancellable):
		utils.Error(ctx, http.StatusConflict, 40940, "redemption already finalized")
	case errors.Is(err, services.ErrRestoreInProgress):
		utils.Error(ctx, http.StatusServiceUnavailable, 50341, "restore in progress, retry later")
	case errors.Is(err, services.ErrLockTimeout):
		utils.Error(ctx, http.StatusServiceUnavailable, 50342, "ledger busy, retry later")
	case errors.Is(err, services.ErrSettlementFailed):
		utils.Respond(ctx, http.StatusBadGateway, 50240, "settlement failed, tokens refunded", data)
	case errors.Is(err, services.ErrSnapshotCorrupt):
		utils.Error(ctx, http.StatusUnprocessableEntity, 42240, "snapshot failed integrity check")
	default:
		utils.Error(ctx, http.StatusInternalServerError, 50040, "ledger operation failed")
	}
}
