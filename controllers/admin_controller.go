package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moodlync/EmotionalSync-sub008/models"
	"github.com/moodlync/EmotionalSync-sub008/services"
	"github.com/moodlync/EmotionalSync-sub008/utils"
)

// AdminController exposes operator endpoints: rate management and the
// snapshot/restore gateway.
type AdminController struct {
	rates     *services.RateTable
	snapshots *services.SnapshotGateway
}

// NewAdminController creates a new controller instance.
func NewAdminController(rates *services.RateTable, snapshots *services.SnapshotGateway) *AdminController {
	return &AdminController{rates: rates, snapshots: snapshots}
}

// UpdateRate writes one reward rate and hot-reloads the table. In-flight
// earns keep the value they read at call start.
func (a *AdminController) UpdateRate(ctx *gin.Context) {
	var req struct {
		ActivityType string `json:"activity_type" binding:"required"`
		Tier         string `json:"tier"`
		RewardMilli  int64  `json:"reward_milli"`
		CapPolicy    string `json:"cap_policy" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	err := a.rates.Update(ctx.Request.Context(), models.ActivityType(req.ActivityType), req.Tier, req.RewardMilli, req.CapPolicy)
	if err != nil {
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{"rates": a.rates.List()})
}

// Backup exports a snapshot of the full ledger.
func (a *AdminController) Backup(ctx *gin.Context) {
	var req struct {
		Description string `json:"description"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	meta, err := a.snapshots.Export(ctx.Request.Context(), utils.Sanitize(req.Description))
	if err != nil {
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{"snapshot": meta})
}

// Restore replaces ledger state from a prior snapshot. Protected accounts
// are retained; the ledger rejects mutations for the duration.
func (a *AdminController) Restore(ctx *gin.Context) {
	var req struct {
		SnapshotID string `json:"snapshot_id" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	if err := a.snapshots.Restore(ctx.Request.Context(), req.SnapshotID); err != nil {
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{"restored": req.SnapshotID})
}

// Snapshots lists snapshot metadata, newest first.
func (a *AdminController) Snapshots(ctx *gin.Context) {
	metas, err := a.snapshots.List(ctx.Request.Context())
	if err != nil {
		serviceError(ctx, err, nil)
		return
	}
	utils.Success(ctx, gin.H{"snapshots": metas})
}
