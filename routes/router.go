package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/moodlync/EmotionalSync-sub008/config"
	"github.com/moodlync/EmotionalSync-sub008/controllers"
	"github.com/moodlync/EmotionalSync-sub008/middleware"
	"github.com/moodlync/EmotionalSync-sub008/services"
	"github.com/moodlync/EmotionalSync-sub008/utils"
)

// Services bundles the ledger core handed to the router.
type Services struct {
	Ledger      *services.Ledger
	Rates       *services.RateTable
	Streaks     *services.StreakEvaluator
	Transfers   *services.TransferService
	Redemptions *services.RedemptionService
	Snapshots   *services.SnapshotGateway
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(svc Services) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	ledgerController := controllers.NewLedgerController(svc.Ledger, svc.Rates, svc.Streaks)
	transferController := controllers.NewTransferController(svc.Transfers, svc.Ledger)
	redemptionController := controllers.NewRedemptionController(svc.Redemptions, svc.Ledger)
	adminController := controllers.NewAdminController(svc.Rates, svc.Snapshots)

	api := r.Group("/api/v1")

	// Public reward schedule
	api.GET("/rates", ledgerController.Rates)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())

	protected.POST("/earn", ledgerController.Earn)
	protected.GET("/balance", ledgerController.Balance)
	protected.GET("/ledger/history", ledgerController.History)

	protected.POST("/transfer", transferController.Transfer)
	protected.GET("/transfer/history", transferController.History)
	protected.POST("/links", transferController.RequestLink)
	protected.POST("/links/:id/respond", transferController.RespondLink)
	protected.PATCH("/links/:id/transfer", transferController.SetLinkTransfer)
	protected.GET("/links", transferController.Links)

	protected.POST("/redeem", redemptionController.Redeem)
	protected.POST("/redeem/:id/cancel", redemptionController.Cancel)
	protected.GET("/redemptions", redemptionController.List)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
	admin.PUT("/rates", adminController.UpdateRate)
	admin.POST("/backup", adminController.Backup)
	admin.POST("/restore", adminController.Restore)
	admin.GET("/snapshots", adminController.Snapshots)
	admin.POST("/redemptions/:id/confirm", redemptionController.Confirm)
	admin.GET("/accounts/:id/verify", ledgerController.VerifyAccount)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
