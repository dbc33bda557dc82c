package main

import (
	"log"
	"time"

	"github.com/moodlync/EmotionalSync-sub008/config"
	"github.com/moodlync/EmotionalSync-sub008/models"
	"github.com/moodlync/EmotionalSync-sub008/routes"
	"github.com/moodlync/EmotionalSync-sub008/scheduler"
	"github.com/moodlync/EmotionalSync-sub008/services"
	"github.com/moodlync/EmotionalSync-sub008/utils"
)

func main() {
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.Account{},
		&models.ActivityLogEntry{},
		&models.FamilyLink{},
		&models.TransferRecord{},
		&models.RedemptionRequest{},
		&models.SnapshotMetadata{},
		&models.ActivityRate{},
	)

	rates, err := services.NewRateTable(db)
	if err != nil {
		utils.Sugar.Fatalf("failed to load rate table: %v", err)
	}

	gate := services.NewRestoreGate()
	ledger := services.NewLedger(db, gate, time.Duration(cfg.LockWaitMs)*time.Millisecond)
	streaks := services.NewStreakEvaluator(db, ledger, rates)
	transfers := services.NewTransferService(db, ledger)
	settlement := services.NewHTTPSettlement(cfg.SettlementURL, time.Duration(cfg.SettlementTimeoutSec)*time.Second)
	redemptions := services.NewRedemptionService(db, ledger, transfers, settlement, services.RedemptionConfig{
		CashRatePerToken: cfg.CashRatePerToken,
		CashMinTokens:    cfg.CashMinTokens,
		CharityMinTokens: cfg.CharityMinTokens,
	})

	blobs, err := services.NewFSBlobStore(cfg.SnapshotDir)
	if err != nil {
		utils.Sugar.Fatalf("failed to open snapshot store: %v", err)
	}
	snapshots := services.NewSnapshotGateway(db, ledger, gate, blobs)

	snapshotJob := scheduler.NewSnapshotScheduler(snapshots, cfg.SnapshotCron)
	if err := snapshotJob.Start(); err != nil {
		utils.Sugar.Fatalf("failed to start snapshot scheduler: %v", err)
	}
	defer snapshotJob.Stop()

	r := routes.SetupRouter(routes.Services{
		Ledger:      ledger,
		Rates:       rates,
		Streaks:     streaks,
		Transfers:   transfers,
		Redemptions: redemptions,
		Snapshots:   snapshots,
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
