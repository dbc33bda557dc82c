package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/moodlync/EmotionalSync-sub008/models"
)

// newTestDB opens a per-test in-memory database to avoid cross-test
// interference, mirroring the production schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the shared-cache database alive and
	// serializes writers under SQLite.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Account{},
		&models.ActivityLogEntry{},
		&models.FamilyLink{},
		&models.TransferRecord{},
		&models.RedemptionRequest{},
		&models.SnapshotMetadata{},
		&models.ActivityRate{},
	))
	return db
}

func newTestLedger(t *testing.T, db *gorm.DB) (*Ledger, *restoreGate) {
	t.Helper()
	gate := NewRestoreGate()
	return NewLedger(db, gate, 2*time.Second), gate
}

// credit seeds a balance through the ledger so the log invariant holds in
// every test fixture.
func credit(t *testing.T, ledger *Ledger, userID uint, tokens int64) {
	t.Helper()
	_, err := ledger.Apply(context.Background(), ApplyInput{
		UserID:       userID,
		ActivityType: models.ActivityEmotionUpdate,
		DeltaMilli:   tokens * 1000,
		Description:  "test seed",
	})
	require.NoError(t, err)
}

func entryCount(t *testing.T, db *gorm.DB, userID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.ActivityLogEntry{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func logSum(t *testing.T, db *gorm.DB, userID uint) int64 {
	t.Helper()
	var sum int64
	require.NoError(t, db.Model(&models.ActivityLogEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(delta),0)").Scan(&sum).Error)
	return sum
}

func acceptedLink(t *testing.T, db *gorm.DB, a, b uint) *models.FamilyLink {
	t.Helper()
	link := models.FamilyLink{
		UserID:          a,
		RelatedUserID:   b,
		Status:          models.LinkStatusAccepted,
		TransferEnabled: true,
	}
	require.NoError(t, db.Create(&link).Error)
	return &link
}
