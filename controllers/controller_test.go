package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/moodlync/EmotionalSync-sub008/middleware"
	"github.com/moodlync/EmotionalSync-sub008/models"
	"github.com/moodlync/EmotionalSync-sub008/services"
)

// envelope mirrors utils.JSONResponse for decoding handler output.
type envelope struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

// stubSettlement always confirms so controller tests stay deterministic.
type stubSettlement struct{}

func (stubSettlement) Settle(_ context.Context, _ services.SettlementRequest) (services.SettlementStatus, error) {
	return services.SettlementConfirmed, nil
}

type testAPI struct {
	db     *gorm.DB
	ledger *services.Ledger
	router *gin.Engine
}

// asUser injects the authenticated user id the way the JWT middleware would.
func asUser(id uint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set(middleware.ContextUserIDKey, id)
		ctx.Next()
	}
}

func setupAPI(t *testing.T, userID uint) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
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

	gate := services.NewRestoreGate()
	ledger := services.NewLedger(db, gate, 2*time.Second)
	rates, err := services.NewRateTable(db)
	require.NoError(t, err)
	streaks := services.NewStreakEvaluator(db, ledger, rates)
	transfers := services.NewTransferService(db, ledger)
	redemptions := services.NewRedemptionService(db, ledger, transfers, stubSettlement{}, services.RedemptionConfig{})

	ledgerCtl := NewLedgerController(ledger, rates, streaks)
	transferCtl := NewTransferController(transfers, ledger)
	redemptionCtl := NewRedemptionController(redemptions, ledger)

	router := gin.New()
	api := router.Group("/api/v1", asUser(userID))
	api.POST("/earn", ledgerCtl.Earn)
	api.GET("/balance", ledgerCtl.Balance)
	api.GET("/ledger/history", ledgerCtl.History)
	api.GET("/rates", ledgerCtl.Rates)
	api.POST("/transfer", transferCtl.Transfer)
	api.POST("/links", transferCtl.RequestLink)
	api.POST("/redeem", redemptionCtl.Redeem)
	api.GET("/accounts/:id/verify", ledgerCtl.VerifyAccount)

	return &testAPI{db: db, ledger: ledger, router: router}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func (a *testAPI) seed(t *testing.T, userID uint, tokens int64) {
	t.Helper()
	_, err := a.ledger.Apply(context.Background(), services.ApplyInput{
		UserID:       userID,
		ActivityType: models.ActivityEmotionUpdate,
		DeltaMilli:   tokens * 1000,
	})
	require.NoError(t, err)
}

func TestEarnEndpoint(t *testing.T) {
	api := setupAPI(t, 1)

	status, env := api.do(t, http.MethodPost, "/api/v1/earn",
		gin.H{"activity_type": "journal_entry"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 0, env.Code)
	require.Equal(t, float64(1), env.Data["delta"])
	require.Equal(t, float64(1), env.Data["balance"])

	// Same capped activity later the same day is an idempotent success.
	status, env = api.do(t, http.MethodPost, "/api/v1/earn",
		gin.H{"activity_type": "journal_entry"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 0, env.Code)
	require.Equal(t, true, env.Data["duplicate"])

	status, env = api.do(t, http.MethodPost, "/api/v1/earn",
		gin.H{"activity_type": "alchemy"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, 40041, env.Code)

	// Reference-capped activity without a reference id.
	status, env = api.do(t, http.MethodPost, "/api/v1/earn",
		gin.H{"activity_type": "badge_earned"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, 40022, env.Code)
}

func TestDailyLoginEndpointReportsStreak(t *testing.T) {
	api := setupAPI(t, 1)

	status, env := api.do(t, http.MethodPost, "/api/v1/earn",
		gin.H{"activity_type": "daily_login"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 0, env.Code)
	require.Equal(t, float64(1), env.Data["current_streak"])
	require.Equal(t, false, env.Data["already_checked_in"])

	status, env = api.do(t, http.MethodPost, "/api/v1/earn",
		gin.H{"activity_type": "daily_login"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, env.Data["already_checked_in"])
}

func TestBalanceAndHistoryEndpoints(t *testing.T) {
	api := setupAPI(t, 1)
	api.seed(t, 1, 42)

	status, env := api.do(t, http.MethodGet, "/api/v1/balance", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(42), env.Data["balance"])

	status, env = api.do(t, http.MethodGet, "/api/v1/ledger/history?page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(1), env.Data["total"])
}

func TestTransferEndpointReportsBalanceOnShortfall(t *testing.T) {
	api := setupAPI(t, 1)
	api.seed(t, 1, 10)
	require.NoError(t, api.db.Create(&models.FamilyLink{
		UserID: 1, RelatedUserID: 2,
		Status: models.LinkStatusAccepted, TransferEnabled: true,
	}).Error)

	status, env := api.do(t, http.MethodPost, "/api/v1/transfer",
		gin.H{"recipient_id": 2, "amount": 50})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, 40044, env.Code)
	require.Equal(t, float64(10), env.Data["balance"])

	status, env = api.do(t, http.MethodPost, "/api/v1/transfer",
		gin.H{"recipient_id": 2, "amount": 10})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 0, env.Code)
}

func TestTransferEndpointRejectsUnlinkedRecipient(t *testing.T) {
	api := setupAPI(t, 1)
	api.seed(t, 1, 100)

	status, env := api.do(t, http.MethodPost, "/api/v1/transfer",
		gin.H{"recipient_id": 9, "amount": 10})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, 40043, env.Code)
}

func TestRedeemEndpoint(t *testing.T) {
	api := setupAPI(t, 1)
	api.seed(t, 1, 20000)

	status, env := api.do(t, http.MethodPost, "/api/v1/redeem",
		gin.H{"amount": 500, "method": "cash"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, 40042, env.Code)
	require.Equal(t, float64(20000), env.Data["balance"])

	status, env = api.do(t, http.MethodPost, "/api/v1/redeem",
		gin.H{"amount": 10000, "method": "cash"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 0, env.Code)
	redemption := env.Data["redemption"].(map[string]interface{})
	require.Equal(t, "completed", redemption["status"])
}

func TestVerifyEndpointReportsConsistency(t *testing.T) {
	api := setupAPI(t, 1)
	api.seed(t, 7, 30)

	status, env := api.do(t, http.MethodGet, "/api/v1/accounts/7/verify", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, env.Data["consistent"])
	require.Equal(t, float64(30), env.Data["balance"])

	status, env = api.do(t, http.MethodGet, "/api/v1/accounts/999/verify", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, 40440, env.Code)
}
