package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"health-competition-system/models"
)

func seedCompetition(t *testing.T, db *gorm.DB, status string, pool float64) *models.Competition {
	t.Helper()
	now := time.Now().UTC()
	comp := &models.Competition{
		ID:        uuid.NewString(),
		Name:      "Winter Steps",
		Slug:      "winter-steps-" + uuid.NewString()[:8],
		Type:      models.CompetitionTypeSteps,
		PrizePool: pool,
		StartDate: now.AddDate(0, 0, -14),
		EndDate:   now.AddDate(0, 0, -7),
		Status:    status,
	}
	if status == models.CompetitionStatusActive {
		comp.StartDate = now.AddDate(0, 0, -3)
		comp.EndDate = now.AddDate(0, 0, 3)
	}
	require.NoError(t, db.Create(comp).Error)
	return comp
}

func seedStanding(t *testing.T, db *gorm.DB, competitionID, userID string, score int64, scoredAt time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.LeaderboardEntry{
		ID:            uuid.NewString(),
		UserID:        userID,
		CompetitionID: competitionID,
		Steps:         score,
		Score:         score,
		FirstScoredAt: scoredAt,
		LastSyncedAt:  scoredAt,
	}).Error)
}

func newSettledBoard(t *testing.T, db *gorm.DB, comp *models.Competition) {
	t.Helper()
	base := comp.StartDate.Add(time.Hour)
	seedStanding(t, db, comp.ID, "alice", 30000, base)
	seedStanding(t, db, comp.ID, "bob", 20000, base.Add(time.Hour))
	seedStanding(t, db, comp.ID, "carol", 10000, base.Add(2*time.Hour))
}

func TestDistribute_CreatesPrizeTransactions(t *testing.T) {
	db := newTestDB(t)
	comp := seedCompetition(t, db, models.CompetitionStatusCompleted, 500)
	newSettledBoard(t, db, comp)
	prizes := NewPrizeService(db, newTestLeaderboard(t, db))

	transactions, alreadySettled, err := prizes.Distribute(context.Background(), comp.ID)
	require.NoError(t, err)
	assert.False(t, alreadySettled)
	require.Len(t, transactions, 3)

	assert.Equal(t, "alice", transactions[0].UserID)
	assert.Equal(t, 300.0, transactions[0].Amount)
	assert.Equal(t, "bob", transactions[1].UserID)
	assert.Equal(t, 150.0, transactions[1].Amount)
	assert.Equal(t, "carol", transactions[2].UserID)
	assert.Equal(t, 50.0, transactions[2].Amount)
	for i, tx := range transactions {
		assert.Equal(t, i+1, tx.Rank)
		assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
	}

	var stored models.Competition
	require.NoError(t, db.First(&stored, "id = ?", comp.ID).Error)
	assert.NotNil(t, stored.SettledAt)
}

func TestDistribute_SecondCallReturnsExistingTransactions(t *testing.T) {
	db := newTestDB(t)
	comp := seedCompetition(t, db, models.CompetitionStatusCompleted, 500)
	newSettledBoard(t, db, comp)
	prizes := NewPrizeService(db, newTestLeaderboard(t, db))

	first, alreadySettled, err := prizes.Distribute(context.Background(), comp.ID)
	require.NoError(t, err)
	require.False(t, alreadySettled)

	second, alreadySettled, err := prizes.Distribute(context.Background(), comp.ID)
	require.NoError(t, err)
	assert.True(t, alreadySettled)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).
		Where("competition_id = ? AND type = ?", comp.ID, models.TransactionTypePrize).
		Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func TestDistribute_ActiveCompetitionRejected(t *testing.T) {
	db := newTestDB(t)
	comp := seedCompetition(t, db, models.CompetitionStatusActive, 500)
	newSettledBoard(t, db, comp)
	prizes := NewPrizeService(db, newTestLeaderboard(t, db))

	_, _, err := prizes.Distribute(context.Background(), comp.ID)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "not_active", svcErr.Code)

	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).
		Where("competition_id = ?", comp.ID).
		Count(&count).Error)
	assert.EqualValues(t, 0, count)

	var stored models.Competition
	require.NoError(t, db.First(&stored, "id = ?", comp.ID).Error)
	assert.Nil(t, stored.SettledAt)
}

func TestDistribute_EmptyLeaderboard(t *testing.T) {
	db := newTestDB(t)
	comp := seedCompetition(t, db, models.CompetitionStatusCompleted, 500)
	prizes := NewPrizeService(db, newTestLeaderboard(t, db))

	_, _, err := prizes.Distribute(context.Background(), comp.ID)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "empty_leaderboard", svcErr.Code)
}

func newPrizeApp(t *testing.T, prizes *PrizeService) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Post("/api/v1/prizes/calculate/:competitionId", prizes.CalculateHandler)
	return app
}

func TestCalculateHandler_PreviewsCallerPool(t *testing.T) {
	db := newTestDB(t)
	comp := seedCompetition(t, db, models.CompetitionStatusActive, 0)
	newSettledBoard(t, db, comp)
	app := newPrizeApp(t, NewPrizeService(db, newTestLeaderboard(t, db)))

	body, _ := json.Marshal(fiber.Map{"prize_pool": 500})
	req := httptest.NewRequest("POST", "/api/v1/prizes/calculate/"+comp.ID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var out struct {
		CompetitionID string  `json:"competition_id"`
		PrizePool     float64 `json:"prize_pool"`
		Payouts       []struct {
			UserID string  `json:"user_id"`
			Rank   int     `json:"rank"`
			Amount float64 `json:"amount"`
		} `json:"payouts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, comp.ID, out.CompetitionID)
	assert.Equal(t, 500.0, out.PrizePool)
	require.Len(t, out.Payouts, 3)
	assert.Equal(t, 300.0, out.Payouts[0].Amount)
	assert.Equal(t, 150.0, out.Payouts[1].Amount)
	assert.Equal(t, 50.0, out.Payouts[2].Amount)

	// Preview writes nothing.
	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestCalculateHandler_RejectsNonPositivePool(t *testing.T) {
	db := newTestDB(t)
	comp := seedCompetition(t, db, models.CompetitionStatusActive, 0)
	app := newPrizeApp(t, NewPrizeService(db, newTestLeaderboard(t, db)))

	for _, pool := range []float64{0, -50} {
		body, _ := json.Marshal(fiber.Map{"prize_pool": pool})
		req := httptest.NewRequest("POST", "/api/v1/prizes/calculate/"+comp.ID, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	}
}

func TestCalculateHandler_RejectsGet(t *testing.T) {
	db := newTestDB(t)
	app := newPrizeApp(t, NewPrizeService(db, newTestLeaderboard(t, db)))

	req := httptest.NewRequest("GET", "/api/v1/prizes/calculate/some-comp", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 405, resp.StatusCode)
}
