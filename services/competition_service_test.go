package services

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"health-competition-system/models"
)

func newJoinApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Post("/api/v1/competitions/:id/join", NewCompetitionService(db).JoinCompetition)
	return app
}

func postJoin(t *testing.T, app *fiber.App, competitionID, userID string) int {
	t.Helper()
	body, _ := json.Marshal(fiber.Map{"user_id": userID})
	req := httptest.NewRequest("POST", "/api/v1/competitions/"+competitionID+"/join", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestJoinCompetition_OncePerUser(t *testing.T) {
	db := newTestDB(t)
	comp := seedCompetition(t, db, models.CompetitionStatusActive, 0)
	comp.EntryFee = 25
	require.NoError(t, db.Save(comp).Error)
	app := newJoinApp(t, db)

	assert.Equal(t, 201, postJoin(t, app, comp.ID, "user-1"))
	assert.Equal(t, 409, postJoin(t, app, comp.ID, "user-1"))

	var participants int64
	require.NoError(t, db.Model(&models.CompetitionParticipant{}).
		Where("competition_id = ?", comp.ID).
		Count(&participants).Error)
	assert.EqualValues(t, 1, participants)

	// The duplicate join must not charge a second entry fee.
	var fees int64
	require.NoError(t, db.Model(&models.Transaction{}).
		Where("competition_id = ? AND type = ?", comp.ID, models.TransactionTypeEntryFee).
		Count(&fees).Error)
	assert.EqualValues(t, 1, fees)
}

func TestJoinCompetition_CompletedRejected(t *testing.T) {
	db := newTestDB(t)
	comp := seedCompetition(t, db, models.CompetitionStatusCompleted, 0)
	app := newJoinApp(t, db)

	assert.Equal(t, 409, postJoin(t, app, comp.ID, "user-1"))

	var participants int64
	require.NoError(t, db.Model(&models.CompetitionParticipant{}).Count(&participants).Error)
	assert.EqualValues(t, 0, participants)
}

func TestJoinCompetition_UnknownCompetition(t *testing.T) {
	db := newTestDB(t)
	app := newJoinApp(t, db)

	assert.Equal(t, 404, postJoin(t, app, "missing", "user-1"))
}
