package services

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"health-competition-system/models"
)

// newTestDB opens an in-memory database with the full schema so service
// transactions run for real instead of against mocks.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Competition{},
		&models.CompetitionParticipant{},
		&models.ActivityRecord{},
		&models.LeaderboardEntry{},
		&models.Transaction{},
		&models.CompetitionUser{},
	))
	return db
}

func newTestLeaderboard(t *testing.T, db *gorm.DB) *LeaderboardService {
	t.Helper()
	return NewLeaderboardService(db, newTestCache(t), nil)
}
