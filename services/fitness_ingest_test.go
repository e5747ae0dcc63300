package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-competition-system/models"
)

func TestIngest_FirstSyncCreatesRecordAndEntry(t *testing.T) {
	db := newTestDB(t)
	comp := seedCompetition(t, db, models.CompetitionStatusActive, 0)
	fitness := NewFitnessService(db, newTestLeaderboard(t, db))

	result, err := fitness.Ingest(context.Background(), &SyncRequest{
		UserID:        "user-1",
		CompetitionID: comp.ID,
		Steps:         10000,
		Date:          time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, 1, result.Rank)

	var entry models.LeaderboardEntry
	require.NoError(t, db.First(&entry, "user_id = ? AND competition_id = ?", "user-1", comp.ID).Error)
	assert.EqualValues(t, 10000, entry.Steps)
	assert.EqualValues(t, 10000, entry.Score)
}

func TestIngest_LaterSyncForSameDayWins(t *testing.T) {
	db := newTestDB(t)
	comp := seedCompetition(t, db, models.CompetitionStatusActive, 0)
	fitness := NewFitnessService(db, newTestLeaderboard(t, db))
	day := time.Now().UTC()

	first, err := fitness.Ingest(context.Background(), &SyncRequest{
		UserID: "user-1", CompetitionID: comp.ID, Steps: 100, Date: day,
	})
	require.NoError(t, err)
	require.True(t, first.Applied)

	second, err := fitness.Ingest(context.Background(), &SyncRequest{
		UserID: "user-1", CompetitionID: comp.ID, Steps: 150, Date: day,
	})
	require.NoError(t, err)
	assert.True(t, second.Applied)
	assert.EqualValues(t, 150, second.Record.Steps)

	// The later write replaced the day record instead of adding another.
	var count int64
	require.NoError(t, db.Model(&models.ActivityRecord{}).
		Where("user_id = ? AND competition_id = ?", "user-1", comp.ID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var entry models.LeaderboardEntry
	require.NoError(t, db.First(&entry, "user_id = ? AND competition_id = ?", "user-1", comp.ID).Error)
	assert.EqualValues(t, 150, entry.Steps)
	assert.EqualValues(t, 150, entry.Score)
}

func TestIngest_DuplicateSyncIsNoOp(t *testing.T) {
	db := newTestDB(t)
	comp := seedCompetition(t, db, models.CompetitionStatusActive, 0)
	fitness := NewFitnessService(db, newTestLeaderboard(t, db))
	day := time.Now().UTC()
	req := &SyncRequest{UserID: "user-1", CompetitionID: comp.ID, Steps: 5000, Date: day}

	first, err := fitness.Ingest(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Applied)

	second, err := fitness.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Equal(t, first.Record.IngestedAt.Unix(), second.Record.IngestedAt.Unix())
}

func TestIngest_OutsideWindowStoresNothing(t *testing.T) {
	db := newTestDB(t)
	comp := seedCompetition(t, db, models.CompetitionStatusActive, 0)
	fitness := NewFitnessService(db, newTestLeaderboard(t, db))

	_, err := fitness.Ingest(context.Background(), &SyncRequest{
		UserID:        "user-1",
		CompetitionID: comp.ID,
		Steps:         10000,
		Date:          comp.EndDate.AddDate(0, 0, 2),
	})
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "not_active", svcErr.Code)

	var count int64
	require.NoError(t, db.Model(&models.ActivityRecord{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}
