package services

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"health-competition-system/models"
)

// Notifier receives ranking deltas for realtime fan-out. Delivery is
// best-effort; the websocket hub implements this.
type Notifier interface {
	PublishScoreUpdate(competitionID string, update models.ScoreUpdate)
}

// LeaderboardService maintains per-competition standings. Aggregates live
// in Postgres (one row per user per competition); a redis sorted set mirrors
// the scores for cheap rank lookups and top-N change detection.
type LeaderboardService struct {
	DB       *gorm.DB
	Cache    *LeaderboardCache
	Notifier Notifier
	Weights  MixedWeights
	TopN     int
}

func NewLeaderboardService(db *gorm.DB, cache *LeaderboardCache, notifier Notifier) *LeaderboardService {
	return &LeaderboardService{
		DB:       db,
		Cache:    cache,
		Notifier: notifier,
		Weights:  DefaultMixedWeights(),
		TopN:     10,
	}
}

// GetLeaderboard returns the ordered standings for a competition. The whole
// view comes from a single query, so readers never observe a half-applied
// update batch. Ordering: score desc, earliest first score, then user_id for
// a deterministic total order.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, competitionID string, limit int) (*models.Leaderboard, error) {
	var entries []models.LeaderboardEntry
	err := s.DB.WithContext(ctx).
		Model(&models.LeaderboardEntry{}).
		Select("leaderboard_entries.*, competition_users.name AS user_name").
		Joins("LEFT JOIN competition_users ON competition_users.external_user_id = leaderboard_entries.user_id").
		Where("leaderboard_entries.competition_id = ?", competitionID).
		Order("score DESC, first_scored_at ASC, user_id ASC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, err
	}

	var total int64
	if err := s.DB.WithContext(ctx).Model(&models.LeaderboardEntry{}).
		Where("competition_id = ?", competitionID).Count(&total).Error; err != nil {
		return nil, err
	}

	updatedAt := time.Time{}
	for i := range entries {
		entries[i].Rank = i + 1
		if entries[i].LastSyncedAt.After(updatedAt) {
			updatedAt = entries[i].LastSyncedAt
		}
	}

	return &models.Leaderboard{
		CompetitionID: competitionID,
		Entries:       entries,
		TotalCount:    total,
		UpdatedAt:     updatedAt,
	}, nil
}

// RecomputeUser re-derives one user's aggregate from their activity records
// and refreshes their standing. Only the single row is recomputed; ranking
// is a sort over already-aggregated scores. Returns the user's new rank.
// Callers must have verified the competition is active.
func (s *LeaderboardService) RecomputeUser(ctx context.Context, competition *models.Competition, userID string) (int, error) {
	var agg struct {
		Steps         int64
		Distance      float64
		Calories      float64
		ActiveMinutes int64
		FirstIngested time.Time
		LastIngested  time.Time
	}
	err := s.DB.WithContext(ctx).
		Model(&models.ActivityRecord{}).
		Select(`COALESCE(SUM(steps), 0) AS steps,
			COALESCE(SUM(distance), 0) AS distance,
			COALESCE(SUM(calories), 0) AS calories,
			COALESCE(SUM(active_minutes), 0) AS active_minutes,
			MIN(ingested_at) AS first_ingested,
			MAX(ingested_at) AS last_ingested`).
		Where("user_id = ? AND competition_id = ?", userID, competition.ID).
		Scan(&agg).Error
	if err != nil {
		return 0, err
	}

	score := Score(competition.Type, s.Weights, agg.Steps, agg.Distance, agg.Calories, agg.ActiveMinutes)

	entry := models.LeaderboardEntry{
		ID:            uuid.NewString(),
		UserID:        userID,
		CompetitionID: competition.ID,
		Steps:         agg.Steps,
		Distance:      agg.Distance,
		Calories:      agg.Calories,
		ActiveMinutes: agg.ActiveMinutes,
		Score:         score,
		FirstScoredAt: agg.FirstIngested,
		LastSyncedAt:  agg.LastIngested,
	}
	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "competition_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"steps", "distance", "calories", "active_minutes",
			"score", "first_scored_at", "last_synced_at",
		}),
	}).Create(&entry).Error
	if err != nil {
		return 0, err
	}

	prevRank, _ := s.Cache.Rank(ctx, competition.ID, userID)
	if err := s.Cache.SetScore(ctx, competition.ID, userID, score); err != nil {
		// Cache is advisory; the DB row is already committed.
		log.Printf("[LEADERBOARD] cache update failed for %s/%s: %v", competition.ID, userID, err)
	}

	rank, err := s.UserRank(ctx, competition.ID, userID)
	if err != nil {
		return 0, err
	}

	if s.Notifier != nil && (rank <= s.TopN || rank != prevRank) {
		s.Notifier.PublishScoreUpdate(competition.ID, models.ScoreUpdate{
			CompetitionID: competition.ID,
			UserID:        userID,
			Score:         score,
			Rank:          rank,
			Timestamp:     time.Now().UTC(),
		})
	}

	return rank, nil
}

// UserRank resolves a user's 1-based rank. The redis mirror answers when it
// holds every scored participant and the user's score is unique; a partial
// mirror is rebuilt from Postgres first, and tied scores always go to
// Postgres because the sorted set cannot order equal scores by earliest
// submission.
func (s *LeaderboardService) UserRank(ctx context.Context, competitionID, userID string) (int, error) {
	var total int64
	if err := s.DB.WithContext(ctx).Model(&models.LeaderboardEntry{}).
		Where("competition_id = ?", competitionID).
		Count(&total).Error; err != nil {
		return 0, err
	}

	size, err := s.Cache.Size(ctx, competitionID)
	if err != nil || size < total {
		if warmErr := s.WarmCache(ctx, competitionID); warmErr != nil {
			log.Printf("[LEADERBOARD] cache warm failed for %s: %v", competitionID, warmErr)
			return s.rankFromDB(ctx, competitionID, userID)
		}
	}

	rank, err := s.Cache.Rank(ctx, competitionID, userID)
	if err != nil {
		return s.rankFromDB(ctx, competitionID, userID)
	}
	score, err := s.Cache.ScoreOf(ctx, competitionID, userID)
	if err != nil {
		return s.rankFromDB(ctx, competitionID, userID)
	}
	peers, err := s.Cache.CountWithScore(ctx, competitionID, score)
	if err != nil || peers > 1 {
		return s.rankFromDB(ctx, competitionID, userID)
	}
	return rank, nil
}

func (s *LeaderboardService) rankFromDB(ctx context.Context, competitionID, userID string) (int, error) {
	var entry models.LeaderboardEntry
	err := s.DB.WithContext(ctx).
		Where("competition_id = ? AND user_id = ?", competitionID, userID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, NotFound("user has no score in this competition")
		}
		return 0, err
	}

	var ahead int64
	err = s.DB.WithContext(ctx).Model(&models.LeaderboardEntry{}).
		Where("competition_id = ?", competitionID).
		Where(`score > ?
			OR (score = ? AND first_scored_at < ?)
			OR (score = ? AND first_scored_at = ? AND user_id < ?)`,
			entry.Score, entry.Score, entry.FirstScoredAt,
			entry.Score, entry.FirstScoredAt, entry.UserID).
		Count(&ahead).Error
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

// WarmCache rebuilds a competition's redis mirror from Postgres. Called on
// demand when the sorted set is missing (e.g. after a redis restart).
func (s *LeaderboardService) WarmCache(ctx context.Context, competitionID string) error {
	var entries []models.LeaderboardEntry
	if err := s.DB.WithContext(ctx).
		Where("competition_id = ?", competitionID).
		Find(&entries).Error; err != nil {
		return err
	}
	return s.Cache.Rebuild(ctx, competitionID, entries)
}

// snapshotForSettlement returns the full frozen ordering used by prize
// calculation. Same total order as GetLeaderboard.
func (s *LeaderboardService) snapshotForSettlement(tx *gorm.DB, competitionID string) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	err := tx.
		Where("competition_id = ?", competitionID).
		Order("score DESC, first_scored_at ASC, user_id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// --- HTTP handlers ---

// GetLeaderboardHandler serves GET /api/v1/leaderboard/:competitionId.
func (s *LeaderboardService) GetLeaderboardHandler(c *fiber.Ctx) error {
	competitionID := c.Params("competitionId")

	var competition models.Competition
	if err := s.DB.First(&competition, "id = ?", competitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, NotFound("competition not found"))
		}
		return respondError(c, err)
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			return respondError(c, Validation("limit must be between 1 and 500"))
		}
		limit = n
	}

	board, err := s.GetLeaderboard(c.UserContext(), competitionID, limit)
	if err != nil {
		return respondError(c, err)
	}

	// Rebuild a cold or partial redis mirror in the background so rank
	// lookups stop falling back to Postgres.
	if total := board.TotalCount; total > 0 {
		if size, err := s.Cache.Size(c.UserContext(), competitionID); err == nil && size < total {
			go func() {
				if err := s.WarmCache(context.Background(), competitionID); err != nil {
					log.Printf("[LEADERBOARD] cache warm failed for %s: %v", competitionID, err)
				}
			}()
		}
	}

	return c.JSON(board)
}

// GetUserRankHandler serves GET /api/v1/leaderboard/:competitionId/rank/:userId.
func (s *LeaderboardService) GetUserRankHandler(c *fiber.Ctx) error {
	competitionID := c.Params("competitionId")
	userID := c.Params("userId")

	rank, err := s.UserRank(c.UserContext(), competitionID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"competition_id": competitionID,
		"user_id":        userID,
		"rank":           rank,
	})
}
