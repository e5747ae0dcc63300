package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"health-competition-system/models"
)

// FitnessService is the score ingress: it validates activity submissions,
// stores them with last-write-wins semantics and triggers the single-user
// leaderboard recompute.
type FitnessService struct {
	DB          *gorm.DB
	Leaderboard *LeaderboardService

	locks keyedMutex
}

func NewFitnessService(db *gorm.DB, leaderboard *LeaderboardService) *FitnessService {
	return &FitnessService{DB: db, Leaderboard: leaderboard}
}

// SyncRequest is one day of metrics from a device or provider.
type SyncRequest struct {
	UserID        string    `json:"user_id"`
	CompetitionID string    `json:"competition_id"`
	Steps         int64     `json:"steps"`
	Distance      float64   `json:"distance"`
	Calories      float64   `json:"calories"`
	ActiveMinutes int       `json:"active_minutes"`
	Source        string    `json:"source"`
	Date          time.Time `json:"date"`
}

// IngestResult reports what a submission did.
type IngestResult struct {
	Record  *models.ActivityRecord `json:"record"`
	Rank    int                    `json:"rank"`
	Applied bool                   `json:"applied"` // false when the submission was a no-op or lost last-write-wins
}

// ValidateSubmission applies the ingress constraints: metrics must be
// non-negative and the competition must be active with the record date
// inside its window.
func ValidateSubmission(competition *models.Competition, req *SyncRequest) error {
	if req.UserID == "" || req.CompetitionID == "" {
		return Validation("user_id and competition_id are required")
	}
	if req.Steps < 0 || req.Distance < 0 || req.Calories < 0 || req.ActiveMinutes < 0 {
		return Validation("steps, distance, calories and active_minutes must be non-negative")
	}
	if req.Date.IsZero() {
		return Validation("date is required")
	}
	if competition.Status != models.CompetitionStatusActive {
		return NotActive("competition is not active")
	}
	if !competition.WindowContains(req.Date) {
		return NotActive("date is outside the competition window")
	}
	return nil
}

// Ingest stores a submission and refreshes the sender's standing.
//
// Concurrency: submissions for the same (user, competition) serialize on a
// keyed mutex; within the day-record the stored row only changes when the
// incoming IngestedAt is newer, so the last write by ingestion time wins
// regardless of arrival order. The record write is a single transaction, so
// a cancelled request leaves nothing behind.
func (s *FitnessService) Ingest(ctx context.Context, req *SyncRequest) (*IngestResult, error) {
	var competition models.Competition
	if err := s.DB.WithContext(ctx).First(&competition, "id = ?", req.CompetitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("competition not found")
		}
		return nil, err
	}
	if err := ValidateSubmission(&competition, req); err != nil {
		return nil, err
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "manual"
	}

	incoming := models.ActivityRecord{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		CompetitionID: req.CompetitionID,
		RecordedDate:  req.Date.UTC().Truncate(24 * time.Hour),
		Steps:         req.Steps,
		Distance:      req.Distance,
		Calories:      req.Calories,
		ActiveMinutes: req.ActiveMinutes,
		Source:        source,
		IngestedAt:    time.Now().UTC(),
	}

	unlock := s.locks.lock(req.UserID + "|" + req.CompetitionID)
	defer unlock()

	applied := false
	stored := incoming
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ActivityRecord
		err := lockForUpdate(tx).
			Where("user_id = ? AND competition_id = ? AND recorded_date = ?",
				incoming.UserID, incoming.CompetitionID, incoming.RecordedDate).
			First(&existing).Error
		switch {
		case err == nil:
			if existing.SameMetrics(&incoming) {
				// Duplicate sync: nothing changes, not even IngestedAt.
				stored = existing
				return nil
			}
			if existing.IngestedAt.After(incoming.IngestedAt) {
				// A newer write already landed; this one lost last-write-wins.
				stored = existing
				return nil
			}
			incoming.ID = existing.ID
			incoming.CreatedAt = existing.CreatedAt
			if err := tx.Save(&incoming).Error; err != nil {
				return err
			}
			applied = true
			stored = incoming
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&incoming).Error; err != nil {
				return err
			}
			applied = true
			stored = incoming
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	rank := 0
	if applied {
		rank, err = s.Leaderboard.RecomputeUser(ctx, &competition, req.UserID)
		if err != nil {
			return nil, err
		}
	} else {
		// Best effort: report the current rank even for no-ops.
		if r, rerr := s.Leaderboard.UserRank(ctx, req.CompetitionID, req.UserID); rerr == nil {
			rank = r
		}
	}

	return &IngestResult{Record: &stored, Rank: rank, Applied: applied}, nil
}

// UserStats returns a user's aggregate standing in one competition, or
// zero-valued stats when they have not scored yet.
func (s *FitnessService) UserStats(ctx context.Context, userID, competitionID string) (*models.LeaderboardEntry, error) {
	var entry models.LeaderboardEntry
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND competition_id = ?", userID, competitionID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.LeaderboardEntry{UserID: userID, CompetitionID: competitionID}, nil
		}
		return nil, err
	}
	return &entry, nil
}

// --- HTTP handlers ---

// SyncHandler serves POST /api/v1/fitness/sync.
func (s *FitnessService) SyncHandler(c *fiber.Ctx) error {
	var req SyncRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, Validation("invalid JSON body"))
	}

	result, err := s.Ingest(c.UserContext(), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": result})
}

// UpdateScoreHandler serves POST /api/v1/leaderboard/update, the thin
// variant used by clients that push running totals rather than daily syncs.
// It routes through the same ingress path with today's date.
func (s *FitnessService) UpdateScoreHandler(c *fiber.Ctx) error {
	var req struct {
		UserID        string  `json:"user_id"`
		CompetitionID string  `json:"competition_id"`
		Steps         int64   `json:"steps"`
		Distance      float64 `json:"distance"`
		Calories      float64 `json:"calories"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, Validation("invalid JSON body"))
	}

	result, err := s.Ingest(c.UserContext(), &SyncRequest{
		UserID:        req.UserID,
		CompetitionID: req.CompetitionID,
		Steps:         req.Steps,
		Distance:      req.Distance,
		Calories:      req.Calories,
		Source:        "manual",
		Date:          time.Now().UTC(),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "rank": result.Rank})
}

// UserStatsHandler serves GET /api/v1/fitness/stats/:userId?competition_id=...
func (s *FitnessService) UserStatsHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	competitionID := c.Query("competition_id")
	if competitionID == "" {
		return respondError(c, Validation("competition_id query parameter is required"))
	}

	stats, err := s.UserStats(c.UserContext(), userID, competitionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// keyedMutex hands out one mutex per key so updates for the same
// user+competition serialize without blocking unrelated traffic. Entries
// are refcounted and evicted once the last holder unlocks, keeping the map
// bounded by in-flight requests rather than by distinct keys seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*lockEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
