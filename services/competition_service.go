package services

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"health-competition-system/models"
)

type CompetitionService struct {
	DB *gorm.DB
}

func NewCompetitionService(db *gorm.DB) *CompetitionService {
	return &CompetitionService{DB: db}
}

// CreateCompetition handles POST /api/v1/competitions.
func (s *CompetitionService) CreateCompetition(c *fiber.Ctx) error {
	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Type        string  `json:"type"`
		EntryFee    float64 `json:"entry_fee"`
		PrizePool   float64 `json:"prize_pool"`
		StartDate   string  `json:"start_date"` // RFC3339
		EndDate     string  `json:"end_date"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, Validation("invalid JSON body"))
	}

	if req.Name == "" || req.StartDate == "" || req.EndDate == "" {
		return respondError(c, Validation("name, start_date and end_date are required"))
	}
	if req.Type == "" {
		req.Type = models.CompetitionTypeSteps
	}
	switch req.Type {
	case models.CompetitionTypeSteps, models.CompetitionTypeDistance,
		models.CompetitionTypeCalories, models.CompetitionTypeMixed:
	default:
		return respondError(c, Validation("type must be one of steps, distance, calories, mixed"))
	}
	if req.EntryFee < 0 || req.PrizePool < 0 {
		return respondError(c, Validation("entry_fee and prize_pool must be non-negative"))
	}

	startDate, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		return respondError(c, Validation("invalid start_date (use RFC3339)"))
	}
	endDate, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		return respondError(c, Validation("invalid end_date (use RFC3339)"))
	}
	if !endDate.After(startDate) {
		return respondError(c, Validation("end_date must be after start_date"))
	}

	competition := &models.Competition{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Slug:        slug.Make(req.Name) + "-" + uuid.NewString()[:8],
		Description: req.Description,
		Type:        req.Type,
		EntryFee:    req.EntryFee,
		PrizePool:   req.PrizePool,
		StartDate:   startDate,
		EndDate:     endDate,
		Status:      models.StatusForDates(startDate, endDate, time.Now()),
		CreatedBy:   userIDFromCtx(c),
	}

	if err := s.DB.Create(competition).Error; err != nil {
		log.Printf("ERROR creating competition: %v", err)
		return respondError(c, err)
	}
	return c.Status(201).JSON(competition)
}

// GetCompetitions handles GET /api/v1/competitions?status=&limit=&offset=.
func (s *CompetitionService) GetCompetitions(c *fiber.Ctx) error {
	status := c.Query("status")
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := s.DB.Model(&models.Competition{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return respondError(c, err)
	}

	var competitions []models.Competition
	if err := query.
		Order("start_date DESC").
		Limit(limit).Offset(offset).
		Find(&competitions).Error; err != nil {
		log.Printf("ERROR fetching competitions: %v", err)
		return respondError(c, err)
	}

	// Attach participant counts in one grouped query.
	type countRow struct {
		CompetitionID string
		N             int64
	}
	ids := make([]string, 0, len(competitions))
	for _, comp := range competitions {
		ids = append(ids, comp.ID)
	}
	if len(ids) > 0 {
		var rows []countRow
		s.DB.Model(&models.CompetitionParticipant{}).
			Select("competition_id, COUNT(*) as n").
			Where("competition_id IN ?", ids).
			Group("competition_id").
			Scan(&rows)
		counts := make(map[string]int64, len(rows))
		for _, r := range rows {
			counts[r.CompetitionID] = r.N
		}
		for i := range competitions {
			competitions[i].ParticipantsCount = counts[competitions[i].ID]
		}
	}

	return c.JSON(fiber.Map{
		"competitions": competitions,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

// GetCompetitionByID handles GET /api/v1/competitions/:id.
func (s *CompetitionService) GetCompetitionByID(c *fiber.Ctx) error {
	id := c.Params("id")

	var competition models.Competition
	if err := s.DB.First(&competition, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, NotFound("competition not found"))
		}
		return respondError(c, err)
	}

	s.DB.Model(&models.CompetitionParticipant{}).
		Where("competition_id = ?", id).
		Count(&competition.ParticipantsCount)

	return c.JSON(&competition)
}

// JoinCompetition handles POST /api/v1/competitions/:id/join. Joining a
// paid competition records a completed entry_fee transaction in the same
// database transaction as the participant row.
func (s *CompetitionService) JoinCompetition(c *fiber.Ctx) error {
	competitionID := c.Params("id")
	userID := userIDFromCtx(c)
	if userID == "" {
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := c.BodyParser(&req); err == nil {
			userID = req.UserID
		}
	}
	if userID == "" {
		return respondError(c, Validation("user_id is required"))
	}

	var participant models.CompetitionParticipant
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var competition models.Competition
		if err := tx.First(&competition, "id = ?", competitionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound("competition not found")
			}
			return err
		}
		if competition.Status == models.CompetitionStatusCompleted {
			return NotActive("competition has already ended")
		}

		var existing models.CompetitionParticipant
		err := tx.Where("competition_id = ? AND user_id = ?", competitionID, userID).
			First(&existing).Error
		if err == nil {
			return Conflict("user already joined this competition")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		participant = models.CompetitionParticipant{
			ID:            uuid.NewString(),
			CompetitionID: competitionID,
			UserID:        userID,
		}
		if err := tx.Create(&participant).Error; err != nil {
			return err
		}

		if competition.EntryFee > 0 {
			now := time.Now()
			fee := models.Transaction{
				ID:            uuid.NewString(),
				UserID:        userID,
				CompetitionID: &competition.ID,
				Type:          models.TransactionTypeEntryFee,
				Amount:        competition.EntryFee,
				Status:        models.TransactionStatusCompleted,
				CompletedAt:   &now,
			}
			if err := tx.Create(&fee).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(201).JSON(fiber.Map{
		"message":     "joined competition",
		"participant": participant,
	})
}

// GetUserCompetitions handles GET /api/v1/users/:id/competitions.
func (s *CompetitionService) GetUserCompetitions(c *fiber.Ctx) error {
	userID := c.Params("id")

	var results []models.UserCompetition
	query := `
        SELECT
            c.*,
            p.joined_at,
            COALESCE(l.steps, 0)    AS user_steps,
            COALESCE(l.distance, 0) AS user_distance,
            COALESCE(l.calories, 0) AS user_calories,
            COALESCE(l.score, 0)    AS user_score
        FROM competitions c
        JOIN competition_participants p ON p.competition_id = c.id
        LEFT JOIN leaderboard_entries l ON l.competition_id = c.id AND l.user_id = p.user_id
        WHERE p.user_id = ? AND c.deleted_at IS NULL
        ORDER BY c.start_date DESC
    `
	if err := s.DB.Raw(query, userID).Scan(&results).Error; err != nil {
		log.Printf("ERROR fetching user competitions for %s: %v", userID, err)
		return respondError(c, err)
	}
	return c.JSON(results)
}

// SweepStatuses moves competitions through the upcoming → active → completed
// lifecycle based on the clock. Called by the scheduler.
func (s *CompetitionService) SweepStatuses(now time.Time) (int64, error) {
	var changed int64

	res := s.DB.Model(&models.Competition{}).
		Where("status = ? AND start_date <= ?", models.CompetitionStatusUpcoming, now).
		Update("status", models.CompetitionStatusActive)
	if res.Error != nil {
		return changed, res.Error
	}
	changed += res.RowsAffected

	res = s.DB.Model(&models.Competition{}).
		Where("status = ? AND end_date < ?", models.CompetitionStatusActive, now).
		Update("status", models.CompetitionStatusCompleted)
	if res.Error != nil {
		return changed, res.Error
	}
	changed += res.RowsAffected

	return changed, nil
}

// userIDFromCtx reads the authenticated user set by the JWT middleware.
func userIDFromCtx(c *fiber.Ctx) string {
	if v, ok := c.Locals("user_id").(string); ok {
		return v
	}
	return ""
}
