package services

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"health-competition-system/models"
)

// PrizeService computes prize distributions and settles completed
// competitions. Calculation is pure; settlement is the only writing path.
type PrizeService struct {
	DB          *gorm.DB
	Leaderboard *LeaderboardService

	// Splits maps competition type to percentage shares by rank.
	// Each slice must sum to at most 100.
	Splits map[string][]int
}

func NewPrizeService(db *gorm.DB, leaderboard *LeaderboardService) *PrizeService {
	return &PrizeService{
		DB:          db,
		Leaderboard: leaderboard,
		Splits:      DefaultPrizeSplits(),
	}
}

// CalculatePayouts splits a prize pool across the top-ranked entries.
//
// Amounts are computed in integer cents and truncated per share; whatever
// cents the truncation leaves over go to rank 1, so the payouts always sum
// to exactly the distributed portion of the pool. Pure function: same
// entries and pool always produce the same payouts.
func CalculatePayouts(entries []models.LeaderboardEntry, poolCents int64, split []int) ([]models.Payout, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyLeaderboard
	}
	if poolCents <= 0 || len(split) == 0 {
		return []models.Payout{}, nil
	}

	n := len(split)
	if len(entries) < n {
		n = len(entries)
	}

	// The distributed portion of the pool is the summed percentages applied
	// once; per-rank shares truncate individually and the difference goes to
	// the winner.
	var sumPct int64
	for i := 0; i < n; i++ {
		sumPct += int64(split[i])
	}
	total := poolCents * sumPct / 100

	payouts := make([]models.Payout, 0, n)
	var distributed int64
	for i := 0; i < n; i++ {
		amount := poolCents * int64(split[i]) / 100
		distributed += amount
		payouts = append(payouts, models.Payout{
			UserID:      entries[i].UserID,
			Rank:        i + 1,
			AmountCents: amount,
		})
	}
	// Truncation remainder goes to the winner.
	payouts[0].AmountCents += total - distributed

	return payouts, nil
}

// PoolCents converts a float currency pool to integer cents.
func PoolCents(pool float64) int64 {
	return int64(math.Round(pool * 100))
}

func (s *PrizeService) splitFor(competitionType string) []int {
	if split, ok := s.Splits[competitionType]; ok {
		return split
	}
	return []int{60, 30, 10}
}

// Preview computes the payouts a competition would settle with for the
// given pool, without writing anything. Callers supply the pool so clients
// can preview hypothetical amounts; settlement always uses the stored one.
func (s *PrizeService) Preview(ctx context.Context, competitionID string, poolCents int64) (*models.Competition, []models.Payout, error) {
	var competition models.Competition
	if err := s.DB.WithContext(ctx).First(&competition, "id = ?", competitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, NotFound("competition not found")
		}
		return nil, nil, err
	}

	entries, err := s.Leaderboard.snapshotForSettlement(s.DB.WithContext(ctx), competitionID)
	if err != nil {
		return nil, nil, err
	}

	payouts, err := CalculatePayouts(entries, poolCents, s.splitFor(competition.Type))
	if err != nil {
		return nil, nil, err
	}
	return &competition, payouts, nil
}

// Distribute settles a completed competition: it snapshots the final
// standings, writes one prize transaction per winner and stamps SettledAt,
// all inside a single row-locked database transaction.
//
// Calling it again after success is a no-op that returns the already
// recorded transactions. A retry after a partial failure creates only the
// transactions that are missing; the unique index over
// (competition_id, user_id, type) backstops the check.
func (s *PrizeService) Distribute(ctx context.Context, competitionID string) ([]models.Transaction, bool, error) {
	var created []models.Transaction
	alreadySettled := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var competition models.Competition
		if err := lockForUpdate(tx).
			First(&competition, "id = ?", competitionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound("competition not found")
			}
			return err
		}

		if competition.SettledAt != nil {
			alreadySettled = true
			return tx.Where("competition_id = ? AND type = ?", competitionID, models.TransactionTypePrize).
				Order("rank ASC").
				Find(&created).Error
		}
		if competition.Status != models.CompetitionStatusCompleted {
			return NotActive("competition is not completed yet")
		}

		entries, err := s.Leaderboard.snapshotForSettlement(tx, competitionID)
		if err != nil {
			return err
		}
		payouts, err := CalculatePayouts(entries, PoolCents(competition.PrizePool), s.splitFor(competition.Type))
		if err != nil {
			return err
		}

		now := time.Now()
		for _, payout := range payouts {
			if payout.AmountCents == 0 {
				continue
			}
			var existing models.Transaction
			err := tx.Where("competition_id = ? AND user_id = ? AND type = ?",
				competitionID, payout.UserID, models.TransactionTypePrize).
				First(&existing).Error
			if err == nil {
				created = append(created, existing)
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			t := models.Transaction{
				ID:            uuid.NewString(),
				UserID:        payout.UserID,
				CompetitionID: &competition.ID,
				Type:          models.TransactionTypePrize,
				Amount:        payout.Amount(),
				Status:        models.TransactionStatusCompleted,
				Rank:          payout.Rank,
				CompletedAt:   &now,
			}
			if err := tx.Create(&t).Error; err != nil {
				return err
			}
			created = append(created, t)
		}

		return tx.Model(&models.Competition{}).
			Where("id = ?", competitionID).
			Update("settled_at", now).Error
	})
	if err != nil {
		return nil, false, err
	}
	return created, alreadySettled, nil
}

// --- HTTP handlers ---

// CalculateHandler serves POST /api/v1/prizes/calculate/:competitionId.
// The request body carries the pool to split, so clients can preview any
// amount before anything is settled.
func (s *PrizeService) CalculateHandler(c *fiber.Ctx) error {
	var req struct {
		PrizePool float64 `json:"prize_pool"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, Validation("invalid JSON body"))
	}
	if req.PrizePool <= 0 {
		return respondError(c, Validation("prize_pool must be positive"))
	}

	competition, payouts, err := s.Preview(c.UserContext(), c.Params("competitionId"), PoolCents(req.PrizePool))
	if err != nil {
		return respondError(c, err)
	}

	type payoutView struct {
		UserID string  `json:"user_id"`
		Rank   int     `json:"rank"`
		Amount float64 `json:"amount"`
	}
	views := make([]payoutView, 0, len(payouts))
	for _, p := range payouts {
		views = append(views, payoutView{UserID: p.UserID, Rank: p.Rank, Amount: p.Amount()})
	}

	return c.JSON(fiber.Map{
		"competition_id": competition.ID,
		"prize_pool":     req.PrizePool,
		"payouts":        views,
	})
}

// DistributeHandler serves POST /api/v1/prizes/distribute/:competitionId.
func (s *PrizeService) DistributeHandler(c *fiber.Ctx) error {
	competitionID := c.Params("competitionId")

	transactions, alreadySettled, err := s.Distribute(c.UserContext(), competitionID)
	if err != nil {
		return respondError(c, err)
	}

	message := "prizes distributed"
	if alreadySettled {
		message = "competition already settled"
	} else {
		log.Printf("💰 Settled competition %s: %d prize transactions", competitionID, len(transactions))
	}

	return c.JSON(fiber.Map{
		"message":      message,
		"transactions": transactions,
	})
}
