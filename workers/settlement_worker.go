// workers/settlement_worker.go
package workers

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"health-competition-system/models"
	"health-competition-system/services"
)

// SettlementWorker periodically settles completed competitions that have a
// prize pool but no SettledAt stamp. Distribution is idempotent, so retrying
// a competition whose previous attempt failed half-way is safe. Enabled with
// AUTO_SETTLE=true.
type SettlementWorker struct {
	DB     *gorm.DB
	Prizes *services.PrizeService
}

func NewSettlementWorker(db *gorm.DB, prizes *services.PrizeService) *SettlementWorker {
	return &SettlementWorker{DB: db, Prizes: prizes}
}

func PollUnsettled(ctx context.Context, w *SettlementWorker, pollInterval time.Duration) {
	log.Println("Starting settlement polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Settlement polling stopped.")
			return
		case <-ticker.C:
			var competitions []models.Competition
			err := w.DB.
				Where("status = ? AND settled_at IS NULL AND prize_pool > 0",
					models.CompetitionStatusCompleted).
				Find(&competitions).Error
			if err != nil {
				log.Printf("❌ Error querying unsettled competitions: %v", err)
				continue
			}

			for _, comp := range competitions {
				transactions, already, err := w.Prizes.Distribute(ctx, comp.ID)
				if err != nil {
					var svcErr *services.ServiceError
					if errors.As(err, &svcErr) && svcErr.Code == "empty_leaderboard" {
						// Nobody scored; stamp it settled so we stop retrying.
						now := time.Now()
						w.DB.Model(&models.Competition{}).
							Where("id = ?", comp.ID).
							Update("settled_at", now)
						log.Printf("⚠️ Competition %s settled with empty leaderboard, no payouts", comp.ID)
						continue
					}
					log.Printf("❌ Auto-settlement of %s failed: %v", comp.ID, err)
					continue
				}
				if !already {
					log.Printf("💰 Auto-settled competition %s (%d prize transactions)", comp.ID, len(transactions))
				}
			}
		}
	}
}
