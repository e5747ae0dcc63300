// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartStatusScheduler sweeps competition statuses forward once a minute:
// upcoming competitions whose start date has passed go active, active ones
// past their end date go completed.
func (s *CompetitionService) StartStatusScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			changed, err := s.SweepStatuses(time.Now())
			if err != nil {
				log.Printf("[Scheduler] status sweep failed: %v", err)
				return
			}
			if changed > 0 {
				log.Printf("✅ Status sweep moved %d competitions forward", changed)
			}
		}),
	)
}
