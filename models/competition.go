package models

import (
	"time"
)

// Competition type decides which metrics feed the score.
const (
	CompetitionTypeSteps    = "steps"
	CompetitionTypeDistance = "distance"
	CompetitionTypeCalories = "calories"
	CompetitionTypeMixed    = "mixed"
)

// Competition status lifecycle. Transitions are forward-only:
// upcoming → active → completed.
const (
	CompetitionStatusUpcoming  = "upcoming"
	CompetitionStatusActive    = "active"
	CompetitionStatusCompleted = "completed"
)

// Competition is a time-boxed fitness contest with an entry fee and a prize pool.
type Competition struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	Name        string     `json:"name" gorm:"not null"`
	Slug        string     `json:"slug" gorm:"uniqueIndex"`
	Description string     `json:"description"`
	Type        string     `json:"type" gorm:"not null;default:'steps'"`
	EntryFee    float64    `json:"entry_fee" gorm:"default:0"`
	PrizePool   float64    `json:"prize_pool" gorm:"default:0"`
	StartDate   time.Time  `json:"start_date" gorm:"not null;index"`
	EndDate     time.Time  `json:"end_date" gorm:"not null;index"`
	Status      string     `json:"status" gorm:"default:'upcoming';index"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty" gorm:"index"`

	Timestamps

	// Calculated fields (not stored in DB)
	ParticipantsCount int64 `json:"participants_count,omitempty" gorm:"-"`
}

// WindowContains reports whether the given calendar date falls inside the
// competition window. Both bounds are inclusive and compared by date, not
// by instant, so a record for the final day is still accepted.
func (c *Competition) WindowContains(date time.Time) bool {
	d := date.UTC().Truncate(24 * time.Hour)
	start := c.StartDate.UTC().Truncate(24 * time.Hour)
	end := c.EndDate.UTC().Truncate(24 * time.Hour)
	return !d.Before(start) && !d.After(end)
}

// StatusForDates derives the lifecycle status a competition should carry at
// a given instant. Used on create and by the status sweep.
func StatusForDates(start, end, now time.Time) string {
	switch {
	case now.Before(start):
		return CompetitionStatusUpcoming
	case now.After(end):
		return CompetitionStatusCompleted
	default:
		return CompetitionStatusActive
	}
}

// CompetitionParticipant links a user to a competition they joined.
type CompetitionParticipant struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	CompetitionID string    `json:"competition_id" gorm:"not null;index;uniqueIndex:idx_participant_once,priority:1"`
	UserID        string    `json:"user_id" gorm:"not null;index;uniqueIndex:idx_participant_once,priority:2"`
	JoinedAt      time.Time `json:"joined_at" gorm:"autoCreateTime"`
}

// UserCompetition is a competition enriched with the requesting user's
// aggregate progress, for the "my competitions" listing.
type UserCompetition struct {
	Competition
	JoinedAt      time.Time `json:"joined_at"`
	UserSteps     int64     `json:"user_steps"`
	UserDistance  float64   `json:"user_distance"`
	UserCalories  float64   `json:"user_calories"`
	UserScore     int64     `json:"user_score"`
	UserRank      int       `json:"user_rank,omitempty"`
}
