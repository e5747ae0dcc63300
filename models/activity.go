package models

import (
	"time"

	"gorm.io/gorm"
)

// ActivityRecord is one day of synced fitness metrics for a user inside a
// competition. Records are immutable once stored except for last-write-wins
// replacement: a later sync for the same (user, competition, date) supersedes
// the earlier one, decided by IngestedAt.
type ActivityRecord struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	UserID        string    `json:"user_id" gorm:"not null;index;uniqueIndex:idx_activity_day,priority:1"`
	CompetitionID string    `json:"competition_id" gorm:"not null;index;uniqueIndex:idx_activity_day,priority:2"`
	RecordedDate  time.Time `json:"recorded_date" gorm:"not null;uniqueIndex:idx_activity_day,priority:3"`
	Steps         int64     `json:"steps" gorm:"default:0"`
	Distance      float64   `json:"distance" gorm:"default:0"` // meters
	Calories      float64   `json:"calories" gorm:"default:0"`
	ActiveMinutes int       `json:"active_minutes" gorm:"default:0"`
	Source        string    `json:"source"` // google_fit, apple_health, manual, ...
	IngestedAt    time.Time `json:"ingested_at" gorm:"not null;index"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// SameMetrics reports whether two records carry identical measured values,
// so a duplicate sync can be treated as a no-op.
func (a *ActivityRecord) SameMetrics(b *ActivityRecord) bool {
	return a.Steps == b.Steps &&
		a.Distance == b.Distance &&
		a.Calories == b.Calories &&
		a.ActiveMinutes == b.ActiveMinutes &&
		a.Source == b.Source
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
