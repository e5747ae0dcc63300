package models

import (
	"time"
)

// LeaderboardEntry is a user's aggregate standing inside one competition.
// The sums cover every scoring ActivityRecord in the competition window;
// Score is derived from them by the competition-type scoring function.
// FirstScoredAt breaks score ties (earliest qualifying activity wins).
type LeaderboardEntry struct {
	ID            string    `json:"-" gorm:"primaryKey"`
	UserID        string    `json:"user_id" gorm:"not null;index;uniqueIndex:idx_board_user,priority:1"`
	CompetitionID string    `json:"competition_id" gorm:"not null;index;uniqueIndex:idx_board_user,priority:2"`
	UserName      string    `json:"user_name,omitempty" gorm:"-"`
	Steps         int64     `json:"steps" gorm:"default:0"`
	Distance      float64   `json:"distance" gorm:"default:0"`
	Calories      float64   `json:"calories" gorm:"default:0"`
	ActiveMinutes int64     `json:"active_minutes" gorm:"default:0"`
	Score         int64     `json:"score" gorm:"default:0;index"`
	Rank          int       `json:"rank" gorm:"-"`
	FirstScoredAt time.Time `json:"-"`
	LastSyncedAt  time.Time `json:"last_synced_at"`
}

// Leaderboard is the ordered standings view returned to clients.
type Leaderboard struct {
	CompetitionID string             `json:"competition_id"`
	Entries       []LeaderboardEntry `json:"entries"`
	TotalCount    int64              `json:"total_count"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ScoreUpdate is the realtime delta pushed over the websocket channel when
// a ranking changes materially.
type ScoreUpdate struct {
	CompetitionID string    `json:"competition_id"`
	UserID        string    `json:"user_id"`
	Score         int64     `json:"score"`
	Rank          int       `json:"rank"`
	Timestamp     time.Time `json:"timestamp"`
}

// WSMessage is the envelope for every websocket frame we send.
type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
