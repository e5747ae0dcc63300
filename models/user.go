package models

import (
	"time"

	"gorm.io/gorm"
)

// CompetitionUser is a local snapshot of profile data needed to render
// leaderboards and payouts. Owned solely by this service; populated by the
// profile sync worker from the identity provider.
type CompetitionUser struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	ExternalUserID string     `gorm:"uniqueIndex;not null" json:"external_user_id"` // identity provider's UUID (JWT sub)
	Name           string     `gorm:"index" json:"name"`
	Email          string     `json:"email,omitempty"`
	AvatarURL      *string    `json:"avatar_url,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
