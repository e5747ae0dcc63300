package models

import (
	"time"
)

// TransactionType categorises money movements.
type TransactionType string

const (
	TransactionTypeEntryFee TransactionType = "entry_fee"
	TransactionTypePrize    TransactionType = "prize"
	TransactionTypeRefund   TransactionType = "refund"
)

// TransactionStatus moves forward only: pending → completed or pending → failed.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is a persisted money movement. Created once; only its status
// (and CompletedAt) ever change. The unique index over
// (competition_id, user_id, type) is what makes prize settlement retryable
// without double payouts.
type Transaction struct {
	ID            string            `json:"id" gorm:"primaryKey"`
	UserID        string            `json:"user_id" gorm:"not null;index;uniqueIndex:idx_tx_once,priority:2"`
	CompetitionID *string           `json:"competition_id,omitempty" gorm:"index;uniqueIndex:idx_tx_once,priority:1"`
	Type          TransactionType   `json:"type" gorm:"not null;uniqueIndex:idx_tx_once,priority:3"`
	Amount        float64           `json:"amount" gorm:"not null"`
	Status        TransactionStatus `json:"status" gorm:"not null;default:'pending';index"`
	Rank          int               `json:"rank,omitempty"`
	CreatedAt     time.Time         `json:"created_at" gorm:"autoCreateTime"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// Payout is one row of a computed prize distribution. Amounts are carried in
// integer cents so the split sums to the pool with zero rounding error.
type Payout struct {
	UserID      string `json:"user_id"`
	Rank        int    `json:"rank"`
	AmountCents int64  `json:"-"`
}

// Amount returns the payout in currency units.
func (p Payout) Amount() float64 {
	return float64(p.AmountCents) / 100
}
