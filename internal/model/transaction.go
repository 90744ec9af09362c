package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction statuses. A transaction is created PENDING, moved to
// IN_PROGRESS while its financial effect is being applied, and ends in
// exactly one of COMPLETE or FAILED.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusComplete   = "COMPLETE"
	StatusFailed     = "FAILED"
)

// Transaction types.
const (
	TypeCheckoutSession = "STRIPE_CHECKOUT_SESSION"
	TypeSpendBalance    = "SPEND_BALANCE"
)

type Transaction struct {
	ID          string          `gorm:"primaryKey;size:36"`
	UserID      string          `gorm:"size:64;not null;index"`
	Description string          `gorm:"size:255"`
	Type        string          `gorm:"size:32;not null"`
	ExternalID  string          `gorm:"size:128;index"`
	Status      string          `gorm:"size:16;not null;default:'PENDING'"`
	Balance     decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
}

func (Transaction) TableName() string { return "transactions" }
