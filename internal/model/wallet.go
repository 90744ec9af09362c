package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	UserID    string          `gorm:"primaryKey;size:64;column:user_id"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	Version   uint64          `gorm:"not null;default:0"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallets" }
