package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TradeableAsset is an instrument users can open trades on.
type TradeableAsset struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Symbol       string     `gorm:"uniqueIndex;not null" json:"symbol"` // e.g. "BTC/USDT"
	Name         string     `json:"name"`
	MarketType   MarketType `gorm:"not null" json:"market_type"`
	CurrentPrice float64    `json:"current_price"`
	Active       bool       `gorm:"default:true" json:"active"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (a *TradeableAsset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// All returns every model managed by the migrator.
func All() []any {
	return []any{
		&Profile{},
		&Trade{},
		&Signal{},
		&PurchasedSignal{},
		&Transaction{},
		&AdminSetting{},
		&TradeableAsset{},
		&UserTradingEngine{},
	}
}
