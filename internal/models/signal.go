package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Signal is a purchasable profit multiplier package.
type Signal struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string          `gorm:"uniqueIndex;not null" json:"name"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"price"`
	ProfitMultiplier decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"profit_multiplier"`
	Active           bool            `gorm:"default:true" json:"active"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (s *Signal) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

const (
	PurchasedSignalActive  = "active"
	PurchasedSignalExpired = "expired"
)

// PurchasedSignal records a user's ownership of a signal.
type PurchasedSignal struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	SignalID   uuid.UUID       `gorm:"type:uuid;not null" json:"signal_id"`
	Signal     Signal          `gorm:"foreignKey:SignalID" json:"signal"`
	Status     string          `gorm:"not null;default:active" json:"status"`
	AmountPaid decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount_paid"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (p *PurchasedSignal) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
