package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

type TradeStatus string

const (
	TradeActive     TradeStatus = "active"
	TradeStopped    TradeStatus = "stopped"
	TradeLiquidated TradeStatus = "liquidated"
)

type MarketType string

const (
	MarketCrypto MarketType = "crypto"
	MarketForex  MarketType = "forex"
)

// Duration is the lifetime policy of a trade.
type Duration string

const (
	Duration1h        Duration = "1h"
	Duration6h        Duration = "6h"
	Duration24h       Duration = "24h"
	Duration7d        Duration = "7d"
	DurationUnlimited Duration = "unlimited"
)

// ParseDuration validates a duration policy. The empty string means unlimited.
func ParseDuration(s string) (Duration, error) {
	switch d := Duration(s); d {
	case Duration1h, Duration6h, Duration24h, Duration7d, DurationUnlimited:
		return d, nil
	case "":
		return DurationUnlimited, nil
	}
	return "", fmt.Errorf("invalid duration %q", s)
}

// ExpiresAt returns the expiry derived from the policy, or nil when unlimited.
func (d Duration) ExpiresAt(from time.Time) *time.Time {
	var span time.Duration
	switch d {
	case Duration1h:
		span = time.Hour
	case Duration6h:
		span = 6 * time.Hour
	case Duration24h:
		span = 24 * time.Hour
	case Duration7d:
		span = 7 * 24 * time.Hour
	default:
		return nil
	}
	t := from.Add(span)
	return &t
}

// Trade represents a user's position.
type Trade struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	SignalID          *uuid.UUID      `gorm:"type:uuid" json:"signal_id,omitempty"`
	PurchasedSignalID *uuid.UUID      `gorm:"type:uuid" json:"purchased_signal_id,omitempty"`
	AssetID           uuid.UUID       `gorm:"type:uuid" json:"asset_id"`
	TradeType         TradeType       `gorm:"not null" json:"trade_type"`
	InitialAmount     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"initial_amount"`
	ProfitMultiplier  decimal.Decimal `gorm:"type:decimal(10,4);not null;default:1" json:"profit_multiplier"`
	EntryPrice        float64         `gorm:"not null" json:"entry_price"`
	CurrentPrice      float64         `json:"current_price"`
	TradingPair       string          `gorm:"index;not null" json:"trading_pair"`
	MarketType        MarketType      `gorm:"not null" json:"market_type"`
	StopLoss          *float64        `json:"stop_loss,omitempty"`
	TakeProfit        *float64        `json:"take_profit,omitempty"`
	DurationType      Duration        `gorm:"not null;default:unlimited" json:"duration_type"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`
	BalanceSource     string          `gorm:"not null" json:"balance_source"`
	Engine            EngineMode      `gorm:"not null" json:"engine"`
	Status            TradeStatus     `gorm:"index;not null;default:active" json:"status"`
	CurrentProfit     decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"current_profit"`
	CloseReason       string          `json:"close_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (t *Trade) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// MarketProfit is the position-sized profit at price: the relative move from the entry
// price applied to the stake, inverted for sells and scaled by the multiplier.
// A position never loses more than its stake.
func (t *Trade) MarketProfit(price float64) decimal.Decimal {
	if t.EntryPrice <= 0 || price <= 0 {
		return decimal.Zero
	}
	move := (price - t.EntryPrice) / t.EntryPrice
	if t.TradeType == TradeSell {
		move = -move
	}
	multiplier := t.ProfitMultiplier
	if multiplier.IsZero() {
		multiplier = decimal.NewFromInt(1)
	}
	profit := t.InitialAmount.Mul(decimal.NewFromFloat(move)).Mul(multiplier).Round(8)
	if floor := t.InitialAmount.Neg(); profit.LessThan(floor) {
		return floor
	}
	return profit
}

// Equity is the stake plus the accrued profit.
func (t *Trade) Equity() decimal.Decimal {
	return t.InitialAmount.Add(t.CurrentProfit)
}

// PercentPnL returns profit/initial*100 formatted with two decimals.
func PercentPnL(profit, initial decimal.Decimal) string {
	if initial.IsZero() {
		return "0.00"
	}
	return profit.Div(initial).Mul(decimal.NewFromInt(100)).StringFixed(2)
}
