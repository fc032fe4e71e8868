package settlement

import (
	"time"

	"crypto-invest-platform-go/internal/models"
	"github.com/shopspring/decimal"
)

// Close reasons recorded on trades.
const (
	ReasonManual     = "manual"
	ReasonStopAll    = "stop_all"
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
	ReasonExpired    = "expired"
)

// liquidationReason returns why an active trade must be liquidated at price, or "".
// When several conditions hold, stop-loss wins over take-profit, which wins over expiry.
func liquidationReason(t *models.Trade, price float64, now time.Time) string {
	if price > 0 {
		buy := t.TradeType == models.TradeBuy
		if t.StopLoss != nil && *t.StopLoss > 0 {
			if (buy && price <= *t.StopLoss) || (!buy && price >= *t.StopLoss) {
				return ReasonStopLoss
			}
		}
		if t.TakeProfit != nil && *t.TakeProfit > 0 {
			if (buy && price >= *t.TakeProfit) || (!buy && price <= *t.TakeProfit) {
				return ReasonTakeProfit
			}
		}
	}
	if t.ExpiresAt != nil && !now.Before(*t.ExpiresAt) {
		return ReasonExpired
	}
	return ""
}

// accruedProfit is the profit of a trade at price under its engine.
// Rising trades never give back profit already shown.
func accruedProfit(t *models.Trade, price float64) decimal.Decimal {
	market := t.MarketProfit(price)
	if t.Engine == models.EngineRising && market.LessThan(t.CurrentProfit) {
		return t.CurrentProfit
	}
	return market
}

// validateTriggers checks that stop-loss and take-profit sit on the right side of entry.
func validateTriggers(tradeType models.TradeType, entry float64, stopLoss, takeProfit *float64) error {
	buy := tradeType == models.TradeBuy
	if stopLoss != nil {
		if *stopLoss <= 0 {
			return reject("stop loss must be positive")
		}
		if buy && *stopLoss >= entry {
			return reject("stop loss must be below the entry price for buy trades")
		}
		if !buy && *stopLoss <= entry {
			return reject("stop loss must be above the entry price for sell trades")
		}
	}
	if takeProfit != nil {
		if *takeProfit <= 0 {
			return reject("take profit must be positive")
		}
		if buy && *takeProfit <= entry {
			return reject("take profit must be above the entry price for buy trades")
		}
		if !buy && *takeProfit >= entry {
			return reject("take profit must be below the entry price for sell trades")
		}
	}
	return nil
}
