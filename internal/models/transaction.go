package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction types written to the ledger.
const (
	TxTradeProfit     = "trade_profit"
	TxTradeLoss       = "trade_loss"
	TxSwap            = "swap"
	TxSignalPurchase  = "signal_purchase"
	TxAdminAdjustment = "admin_adjustment"
)

// Transaction is an append-only ledger entry. Amount is signed.
type Transaction struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	Type        string          `gorm:"index;not null" json:"type"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Description string          `json:"description"`
	Status      string          `gorm:"not null;default:completed" json:"status"`
	ReferenceID *uuid.UUID      `gorm:"type:uuid" json:"reference_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = "completed"
	}
	return nil
}

// TradeResultTransaction builds the ledger entry for a closed trade.
// A negative profit is recorded as a loss.
func TradeResultTransaction(userID, tradeID uuid.UUID, pair string, tradeType TradeType, profit decimal.Decimal) Transaction {
	typ, word := TxTradeProfit, "profit"
	if profit.IsNegative() {
		typ, word = TxTradeLoss, "loss"
	}
	ref := tradeID
	return Transaction{
		UserID:      userID,
		Type:        typ,
		Amount:      profit,
		Description: fmt.Sprintf("%s %s trade closed with %s of %s", strings.ToUpper(string(tradeType)), pair, word, profit.Abs().StringFixed(2)),
		Status:      "completed",
		ReferenceID: &ref,
	}
}
