package backend

import (
	"crypto-invest-platform-go/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RPC names as exposed over the wire.
const (
	RPCStartTradeValidated      = "start_trade_validated"
	RPCSyncTradingPrices        = "sync_trading_prices"
	RPCSyncTradingProfits       = "sync_trading_profits"
	RPCUpdateLiveInterestEarned = "update_live_interest_earned"
	RPCStopSingleTrade          = "stop_single_trade"
	RPCStopAllUserTrades        = "stop_all_user_trades"
	RPCSwapBalances             = "swap_balances"
	RPCPurchaseSignal           = "purchase_signal"
	RPCAdminAdjustUserBalance   = "admin_adjust_user_balance"
)

// StartTradeRequest carries everything needed to validate, debit and create a trade atomically.
// Signal references are uuid.Nil when the engine does not use a signal.
type StartTradeRequest struct {
	UserID            uuid.UUID         `json:"user_id"`
	SignalID          uuid.UUID         `json:"signal_id"`
	PurchasedSignalID uuid.UUID         `json:"purchased_signal_id"`
	TradeType         models.TradeType  `json:"trade_type"`
	Amount            decimal.Decimal   `json:"amount"`
	ProfitMultiplier  decimal.Decimal   `json:"profit_multiplier"`
	AssetID           uuid.UUID         `json:"asset_id"`
	EntryPrice        float64           `json:"entry_price"`
	BalanceSource     string            `json:"balance_source"`
	TradingPair       string            `json:"trading_pair"`
	MarketType        models.MarketType `json:"market_type"`
	StopLoss          *float64          `json:"stop_loss,omitempty"`
	TakeProfit        *float64          `json:"take_profit,omitempty"`
	DurationType      models.Duration   `json:"duration_type"`
}

type StartTradeResult struct {
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
	TradeID *uuid.UUID        `json:"trade_id,omitempty"`
	Engine  models.EngineMode `json:"engine,omitempty"`
}

// PriceUpdate pushes the latest observed price of a pair to the server.
type PriceUpdate struct {
	TradingPair string  `json:"trading_pair"`
	Price       float64 `json:"price"`
}

type SyncResult struct {
	Updated    int `json:"updated"`
	Liquidated int `json:"liquidated"`
}

type InterestResult struct {
	Users   int             `json:"users"`
	Accrued decimal.Decimal `json:"accrued"`
}

// TradeDetail describes one trade closed by a bulk stop.
type TradeDetail struct {
	TradeID       uuid.UUID        `json:"trade_id"`
	TradingPair   string           `json:"trading_pair"`
	TradeType     models.TradeType `json:"trade_type"`
	InitialAmount decimal.Decimal  `json:"initial_amount"`
	Profit        decimal.Decimal  `json:"profit"`
	BalanceSource string           `json:"balance_source"`
}

type StopAllResult struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	TradesStopped int             `json:"trades_stopped"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	TradeDetails  []TradeDetail   `json:"trade_details"`
}

type SwapRequest struct {
	UserID     uuid.UUID       `json:"user_id"`
	FromBucket string          `json:"from_bucket"`
	ToBucket   string          `json:"to_bucket"`
	Amount     decimal.Decimal `json:"amount"`
}

// Result is the structured outcome of an RPC that only reports success.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type PurchaseSignalResult struct {
	Success           bool            `json:"success"`
	Error             string          `json:"error,omitempty"`
	SignalName        string          `json:"signal_name,omitempty"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	PurchasedSignalID *uuid.UUID      `json:"purchased_signal_id,omitempty"`
}

// Balance adjustment actions.
const (
	AdjustAdd      = "add"
	AdjustSubtract = "subtract"
	AdjustSet      = "set"
)

type AdminAdjustRequest struct {
	AdminID     uuid.UUID       `json:"admin_id"`
	UserID      uuid.UUID       `json:"user_id"`
	BalanceType string          `json:"balance_type"`
	Action      string          `json:"action"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
}

// EngineSettings holds both levels of engine configuration that apply to a user.
type EngineSettings struct {
	UserOverride *models.EngineMode `json:"user_override,omitempty"`
	Global       *models.EngineMode `json:"global,omitempty"`
}

func (s EngineSettings) Resolve() models.EngineMode {
	return models.ResolveEngine(s.UserOverride, s.Global)
}

// RPCRequest is the body of RPCs keyed by user and/or trade.
type RPCRequest struct {
	UserID   uuid.UUID `json:"user_id"`
	TradeID  uuid.UUID `json:"trade_id,omitempty"`
	SignalID uuid.UUID `json:"signal_id,omitempty"`
}
