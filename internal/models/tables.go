package models

// Table names as seen by row queries and change events.
const (
	TableProfiles          = "profiles"
	TableTrades            = "trades"
	TableSignals           = "signals"
	TablePurchasedSignals  = "purchased_signals"
	TableTransactions      = "transactions"
	TableAdminSettings     = "admin_settings"
	TableTradeableAssets   = "tradeable_assets"
	TableUserTradingEngine = "user_trading_engines"
)
