package database

import (
	"fmt"

	"crypto-invest-platform-go/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var defaultAssets = []models.TradeableAsset{
	{Symbol: "BTC/USDT", Name: "Bitcoin", MarketType: models.MarketCrypto},
	{Symbol: "ETH/USDT", Name: "Ethereum", MarketType: models.MarketCrypto},
	{Symbol: "BNB/USDT", Name: "BNB", MarketType: models.MarketCrypto},
	{Symbol: "SOL/USDT", Name: "Solana", MarketType: models.MarketCrypto},
	{Symbol: "XRP/USDT", Name: "XRP", MarketType: models.MarketCrypto},
	{Symbol: "EUR/USD", Name: "Euro / US Dollar", MarketType: models.MarketForex},
	{Symbol: "GBP/USD", Name: "British Pound / US Dollar", MarketType: models.MarketForex},
	{Symbol: "USD/JPY", Name: "US Dollar / Japanese Yen", MarketType: models.MarketForex},
}

var defaultSignals = []models.Signal{
	{Name: "Starter", Description: "Entry level signal", Price: decimal.NewFromInt(50), ProfitMultiplier: decimal.NewFromFloat(1.2)},
	{Name: "Pro", Description: "Higher multiplier for active traders", Price: decimal.NewFromInt(150), ProfitMultiplier: decimal.NewFromFloat(1.5)},
	{Name: "Elite", Description: "Maximum multiplier", Price: decimal.NewFromInt(400), ProfitMultiplier: decimal.NewFromInt(2)},
}

// Seed populates reference data the first time the database is created.
// Existing rows are left untouched.
func Seed(db *gorm.DB) error {
	for _, a := range defaultAssets {
		asset := a
		asset.Active = true
		if err := db.Where(models.TradeableAsset{Symbol: asset.Symbol}).FirstOrCreate(&asset).Error; err != nil {
			return fmt.Errorf("failed to seed asset '%s': %w", asset.Symbol, err)
		}
	}

	for _, s := range defaultSignals {
		signal := s
		signal.Active = true
		if err := db.Where(models.Signal{Name: signal.Name}).FirstOrCreate(&signal).Error; err != nil {
			return fmt.Errorf("failed to seed signal '%s': %w", signal.Name, err)
		}
	}

	setting := models.AdminSetting{Key: models.SettingTradingEngine, Value: string(models.EngineRising)}
	if err := db.Where(models.AdminSetting{Key: setting.Key}).FirstOrCreate(&setting).Error; err != nil {
		return fmt.Errorf("failed to seed admin setting: %w", err)
	}

	return nil
}
