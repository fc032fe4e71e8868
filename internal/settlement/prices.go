package settlement

import (
	"context"
	"errors"
	"fmt"
	"math"

	"crypto-invest-platform-go/internal/backend"
	"crypto-invest-platform-go/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PriceTolerance is the largest relative distance between a client's price and the
// server's quote that is still treated as the same price.
const PriceTolerance = 0.01

func nearPrice(price, quote float64) bool {
	return math.Abs(price-quote) <= quote*PriceTolerance
}

func formatPrice(p float64) string {
	return decimal.NewFromFloat(p).String()
}

// assetQuote asks the price provider for the asset's current price. It returns 0 when
// there is no provider, no such asset or no quote.
func (s *Service) assetQuote(ctx context.Context, assetID uuid.UUID) (float64, error) {
	if s.prices == nil {
		return 0, nil
	}
	var asset models.TradeableAsset
	if err := s.db.WithContext(ctx).Select("symbol", "market_type").First(&asset, "id = ?", assetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load asset: %w", err)
	}
	return s.prices.GetPrices(ctx, map[string]models.MarketType{asset.Symbol: asset.MarketType})[asset.Symbol], nil
}

// SyncTradingPrices refreshes the stored price of each listed pair from the server's own
// quotes. The prices in updates only select the pairs: a client may report what it saw,
// but the value stored, and settled against, is always the server's.
func (s *Service) SyncTradingPrices(ctx context.Context, updates []backend.PriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if s.prices == nil {
		s.logger.Debug("No price provider, ignoring pushed prices", zap.Int("pairs", len(updates)))
		return nil
	}

	symbols := make([]string, 0, len(updates))
	for _, u := range updates {
		symbols = append(symbols, u.TradingPair)
	}
	var assets []models.TradeableAsset
	if err := s.db.WithContext(ctx).Select("symbol", "market_type").Where("symbol IN ?", symbols).Find(&assets).Error; err != nil {
		return fmt.Errorf("failed to load assets: %w", err)
	}
	if len(assets) == 0 {
		return nil
	}
	pairs := make(map[string]models.MarketType, len(assets))
	for _, a := range assets {
		pairs[a.Symbol] = a.MarketType
	}

	quotes := s.prices.GetPrices(ctx, pairs)
	verified := make([]backend.PriceUpdate, 0, len(quotes))
	for _, u := range updates {
		quote, ok := quotes[u.TradingPair]
		if !ok || quote <= 0 {
			continue
		}
		if u.Price > 0 && !nearPrice(u.Price, quote) {
			s.logger.Warn("Pushed price disagrees with market quote, using quote",
				zap.String("pair", u.TradingPair),
				zap.Float64("pushed", u.Price),
				zap.Float64("quote", quote),
			)
		}
		verified = append(verified, backend.PriceUpdate{TradingPair: u.TradingPair, Price: quote})
	}
	return s.storePrices(ctx, verified)
}

// storePrices writes prices that came from the server's provider onto assets and active trades.
func (s *Service) storePrices(ctx context.Context, updates []backend.PriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.atomically(ctx, func(tx *gorm.DB, ch *changes) error {
		for _, u := range updates {
			if u.Price <= 0 {
				continue
			}
			if err := tx.Model(&models.Trade{}).
				Where("trading_pair = ? AND status = ?", u.TradingPair, models.TradeActive).
				Update("current_price", u.Price).Error; err != nil {
				return fmt.Errorf("failed to update trade prices for %s: %w", u.TradingPair, err)
			}
			if err := tx.Model(&models.TradeableAsset{}).
				Where("symbol = ?", u.TradingPair).
				Update("current_price", u.Price).Error; err != nil {
				return fmt.Errorf("failed to update asset price for %s: %w", u.TradingPair, err)
			}
		}
		return nil
	})
}
