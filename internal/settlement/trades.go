package settlement

import (
	"context"
	"errors"
	"fmt"

	"crypto-invest-platform-go/internal/backend"
	"crypto-invest-platform-go/internal/models"
	"crypto-invest-platform-go/internal/realtime"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StartTradeValidated validates the request, debits the stake and creates the trade atomically.
// The multiplier comes from the purchased signal and the entry price from the server's
// quote, never from the request. A requested entry price only has to agree with the quote.
func (s *Service) StartTradeValidated(ctx context.Context, req backend.StartTradeRequest) (backend.StartTradeResult, error) {
	var result backend.StartTradeResult

	quote, err := s.assetQuote(ctx, req.AssetID)
	if err != nil {
		return backend.StartTradeResult{}, err
	}

	err = s.atomically(ctx, func(tx *gorm.DB, ch *changes) error {
		if req.TradeType != models.TradeBuy && req.TradeType != models.TradeSell {
			return reject("invalid trade type %q", req.TradeType)
		}
		if !req.Amount.IsPositive() {
			return reject("amount must be greater than zero")
		}
		if !models.IsComponentBucket(req.BalanceSource) {
			return reject("invalid balance source %q", req.BalanceSource)
		}
		duration, err := models.ParseDuration(string(req.DurationType))
		if err != nil {
			return reject("%s", err.Error())
		}

		profile, err := s.loadProfile(tx, req.UserID)
		if err != nil {
			return err
		}

		var asset models.TradeableAsset
		if err := tx.First(&asset, "id = ?", req.AssetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return reject("asset not found")
			}
			return fmt.Errorf("failed to load asset: %w", err)
		}
		if !asset.Active {
			return reject("asset %s is not tradeable", asset.Symbol)
		}

		settings, err := engineSettings(tx, req.UserID)
		if err != nil {
			return err
		}
		engine := settings.Resolve()

		multiplier := decimal.NewFromInt(1)
		var signalID, purchasedID *uuid.UUID
		if req.PurchasedSignalID != uuid.Nil {
			var owned models.PurchasedSignal
			err := tx.Preload("Signal").
				First(&owned, "id = ? AND user_id = ? AND status = ?", req.PurchasedSignalID, req.UserID, models.PurchasedSignalActive).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return reject("purchased signal not found")
				}
				return fmt.Errorf("failed to load purchased signal: %w", err)
			}
			multiplier = owned.Signal.ProfitMultiplier
			sid, pid := owned.SignalID, owned.ID
			signalID, purchasedID = &sid, &pid
		} else if engine == models.EngineRising {
			return reject("a purchased signal is required to trade with the rising engine")
		}

		entry := quote
		if entry <= 0 {
			entry = asset.CurrentPrice
		}
		if entry <= 0 {
			return reject("no price available for %s", asset.Symbol)
		}
		if req.EntryPrice > 0 && !nearPrice(req.EntryPrice, entry) {
			return reject("entry price %s is too far from the market price %s of %s",
				formatPrice(req.EntryPrice), formatPrice(entry), asset.Symbol)
		}
		if err := validateTriggers(req.TradeType, entry, req.StopLoss, req.TakeProfit); err != nil {
			return err
		}

		available, _ := profile.Bucket(req.BalanceSource)
		if available.LessThan(req.Amount) {
			return reject("insufficient %s: available %s, requested %s", req.BalanceSource, available.StringFixed(2), req.Amount.StringFixed(2))
		}
		if err := profile.AddToBucket(req.BalanceSource, req.Amount.Neg()); err != nil {
			return err
		}
		if err := s.saveBalances(tx, ch, profile); err != nil {
			return err
		}

		now := s.now()
		trade := models.Trade{
			UserID:            req.UserID,
			SignalID:          signalID,
			PurchasedSignalID: purchasedID,
			AssetID:           asset.ID,
			TradeType:         req.TradeType,
			InitialAmount:     req.Amount,
			ProfitMultiplier:  multiplier,
			EntryPrice:        entry,
			CurrentPrice:      entry,
			TradingPair:       asset.Symbol,
			MarketType:        asset.MarketType,
			StopLoss:          req.StopLoss,
			TakeProfit:        req.TakeProfit,
			DurationType:      duration,
			ExpiresAt:         duration.ExpiresAt(now),
			BalanceSource:     req.BalanceSource,
			Engine:            engine,
			Status:            models.TradeActive,
			CurrentProfit:     decimal.Zero,
		}
		if err := tx.Create(&trade).Error; err != nil {
			return fmt.Errorf("failed to create trade: %w", err)
		}
		ch.add(models.TableTrades, realtime.Insert, trade.UserID, trade)

		id := trade.ID
		result = backend.StartTradeResult{Success: true, TradeID: &id, Engine: engine}
		return nil
	})

	if msg, ok := asRejection(err); ok {
		return backend.StartTradeResult{Success: false, Error: msg}, nil
	}
	if err != nil {
		s.logger.Error("Failed to start trade", zap.String("user_id", req.UserID.String()), zap.Error(err))
		return backend.StartTradeResult{}, err
	}

	s.logger.Info("Trade started",
		zap.String("trade_id", result.TradeID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("engine", string(result.Engine)),
	)
	return result, nil
}

// SyncTradingProfits recomputes the profit of every active trade from its stored price
// and liquidates trades whose stop-loss, take-profit or expiry is reached.
func (s *Service) SyncTradingProfits(ctx context.Context) (backend.SyncResult, error) {
	var result backend.SyncResult

	err := s.atomically(ctx, func(tx *gorm.DB, ch *changes) error {
		var trades []models.Trade
		if err := forUpdate(tx).Where("status = ?", models.TradeActive).Order("created_at").Find(&trades).Error; err != nil {
			return fmt.Errorf("failed to load active trades: %w", err)
		}

		now := s.now()
		type liquidation struct {
			trade  *models.Trade
			price  float64
			profit decimal.Decimal
			reason string
		}
		var due []liquidation
		var owners []uuid.UUID

		for i := range trades {
			t := &trades[i]
			price := t.CurrentPrice
			if price <= 0 {
				price = t.EntryPrice
			}

			profit := accruedProfit(t, price)
			if reason := liquidationReason(t, price, now); reason != "" {
				due = append(due, liquidation{trade: t, price: price, profit: profit, reason: reason})
				owners = append(owners, t.UserID)
				continue
			}
			if profit.Equal(t.CurrentProfit) {
				continue
			}
			t.CurrentProfit = profit
			if err := tx.Model(t).Update("current_profit", profit).Error; err != nil {
				return fmt.Errorf("failed to update profit of trade %s: %w", t.ID, err)
			}
			ch.add(models.TableTrades, realtime.Update, t.UserID, t)
			result.Updated++
		}
		if len(due) == 0 {
			return nil
		}

		profiles, err := s.loadProfiles(tx, owners)
		if err != nil {
			return err
		}
		for _, d := range due {
			t := d.trade
			p, ok := profiles[t.UserID]
			if !ok {
				return fmt.Errorf("trade %s: owner %s not found", t.ID, t.UserID)
			}

			t.CurrentProfit = d.profit
			if err := s.closeTrade(tx, ch, t, p, models.TradeLiquidated, d.reason); err != nil {
				return err
			}
			record := models.TradeResultTransaction(t.UserID, t.ID, t.TradingPair, t.TradeType, d.profit)
			if err := s.insertTransaction(tx, ch, &record); err != nil {
				return err
			}
			result.Liquidated++

			s.logger.Info("Trade liquidated",
				zap.String("trade_id", t.ID.String()),
				zap.String("reason", d.reason),
				zap.Float64("price", d.price),
				zap.String("profit", d.profit.String()),
			)
		}

		for _, p := range profiles {
			if err := s.saveBalances(tx, ch, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return backend.SyncResult{}, err
	}
	return result, nil
}

// closeTrade credits stake plus profit to the trade's bucket and marks it terminal.
// The caller saves the profile.
func (s *Service) closeTrade(tx *gorm.DB, ch *changes, t *models.Trade, p *models.Profile, status models.TradeStatus, reason string) error {
	credit := t.Equity()
	if credit.IsNegative() {
		credit = decimal.Zero
	}
	if err := p.AddToBucket(t.BalanceSource, credit); err != nil {
		return fmt.Errorf("trade %s: %w", t.ID, err)
	}

	t.Status = status
	t.CloseReason = reason
	if err := tx.Save(t).Error; err != nil {
		return fmt.Errorf("failed to close trade %s: %w", t.ID, err)
	}
	ch.add(models.TableTrades, realtime.Update, t.UserID, t)
	return nil
}

// StopSingleTrade closes one active trade of the user at its current profit.
func (s *Service) StopSingleTrade(ctx context.Context, tradeID, userID uuid.UUID) error {
	err := s.atomically(ctx, func(tx *gorm.DB, ch *changes) error {
		var t models.Trade
		if err := forUpdate(tx).First(&t, "id = ? AND user_id = ?", tradeID, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return reject("trade not found")
			}
			return fmt.Errorf("failed to load trade: %w", err)
		}
		if t.Status != models.TradeActive {
			return reject("trade is already %s", t.Status)
		}

		p, err := s.loadProfile(tx, userID)
		if err != nil {
			return err
		}
		if err := s.closeTrade(tx, ch, &t, p, models.TradeStopped, ReasonManual); err != nil {
			return err
		}
		if err := s.saveBalances(tx, ch, p); err != nil {
			return err
		}
		record := models.TradeResultTransaction(userID, t.ID, t.TradingPair, t.TradeType, t.CurrentProfit)
		return s.insertTransaction(tx, ch, &record)
	})

	if msg, ok := asRejection(err); ok {
		return &backend.RPCError{Message: msg}
	}
	return err
}

// StopAllUserTrades closes every active trade of the user in one transaction.
// Ledger entries for the closed trades are left to the caller.
func (s *Service) StopAllUserTrades(ctx context.Context, userID uuid.UUID) (backend.StopAllResult, error) {
	result := backend.StopAllResult{TotalProfit: decimal.Zero, TradeDetails: []backend.TradeDetail{}}

	err := s.atomically(ctx, func(tx *gorm.DB, ch *changes) error {
		var trades []models.Trade
		if err := forUpdate(tx).Where("user_id = ? AND status = ?", userID, models.TradeActive).Order("created_at").Find(&trades).Error; err != nil {
			return fmt.Errorf("failed to load active trades: %w", err)
		}
		p, err := s.loadProfile(tx, userID)
		if err != nil {
			return err
		}
		if len(trades) == 0 {
			result.Success = true
			result.Message = "No active trades to stop"
			return nil
		}

		for i := range trades {
			t := &trades[i]
			if err := s.closeTrade(tx, ch, t, p, models.TradeStopped, ReasonStopAll); err != nil {
				return err
			}
			result.TotalProfit = result.TotalProfit.Add(t.CurrentProfit)
			result.TradeDetails = append(result.TradeDetails, backend.TradeDetail{
				TradeID:       t.ID,
				TradingPair:   t.TradingPair,
				TradeType:     t.TradeType,
				InitialAmount: t.InitialAmount,
				Profit:        t.CurrentProfit,
				BalanceSource: t.BalanceSource,
			})
		}
		if err := s.saveBalances(tx, ch, p); err != nil {
			return err
		}

		result.Success = true
		result.TradesStopped = len(trades)
		result.Message = fmt.Sprintf("Stopped %d trades", len(trades))
		return nil
	})

	if msg, ok := asRejection(err); ok {
		return backend.StopAllResult{Success: false, Message: msg, TotalProfit: decimal.Zero, TradeDetails: []backend.TradeDetail{}}, nil
	}
	if err != nil {
		return backend.StopAllResult{}, err
	}
	return result, nil
}

// ActivePairs returns the pairs with at least one active trade.
func (s *Service) ActivePairs(ctx context.Context) (map[string]models.MarketType, error) {
	var rows []struct {
		TradingPair string
		MarketType  models.MarketType
	}
	if err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Distinct("trading_pair", "market_type").
		Where("status = ?", models.TradeActive).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list active pairs: %w", err)
	}
	pairs := make(map[string]models.MarketType, len(rows))
	for _, r := range rows {
		pairs[r.TradingPair] = r.MarketType
	}
	return pairs, nil
}
