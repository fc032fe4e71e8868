package settlement

import (
	"context"
	"errors"
	"fmt"

	"crypto-invest-platform-go/internal/backend"
	"crypto-invest-platform-go/internal/models"
	"crypto-invest-platform-go/internal/realtime"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return backend.ErrNotFound
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).First(&p, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "profile")
	}
	return &p, nil
}

func (s *Service) ListActiveTrades(ctx context.Context, userID uuid.UUID) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.TradeActive).
		Order("created_at DESC").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active trades: %w", err)
	}
	return trades, nil
}

// ListTradeHistory returns stopped and liquidated trades, most recently closed first.
func (s *Service) ListTradeHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []models.TradeStatus{models.TradeStopped, models.TradeLiquidated}).
		Order("updated_at DESC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trade history: %w", err)
	}
	return trades, nil
}

func (s *Service) GetAsset(ctx context.Context, assetID uuid.UUID) (*models.TradeableAsset, error) {
	var a models.TradeableAsset
	if err := s.db.WithContext(ctx).First(&a, "id = ?", assetID).Error; err != nil {
		return nil, notFound(err, "asset")
	}
	return &a, nil
}

func (s *Service) ListAssets(ctx context.Context) ([]models.TradeableAsset, error) {
	var assets []models.TradeableAsset
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("market_type, symbol").Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return assets, nil
}

func (s *Service) ListSignals(ctx context.Context) ([]models.Signal, error) {
	var signals []models.Signal
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("price").Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	return signals, nil
}

func (s *Service) GetPurchasedSignal(ctx context.Context, id uuid.UUID) (*models.PurchasedSignal, error) {
	var ps models.PurchasedSignal
	if err := s.db.WithContext(ctx).Preload("Signal").First(&ps, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "purchased signal")
	}
	return &ps, nil
}

func (s *Service) ListPurchasedSignals(ctx context.Context, userID uuid.UUID) ([]models.PurchasedSignal, error) {
	var owned []models.PurchasedSignal
	err := s.db.WithContext(ctx).
		Preload("Signal").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&owned).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list purchased signals: %w", err)
	}
	return owned, nil
}

func (s *Service) EngineSettings(ctx context.Context, userID uuid.UUID) (backend.EngineSettings, error) {
	return engineSettings(s.db.WithContext(ctx), userID)
}

// InsertTransactions appends ledger entries written by the client.
func (s *Service) InsertTransactions(ctx context.Context, txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	return s.atomically(ctx, func(tx *gorm.DB, ch *changes) error {
		if err := tx.Create(&txs).Error; err != nil {
			return fmt.Errorf("failed to insert transactions: %w", err)
		}
		for i := range txs {
			ch.add(models.TableTransactions, realtime.Insert, txs[i].UserID, txs[i])
		}
		return nil
	})
}

func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// SetUserEngine stores a per-user engine override. EngineDefault removes the override.
func (s *Service) SetUserEngine(ctx context.Context, userID uuid.UUID, mode models.EngineMode) error {
	return s.atomically(ctx, func(tx *gorm.DB, ch *changes) error {
		if mode == models.EngineDefault {
			return tx.Delete(&models.UserTradingEngine{}, "user_id = ?", userID).Error
		}
		row := models.UserTradingEngine{UserID: userID, Engine: mode}
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("failed to save user engine: %w", err)
		}
		ch.add(models.TableUserTradingEngine, realtime.Update, userID, row)
		return nil
	})
}

// SetSetting upserts a global admin setting.
func (s *Service) SetSetting(ctx context.Context, key, value string) error {
	row := models.AdminSetting{Key: key, Value: value}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}
