// Package backendmock provides testify mocks of the backend interfaces.
package backendmock

import (
	"context"

	"crypto-invest-platform-go/internal/backend"
	"crypto-invest-platform-go/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Backend is a mock implementation of backend.Backend.
type Backend struct {
	mock.Mock
}

var _ backend.Backend = (*Backend)(nil)

func (m *Backend) StartTradeValidated(ctx context.Context, req backend.StartTradeRequest) (backend.StartTradeResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(backend.StartTradeResult), args.Error(1)
}

func (m *Backend) SyncTradingPrices(ctx context.Context, updates []backend.PriceUpdate) error {
	args := m.Called(ctx, updates)
	return args.Error(0)
}

func (m *Backend) SyncTradingProfits(ctx context.Context) (backend.SyncResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(backend.SyncResult), args.Error(1)
}

func (m *Backend) UpdateLiveInterestEarned(ctx context.Context) (backend.InterestResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(backend.InterestResult), args.Error(1)
}

func (m *Backend) StopSingleTrade(ctx context.Context, tradeID, userID uuid.UUID) error {
	args := m.Called(ctx, tradeID, userID)
	return args.Error(0)
}

func (m *Backend) StopAllUserTrades(ctx context.Context, userID uuid.UUID) (backend.StopAllResult, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(backend.StopAllResult), args.Error(1)
}

func (m *Backend) SwapBalances(ctx context.Context, req backend.SwapRequest) (backend.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(backend.Result), args.Error(1)
}

func (m *Backend) PurchaseSignal(ctx context.Context, userID, signalID uuid.UUID) (backend.PurchaseSignalResult, error) {
	args := m.Called(ctx, userID, signalID)
	return args.Get(0).(backend.PurchaseSignalResult), args.Error(1)
}

func (m *Backend) AdminAdjustUserBalance(ctx context.Context, req backend.AdminAdjustRequest) (backend.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(backend.Result), args.Error(1)
}

// Store is a mock implementation of backend.Store.
type Store struct {
	mock.Mock
}

var _ backend.Store = (*Store)(nil)

func (m *Store) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*models.Profile)
	return p, args.Error(1)
}

func (m *Store) ListActiveTrades(ctx context.Context, userID uuid.UUID) ([]models.Trade, error) {
	args := m.Called(ctx, userID)
	trades, _ := args.Get(0).([]models.Trade)
	return trades, args.Error(1)
}

func (m *Store) ListTradeHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.Trade, error) {
	args := m.Called(ctx, userID, limit)
	trades, _ := args.Get(0).([]models.Trade)
	return trades, args.Error(1)
}

func (m *Store) GetAsset(ctx context.Context, assetID uuid.UUID) (*models.TradeableAsset, error) {
	args := m.Called(ctx, assetID)
	a, _ := args.Get(0).(*models.TradeableAsset)
	return a, args.Error(1)
}

func (m *Store) ListAssets(ctx context.Context) ([]models.TradeableAsset, error) {
	args := m.Called(ctx)
	assets, _ := args.Get(0).([]models.TradeableAsset)
	return assets, args.Error(1)
}

func (m *Store) ListSignals(ctx context.Context) ([]models.Signal, error) {
	args := m.Called(ctx)
	signals, _ := args.Get(0).([]models.Signal)
	return signals, args.Error(1)
}

func (m *Store) GetPurchasedSignal(ctx context.Context, id uuid.UUID) (*models.PurchasedSignal, error) {
	args := m.Called(ctx, id)
	ps, _ := args.Get(0).(*models.PurchasedSignal)
	return ps, args.Error(1)
}

func (m *Store) ListPurchasedSignals(ctx context.Context, userID uuid.UUID) ([]models.PurchasedSignal, error) {
	args := m.Called(ctx, userID)
	owned, _ := args.Get(0).([]models.PurchasedSignal)
	return owned, args.Error(1)
}

func (m *Store) EngineSettings(ctx context.Context, userID uuid.UUID) (backend.EngineSettings, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(backend.EngineSettings), args.Error(1)
}

func (m *Store) InsertTransactions(ctx context.Context, txs []models.Transaction) error {
	args := m.Called(ctx, txs)
	return args.Error(0)
}

func (m *Store) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	args := m.Called(ctx, userID, limit)
	txs, _ := args.Get(0).([]models.Transaction)
	return txs, args.Error(1)
}
