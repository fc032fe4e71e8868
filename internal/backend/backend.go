// Package backend defines the contract between the trading client and the settlement
// backend, and an HTTP implementation of it for a remote server.
package backend

import (
	"context"
	"errors"

	"crypto-invest-platform-go/internal/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Store lookups that match no row.
var ErrNotFound = errors.New("not found")

// RPCError is a business rejection raised by an RPC, as opposed to a transport failure.
type RPCError struct {
	Message string
}

func (e *RPCError) Error() string { return e.Message }

// Backend is the set of atomic server operations the client relies on.
// Structured results with Success=false are not errors; a returned error is either an
// *RPCError or a transport failure.
type Backend interface {
	StartTradeValidated(ctx context.Context, req StartTradeRequest) (StartTradeResult, error)
	SyncTradingPrices(ctx context.Context, updates []PriceUpdate) error
	SyncTradingProfits(ctx context.Context) (SyncResult, error)
	UpdateLiveInterestEarned(ctx context.Context) (InterestResult, error)
	StopSingleTrade(ctx context.Context, tradeID, userID uuid.UUID) error
	StopAllUserTrades(ctx context.Context, userID uuid.UUID) (StopAllResult, error)
	SwapBalances(ctx context.Context, req SwapRequest) (Result, error)
	PurchaseSignal(ctx context.Context, userID, signalID uuid.UUID) (PurchaseSignalResult, error)
	AdminAdjustUserBalance(ctx context.Context, req AdminAdjustRequest) (Result, error)
}

// Store is filtered read access to the rows the client displays, plus the
// transaction ledger writes left to the client.
type Store interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	ListActiveTrades(ctx context.Context, userID uuid.UUID) ([]models.Trade, error)
	ListTradeHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.Trade, error)
	GetAsset(ctx context.Context, assetID uuid.UUID) (*models.TradeableAsset, error)
	ListAssets(ctx context.Context) ([]models.TradeableAsset, error)
	ListSignals(ctx context.Context) ([]models.Signal, error)
	GetPurchasedSignal(ctx context.Context, id uuid.UUID) (*models.PurchasedSignal, error)
	ListPurchasedSignals(ctx context.Context, userID uuid.UUID) ([]models.PurchasedSignal, error)
	EngineSettings(ctx context.Context, userID uuid.UUID) (EngineSettings, error)
	InsertTransactions(ctx context.Context, txs []models.Transaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error)
}
