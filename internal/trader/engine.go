package trader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"crypto-invest-platform-go/internal/apperr"
	"crypto-invest-platform-go/internal/backend"
	"crypto-invest-platform-go/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceSource is the part of the market price source the engine needs.
type PriceSource interface {
	GetPrice(ctx context.Context, pair string, marketType models.MarketType) float64
	Invalidate(ctx context.Context, pair string)
}

// BalanceRefresher re-reads the user's balances after money moved.
type BalanceRefresher interface {
	RefreshBalances(ctx context.Context) error
}

// BalanceReader answers funds checks from balances already held locally. When the
// engine's BalanceRefresher implements it, OpenTrade does not fetch the profile.
type BalanceReader interface {
	Available(ctx context.Context, bucket string) (decimal.Decimal, error)
}

// Position is an active trade as displayed to the user. Money values come from the
// server's current_profit only.
type Position struct {
	Trade      models.Trade    `json:"trade"`
	PercentPnL string          `json:"percent_pnl"`
	Equity     decimal.Decimal `json:"equity"`
}

func newPosition(t models.Trade) Position {
	return Position{
		Trade:      t,
		PercentPnL: models.PercentPnL(t.CurrentProfit, t.InitialAmount),
		Equity:     t.Equity(),
	}
}

// Options tunes an Engine.
type Options struct {
	Poll time.Duration
	// OnRefresh, if set, is called after every successful refresh of the positions.
	OnRefresh func([]Position)
}

// Engine drives the trade lifecycle of one user against the backend.
type Engine struct {
	userID    uuid.UUID
	backend   backend.Backend
	store     backend.Store
	prices    PriceSource
	balances  BalanceRefresher
	poll      time.Duration
	onRefresh func([]Position)
	logger    *zap.Logger

	positions atomic.Pointer[[]Position]
	StartTime time.Time
}

// NewEngine creates a new trading engine for userID. balances may be nil.
func NewEngine(userID uuid.UUID, be backend.Backend, store backend.Store, prices PriceSource, balances BalanceRefresher, opts Options, logger *zap.Logger) *Engine {
	if opts.Poll <= 0 {
		opts.Poll = 5 * time.Second
	}
	return &Engine{
		userID:    userID,
		backend:   be,
		store:     store,
		prices:    prices,
		balances:  balances,
		poll:      opts.Poll,
		onRefresh: opts.OnRefresh,
		logger:    logger.Named("trader").With(zap.String("user_id", userID.String())),
		StartTime: time.Now(),
	}
}

// Run keeps the positions current until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	if err := e.Refresh(ctx); err != nil {
		e.logger.Error("Initial refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	e.logger.Info("Starting profit sync loop", zap.Duration("interval", e.poll))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				e.logger.Error("Profit sync failed", zap.Error(err))
			}
		}
	}
}

// Tick runs one price-sync-then-recompute round trip and re-reads the trades.
func (e *Engine) Tick(ctx context.Context) error {
	trades, err := e.store.ListActiveTrades(ctx, e.userID)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		e.setPositions(nil)
		return nil
	}

	pairs := make(map[string]models.MarketType)
	for _, t := range trades {
		pairs[t.TradingPair] = t.MarketType
	}
	updates := e.fetchPrices(ctx, pairs)
	if err := e.backend.SyncTradingPrices(ctx, updates); err != nil {
		return err
	}
	if _, err := e.backend.SyncTradingProfits(ctx); err != nil {
		return err
	}
	return e.Refresh(ctx)
}

// fetchPrices resolves every pair concurrently. The price source never fails.
func (e *Engine) fetchPrices(ctx context.Context, pairs map[string]models.MarketType) []backend.PriceUpdate {
	var wg sync.WaitGroup
	results := make(chan backend.PriceUpdate, len(pairs))

	for pair, mt := range pairs {
		wg.Add(1)
		go func(pair string, mt models.MarketType) {
			defer wg.Done()
			results <- backend.PriceUpdate{TradingPair: pair, Price: e.prices.GetPrice(ctx, pair, mt)}
		}(pair, mt)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	updates := make([]backend.PriceUpdate, 0, len(pairs))
	for u := range results {
		updates = append(updates, u)
	}
	return updates
}

// Refresh re-reads the active trades.
func (e *Engine) Refresh(ctx context.Context) error {
	trades, err := e.store.ListActiveTrades(ctx, e.userID)
	if err != nil {
		return err
	}
	positions := make([]Position, 0, len(trades))
	for _, t := range trades {
		positions = append(positions, newPosition(t))
	}
	e.setPositions(positions)
	return nil
}

func (e *Engine) setPositions(positions []Position) {
	if positions == nil {
		positions = []Position{}
	}
	e.positions.Store(&positions)
	if e.onRefresh != nil {
		e.onRefresh(positions)
	}
}

// Positions returns the last refreshed active trades.
func (e *Engine) Positions() []Position {
	p := e.positions.Load()
	if p == nil {
		return nil
	}
	return *p
}

// History returns closed trades, including those liquidated by the server.
func (e *Engine) History(ctx context.Context, limit int) ([]models.Trade, error) {
	trades, err := e.store.ListTradeHistory(ctx, e.userID, limit)
	if err != nil {
		return nil, e.fail("history", err)
	}
	return trades, nil
}

// OpenRequest is what the user chose when opening a trade.
type OpenRequest struct {
	AssetID           uuid.UUID
	TradeType         models.TradeType
	Amount            decimal.Decimal
	BalanceSource     string
	PurchasedSignalID uuid.UUID
	StopLoss          *float64
	TakeProfit        *float64
	Duration          models.Duration
}

// OpenTrade validates the request locally, forces a price resync and starts the trade
// with one atomic backend call. Nothing changes locally unless the server accepts it.
func (e *Engine) OpenTrade(ctx context.Context, req OpenRequest) (uuid.UUID, error) {
	if e.userID == uuid.Nil {
		return uuid.Nil, apperr.Validation("sign in to trade")
	}
	if req.BalanceSource == "" {
		return uuid.Nil, apperr.Validation("select a balance to trade from")
	}
	if !models.IsComponentBucket(req.BalanceSource) {
		return uuid.Nil, apperr.Validation("invalid balance source %q", req.BalanceSource)
	}
	if req.AssetID == uuid.Nil {
		return uuid.Nil, apperr.Validation("select an asset to trade")
	}
	if req.TradeType != models.TradeBuy && req.TradeType != models.TradeSell {
		return uuid.Nil, apperr.Validation("choose buy or sell")
	}
	if !req.Amount.IsPositive() {
		return uuid.Nil, apperr.Validation("amount must be greater than zero")
	}
	duration, err := models.ParseDuration(string(req.Duration))
	if err != nil {
		return uuid.Nil, apperr.Validation("%s", err.Error())
	}

	asset, err := e.store.GetAsset(ctx, req.AssetID)
	if errors.Is(err, backend.ErrNotFound) {
		return uuid.Nil, apperr.Validation("select an asset to trade")
	}
	if err != nil {
		return uuid.Nil, e.fail("load asset", err)
	}

	settings, err := e.store.EngineSettings(ctx, e.userID)
	if err != nil {
		return uuid.Nil, e.fail("load engine settings", err)
	}
	engine := settings.Resolve()

	multiplier := decimal.NewFromInt(1)
	signalID := uuid.Nil
	if req.PurchasedSignalID != uuid.Nil {
		owned, err := e.store.GetPurchasedSignal(ctx, req.PurchasedSignalID)
		if errors.Is(err, backend.ErrNotFound) || (err == nil && (owned.UserID != e.userID || owned.Status != models.PurchasedSignalActive)) {
			return uuid.Nil, apperr.Validation("select one of your active signals")
		}
		if err != nil {
			return uuid.Nil, e.fail("load signal", err)
		}
		multiplier = owned.Signal.ProfitMultiplier
		signalID = owned.SignalID
	} else if engine == models.EngineRising {
		return uuid.Nil, apperr.Validation("select a purchased signal to trade")
	}

	available, err := e.available(ctx, req.BalanceSource)
	if err != nil {
		return uuid.Nil, e.fail("load balances", err)
	}
	if req.Amount.GreaterThan(available) {
		return uuid.Nil, apperr.Validation("insufficient %s: available %s", req.BalanceSource, available.StringFixed(2))
	}

	entry := e.resyncPrice(ctx, asset)

	res, err := e.backend.StartTradeValidated(ctx, backend.StartTradeRequest{
		UserID:            e.userID,
		SignalID:          signalID,
		PurchasedSignalID: req.PurchasedSignalID,
		TradeType:         req.TradeType,
		Amount:            req.Amount,
		ProfitMultiplier:  multiplier,
		AssetID:           asset.ID,
		EntryPrice:        entry,
		BalanceSource:     req.BalanceSource,
		TradingPair:       asset.Symbol,
		MarketType:        asset.MarketType,
		StopLoss:          req.StopLoss,
		TakeProfit:        req.TakeProfit,
		DurationType:      duration,
	})
	if err != nil {
		return uuid.Nil, e.fail("start trade", err)
	}
	if !res.Success || res.TradeID == nil {
		return uuid.Nil, apperr.Rejected(res.Error)
	}

	e.logger.Info("Trade opened",
		zap.String("trade_id", res.TradeID.String()),
		zap.String("pair", asset.Symbol),
		zap.String("type", string(req.TradeType)),
		zap.String("amount", req.Amount.String()),
		zap.Float64("entry_price", entry),
		zap.String("engine", string(res.Engine)),
	)
	e.afterMoneyMoved(ctx)
	return *res.TradeID, nil
}

// available returns the funds in bucket, preferring the local balance view.
func (e *Engine) available(ctx context.Context, bucket string) (decimal.Decimal, error) {
	if r, ok := e.balances.(BalanceReader); ok {
		return r.Available(ctx, bucket)
	}
	profile, err := e.store.GetProfile(ctx, e.userID)
	if err != nil {
		return decimal.Zero, err
	}
	available, _ := profile.Bucket(bucket)
	return available, nil
}

// resyncPrice drops the cached quote, asks the server to refresh the pair and returns
// the asset's current price as stored there. The server stores its own quote; the
// value sent only names the price the client saw.
func (e *Engine) resyncPrice(ctx context.Context, asset *models.TradeableAsset) float64 {
	e.prices.Invalidate(ctx, asset.Symbol)
	price := e.prices.GetPrice(ctx, asset.Symbol, asset.MarketType)

	if err := e.backend.SyncTradingPrices(ctx, []backend.PriceUpdate{{TradingPair: asset.Symbol, Price: price}}); err != nil {
		e.logger.Warn("Price resync failed", zap.String("pair", asset.Symbol), zap.Error(err))
		return price
	}
	fresh, err := e.store.GetAsset(ctx, asset.ID)
	if err != nil || fresh.CurrentPrice <= 0 {
		return price
	}
	return fresh.CurrentPrice
}

// CloseTrade stops one active trade at its current profit.
func (e *Engine) CloseTrade(ctx context.Context, tradeID uuid.UUID) error {
	if tradeID == uuid.Nil {
		return apperr.Validation("select a trade to close")
	}
	if err := e.backend.StopSingleTrade(ctx, tradeID, e.userID); err != nil {
		return e.fail("stop trade", err)
	}
	e.logger.Info("Trade closed", zap.String("trade_id", tradeID.String()))
	e.afterMoneyMoved(ctx)
	return nil
}

// StopAll stops every active trade, records one ledger entry per trade and refreshes the balance.
func (e *Engine) StopAll(ctx context.Context) (backend.StopAllResult, error) {
	res, err := e.backend.StopAllUserTrades(ctx, e.userID)
	if err != nil {
		return backend.StopAllResult{}, e.fail("stop all trades", err)
	}
	if !res.Success {
		return backend.StopAllResult{}, apperr.Rejected(res.Message)
	}

	if len(res.TradeDetails) > 0 {
		records := make([]models.Transaction, 0, len(res.TradeDetails))
		for _, d := range res.TradeDetails {
			records = append(records, models.TradeResultTransaction(e.userID, d.TradeID, d.TradingPair, d.TradeType, d.Profit))
		}
		if err := e.store.InsertTransactions(ctx, records); err != nil {
			e.logger.Error("Failed to record stopped trades", zap.Int("count", len(records)), zap.Error(err))
		}
	}

	e.logger.Info("All trades stopped",
		zap.Int("trades_stopped", res.TradesStopped),
		zap.String("total_profit", res.TotalProfit.String()),
	)
	e.afterMoneyMoved(ctx)
	return res, nil
}

func (e *Engine) afterMoneyMoved(ctx context.Context) {
	if err := e.Refresh(ctx); err != nil {
		e.logger.Warn("Failed to refresh trades", zap.Error(err))
	}
	if e.balances != nil {
		if err := e.balances.RefreshBalances(ctx); err != nil {
			e.logger.Warn("Failed to refresh balances", zap.Error(err))
		}
	}
}

func (e *Engine) fail(op string, err error) error {
	classified := apperr.FromBackend(err)
	if apperr.IsKind(classified, apperr.KindUnexpected) {
		e.logger.Error("Operation failed", zap.String("op", op), zap.Error(err))
	}
	return classified
}
