package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"crypto-invest-platform-go/internal/backend"
	"crypto-invest-platform-go/internal/config"
	"crypto-invest-platform-go/internal/database"
	"crypto-invest-platform-go/internal/models"
	"crypto-invest-platform-go/internal/realtime"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// quoteBoard is a price provider whose quotes tests set by hand.
type quoteBoard struct {
	mu     sync.Mutex
	quotes map[string]float64
}

func newQuoteBoard() *quoteBoard {
	return &quoteBoard{quotes: make(map[string]float64)}
}

func (b *quoteBoard) set(pair string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[pair] = price
}

func (b *quoteBoard) GetPrices(_ context.Context, pairs map[string]models.MarketType) map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64, len(pairs))
	for pair := range pairs {
		if q, ok := b.quotes[pair]; ok {
			out[pair] = q
		}
	}
	return out
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	feed   *realtime.Feed
	clock  *testClock
	quotes *quoteBoard
}

// setupTest creates a fresh seeded in-memory database and a service over it.
func setupTest(t *testing.T) *fixture {
	db, err := database.NewDatabase(&config.Database{Driver: "sqlite", DSN: "file::memory:", Seed: true})
	require.NoError(t, err)

	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	feed := realtime.NewFeed(64, zap.NewNop())
	quotes := newQuoteBoard()
	svc := NewService(db, feed, Options{PaymentBucket: models.BucketUSDT, Prices: quotes, Now: clock.Now}, zap.NewNop())

	return &fixture{db: db, svc: svc, feed: feed, clock: clock, quotes: quotes}
}

func (f *fixture) createUser(t *testing.T, usdt int64) models.Profile {
	p := models.Profile{
		Email:       uuid.NewString() + "@example.com",
		USDTBalance: decimal.NewFromInt(usdt),
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) profile(t *testing.T, id uuid.UUID) *models.Profile {
	p, err := f.svc.GetProfile(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) asset(t *testing.T, symbol string) models.TradeableAsset {
	var a models.TradeableAsset
	require.NoError(t, f.db.First(&a, "symbol = ?", symbol).Error)
	return a
}

func (f *fixture) setGlobalEngine(t *testing.T, mode models.EngineMode) {
	require.NoError(t, f.svc.SetSetting(context.Background(), models.SettingTradingEngine, string(mode)))
}

// open quotes the pair at the requested entry price and starts the trade.
func (f *fixture) open(t *testing.T, req backend.StartTradeRequest) uuid.UUID {
	f.quotes.set(req.TradingPair, req.EntryPrice)
	res, err := f.svc.StartTradeValidated(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	return *res.TradeID
}

// syncPrice moves the market to price and runs one client sync round.
func (f *fixture) syncPrice(t *testing.T, pair string, price float64) backend.SyncResult {
	ctx := context.Background()
	f.quotes.set(pair, price)
	require.NoError(t, f.svc.SyncTradingPrices(ctx, []backend.PriceUpdate{{TradingPair: pair, Price: price}}))
	res, err := f.svc.SyncTradingProfits(ctx)
	require.NoError(t, err)
	return res
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func buyRequest(user uuid.UUID, asset models.TradeableAsset, amount int64, entry float64) backend.StartTradeRequest {
	return backend.StartTradeRequest{
		UserID:        user,
		TradeType:     models.TradeBuy,
		Amount:        decimal.NewFromInt(amount),
		AssetID:       asset.ID,
		EntryPrice:    entry,
		BalanceSource: models.BucketUSDT,
		TradingPair:   asset.Symbol,
		MarketType:    asset.MarketType,
		DurationType:  models.DurationUnlimited,
	}
}

func TestGeneralTrade_OpenSyncClose(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	f.setGlobalEngine(t, models.EngineGeneral)
	user := f.createUser(t, 500)
	btc := f.asset(t, "BTC/USDT")

	tradeID := f.open(t, buyRequest(user.ID, btc, 100, 94500))

	p := f.profile(t, user.ID)
	assertDecimal(t, "400", p.USDTBalance)
	assertDecimal(t, "400", p.Balance)

	res := f.syncPrice(t, "BTC/USDT", 96390)
	assert.Equal(t, 1, res.Updated)

	trades, err := f.svc.ListActiveTrades(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.EngineGeneral, trades[0].Engine)
	assert.InDelta(t, 2.00, trades[0].CurrentProfit.InexactFloat64(), 1e-6)
	assert.Equal(t, "2.00", models.PercentPnL(trades[0].CurrentProfit, trades[0].InitialAmount))

	require.NoError(t, f.svc.StopSingleTrade(ctx, tradeID, user.ID))

	p = f.profile(t, user.ID)
	assert.InDelta(t, 502.00, p.USDTBalance.InexactFloat64(), 1e-6)
	assert.True(t, p.Balance.Equal(p.USDTBalance))

	trades, err = f.svc.ListActiveTrades(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, trades)

	txs, err := f.svc.ListTransactions(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TxTradeProfit, txs[0].Type)
	assert.Equal(t, tradeID, *txs[0].ReferenceID)

	err = f.svc.StopSingleTrade(ctx, tradeID, user.ID)
	var rpcErr *backend.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Contains(t, rpcErr.Message, "already stopped")
}

func TestStartTrade_Rejections(t *testing.T) {
	f := setupTest(t)
	f.setGlobalEngine(t, models.EngineGeneral)
	user := f.createUser(t, 50)
	btc := f.asset(t, "BTC/USDT")
	f.quotes.set(btc.Symbol, 94500)
	sl := 95000.0

	testCases := []struct {
		name   string
		mutate func(r *backend.StartTradeRequest)
		errMsg string
	}{
		{"insufficient balance", func(r *backend.StartTradeRequest) {}, "insufficient usdt_balance"},
		{"zero amount", func(r *backend.StartTradeRequest) { r.Amount = decimal.Zero }, "amount must be greater than zero"},
		{"bad bucket", func(r *backend.StartTradeRequest) { r.BalanceSource = models.BucketNet }, "invalid balance source"},
		{"bad type", func(r *backend.StartTradeRequest) { r.TradeType = "hold" }, "invalid trade type"},
		{"bad duration", func(r *backend.StartTradeRequest) { r.DurationType = "2d" }, "invalid duration"},
		{"unknown asset", func(r *backend.StartTradeRequest) { r.AssetID = uuid.New() }, "asset not found"},
		{"unknown user", func(r *backend.StartTradeRequest) { r.UserID = uuid.New() }, "user not found"},
		{"stop loss above entry", func(r *backend.StartTradeRequest) { r.Amount = decimal.NewFromInt(10); r.StopLoss = &sl }, "stop loss must be below"},
		{"entry far below market", func(r *backend.StartTradeRequest) { r.Amount = decimal.NewFromInt(10); r.EntryPrice = 1 }, "too far from the market price"},
		{"entry far above market", func(r *backend.StartTradeRequest) { r.Amount = decimal.NewFromInt(10); r.EntryPrice = 9450000 }, "too far from the market price"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := buyRequest(user.ID, btc, 100, 94500)
			tc.mutate(&req)

			res, err := f.svc.StartTradeValidated(context.Background(), req)

			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, tc.errMsg)
		})
	}

	p := f.profile(t, user.ID)
	assertDecimal(t, "50", p.USDTBalance)
	trades, err := f.svc.ListActiveTrades(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestRisingEngine(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	user := f.createUser(t, 1000)
	eth := f.asset(t, "ETH/USDT")

	// Seed data selects the rising engine globally.
	settings, err := f.svc.EngineSettings(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EngineRising, settings.Resolve())

	res, err := f.svc.StartTradeValidated(ctx, buyRequest(user.ID, eth, 100, 3400))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "purchased signal is required")

	signals, err := f.svc.ListSignals(ctx)
	require.NoError(t, err)
	pro := signals[1]
	assert.Equal(t, "Pro", pro.Name)

	bought, err := f.svc.PurchaseSignal(ctx, user.ID, pro.ID)
	require.NoError(t, err)
	require.True(t, bought.Success, bought.Error)

	req := buyRequest(user.ID, eth, 100, 3400)
	req.PurchasedSignalID = *bought.PurchasedSignalID
	req.ProfitMultiplier = decimal.NewFromInt(50)
	f.open(t, req)

	trades, err := f.svc.ListActiveTrades(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.EngineRising, trades[0].Engine)
	assertDecimal(t, "1.5", trades[0].ProfitMultiplier)
	assert.Equal(t, pro.ID, *trades[0].SignalID)

	var last decimal.Decimal
	for _, price := range []float64{3468, 3400, 3300, 3502, 3450} {
		f.syncPrice(t, "ETH/USDT", price)
		trades, err = f.svc.ListActiveTrades(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, trades[0].CurrentProfit.GreaterThanOrEqual(last), "profit went down at %v", price)
		last = trades[0].CurrentProfit
	}
	// Peak at 3502: 100 * 3% * 1.5.
	assert.InDelta(t, 4.5, last.InexactFloat64(), 1e-6)
}

func TestStopAllUserTrades(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	f.setGlobalEngine(t, models.EngineGeneral)
	user := f.createUser(t, 1000)
	btc := f.asset(t, "BTC/USDT")
	eth := f.asset(t, "ETH/USDT")

	f.open(t, buyRequest(user.ID, btc, 100, 100000))
	f.open(t, buyRequest(user.ID, eth, 200, 4000))
	sell := buyRequest(user.ID, eth, 50, 4000)
	sell.TradeType = models.TradeSell
	f.open(t, sell)

	f.syncPrice(t, "BTC/USDT", 101000)
	f.syncPrice(t, "ETH/USDT", 3900)

	res, err := f.svc.StopAllUserTrades(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 3, res.TradesStopped)
	require.Len(t, res.TradeDetails, 3)

	// +1 on BTC, -5 on the ETH buy, +1.25 on the ETH sell.
	assert.InDelta(t, -2.75, res.TotalProfit.InexactFloat64(), 1e-6)
	sum := decimal.Zero
	for _, d := range res.TradeDetails {
		sum = sum.Add(d.Profit)
	}
	assert.True(t, sum.Equal(res.TotalProfit))

	p := f.profile(t, user.ID)
	assert.InDelta(t, 1000+res.TotalProfit.InexactFloat64(), p.USDTBalance.InexactFloat64(), 1e-6)

	var stopped int64
	require.NoError(t, f.db.Model(&models.Trade{}).Where("user_id = ? AND status = ?", user.ID, models.TradeStopped).Count(&stopped).Error)
	assert.Equal(t, int64(3), stopped)

	txs, err := f.svc.ListTransactions(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, txs, "bulk stop leaves ledger entries to the caller")

	res, err = f.svc.StopAllUserTrades(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.TradesStopped)
}

func TestLiquidation(t *testing.T) {
	sl, tp := 90000.0, 99000.0

	testCases := []struct {
		name     string
		trade    func(r *backend.StartTradeRequest)
		price    float64
		advance  time.Duration
		reason   string
		expected float64 // usdt balance after liquidation
	}{
		{"stop loss", func(r *backend.StartTradeRequest) { r.StopLoss = &sl }, 89000, 0, ReasonStopLoss, 500 - 100*5500.0/94500},
		{"take profit", func(r *backend.StartTradeRequest) { r.TakeProfit = &tp }, 99225, 0, ReasonTakeProfit, 505},
		{"expiry", func(r *backend.StartTradeRequest) { r.DurationType = models.Duration1h }, 94500, time.Hour, ReasonExpired, 500},
		{"stop loss wins over expiry", func(r *backend.StartTradeRequest) {
			r.StopLoss = &sl
			r.DurationType = models.Duration1h
		}, 89000, 2 * time.Hour, ReasonStopLoss, 500 - 100*5500.0/94500},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupTest(t)
			ctx := context.Background()
			f.setGlobalEngine(t, models.EngineGeneral)
			user := f.createUser(t, 500)
			btc := f.asset(t, "BTC/USDT")

			req := buyRequest(user.ID, btc, 100, 94500)
			tc.trade(&req)
			tradeID := f.open(t, req)

			f.clock.Advance(tc.advance)
			res := f.syncPrice(t, "BTC/USDT", tc.price)
			assert.Equal(t, 1, res.Liquidated)

			var trade models.Trade
			require.NoError(t, f.db.First(&trade, "id = ?", tradeID).Error)
			assert.Equal(t, models.TradeLiquidated, trade.Status)
			assert.Equal(t, tc.reason, trade.CloseReason)

			p := f.profile(t, user.ID)
			assert.InDelta(t, tc.expected, p.USDTBalance.InexactFloat64(), 1e-4)

			txs, err := f.svc.ListTransactions(ctx, user.ID, 10)
			require.NoError(t, err)
			assert.Len(t, txs, 1)
		})
	}
}

func TestLiquidationReason_TieBreak(t *testing.T) {
	sl, tp := 110.0, 90.0
	expired := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sell := &models.Trade{TradeType: models.TradeSell, EntryPrice: 100, StopLoss: &sl, TakeProfit: &tp, ExpiresAt: &expired}

	assert.Equal(t, ReasonStopLoss, liquidationReason(sell, 111, expired))
	assert.Equal(t, ReasonTakeProfit, liquidationReason(sell, 89, expired))
	assert.Equal(t, ReasonExpired, liquidationReason(sell, 100, expired))
	assert.Equal(t, "", liquidationReason(sell, 100, expired.Add(-time.Second)))
}

func TestSwapBalances(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	user := f.createUser(t, 300)

	res, err := f.svc.SwapBalances(ctx, backend.SwapRequest{UserID: user.ID, FromBucket: models.BucketUSDT, ToBucket: models.BucketBTC, Amount: decimal.RequireFromString("120.5")})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	p := f.profile(t, user.ID)
	assertDecimal(t, "179.5", p.USDTBalance)
	assertDecimal(t, "120.5", p.BTCBalance)
	assertDecimal(t, "300", p.Balance)

	rejected := []backend.SwapRequest{
		{UserID: user.ID, FromBucket: models.BucketBTC, ToBucket: models.BucketBTC, Amount: decimal.NewFromInt(1)},
		{UserID: user.ID, FromBucket: models.BucketBTC, ToBucket: models.BucketETH, Amount: decimal.Zero},
		{UserID: user.ID, FromBucket: models.BucketBTC, ToBucket: models.BucketETH, Amount: decimal.NewFromInt(-3)},
		{UserID: user.ID, FromBucket: models.BucketBTC, ToBucket: models.BucketETH, Amount: decimal.NewFromInt(121)},
		{UserID: user.ID, FromBucket: models.BucketInterest, ToBucket: models.BucketETH, Amount: decimal.NewFromInt(1)},
	}
	for _, req := range rejected {
		res, err := f.svc.SwapBalances(ctx, req)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
	}

	after := f.profile(t, user.ID)
	assert.True(t, after.BTCBalance.Equal(p.BTCBalance))
	assert.True(t, after.Balance.Equal(p.Balance))
}

func TestPurchaseSignal(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	user := f.createUser(t, 100)

	signals, err := f.svc.ListSignals(ctx)
	require.NoError(t, err)
	starter, elite := signals[0], signals[2]

	res, err := f.svc.PurchaseSignal(ctx, user.ID, elite.ID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "insufficient")

	res, err = f.svc.PurchaseSignal(ctx, user.ID, starter.ID)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Starter", res.SignalName)
	assertDecimal(t, "50", res.AmountPaid)

	p := f.profile(t, user.ID)
	assertDecimal(t, "50", p.USDTBalance)

	owned, err := f.svc.ListPurchasedSignals(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "Starter", owned[0].Signal.Name)
	assert.Equal(t, models.PurchasedSignalActive, owned[0].Status)
}

func TestAdminAdjustUserBalance(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	user := f.createUser(t, 100)
	admin := models.Profile{Email: "admin@example.com", IsAdmin: true}
	require.NoError(t, f.db.Create(&admin).Error)

	adjust := func(adminID uuid.UUID, action, bucket string, amount int64) backend.Result {
		res, err := f.svc.AdminAdjustUserBalance(ctx, backend.AdminAdjustRequest{
			AdminID: adminID, UserID: user.ID, BalanceType: bucket, Action: action, Amount: decimal.NewFromInt(amount), Reason: "test",
		})
		require.NoError(t, err)
		return res
	}

	res := adjust(user.ID, backend.AdjustAdd, models.BucketUSDT, 10)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "admin privileges required")

	assert.True(t, adjust(admin.ID, backend.AdjustAdd, models.BucketBTC, 25).Success)
	assert.True(t, adjust(admin.ID, backend.AdjustSubtract, models.BucketUSDT, 40).Success)
	assert.False(t, adjust(admin.ID, backend.AdjustSubtract, models.BucketUSDT, 61).Success)
	assert.True(t, adjust(admin.ID, backend.AdjustSet, models.BucketCommissions, 7).Success)
	assert.False(t, adjust(admin.ID, backend.AdjustSet, models.BucketNet, 7).Success)
	assert.False(t, adjust(admin.ID, "multiply", models.BucketUSDT, 2).Success)

	p := f.profile(t, user.ID)
	assertDecimal(t, "25", p.BTCBalance)
	assertDecimal(t, "60", p.USDTBalance)
	assertDecimal(t, "7", p.Commissions)
	assertDecimal(t, "92", p.Balance)

	txs, err := f.svc.ListTransactions(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
	for _, tx := range txs {
		assert.Equal(t, models.TxAdminAdjustment, tx.Type)
	}
}

func TestUpdateLiveInterestEarned(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	user := f.createUser(t, 1000)
	require.NoError(t, f.svc.SetSetting(ctx, models.SettingDailyInterestRate, "0.01"))

	res, err := f.svc.UpdateLiveInterestEarned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Users, "the first pass only starts the clock")

	f.clock.Advance(12 * time.Hour)
	res, err = f.svc.UpdateLiveInterestEarned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Users)

	p := f.profile(t, user.ID)
	assertDecimal(t, "5", p.InterestEarned)
	assertDecimal(t, "1005", p.Balance)
}

func TestChangesArePublishedAfterCommit(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	user := f.createUser(t, 100)

	sub, err := f.feed.Subscribe(ctx, realtime.Filter{Table: models.TableProfiles, UserID: user.ID})
	require.NoError(t, err)
	defer sub.Close()

	res, err := f.svc.SwapBalances(ctx, backend.SwapRequest{UserID: user.ID, FromBucket: models.BucketUSDT, ToBucket: models.BucketETH, Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	require.False(t, res.Success)
	assert.Len(t, sub.Events(), 0, "rejected operations publish nothing")

	res, err = f.svc.SwapBalances(ctx, backend.SwapRequest{UserID: user.ID, FromBucket: models.BucketUSDT, ToBucket: models.BucketETH, Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)
	require.True(t, res.Success)

	select {
	case e := <-sub.Events():
		assert.Equal(t, realtime.Update, e.Type)
		var p models.Profile
		require.NoError(t, e.Decode(&p))
		assertDecimal(t, "40", p.ETHBalance)
	case <-time.After(time.Second):
		t.Fatal("no profile event")
	}
}

type fixedPrices map[string]float64

func (p fixedPrices) GetPrices(_ context.Context, pairs map[string]models.MarketType) map[string]float64 {
	out := make(map[string]float64, len(pairs))
	for pair := range pairs {
		out[pair] = p[pair]
	}
	return out
}

func TestWorker_Tick(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	f.setGlobalEngine(t, models.EngineGeneral)
	user := f.createUser(t, 500)
	btc := f.asset(t, "BTC/USDT")
	tp := 99000.0

	req := buyRequest(user.ID, btc, 100, 94500)
	req.TakeProfit = &tp
	tradeID := f.open(t, req)

	worker := NewWorker(f.svc, fixedPrices{"BTC/USDT": 99225}, time.Second, false, zap.NewNop())
	require.NoError(t, worker.Tick(ctx))

	var trade models.Trade
	require.NoError(t, f.db.First(&trade, "id = ?", tradeID).Error)
	assert.Equal(t, models.TradeLiquidated, trade.Status)
	assert.Equal(t, 99225.0, trade.CurrentPrice)

	asset := f.asset(t, "BTC/USDT")
	assert.Equal(t, 99225.0, asset.CurrentPrice)

	pairs, err := f.svc.ActivePairs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestSyncTradingPrices_SettlesAtServerQuote(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	f.setGlobalEngine(t, models.EngineGeneral)
	user := f.createUser(t, 500)
	btc := f.asset(t, "BTC/USDT")

	tradeID := f.open(t, buyRequest(user.ID, btc, 100, 94500))

	// A client reports a price 100x the market.
	require.NoError(t, f.svc.SyncTradingPrices(ctx, []backend.PriceUpdate{{TradingPair: "BTC/USDT", Price: 9450000}}))
	res, err := f.svc.SyncTradingProfits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)

	var trade models.Trade
	require.NoError(t, f.db.First(&trade, "id = ?", tradeID).Error)
	assert.Equal(t, 94500.0, trade.CurrentPrice)
	assert.True(t, trade.CurrentProfit.IsZero())
	assert.Equal(t, 94500.0, f.asset(t, "BTC/USDT").CurrentPrice)

	// The market moves; a stale client value does not hold it back.
	f.quotes.set("BTC/USDT", 96390)
	require.NoError(t, f.svc.SyncTradingPrices(ctx, []backend.PriceUpdate{{TradingPair: "BTC/USDT", Price: 1}}))
	require.NoError(t, f.db.First(&trade, "id = ?", tradeID).Error)
	assert.Equal(t, 96390.0, trade.CurrentPrice)

	f.syncPrice(t, "BTC/USDT", 94500)
	require.NoError(t, f.svc.StopSingleTrade(ctx, tradeID, user.ID))
	assertDecimal(t, "500", f.profile(t, user.ID).USDTBalance)
}

func TestSyncTradingPrices_WithoutProviderStoresNothing(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	svc := NewService(f.db, nil, Options{}, zap.NewNop())

	require.NoError(t, svc.SyncTradingPrices(ctx, []backend.PriceUpdate{{TradingPair: "ETH/USDT", Price: 3400}}))
	assert.Zero(t, f.asset(t, "ETH/USDT").CurrentPrice)
}

func TestStartTrade_EntryPriceComesFromQuote(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	f.setGlobalEngine(t, models.EngineGeneral)
	user := f.createUser(t, 500)
	btc := f.asset(t, "BTC/USDT")
	sol := f.asset(t, "SOL/USDT")
	f.quotes.set(btc.Symbol, 94500)

	// Within tolerance: the trade still opens at the quote.
	res, err := f.svc.StartTradeValidated(ctx, buyRequest(user.ID, btc, 100, 94900))
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	var trade models.Trade
	require.NoError(t, f.db.First(&trade, "id = ?", *res.TradeID).Error)
	assert.Equal(t, 94500.0, trade.EntryPrice)
	assert.Equal(t, 94500.0, trade.CurrentPrice)

	res, err = f.svc.StartTradeValidated(ctx, buyRequest(user.ID, btc, 100, 0))
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	require.NoError(t, f.db.First(&trade, "id = ?", *res.TradeID).Error)
	assert.Equal(t, 94500.0, trade.EntryPrice)

	res, err = f.svc.StartTradeValidated(ctx, buyRequest(user.ID, sol, 100, 150))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no price available")

	assertDecimal(t, "300", f.profile(t, user.ID).USDTBalance)
}

func TestRowLocks_TradesBeforeProfile(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	f.setGlobalEngine(t, models.EngineGeneral)
	user := f.createUser(t, 1000)
	btc := f.asset(t, "BTC/USDT")
	sl := 90000.0

	var (
		mu     sync.Mutex
		tables []string
	)
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register("test:tables", func(tx *gorm.DB) {
		mu.Lock()
		defer mu.Unlock()
		tables = append(tables, tx.Statement.Table)
	}))
	record := func(fn func()) []string {
		mu.Lock()
		tables = nil
		mu.Unlock()
		fn()
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), tables...)
	}
	assertTradesFirst := func(name string, seen []string) {
		tradeAt, profileAt := -1, -1
		for i, table := range seen {
			if table == models.TableTrades && tradeAt < 0 {
				tradeAt = i
			}
			if table == models.TableProfiles && profileAt < 0 {
				profileAt = i
			}
		}
		require.GreaterOrEqual(t, tradeAt, 0, name)
		require.GreaterOrEqual(t, profileAt, 0, name)
		assert.Less(t, tradeAt, profileAt, "%s read %v", name, seen)
	}

	first := f.open(t, buyRequest(user.ID, btc, 100, 94500))
	assertTradesFirst("stop single", record(func() {
		require.NoError(t, f.svc.StopSingleTrade(ctx, first, user.ID))
	}))

	f.open(t, buyRequest(user.ID, btc, 100, 94500))
	f.open(t, buyRequest(user.ID, btc, 100, 94500))
	assertTradesFirst("stop all", record(func() {
		res, err := f.svc.StopAllUserTrades(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, res.TradesStopped)
	}))

	req := buyRequest(user.ID, btc, 100, 94500)
	req.StopLoss = &sl
	f.open(t, req)
	f.quotes.set("BTC/USDT", 89000)
	require.NoError(t, f.svc.SyncTradingPrices(ctx, []backend.PriceUpdate{{TradingPair: "BTC/USDT"}}))
	assertTradesFirst("liquidation", record(func() {
		res, err := f.svc.SyncTradingProfits(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Liquidated)
	}))
}
